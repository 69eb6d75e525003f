package testutils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"noteassist/pkg/assisttypes"

	"github.com/stretchr/testify/require"
)

// CompletionCall records one call to ScriptedCompletion.
type CompletionCall struct {
	Messages []assisttypes.OutboundMessage
	Streamed bool
}

// ScriptedCompletion is a CompletionProvider that answers from a script.
// Reply computes the answer for a call; when nil the answer echoes the last message text.
// Gate, when set, blocks each call until a value is received or the context ends.
type ScriptedCompletion struct {
	mu     sync.Mutex
	calls  []CompletionCall
	Reply  func(call int, messages []assisttypes.OutboundMessage) (string, error)
	Chunks int
	Gate   chan struct{}
	// Started is signalled (non-blocking) when a call begins.
	Started chan struct{}
}

// Complete implements assisttypes.CompletionProvider.
func (s *ScriptedCompletion) Complete(ctx context.Context, messages []assisttypes.OutboundMessage, sink assisttypes.StreamSink) (string, error) {
	s.mu.Lock()
	index := len(s.calls)
	s.calls = append(s.calls, CompletionCall{Messages: messages, Streamed: sink != nil})
	reply := s.Reply
	s.mu.Unlock()

	if s.Started != nil {
		select {
		case s.Started <- struct{}{}:
		default:
		}
	}
	if s.Gate != nil {
		select {
		case <-s.Gate:
		case <-ctx.Done():
			return "", &assisttypes.ProviderError{Provider: "scripted", Op: "complete", Err: ctx.Err()}
		}
	}

	var answer string
	var err error
	if reply != nil {
		answer, err = reply(index, messages)
	} else if len(messages) > 0 {
		answer = "echo: " + assisttypes.TextOf(messages[len(messages)-1].Content)
	}
	if err != nil {
		return "", err
	}
	if sink != nil {
		for _, chunk := range splitChunks(answer, s.Chunks) {
			sink(chunk)
		}
	}
	return answer, nil
}

// Calls returns a copy of the recorded calls.
func (s *ScriptedCompletion) Calls() []CompletionCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CompletionCall, len(s.calls))
	copy(out, s.calls)
	return out
}

func splitChunks(s string, n int) []string {
	if n <= 1 || len(s) < n {
		return []string{s}
	}
	size := len(s) / n
	var chunks []string
	for len(s) > 0 {
		if len(s) < 2*size {
			chunks = append(chunks, s)
			break
		}
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return chunks
}

// FailingCompletion always fails with a provider error.
func FailingCompletion(msg string) *ScriptedCompletion {
	return &ScriptedCompletion{Reply: func(int, []assisttypes.OutboundMessage) (string, error) {
		return "", &assisttypes.ProviderError{Provider: "scripted", Op: "complete", StatusCode: 500, Err: errors.New(msg)}
	}}
}

// MemoryStore is an in-memory PersistenceProvider.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string][]byte
	Writes   int
	WriteErr error
	ReadErr  error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

// Exists implements assisttypes.PersistenceProvider.
func (m *MemoryStore) Exists(name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[name]
	return ok, nil
}

// Read implements assisttypes.PersistenceProvider.
func (m *MemoryStore) Read(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, &assisttypes.PersistenceError{Op: "read", Name: name, Err: m.ReadErr}
	}
	data, ok := m.records[name]
	if !ok {
		return nil, &assisttypes.PersistenceError{Op: "read", Name: name, Err: os.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

// Write implements assisttypes.PersistenceProvider.
func (m *MemoryStore) Write(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return &assisttypes.PersistenceError{Op: "write", Name: name, Err: m.WriteErr}
	}
	m.Writes++
	m.records[name] = append([]byte(nil), data...)
	return nil
}

// List implements assisttypes.PersistenceProvider.
func (m *MemoryStore) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.records))
	for name := range m.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Record returns the stored bytes for name.
func (m *MemoryStore) Record(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.records[name]
	return string(data), ok
}

// Put stores a record directly.
func (m *MemoryStore) Put(name, data string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = []byte(data)
}

// RecordingNotifier collects notices.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []string
}

// Notify implements assisttypes.Notifier.
func (r *RecordingNotifier) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

// Notices returns the collected notices.
func (r *RecordingNotifier) Notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notices...)
}

// Contains reports whether any notice contains substr.
func (r *RecordingNotifier) Contains(substr string) bool {
	for _, n := range r.Notices() {
		if strings.Contains(n, substr) {
			return true
		}
	}
	return false
}

// MemoryEditor is a HostEditor over an in-memory selection.
type MemoryEditor struct {
	Selected string
	Replaced []string
	Err      error
}

// Selection implements assisttypes.HostEditor.
func (e *MemoryEditor) Selection() string { return e.Selected }

// ReplaceSelection implements assisttypes.HostEditor.
func (e *MemoryEditor) ReplaceSelection(text string) error {
	if e.Err != nil {
		return e.Err
	}
	e.Replaced = append(e.Replaced, text)
	e.Selected = text
	return nil
}

// CreateTempDir writes files (relative path -> content) under a temporary directory.
func CreateTempDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755), fmt.Sprintf("mkdir for %s", rel))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}
