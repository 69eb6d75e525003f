package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"noteassist/internal/storage"
	"noteassist/internal/testutils"
	"noteassist/pkg/assisttypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHistory struct {
	mu       sync.Mutex
	recorded []string
	entries  []storage.PromptEntry
}

func (h *fakeHistory) Record(_ context.Context, prompt string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recorded = append(h.recorded, prompt)
	return nil
}

func (h *fakeHistory) Frequent(_ context.Context, query string, limit int) ([]storage.PromptEntry, error) {
	var out []storage.PromptEntry
	for _, e := range h.entries {
		if query == "" || strings.Contains(strings.ToLower(e.Prompt), strings.ToLower(query)) {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestRunPrompt_AppendsAnswerAndRecords(t *testing.T) {
	completion := &testutils.ScriptedCompletion{Reply: func(int, []assisttypes.OutboundMessage) (string, error) {
		return "  Bonjour  ", nil
	}}
	history := &fakeHistory{}
	a := New(completion, history, nil, Options{})
	editor := &testutils.MemoryEditor{Selected: " Hello "}

	answer, err := a.RunPrompt(t.Context(), editor, "translate to french")
	require.NoError(t, err)

	assert.Equal(t, "Hello\n\nBonjour", answer)
	assert.Equal(t, []string{"Hello\n\nBonjour"}, editor.Replaced)
	assert.Equal(t, []string{"translate to french"}, history.recorded)

	calls := completion.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Streamed)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, assisttypes.RoleUser, calls[0].Messages[0].Role)
	assert.Equal(t, "translate to french : Hello", assisttypes.TextOf(calls[0].Messages[0].Content))
}

func TestRunPrompt_ReplaceSelection(t *testing.T) {
	completion := &testutils.ScriptedCompletion{Reply: func(int, []assisttypes.OutboundMessage) (string, error) {
		return "Bonjour", nil
	}}
	a := New(completion, nil, nil, Options{ReplaceSelection: true})
	editor := &testutils.MemoryEditor{Selected: "Hello"}

	_, err := a.RunPrompt(t.Context(), editor, "translate")
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", editor.Selected)
}

func TestRunPrompt_FailureLeavesEditorAndHistory(t *testing.T) {
	notifier := &testutils.RecordingNotifier{}
	history := &fakeHistory{}
	a := New(testutils.FailingCompletion("boom"), history, notifier, Options{})
	editor := &testutils.MemoryEditor{Selected: "Hello"}

	_, err := a.RunPrompt(t.Context(), editor, "translate")
	require.Error(t, err)

	var perr *assisttypes.ProviderError
	assert.True(t, errors.As(err, &perr))
	assert.Empty(t, editor.Replaced)
	assert.Empty(t, history.recorded)
	assert.True(t, notifier.Contains("Error:"))
}

func TestRunPrompt_EmptyAnswer(t *testing.T) {
	completion := &testutils.ScriptedCompletion{Reply: func(int, []assisttypes.OutboundMessage) (string, error) {
		return "   ", nil
	}}
	a := New(completion, nil, nil, Options{})
	editor := &testutils.MemoryEditor{Selected: "Hello"}

	_, err := a.RunPrompt(t.Context(), editor, "translate")
	assert.ErrorIs(t, err, ErrEmptyAnswer)
	assert.Empty(t, editor.Replaced)
}

func TestRunPrompt_RejectsBlankPrompt(t *testing.T) {
	a := New(&testutils.ScriptedCompletion{}, nil, nil, Options{})
	_, err := a.RunPrompt(t.Context(), &testutils.MemoryEditor{}, "  ")
	assert.Error(t, err)
}

func TestCleanUp_RequiresSelection(t *testing.T) {
	notifier := &testutils.RecordingNotifier{}
	completion := &testutils.ScriptedCompletion{}
	a := New(completion, nil, notifier, Options{})

	_, err := a.CleanUp(t.Context(), &testutils.MemoryEditor{Selected: "  \n"})
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Equal(t, []string{"No text selected."}, notifier.Notices())
	assert.Empty(t, completion.Calls())
}

func TestCleanUp_UsesFixedPromptWithoutHistory(t *testing.T) {
	history := &fakeHistory{}
	completion := &testutils.ScriptedCompletion{Reply: func(int, []assisttypes.OutboundMessage) (string, error) {
		return "# Title", nil
	}}
	a := New(completion, history, nil, Options{ReplaceSelection: true})
	editor := &testutils.MemoryEditor{Selected: "title"}

	_, err := a.CleanUp(t.Context(), editor)
	require.NoError(t, err)

	assert.Equal(t, CleanupPrompt+" : title", assisttypes.TextOf(completion.Calls()[0].Messages[0].Content))
	assert.Equal(t, "# Title", editor.Selected)
	assert.Empty(t, history.recorded)
}

func TestFrequentPrompts(t *testing.T) {
	history := &fakeHistory{entries: []storage.PromptEntry{
		{Prompt: "summarize", UseCount: 3},
		{Prompt: "translate to french", UseCount: 1},
	}}
	a := New(&testutils.ScriptedCompletion{}, history, nil, Options{})

	entries, err := a.FrequentPrompts(t.Context(), "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = a.FrequentPrompts(t.Context(), "FRENCH", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "translate to french", entries[0].Prompt)

	entries, err = a.FrequentPrompts(t.Context(), "nothing", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFrequentPrompts_EmptyHistory(t *testing.T) {
	notifier := &testutils.RecordingNotifier{}
	a := New(&testutils.ScriptedCompletion{}, &fakeHistory{}, notifier, Options{})

	_, err := a.FrequentPrompts(t.Context(), "", 10)
	assert.ErrorIs(t, err, ErrNoPrompts)
	assert.Equal(t, []string{"No frequent prompts saved yet."}, notifier.Notices())

	a = New(&testutils.ScriptedCompletion{}, nil, nil, Options{})
	_, err = a.FrequentPrompts(t.Context(), "", 10)
	assert.ErrorIs(t, err, ErrNoPrompts)
}

func TestRunFrequent_RecordsAgain(t *testing.T) {
	history := &fakeHistory{}
	a := New(&testutils.ScriptedCompletion{}, history, nil, Options{})
	editor := &testutils.MemoryEditor{Selected: "text"}

	answer, err := a.RunFrequent(t.Context(), editor, storage.PromptEntry{Prompt: "summarize", UseCount: 2})
	require.NoError(t, err)
	assert.Equal(t, "text\n\necho: summarize : text", answer)
	assert.Equal(t, []string{"summarize"}, history.recorded)
}

func TestThinkingNotice_RepeatsWhileWaiting(t *testing.T) {
	notifier := &testutils.RecordingNotifier{}
	gate := make(chan struct{})
	completion := &testutils.ScriptedCompletion{Gate: gate}
	a := New(completion, nil, notifier, Options{ThinkingInterval: 10 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := a.RunPrompt(context.Background(), &testutils.MemoryEditor{Selected: "x"}, "p")
		done <- err
	}()

	require.Eventually(t, func() bool {
		count := 0
		for _, n := range notifier.Notices() {
			if n == ThinkingNotice {
				count++
			}
		}
		return count >= 2
	}, time.Second, 5*time.Millisecond)

	close(gate)
	require.NoError(t, <-done)

	before := len(notifier.Notices())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, len(notifier.Notices()), "notices stop once the answer arrives")
}
