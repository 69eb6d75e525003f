// Package chat implements the chat session controller: an editable, persisted transcript
// driven by user actions, one outstanding generation at a time, and sequential prompt
// chains on top of it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"noteassist/internal/logger"
	"noteassist/internal/tokenizer"
	"noteassist/internal/transcript"
	"noteassist/pkg/assisttypes"

	"github.com/charmbracelet/log"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Session defaults.
const (
	DefaultSaveName        = "default"
	PlaceholderText        = "Generating Answer..."
	ErrorAnswerText        = "Error receiving answer."
	DefaultMaxChainPrompts = 10
	DefaultChainPause      = 200 * time.Millisecond
	DefaultCloseTimeout    = 5 * time.Second
	// TimestampLayout formats openedAt for generated save names.
	TimestampLayout = "2006-01-02 15-04-05"
)

// User-visible notices.
const (
	noticeBusy          = "Please wait for the current response to complete."
	noticeChainRunning  = "Cannot modify chat while a prompt chain is running."
	noticeEditing       = "Finish or cancel the current edit first."
	noticeRecording     = "Stop the recording before sending."
	noticeEmptyContext  = "No content to add."
	noticeNothingToSave = "Nothing to save: the chat is empty."
)

// Guard errors returned by structural operations.
var (
	ErrGenerating    = errors.New("a response is being generated")
	ErrChainRunning  = errors.New("a prompt chain is running")
	ErrEditing       = errors.New("a message edit is pending")
	ErrRecording     = errors.New("a recording is in progress")
	ErrClosed        = errors.New("session is closed")
	ErrEmptyContext  = errors.New("context text is empty")
	ErrEmptyImage    = errors.New("image reference is empty")
	ErrNothingToSave = errors.New("nothing to save")
)

// View is a snapshot of session state for rendering.
type View struct {
	SaveName     string
	Messages     []assisttypes.Message
	Draft        string
	EditingID    string
	PendingID    string
	Generating   bool
	ChainRunning bool
	Recording    bool
	KeepScroll   bool
}

// Renderer displays session state. Calls never happen after the session is closed.
// Implementations must not call back into the session.
type Renderer interface {
	Render(view View)
	RenderPartial(messageID string, text string)
	RenderTokens(count tokenizer.Count)
}

// Config holds per-session settings. Zero values take the package defaults.
type Config struct {
	SaveName        string
	InitialContext  string
	Streaming       bool
	MaxChainPrompts int
	ChainPause      time.Duration
	CloseTimeout    time.Duration
	Now             func() time.Time
	NewID           transcript.IDFunc
}

// Dependencies are the collaborators a session drives.
type Dependencies struct {
	Completion assisttypes.CompletionProvider
	Store      assisttypes.PersistenceProvider
	Tokenizer  *tokenizer.Service
	Notifier   assisttypes.Notifier
	Renderer   Renderer
}

// Session is one open chat.
type Session struct {
	cfg        Config
	completion assisttypes.CompletionProvider
	store      assisttypes.PersistenceProvider
	tokens     *tokenizer.Service
	notifier   assisttypes.Notifier
	renderer   Renderer
	log        *log.Logger

	openedAt time.Time
	life     context.Context
	stop     context.CancelFunc
	recounts sync.WaitGroup

	// tokenSeq numbers publishes; only the latest one may render its count.
	tokenSeq atomic.Uint64
	tokenMu  sync.Mutex

	renderMu     sync.RWMutex
	renderClosed bool

	mu           sync.Mutex
	transcript   *transcript.Transcript
	saveName     string
	draft        string
	editingID    string
	pendingID    string
	abandonedID  string
	generating   bool
	chainRunning bool
	recording    bool
	closed       bool
	idle         chan struct{}
}

// NewSession creates a session. With InitialContext set the session starts with that
// text as a user message and a timestamped save name.
func NewSession(cfg Config, deps Dependencies) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = transcript.DefaultID
	}
	if cfg.MaxChainPrompts <= 0 {
		cfg.MaxChainPrompts = DefaultMaxChainPrompts
	}
	if cfg.ChainPause < 0 {
		cfg.ChainPause = 0
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultCloseTimeout
	}
	if deps.Tokenizer == nil {
		deps.Tokenizer = tokenizer.New(nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = assisttypes.NotifierFunc(func(string) {})
	}
	if deps.Renderer == nil {
		deps.Renderer = nopRenderer{}
	}

	idle := make(chan struct{})
	close(idle)
	life, stop := context.WithCancel(context.Background())

	s := &Session{
		cfg:        cfg,
		completion: deps.Completion,
		store:      deps.Store,
		tokens:     deps.Tokenizer,
		notifier:   deps.Notifier,
		renderer:   deps.Renderer,
		log:        logger.NewStyledLogger("session"),
		openedAt:   cfg.Now(),
		life:       life,
		stop:       stop,
		transcript: transcript.New(cfg.NewID),
		idle:       idle,
	}

	s.saveName = cfg.SaveName
	if initial := strings.TrimSpace(cfg.InitialContext); initial != "" {
		s.transcript.Append(assisttypes.Message{Role: assisttypes.RoleUser, Content: assisttypes.Text(cfg.InitialContext)})
		if s.saveName == "" {
			s.saveName = s.TimestampName()
		}
	}
	if s.saveName == "" {
		s.saveName = DefaultSaveName
	}
	return s
}

// TimestampName is the generated name derived from openedAt.
func (s *Session) TimestampName() string {
	return "Chat " + s.openedAt.Format(TimestampLayout)
}

// OpenedAt returns the creation time.
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// SaveName returns the current record name.
func (s *Session) SaveName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveName
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []assisttypes.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Messages()
}

// Draft returns the pending input text.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// SetDraft replaces the pending input text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
}

// EditingID returns the id of the message being edited, if any.
func (s *Session) EditingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editingID
}

// IsGenerating reports whether a completion is outstanding.
func (s *Session) IsGenerating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generating
}

// IsChainRunning reports whether a prompt chain is running.
func (s *Session) IsChainRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainRunning
}

// WaitIdle blocks until no completion is outstanding or ctx ends.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EditMessage starts editing the message with id: its text becomes the draft and the
// next Send commits it. Unknown ids are ignored.
func (s *Session) EditMessage(id string) error {
	s.mu.Lock()
	if err := s.structuralGuardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.generating {
		s.mu.Unlock()
		s.notifier.Notify(noticeBusy)
		return ErrGenerating
	}
	m, ok := s.transcript.Find(id)
	if !ok {
		s.mu.Unlock()
		return nil
	}
	text, _ := assisttypes.FirstText(m.Content)
	s.editingID = id
	s.draft = text
	view := s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
	return nil
}

// CancelEdit abandons a pending edit and clears the draft.
func (s *Session) CancelEdit() {
	s.mu.Lock()
	if s.editingID == "" {
		s.mu.Unlock()
		return
	}
	s.editingID = ""
	s.draft = ""
	view := s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
}

// commitEditLocked applies the draft to the message being edited.
func (s *Session) commitEditLocked() string {
	id, text := s.editingID, strings.TrimSpace(s.draft)
	before, _ := s.transcript.Find(id)
	oldText, _ := assisttypes.FirstText(before.Content)

	s.editingID = ""
	s.draft = ""

	switch s.transcript.EditText(id, text) {
	case transcript.EditRemoved:
		return "Message deleted."
	case transcript.EditUpdated:
		added, removed := diffStats(oldText, text)
		s.log.Debug("Edited message", "id", id, "added", added, "removed", removed)
		return fmt.Sprintf("Message updated (+%d/-%d).", added, removed)
	}
	return "Message no longer exists."
}

// diffStats counts inserted and deleted characters between two texts.
func diffStats(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	for _, d := range dmp.DiffMain(before, after, false) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += len([]rune(d.Text))
		case diffmatchpatch.DiffDelete:
			removed += len([]rune(d.Text))
		}
	}
	return added, removed
}

// DeleteMessage removes the message with id.
func (s *Session) DeleteMessage(id string) error {
	s.mu.Lock()
	if err := s.structuralGuardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if !s.transcript.Delete(id) {
		s.mu.Unlock()
		return nil
	}
	if s.editingID == id {
		s.editingID = ""
		s.draft = ""
	}
	view := s.viewLocked()
	view.KeepScroll = true
	s.mu.Unlock()

	s.publish(view)
	return nil
}

// Clear empties the transcript, the draft and any pending edit.
func (s *Session) Clear() error {
	s.mu.Lock()
	if err := s.structuralGuardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.generating {
		s.mu.Unlock()
		s.notifier.Notify(noticeBusy)
		return ErrGenerating
	}
	s.transcript.Clear()
	s.draft = ""
	s.editingID = ""
	view := s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
	return nil
}

// AddImage attaches an image (data URI or URL) to the last user message, or adds a new
// image-only user message.
func (s *Session) AddImage(ref string) error {
	if strings.TrimSpace(ref) == "" {
		return ErrEmptyImage
	}
	s.mu.Lock()
	if err := s.structuralGuardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.editingID != "" {
		s.mu.Unlock()
		s.notifier.Notify(noticeEditing)
		return ErrEditing
	}
	s.transcript.AttachImage(ref)
	view := s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
	return nil
}

// FileContextHeader returns the provenance header for file content. An empty label is
// used for editor selections.
func FileContextHeader(label string) string {
	if label == "" {
		return "***File Context:***\n"
	}
	return "***File Context (" + label + "):***\n"
}

// AddFileContext appends text as a user message under a file provenance header.
func (s *Session) AddFileContext(text, label string) error {
	if strings.TrimSpace(text) == "" {
		s.notifier.Notify(noticeEmptyContext)
		return ErrEmptyContext
	}
	return s.appendContext(FileContextHeader(label) + text)
}

// AddFolderContext appends aggregated folder or multi-selection text, which already
// carries its provenance header, as a user message.
func (s *Session) AddFolderContext(text string) error {
	if strings.TrimSpace(text) == "" {
		s.notifier.Notify(noticeEmptyContext)
		return ErrEmptyContext
	}
	return s.appendContext(text)
}

func (s *Session) appendContext(text string) error {
	s.mu.Lock()
	if err := s.structuralGuardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.editingID != "" {
		s.mu.Unlock()
		s.notifier.Notify(noticeEditing)
		return ErrEditing
	}
	s.transcript.Append(assisttypes.Message{Role: assisttypes.RoleUser, Content: assisttypes.Text(text)})
	view := s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
	return nil
}

// BeginRecording marks a voice recording as in progress. Recording is refused while a
// response is generating, an edit is pending or a chain is running.
func (s *Session) BeginRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case s.chainRunning:
		return ErrChainRunning
	case s.generating:
		return ErrGenerating
	case s.editingID != "":
		return ErrEditing
	case s.recording:
		return ErrRecording
	}
	s.recording = true
	return nil
}

// FinishRecording ends the recording and appends transcribed text to the draft.
func (s *Session) FinishRecording(text string) {
	s.mu.Lock()
	s.recording = false
	if t := strings.TrimSpace(text); t != "" {
		s.draft = strings.TrimSpace(s.draft + " " + t)
	}
	view := s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
}

// CopyConversation renders the transcript as "role:\ntext" blocks.
func (s *Session) CopyConversation() string {
	msgs := s.Messages()
	blocks := make([]string, 0, len(msgs))
	for _, m := range msgs {
		blocks = append(blocks, string(m.Role)+":\n"+assisttypes.DisplayText(m.Content))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

// LastAnswer returns the text of the most recent assistant message.
func (s *Session) LastAnswer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.transcript.LastByRole(assisttypes.RoleAssistant)
	if !ok {
		return "", false
	}
	return assisttypes.TextOf(m.Content), true
}

// InsertLastAnswer replaces the editor selection with the most recent answer.
func (s *Session) InsertLastAnswer(editor assisttypes.HostEditor) error {
	answer, ok := s.LastAnswer()
	if !ok {
		s.notifier.Notify("No assistant message to insert.")
		return nil
	}
	return editor.ReplaceSelection(answer)
}

// TokenCount counts the transcript tokens, waiting for the tokenizer if it is loading.
func (s *Session) TokenCount(ctx context.Context) tokenizer.Count {
	return s.tokens.Count(ctx, s.Messages())
}

// structuralGuardLocked rejects mutations on closed sessions and during chains.
func (s *Session) structuralGuardLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.chainRunning {
		s.notifier.Notify(noticeChainRunning)
		return ErrChainRunning
	}
	return nil
}

func (s *Session) viewLocked() View {
	return View{
		SaveName:     s.saveName,
		Messages:     s.transcript.Messages(),
		Draft:        s.draft,
		EditingID:    s.editingID,
		PendingID:    s.pendingID,
		Generating:   s.generating,
		ChainRunning: s.chainRunning,
		Recording:    s.recording,
	}
}

// Refresh re-renders the current state.
func (s *Session) Refresh() {
	s.mu.Lock()
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(view)
}

// publish renders view and recounts tokens in the background, unless the session closed.
// Counts finishing out of order are dropped so the display never goes back to an older
// transcript.
func (s *Session) publish(view View) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.recounts.Add(1)
	seq := s.tokenSeq.Add(1)
	s.mu.Unlock()

	s.renderIfOpen(func() { s.renderer.Render(view) })

	messages := view.Messages
	if view.PendingID != "" {
		messages = withoutID(messages, view.PendingID)
	}
	go func() {
		defer s.recounts.Done()
		count := s.tokens.Count(s.life, messages)
		if s.life.Err() != nil {
			return
		}
		s.tokenMu.Lock()
		defer s.tokenMu.Unlock()
		if s.tokenSeq.Load() != seq {
			return
		}
		s.renderIfOpen(func() { s.renderer.RenderTokens(count) })
	}()
}

// renderIfOpen runs fn unless teardown has started. Close waits for running calls.
func (s *Session) renderIfOpen(fn func()) {
	s.renderMu.RLock()
	defer s.renderMu.RUnlock()
	if s.renderClosed {
		return
	}
	fn()
}

func withoutID(messages []assisttypes.Message, id string) []assisttypes.Message {
	out := make([]assisttypes.Message, 0, len(messages))
	for _, m := range messages {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

type nopRenderer struct{}

func (nopRenderer) Render(View)                  {}
func (nopRenderer) RenderPartial(string, string) {}
func (nopRenderer) RenderTokens(tokenizer.Count) {}

var (
	errEmptyAnswer = errors.New("empty answer")
	errNoProvider  = errors.New("no completion provider configured")
)
