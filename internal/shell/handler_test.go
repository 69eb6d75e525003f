package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"noteassist/internal/chat"
	"noteassist/internal/collect"
	"noteassist/internal/recording"
	"noteassist/internal/testutils"
	"noteassist/internal/tokenizer"
	"noteassist/pkg/assisttypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wordEncoder struct{}

func (wordEncoder) EncodeOrdinary(text string) []int {
	return make([]int, len(strings.Fields(text)))
}

// syncBuffer guards output written from the session's background goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fixture struct {
	handler    *Handler
	session    *chat.Session
	completion *testutils.ScriptedCompletion
	store      *testutils.MemoryStore
	out        *syncBuffer
}

func newFixture(t *testing.T, streaming bool, opts Options) *fixture {
	t.Helper()
	out := &syncBuffer{}
	renderer := NewTerminalRenderer(out, nil, 64000)
	completion := &testutils.ScriptedCompletion{Chunks: 3}
	store := testutils.NewMemoryStore()
	session := chat.NewSession(chat.Config{
		SaveName:   "scratch",
		Streaming:  streaming,
		ChainPause: time.Millisecond,
	}, chat.Dependencies{
		Completion: completion,
		Store:      store,
		Tokenizer:  tokenizer.New(func() (tokenizer.Encoder, error) { return wordEncoder{}, nil }),
		Notifier:   renderer,
		Renderer:   renderer,
	})
	t.Cleanup(func() { _ = session.Close(context.Background()) })
	return &fixture{
		handler:    NewHandler(session, renderer, opts),
		session:    session,
		completion: completion,
		store:      store,
		out:        out,
	}
}

func texts(s *chat.Session) []string {
	var out []string
	for _, m := range s.Messages() {
		out = append(out, string(m.Role)+": "+assisttypes.TextOf(m.Content))
	}
	return out
}

func TestExecute_PlainTextSends(t *testing.T) {
	f := newFixture(t, false, Options{})

	require.NoError(t, f.handler.Execute(t.Context(), "hello there"))

	assert.Equal(t, []string{"user: hello there", "assistant: echo: hello there"}, texts(f.session))
	out := f.out.String()
	assert.Contains(t, out, "[1] user")
	assert.Contains(t, out, "[2] assistant")
	assert.Contains(t, out, "echo: hello there")
	assert.Equal(t, "", f.session.Draft())
}

func TestExecute_StreamingPrintsAnswerOnce(t *testing.T) {
	f := newFixture(t, true, Options{})

	require.NoError(t, f.handler.Execute(t.Context(), "stream this please"))

	out := f.out.String()
	assert.Equal(t, 1, strings.Count(out, "echo: stream this please"))
	assert.Contains(t, out, chat.PlaceholderText)
}

func TestExecute_FailedSendReportsError(t *testing.T) {
	f := newFixture(t, false, Options{})
	f.completion.Reply = func(int, []assisttypes.OutboundMessage) (string, error) {
		return "", errors.New("rate limited")
	}

	err := f.handler.Execute(t.Context(), "hi")
	require.Error(t, err)
	assert.Equal(t, []string{"user: hi", "assistant: " + chat.ErrorAnswerText}, texts(f.session))
	assert.Contains(t, f.out.String(), "Error: rate limited")
}

func TestExecute_EditAndDeleteByNumber(t *testing.T) {
	f := newFixture(t, false, Options{})
	require.NoError(t, f.handler.Execute(t.Context(), "first"))

	require.NoError(t, f.handler.Execute(t.Context(), `\edit 1`))
	assert.Equal(t, "first", f.session.Draft())
	require.NoError(t, f.handler.Execute(t.Context(), "first, revised"))

	assert.Equal(t, []string{"user: first, revised", "assistant: echo: first"}, texts(f.session))
	assert.Len(t, f.completion.Calls(), 1, "committing an edit does not send")
	assert.Contains(t, f.out.String(), "(edited)")

	require.NoError(t, f.handler.Execute(t.Context(), `\delete 1`))
	assert.Equal(t, []string{"assistant: echo: first"}, texts(f.session))

	assert.ErrorContains(t, f.handler.Execute(t.Context(), `\delete 5`), "no message 5")
	assert.ErrorContains(t, f.handler.Execute(t.Context(), `\edit x`), "message number")
}

func TestExecute_EditToEmptyDeletes(t *testing.T) {
	f := newFixture(t, false, Options{})
	require.NoError(t, f.handler.Execute(t.Context(), "first"))

	require.NoError(t, f.handler.Execute(t.Context(), `\edit 2`))
	require.NoError(t, f.handler.Execute(t.Context(), `\draft`))
	require.NoError(t, f.handler.Execute(t.Context(), `\send`))

	assert.Equal(t, []string{"user: first"}, texts(f.session))
	assert.Contains(t, f.out.String(), "Message deleted.")
}

func TestExecute_CancelEdit(t *testing.T) {
	f := newFixture(t, false, Options{})
	require.NoError(t, f.handler.Execute(t.Context(), "first"))
	require.NoError(t, f.handler.Execute(t.Context(), `\edit 1`))
	require.NoError(t, f.handler.Execute(t.Context(), `\cancel`))

	assert.Empty(t, f.session.EditingID())
	assert.Empty(t, f.session.Draft())
}

func TestExecute_ClearSaveListLoad(t *testing.T) {
	f := newFixture(t, false, Options{})
	require.NoError(t, f.handler.Execute(t.Context(), "remember me"))

	require.NoError(t, f.handler.Execute(t.Context(), `\save Project: Notes!`))
	assert.Equal(t, "Project Notes", f.session.SaveName())
	_, ok := f.store.Record("Project Notes")
	assert.True(t, ok)

	require.NoError(t, f.handler.Execute(t.Context(), `\clear`))
	assert.Empty(t, f.session.Messages())

	require.NoError(t, f.handler.Execute(t.Context(), `\list project`))
	assert.Contains(t, f.out.String(), "* Project Notes")

	require.NoError(t, f.handler.Execute(t.Context(), `\load Project Notes`))
	assert.Equal(t, []string{"user: remember me", "assistant: echo: remember me"}, texts(f.session))

	assert.Error(t, f.handler.Execute(t.Context(), `\load`))
}

func TestExecute_Chain(t *testing.T) {
	f := newFixture(t, false, Options{})

	require.NoError(t, f.handler.Execute(t.Context(), `\chain one ;; two`))
	assert.Equal(t, []string{
		"user: one", "assistant: echo: one",
		"user: two", "assistant: echo: two",
	}, texts(f.session))

	require.NoError(t, f.handler.Execute(t.Context(), "\\chain\nthree\n\nfour"))
	assert.Len(t, f.session.Messages(), 8)
	assert.Contains(t, f.out.String(), "Prompt chain finished.")
}

func TestExecute_CancelStopsChain(t *testing.T) {
	f := newFixture(t, false, Options{})
	f.completion.Gate = make(chan struct{})
	f.completion.Started = make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- f.handler.Execute(ctx, `\chain one ;; two`) }()

	<-f.completion.Started
	cancel()
	err := <-done
	assert.ErrorIs(t, err, chat.ErrChainAborted)
	assert.Len(t, f.completion.Calls(), 1)
	assert.Equal(t, []string{"user: one", "assistant: " + chat.ErrorAnswerText}, texts(f.session))
}

func TestInterruptible_CancelsOnInterrupt(t *testing.T) {
	ctx, stop := interruptible(t.Context())
	defer stop()

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(os.Interrupt))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt did not cancel the command context")
	}
}

func TestExecute_ContextCommands(t *testing.T) {
	dir := testutils.CreateTempDir(t, map[string]string{
		"notes/a.md": "Alpha",
		"notes/b.md": "Beta",
		"todo.md":    "Todo",
	})
	f := newFixture(t, false, Options{Collector: collect.New(collect.NewFSSource(dir), nil)})

	require.NoError(t, f.handler.Execute(t.Context(), `\file todo.md`))
	require.NoError(t, f.handler.Execute(t.Context(), `\folder notes`))
	require.NoError(t, f.handler.Execute(t.Context(), `\select todo.md notes/b.md`))

	messages := texts(f.session)
	require.Len(t, messages, 3)
	assert.Equal(t, "user: ***File Context (todo.md):***\nTodo", messages[0])
	assert.True(t, strings.HasPrefix(messages[1], "user: ***Folder Context (notes):***\n"))
	assert.True(t, strings.HasPrefix(messages[2], "user: ***Multi-Selection Context:***\n"))
	assert.Empty(t, f.completion.Calls(), "context is added without sending")

	assert.Error(t, f.handler.Execute(t.Context(), `\select`))
}

func TestExecute_ContextCommandsNeedCollector(t *testing.T) {
	f := newFixture(t, false, Options{})
	assert.ErrorContains(t, f.handler.Execute(t.Context(), `\file a.md`), "not available")
}

func TestExecute_ImageFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644))
	f := newFixture(t, false, Options{})

	require.NoError(t, f.handler.Execute(t.Context(), `\image `+path))
	messages := f.session.Messages()
	require.Len(t, messages, 1)
	assert.True(t, assisttypes.HasImages(messages[0].Content))

	require.NoError(t, f.handler.Execute(t.Context(), `\image https://example.com/dog.jpg`))
	assert.Len(t, f.session.Messages(), 1, "images attach to the last user message")
}

func TestImageReference(t *testing.T) {
	ref, err := ImageReference("https://example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", ref)

	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = ImageReference(txt)
	assert.ErrorContains(t, err, "not an image")

	_, err = ImageReference(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)

	jpg := filepath.Join(dir, "photo.JPG")
	require.NoError(t, os.WriteFile(jpg, []byte("jpg"), 0o644))
	ref, err = ImageReference(jpg)
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,anBn", ref)
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(context.Context, []byte, string, string) (string, error) {
	return f.text, nil
}

func TestExecute_RecordTogglesIntoDraft(t *testing.T) {
	recorder := recording.NewRecorder(fakeTranscriber{text: "dictated words"}, "en")
	audio := func(context.Context) (io.ReadCloser, string, error) {
		return io.NopCloser(strings.NewReader("pcm-bytes")), "audio/wav", nil
	}
	f := newFixture(t, false, Options{Recorder: recorder, Audio: audio})
	f.session.SetDraft("Note:")

	require.NoError(t, f.handler.Execute(t.Context(), `\record`))
	assert.True(t, recorder.Recording())
	assert.Equal(t, chat.OutcomeRejected, f.session.Send(t.Context()), "sending is refused while recording")

	require.NoError(t, f.handler.Execute(t.Context(), `\record`))
	assert.False(t, recorder.Recording())
	assert.Equal(t, "Note: dictated words", f.session.Draft())
}

func TestExecute_RecordingOutlivesCommandContext(t *testing.T) {
	recorder := recording.NewRecorder(fakeTranscriber{text: "dictated words"}, "en")
	pr, pw := io.Pipe()
	audio := func(context.Context) (io.ReadCloser, string, error) {
		return pr, "audio/wav", nil
	}
	f := newFixture(t, false, Options{Recorder: recorder, Audio: audio})

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, f.handler.Execute(ctx, `\record`))
	cancel()

	_, err := pw.Write([]byte("pcm-bytes"))
	require.NoError(t, err, "the capture must still be reading")

	require.NoError(t, f.handler.Execute(t.Context(), `\record`))
	assert.Equal(t, "dictated words", f.session.Draft())
}

func TestExecute_RecordUnsupportedFormatEndsRecording(t *testing.T) {
	recorder := recording.NewRecorder(fakeTranscriber{}, "")
	audio := func(context.Context) (io.ReadCloser, string, error) {
		return io.NopCloser(strings.NewReader("x")), "video/mp4", nil
	}
	f := newFixture(t, false, Options{Recorder: recorder, Audio: audio})

	assert.Error(t, f.handler.Execute(t.Context(), `\record`))
	f.session.SetDraft("ok")
	assert.Equal(t, chat.OutcomeAnswered, f.session.Send(t.Context()))
}

type fakeClipboard struct{ text string }

func (c *fakeClipboard) Copy(text string) error {
	c.text = text
	return nil
}

func TestExecute_CopyAndInsert(t *testing.T) {
	clipboard := &fakeClipboard{}
	editor := &testutils.MemoryEditor{Selected: "selected"}
	f := newFixture(t, false, Options{Clipboard: clipboard, Editor: editor})
	require.NoError(t, f.handler.Execute(t.Context(), "hi"))

	require.NoError(t, f.handler.Execute(t.Context(), `\copy`))
	assert.Equal(t, "user:\nhi\n\n---\n\nassistant:\necho: hi", clipboard.text)

	require.NoError(t, f.handler.Execute(t.Context(), `\insert`))
	assert.Equal(t, "echo: hi", editor.Selected)
}

func TestExecute_TokensHelpAndUnknown(t *testing.T) {
	f := newFixture(t, false, Options{})
	require.NoError(t, f.handler.Execute(t.Context(), "one two three"))

	require.NoError(t, f.handler.Execute(t.Context(), `\tokens`))
	assert.Contains(t, f.out.String(), "Context Tokens: 7 / 64000")

	require.NoError(t, f.handler.Execute(t.Context(), `\help`))
	assert.Contains(t, f.out.String(), `\chain`)

	assert.ErrorContains(t, f.handler.Execute(t.Context(), `\bogus`), "unknown command")
	assert.ErrorIs(t, f.handler.Execute(t.Context(), `\exit`), ErrExit)
}

func TestPromptFor(t *testing.T) {
	assert.Equal(t, "chat [12/64000]> ", promptFor("Context Tokens: 12 / 64000"))
	assert.Equal(t, DefaultPrompt, promptFor("Context Tokens: N/A"))
	assert.Equal(t, DefaultPrompt, promptFor(""))
}
