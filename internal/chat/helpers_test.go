package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"noteassist/internal/testutils"
	"noteassist/internal/tokenizer"
	"noteassist/pkg/assisttypes"

	"github.com/stretchr/testify/require"
)

type wordEncoder struct{}

func (wordEncoder) EncodeOrdinary(text string) []int {
	return make([]int, len(strings.Fields(text)))
}

type recordingRenderer struct {
	mu       sync.Mutex
	views    []View
	partials []string
	tokens   []tokenizer.Count
}

func (r *recordingRenderer) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recordingRenderer) RenderPartial(_ string, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partials = append(r.partials, text)
}

func (r *recordingRenderer) RenderTokens(c tokenizer.Count) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, c)
}

func (r *recordingRenderer) Views() []View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]View(nil), r.views...)
}

func (r *recordingRenderer) Partials() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.partials...)
}

type fixture struct {
	session    *Session
	completion *testutils.ScriptedCompletion
	store      *testutils.MemoryStore
	notifier   *testutils.RecordingNotifier
	renderer   *recordingRenderer
}

func newFixture(t *testing.T, cfg Config, completion *testutils.ScriptedCompletion) *fixture {
	t.Helper()
	testutils.ResetTestCounters()
	if completion == nil {
		completion = &testutils.ScriptedCompletion{}
	}
	if cfg.Now == nil {
		cfg.Now = testutils.FixedClock(time.Date(2025, 6, 1, 14, 30, 5, 0, time.UTC))
	}
	if cfg.NewID == nil {
		cfg.NewID = testutils.IDGenerator(true)
	}
	if cfg.ChainPause == 0 {
		cfg.ChainPause = time.Millisecond
	}
	f := &fixture{
		completion: completion,
		store:      testutils.NewMemoryStore(),
		notifier:   &testutils.RecordingNotifier{},
		renderer:   &recordingRenderer{},
	}
	f.session = NewSession(cfg, Dependencies{
		Completion: completion,
		Store:      f.store,
		Tokenizer:  tokenizer.New(func() (tokenizer.Encoder, error) { return wordEncoder{}, nil }),
		Notifier:   f.notifier,
		Renderer:   f.renderer,
	})
	t.Cleanup(func() { _ = f.session.Close(context.Background()) })
	return f
}

func (f *fixture) send(t *testing.T, text string) Outcome {
	t.Helper()
	f.session.SetDraft(text)
	return f.session.Send(context.Background())
}

func texts(msgs []assisttypes.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + assisttypes.TextOf(m.Content)
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
