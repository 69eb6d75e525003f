package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"noteassist/internal/testutils"
	"noteassist/internal/tokenizer"
	"noteassist/pkg/assisttypes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "My chat_2-final", SanitizeName("  My chat_2-final!?/ "))
	assert.Equal(t, "", SanitizeName("???"))
}

func TestSession_CloseDefaultPersistsEvenWhenEmpty(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	require.NoError(t, f.session.Close(context.Background()))

	record, ok := f.store.Record(DefaultSaveName)
	require.True(t, ok)
	assert.JSONEq(t, `[]`, record)
}

func TestSession_CloseCustomNameSkipsEmpty(t *testing.T) {
	f := newFixture(t, Config{SaveName: "scratch-1"}, nil)
	require.NoError(t, f.session.Close(context.Background()))

	_, ok := f.store.Record("scratch-1")
	assert.False(t, ok)
	assert.Equal(t, 0, f.store.Writes)
}

func TestSession_CloseCustomNamePersistsContent(t *testing.T) {
	f := newFixture(t, Config{SaveName: "scratch-1"}, nil)
	f.send(t, "keep me")
	require.NoError(t, f.session.Close(context.Background()))
	require.NoError(t, f.session.Close(context.Background()))

	record, ok := f.store.Record("scratch-1")
	require.True(t, ok)
	assert.Contains(t, record, "keep me")
	assert.Equal(t, 1, f.store.Writes)
}

func TestSession_SaveAsAndLoadRoundTrip(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.send(t, "remember this")
	require.NoError(t, f.session.AddImage("data:image/png;base64,AAA"))
	saved := f.session.Messages()

	require.NoError(t, f.session.SaveAs(context.Background(), "Project: notes!"))
	assert.Equal(t, "Project notes", f.session.SaveName())
	assert.True(t, f.notifier.Contains(`Chat saved as "Project notes".`))

	require.NoError(t, f.session.Clear())
	require.NoError(t, f.session.LoadByName(context.Background(), "Project notes"))
	assert.Equal(t, saved, f.session.Messages())
}

func TestSession_SaveAsFallsBackToTimestamp(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.send(t, "x")
	require.NoError(t, f.session.SaveAs(context.Background(), "###"))
	assert.Equal(t, "Chat 2025-06-01 14-30-05", f.session.SaveName())
}

func TestSession_SaveAsRefusesEmptyDefault(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	assert.ErrorIs(t, f.session.SaveAs(context.Background(), "x"), ErrNothingToSave)
	assert.Equal(t, "Chat 2025-06-01 14:30", f.session.SuggestedSaveName())
}

func TestSession_SaveAsReportsWriteFailure(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.send(t, "x")
	f.store.WriteErr = errors.New("disk full")

	err := f.session.SaveAs(context.Background(), "n")
	var perr *assisttypes.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, DefaultSaveName, f.session.SaveName())
	assert.True(t, f.notifier.Contains("disk full"))
	assert.Len(t, f.session.Messages(), 2)
	f.store.WriteErr = nil
}

func TestSession_LoadMissingRecordStartsEmpty(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.send(t, "old")
	f.session.SetDraft("draft")

	require.NoError(t, f.session.LoadByName(context.Background(), "never-saved"))

	assert.Empty(t, f.session.Messages())
	assert.Empty(t, f.session.Draft())
	assert.Equal(t, "never-saved", f.session.SaveName())
}

func TestSession_LoadCorruptRecordFailsClosed(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.store.Put("broken", `[{"role":"user","content":"fine"},{"role":"assistant"}]`)
	f.send(t, "old")

	err := f.session.LoadByName(context.Background(), "broken")

	var formatErr *assisttypes.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Empty(t, f.session.Messages())
	assert.True(t, f.notifier.Contains("corrupt"))
}

func TestSession_OpenLoadsDefaultOnly(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.store.Put(DefaultSaveName, `[{"id":"_a","role":"user","content":"persisted"}]`)
	require.NoError(t, f.session.Open(context.Background()))
	assert.Equal(t, []string{"user:persisted"}, texts(f.session.Messages()))

	other := newFixture(t, Config{SaveName: "named"}, nil)
	other.store.Put("named", `[{"role":"user","content":"not auto loaded"}]`)
	require.NoError(t, other.session.Open(context.Background()))
	assert.Empty(t, other.session.Messages())
}

func TestSession_ListSaved(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.store.Put("Chat 2025-01-01 10-00-00", "[]")
	f.store.Put("Recipes", "[]")
	f.store.Put("default", "[]")

	names, err := f.session.ListSaved("CHAT")
	require.NoError(t, err)
	assert.Equal(t, []string{"Chat 2025-01-01 10-00-00"}, names)

	all, err := f.session.ListSaved("")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// stubbornCompletion ignores cancellation and answers only when released.
type stubbornCompletion struct {
	started chan struct{}
	release chan struct{}
}

func (c *stubbornCompletion) Complete(_ context.Context, _ []assisttypes.OutboundMessage, _ assisttypes.StreamSink) (string, error) {
	close(c.started)
	<-c.release
	return "late answer", nil
}

func TestSession_CloseTimeoutSavesFailedTurn(t *testing.T) {
	provider := &stubbornCompletion{started: make(chan struct{}), release: make(chan struct{})}
	store := testutils.NewMemoryStore()
	session := NewSession(Config{SaveName: "slow", CloseTimeout: 20 * time.Millisecond}, Dependencies{
		Completion: provider,
		Store:      store,
		Tokenizer:  tokenizer.New(func() (tokenizer.Encoder, error) { return wordEncoder{}, nil }),
	})

	session.SetDraft("question")
	outcome := make(chan Outcome, 1)
	go func() { outcome <- session.Send(context.Background()) }()
	<-provider.started

	require.NoError(t, session.Close(context.Background()))

	record, ok := store.Record("slow")
	require.True(t, ok)
	var saved []map[string]any
	require.NoError(t, json.Unmarshal([]byte(record), &saved))
	require.Len(t, saved, 2)
	assert.Equal(t, "user", saved[0]["role"])
	assert.Equal(t, "assistant", saved[1]["role"])
	assert.Equal(t, ErrorAnswerText, saved[1]["content"])

	close(provider.release)
	assert.Equal(t, OutcomeFailed, <-outcome)
	assert.Equal(t, []string{"user:question", "assistant:" + ErrorAnswerText}, texts(session.Messages()))
	assert.Equal(t, 1, store.Writes)
}
