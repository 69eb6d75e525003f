package assistant

import (
	"context"
	"errors"
	"testing"

	"noteassist/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscriber struct {
	text     string
	err      error
	language string
	mime     string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, mimeType, language string) (string, error) {
	f.mime = mimeType
	f.language = language
	return f.text, f.err
}

type fakeSpeech struct{}

func (fakeSpeech) Synthesize(_ context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

func TestDictation_InsertAfterSelection(t *testing.T) {
	transcriber := &fakeTranscriber{text: " hello world \n"}
	d := NewDictation(transcriber, nil, "en", nil)
	editor := &testutils.MemoryEditor{Selected: "Notes:"}

	text, err := d.Insert(t.Context(), editor, []byte("audio"), "audio/webm")
	require.NoError(t, err)

	assert.Equal(t, " hello world \n", text)
	assert.Equal(t, "Notes:\nhello world", editor.Selected)
	assert.Equal(t, "en", transcriber.language)
	assert.Equal(t, "audio/webm", transcriber.mime)
}

func TestDictation_InsertAtCursor(t *testing.T) {
	d := NewDictation(&fakeTranscriber{}, nil, "", nil)

	editor := &testutils.MemoryEditor{}
	require.NoError(t, d.InsertText(editor, "dictated"))
	assert.Equal(t, "dictated", editor.Selected)

	editor = &testutils.MemoryEditor{Selected: "line\n"}
	require.NoError(t, d.InsertText(editor, "dictated"))
	assert.Equal(t, "line\ndictated", editor.Selected)
}

func TestDictation_EmptyTranscription(t *testing.T) {
	notifier := &testutils.RecordingNotifier{}
	d := NewDictation(&fakeTranscriber{text: "  "}, nil, "", notifier)
	editor := &testutils.MemoryEditor{Selected: "keep"}

	_, err := d.Insert(t.Context(), editor, []byte("audio"), "audio/wav")
	assert.ErrorIs(t, err, ErrEmptyTranscription)
	assert.Empty(t, editor.Replaced)
	assert.True(t, notifier.Contains("Transcription failed or was empty."))
}

func TestDictation_TranscriberError(t *testing.T) {
	notifier := &testutils.RecordingNotifier{}
	d := NewDictation(&fakeTranscriber{err: errors.New("bad key")}, nil, "", notifier)

	_, err := d.Insert(t.Context(), &testutils.MemoryEditor{}, []byte("audio"), "audio/wav")
	require.Error(t, err)
	assert.True(t, notifier.Contains("Error: bad key"))
}

func TestDictation_ReadAloud(t *testing.T) {
	d := NewDictation(&fakeTranscriber{}, fakeSpeech{}, "", nil)
	audio, err := d.ReadAloud(t.Context(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "mp3:hi", string(audio))

	_, err = d.ReadAloud(t.Context(), " ")
	assert.Error(t, err)

	_, err = NewDictation(&fakeTranscriber{}, nil, "", nil).ReadAloud(t.Context(), "hi")
	assert.Error(t, err)
}
