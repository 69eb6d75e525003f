package assistant

import (
	"context"
	"errors"
	"strings"

	"noteassist/pkg/assisttypes"
)

// ErrEmptyTranscription reports that the audio produced no text.
var ErrEmptyTranscription = errors.New("transcription was empty")

// Dictation turns speech into editor text and reads text aloud.
type Dictation struct {
	transcriber assisttypes.TranscriptionProvider
	speech      assisttypes.SpeechProvider
	language    string
	notifier    assisttypes.Notifier
}

// NewDictation creates a Dictation. speech may be nil when read-aloud is not needed.
func NewDictation(transcriber assisttypes.TranscriptionProvider, speech assisttypes.SpeechProvider, language string, notifier assisttypes.Notifier) *Dictation {
	if notifier == nil {
		notifier = assisttypes.NotifierFunc(func(string) {})
	}
	return &Dictation{transcriber: transcriber, speech: speech, language: language, notifier: notifier}
}

// Transcriber exposes the provider, for a recorder that flushes into it.
func (d *Dictation) Transcriber() assisttypes.TranscriptionProvider {
	return d.transcriber
}

// Insert transcribes audio and inserts the text after the current selection.
func (d *Dictation) Insert(ctx context.Context, editor assisttypes.HostEditor, audio []byte, mimeType string) (string, error) {
	d.notifier.Notify("Transcribing audio...")
	text, err := d.transcriber.Transcribe(ctx, audio, mimeType, d.language)
	if err != nil {
		d.notifier.Notify("Error: " + err.Error())
		return "", err
	}
	return text, d.InsertText(editor, text)
}

// InsertText places already transcribed text after the selection, on a new line when the
// selection does not end with one.
func (d *Dictation) InsertText(editor assisttypes.HostEditor, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		d.notifier.Notify("Transcription failed or was empty.")
		return ErrEmptyTranscription
	}
	selection := editor.Selection()
	if selection != "" && !strings.HasSuffix(selection, "\n") {
		selection += "\n"
	}
	return editor.ReplaceSelection(selection + text)
}

// ReadAloud returns MP3 audio of text.
func (d *Dictation) ReadAloud(ctx context.Context, text string) ([]byte, error) {
	if d.speech == nil {
		return nil, errors.New("speech is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("nothing to read")
	}
	audio, err := d.speech.Synthesize(ctx, text)
	if err != nil {
		d.notifier.Notify("Error: " + err.Error())
		return nil, err
	}
	return audio, nil
}
