package services

import (
	"context"

	"noteassist/internal/logger"
	"noteassist/internal/storage"
	"noteassist/pkg/assisttypes"
)

// Request types written to the request log.
const (
	RequestChat          = "chat"
	RequestImage         = "image"
	RequestTranscription = "transcription"
	RequestSpeech        = "speech"
)

// RequestRecorder stores one provider call; *storage.RequestLog implements it.
type RequestRecorder interface {
	Append(requestType string, input, output any) error
}

type loggedMessage struct {
	Role    assisttypes.Role `json:"role"`
	Content string           `json:"content"`
}

func record(rec RequestRecorder, requestType string, input, output any, err error) {
	if err != nil {
		output = storage.ErrorOutput{Error: true, Message: err.Error()}
	}
	if logErr := rec.Append(requestType, input, output); logErr != nil {
		logger.Warn("Failed to write request log", "type", requestType, "error", logErr)
	}
}

// LoggedCompletion records every completion call.
type LoggedCompletion struct {
	Next     assisttypes.CompletionProvider
	Recorder RequestRecorder
	Model    string
}

// Complete implements assisttypes.CompletionProvider.
func (l *LoggedCompletion) Complete(ctx context.Context, messages []assisttypes.OutboundMessage, sink assisttypes.StreamSink) (string, error) {
	answer, err := l.Next.Complete(ctx, messages, sink)

	logged := make([]loggedMessage, 0, len(messages))
	for _, msg := range messages {
		logged = append(logged, loggedMessage{Role: msg.Role, Content: assisttypes.DisplayText(msg.Content)})
	}
	record(l.Recorder, RequestChat,
		map[string]any{"model": l.Model, "messages": logged, "stream": sink != nil},
		map[string]any{"content": answer}, err)
	return answer, err
}

// LoggedImages records every image generation call.
type LoggedImages struct {
	Next     assisttypes.ImageProvider
	Recorder RequestRecorder
}

// GenerateImages implements assisttypes.ImageProvider.
func (l *LoggedImages) GenerateImages(ctx context.Context, req assisttypes.ImageRequest) ([]string, error) {
	refs, err := l.Next.GenerateImages(ctx, req)
	record(l.Recorder, RequestImage,
		map[string]any{"model": req.Model, "prompt": req.Prompt, "size": req.Size, "n": req.Count, "hd": req.HD},
		map[string]any{"images": len(refs)}, err)
	return refs, err
}

// LoggedTranscription records every transcription call.
type LoggedTranscription struct {
	Next     assisttypes.TranscriptionProvider
	Recorder RequestRecorder
}

// Transcribe implements assisttypes.TranscriptionProvider.
func (l *LoggedTranscription) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	text, err := l.Next.Transcribe(ctx, audio, mimeType, language)
	record(l.Recorder, RequestTranscription,
		map[string]any{"bytes": len(audio), "mimeType": mimeType, "language": language},
		map[string]any{"text": text}, err)
	return text, err
}

// LoggedSpeech records every speech call.
type LoggedSpeech struct {
	Next     assisttypes.SpeechProvider
	Recorder RequestRecorder
}

// Synthesize implements assisttypes.SpeechProvider.
func (l *LoggedSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	audio, err := l.Next.Synthesize(ctx, text)
	record(l.Recorder, RequestSpeech,
		map[string]any{"text": text},
		map[string]any{"bytes": len(audio)}, err)
	return audio, err
}
