package assisttypes

import "context"

// StreamSink receives partial completion text as it arrives.
type StreamSink func(delta string)

// CompletionProvider produces an assistant reply for an ordered list of messages.
// When sink is non-nil, partial text is pushed to it as it becomes available and the
// full text is still returned at completion.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []OutboundMessage, sink StreamSink) (string, error)
}

// ImageRequest describes an image generation call.
type ImageRequest struct {
	Model  string
	Prompt string
	Size   string
	Count  int
	HD     bool
}

// ImageProvider generates images and returns references (URLs or data URIs) to them.
type ImageProvider interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([]string, error)
}

// TranscriptionProvider turns recorded audio into text.
type TranscriptionProvider interface {
	Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error)
}

// SpeechProvider turns text into encoded audio.
type SpeechProvider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// PersistenceProvider reads and writes named records within one logical namespace.
type PersistenceProvider interface {
	Exists(name string) (bool, error)
	Read(name string) ([]byte, error)
	Write(name string, data []byte) error
	List() ([]string, error)
}

// HostEditor is the slice of the host document editor the assistant needs.
type HostEditor interface {
	Selection() string
	ReplaceSelection(text string) error
}

// Notifier shows short user-visible notices.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// Notify calls f(message).
func (f NotifierFunc) Notify(message string) { f(message) }

// Service is a named component with an explicit initialization step.
type Service interface {
	Name() string
	Initialize() error
}
