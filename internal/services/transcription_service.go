package services

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// DefaultTranscriptionModel is used when no model is configured.
const DefaultTranscriptionModel = "gpt-4o-mini-transcribe"

// TranscriptionService turns recorded audio into text with the OpenAI audio API.
type TranscriptionService struct {
	apiKey string
	model  string
	client openai.Client
}

// NewTranscriptionService creates a transcription service for model.
func NewTranscriptionService(cfg OpenAIMediaConfig, model string) *TranscriptionService {
	if model == "" {
		model = DefaultTranscriptionModel
	}
	return &TranscriptionService{apiKey: cfg.APIKey, model: model, client: newMediaClient(cfg)}
}

// Name returns the service name "transcription" for registration.
func (s *TranscriptionService) Name() string {
	return "transcription"
}

// Initialize checks that an OpenAI key is present.
func (s *TranscriptionService) Initialize() error {
	if s.apiKey == "" {
		return errors.New("transcription requires an OpenAI API key")
	}
	return nil
}

// Transcribe implements assisttypes.TranscriptionProvider.
func (s *TranscriptionService) Transcribe(ctx context.Context, audio []byte, mimeType, language string) (string, error) {
	if s.apiKey == "" {
		return "", &assisttypes.ProviderError{Provider: "openai", Op: "transcribe", Err: errors.New("missing API key")}
	}
	if len(audio) == 0 {
		return "", &assisttypes.ProviderError{Provider: "openai", Op: "transcribe", Err: errors.New("no audio recorded")}
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), AudioFileName(mimeType), mimeType),
		Model: openai.AudioModel(s.model),
	}
	if language != "" {
		params.Language = openai.String(language)
	}
	logger.ProviderCall("openai", "transcribe", s.model, "bytes", len(audio), "mime", mimeType)

	result, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		logger.Error("Transcription failed", "error", err)
		return "", providerError("openai", "transcribe", err)
	}
	return strings.TrimSpace(result.Text), nil
}

// AudioFileName names an upload after its media type so the API can infer the codec.
func AudioFileName(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	switch strings.TrimSpace(base) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "recording.wav"
	case "audio/mpeg", "audio/mp3":
		return "recording.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "recording.m4a"
	case "audio/ogg":
		return "recording.ogg"
	case "audio/flac":
		return "recording.flac"
	default:
		return "recording.webm"
	}
}
