package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go"
	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// Speech defaults.
const (
	DefaultSpeechModel = "tts-1"
	DefaultSpeechVoice = "alloy"
)

// SpeechService reads text aloud through the OpenAI speech API and returns MP3 audio.
type SpeechService struct {
	apiKey string
	voice  string
	client openai.Client
}

// NewSpeechService creates a speech service. An empty voice uses DefaultSpeechVoice.
func NewSpeechService(cfg OpenAIMediaConfig, voice string) *SpeechService {
	if voice == "" {
		voice = DefaultSpeechVoice
	}
	return &SpeechService{apiKey: cfg.APIKey, voice: voice, client: newMediaClient(cfg)}
}

// Name returns the service name "speech" for registration.
func (s *SpeechService) Name() string {
	return "speech"
}

// Initialize checks that an OpenAI key is present.
func (s *SpeechService) Initialize() error {
	if s.apiKey == "" {
		return errors.New("speech requires an OpenAI API key")
	}
	return nil
}

// Synthesize implements assisttypes.SpeechProvider.
func (s *SpeechService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.apiKey == "" {
		return nil, &assisttypes.ProviderError{Provider: "openai", Op: "speech", Err: errors.New("missing API key")}
	}
	logger.ProviderCall("openai", "speech", DefaultSpeechModel, "chars", len(text), "voice", s.voice)

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(DefaultSpeechModel),
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(s.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, providerError("openai", "speech", err)
	}
	defer func() { _ = resp.Body.Close() }()
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	return audio, nil
}
