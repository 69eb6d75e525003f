package services

import (
	"fmt"
	"strings"
	"sync"

	"noteassist/internal/config"
	"noteassist/internal/logger"
	"noteassist/internal/version"
	"noteassist/pkg/assisttypes"
)

// openRouterHeaders identify the app to OpenRouter.
func openRouterHeaders() map[string]string {
	return map[string]string{
		"HTTP-Referer": "https://github.com/noteassist/noteassist",
		"X-Title":      "noteassist",
		"User-Agent":   version.UserAgent(),
	}
}

// ClientFactoryService builds provider clients from a Config and caches them. A changed
// Config yields a new cache key, so switching model or provider rebuilds the client.
type ClientFactoryService struct {
	initialized bool
	catalog     *ModelCatalogService
	notifier    assisttypes.Notifier
	recorder    RequestRecorder
	testMode    bool
	clients     map[string]assisttypes.CompletionProvider
	mutex       sync.RWMutex
}

// NewClientFactoryService creates a factory. notifier receives model-switch notices.
func NewClientFactoryService(catalog *ModelCatalogService, notifier assisttypes.Notifier) *ClientFactoryService {
	return &ClientFactoryService{
		catalog:  catalog,
		notifier: notifier,
		clients:  make(map[string]assisttypes.CompletionProvider),
	}
}

// Name returns the service name "client_factory" for registration.
func (f *ClientFactoryService) Name() string {
	return "client_factory"
}

// Initialize sets up the ClientFactoryService for operation.
func (f *ClientFactoryService) Initialize() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.initialized = true
	return nil
}

// SetRecorder wraps every client built afterwards with request logging. nil disables it.
func (f *ClientFactoryService) SetRecorder(recorder RequestRecorder) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.recorder = recorder
	f.clients = make(map[string]assisttypes.CompletionProvider)
}

// SetTestMode makes CompletionFor return offline mock clients.
func (f *ClientFactoryService) SetTestMode(testMode bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.testMode = testMode
	f.clients = make(map[string]assisttypes.CompletionProvider)
}

// CompletionFor returns the chat client for cfg.
func (f *ClientFactoryService) CompletionFor(cfg config.Config) (assisttypes.CompletionProvider, error) {
	f.mutex.RLock()
	initialized, testMode := f.initialized, f.testMode
	f.mutex.RUnlock()
	if !initialized {
		return nil, fmt.Errorf("client factory service not initialized")
	}
	if testMode {
		return NewMockCompletionClient(cfg.Model), nil
	}

	apiKey := cfg.CompletionAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("API key not configured for provider '%s'", cfg.Provider)
	}
	cacheKey := strings.Join([]string{cfg.Provider, cfg.Model, cfg.LLMBaseURL, apiKey}, "\x00")

	f.mutex.RLock()
	if client, exists := f.clients[cacheKey]; exists {
		f.mutex.RUnlock()
		logger.Debug("Returning cached provider client", "provider", cfg.Provider)
		return client, nil
	}
	f.mutex.RUnlock()

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if client, exists := f.clients[cacheKey]; exists {
		return client, nil
	}

	var client assisttypes.CompletionProvider
	switch cfg.Provider {
	case config.ProviderOpenRouter:
		client = NewOpenAIClient(OpenAIConfig{
			ProviderName:   config.ProviderOpenRouter,
			APIKey:         apiKey,
			BaseURL:        cfg.LLMBaseURL,
			Model:          cfg.Model,
			VisionModel:    OpenRouterVisionModel,
			SupportsImages: f.catalog.SupportsImages,
			Headers:        openRouterHeaders(),
			Notifier:       f.notifier,
		})
	case config.ProviderOpenAI:
		baseURL := cfg.LLMBaseURL
		if baseURL == "" || baseURL == OpenRouterBaseURL {
			baseURL = "https://api.openai.com/v1"
		}
		client = NewOpenAIClient(OpenAIConfig{
			ProviderName:   config.ProviderOpenAI,
			APIKey:         apiKey,
			BaseURL:        baseURL,
			Model:          cfg.Model,
			VisionModel:    OpenAIVisionModel,
			SupportsImages: f.catalog.SupportsImages,
			Notifier:       f.notifier,
		})
	case config.ProviderAnthropic:
		client = NewAnthropicClient(AnthropicConfig{APIKey: apiKey, Model: cfg.Model})
	case config.ProviderGemini:
		client = NewGeminiClient(GeminiConfig{APIKey: apiKey, Model: cfg.Model})
	default:
		return nil, fmt.Errorf("unsupported provider '%s'. Supported providers: openrouter, openai, anthropic, gemini", cfg.Provider)
	}
	if f.recorder != nil {
		client = &LoggedCompletion{Next: client, Recorder: f.recorder, Model: cfg.Model}
	}

	f.clients[cacheKey] = client
	logger.Debug("Created new provider client", "provider", cfg.Provider, "model", cfg.Model)
	return client, nil
}

// MediaConfig returns the OpenAI settings used for images, audio and speech. Those APIs
// always go to OpenAI; the general key is used only when OpenAI is the chat provider.
func MediaConfig(cfg config.Config) OpenAIMediaConfig {
	key := cfg.OpenAIAPIKey
	if key == "" && cfg.Provider == config.ProviderOpenAI {
		key = cfg.APIKey
	}
	return OpenAIMediaConfig{APIKey: key}
}

// ImagesFor returns the image service for cfg along with its provider view, which is
// request-logged when a recorder is set.
func (f *ClientFactoryService) ImagesFor(cfg config.Config) (*ImageService, assisttypes.ImageProvider) {
	service := NewImageService(MediaConfig(cfg))
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	if f.recorder != nil {
		return service, &LoggedImages{Next: service, Recorder: f.recorder}
	}
	return service, service
}

// TranscriptionFor returns the transcription provider for cfg.
func (f *ClientFactoryService) TranscriptionFor(cfg config.Config) assisttypes.TranscriptionProvider {
	service := NewTranscriptionService(MediaConfig(cfg), cfg.TranscriptionModel)
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	if f.recorder != nil {
		return &LoggedTranscription{Next: service, Recorder: f.recorder}
	}
	return service
}

// SpeechFor returns the speech provider for cfg.
func (f *ClientFactoryService) SpeechFor(cfg config.Config) assisttypes.SpeechProvider {
	service := NewSpeechService(MediaConfig(cfg), "")
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	if f.recorder != nil {
		return &LoggedSpeech{Next: service, Recorder: f.recorder}
	}
	return service
}

// GetCachedClientCount returns the number of cached clients.
func (f *ClientFactoryService) GetCachedClientCount() int {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return len(f.clients)
}

// ClearCache removes all cached clients.
func (f *ClientFactoryService) ClearCache() {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.clients = make(map[string]assisttypes.CompletionProvider)
	logger.Debug("Client cache cleared")
}
