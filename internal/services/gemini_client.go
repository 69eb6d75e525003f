package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"
	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// GeminiClient implements assisttypes.CompletionProvider for the Google Gemini API.
// The SDK client is created lazily on the first request.
type GeminiClient struct {
	cfg    GeminiConfig
	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient creates a Gemini chat client.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	return &GeminiClient{cfg: cfg}
}

// GetProviderName returns the provider name for this client.
func (c *GeminiClient) GetProviderName() string {
	return "gemini"
}

// Model returns the configured chat model.
func (c *GeminiClient) Model() string {
	return c.cfg.Model
}

// IsConfigured returns true if the client has a valid API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.cfg.APIKey != "" && c.cfg.Model != ""
}

func (c *GeminiClient) initializeClientIfNeeded(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     c.cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("Gemini client initialized", "provider", "gemini")
	c.client = client
	return client, nil
}

// Complete implements assisttypes.CompletionProvider.
func (c *GeminiClient) Complete(ctx context.Context, messages []assisttypes.OutboundMessage, sink assisttypes.StreamSink) (string, error) {
	if !c.IsConfigured() {
		return "", &assisttypes.ProviderError{Provider: "gemini", Op: "complete", Err: errors.New("missing API key or model")}
	}
	client, err := c.initializeClientIfNeeded(ctx)
	if err != nil {
		return "", providerError("gemini", "complete", err)
	}

	contents, system := geminiContents(messages)
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	logger.ProviderCall("gemini", "complete", c.cfg.Model, "contents", len(contents), "stream", sink != nil)

	if sink == nil {
		result, err := client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
		if err != nil {
			logger.Error("Gemini request failed", "error", err)
			return "", providerError("gemini", "complete", err)
		}
		return result.Text(), nil
	}

	var answer strings.Builder
	for result, err := range client.Models.GenerateContentStream(ctx, c.cfg.Model, contents, config) {
		if err != nil {
			logger.Error("Gemini stream failed", "error", err)
			return "", providerError("gemini", "complete", err)
		}
		delta := result.Text()
		if delta == "" {
			continue
		}
		answer.WriteString(delta)
		sink(delta)
	}
	return answer.String(), nil
}

// geminiContents converts outbound messages to Gemini contents. Assistant turns use the
// "model" role and system messages become the system instruction.
func geminiContents(messages []assisttypes.OutboundMessage) ([]*genai.Content, string) {
	contents := make([]*genai.Content, 0, len(messages))
	var system []string
	for _, msg := range messages {
		switch msg.Role {
		case assisttypes.RoleSystem:
			system = append(system, assisttypes.TextOf(msg.Content))
		case assisttypes.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(assisttypes.TextOf(msg.Content), genai.RoleModel))
		case assisttypes.RoleUser:
			contents = append(contents, genai.NewContentFromParts(geminiParts(msg.Content), genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func geminiParts(content assisttypes.Content) []*genai.Part {
	parts, ok := content.(assisttypes.PartsContent)
	if !ok {
		return []*genai.Part{genai.NewPartFromText(assisttypes.TextOf(content))}
	}
	out := make([]*genai.Part, 0, len(parts.Parts))
	for _, part := range parts.Parts {
		switch p := part.(type) {
		case assisttypes.TextPart:
			out = append(out, genai.NewPartFromText(p.Text))
		case assisttypes.ImagePart:
			if mediaType, data, ok := decodeDataURI(p.URL); ok {
				out = append(out, genai.NewPartFromBytes(data, mediaType))
				continue
			}
			out = append(out, genai.NewPartFromURI(p.URL, imageMIMEType(p.URL)))
		}
	}
	return out
}

// imageMIMEType guesses an image media type from a URL's extension.
func imageMIMEType(url string) string {
	lower := strings.ToLower(url)
	if i := strings.IndexAny(lower, "?#"); i >= 0 {
		lower = lower[:i]
	}
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}
