package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// Defaults for OpenAI-compatible endpoints.
const (
	OpenRouterBaseURL     = "https://openrouter.ai/api/v1"
	OpenRouterVisionModel = "openai/gpt-4o"
	OpenAIVisionModel     = "gpt-4o"
	defaultMaxRetries     = 2
)

// OpenAIConfig holds configuration for an OpenAI-compatible chat client.
type OpenAIConfig struct {
	// ProviderName labels logs and errors, e.g. "openrouter" or "openai".
	ProviderName string
	APIKey       string
	// BaseURL defaults to OpenRouter when empty.
	BaseURL string
	Model   string
	// VisionModel replaces Model for requests carrying images when SupportsImages(Model)
	// is false. Empty disables the switch.
	VisionModel    string
	SupportsImages func(model string) bool
	Headers        map[string]string
	Notifier       assisttypes.Notifier
	HTTPClient     *http.Client
	// MaxRetries is passed to the SDK; nil keeps the default.
	MaxRetries *int
}

// OpenAIClient implements assisttypes.CompletionProvider against any API speaking the
// OpenAI Chat Completions protocol (OpenRouter, OpenAI, compatible gateways).
type OpenAIClient struct {
	cfg    OpenAIConfig
	client openai.Client
}

// NewOpenAIClient creates a chat client for cfg.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai-compatible"
	}
	return &OpenAIClient{cfg: cfg, client: openai.NewClient(openAIOptions(cfg)...)}
}

func openAIOptions(cfg OpenAIConfig) []option.RequestOption {
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL + "/"),
	}
	for key, value := range cfg.Headers {
		options = append(options, option.WithHeader(key, value))
	}
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}
	retries := defaultMaxRetries
	if cfg.MaxRetries != nil {
		retries = *cfg.MaxRetries
	}
	return append(options, option.WithMaxRetries(retries))
}

// GetProviderName returns the provider name for this client.
func (c *OpenAIClient) GetProviderName() string {
	return c.cfg.ProviderName
}

// Model returns the configured chat model.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// IsConfigured returns true if the client has an API key and a model.
func (c *OpenAIClient) IsConfigured() bool {
	return c.cfg.APIKey != "" && c.cfg.Model != ""
}

// Complete implements assisttypes.CompletionProvider. A nil sink sends a single
// non-streaming request.
func (c *OpenAIClient) Complete(ctx context.Context, messages []assisttypes.OutboundMessage, sink assisttypes.StreamSink) (string, error) {
	if !c.IsConfigured() {
		return "", &assisttypes.ProviderError{Provider: c.cfg.ProviderName, Op: "complete", Err: errors.New("missing API key or model")}
	}

	model := c.modelFor(messages)
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: openAIMessages(messages),
	}
	logger.ProviderCall(c.cfg.ProviderName, "complete", model, "messages", len(messages), "stream", sink != nil)

	if sink == nil {
		completion, err := c.client.Chat.Completions.New(ctx, params)
		if err != nil {
			logger.Error("Completion request failed", "provider", c.cfg.ProviderName, "error", err)
			return "", providerError(c.cfg.ProviderName, "complete", err)
		}
		if len(completion.Choices) == 0 {
			return "", &assisttypes.ProviderError{Provider: c.cfg.ProviderName, Op: "complete", Err: errors.New("no response choices returned")}
		}
		return completion.Choices[0].Message.Content, nil
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var answer strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		answer.WriteString(delta)
		sink(delta)
	}
	if err := stream.Err(); err != nil {
		logger.Error("Streaming request failed", "provider", c.cfg.ProviderName, "error", err)
		return "", providerError(c.cfg.ProviderName, "complete", err)
	}
	logger.Debug("Completion received", "provider", c.cfg.ProviderName, "content_length", answer.Len())
	return answer.String(), nil
}

// modelFor picks the vision model when the request carries images the configured model
// cannot read.
func (c *OpenAIClient) modelFor(messages []assisttypes.OutboundMessage) string {
	if c.cfg.VisionModel == "" || c.cfg.SupportsImages == nil || !assisttypes.AnyImages(messages) {
		return c.cfg.Model
	}
	if c.cfg.SupportsImages(c.cfg.Model) || c.cfg.Model == c.cfg.VisionModel {
		return c.cfg.Model
	}
	if c.cfg.Notifier != nil {
		c.cfg.Notifier.Notify("Switching to " + c.cfg.VisionModel + " for image input.")
	}
	logger.Info("Switching to image-capable model", "from", c.cfg.Model, "to", c.cfg.VisionModel)
	return c.cfg.VisionModel
}

// openAIMessages converts outbound messages. Only user messages may carry image parts;
// other roles are sent as their joined text.
func openAIMessages(messages []assisttypes.OutboundMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case assisttypes.RoleSystem:
			out = append(out, openai.SystemMessage(assisttypes.TextOf(msg.Content)))
		case assisttypes.RoleAssistant:
			out = append(out, openai.AssistantMessage(assisttypes.TextOf(msg.Content)))
		case assisttypes.RoleUser:
			parts, ok := msg.Content.(assisttypes.PartsContent)
			if !ok {
				out = append(out, openai.UserMessage(assisttypes.TextOf(msg.Content)))
				continue
			}
			out = append(out, openai.UserMessage(openAIParts(parts)))
		}
	}
	return out
}

func openAIParts(content assisttypes.PartsContent) []openai.ChatCompletionContentPartUnionParam {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(content.Parts))
	for _, part := range content.Parts {
		switch p := part.(type) {
		case assisttypes.TextPart:
			parts = append(parts, openai.TextContentPart(p.Text))
		case assisttypes.ImagePart:
			image := openai.ChatCompletionContentPartImageImageURLParam{URL: p.URL}
			if p.Detail != "" {
				image.Detail = p.Detail
			}
			parts = append(parts, openai.ImageContentPart(image))
		}
	}
	return parts
}
