package services

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// DefaultAnthropicMaxTokens bounds the length of one Anthropic reply.
const DefaultAnthropicMaxTokens = 4096

// AnthropicConfig holds configuration for the Anthropic client.
type AnthropicConfig struct {
	APIKey string
	Model  string
	// MaxTokens caps the reply length; zero uses DefaultAnthropicMaxTokens.
	MaxTokens  int
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries *int
}

// AnthropicClient implements assisttypes.CompletionProvider for Anthropic's Messages API.
type AnthropicClient struct {
	cfg    AnthropicConfig
	client anthropic.Client
}

// NewAnthropicClient creates an Anthropic chat client.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultAnthropicMaxTokens
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.MaxRetries != nil {
		options = append(options, option.WithMaxRetries(*cfg.MaxRetries))
	}
	return &AnthropicClient{cfg: cfg, client: anthropic.NewClient(options...)}
}

// GetProviderName returns the provider name for this client.
func (c *AnthropicClient) GetProviderName() string {
	return "anthropic"
}

// Model returns the configured chat model.
func (c *AnthropicClient) Model() string {
	return c.cfg.Model
}

// IsConfigured returns true if the client has a valid API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.cfg.APIKey != "" && c.cfg.Model != ""
}

// Complete implements assisttypes.CompletionProvider.
func (c *AnthropicClient) Complete(ctx context.Context, messages []assisttypes.OutboundMessage, sink assisttypes.StreamSink) (string, error) {
	if !c.IsConfigured() {
		return "", &assisttypes.ProviderError{Provider: "anthropic", Op: "complete", Err: errors.New("missing API key or model")}
	}

	converted, system := anthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(c.cfg.MaxTokens),
		Messages:  converted,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	logger.ProviderCall("anthropic", "complete", c.cfg.Model, "messages", len(converted), "stream", sink != nil)

	if sink == nil {
		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			logger.Error("Anthropic request failed", "error", err)
			return "", providerError("anthropic", "complete", err)
		}
		var content strings.Builder
		for _, block := range message.Content {
			content.WriteString(block.Text)
		}
		return content.String(), nil
	}

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var answer strings.Builder
	for stream.Next() {
		event := stream.Current()
		delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
			answer.WriteString(text.Text)
			sink(text.Text)
		}
	}
	if err := stream.Err(); err != nil {
		logger.Error("Anthropic stream failed", "error", err)
		return "", providerError("anthropic", "complete", err)
	}
	logger.Debug("Anthropic response received", "content_length", answer.Len())
	return answer.String(), nil
}

// anthropicMessages converts outbound messages to Anthropic format. System messages are not
// part of the conversation in this API and are returned joined for the system field.
func anthropicMessages(messages []assisttypes.OutboundMessage) ([]anthropic.MessageParam, string) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	var system []string
	for _, msg := range messages {
		switch msg.Role {
		case assisttypes.RoleSystem:
			system = append(system, assisttypes.TextOf(msg.Content))
		case assisttypes.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(assisttypes.TextOf(msg.Content))))
		case assisttypes.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropicBlocks(msg.Content)...))
		}
	}
	return out, strings.Join(system, "\n\n")
}

func anthropicBlocks(content assisttypes.Content) []anthropic.ContentBlockParamUnion {
	parts, ok := content.(assisttypes.PartsContent)
	if !ok {
		return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(assisttypes.TextOf(content))}
	}
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts.Parts))
	for _, part := range parts.Parts {
		switch p := part.(type) {
		case assisttypes.TextPart:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case assisttypes.ImagePart:
			if mediaType, data, ok := parseDataURI(p.URL); ok {
				blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
				continue
			}
			blocks = append(blocks, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: p.URL}))
		}
	}
	return blocks
}
