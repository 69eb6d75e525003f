package services

import (
	"context"
	"strings"

	"noteassist/pkg/assisttypes"
)

// MockCompletionClient answers without a network call. It is used in test mode so the CLI
// can be exercised end to end offline.
type MockCompletionClient struct {
	model     string
	responses map[string]string
}

// NewMockCompletionClient creates a mock client answering as model.
func NewMockCompletionClient(model string) *MockCompletionClient {
	return &MockCompletionClient{
		model: model,
		responses: map[string]string{
			"default": "This is a mock assistant response.",
		},
	}
}

// SetMockResponse sets the answer for a model.
func (m *MockCompletionClient) SetMockResponse(model, response string) {
	m.responses[model] = response
}

// GetProviderName returns "mock".
func (m *MockCompletionClient) GetProviderName() string {
	return "mock"
}

// Complete returns the configured response followed by the last user text, streamed word
// by word when sink is set.
func (m *MockCompletionClient) Complete(ctx context.Context, messages []assisttypes.OutboundMessage, sink assisttypes.StreamSink) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &assisttypes.ProviderError{Provider: "mock", Op: "complete", Err: err}
	}
	response, ok := m.responses[m.model]
	if !ok {
		response = m.responses["default"]
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == assisttypes.RoleUser {
			if text := assisttypes.TextOf(messages[i].Content); text != "" {
				response += "\n\n> " + text
			}
			break
		}
	}
	if sink != nil {
		words := strings.SplitAfter(response, " ")
		for _, w := range words {
			sink(w)
		}
	}
	return response, nil
}
