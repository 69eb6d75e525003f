package services

import (
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
	"noteassist/pkg/assisttypes"
)

// providerError maps an SDK failure to a ProviderError, keeping the HTTP status when the
// SDK exposes one.
func providerError(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *assisttypes.ProviderError
	if errors.As(err, &existing) {
		return err
	}
	pe := &assisttypes.ProviderError{Provider: provider, Op: op, Err: err}

	var openaiErr *openai.Error
	var anthropicErr *anthropic.Error
	var geminiErr genai.APIError
	switch {
	case errors.As(err, &openaiErr):
		pe.StatusCode = openaiErr.StatusCode
	case errors.As(err, &anthropicErr):
		pe.StatusCode = anthropicErr.StatusCode
	case errors.As(err, &geminiErr):
		pe.StatusCode = geminiErr.Code
	}
	return pe
}
