package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// OpenAIMediaConfig configures the OpenAI image, audio and speech services. An empty BaseURL
// uses api.openai.com.
type OpenAIMediaConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxRetries *int
}

func newMediaClient(cfg OpenAIMediaConfig) openai.Client {
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
	return openai.NewClient(options...)
}

// ImageService generates images with the OpenAI Images API and fetches the results.
type ImageService struct {
	apiKey     string
	client     openai.Client
	httpClient *http.Client
}

// NewImageService creates an image service.
func NewImageService(cfg OpenAIMediaConfig) *ImageService {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &ImageService{apiKey: cfg.APIKey, client: newMediaClient(cfg), httpClient: httpClient}
}

// Name returns the service name "image" for registration.
func (s *ImageService) Name() string {
	return "image"
}

// Initialize checks that an OpenAI key is present.
func (s *ImageService) Initialize() error {
	if s.apiKey == "" {
		return errors.New("image generation requires an OpenAI API key")
	}
	return nil
}

// GenerateImages implements assisttypes.ImageProvider. References are remote URLs, or data
// URIs when the API answers with base64 payloads.
func (s *ImageService) GenerateImages(ctx context.Context, req assisttypes.ImageRequest) ([]string, error) {
	if s.apiKey == "" {
		return nil, &assisttypes.ProviderError{Provider: "openai", Op: "images", Err: errors.New("missing API key")}
	}
	params := openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          openai.ImageModel(req.Model),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	}
	if req.Count > 0 {
		params.N = openai.Int(int64(req.Count))
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	if req.HD {
		params.Quality = openai.ImageGenerateParamsQualityHD
	}
	logger.ProviderCall("openai", "images", req.Model, "count", req.Count, "size", req.Size, "hd", req.HD)

	resp, err := s.client.Images.Generate(ctx, params)
	if err != nil {
		logger.Error("Image generation failed", "error", err)
		return nil, providerError("openai", "images", err)
	}
	refs := make([]string, 0, len(resp.Data))
	for _, image := range resp.Data {
		switch {
		case image.URL != "":
			refs = append(refs, image.URL)
		case image.B64JSON != "":
			refs = append(refs, "data:image/png;base64,"+image.B64JSON)
		}
	}
	if len(refs) == 0 {
		return nil, &assisttypes.ProviderError{Provider: "openai", Op: "images", Err: errors.New("no images returned")}
	}
	return refs, nil
}

// Download returns the bytes behind an image reference.
func (s *ImageService) Download(ctx context.Context, ref string) ([]byte, error) {
	if _, data, ok := decodeDataURI(ref); ok {
		return data, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, &assisttypes.ProviderError{Provider: "openai", Op: "download", StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}
