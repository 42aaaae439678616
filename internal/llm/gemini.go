package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient calls the Gemini API through the genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
}

// NewGemini creates a Gemini client. BaseURL, when set, overrides the
// default Gemini endpoint.
func NewGemini(ctx context.Context, cfg Config) (*GeminiClient, error) {
	cfg = WithDefaults(cfg)
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	timeout := cfg.Timeout
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Timeout: &timeout,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

// Complete sends exactly one GenerateContent request.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, error) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.User), config)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: no completion returned", ErrResponse)
	}
	return text, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		default:
			return fmt.Errorf("%w: %v", ErrResponse, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}
