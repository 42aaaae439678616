package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OpenAIClient calls an OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	httpClient  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewOpenAI creates a client from cfg. Defaults are applied.
func NewOpenAI(cfg Config) *OpenAIClient {
	cfg = WithDefaults(cfg)
	return &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Complete sends exactly one chat completion request.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = c.temperature
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrConnection, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrConnection, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: status %d: %s", ErrAuthentication, resp.StatusCode, snippet(data))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d: %s", ErrResponse, resp.StatusCode, snippet(data))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrResponse, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrResponse, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion returned", ErrResponse)
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func snippet(data []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
