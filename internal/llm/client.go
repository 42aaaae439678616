// Package llm talks to the language model that turns the aggregated
// evidence into a narrative report.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Supported providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Defaults applied by New when the corresponding Config field is empty.
const (
	DefaultBaseURL     = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	DefaultModel       = "qwen-max"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultTimeout     = 120 * time.Second
	DefaultTemperature = 0.2
)

// Errors returned by Complete. Callers use errors.Is to classify a failure.
var (
	ErrConnection     = errors.New("llm connection failed")
	ErrAuthentication = errors.New("llm authentication failed")
	ErrResponse       = errors.New("llm returned an unusable response")
	ErrMissingAPIKey  = errors.New("LLM_API_KEY is not set")
)

// Config selects and configures a provider.
type Config struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	Temperature float64
}

// Request is a single system plus user exchange.
type Request struct {
	System      string
	User        string
	Temperature float64
}

// Client produces one completion per call. Implementations never retry.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// New builds the client for cfg.Provider. An empty provider means openai.
func New(ctx context.Context, cfg Config) (Client, error) {
	cfg = WithDefaults(cfg)
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// WithDefaults fills unset fields with the defaults of cfg.Provider. The
// Gemini endpoint is left empty so the SDK picks its own.
func WithDefaults(cfg Config) Config {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = ProviderOpenAI
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
		if cfg.Provider == ProviderGemini {
			cfg.Model = DefaultGeminiModel
		}
	}
	if cfg.BaseURL == "" && cfg.Provider == ProviderOpenAI {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	return cfg
}
