// Package llm wraps the text-generation backends behind one Provider contract.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoProvider is returned when a provider kind is unknown or unconfigured.
	ErrNoProvider = errors.New("no LLM provider configured")
	// ErrEmptyResponse is returned when a provider answers without any text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn sent to a provider.
type Message struct {
	Role    string
	Content string
}

// Request is a stateless generation call.
type Request struct {
	System   string
	Messages []Message
	// Temperature is nil to use the provider's configured value. A pointer
	// keeps an explicit 0 distinct from unset.
	Temperature *float64
	MaxTokens   int
	// JSONMode asks the backend to constrain output to a JSON object when it can.
	JSONMode bool
}

// Response is the raw text of a generation plus usage accounting.
type Response struct {
	Text       string
	TokensUsed int
	Model      string
}

// Provider is a text-generation backend.
type Provider interface {
	// Name is the label recorded against everything this provider produces.
	Name() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ProviderError is a transport or API failure of one provider call.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Config describes one provider instance.
type Config struct {
	Kind        string
	Label       string
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// New builds the provider described by cfg.
func New(cfg Config, logger *zap.Logger) (Provider, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: openai api key not set", ErrNoProvider)
		}
		return NewOpenAIProvider(cfg, logger), nil
	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "http://localhost:11434"
		}
		return NewOllamaProvider(cfg, logger), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("%w: anthropic api key not set", ErrNoProvider)
		}
		return NewAnthropicProvider(cfg, logger), nil
	case "", "none":
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrNoProvider, cfg.Kind)
	}
}

func withDefaults(req Request, cfg Config) Request {
	if req.MaxTokens <= 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = 1000
	}
	if req.Temperature == nil {
		req.Temperature = cfg.Temperature
	}
	return req
}

// Temperature returns a pointer to v for Request and Config.
func Temperature(v float64) *float64 {
	return &v
}
