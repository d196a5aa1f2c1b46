package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIProvider talks to the OpenAI chat completions API, or to any
// OpenAI-compatible endpoint such as Ollama's /v1.
type OpenAIProvider struct {
	client *openai.Client
	cfg    Config
	label  string
	logger *zap.Logger
}

func NewOpenAIProvider(cfg Config, logger *zap.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	label := cfg.Label
	if label == "" {
		label = "OpenAI " + cfg.Model
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		label:  label,
		logger: logger,
	}
}

// NewOllamaProvider points the OpenAI client at a local Ollama server.
func NewOllamaProvider(cfg Config, logger *zap.Logger) *OpenAIProvider {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
	if cfg.APIKey == "" {
		cfg.APIKey = "ollama"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5:7b"
	}
	if cfg.Label == "" {
		cfg.Label = "Ollama " + cfg.Model
	}
	return NewOpenAIProvider(cfg, logger)
}

func (p *OpenAIProvider) Name() string { return p.label }

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	req = withDefaults(req, p.cfg)

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	completion := openai.ChatCompletionRequest{
		Model:     p.cfg.Model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	if req.Temperature != nil {
		// go-openai omits a zero temperature from the request body.
		t := float32(*req.Temperature)
		if t == 0 {
			t = math.SmallestNonzeroFloat32
		}
		completion.Temperature = t
	}
	if req.JSONMode {
		completion.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, completion)
	if err != nil {
		perr := &ProviderError{Provider: p.label, Err: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			perr.StatusCode = apiErr.HTTPStatusCode
		}
		return nil, perr
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.label, Err: fmt.Errorf("no choices in response: %w", ErrEmptyResponse)}
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, &ProviderError{Provider: p.label, Err: ErrEmptyResponse}
	}

	p.logger.Debug("OpenAI completion",
		zap.String("provider", p.label),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return &Response{Text: text, TokensUsed: resp.Usage.TotalTokens, Model: resp.Model}, nil
}
