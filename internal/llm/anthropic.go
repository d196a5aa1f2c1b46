package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	cfg     Config
	label   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewAnthropicProvider(cfg Config, logger *zap.Logger) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-latest"
	}
	label := cfg.Label
	if label == "" {
		label = "Anthropic " + cfg.Model
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicProvider{
		cfg:     cfg,
		label:   label,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

func (a *AnthropicProvider) Name() string { return a.label }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate ignores JSONMode: the Messages API has no output constraint, so
// callers rely on the prompt and on parsing.
func (a *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	req = withDefaults(req, a.cfg)

	body := anthropicRequest{
		Model:     a.cfg.Model,
		MaxTokens: req.MaxTokens,
		System:    req.System,
	}
	if req.Temperature != nil {
		t := *req.Temperature
		body.Temperature = &t
	}
	for _, m := range req.Messages {
		// The Messages API requires the conversation to open with a user turn.
		if len(body.Messages) == 0 && m.Role == RoleAssistant {
			continue
		}
		role := RoleUser
		if m.Role == RoleAssistant {
			role = RoleAssistant
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: role, Content: m.Content})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: a.label, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: a.label, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	var result anthropicResponse
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && result.Error != nil {
			msg = result.Error.Type + ": " + result.Error.Message
		}
		return nil, &ProviderError{Provider: a.label, StatusCode: resp.StatusCode, Err: fmt.Errorf("api error: %s", msg)}
	}
	if decodeErr != nil {
		return nil, &ProviderError{Provider: a.label, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", decodeErr)}
	}

	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, &ProviderError{Provider: a.label, StatusCode: resp.StatusCode, Err: ErrEmptyResponse}
	}

	tokens := result.Usage.InputTokens + result.Usage.OutputTokens
	a.logger.Debug("Anthropic completion",
		zap.String("provider", a.label),
		zap.Int("total_tokens", tokens))

	return &Response{Text: text, TokensUsed: tokens, Model: result.Model}, nil
}
