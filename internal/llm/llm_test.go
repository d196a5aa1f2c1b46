package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Response{Text: s.text}, nil
}

func generateText(ctx context.Context, p Provider) (string, error) {
	resp, err := p.Generate(ctx, Request{})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func TestRunPrimarySucceeds(t *testing.T) {
	primary := &stubProvider{name: "primary", text: "from primary"}
	secondary := &stubProvider{name: "secondary", text: "from secondary"}

	out, used, err := Run(context.Background(), NewPair(primary, secondary, zap.NewNop()), generateText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "from primary" || used != "primary" {
		t.Errorf("got %q from %q", out, used)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary must not be called when primary succeeds, got %d calls", secondary.calls)
	}
}

func TestRunFallsBack(t *testing.T) {
	primary := &stubProvider{name: "primary", err: errors.New("boom")}
	secondary := &stubProvider{name: "secondary", text: "from secondary"}

	out, used, err := Run(context.Background(), NewPair(primary, secondary, zap.NewNop()), generateText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "from secondary" || used != "secondary" {
		t.Errorf("got %q from %q", out, used)
	}
}

func TestRunBothFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	secondaryErr := errors.New("secondary down")
	pair := NewPair(&stubProvider{name: "a", err: primaryErr}, &stubProvider{name: "b", err: secondaryErr}, nil)

	_, _, err := Run(context.Background(), pair, generateText)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
	if !errors.Is(err, primaryErr) || !errors.Is(err, secondaryErr) {
		t.Errorf("expected both causes to be wrapped, got %v", err)
	}
}

func TestRunWithoutSecondary(t *testing.T) {
	_, _, err := Run(context.Background(), NewPair(&stubProvider{name: "a", err: errors.New("x")}, nil, nil), generateText)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Errorf("expected ErrAllProvidersFailed, got %v", err)
	}

	_, _, err = Run(context.Background(), NewPair(nil, nil, nil), generateText)
	if !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Key string `json:"key"`
	}

	cases := []string{
		`{"key": "value"}`,
		"```json\n{\"key\": \"value\"}\n```",
		"```\n{\"key\": \"value\"}\n```",
		"  \n  {\"key\": \"value\"}  \n  ",
	}
	for _, text := range cases {
		out.Key = ""
		if err := DecodeJSON(text, &out); err != nil {
			t.Errorf("DecodeJSON(%q): %v", text, err)
			continue
		}
		if out.Key != "value" {
			t.Errorf("DecodeJSON(%q): key = %q", text, out.Key)
		}
	}

	for _, bad := range []string{"", "not json at all", "```\n```"} {
		if err := DecodeJSON(bad, &out); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("DecodeJSON(%q): expected ErrMalformedOutput, got %v", bad, err)
		}
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(Config{Kind: "mystery"}, zap.NewNop()); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider, got %v", err)
	}
	if _, err := New(Config{Kind: "openai"}, zap.NewNop()); !errors.Is(err, ErrNoProvider) {
		t.Errorf("expected ErrNoProvider without api key, got %v", err)
	}
	p, err := New(Config{Kind: "ollama", Model: "llama3"}, zap.NewNop())
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	if p.Name() != "Ollama llama3" {
		t.Errorf("unexpected ollama label %q", p.Name())
	}
}

func TestAnthropicGenerate(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"claude-test","content":[{"type":"text","text":"{\"mainInsight\":\"ok\"}"}],"usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(Config{APIKey: "secret", Model: "claude-test", BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
	resp, err := p.Generate(context.Background(), Request{
		System:   "be brief",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != `{"mainInsight":"ok"}` || resp.TokensUsed != 15 {
		t.Errorf("unexpected response %+v", resp)
	}
	if got.System != "be brief" || got.MaxTokens != 1000 || len(got.Messages) != 1 {
		t.Errorf("unexpected request body %+v", got)
	}
}

func TestAnthropicErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second}, zap.NewNop())
	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", perr.StatusCode)
	}
}

func TestOpenAIGenerateJSONMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second}, zap.NewNop())
	resp, err := p.Generate(context.Background(), Request{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		JSONMode: true,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "hello" || resp.TokensUsed != 7 {
		t.Errorf("unexpected response %+v", resp)
	}

	format, _ := got["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Errorf("expected json_object response format, got %v", got["response_format"])
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Errorf("expected system + user messages, got %d", len(msgs))
	}
}

func TestAnthropicTemperature(t *testing.T) {
	tests := []struct {
		name    string
		config  *float64
		request *float64
		want    any
	}{
		{"unset", nil, nil, nil},
		{"explicit zero", Temperature(0.9), Temperature(0), 0.0},
		{"from config", Temperature(0.3), nil, 0.3},
		{"zero in config", Temperature(0), nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				body, _ := io.ReadAll(r.Body)
				json.Unmarshal(body, &got)
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, `{"model":"m","content":[{"type":"text","text":"ok"}],"usage":{"input_tokens":1,"output_tokens":1}}`)
			}))
			defer srv.Close()

			p := NewAnthropicProvider(Config{APIKey: "k", BaseURL: srv.URL, Temperature: tt.config, Timeout: 5 * time.Second}, zap.NewNop())
			if _, err := p.Generate(context.Background(), Request{
				Messages:    []Message{{Role: RoleUser, Content: "hi"}},
				Temperature: tt.request,
			}); err != nil {
				t.Fatalf("generate: %v", err)
			}

			temp, ok := got["temperature"]
			if tt.want == nil {
				if ok {
					t.Errorf("expected no temperature, got %v", temp)
				}
				return
			}
			if !ok || temp != tt.want {
				t.Errorf("temperature = %v (present=%v), want %v", temp, ok, tt.want)
			}
		})
	}
}

func TestOpenAISendsZeroTemperature(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"x","object":"chat.completion","model":"gpt-test","choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"total_tokens":2}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(Config{APIKey: "k", Model: "gpt-test", BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second}, zap.NewNop())
	if _, err := p.Generate(context.Background(), Request{
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		Temperature: Temperature(0),
	}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	temp, ok := got["temperature"].(float64)
	if !ok || temp <= 0 || temp > 1e-30 {
		t.Errorf("expected a near-zero temperature in the request, got %v", got["temperature"])
	}
}
