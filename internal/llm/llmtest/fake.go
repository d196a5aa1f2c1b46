// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/xaenox/scout-insights/internal/llm"
)

// Fake returns Text (or Err) for every call and records each request.
type Fake struct {
	Label      string
	Text       string
	TokensUsed int
	Err        error
	// Hook, when set, runs before the reply is returned. Tests use it to block
	// or to vary the reply per call.
	Hook func(ctx context.Context, req llm.Request) (string, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (f *Fake) Name() string { return f.Label }

func (f *Fake) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	text, err := f.Text, f.Err
	if f.Hook != nil {
		text, err = f.Hook(ctx, req)
	}
	if err != nil {
		return nil, &llm.ProviderError{Provider: f.Label, Err: err}
	}
	return &llm.Response{Text: text, TokensUsed: f.TokensUsed}, nil
}

// Calls reports how many times Generate ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of every request received so far.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.requests))
	copy(out, f.requests)
	return out
}
