package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrAllProvidersFailed is returned when neither provider of a Pair succeeded.
var ErrAllProvidersFailed = errors.New("all providers failed")

// Pair is an ordered primary/secondary provider selection. Secondary may be nil.
type Pair struct {
	Primary   Provider
	Secondary Provider
	logger    *zap.Logger
}

func NewPair(primary, secondary Provider, logger *zap.Logger) *Pair {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pair{Primary: primary, Secondary: secondary, logger: logger}
}

// Names lists the configured providers in call order.
func (p *Pair) Names() []string {
	var names []string
	for _, prov := range []Provider{p.Primary, p.Secondary} {
		if prov != nil {
			names = append(names, prov.Name())
		}
	}
	return names
}

// Run calls fn with the primary provider and, only if that fails, with the
// secondary. It returns fn's result and the name of the provider that produced it.
func Run[T any](ctx context.Context, p *Pair, fn func(context.Context, Provider) (T, error)) (T, string, error) {
	var zero T
	if p == nil || p.Primary == nil {
		return zero, "", ErrNoProvider
	}

	out, primaryErr := fn(ctx, p.Primary)
	if primaryErr == nil {
		return out, p.Primary.Name(), nil
	}
	if p.Secondary == nil {
		return zero, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, primaryErr)
	}
	if ctx.Err() != nil {
		return zero, "", ctx.Err()
	}

	p.logger.Warn("Primary provider failed, falling back",
		zap.String("primary", p.Primary.Name()),
		zap.String("secondary", p.Secondary.Name()),
		zap.Error(primaryErr))

	out, secondaryErr := fn(ctx, p.Secondary)
	if secondaryErr == nil {
		return out, p.Secondary.Name(), nil
	}

	p.logger.Error("Secondary provider failed",
		zap.String("secondary", p.Secondary.Name()),
		zap.Error(secondaryErr))

	return zero, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(primaryErr, secondaryErr))
}
