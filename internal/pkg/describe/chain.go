package describe

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Chain tries an ordered list of providers under a single timeout budget.
// The first provider that returns a non-empty result wins.
type Chain struct {
	providers []Provider
	budget    time.Duration
}

// NewChain creates a fallback chain. The budget covers the whole chain,
// not each provider individually.
func NewChain(budget time.Duration, providers ...Provider) *Chain {
	return &Chain{providers: providers, budget: budget}
}

// Describe runs the chain. A nil error with an empty Result is possible
// when no provider is configured.
func (c *Chain) Describe(ctx context.Context, imageData []byte) (Result, error) {
	if len(c.providers) == 0 {
		return Result{}, nil
	}

	if c.budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.budget)
		defer cancel()
	}

	var errs []error
	for _, p := range c.providers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		res, err := p.Describe(ctx, imageData)
		if err != nil {
			log.Warn().Err(err).Str("provider", p.Name()).Msg("Description provider failed, trying next")
			errs = append(errs, err)
			continue
		}
		if res.Empty() {
			continue
		}
		return res, nil
	}

	return Result{}, errors.Join(errs...)
}
