// Package breaker wraps a model.Provider with a circuit breaker so a failing
// gateway fails fast instead of piling up slow requests. Calls are never
// retried.
package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nstogner/roster/pkg/config"
	"github.com/nstogner/roster/pkg/domain"
	"github.com/nstogner/roster/pkg/model"
)

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// Provider routes every call of the wrapped provider through one breaker.
type Provider struct {
	inner   model.Provider
	breaker *gobreaker.CircuitBreaker[any]
}

var _ model.Provider = (*Provider)(nil)

// New wraps inner. Zero-valued settings fall back to defaults.
func New(inner model.Provider, cfg config.BreakerConfig, logger *slog.Logger) *Provider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "model:" + inner.Name(),
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Configuration problems and caller cancellation say nothing about
		// the health of the gateway.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, domain.ErrConfiguration) ||
				errors.Is(err, context.Canceled)
		},
	})

	return &Provider{inner: inner, breaker: cb}
}

// Name implements model.Provider.
func (p *Provider) Name() string { return p.inner.Name() }

// State returns the current breaker state.
func (p *Provider) State() gobreaker.State { return p.breaker.State() }

// Chat implements model.Provider.
func (p *Provider) Chat(ctx context.Context, req model.Request) (model.Message, error) {
	v, err := p.breaker.Execute(func() (any, error) {
		return p.inner.Chat(ctx, req)
	})
	if err != nil {
		return model.Message{}, p.wrap(err)
	}
	return v.(model.Message), nil
}

// Stream implements model.Provider. The breaker observes the stream as a
// whole: a failure on any fragment counts once.
func (p *Provider) Stream(ctx context.Context, req model.Request) (iter.Seq2[string, error], error) {
	if p.breaker.State() == gobreaker.StateOpen {
		return nil, p.wrap(gobreaker.ErrOpenState)
	}
	return func(yield func(string, error) bool) {
		_, err := p.breaker.Execute(func() (any, error) {
			seq, err := p.inner.Stream(ctx, req)
			if err != nil {
				return nil, err
			}
			for frag, err := range seq {
				if err != nil {
					return nil, err
				}
				if !yield(frag, nil) {
					return nil, nil
				}
			}
			return nil, nil
		})
		if err != nil {
			yield("", p.wrap(err))
		}
	}, nil
}

// Extract implements model.Provider.
func (p *Provider) Extract(ctx context.Context, req model.Request, schema *model.Schema) (json.RawMessage, error) {
	v, err := p.breaker.Execute(func() (any, error) {
		return p.inner.Extract(ctx, req, schema)
	})
	if err != nil {
		return nil, p.wrap(err)
	}
	raw, _ := v.(json.RawMessage)
	return raw, nil
}

func (p *Provider) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: model %q circuit open: %v", domain.ErrProvider, p.inner.Name(), err)
	}
	return err
}
