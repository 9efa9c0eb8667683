// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package embedding

import (
	"context"
	"errors"

	"github.com/tomtom215/marquee/internal/breaker"
)

// CircuitBreakerProvider guards a Provider with a circuit breaker. Rate
// limits, quota exhaustion and caller cancellation are handled by the
// generator and do not count as provider failures.
type CircuitBreakerProvider struct {
	provider Provider
	cb       *breaker.Breaker
}

var _ Provider = (*CircuitBreakerProvider)(nil)

// NewCircuitBreakerProvider wraps p.
func NewCircuitBreakerProvider(p Provider) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		provider: p,
		cb: breaker.New("embedding-api", breaker.Settings{
			IsSuccessful: countsAsSuccess,
		}),
	}
}

func countsAsSuccess(err error) bool {
	return err == nil ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrQuotaExhausted) ||
		errors.Is(err, ErrTooManyInputs) ||
		errors.Is(err, context.Canceled)
}

// Embed calls the wrapped provider through the breaker.
func (p *CircuitBreakerProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return breaker.Do(p.cb, func() ([][]float32, error) {
		return p.provider.Embed(ctx, texts)
	})
}

// Model returns the wrapped provider's model.
func (p *CircuitBreakerProvider) Model() string { return p.provider.Model() }

// State exposes the breaker state for readiness reporting.
func (p *CircuitBreakerProvider) State() string { return p.cb.State() }
