// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package mediaserver

import (
	"context"
	"errors"

	"github.com/tomtom215/marquee/internal/breaker"
	"github.com/tomtom215/marquee/internal/models"
)

// CircuitBreakerProvider guards every network call of a Provider with one
// breaker. Missing resources and caller cancellation are not server faults.
type CircuitBreakerProvider struct {
	provider Provider
	cb       *breaker.Breaker
}

var _ Provider = (*CircuitBreakerProvider)(nil)

// NewCircuitBreakerProvider wraps p. serverType names the breaker
// ("jellyfin-api", "emby-api").
func NewCircuitBreakerProvider(p Provider, serverType string) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		provider: p,
		cb: breaker.New(serverType+"-api", breaker.Settings{
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrNotFound) ||
					errors.Is(err, context.Canceled)
			},
		}),
	}
}

// State exposes the breaker state for readiness reporting.
func (p *CircuitBreakerProvider) State() string { return p.cb.State() }

// Ping checks connectivity through the breaker.
func (p *CircuitBreakerProvider) Ping(ctx context.Context) error {
	return breaker.Run(p.cb, func() error { return p.provider.Ping(ctx) })
}

func (p *CircuitBreakerProvider) GetUsers(ctx context.Context) ([]models.User, error) {
	return breaker.Do(p.cb, func() ([]models.User, error) { return p.provider.GetUsers(ctx) })
}

func (p *CircuitBreakerProvider) GetLibraries(ctx context.Context) ([]models.Library, error) {
	return breaker.Do(p.cb, func() ([]models.Library, error) { return p.provider.GetLibraries(ctx) })
}

func (p *CircuitBreakerProvider) GetResumeItems(ctx context.Context, userID string) ([]models.ResumeItem, error) {
	return breaker.Do(p.cb, func() ([]models.ResumeItem, error) {
		return p.provider.GetResumeItems(ctx, userID)
	})
}

func (p *CircuitBreakerProvider) CreateVirtualLibrary(ctx context.Context, name, path string, kind models.MediaKind) (string, error) {
	return breaker.Do(p.cb, func() (string, error) {
		return p.provider.CreateVirtualLibrary(ctx, name, path, kind)
	})
}

func (p *CircuitBreakerProvider) RefreshLibrary(ctx context.Context, libraryID string) error {
	return breaker.Run(p.cb, func() error { return p.provider.RefreshLibrary(ctx, libraryID) })
}

func (p *CircuitBreakerProvider) GetUserLibraryAccess(ctx context.Context, userID string) (*LibraryAccess, error) {
	return breaker.Do(p.cb, func() (*LibraryAccess, error) {
		return p.provider.GetUserLibraryAccess(ctx, userID)
	})
}

func (p *CircuitBreakerProvider) UpdateUserLibraryAccess(ctx context.Context, userID string, allowed []string) error {
	return breaker.Run(p.cb, func() error {
		return p.provider.UpdateUserLibraryAccess(ctx, userID, allowed)
	})
}

func (p *CircuitBreakerProvider) ListItems(ctx context.Context, kind models.MediaKind, start, limit int) (*ItemPage, error) {
	return breaker.Do(p.cb, func() (*ItemPage, error) {
		return p.provider.ListItems(ctx, kind, start, limit)
	})
}

func (p *CircuitBreakerProvider) ListUserItems(ctx context.Context, userID string, kind models.MediaKind, start, limit int) (*HistoryPage, error) {
	return breaker.Do(p.cb, func() (*HistoryPage, error) {
		return p.provider.ListUserItems(ctx, userID, kind, start, limit)
	})
}

// ImageURL makes no request and bypasses the breaker.
func (p *CircuitBreakerProvider) ImageURL(itemID string) string {
	return p.provider.ImageURL(itemID)
}
