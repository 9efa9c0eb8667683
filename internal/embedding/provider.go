// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package embedding turns catalog metadata into vectors. It defines the
// Provider contract, an OpenAI-compatible HTTP implementation guarded by a
// circuit breaker, and the batch Generator that fills the embedding tables.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Batch size limits for a single Embed call.
const (
	MinBatchSize = 25
	MaxBatchSize = 100
)

var (
	// ErrRateLimited is matched by every *RateLimitError.
	ErrRateLimited = errors.New("embedding provider rate limited")

	// ErrQuotaExhausted means the account cannot make further requests until
	// the quota resets. Remaining batches of the current job are abandoned.
	ErrQuotaExhausted = errors.New("embedding provider quota exhausted")

	// ErrMissingAPIKey is a configuration failure and is never retried.
	ErrMissingAPIKey = errors.New("embedding provider api key is missing")

	// ErrUnauthorized means the provider rejected the configured key.
	ErrUnauthorized = errors.New("embedding provider rejected credentials")

	// ErrTooManyInputs is returned when a call exceeds MaxBatchSize.
	ErrTooManyInputs = fmt.Errorf("embedding batch exceeds %d inputs", MaxBatchSize)
)

// Provider embeds texts. Vectors are returned in input order and share one
// dimension for a given model.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// RateLimitError reports an HTTP 429 that is not a quota failure.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("embedding provider rate limited (retry after %s): %s", e.RetryAfter, e.Message)
	}
	return "embedding provider rate limited: " + e.Message
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// HTTPError is a non-success response that maps to no sentinel.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("embedding provider returned status %d: %s", e.StatusCode, e.Body)
}

// ClampBatchSize bounds n to [MinBatchSize, MaxBatchSize].
func ClampBatchSize(n int) int {
	if n < MinBatchSize {
		return MinBatchSize
	}
	if n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}
