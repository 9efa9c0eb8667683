// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/marquee/internal/metrics"
)

var errBoom = errors.New("boom")

func TestDo_ReturnsTypedResult(t *testing.T) {
	b := New("test-typed", Settings{})

	got, err := Do(b, func() ([]string, error) {
		return []string{"a", "b"}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(got) != 2 || got[0] != "a" {
		t.Errorf("Do() = %v, want [a b]", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerRequests.WithLabelValues("test-typed", "success")); got != 1 {
		t.Errorf("success requests = %v, want 1", got)
	}
}

func TestDo_TripsAfterFailureRatio(t *testing.T) {
	b := New("test-trip", Settings{MinRequests: 4, FailureRatio: 0.5, Timeout: time.Hour})

	for i := 0; i < 4; i++ {
		if err := Run(b, func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: error = %v, want errBoom", i, err)
		}
	}

	if !b.IsOpen() {
		t.Fatalf("State() = %s, want open", b.State())
	}

	err := Run(b, func() error { return nil })
	if !Rejected(err) {
		t.Errorf("Run() on open breaker error = %v, want rejection", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Run() error = %v, want ErrOpenState", err)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-trip")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerTransitions.WithLabelValues("test-trip", "closed", "open")); got != 1 {
		t.Errorf("closed->open transitions = %v, want 1", got)
	}
}

func TestDo_IsSuccessfulKeepsBreakerClosed(t *testing.T) {
	errHandled := errors.New("handled upstream")
	b := New("test-handled", Settings{
		MinRequests:  2,
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errHandled) },
	})

	for i := 0; i < 5; i++ {
		if err := Run(b, func() error { return errHandled }); !errors.Is(err, errHandled) {
			t.Fatalf("call %d: error = %v, want errHandled", i, err)
		}
	}
	if b.IsOpen() {
		t.Error("breaker opened on errors classified as successful")
	}
}

func TestStateHelpers(t *testing.T) {
	tests := []struct {
		state gobreaker.State
		str   string
		val   float64
	}{
		{gobreaker.StateClosed, "closed", 0},
		{gobreaker.StateHalfOpen, "half-open", 1},
		{gobreaker.StateOpen, "open", 2},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := stateToString(tt.state); got != tt.str {
				t.Errorf("stateToString() = %q, want %q", got, tt.str)
			}
			if got := stateToFloat(tt.state); got != tt.val {
				t.Errorf("stateToFloat() = %v, want %v", got, tt.val)
			}
		})
	}
}
