// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Task is one scheduled unit of work.
type Task func(ctx context.Context) error

// ScheduledServiceConfig controls when a task runs.
type ScheduledServiceConfig struct {
	// RunOnStartup runs the task as soon as the service starts.
	RunOnStartup bool

	// Interval between runs. Default: 24h.
	Interval time.Duration

	// Timeout bounds one run. Zero means no limit beyond the service context.
	Timeout time.Duration
}

// ScheduledService runs a task on a fixed interval under suture. A failed run
// is logged and retried on the next tick; it never crashes the service.
type ScheduledService struct {
	name   string
	task   Task
	config ScheduledServiceConfig
	logger zerolog.Logger
}

// NewScheduledService creates a scheduled service.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewScheduledService(name string, task Task, cfg ScheduledServiceConfig, logger zerolog.Logger) *ScheduledService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &ScheduledService{
		name:   name,
		task:   task,
		config: cfg,
		logger: logger.With().Str("service", name).Logger(),
	}
}

// Serve implements suture.Service.
func (s *ScheduledService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("run_on_startup", s.config.RunOnStartup).
		Dur("interval", s.config.Interval).
		Msg("Scheduled service starting")

	if s.config.RunOnStartup {
		s.run(ctx, "startup")
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduled service shutting down")
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx, "schedule")
		}
	}
}

func (s *ScheduledService) run(ctx context.Context, trigger string) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.task(ctx); err != nil {
		if ctx.Err() != nil {
			s.logger.Info().Err(err).Str("trigger", trigger).Msg("Scheduled run interrupted")
			return
		}
		s.logger.Warn().Err(err).Str("trigger", trigger).Dur("duration", time.Since(start)).Msg("Scheduled run failed")
		return
	}
	s.logger.Info().Str("trigger", trigger).Dur("duration", time.Since(start)).Msg("Scheduled run complete")
}

// String returns the service name for logging.
func (s *ScheduledService) String() string {
	return s.name
}
