// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package services adapts Marquee's components to suture.Service.
//
//   - ScheduledService runs a Task on an interval, optionally at startup. It
//     drives the ingest chain and the recommendation runs.
//   - OpsServer binds and serves the ops handler, draining on shutdown.
//
// The continue-watching poller implements suture.Service itself and needs no
// wrapper.
package services
