// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import "time"

// TasteProfile is a user's unit-length preference vector for one media kind.
type TasteProfile struct {
	UserID              string
	Kind                MediaKind
	Embedding           []float32
	Model               string
	AutoUpdatedAt       *time.Time
	UserModifiedAt      *time.Time
	IsLocked            bool
	RefreshIntervalDays int
}

// IsStale reports whether the profile is due for an automatic rebuild.
// A profile that was never auto-built is always stale.
func (p *TasteProfile) IsStale(now time.Time) bool {
	if p.AutoUpdatedAt == nil || len(p.Embedding) == 0 {
		return true
	}
	interval := time.Duration(p.RefreshIntervalDays) * 24 * time.Hour
	return now.Sub(*p.AutoUpdatedAt) > interval
}

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCanceled  = "canceled"
)

// RecommendationRun is the persisted header of one pipeline run.
type RecommendationRun struct {
	ID             string
	UserID         string
	Kind           MediaKind
	Model          string
	Status         string
	StartedAt      time.Time
	FinishedAt     *time.Time
	CandidateCount int
	SelectedCount  int
	Added          int
	Unchanged      int
	Deleted        int
	Failed         int
	Error          string
}

// RecommendationCandidate is one scored candidate of a run. Non-finalists are
// stored with Selected=false so a run can be explained after the fact.
type RecommendationCandidate struct {
	RunID       string
	ItemID      string
	Rank        int
	Selected    bool
	Similarity  *float64
	Novelty     float64
	RatingScore float64
	FinalScore  float64
}

// Library purposes for generated libraries.
const (
	PurposeRecommendations  = "recommendations"
	PurposeContinueWatching = "continue_watching"
)

// VirtualLibrary maps a generated on-disk library to its provider library.
type VirtualLibrary struct {
	UserID            string
	Kind              MediaKind
	Purpose           string
	ProviderLibraryID string
	Name              string
	Path              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
