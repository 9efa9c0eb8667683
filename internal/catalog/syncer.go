// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
syncer.go - Catalog and watch history ingestion

SyncCatalog mirrors the media server's movies, series and episodes into the
store; SyncUserHistory mirrors one user's played, favorite and rating state.
Both page through the provider:

  - every page is upserted before the next one is requested
  - progress goes to the job tracker after every page
  - context cancellation and the job's cancel flag are checked between
    pages, never inside one

Re-running either sync is idempotent because every write is an upsert.
*/

//nolint:staticcheck // File documentation, not package doc
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/mediaserver"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

// DefaultPageSize is the number of items requested per provider call.
const DefaultPageSize = 100

// catalogKinds are synced in this order so series exist before episodes.
var catalogKinds = []models.MediaKind{models.KindMovie, models.KindSeries, models.KindEpisode}

// Store is the persistence the syncer needs. *database.DB implements it.
type Store interface {
	UpsertCatalogItems(ctx context.Context, kind models.MediaKind, items []models.CatalogItem) error
	UpsertWatchHistory(ctx context.Context, entries []models.WatchHistoryEntry) error
}

// Source is the part of the media server the syncer reads.
type Source interface {
	GetUsers(ctx context.Context) ([]models.User, error)
	ListItems(ctx context.Context, kind models.MediaKind, start, limit int) (*mediaserver.ItemPage, error)
	ListUserItems(ctx context.Context, userID string, kind models.MediaKind, start, limit int) (*mediaserver.HistoryPage, error)
}

// Result summarizes one sync.
type Result struct {
	JobID    string                   `json:"job_id"`
	UserID   string                   `json:"user_id,omitempty"`
	Total    int                      `json:"total"`
	Synced   map[models.MediaKind]int `json:"synced"`
	Scanned  int                      `json:"scanned"`
	Pages    int                      `json:"pages"`
	Canceled bool                     `json:"canceled"`
}

// Processed is the number of provider items the sync has covered.
func (r *Result) Processed() int { return r.Scanned }

// Syncer ingests catalog and history.
type Syncer struct {
	source   Source
	store    Store
	tracker  jobs.Reporter
	pageSize int
	logger   zerolog.Logger
}

// NewSyncer creates a syncer. pageSize defaults to DefaultPageSize.
func NewSyncer(source Source, store Store, tracker jobs.Reporter, pageSize int) *Syncer {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Syncer{
		source:   source,
		store:    store,
		tracker:  tracker,
		pageSize: pageSize,
		logger:   logging.WithComponent("catalog-sync"),
	}
}

// errCanceledByRequest stops a sync whose job was canceled.
var errCanceledByRequest = errors.New("canceled by request")

// SyncCatalog mirrors every movie, series and episode.
func (s *Syncer) SyncCatalog(ctx context.Context) (*Result, error) {
	job, err := s.tracker.Start(ctx, jobs.KindCatalogSync, "", 0)
	if err != nil {
		return nil, fmt.Errorf("start catalog job: %w", err)
	}
	res := &Result{JobID: job.ID, Synced: make(map[models.MediaKind]int)}
	log := s.logger.With().Str("job_id", job.ID).Logger()
	log.Info().Int("page_size", s.pageSize).Msg("Catalog sync started")

	err = s.syncCatalog(ctx, res, &log)
	s.finish(ctx, res, err, "Catalog sync", &log)
	return res, ignoreRequestedCancel(err)
}

func (s *Syncer) syncCatalog(ctx context.Context, res *Result, log *zerolog.Logger) error {
	for _, kind := range catalogKinds {
		for start := 0; ; {
			if err := s.checkCancel(ctx, res); err != nil {
				return err
			}

			page, err := s.source.ListItems(ctx, kind, start, s.pageSize)
			if err != nil {
				return fmt.Errorf("list %s items at %d: %w", kind, start, err)
			}
			if start == 0 {
				s.addTotal(ctx, res, page.Total, log)
			}
			if len(page.Items) == 0 {
				break
			}

			if err := s.store.UpsertCatalogItems(ctx, kind, page.Items); err != nil {
				return fmt.Errorf("store %s items: %w", kind, err)
			}
			metrics.RecordCatalogItems(string(kind), len(page.Items))
			res.Synced[kind] += len(page.Items)
			res.Scanned += len(page.Items)
			res.Pages++
			s.progress(ctx, res, log)

			start += len(page.Items)
			if page.Total > 0 && start >= page.Total {
				break
			}
		}
	}
	return nil
}

// SyncUserHistory mirrors one user's engagement with movies, series and
// episodes. Only items with any engagement are stored.
func (s *Syncer) SyncUserHistory(ctx context.Context, userID string) (*Result, error) {
	job, err := s.tracker.Start(ctx, jobs.KindHistorySync, userID, 0)
	if err != nil {
		return nil, fmt.Errorf("start history job: %w", err)
	}
	res := &Result{JobID: job.ID, UserID: userID, Synced: make(map[models.MediaKind]int)}
	ctx = logging.ContextWithUserID(ctx, userID)
	log := s.logger.With().Str("job_id", job.ID).Str("user_id", userID).Logger()

	err = s.syncHistory(ctx, userID, res, &log)
	s.finish(ctx, res, err, "History sync", &log)
	return res, ignoreRequestedCancel(err)
}

func (s *Syncer) syncHistory(ctx context.Context, userID string, res *Result, log *zerolog.Logger) error {
	for _, kind := range catalogKinds {
		for start := 0; ; {
			if err := s.checkCancel(ctx, res); err != nil {
				return err
			}

			page, err := s.source.ListUserItems(ctx, userID, kind, start, s.pageSize)
			if err != nil {
				return fmt.Errorf("list %s history at %d: %w", kind, start, err)
			}
			if start == 0 {
				s.addTotal(ctx, res, page.Total, log)
			}
			if page.Scanned == 0 {
				break
			}

			if err := s.store.UpsertWatchHistory(ctx, page.Entries); err != nil {
				return fmt.Errorf("store %s history: %w", kind, err)
			}
			res.Synced[kind] += len(page.Entries)
			res.Scanned += page.Scanned
			res.Pages++
			s.progress(ctx, res, log)

			start += page.Scanned
			if page.Total > 0 && start >= page.Total {
				break
			}
		}
	}
	return nil
}

// SyncAllHistory runs SyncUserHistory for every enabled user. A failing user
// is logged and skipped; the first error is returned after all users ran.
func (s *Syncer) SyncAllHistory(ctx context.Context) error {
	users, err := s.source.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var firstErr error
	for _, u := range users {
		if u.IsDisabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.SyncUserHistory(ctx, u.ID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", u.ID).Msg("History sync failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Syncer) checkCancel(ctx context.Context, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cancel, err := s.tracker.CancelRequested(ctx, res.JobID); err == nil && cancel {
		res.Canceled = true
		return errCanceledByRequest
	}
	return nil
}

func (s *Syncer) addTotal(ctx context.Context, res *Result, n int, log *zerolog.Logger) {
	if n <= 0 {
		return
	}
	res.Total += n
	if err := s.tracker.SetTotal(ctx, res.JobID, res.Total); err != nil {
		log.Warn().Err(err).Msg("Failed to record sync total")
	}
}

func (s *Syncer) progress(ctx context.Context, res *Result, log *zerolog.Logger) {
	if err := s.tracker.Progress(ctx, res.JobID, res.Processed(), 0); err != nil {
		log.Warn().Err(err).Msg("Failed to record sync progress")
	}
}

func (s *Syncer) finish(ctx context.Context, res *Result, runErr error, what string, log *zerolog.Logger) {
	ctx = context.WithoutCancel(ctx)

	summary := fmt.Sprintf("scanned %d, pages %d, movies %d, series %d, episodes %d",
		res.Scanned, res.Pages,
		res.Synced[models.KindMovie], res.Synced[models.KindSeries], res.Synced[models.KindEpisode])

	var err error
	switch {
	case res.Canceled:
		err = s.tracker.Cancel(ctx, res.JobID, "canceled by request: "+summary)
		log.Info().Str("summary", summary).Msg(what + " canceled")
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		err = s.tracker.Cancel(ctx, res.JobID, runErr.Error()+": "+summary)
		log.Info().Err(runErr).Str("summary", summary).Msg(what + " stopped")
	case runErr != nil:
		err = s.tracker.Fail(ctx, res.JobID, fmt.Errorf("%w (%s)", runErr, summary))
		log.Error().Err(runErr).Str("summary", summary).Msg(what + " failed")
	default:
		err = s.tracker.Complete(ctx, res.JobID, summary)
		log.Info().Str("summary", summary).Msg(what + " completed")
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record sync job outcome")
	}
}

func ignoreRequestedCancel(err error) error {
	if errors.Is(err, errCanceledByRequest) {
		return nil
	}
	return err
}
