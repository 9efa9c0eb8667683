// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package recommend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/library"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/mediaserver"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

// ErrRunInProgress is returned by Run while a run for the same user is active.
var ErrRunInProgress = fmt.Errorf("recommendation run %w", jobs.ErrInProgress)

// Store is the data access the engine needs. database.DB implements it.
type Store interface {
	HistorySource
	EmbeddingSource
	ProfileStore

	ListCandidates(ctx context.Context, filter database.CandidateFilter) ([]models.CandidateItem, error)
	ListEpisodes(ctx context.Context, seriesID string) ([]models.CatalogItem, error)

	CreateRun(ctx context.Context, run *models.RecommendationRun) error
	FinishRun(ctx context.Context, run *models.RecommendationRun) error
	SaveCandidates(ctx context.Context, runID string, candidates []models.RecommendationCandidate) error
}

// LibraryWriter reconciles a library directory.
type LibraryWriter interface {
	Write(ctx context.Context, dir string, items []library.Item) (*library.Result, error)
}

// LibraryPublisher makes a library directory visible on the media server.
type LibraryPublisher interface {
	Publish(ctx context.Context, userID string, target library.Target, result *library.Result) (*models.VirtualLibrary, error)
}

// Deps are the engine's collaborators.
type Deps struct {
	Store     Store
	Provider  mediaserver.Provider
	Writer    LibraryWriter
	Publisher LibraryPublisher
	Model     string
	Recommend config.RecommendConfig
	Library   config.LibraryConfig
	Now       func() time.Time
}

// RunOptions tune a single run.
type RunOptions struct {
	// ForceProfile rebuilds the taste profile even when it is fresh or locked.
	ForceProfile bool
	// UserName names the library; it is looked up when empty.
	UserName string
}

// RunResult describes a finished run.
type RunResult struct {
	RunID          string                 `json:"run_id"`
	UserID         string                 `json:"user_id"`
	Kind           models.MediaKind       `json:"kind"`
	HasProfile     bool                   `json:"has_profile"`
	Candidates     int                    `json:"candidates"`
	Selected       []Candidate            `json:"selected"`
	Library        *library.Result        `json:"library,omitempty"`
	VirtualLibrary *models.VirtualLibrary `json:"virtual_library,omitempty"`
	Failures       []library.ItemFailure  `json:"failures,omitempty"`
}

// Engine runs the recommendation pipeline. It is safe for concurrent use;
// runs for one user are serialized by a non-blocking guard.
type Engine struct {
	deps     Deps
	profiles *ProfileService
	guard    *jobs.Guard
	logger   zerolog.Logger
}

// NewEngine creates an engine.
func NewEngine(deps Deps) (*Engine, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("recommend: store is required")
	case deps.Writer == nil:
		return nil, errors.New("recommend: library writer is required")
	case deps.Publisher == nil:
		return nil, errors.New("recommend: library publisher is required")
	case deps.Model == "":
		return nil, errors.New("recommend: embedding model is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	builder := NewBuilder(deps.Store, deps.Store, deps.Model)
	builder.now = deps.Now
	profiles := NewProfileService(builder, deps.Store, deps.Recommend.RefreshIntervalDays)
	profiles.now = deps.Now

	return &Engine{
		deps:     deps,
		profiles: profiles,
		guard:    jobs.NewGuard(),
		logger:   logging.WithComponent("recommend"),
	}, nil
}

// Kinds returns the configured media kinds, defaulting to movies and series.
func (e *Engine) Kinds() []models.MediaKind {
	var kinds []models.MediaKind
	for _, s := range e.deps.Recommend.MediaKinds {
		k, err := models.ParseMediaKind(s)
		if err != nil || k == models.KindEpisode {
			continue
		}
		kinds = append(kinds, k)
	}
	if len(kinds) == 0 {
		kinds = []models.MediaKind{models.KindMovie, models.KindSeries}
	}
	return kinds
}

// Run produces and publishes the user's library for kind.
func (e *Engine) Run(ctx context.Context, userID string, kind models.MediaKind, opts RunOptions) (*RunResult, error) {
	if kind != models.KindMovie && kind != models.KindSeries {
		return nil, fmt.Errorf("%w: %q", database.ErrUnsupportedKind, kind)
	}

	release, ok := e.guard.TryAcquire(userID)
	if !ok {
		return nil, ErrRunInProgress
	}
	defer release()

	run := &models.RecommendationRun{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Model:     e.deps.Model,
		Status:    models.RunStatusRunning,
		StartedAt: e.deps.Now().UTC(),
	}
	ctx = logging.ContextWithRunID(ctx, run.ID)
	ctx = logging.ContextWithUserID(ctx, userID)

	if err := e.deps.Store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	result, err := e.execute(ctx, run, opts)
	e.finish(ctx, run, result, err)
	return result, err
}

func (e *Engine) execute(ctx context.Context, run *models.RecommendationRun, opts RunOptions) (*RunResult, error) {
	cfg := &e.deps.Recommend
	kind := run.Kind
	result := &RunResult{RunID: run.ID, UserID: run.UserID, Kind: kind}

	profile, err := e.profiles.Get(ctx, run.UserID, kind, opts.ForceProfile)
	if err != nil {
		return result, fmt.Errorf("taste profile: %w", err)
	}
	result.HasProfile = profile != nil

	excluded, err := e.deps.Store.ExcludedLibraries(ctx, run.UserID)
	if err != nil {
		return result, fmt.Errorf("excluded libraries: %w", err)
	}
	history, err := e.deps.Store.WatchedItems(ctx, database.WatchedFilter{
		UserID:             run.UserID,
		Kind:               kind,
		ExcludedLibraryIDs: excluded,
	})
	if err != nil {
		return result, fmt.Errorf("watch history: %w", err)
	}

	pool, err := e.deps.Store.ListCandidates(ctx, database.CandidateFilter{
		UserID:             run.UserID,
		Kind:               kind,
		Model:              e.deps.Model,
		Profile:            profile,
		ExcludedLibraryIDs: excluded,
		Limit:              cfg.CandidatePool,
	})
	if err != nil {
		return result, fmt.Errorf("candidates: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	scored := ScoreCandidates(pool, history, ScoreConfig{
		Weights:     WeightsFrom(cfg.WeightsFor(run.UserID)),
		GenreWindow: cfg.GenreWindow,
	})
	ordered, selected := selectFinalists(scored, NewMMR(cfg.DiversityLambda), cfg.MaxResults)
	result.Candidates = len(ordered)
	result.Selected = ordered[:selected]
	run.CandidateCount = len(ordered)
	run.SelectedCount = selected

	if err := e.deps.Store.SaveCandidates(ctx, run.ID, candidateRecords(run.ID, ordered, selected)); err != nil {
		return result, fmt.Errorf("save candidates: %w", err)
	}

	items, err := e.libraryItems(ctx, kind, result.Selected)
	if err != nil {
		return result, err
	}

	userName := opts.UserName
	if userName == "" {
		userName = e.lookupUserName(ctx, run.UserID)
	}
	target := library.Target{
		Kind:    kind,
		Purpose: models.PurposeRecommendations,
		Name:    config.LibraryName(e.deps.Library.NameTemplate, userName, string(kind)),
		Path:    library.Dir(e.deps.Library.Root, run.UserID, string(kind)),
	}

	written, err := e.deps.Writer.Write(ctx, target.Path, items)
	if err != nil {
		return result, fmt.Errorf("write library: %w", err)
	}
	result.Library = written
	result.Failures = written.Failures

	vl, err := e.deps.Publisher.Publish(ctx, run.UserID, target, written)
	if err != nil {
		return result, fmt.Errorf("publish library: %w", err)
	}
	result.VirtualLibrary = vl
	return result, nil
}

// selectFinalists puts the up-to-k picks first, in pick order, followed by
// the rest in score order, and renumbers ranks to match. It returns the
// reordered slice and the number of finalists.
func selectFinalists(scored []Candidate, mmr *MMR, k int) ([]Candidate, int) {
	picks := mmr.Select(scored, k)
	picked := make([]bool, len(scored))
	ordered := make([]Candidate, 0, len(scored))
	for _, idx := range picks {
		picked[idx] = true
		ordered = append(ordered, scored[idx])
	}
	for i := range scored {
		if !picked[i] {
			ordered = append(ordered, scored[i])
		}
	}
	for i := range ordered {
		ordered[i].Rank = i + 1
	}
	return ordered, len(picks)
}

func candidateRecords(runID string, ordered []Candidate, selected int) []models.RecommendationCandidate {
	records := make([]models.RecommendationCandidate, len(ordered))
	for i := range ordered {
		c := &ordered[i]
		records[i] = models.RecommendationCandidate{
			RunID:       runID,
			ItemID:      c.Item.ID,
			Rank:        c.Rank,
			Selected:    i < selected,
			Similarity:  c.Similarity,
			Novelty:     c.Novelty,
			RatingScore: c.RatingScore,
			FinalScore:  c.FinalScore,
		}
	}
	return records
}

// libraryItems converts finalists to writer items. Series get their episode
// pointers from the catalog.
func (e *Engine) libraryItems(ctx context.Context, kind models.MediaKind, finalists []Candidate) ([]library.Item, error) {
	items := make([]library.Item, 0, len(finalists))
	for i := range finalists {
		c := &finalists[i]
		item := library.FromCatalog(&c.Item, c.Rank)
		item.Kind = kind

		if kind == models.KindSeries {
			episodes, err := e.deps.Store.ListEpisodes(ctx, c.Item.ID)
			if err != nil {
				return nil, fmt.Errorf("episodes for %s: %w", c.Item.ID, err)
			}
			item.Episodes = make([]library.Episode, 0, len(episodes))
			for j := range episodes {
				ep := &episodes[j]
				item.Episodes = append(item.Episodes, library.Episode{
					ID:            ep.ID,
					Title:         ep.Title,
					SeasonNumber:  ep.SeasonNumber,
					EpisodeNumber: ep.EpisodeNumber,
					Path:          ep.Path,
				})
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *Engine) lookupUserName(ctx context.Context, userID string) string {
	if e.deps.Provider == nil {
		return userID
	}
	users, err := e.deps.Provider.GetUsers(ctx)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Could not look up user name; using id")
		return userID
	}
	for i := range users {
		if users[i].ID == userID {
			return users[i].Name
		}
	}
	return userID
}

func (e *Engine) finish(ctx context.Context, run *models.RecommendationRun, result *RunResult, runErr error) {
	finished := e.deps.Now().UTC()
	run.FinishedAt = &finished

	status := metrics.StatusSuccess
	switch {
	case runErr == nil:
		run.Status = models.RunStatusCompleted
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		run.Status = models.RunStatusCanceled
		run.Error = runErr.Error()
		status = metrics.StatusCanceled
	default:
		run.Status = models.RunStatusFailed
		run.Error = runErr.Error()
		status = metrics.StatusFailure
	}
	if result != nil && result.Library != nil {
		run.Added = result.Library.Added
		run.Unchanged = result.Library.Unchanged
		run.Deleted = result.Library.Deleted
		run.Failed = result.Library.Failed
	}

	if err := e.deps.Store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to record run result")
	}
	metrics.RecordRecommendationRun(string(run.Kind), status, finished.Sub(run.StartedAt), run.CandidateCount)

	ev := logging.Ctx(ctx).Info()
	if runErr != nil {
		ev = logging.Ctx(ctx).Warn().Err(runErr)
	}
	ev.Str("kind", string(run.Kind)).
		Str("status", run.Status).
		Int("candidates", run.CandidateCount).
		Int("selected", run.SelectedCount).
		Int("added", run.Added).
		Int("deleted", run.Deleted).
		Int("failed", run.Failed).
		Msg("Recommendation run finished")
}

// RunAll runs every enabled user for every configured kind. Users run
// concurrently up to max_concurrent_users; a failing user does not stop the
// others. Only cancellation is returned as an error.
func (e *Engine) RunAll(ctx context.Context) error {
	if e.deps.Provider == nil {
		return errors.New("recommend: media server provider is required for RunAll")
	}
	users, err := e.deps.Provider.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	kinds := e.Kinds()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.deps.Recommend.MaxConcurrentUsers))

	for _, u := range users {
		if u.IsDisabled {
			continue
		}
		g.Go(func() error {
			for _, kind := range kinds {
				if err := gctx.Err(); err != nil {
					return err
				}
				_, err := e.Run(gctx, u.ID, kind, RunOptions{UserName: u.Name})
				switch {
				case err == nil:
				case errors.Is(err, ErrRunInProgress):
					e.logger.Debug().Str("user_id", u.ID).Msg("Run already in progress; skipping")
				case errors.Is(err, context.Canceled):
					return err
				default:
					e.logger.Error().Err(err).Str("user_id", u.ID).Str("kind", string(kind)).Msg("Recommendation run failed")
				}
			}
			return nil
		})
	}
	return g.Wait()
}
