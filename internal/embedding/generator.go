// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
generator.go - Batch embedding generation

Generator.Run walks the catalog items of one kind that have no vector for
the provider's model, in id order, one batch at a time:

  - every batch is committed before the next one starts, so a crash loses at
    most the batch in flight
  - a rate-limited batch sleeps the fixed backoff and is retried as-is
  - quota exhaustion stops the job; committed batches stay
  - context cancellation and the job's cancel flag are checked between
    batches, never inside one
  - items that cannot be embedded are recorded in Result.Failures and the
    cursor moves past them
*/

//nolint:staticcheck // File documentation, not package doc
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/breaker"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
)

// Store is the persistence the generator needs. *database.DB implements it.
type Store interface {
	ListItemsMissingEmbedding(ctx context.Context, kind models.MediaKind, model, afterID string, limit int) ([]models.CatalogItem, error)
	CountItemsMissingEmbedding(ctx context.Context, kind models.MediaKind, model string) (int, error)
	UpsertEmbeddings(ctx context.Context, kind models.MediaKind, model string, records []database.EmbeddingRecord) error
}

// ItemFailure is one item that could not be embedded.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

// Result summarizes one generator run.
type Result struct {
	JobID    string           `json:"job_id"`
	Kind     models.MediaKind `json:"kind"`
	Model    string           `json:"model"`
	Total    int              `json:"total"`
	Embedded int              `json:"embedded"`
	Failed   int              `json:"failed"`
	Batches  int              `json:"batches"`
	Failures []ItemFailure    `json:"failures,omitempty"`

	// QuotaExhausted is set when the run stopped early on ErrQuotaExhausted.
	QuotaExhausted bool `json:"quota_exhausted"`
	// Canceled is set when the job's cancel flag stopped the run.
	Canceled bool `json:"canceled"`
}

// Processed is the number of items the run has dealt with.
func (r *Result) Processed() int { return r.Embedded + r.Failed }

// GeneratorConfig tunes batching and rate-limit handling.
type GeneratorConfig struct {
	BatchSize           int
	RateLimitBackoff    time.Duration
	MaxRateLimitRetries int
}

// GeneratorConfigFrom extracts the generator settings from cfg.
func GeneratorConfigFrom(cfg *config.EmbeddingConfig) GeneratorConfig {
	return GeneratorConfig{
		BatchSize:           cfg.BatchSize,
		RateLimitBackoff:    cfg.RateLimitBackoff,
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
	}
}

// Generator fills the embedding tables.
type Generator struct {
	store    Store
	provider Provider
	tracker  jobs.Reporter
	cfg      GeneratorConfig
	logger   zerolog.Logger

	// sleep waits out a rate-limit backoff; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGenerator creates a generator. A nil provider means embeddings are not
// configured; Run then fails with ErrMissingAPIKey.
func NewGenerator(store Store, provider Provider, tracker jobs.Reporter, cfg GeneratorConfig) *Generator {
	cfg.BatchSize = ClampBatchSize(cfg.BatchSize)
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 30 * time.Second
	}
	if cfg.MaxRateLimitRetries < 0 {
		cfg.MaxRateLimitRetries = 0
	}
	return &Generator{
		store:    store,
		provider: provider,
		tracker:  tracker,
		cfg:      cfg,
		logger:   logging.WithComponent("embedding-generator"),
		sleep:    sleepContext,
	}
}

// Model returns the active model id, or "" when no provider is configured.
func (g *Generator) Model() string {
	if g.provider == nil {
		return ""
	}
	return g.provider.Model()
}

// Run embeds every item of kind that is missing a vector for the active
// model. The returned Result is non-nil whenever a job was started, even
// when err is set.
func (g *Generator) Run(ctx context.Context, kind models.MediaKind) (*Result, error) {
	if g.provider == nil {
		return nil, ErrMissingAPIKey
	}
	model := g.provider.Model()

	total, err := g.store.CountItemsMissingEmbedding(ctx, kind, model)
	if err != nil {
		return nil, fmt.Errorf("count items missing embeddings: %w", err)
	}

	job, err := g.tracker.Start(ctx, jobs.KindEmbedding, "", total)
	if err != nil {
		return nil, fmt.Errorf("start embedding job: %w", err)
	}

	res := &Result{JobID: job.ID, Kind: kind, Model: model, Total: total}
	log := g.logger.With().Str("job_id", job.ID).Str("kind", string(kind)).Str("model", model).Logger()
	log.Info().Int("total", total).Int("batch_size", g.cfg.BatchSize).Msg("Embedding generation started")

	err = g.run(ctx, kind, model, job.ID, res, &log)
	g.finish(ctx, job.ID, res, err, &log)
	return res, err
}

func (g *Generator) run(ctx context.Context, kind models.MediaKind, model, jobID string, res *Result, log *zerolog.Logger) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cancel, err := g.tracker.CancelRequested(ctx, jobID); err == nil && cancel {
			res.Canceled = true
			return nil
		}

		items, err := g.store.ListItemsMissingEmbedding(ctx, kind, model, cursor, g.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list items missing embeddings: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		cursor = items[len(items)-1].ID

		if err := g.processBatch(ctx, kind, model, items, res, log); err != nil {
			return err
		}
		res.Batches++

		if err := g.tracker.Progress(ctx, jobID, res.Processed(), res.Failed); err != nil {
			log.Warn().Err(err).Msg("Failed to record embedding progress")
		}
	}
}

// processBatch embeds and commits one batch. A returned error stops the run.
func (g *Generator) processBatch(ctx context.Context, kind models.MediaKind, model string, items []models.CatalogItem, res *Result, log *zerolog.Logger) error {
	batch := make([]models.CatalogItem, 0, len(items))
	texts := make([]string, 0, len(items))
	for i := range items {
		text := CanonicalText(&items[i])
		if items[i].Title == "" && items[i].SeriesName == "" {
			res.addFailure(&items[i], "item has no title to embed")
			continue
		}
		batch = append(batch, items[i])
		texts = append(texts, text)
	}
	if len(batch) == 0 {
		return nil
	}

	vectors, err := g.embedWithRetry(ctx, kind, texts, log)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuotaExhausted):
			res.QuotaExhausted = true
			return err
		case errors.Is(err, ErrRateLimited),
			errors.Is(err, ErrUnauthorized),
			errors.Is(err, ErrMissingAPIKey),
			breaker.Rejected(err),
			ctx.Err() != nil:
			return err
		}
		// Anything else is confined to this batch.
		log.Warn().Err(err).Int("items", len(batch)).Msg("Embedding batch failed, skipping")
		for i := range batch {
			res.addFailure(&batch[i], err.Error())
		}
		return nil
	}

	records := make([]database.EmbeddingRecord, len(batch))
	for i := range batch {
		records[i] = database.EmbeddingRecord{
			ItemID:        batch[i].ID,
			Vector:        vectors[i],
			CanonicalText: texts[i],
		}
	}
	if err := g.store.UpsertEmbeddings(ctx, kind, model, records); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	res.Embedded += len(records)
	return nil
}

// embedWithRetry retries the same batch after a fixed backoff while the
// provider reports a rate limit, up to MaxRateLimitRetries times.
func (g *Generator) embedWithRetry(ctx context.Context, kind models.MediaKind, texts []string, log *zerolog.Logger) ([][]float32, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		vectors, err := g.provider.Embed(ctx, texts)
		switch {
		case err == nil:
			metrics.RecordEmbeddingBatch(metrics.StatusSuccess, string(kind), len(texts), time.Since(start))
			return vectors, nil
		case errors.Is(err, ErrRateLimited):
			metrics.RecordEmbeddingBatch("rate_limited", string(kind), len(texts), time.Since(start))
			if attempt >= g.cfg.MaxRateLimitRetries {
				return nil, fmt.Errorf("giving up after %d rate-limit retries: %w", attempt, err)
			}
			log.Warn().Int("attempt", attempt+1).Dur("backoff", g.cfg.RateLimitBackoff).Msg("Embedding provider rate limited, backing off")
			if err := g.sleep(ctx, g.cfg.RateLimitBackoff); err != nil {
				return nil, err
			}
		case errors.Is(err, ErrQuotaExhausted):
			metrics.RecordEmbeddingBatch("quota_exhausted", string(kind), len(texts), time.Since(start))
			return nil, err
		default:
			metrics.RecordEmbeddingBatch(metrics.StatusFailure, string(kind), len(texts), time.Since(start))
			return nil, err
		}
	}
}

func (g *Generator) finish(ctx context.Context, jobID string, res *Result, runErr error, log *zerolog.Logger) {
	// The run context may already be done; terminal job updates still need
	// to land.
	ctx = context.WithoutCancel(ctx)

	summary := fmt.Sprintf("embedded %d, failed %d, batches %d", res.Embedded, res.Failed, res.Batches)
	var err error
	switch {
	case res.Canceled:
		err = g.tracker.Cancel(ctx, jobID, "canceled by request: "+summary)
		log.Info().Str("summary", summary).Msg("Embedding generation canceled")
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		err = g.tracker.Cancel(ctx, jobID, runErr.Error()+": "+summary)
		log.Info().Err(runErr).Str("summary", summary).Msg("Embedding generation stopped")
	case runErr != nil:
		err = g.tracker.Fail(ctx, jobID, fmt.Errorf("%w (%s)", runErr, summary))
		log.Error().Err(runErr).Str("summary", summary).Msg("Embedding generation failed")
	default:
		err = g.tracker.Complete(ctx, jobID, summary)
		log.Info().Str("summary", summary).Msg("Embedding generation completed")
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record embedding job outcome")
	}
}

func (r *Result) addFailure(item *models.CatalogItem, reason string) {
	r.Failed++
	r.Failures = append(r.Failures, ItemFailure{ItemID: item.ID, Title: item.Title, Reason: reason})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
