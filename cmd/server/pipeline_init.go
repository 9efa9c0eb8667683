// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/catalog"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/continuewatching"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/embedding"
	"github.com/tomtom215/marquee/internal/jobs"
	"github.com/tomtom215/marquee/internal/library"
	"github.com/tomtom215/marquee/internal/mediaserver"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/recommend"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

// embeddingKinds is the order the embedding service fills the vector tables.
var embeddingKinds = []models.MediaKind{models.KindMovie, models.KindSeries, models.KindEpisode}

// pipelineComponents holds everything initPipeline wired into the tree.
type pipelineComponents struct {
	Catalog   *catalog.Syncer
	Generator *embedding.Generator
	Engine    *recommend.Engine
	Poller    *continuewatching.Poller
}

// initPipeline builds the ingest and materialization components and adds
// their services to the supervisor tree. Disabled sections add nothing.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func initPipeline(cfg *config.Config, db *database.DB, provider mediaserver.Provider,
	tracker *jobs.Tracker, logger zerolog.Logger, tree *supervisor.SupervisorTree) (*pipelineComponents, error) {
	var posters library.PosterSource
	if cfg.Library.CacheImages {
		posters = library.NewPosterCache(cfg.Library.PosterCacheSize, cfg.Library.PosterMaxBytes, nil)
	}
	writer := library.NewWriter(library.NewPathMapper(cfg.Library.PathPrefixMap), posters)
	publisher := library.NewPublisher(provider, db)

	comps := &pipelineComponents{
		Catalog: catalog.NewSyncer(provider, db, tracker, cfg.Catalog.PageSize),
	}

	if cfg.Catalog.Enabled {
		tree.AddIngestService(services.NewScheduledService("catalog-sync",
			catalogTask(comps.Catalog),
			services.ScheduledServiceConfig{RunOnStartup: true, Interval: cfg.Catalog.Interval},
			logger))
		logger.Info().Dur("interval", cfg.Catalog.Interval).Msg("Catalog sync added to supervisor tree")
	} else {
		logger.Info().Msg("Catalog sync disabled (CATALOG_ENABLED=false)")
	}

	if cfg.Embedding.Enabled {
		client, err := embedding.NewClient(&cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("create embedding client: %w", err)
		}
		comps.Generator = embedding.NewGenerator(db, embedding.NewCircuitBreakerProvider(client),
			tracker, embedding.GeneratorConfigFrom(&cfg.Embedding))
		tree.AddIngestService(services.NewScheduledService("embedding-generator",
			embeddingTask(comps.Generator, logger),
			services.ScheduledServiceConfig{RunOnStartup: true, Interval: cfg.Embedding.Interval},
			logger))
		logger.Info().
			Str("model", cfg.Embedding.Model).
			Dur("interval", cfg.Embedding.Interval).
			Msg("Embedding generator added to supervisor tree")
	} else {
		logger.Info().Msg("Embedding generation disabled (EMBEDDING_ENABLED=false)")
	}

	if cfg.Recommend.Enabled {
		engine, err := recommend.NewEngine(recommend.Deps{
			Store:     db,
			Provider:  provider,
			Writer:    writer,
			Publisher: publisher,
			Model:     cfg.Embedding.Model,
			Recommend: cfg.Recommend,
			Library:   cfg.Library,
		})
		if err != nil {
			return nil, fmt.Errorf("create recommendation engine: %w", err)
		}
		comps.Engine = engine
		tree.AddPipelineService(services.NewScheduledService("recommendations",
			engine.RunAll,
			services.ScheduledServiceConfig{RunOnStartup: cfg.Recommend.RunOnStartup, Interval: cfg.Recommend.Interval},
			logger))
		logger.Info().
			Int("max_results", cfg.Recommend.MaxResults).
			Float64("diversity_lambda", cfg.Recommend.DiversityLambda).
			Dur("interval", cfg.Recommend.Interval).
			Msg("Recommendation engine added to supervisor tree")
	} else {
		logger.Info().Msg("Recommendation engine disabled (RECOMMEND_ENABLED=false)")
	}

	if cfg.ContinueWatching.Enabled {
		syncer := continuewatching.NewSyncer(provider, db, writer, publisher, cfg.ContinueWatching, cfg.Library)
		comps.Poller = continuewatching.NewPoller(syncer, provider, cfg.ContinueWatching.PollInterval)
		tree.AddPipelineService(comps.Poller)
		logger.Info().
			Dur("poll_interval", cfg.ContinueWatching.PollInterval).
			Int("max_items", cfg.ContinueWatching.MaxItems).
			Msg("Continue-watching poller added to supervisor tree")
	} else {
		logger.Info().Msg("Continue watching disabled (CONTINUE_WATCHING_ENABLED=false)")
	}

	return comps, nil
}

// catalogTask refreshes the catalog, then every user's watch history.
func catalogTask(syncer *catalog.Syncer) services.Task {
	return func(ctx context.Context) error {
		if _, err := syncer.SyncCatalog(ctx); err != nil {
			return fmt.Errorf("catalog sync: %w", err)
		}
		if err := syncer.SyncAllHistory(ctx); err != nil {
			return fmt.Errorf("history sync: %w", err)
		}
		return nil
	}
}

// embeddingTask embeds each kind in turn. An exhausted quota ends the run
// quietly; the next tick retries.
//
//nolint:gocritic // hugeParam: logger passed by value for zerolog chaining
func embeddingTask(gen *embedding.Generator, logger zerolog.Logger) services.Task {
	return func(ctx context.Context) error {
		for _, kind := range embeddingKinds {
			res, err := gen.Run(ctx, kind)
			switch {
			case errors.Is(err, embedding.ErrQuotaExhausted):
				logger.Warn().Str("kind", string(kind)).Msg("Embedding quota exhausted, stopping until next run")
				return nil
			case err != nil:
				return fmt.Errorf("embed %s: %w", kind, err)
			case res != nil && res.Failed > 0:
				logger.Warn().Str("kind", string(kind)).Int("failed", res.Failed).Msg("Some items could not be embedded")
			}
		}
		return nil
	}
}
