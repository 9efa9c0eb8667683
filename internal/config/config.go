// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package config loads Marquee's layered configuration: built-in defaults,
// an optional YAML file, then environment variables.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	MediaServer      MediaServerConfig      `koanf:"media_server"`
	Embedding        EmbeddingConfig        `koanf:"embedding"`
	Database         DatabaseConfig         `koanf:"database"`
	Recommend        RecommendConfig        `koanf:"recommend"`
	ContinueWatching ContinueWatchingConfig `koanf:"continue_watching"`
	Library          LibraryConfig          `koanf:"library"`
	Catalog          CatalogConfig          `koanf:"catalog"`
	Jobs             JobsConfig             `koanf:"jobs"`
	Server           ServerConfig           `koanf:"server"`
	Logging          LoggingConfig          `koanf:"logging"`
}

// MediaServerConfig selects and addresses the Jellyfin or Emby server.
type MediaServerConfig struct {
	Type              string        `koanf:"type" validate:"oneof=jellyfin emby"`
	URL               string        `koanf:"url" validate:"required,url"`
	APIKey            string        `koanf:"api_key" validate:"required"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gte=0"`
}

// EmbeddingConfig addresses an OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	Enabled             bool          `koanf:"enabled"`
	BaseURL             string        `koanf:"base_url" validate:"required,url"`
	APIKey              string        `koanf:"api_key"`
	Model               string        `koanf:"model" validate:"required"`
	Dimensions          int           `koanf:"dimensions" validate:"gte=0"`
	Timeout             time.Duration `koanf:"timeout"`
	BatchSize           int           `koanf:"batch_size" validate:"gte=1"`
	RateLimitBackoff    time.Duration `koanf:"rate_limit_backoff"`
	MaxRateLimitRetries int           `koanf:"max_rate_limit_retries" validate:"gte=0"`
	RequestsPerSecond   float64       `koanf:"requests_per_second" validate:"gte=0"`
	Interval            time.Duration `koanf:"interval"`
}

// DatabaseConfig holds DuckDB settings.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// WeightsConfig are the candidate scoring weights. They need not sum to 1.
type WeightsConfig struct {
	Similarity float64 `koanf:"similarity" validate:"gte=0"`
	Novelty    float64 `koanf:"novelty" validate:"gte=0"`
	Rating     float64 `koanf:"rating" validate:"gte=0"`
}

// RecommendConfig controls profile building, scoring and scheduling.
type RecommendConfig struct {
	Enabled             bool                     `koanf:"enabled"`
	Weights             WeightsConfig            `koanf:"weights"`
	UserWeights         map[string]WeightsConfig `koanf:"user_weights"`
	GenreWindow         int                      `koanf:"genre_window" validate:"gte=1"`
	MaxResults          int                      `koanf:"max_results" validate:"gte=1"`
	CandidatePool       int                      `koanf:"candidate_pool" validate:"gte=1"`
	RefreshIntervalDays int                      `koanf:"refresh_interval_days" validate:"gte=1"`
	DiversityLambda     float64                  `koanf:"diversity_lambda" validate:"gte=0,lte=1"`
	Interval            time.Duration            `koanf:"interval"`
	MaxConcurrentUsers  int                      `koanf:"max_concurrent_users" validate:"gte=1"`
	RunOnStartup        bool                     `koanf:"run_on_startup"`
	MediaKinds          []string                 `koanf:"media_kinds"`
}

// ContinueWatchingConfig controls the staggered resume poller.
type ContinueWatchingConfig struct {
	Enabled            bool          `koanf:"enabled"`
	PollInterval       time.Duration `koanf:"poll_interval"`
	ExcludedLibraryIDs []string      `koanf:"excluded_library_ids"`
	MaxItems           int           `koanf:"max_items" validate:"gte=1"`
}

// LibraryConfig controls the on-disk virtual libraries.
type LibraryConfig struct {
	Root                 string            `koanf:"root" validate:"required"`
	NameTemplate         string            `koanf:"name_template" validate:"required"`
	ContinueWatchingName string            `koanf:"continue_watching_name" validate:"required"`
	CacheImages          bool              `koanf:"cache_images"`
	PosterCacheSize      int               `koanf:"poster_cache_size" validate:"gte=0"`
	PosterMaxBytes       int64             `koanf:"poster_max_bytes" validate:"gte=0"`
	PathPrefixMap        map[string]string `koanf:"path_prefix_map"`
}

// CatalogConfig controls catalog and watch history ingestion.
type CatalogConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
	PageSize int           `koanf:"page_size" validate:"gte=1,lte=1000"`
}

// JobsConfig controls the job progress store.
type JobsConfig struct {
	Path      string        `koanf:"path"`
	InMemory  bool          `koanf:"in_memory"`
	Retention time.Duration `koanf:"retention"`
}

// ServerConfig controls the ops listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=0,lte=65535"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// WeightsFor returns the scoring weights for userID, falling back to the
// global weights when the user has no override.
func (c *RecommendConfig) WeightsFor(userID string) WeightsConfig {
	if w, ok := c.UserWeights[userID]; ok {
		return w
	}
	return c.Weights
}
