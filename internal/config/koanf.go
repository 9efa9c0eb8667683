// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		MediaServer: MediaServerConfig{
			Type:              "jellyfin",
			URL:               "",
			APIKey:            "",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 10,
		},
		Embedding: EmbeddingConfig{
			Enabled:             true,
			BaseURL:             "https://api.openai.com",
			Model:               "text-embedding-3-small",
			Dimensions:          0, // provider default
			Timeout:             60 * time.Second,
			BatchSize:           50,
			RateLimitBackoff:    30 * time.Second,
			MaxRateLimitRetries: 5,
			RequestsPerSecond:   2,
			Interval:            6 * time.Hour,
		},
		Database: DatabaseConfig{
			Path:      "/data/marquee.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = runtime.NumCPU()
		},
		Recommend: RecommendConfig{
			Enabled: true,
			Weights: WeightsConfig{
				Similarity: 0.5,
				Novelty:    0.3,
				Rating:     0.2,
			},
			GenreWindow:         50,
			MaxResults:          50,
			CandidatePool:       2000,
			RefreshIntervalDays: 7,
			DiversityLambda:     1.0, // 1.0 = pure relevance, MMR disabled
			Interval:            24 * time.Hour,
			MaxConcurrentUsers:  2,
			RunOnStartup:        false,
			MediaKinds:          []string{"movie", "series"},
		},
		ContinueWatching: ContinueWatchingConfig{
			Enabled:            true,
			PollInterval:       5 * time.Minute,
			ExcludedLibraryIDs: []string{},
			MaxItems:           100,
		},
		Library: LibraryConfig{
			Root:                 "/data/libraries",
			NameTemplate:         "{user} - Recommended {kind}",
			ContinueWatchingName: "{user} - Continue Watching",
			CacheImages:          true,
			PosterCacheSize:      512,
			PosterMaxBytes:       10 << 20, // 10MB
		},
		Catalog: CatalogConfig{
			Enabled:  true,
			Interval: 6 * time.Hour,
			PageSize: 100,
		},
		Jobs: JobsConfig{
			Path:      "/data/jobs",
			InMemory:  false,
			Retention: 7 * 24 * time.Hour,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8097,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from three layers, later layers winning:
//  1. defaults from defaultConfig
//  2. an optional YAML file (CONFIG_PATH or DefaultConfigPaths)
//  3. mapped environment variables
func Load() (*Config, error) {
	return load(findConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as env strings.
var sliceConfigPaths = []string{
	"recommend.media_kinds",
	"continue_watching.excluded_library_ids",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names to koanf paths. Unmapped
// variables are ignored so unrelated environment does not leak into config.
var envMappings = map[string]string{
	"media_server_type":    "media_server.type",
	"media_server_url":     "media_server.url",
	"media_server_api_key": "media_server.api_key",
	"media_server_timeout": "media_server.timeout",
	"media_server_rps":     "media_server.requests_per_second",
	"jellyfin_url":         "media_server.url",
	"jellyfin_api_key":     "media_server.api_key",

	"embedding_enabled":            "embedding.enabled",
	"embedding_base_url":           "embedding.base_url",
	"embedding_api_key":            "embedding.api_key",
	"openai_api_key":               "embedding.api_key",
	"embedding_model":              "embedding.model",
	"embedding_dimensions":         "embedding.dimensions",
	"embedding_batch_size":         "embedding.batch_size",
	"embedding_rate_limit_backoff": "embedding.rate_limit_backoff",
	"embedding_max_retries":        "embedding.max_rate_limit_retries",
	"embedding_rps":                "embedding.requests_per_second",
	"embedding_interval":           "embedding.interval",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"recommend_enabled":               "recommend.enabled",
	"recommend_weight_similarity":     "recommend.weights.similarity",
	"recommend_weight_novelty":        "recommend.weights.novelty",
	"recommend_weight_rating":         "recommend.weights.rating",
	"recommend_genre_window":          "recommend.genre_window",
	"recommend_max_results":           "recommend.max_results",
	"recommend_candidate_pool":        "recommend.candidate_pool",
	"recommend_refresh_interval_days": "recommend.refresh_interval_days",
	"recommend_diversity_lambda":      "recommend.diversity_lambda",
	"recommend_interval":              "recommend.interval",
	"recommend_max_concurrent_users":  "recommend.max_concurrent_users",
	"recommend_run_on_startup":        "recommend.run_on_startup",
	"recommend_media_kinds":           "recommend.media_kinds",

	"continue_watching_enabled":       "continue_watching.enabled",
	"continue_watching_poll_interval": "continue_watching.poll_interval",
	"continue_watching_excluded":      "continue_watching.excluded_library_ids",
	"continue_watching_max_items":     "continue_watching.max_items",

	"library_root":                   "library.root",
	"library_name_template":          "library.name_template",
	"library_continue_watching_name": "library.continue_watching_name",
	"library_cache_images":           "library.cache_images",
	"library_poster_cache_size":      "library.poster_cache_size",

	"catalog_enabled":   "catalog.enabled",
	"catalog_interval":  "catalog.interval",
	"catalog_page_size": "catalog.page_size",

	"jobs_path":      "jobs.path",
	"jobs_in_memory": "jobs.in_memory",

	"http_host":        "server.host",
	"http_port":        "server.port",
	"shutdown_timeout": "server.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps MEDIA_SERVER_URL -> media_server.url and so on.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
