// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package main is the entry point for the Marquee server.

Marquee builds per-user "Recommended" and "Continue Watching" libraries for
Jellyfin and Emby. It mirrors the server's catalog and watch history into
DuckDB, embeds item metadata through an OpenAI-compatible endpoint, scores
unwatched items against each user's taste profile, and materializes the
winners as .strm/.nfo directories that the media server scans as ordinary
libraries.

# Application Architecture

	RootSupervisor ("marquee")
	├── IngestSupervisor ("ingest-layer")
	│   ├── catalog-sync (catalog + watch history)
	│   └── embedding-generator
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── recommendations (per-user engine runs)
	│   └── continue-watching-poller
	└── OpsSupervisor ("ops-layer")
	    └── ops-http (/healthz, /readyz, /metrics)

Component initialization order:

 1. Configuration: Koanf v2 with defaults, config.yaml and environment
 2. Logging: zerolog with JSON/console output modes
 3. Database: DuckDB
 4. Job tracker: badger-backed progress and cancel flags
 5. Media server client behind a circuit breaker
 6. Pipeline: catalog, embeddings, recommendations, continue watching
 7. Ops HTTP server: chi router

# Configuration

	Priority: Environment variables > Config file > Defaults

	MEDIA_SERVER_TYPE=jellyfin          # jellyfin or emby
	MEDIA_SERVER_URL=http://jellyfin:8096
	MEDIA_SERVER_API_KEY=<api-key>
	EMBEDDING_BASE_URL=http://ollama:11434
	EMBEDDING_MODEL=nomic-embed-text
	LIBRARY_ROOT=/data/virtual
	LOG_LEVEL=info

# Signal Handling

SIGINT and SIGTERM cancel the root context. The ops listener drains within
SHUTDOWN_TIMEOUT, in-flight runs record a canceled status, and the
job tracker and database are closed last.
*/
package main
