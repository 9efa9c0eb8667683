// Marquee - Personalized Virtual Libraries for Media Servers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package supervisor runs Marquee's long-lived services under suture v4.

The tree has three layers so that a failure in one does not restart the
others:

	RootSupervisor ("marquee")
	├── IngestSupervisor ("ingest-layer")
	│   └── ingest job (catalog sync, history sync, embedding generation)
	├── PipelineSupervisor ("pipeline-layer")
	│   ├── recommendation scheduler
	│   └── continue-watching poller
	└── OpsSupervisor ("ops-layer")
	    └── ops HTTP listener (/healthz, /readyz, /metrics)

Crashed services are restarted with suture's backoff. Supervisor events are
logged through sutureslog, bridged into zerolog by logging.NewSlogHandler.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddPipelineService(poller)
	tree.AddOpsService(services.NewOpsServer(router, services.OpsServerConfig{Addr: ":8090"}, logger))
	return tree.Serve(ctx)

Service wrappers live in the services subpackage.
*/
package supervisor
