// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

/*
Package supervisor runs the collector's long-lived services under suture v4.

# Tree

	RootSupervisor ("viewbeacon")
	├── IngestSupervisor ("ingest-layer")
	│   ├── collector.Consumer
	│   └── websocket.Hub (live tail)
	└── APISupervisor ("api-layer")
	    └── services.HTTPServerService

A consumer that returns an error is restarted with suture's backoff while
the HTTP server keeps accepting beacons. Supervisor events are logged
through sutureslog on the process slog logger, which in turn writes
through zerolog.

# Return values

	error or nil             -> service restarted
	suture.ErrDoNotRestart   -> service removed from the tree
	ctx.Err()                -> shutdown requested

# Usage

	tree, _ := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	tree.AddIngestService(collector.NewConsumer(c, log))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err := tree.Serve(ctx)
*/
package supervisor
