// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

/*
Package metrics provides Prometheus instrumentation for viewbeacon.

# Overview

The package provides metrics for:
  - Beacon dispatcher queue depth, batch outcomes and round-trip time
  - Circuit breaker state in front of the beacon endpoint
  - Collector ingest volume and decode failures

# Metrics Endpoint

The collector exposes every registered metric at /metrics:

	curl http://localhost:8383/metrics

# Usage

Instruments are package-level promauto variables. Prefer the Record*
helpers over touching the vectors directly so label values stay bounded:

	metrics.RecordBatch("success", 42, 180*time.Millisecond)
	metrics.RecordIngest("viewstart")
*/
package metrics
