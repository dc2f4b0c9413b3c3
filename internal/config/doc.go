// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

/*
Package config holds viewbeacon's options and loads them.

Options configure one player monitor: rebuffer thresholds, heartbeat
cadence, beacon endpoint, sampling, privacy switches and dispatcher
tuning. CollectorConfig configures the reference beacon collector, and
LoggingConfig the process logger.

# Sources

Load layers three sources, later ones winning:

 1. Built-in defaults (DefaultConfig)
 2. An optional YAML file (VIEWBEACON_CONFIG, or config.yaml in the
    working directory, or /etc/viewbeacon/config.yaml)
 3. VIEWBEACON_* environment variables

# Environment Variables

Monitor:
  - VIEWBEACON_DEBUG: Lower the SDK log level to debug
  - VIEWBEACON_BEACON_DOMAIN: Beacon domain (default: litix.io)
  - VIEWBEACON_BEACON_COLLECTION_DOMAIN: Collector host or URL override
  - VIEWBEACON_SAMPLE_RATE: Fraction of viewers reported (default: 1)
  - VIEWBEACON_MINIMUM_REBUFFER_DURATION: Shortest reported stall in ms (default: 250)
  - VIEWBEACON_SUSTAINED_REBUFFER_THRESHOLD: Frozen playhead time in ms before a stall is reported (default: 1000)
  - VIEWBEACON_PLAYBACK_HEARTBEAT_TIME_MS: Playback heartbeat interval in ms (default: 25)
  - VIEWBEACON_DISABLE_COOKIES, VIEWBEACON_RESPECT_DO_NOT_TRACK, VIEWBEACON_DO_NOT_TRACK
  - VIEWBEACON_DISABLE_REBUFFER_TRACKING, VIEWBEACON_DISABLE_PLAYHEAD_REBUFFER_TRACKING
  - VIEWBEACON_MAX_QUEUE_LENGTH, VIEWBEACON_MAX_BEACON_SIZE, VIEWBEACON_MAX_PAYLOAD_KB_SIZE
  - VIEWBEACON_BASE_TIME_BETWEEN_BEACONS, VIEWBEACON_MAX_BACKOFF (durations, e.g. 10s)
  - VIEWBEACON_STORAGE_PATH: Badger directory for viewer identity (empty keeps it in memory)

Collector:
  - VIEWBEACON_LISTEN_ADDR (default: :8080)
  - VIEWBEACON_RATE_LIMIT_REQUESTS, VIEWBEACON_RATE_LIMIT_WINDOW
  - VIEWBEACON_CORS_ORIGINS: Comma-separated allowed origins
  - VIEWBEACON_MAX_BODY_BYTES

Logging:
  - VIEWBEACON_LOG_LEVEL, VIEWBEACON_LOG_FORMAT, VIEWBEACON_LOG_CALLER
*/
package config
