// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

/*
Package websocket streams decoded beacon events to live clients.

The collector's consumer hands every event to Hub.BroadcastEvent after
folding it into its view summary. Clients connect to /api/v1/live and may
narrow the stream with ?view_id= or ?env_key=. Each frame is a Message:

	{"type":"event","data":{"event":"playing","view_id":"...", ...}}

A client may send {"type":"ping"} and receives {"type":"pong"}. Clients
that fall 256 frames behind are disconnected rather than slowing the
hub. The hub runs as a suture.Service in the collector's ingest layer.
*/
package websocket
