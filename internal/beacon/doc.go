// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package beacon batches abbreviated view events and ships them to the
// collection endpoint.
//
// A POST body looks like:
//
//	{"metadata":{"transmission_timestamp":1718000000000,"rtt_ms":84},
//	 "events":[{"e":"viewstart","xid":"..."}, ...]}
//
// and is sent with Content-Type text/plain. Any network error or non-2xx
// status is a failure: the batch returns to the front of the queue and the
// background interval backs off as 2^(failures-1) * U[1,2) * base.
package beacon
