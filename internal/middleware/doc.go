// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

/*
Package middleware provides HTTP middleware for the collector.

PrometheusMetrics records request latency and in-flight requests. It labels
by chi route pattern, so /api/v1/views/{viewID} is one series however many
views are read:

	r := chi.NewRouter()
	r.Use(middleware.PrometheusMetrics)

Request IDs, panic recovery, CORS and rate limiting come from chi,
go-chi/cors and go-chi/httprate.
*/
package middleware
