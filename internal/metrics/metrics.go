// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/viewbeacon/internal/event"
)

var (
	// Dispatcher Metrics
	BeaconQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewbeacon_queue_length",
			Help: "Events waiting in dispatcher queues",
		},
	)

	BeaconEventsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "viewbeacon_events_queued_total",
			Help: "Total number of events accepted into a dispatcher queue",
		},
	)

	BeaconEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewbeacon_events_dropped_total",
			Help: "Total number of events dropped before transmission",
		},
		[]string{"reason"}, // reason: "queue_full", "oversize", "redundant", "shrink"
	)

	BeaconBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewbeacon_batches_total",
			Help: "Total number of beacon batches by outcome",
		},
		[]string{"result"}, // result: "success", "failure", "dropped"
	)

	BeaconBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "viewbeacon_batch_events",
			Help:    "Number of events per transmitted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 200, 300},
		},
	)

	BeaconRoundTrip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "viewbeacon_round_trip_seconds",
			Help:    "Round-trip time of successful beacon POSTs",
			Buckets: prometheus.DefBuckets,
		},
	)

	BeaconConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewbeacon_consecutive_failures",
			Help: "Consecutive failed POSTs of the most recently active dispatcher",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Collector Metrics
	CollectorBeacons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewbeacon_collector_beacons_total",
			Help: "Total number of beacon POSTs received by the collector",
		},
		[]string{"result"}, // result: "accepted", "rejected"
	)

	CollectorEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "viewbeacon_collector_events_total",
			Help: "Total number of events received by the collector",
		},
		[]string{"event"},
	)

	CollectorPayloadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "viewbeacon_collector_payload_bytes",
			Help:    "Size of beacon bodies received by the collector",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MB
		},
	)

	// Collector HTTP Metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "viewbeacon_http_request_duration_seconds",
			Help:    "Collector HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "viewbeacon_http_active_requests",
			Help: "Collector HTTP requests currently being served",
		},
	)
)

// RecordBatch records the outcome of one beacon POST.
func RecordBatch(result string, events int, rtt time.Duration) {
	BeaconBatches.WithLabelValues(result).Inc()
	if result != "success" {
		return
	}
	BeaconBatchSize.Observe(float64(events))
	BeaconRoundTrip.Observe(rtt.Seconds())
}

// RecordDropped records events dropped for reason.
func RecordDropped(reason string, n int) {
	if n <= 0 {
		return
	}
	BeaconEventsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordIngest records one event received by the collector. Unknown event
// names share the "other" label to bound cardinality.
func RecordIngest(name string) {
	n := event.Name(name)
	if !event.Sent(n) && n != event.RateExceeded {
		name = "other"
	}
	CollectorEvents.WithLabelValues(name).Inc()
}

// RecordHTTPRequest records one finished collector request. route is the
// matched route pattern, never the raw path.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// TrackActiveRequest moves the in-flight gauge.
func TrackActiveRequest(start bool) {
	if start {
		HTTPActiveRequests.Inc()
		return
	}
	HTTPActiveRequests.Dec()
}
