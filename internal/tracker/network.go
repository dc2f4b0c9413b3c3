// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// RequestFieldPrefix prefixes the per-request fields of network events.
const RequestFieldPrefix = "request_"

// Network derives throughput and latency aggregates from request events.
type Network struct {
	host Host

	throughputSum   float64
	throughputCount int
	latencySum      float64
	latencyCount    int
}

// NewNetwork attaches a network request tracker to h.
func NewNetwork(h Host) *Network {
	n := &Network{host: h}
	h.On(event.RequestCompleted, func(event.Name, record.Record) { n.completed() })
	h.On(event.RequestFailed, func(event.Name, record.Record) {
		h.Data().Add("view_request_failed_count", 1)
	})
	h.On(event.RequestCanceled, func(event.Name, record.Record) {
		h.Data().Add("view_request_canceled_count", 1)
	})
	for _, name := range []event.Name{event.RequestCompleted, event.RequestFailed, event.RequestCanceled} {
		h.On(event.After(name), func(event.Name, record.Record) {
			h.Data().DeletePrefix(RequestFieldPrefix)
		})
	}
	h.On(event.ViewInit, func(event.Name, record.Record) { *n = Network{host: h} })
	return n
}

func (n *Network) completed() {
	data := n.host.Data()
	data.Add("view_request_count", 1)

	start, hasStart := data.Float("request_start")
	respStart, hasRespStart := data.Float("request_response_start")
	respEnd, hasRespEnd := data.Float("request_response_end")
	bytes, hasBytes := data.Float("request_bytes_loaded")

	if hasStart && hasRespStart && respStart >= start {
		latency := respStart - start
		n.latencySum += latency
		n.latencyCount++
		minField(data, "view_min_request_latency", latency)
		maxField(data, "view_max_request_latency", latency)
		data["view_average_request_latency"] = n.latencySum / float64(n.latencyCount)
	}

	if hasBytes && hasRespStart && hasRespEnd && respEnd > respStart {
		throughput := bytes * 8000 / (respEnd - respStart)
		n.throughputSum += throughput
		n.throughputCount++
		minField(data, "view_min_request_throughput", throughput)
		maxField(data, "view_max_request_throughput", throughput)
		data["view_average_request_throughput"] = n.throughputSum / float64(n.throughputCount)
	}
}
