// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package monitor

import (
	"math"
	"net"
	"net/url"
	"strings"

	"github.com/tomtom215/viewbeacon/internal/record"
)

// MSEURL replaces data: and blob: source URLs, which can be megabytes long
// and carry nothing useful.
const MSEURL = "MSE style URL"

var integerFields = []string{
	"player_width", "player_height",
	"player_source_width", "player_source_height",
	"video_source_width", "video_source_height", "video_source_bitrate",
}

var urlFields = []string{"video_source_url", "player_source_url"}

// programTimeFields only make sense for live streams.
var programTimeFields = []string{
	"player_program_time",
	"player_manifest_newest_program_time",
	"player_live_edge_program_time",
}

// sanitize coerces dimension fields to integers, dropping non-numeric
// values, and masks in-memory source URLs.
func sanitize(r record.Record) {
	for _, k := range integerFields {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		f, ok := record.ToFloat(v)
		if !ok || math.IsInf(f, 0) {
			delete(r, k)
			continue
		}
		r[k] = int64(f)
	}
	for _, k := range urlFields {
		if s, ok := r.String(k); ok && (strings.HasPrefix(s, "data:") || strings.HasPrefix(s, "blob:")) {
			r[k] = MSEURL
		}
	}
}

// prepareOutgoing derives and strips fields on a copy of the record that
// is about to be sent.
func prepareOutgoing(out record.Record) {
	if !out.Has("video_source_is_live") {
		if d, ok := out.Float("video_source_duration"); ok {
			out["video_source_is_live"] = math.IsInf(d, 1)
		}
	}
	if !out.Bool("video_source_is_live") {
		for _, k := range programTimeFields {
			delete(out, k)
		}
	}

	if raw, ok := out.String("video_source_url"); ok && raw != MSEURL {
		if host := hostname(raw); host != "" {
			if !out.Has("video_source_hostname") {
				out["video_source_hostname"] = host
			}
			if !out.Has("video_source_domain") {
				out["video_source_domain"] = domain(host)
			}
		}
	}

	delete(out, "ad_request_id")

	for k, v := range out {
		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case float32:
			f = float64(n)
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			delete(out, k)
		}
	}
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// domain returns the last two labels of host, or host itself for IPs.
func domain(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
