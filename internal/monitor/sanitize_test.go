// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package monitor

import (
	"math"
	"testing"

	"github.com/tomtom215/viewbeacon/internal/record"
)

func TestSanitize(t *testing.T) {
	r := record.Record{
		"player_width":        "1280",
		"player_height":       720.6,
		"video_source_width":  "wide",
		"video_source_height": math.Inf(1),
		"video_source_url":    "data:video/mp4;base64,AAAA",
		"player_source_url":   "https://cdn.example.com/a.m3u8",
		"video_title":         "untouched",
	}
	sanitize(r)

	if v, _ := r["player_width"].(int64); v != 1280 {
		t.Errorf("player_width = %#v, want int64 1280", r["player_width"])
	}
	if v, _ := r["player_height"].(int64); v != 720 {
		t.Errorf("player_height = %#v, want int64 720", r["player_height"])
	}
	for _, k := range []string{"video_source_width", "video_source_height"} {
		if _, ok := r[k]; ok {
			t.Errorf("%s = %#v, want removed", k, r[k])
		}
	}
	if u, _ := r.String("video_source_url"); u != MSEURL {
		t.Errorf("video_source_url = %q, want %q", u, MSEURL)
	}
	if u, _ := r.String("player_source_url"); u != "https://cdn.example.com/a.m3u8" {
		t.Errorf("player_source_url = %q", u)
	}
}

func TestPrepareOutgoing(t *testing.T) {
	tests := []struct {
		name  string
		in    record.Record
		check func(t *testing.T, out record.Record)
	}{
		{
			name: "live derived from infinite duration",
			in: record.Record{
				"video_source_duration": math.Inf(1),
				"player_program_time":   int64(1_700_000_000_000),
			},
			check: func(t *testing.T, out record.Record) {
				if !out.Bool("video_source_is_live") {
					t.Error("video_source_is_live = false")
				}
				if !out.Has("player_program_time") {
					t.Error("program time removed from a live stream")
				}
				if _, ok := out["video_source_duration"]; ok {
					t.Error("infinite duration left in outgoing record")
				}
			},
		},
		{
			name: "program time stripped for vod",
			in: record.Record{
				"video_source_duration":               float64(600000),
				"player_program_time":                 int64(1),
				"player_manifest_newest_program_time": int64(2),
				"player_live_edge_program_time":       int64(3),
			},
			check: func(t *testing.T, out record.Record) {
				if out.Bool("video_source_is_live") {
					t.Error("video_source_is_live = true")
				}
				for _, k := range programTimeFields {
					if out.Has(k) {
						t.Errorf("%s sent for a vod view", k)
					}
				}
			},
		},
		{
			name: "hostname and domain",
			in:   record.Record{"video_source_url": "https://edge-3.cdn.example.co:8443/v/1.m3u8"},
			check: func(t *testing.T, out record.Record) {
				if h, _ := out.String("video_source_hostname"); h != "edge-3.cdn.example.co" {
					t.Errorf("hostname = %q", h)
				}
				if d, _ := out.String("video_source_domain"); d != "example.co" {
					t.Errorf("domain = %q", d)
				}
			},
		},
		{
			name: "ip host is its own domain",
			in:   record.Record{"video_source_url": "http://10.0.0.5/stream.mpd"},
			check: func(t *testing.T, out record.Record) {
				if d, _ := out.String("video_source_domain"); d != "10.0.0.5" {
					t.Errorf("domain = %q", d)
				}
			},
		},
		{
			name: "mse url has no host",
			in:   record.Record{"video_source_url": MSEURL},
			check: func(t *testing.T, out record.Record) {
				if out.Has("video_source_hostname") {
					t.Error("hostname derived from a masked url")
				}
			},
		},
		{
			name: "internal and non-finite fields removed",
			in: record.Record{
				"ad_request_id":            "generatedAdId1",
				"view_rebuffer_percentage": math.NaN(),
				"view_watch_time":          float64(1000),
			},
			check: func(t *testing.T, out record.Record) {
				if out.Has("ad_request_id") {
					t.Error("ad_request_id sent")
				}
				if _, ok := out["view_rebuffer_percentage"]; ok {
					t.Error("NaN field sent")
				}
				if w, _ := out.Float("view_watch_time"); w != 1000 {
					t.Errorf("view_watch_time = %v", w)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.in.Clone()
			prepareOutgoing(out)
			tt.check(t, out)
		})
	}
}
