// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package collector

import (
	"time"

	"github.com/tomtom215/viewbeacon/internal/cache"
	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// ViewSummary is the collector's running picture of one view. Beacons
// only carry fields that changed, so every field keeps its last reported
// value.
type ViewSummary struct {
	ViewID     string `json:"view_id"`
	EnvKey     string `json:"env_key,omitempty"`
	VideoTitle string `json:"video_title,omitempty"`
	ViewerID   string `json:"viewer_id,omitempty"`

	Events    int    `json:"events"`
	LastEvent string `json:"last_event"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
	Ended     bool   `json:"ended"`

	WatchTime           float64 `json:"view_watch_time"`
	ContentPlaybackTime float64 `json:"view_content_playback_time"`
	RebufferCount       float64 `json:"view_rebuffer_count"`
	RebufferDuration    float64 `json:"view_rebuffer_duration"`
	SeekCount           float64 `json:"view_seek_count"`
	Errors              int     `json:"errors"`
	RateExceeded        bool    `json:"rate_exceeded"`
}

// ViewStore keeps summaries of recently active views.
type ViewStore struct {
	views *cache.LRU[string, ViewSummary]
}

// NewViewStore keeps up to capacity views, forgetting those idle for ttl.
func NewViewStore(capacity int, ttl time.Duration, c clock.Clock) *ViewStore {
	return &ViewStore{views: cache.NewLRU[string, ViewSummary](capacity, ttl, c)}
}

// Apply folds one decoded event into its view summary. Events without a
// view id are ignored and reported false.
func (s *ViewStore) Apply(e record.Record) bool {
	id, _ := e.String("view_id")
	if id == "" {
		return false
	}

	s.views.Update(id, func(v ViewSummary, _ bool) ViewSummary {
		v.ViewID = id
		name, _ := e.String("event")
		v.Events++
		v.LastEvent = name

		if t, ok := e.Int("viewer_time"); ok {
			if v.FirstSeen == 0 || t < v.FirstSeen {
				v.FirstSeen = t
			}
			if t > v.LastSeen {
				v.LastSeen = t
			}
		}
		setString(e, "env_key", &v.EnvKey)
		setString(e, "video_title", &v.VideoTitle)
		setString(e, "mux_viewer_id", &v.ViewerID)
		setFloat(e, "view_watch_time", &v.WatchTime)
		setFloat(e, "view_content_playback_time", &v.ContentPlaybackTime)
		setFloat(e, "view_rebuffer_count", &v.RebufferCount)
		setFloat(e, "view_rebuffer_duration", &v.RebufferDuration)
		setFloat(e, "view_seek_count", &v.SeekCount)

		switch event.Name(name) {
		case event.ViewEnd:
			v.Ended = true
		case event.Error:
			v.Errors++
		case event.RateExceeded:
			v.RateExceeded = true
		}
		return v
	})
	return true
}

// Get returns the summary for a view id.
func (s *ViewStore) Get(id string) (ViewSummary, bool) {
	return s.views.Get(id)
}

// Len returns the number of tracked views.
func (s *ViewStore) Len() int {
	return s.views.Len()
}

// Sweep drops idle views.
func (s *ViewStore) Sweep() int {
	return s.views.CleanupExpired()
}

func setString(e record.Record, key string, dst *string) {
	if s, ok := e.String(key); ok {
		*dst = s
	}
}

func setFloat(e record.Record, key string, dst *float64) {
	if f, ok := e.Float(key); ok {
		*dst = f
	}
}
