// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package tracker contains the metric trackers that turn playback events
// into view metrics: watch time, rebuffering, seeking, ads, scaling,
// startup time, errors and network requests.
//
// Every tracker subscribes to a Host's event bus when attached and writes
// its results straight into the host's view record. Trackers never lock:
// the host guarantees that handlers and timer callbacks run one at a time.
package tracker

import (
	"time"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/eventbus"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// Host is what a tracker needs from the monitor that owns it.
type Host interface {
	On(name event.Name, h eventbus.Handler) eventbus.Handle
	One(name event.Name, h eventbus.Handler) eventbus.Handle

	// Emit dispatches a synthetic event. viewer_time defaults to now.
	Emit(name event.Name, data record.Record)

	// Data returns the live view record.
	Data() record.Record

	// State returns the playback flags shared between trackers.
	State() *State

	// Now returns the current time in milliseconds since the epoch.
	Now() int64

	// AfterFunc schedules f under the host's serialization.
	AfterFunc(d time.Duration, f func()) clock.Timer

	// AdData returns the player's ad state, if it reports any.
	AdData() (record.Record, bool)

	Log() *logging.Limited

	// EndView sends viewend and ignores further events until the next viewinit.
	EndView()

	// ResetView ends the view and starts a new one carrying over fields
	// with the given prefixes.
	ResetView(keepPrefixes ...string)
}

// State holds playback flags that several trackers read.
type State struct {
	// PlayheadProgressing is set while the player reports playing.
	PlayheadProgressing bool
	Seeking             bool
	AdBreak             bool
	AdPlaying           bool
	Rebuffering         bool

	// Errored is set once a non-warning error was seen in this view.
	Errored bool

	// SuppressSend asks the host to skip sending the current event.
	SuppressSend bool
}

// ErrorTranslator rewrites the error fields of an error event. Returning
// false drops the error event.
type ErrorTranslator func(fields record.Record) (record.Record, bool)

// Config tunes the trackers.
type Config struct {
	MinimumRebufferDuration         time.Duration
	SustainedRebufferThreshold      time.Duration
	PlaybackHeartbeatTime           time.Duration
	DisableRebufferTracking         bool
	DisablePlayheadRebufferTracking bool
	ErrorTranslator                 ErrorTranslator
}

// DefaultConfig returns the default tracker tuning.
func DefaultConfig() Config {
	return Config{
		MinimumRebufferDuration:    250 * time.Millisecond,
		SustainedRebufferThreshold: time.Second,
		PlaybackHeartbeatTime:      25 * time.Millisecond,
	}
}

// Set is every tracker attached to one host.
type Set struct {
	Heartbeat *Heartbeat
	WatchTime *WatchTime
	Playback  *PlaybackTime
	Rebuffer  *Rebuffer
	Seek      *Seek
	Ad        *Ad
	Scale     *Scale
	Rendition *Rendition
	Errors    *Errors
	Startup   *Startup
	Resume    *LongResume
	Network   *Network
}

// Attach subscribes every tracker to h. Handlers that must run after the
// host's own after-phase send should be registered by the host first.
func Attach(h Host, cfg Config) *Set {
	def := DefaultConfig()
	if cfg.MinimumRebufferDuration <= 0 {
		cfg.MinimumRebufferDuration = def.MinimumRebufferDuration
	}
	if cfg.SustainedRebufferThreshold <= 0 {
		cfg.SustainedRebufferThreshold = def.SustainedRebufferThreshold
	}
	if cfg.PlaybackHeartbeatTime <= 0 {
		cfg.PlaybackHeartbeatTime = def.PlaybackHeartbeatTime
	}

	return &Set{
		Resume:    NewLongResume(h),
		Heartbeat: NewHeartbeat(h, cfg.PlaybackHeartbeatTime),
		WatchTime: NewWatchTime(h),
		Playback:  NewPlaybackTime(h),
		Rebuffer:  NewRebuffer(h, cfg),
		Seek:      NewSeek(h),
		Ad:        NewAd(h),
		Scale:     NewScale(h),
		Rendition: NewRendition(h),
		Errors:    NewErrors(h, cfg.ErrorTranslator),
		Startup:   NewStartup(h),
		Network:   NewNetwork(h),
	}
}

// viewerTime reads the event timestamp, falling back to the host clock.
func viewerTime(h Host, data record.Record) int64 {
	if t, ok := data.Int("viewer_time"); ok {
		return t
	}
	return h.Now()
}

func onEach(h Host, names []event.Name, fn eventbus.Handler) {
	for _, n := range names {
		h.On(n, fn)
	}
}

func maxField(r record.Record, key string, v float64) {
	if cur, ok := r.Float(key); !ok || v > cur {
		r[key] = v
	}
}

func minField(r record.Record, key string, v float64) {
	if cur, ok := r.Float(key); !ok || v < cur {
		r[key] = v
	}
}
