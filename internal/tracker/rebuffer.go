// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// MaxRebufferDuration is the cumulative rebuffering, in ms, after which a
// view is considered abandoned and ended.
const MaxRebufferDuration = 300000

// rebufferInterrupts end an open rebuffer before the event is reported.
var rebufferInterrupts = []event.Name{
	event.Pause, event.Seeking, event.Ended, event.Error,
	event.AdBreakStart, event.ViewEnd,
}

// Rebuffer accumulates rebuffer counts and durations and, unless disabled,
// detects stalls from a frozen playhead.
type Rebuffer struct {
	host Host
	cfg  Config

	startedAt int64
	forced    bool

	// playhead detector
	checked           bool
	lastChecked       int64
	lastPlayhead      float64
	lastPlayheadMoved int64
}

// NewRebuffer attaches a rebuffer tracker to h.
func NewRebuffer(h Host, cfg Config) *Rebuffer {
	r := &Rebuffer{host: h, cfg: cfg}
	if cfg.DisableRebufferTracking {
		return r
	}

	// Rebuffer state flips in the before phase so that handlers reacting to
	// the event itself already observe it.
	h.On(event.Before(event.RebufferStart), func(_ event.Name, data record.Record) { r.start(viewerTime(h, data)) })
	h.On(event.Before(event.RebufferEnd), func(_ event.Name, data record.Record) { r.end(viewerTime(h, data)) })
	h.On(event.PlaybackHeartbeat, func(_ event.Name, data record.Record) {
		now := viewerTime(h, data)
		if !cfg.DisablePlayheadRebufferTracking {
			r.detect(now)
		}
		r.updateLive(now)
	})
	onEach(h, rebufferInterrupts, func(_ event.Name, data record.Record) {
		r.checked = false
		if h.State().Rebuffering {
			h.Emit(event.RebufferEnd, record.Record{"viewer_time": viewerTime(h, data)})
		}
	})
	h.On(event.ViewInit, func(event.Name, record.Record) {
		r.checked = false
		r.forced = false
		h.State().Rebuffering = false
	})
	return r
}

func (r *Rebuffer) start(now int64) {
	st := r.host.State()
	if st.Rebuffering {
		return
	}
	st.Rebuffering = true
	r.startedAt = now
	data := r.host.Data()
	data.Add("view_rebuffer_count", 1)
	r.updateRatios(data)
}

func (r *Rebuffer) end(now int64) {
	st := r.host.State()
	if !st.Rebuffering {
		return
	}
	st.Rebuffering = false
	data := r.host.Data()
	if now > r.startedAt {
		data.Add("view_rebuffer_duration", float64(now-r.startedAt))
	}
	r.updateRatios(data)
	r.checkForced(data)
}

// updateLive reflects an open rebuffer in view_rebuffer_duration so that
// heartbeats report it before rebufferend arrives.
func (r *Rebuffer) updateLive(now int64) {
	if !r.host.State().Rebuffering || now <= r.startedAt {
		return
	}
	data := r.host.Data()
	data.Add("view_rebuffer_duration", float64(now-r.startedAt))
	r.startedAt = now
	r.updateRatios(data)
	r.checkForced(data)
}

func (r *Rebuffer) updateRatios(data record.Record) {
	watch, ok := data.Float("view_watch_time")
	if !ok || watch <= 0 {
		return
	}
	data["view_rebuffer_frequency"] = data.FloatOr("view_rebuffer_count", 0) / watch
	data["view_rebuffer_percentage"] = data.FloatOr("view_rebuffer_duration", 0) / watch
}

func (r *Rebuffer) checkForced(data record.Record) {
	if r.forced || data.FloatOr("view_rebuffer_duration", 0) <= MaxRebufferDuration {
		return
	}
	r.forced = true
	view, _ := data.String("view_id")
	r.host.Log().Warn().Str("view_id", view).
		Float64("rebuffer_ms", data.FloatOr("view_rebuffer_duration", 0)).
		Msg("rebuffering exceeded limit, ending view")
	r.host.EndView()
}

// detect compares the playhead against the previous heartbeat.
func (r *Rebuffer) detect(now int64) {
	st := r.host.State()
	if st.Seeking || st.AdBreak || !st.PlayheadProgressing {
		r.checked = false
		return
	}
	head, ok := r.host.Data().Float("player_playhead_time")
	if !ok {
		return
	}
	if !r.checked {
		r.checked = true
		r.lastChecked = now
		r.lastPlayhead = head
		r.lastPlayheadMoved = now
		return
	}

	if head != r.lastPlayhead {
		if st.Rebuffering {
			r.host.Emit(event.RebufferEnd, record.Record{"viewer_time": now})
		} else {
			gap := float64(now-r.lastChecked) - (head - r.lastPlayhead)
			if gap > float64(r.cfg.MinimumRebufferDuration.Milliseconds()) {
				r.host.Emit(event.RebufferStart, record.Record{"viewer_time": now - int64(gap)})
				r.host.Emit(event.RebufferEnd, record.Record{"viewer_time": now})
			}
		}
		r.lastPlayhead = head
		r.lastPlayheadMoved = now
	} else if !st.Rebuffering {
		threshold := r.cfg.SustainedRebufferThreshold.Milliseconds()
		if now-r.lastPlayheadMoved > threshold {
			r.host.Emit(event.RebufferStart, record.Record{"viewer_time": r.lastPlayheadMoved + threshold})
		}
	}
	r.lastChecked = now
}
