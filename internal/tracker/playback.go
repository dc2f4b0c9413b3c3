// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// MaxPlaybackDelta is the largest per-heartbeat delta, in ms, that is
// counted as playback. Larger or non-positive deltas are seeks or glitches.
const MaxPlaybackDelta = 1000

// PlaybackTime tracks time spent actually playing content and ads.
type PlaybackTime struct {
	host Host

	lastWall     int64
	lastPlayhead float64
	lastAdHead   float64
	hasWall      bool
	hasPlayhead  bool
	hasAdHead    bool
}

// NewPlaybackTime attaches a playback time tracker to h.
func NewPlaybackTime(h Host) *PlaybackTime {
	p := &PlaybackTime{host: h}
	h.On(event.PlaybackHeartbeat, func(_ event.Name, data record.Record) { p.update(viewerTime(h, data)) })
	h.On(event.PlaybackHeartbeatEnd, func(_ event.Name, data record.Record) {
		p.update(viewerTime(h, data))
		p.reset()
	})
	h.On(event.ViewInit, func(event.Name, record.Record) { p.reset() })
	// Ad and content playheads are unrelated timelines.
	onEach(h, []event.Name{event.AdBreakStart, event.AdBreakEnd, event.AdPlay}, func(event.Name, record.Record) {
		p.hasPlayhead = false
		p.hasAdHead = false
	})
	return p
}

func (p *PlaybackTime) reset() {
	p.hasWall = false
	p.hasPlayhead = false
	p.hasAdHead = false
}

func (p *PlaybackTime) update(now int64) {
	data := p.host.Data()
	st := p.host.State()

	wall := now - p.lastWall
	if p.hasWall && inRange(float64(wall)) && !st.Rebuffering && !st.Seeking {
		data.Add("view_playing_time_ms_cumulative", float64(wall))
	}

	if st.AdBreak {
		p.updateAd(data, wall)
	} else if head, ok := data.Float("player_playhead_time"); ok {
		if p.hasPlayhead {
			if d := head - p.lastPlayhead; inRange(d) {
				data.Add("view_content_playback_time", d)
			}
		}
		maxField(data, "view_max_playhead_position", head)
		p.lastPlayhead = head
		p.hasPlayhead = true
	}

	p.lastWall = now
	p.hasWall = true
}

// updateAd prefers the ad's own playhead and falls back to wall clock time.
func (p *PlaybackTime) updateAd(data record.Record, wall int64) {
	if !p.host.State().AdPlaying {
		p.hasAdHead = false
		return
	}
	if ad, ok := p.host.AdData(); ok {
		if head, ok := ad.Float("ad_playhead_time"); ok {
			if p.hasAdHead {
				if d := head - p.lastAdHead; inRange(d) {
					data.Add("view_ad_playback_time", d)
				}
			}
			p.lastAdHead = head
			p.hasAdHead = true
			return
		}
	}
	if p.hasWall && inRange(float64(wall)) {
		data.Add("view_ad_playback_time", float64(wall))
	}
}

func inRange(d float64) bool {
	return d > 0 && d <= MaxPlaybackDelta
}
