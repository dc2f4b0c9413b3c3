// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"time"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// SleepThreshold is the tick gap that is treated as the device sleeping.
const SleepThreshold = 30 * time.Second

var (
	heartbeatStart = []event.Name{
		event.Play, event.Playing, event.AdPlay, event.AdPlaying,
		event.RebufferStart, event.DeviceWake,
	}
	heartbeatStop = []event.Name{
		event.Pause, event.Ended, event.Error, event.AdPause, event.AdEnded,
		event.AdError, event.ViewEnd, event.DeviceSleep,
	}
)

// Heartbeat emits playbackheartbeat on a fixed interval while playback is
// active and playbackheartbeatend when it stops.
type Heartbeat struct {
	host     Host
	interval time.Duration
	timer    clock.Timer
	gen      int
	lastTick int64
}

// NewHeartbeat attaches a playback heartbeat to h.
func NewHeartbeat(h Host, interval time.Duration) *Heartbeat {
	hb := &Heartbeat{host: h, interval: interval}
	onEach(h, heartbeatStart, func(event.Name, record.Record) { hb.start() })
	onEach(h, heartbeatStop, func(_ event.Name, data record.Record) { hb.stop(viewerTime(h, data)) })
	h.On(event.ViewInit, func(event.Name, record.Record) { hb.cancel() })
	return hb
}

// Running reports whether the heartbeat is ticking.
func (hb *Heartbeat) Running() bool { return hb.timer != nil }

func (hb *Heartbeat) start() {
	if hb.timer != nil {
		return
	}
	hb.lastTick = hb.host.Now()
	hb.schedule()
	hb.host.Emit(event.PlaybackHeartbeat, nil)
}

// schedule arms the next tick. A tick from a cancelled timer that already
// started firing sees a newer generation and does nothing.
func (hb *Heartbeat) schedule() {
	gen := hb.gen
	hb.timer = hb.host.AfterFunc(hb.interval, func() { hb.tick(gen) })
}

func (hb *Heartbeat) tick(gen int) {
	if hb.timer == nil || gen != hb.gen {
		return
	}
	now := hb.host.Now()
	if now-hb.lastTick > SleepThreshold.Milliseconds() {
		slept := hb.lastTick
		hb.host.Log().Info().Int64("gap_ms", now-slept).Msg("device sleep detected")
		hb.host.Emit(event.DeviceSleep, record.Record{"viewer_time": slept})
		hb.host.Emit(event.DeviceWake, record.Record{"viewer_time": now})
		return
	}
	hb.lastTick = now
	hb.schedule()
	hb.host.Emit(event.PlaybackHeartbeat, nil)
}

// stop ends the heartbeat, stamping the end event at t.
func (hb *Heartbeat) stop(t int64) {
	if hb.timer == nil {
		return
	}
	hb.cancel()
	hb.host.Emit(event.PlaybackHeartbeatEnd, record.Record{"viewer_time": t})
}

func (hb *Heartbeat) cancel() {
	hb.gen++
	if hb.timer != nil {
		hb.timer.Stop()
		hb.timer = nil
	}
}
