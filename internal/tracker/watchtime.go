// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// WatchTime accumulates view_watch_time from playback heartbeat deltas.
type WatchTime struct {
	host Host
	last int64
	has  bool
}

// NewWatchTime attaches a watch time tracker to h.
func NewWatchTime(h Host) *WatchTime {
	w := &WatchTime{host: h}
	h.On(event.PlaybackHeartbeat, func(_ event.Name, data record.Record) { w.update(viewerTime(h, data)) })
	h.On(event.PlaybackHeartbeatEnd, func(_ event.Name, data record.Record) {
		w.update(viewerTime(h, data))
		w.has = false
	})
	h.On(event.ViewInit, func(event.Name, record.Record) { w.has = false })
	return w
}

func (w *WatchTime) update(now int64) {
	if w.has && now > w.last {
		w.host.Data().Add("view_watch_time", float64(now-w.last))
	}
	w.last = now
	w.has = true
}
