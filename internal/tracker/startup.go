// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// Startup measures time to first frame, aggregate startup time and player
// startup time.
type Startup struct {
	host        Host
	firstFrame  bool
	playerReady bool
}

// NewStartup attaches a startup time tracker to h.
func NewStartup(h Host) *Startup {
	s := &Startup{host: h}
	onEach(h, []event.Name{event.Playing, event.AdPlaying}, func(_ event.Name, data record.Record) {
		s.firstFrameAt(viewerTime(h, data))
	})
	h.On(event.PlayerReady, func(_ event.Name, data record.Record) { s.ready(viewerTime(h, data)) })
	h.On(event.ViewInit, func(event.Name, record.Record) { s.firstFrame = false })
	return s
}

func (s *Startup) firstFrameAt(now int64) {
	if s.firstFrame {
		return
	}
	data := s.host.Data()
	start, ok := data.Int("view_start")
	if !ok || now < start {
		return
	}
	s.firstFrame = true
	ttff := now - start
	data["view_time_to_first_frame"] = ttff

	// Aggregate startup only makes sense when playback began without a
	// user gesture.
	if !data.Bool("player_autoplay_on") {
		return
	}
	if pageLoad, ok := data.Int("page_load_init_time"); ok && pageLoad > 0 && start >= pageLoad {
		data["view_aggregate_startup_time"] = start + ttff - pageLoad
	}
}

func (s *Startup) ready(now int64) {
	if s.playerReady {
		return
	}
	data := s.host.Data()
	if initAt, ok := data.Int("player_init_time"); ok && now >= initAt {
		s.playerReady = true
		data["player_startup_time"] = now - initAt
	}
}
