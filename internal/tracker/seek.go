// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// SeekMergeWindow is how close, in ms, a seeking event must follow the
// previous one to be folded into the same seek.
const SeekMergeWindow = 2000

// Seek counts seeks and their latency.
type Seek struct {
	host        Host
	startedAt   int64
	lastSeeking int64
}

// NewSeek attaches a seek tracker to h.
func NewSeek(h Host) *Seek {
	s := &Seek{host: h}
	h.On(event.Seeking, func(_ event.Name, data record.Record) { s.seeking(viewerTime(h, data)) })
	h.On(event.Seeked, func(_ event.Name, data record.Record) { s.seeked(viewerTime(h, data)) })
	h.On(event.ViewEnd, func(_ event.Name, data record.Record) {
		if h.State().Seeking {
			h.Emit(event.Seeked, record.Record{"viewer_time": viewerTime(h, data)})
		}
	})
	h.On(event.ViewInit, func(event.Name, record.Record) { h.State().Seeking = false })
	return s
}

func (s *Seek) seeking(now int64) {
	st := s.host.State()
	if st.Seeking && now-s.lastSeeking <= SeekMergeWindow {
		s.lastSeeking = now
		return
	}
	if st.Seeking {
		// The open seek never saw seeked; it ends where the new one starts.
		s.accumulate(now)
	}
	st.Seeking = true
	s.startedAt = now
	s.lastSeeking = now
	s.host.Data().Add("view_seek_count", 1)
}

func (s *Seek) seeked(now int64) {
	st := s.host.State()
	if !st.Seeking {
		return
	}
	st.Seeking = false
	s.accumulate(now)
}

// accumulate adds the seek open since startedAt to the view totals.
func (s *Seek) accumulate(now int64) {
	if now < s.startedAt {
		return
	}
	d := float64(now - s.startedAt)
	data := s.host.Data()
	data.Add("view_seek_duration", d)
	maxField(data, "view_max_seek_time", d)
}
