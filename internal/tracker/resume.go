// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// ResumeGap is the silence, in ms, after which the next event starts a new
// view for the same video.
const ResumeGap = 3600000

// LongResume splits a view when playback resumes after a long gap, such as
// a tab left open overnight.
type LongResume struct {
	host Host
	last int64
	has  bool
}

// NewLongResume attaches a long resume detector to h.
func NewLongResume(h Host) *LongResume {
	lr := &LongResume{host: h}
	h.On(event.BeforeAll, func(name event.Name, data record.Record) { lr.observe(name, data) })
	return lr
}

func (lr *LongResume) observe(name event.Name, data record.Record) {
	now := viewerTime(lr.host, data)
	gap := now - lr.last
	hadLast := lr.has
	lr.last = now
	lr.has = true

	if !hadLast || gap <= ResumeGap || name == event.ViewInit || name == event.ViewEnd {
		return
	}
	if _, ok := lr.host.Data().String("view_id"); !ok {
		return
	}

	progressing := lr.host.State().PlayheadProgressing
	lr.host.Log().Info().Int64("gap_ms", gap).Msg("resuming after long gap, starting new view")
	lr.host.ResetView("video_")
	if progressing {
		lr.host.Emit(event.Play, nil)
		lr.host.Emit(event.Playing, nil)
	}
}
