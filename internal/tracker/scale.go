// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"math"

	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

type dimensions struct {
	playerW, playerH, sourceW, sourceH float64
}

func readDimensions(data record.Record) dimensions {
	return dimensions{
		playerW: data.FloatOr("player_width", 0),
		playerH: data.FloatOr("player_height", 0),
		sourceW: data.FloatOr("video_source_width", 0),
		sourceH: data.FloatOr("video_source_height", 0),
	}
}

func (d dimensions) valid() bool {
	return d.playerW > 0 && d.playerH > 0 && d.sourceW > 0 && d.sourceH > 0
}

// Scale measures how far the rendered video was scaled up or down,
// weighted by the content time played at each scale.
type Scale struct {
	host         Host
	lastPosition float64
	last         dimensions
}

// NewScale attaches an upscale/downscale tracker to h.
func NewScale(h Host) *Scale {
	s := &Scale{host: h, lastPosition: -1}
	onEach(h, []event.Name{
		event.PlaybackHeartbeat, event.PlaybackHeartbeatEnd,
		event.RenditionChange, event.OrientationChange,
	}, func(event.Name, record.Record) { s.update() })
	h.On(event.ViewInit, func(event.Name, record.Record) { s.lastPosition = -1 })
	return s
}

func (s *Scale) update() {
	data := s.host.Data()
	pos := data.FloatOr("view_content_playback_time", 0)
	current := readDimensions(data)

	if s.lastPosition >= 0 {
		elapsed := pos - s.lastPosition
		if elapsed < 0 {
			s.lastPosition = -1
			s.last = current
			return
		}
		if elapsed > 0 && s.last.valid() {
			scale := math.Min(s.last.playerW/s.last.sourceW, s.last.playerH/s.last.sourceH)
			up := math.Max(0, scale-1)
			down := math.Max(0, 1-scale)

			maxField(data, "view_max_upscale_percentage", up)
			maxField(data, "view_max_downscale_percentage", down)
			data.Add("view_total_content_playback_time", elapsed)
			data.Add("view_total_upscaling", up*elapsed)
			data.Add("view_total_downscaling", down*elapsed)
		}
	}
	s.lastPosition = pos
	s.last = current
}

// Rendition counts bitrate switches within a view.
type Rendition struct {
	host    Host
	bitrate float64
	has     bool
}

// NewRendition attaches a rendition change counter to h.
func NewRendition(h Host) *Rendition {
	r := &Rendition{host: h}
	h.On(event.RenditionChange, func(event.Name, record.Record) {
		data := h.Data()
		b, ok := data.Float("video_source_bitrate")
		if !ok {
			return
		}
		if r.has && b != r.bitrate {
			data.Add("view_rendition_change_count", 1)
		}
		r.bitrate = b
		r.has = true
	})
	h.On(event.ViewInit, func(event.Name, record.Record) { r.has = false })
	return r
}
