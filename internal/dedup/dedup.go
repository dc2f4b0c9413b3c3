// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package dedup trims outgoing view records down to the fields that changed
// since the last beacon, then abbreviates and queues them.
package dedup

import (
	"bytes"
	"errors"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/wire"
)

// ErrQueueFull is returned by Send when the event was not queued because
// the dispatcher overflowed during this view.
var ErrQueueFull = errors.New("dedup: beacon queue full")

// FullResendAfterMs forces a full record when this long has passed since
// the previous beacon.
const FullResendAfterMs = 600_000

// AlwaysResend lists fields that are sent with every beacon even when unchanged.
var AlwaysResend = map[string]bool{
	"env_key":                         true,
	"view_id":                         true,
	"view_sequence_number":            true,
	"player_sequence_number":          true,
	"beacon_domain":                   true,
	"player_playhead_time":            true,
	"viewer_time":                     true,
	"mux_api_version":                 true,
	"event":                           true,
	"video_id":                        true,
	"player_instance_id":              true,
	"player_error_code":               true,
	"player_error_message":            true,
	"player_error_context":            true,
	"player_error_severity":           true,
	"player_error_business_exception": true,
	"view_playing_time_ms_cumulative": true,
	"view_content_playback_time":      true,
	"view_ad_playback_time":           true,
}

// AdEvents are the ad events that always carry AdIdentityFields.
var AdEvents = map[event.Name]bool{
	event.AdRequest:       true,
	event.AdResponse:      true,
	event.AdPlay:          true,
	event.AdPlaying:       true,
	event.AdPause:         true,
	event.AdFirstQuartile: true,
	event.AdMidpoint:      true,
	event.AdThirdQuartile: true,
	event.AdEnded:         true,
}

// AdIdentityFields are resent on every AdEvents beacon.
var AdIdentityFields = map[string]bool{
	"ad_id":           true,
	"ad_creative_id":  true,
	"ad_universal_id": true,
}

// renditionPrefix fields are resent on every renditionchange beacon.
const renditionPrefix = "video_source_"

// Queue is the destination of deduplicated, abbreviated beacons.
type Queue interface {
	// QueueEvent appends a beacon and reports whether the queue was below
	// capacity before the insertion.
	QueueEvent(name event.Name, fields record.Record) bool

	// FlushEvents transmits the queue now.
	FlushEvents(isLastEventRedundant bool)
}

// Sender holds the previously transmitted record for one monitor.
// It is not safe for concurrent use; the owning monitor serializes calls.
type Sender struct {
	queue Queue
	log   *logging.Limited

	previous    record.Record
	lastSentMs  int64
	rateLimited bool
}

// NewSender creates a Sender writing to q.
func NewSender(q Queue, log *logging.Limited) *Sender {
	return &Sender{queue: q, log: log}
}

// Send deduplicates full against the previous beacon, abbreviates the
// result and queues it. full must already carry the "event" field.
func (s *Sender) Send(name event.Name, full record.Record, nowMs int64) error {
	if s.rateLimited {
		return ErrQueueFull
	}

	var err error
	out := s.Filter(name, full, nowMs)
	if !s.queue.QueueEvent(name, s.encode(out)) {
		s.rateLimited = true
		err = ErrQueueFull
		s.log.Warn().Err(err).Str("event", string(name)).Msg("dropping events for the rest of the view")
		s.queue.QueueEvent(event.RateExceeded, s.encode(rateExceededMarker(full)))
	}

	if event.Flushes(name) {
		s.queue.FlushEvents(false)
	}
	return err
}

// Filter returns the fields of full that must be transmitted and records
// full as the new baseline.
func (s *Sender) Filter(name event.Name, full record.Record, nowMs int64) record.Record {
	var out record.Record
	if s.needsFullRecord(name, full, nowMs) {
		out = full.Clone()
	} else {
		out = diff(name, s.previous, full)
	}

	s.lastSentMs = nowMs
	if name == event.ViewEnd {
		s.previous = nil
	} else {
		s.previous = full.Clone()
	}
	return out
}

// Reset drops the baseline and leaves rate-limited mode. Called when a new
// view starts.
func (s *Sender) Reset() {
	s.previous = nil
	s.rateLimited = false
}

// RateLimited reports whether the queue overflowed during this view.
func (s *Sender) RateLimited() bool { return s.rateLimited }

func (s *Sender) needsFullRecord(name event.Name, full record.Record, nowMs int64) bool {
	if id, _ := full.String("view_id"); id == "-1" {
		return true
	}
	if name == event.ViewStart || name == event.ViewEnd {
		return true
	}
	return s.previous == nil || nowMs-s.lastSentMs >= FullResendAfterMs
}

func (s *Sender) encode(r record.Record) record.Record {
	return wire.EncodeRecord(r, func(segment string) {
		s.log.Debug().Str("segment", segment).Msg("no abbreviation for field segment")
	})
}

func diff(name event.Name, previous, full record.Record) record.Record {
	out := make(record.Record)
	for k, v := range full {
		prev, had := previous[k]
		switch {
		case AlwaysResend[k]:
		case AdEvents[name] && AdIdentityFields[k]:
		case name == event.RenditionChange && strings.HasPrefix(k, renditionPrefix):
		case !had || !equal(prev, v):
		default:
			continue
		}
		out[k] = v
	}
	return out
}

// equal compares numbers and other scalars by value and composite values
// (request headers, ad request lists) by their JSON encoding.
func equal(a, b any) bool {
	fa, aNum := number(a)
	fb, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}

	switch a.(type) {
	case nil, string, bool:
		return a == b
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

func number(v any) (float64, bool) {
	if _, ok := v.(string); ok {
		return 0, false
	}
	return record.ToFloat(v)
}

func rateExceededMarker(full record.Record) record.Record {
	marker := record.Record{}
	for k := range AlwaysResend {
		if v, ok := full[k]; ok {
			marker[k] = v
		}
	}
	marker["event"] = string(event.RateExceeded)
	return marker
}
