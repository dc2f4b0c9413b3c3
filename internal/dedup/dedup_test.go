// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package dedup

import (
	"testing"

	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/wire"
)

type queued struct {
	name   event.Name
	fields record.Record
}

type fakeQueue struct {
	capacity int
	events   []queued
	flushes  int
}

func (q *fakeQueue) QueueEvent(name event.Name, fields record.Record) bool {
	below := q.capacity == 0 || len(q.events) < q.capacity
	if below || name == event.RateExceeded {
		q.events = append(q.events, queued{name: name, fields: fields})
	}
	return below
}

func (q *fakeQueue) FlushEvents(bool) { q.flushes++ }

func baseRecord() record.Record {
	return record.Record{
		"env_key":              "abc123",
		"view_id":              "view-1",
		"view_sequence_number": 3,
		"viewer_time":          int64(1_000),
		"event":                "pause",
		"video_title":          "Sintel",
		"video_source_width":   1920,
		"player_width":         640,
	}
}

func TestFilter_FirstEventIsFull(t *testing.T) {
	t.Parallel()

	s := NewSender(&fakeQueue{}, nil)
	full := baseRecord()
	out := s.Filter(event.Pause, full, 1_000)

	if len(out) != len(full) {
		t.Errorf("expected full record on first send, got %d of %d fields", len(out), len(full))
	}
}

func TestFilter_Idempotence(t *testing.T) {
	t.Parallel()

	s := NewSender(&fakeQueue{}, nil)
	full := baseRecord()
	s.Filter(event.Pause, full, 1_000)

	out := s.Filter(event.Pause, full.Clone(), 2_000)
	for k := range out {
		if !AlwaysResend[k] {
			t.Errorf("unchanged field %q was resent", k)
		}
	}
	for _, k := range []string{"env_key", "view_id", "viewer_time", "event"} {
		if _, ok := out[k]; !ok {
			t.Errorf("always-resend field %q missing", k)
		}
	}
	if _, ok := out["video_title"]; ok {
		t.Error("unchanged video_title should be omitted")
	}
}

func TestFilter_ChangedFieldsAndNumericEquality(t *testing.T) {
	t.Parallel()

	s := NewSender(&fakeQueue{}, nil)
	s.Filter(event.Pause, baseRecord(), 1_000)

	next := baseRecord()
	next["player_width"] = 1280
	next["video_source_width"] = 1920.0 // same value, different numeric type
	out := s.Filter(event.Play, next, 2_000)

	if out["player_width"] != 1280 {
		t.Errorf("changed player_width not sent: %v", out)
	}
	if _, ok := out["video_source_width"]; ok {
		t.Error("video_source_width unchanged numerically, should be omitted")
	}
}

func TestFilter_ContextRules(t *testing.T) {
	t.Parallel()

	s := NewSender(&fakeQueue{}, nil)
	full := baseRecord()
	full["ad_id"] = "ad-9"
	full["request_response_headers"] = record.Record{"x-cdn": "edge1"}
	s.Filter(event.AdPlay, full, 1_000)

	out := s.Filter(event.AdPlaying, full.Clone(), 1_500)
	if out["ad_id"] != "ad-9" {
		t.Error("expected ad_id resent on ad event")
	}
	if _, ok := out["request_response_headers"]; ok {
		t.Error("structurally equal request headers should be omitted")
	}
	if _, ok := out["video_source_width"]; ok {
		t.Error("video_source fields only resend on renditionchange")
	}

	out = s.Filter(event.RenditionChange, full.Clone(), 2_000)
	if _, ok := out["video_source_width"]; !ok {
		t.Error("expected video_source_width on renditionchange")
	}
	if _, ok := out["ad_id"]; ok {
		t.Error("ad_id should not be resent on non-ad events")
	}

	changed := full.Clone()
	changed["request_response_headers"] = record.Record{"x-cdn": "edge2"}
	out = s.Filter(event.Pause, changed, 2_500)
	if _, ok := out["request_response_headers"]; !ok {
		t.Error("changed request headers should be sent")
	}
}

func TestFilter_FullRecordTriggers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event event.Name
		gapMs int64
		want  bool
	}{
		{"viewstart", event.ViewStart, 1, true},
		{"viewend", event.ViewEnd, 1, true},
		{"long gap", event.Pause, FullResendAfterMs, true},
		{"short gap", event.Pause, FullResendAfterMs - 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSender(&fakeQueue{}, nil)
			full := baseRecord()
			s.Filter(event.Play, full, 0)

			out := s.Filter(tt.event, full.Clone(), tt.gapMs)
			_, hasTitle := out["video_title"]
			if hasTitle != tt.want {
				t.Errorf("full record = %v, want %v", hasTitle, tt.want)
			}
		})
	}
}

func TestFilter_ViewEndClearsBaseline(t *testing.T) {
	t.Parallel()

	s := NewSender(&fakeQueue{}, nil)
	s.Filter(event.ViewEnd, baseRecord(), 0)

	out := s.Filter(event.Play, baseRecord(), 10)
	if _, ok := out["video_title"]; !ok {
		t.Error("expected full record after viewend")
	}
}

func TestSend_EncodesAndFlushesCriticalEvents(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{}
	s := NewSender(q, nil)

	s.Send(event.Pause, baseRecord(), 0)
	if q.flushes != 0 {
		t.Error("pause should not flush")
	}
	s.Send(event.Ended, baseRecord(), 10)
	if q.flushes != 1 {
		t.Errorf("ended should flush once, got %d", q.flushes)
	}

	if got := q.events[0].fields[wire.Encode("view_id", nil)]; got != "view-1" {
		t.Errorf("expected abbreviated view_id key, got fields %v", q.events[0].fields)
	}
}

func TestSend_OverflowQueuesMarkerOnce(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{capacity: 2}
	s := NewSender(q, nil)

	for i := 0; i < 5; i++ {
		full := baseRecord()
		full["viewer_time"] = int64(i)
		s.Send(event.Heartbeat, full, int64(i))
	}

	if !s.RateLimited() {
		t.Fatal("expected rate-limited mode after overflow")
	}
	markers := 0
	for _, e := range q.events {
		if e.name == event.RateExceeded {
			markers++
		}
	}
	if markers != 1 {
		t.Errorf("expected exactly one %s marker, got %d", event.RateExceeded, markers)
	}

	s.Reset()
	if s.RateLimited() {
		t.Error("Reset should leave rate-limited mode")
	}
}
