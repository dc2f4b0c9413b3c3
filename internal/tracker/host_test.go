// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/eventbus"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// testHost is a minimal single-goroutine host that merges payloads into
// the view record the same way the monitor does.
type testHost struct {
	bus      *eventbus.Bus
	data     record.Record
	state    State
	clk      *clock.Fake
	log      *logging.Limited
	logs     *strings.Builder
	ad       record.Record
	ignoring bool
	views    int
	resets   [][]string
	events   []event.Name
	trackers *Set
}

var testEpoch = time.UnixMilli(1_700_000_000_000)

func newTestHost(t *testing.T, cfg Config) *testHost {
	t.Helper()

	logs := &strings.Builder{}
	base := zerolog.New(io.Writer(logs))
	h := &testHost{
		bus:  eventbus.New(),
		data: record.Record{},
		clk:  clock.NewFake(testEpoch),
		logs: logs,
		log:  logging.NewLimited(logging.LimitedConfig{Debug: true, Base: &base}),
	}

	h.bus.On(event.Playing, func(event.Name, record.Record) { h.state.PlayheadProgressing = true })
	for _, n := range []event.Name{event.Pause, event.Ended, event.Error, event.ViewEnd} {
		h.bus.On(n, func(event.Name, record.Record) { h.state.PlayheadProgressing = false })
	}
	h.trackers = Attach(h, cfg)
	return h
}

// offset returns the epoch-relative viewer time for ms.
func offset(ms int64) int64 { return testEpoch.UnixMilli() + ms }

func (h *testHost) On(name event.Name, fn eventbus.Handler) eventbus.Handle { return h.bus.On(name, fn) }

func (h *testHost) One(name event.Name, fn eventbus.Handler) eventbus.Handle {
	return h.bus.One(name, fn)
}

func (h *testHost) Emit(name event.Name, data record.Record) {
	if h.ignoring && name != event.ViewInit {
		return
	}
	p := data.Clone()
	if !p.Has("viewer_time") {
		p["viewer_time"] = h.Now()
	}
	if name == event.ViewInit {
		h.ignoring = false
		h.views++
		h.data.DeletePrefix("view_", "video_", "player_error_", "ad_")
		h.data["view_id"] = "view-" + string(rune('0'+h.views))
	}
	h.data.Merge(p)
	h.events = append(h.events, name)
	h.bus.Emit(name, p)
}

func (h *testHost) Data() record.Record { return h.data }
func (h *testHost) State() *State       { return &h.state }
func (h *testHost) Now() int64          { return clock.NowMillis(h.clk) }

func (h *testHost) AfterFunc(d time.Duration, f func()) clock.Timer { return h.clk.AfterFunc(d, f) }

func (h *testHost) AdData() (record.Record, bool) { return h.ad, h.ad != nil }
func (h *testHost) Log() *logging.Limited         { return h.log }

func (h *testHost) EndView() {
	h.Emit(event.ViewEnd, nil)
	h.ignoring = true
}

func (h *testHost) ResetView(keepPrefixes ...string) {
	h.resets = append(h.resets, keepPrefixes)
	kept := record.Record{}
	for k, v := range h.data {
		for _, p := range keepPrefixes {
			if strings.HasPrefix(k, p) {
				kept[k] = v
			}
		}
	}
	h.Emit(event.ViewEnd, nil)
	h.Emit(event.ViewInit, kept)
}

// count returns how many times name was emitted.
func (h *testHost) count(name event.Name) int {
	n := 0
	for _, e := range h.events {
		if e == name {
			n++
		}
	}
	return n
}

// indexOf returns the position of the first emission of name, or -1.
func (h *testHost) indexOf(name event.Name) int {
	for i, e := range h.events {
		if e == name {
			return i
		}
	}
	return -1
}

// quietConfig uses a heartbeat interval long enough that no timer fires
// during a test that drives heartbeats by hand.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.PlaybackHeartbeatTime = time.Hour
	return cfg
}

// beat advances the clock to ms and emits a heartbeat at that playhead.
func (h *testHost) beat(t *testing.T, ms int64, playhead float64) {
	t.Helper()
	if d := offset(ms) - h.Now(); d > 0 {
		h.clk.Advance(time.Duration(d) * time.Millisecond)
	}
	h.Emit(event.PlaybackHeartbeat, record.Record{"player_playhead_time": playhead})
}
