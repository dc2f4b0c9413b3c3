// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"sort"
	"strconv"

	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// PrerollThreshold is the content playback time, in ms, below which an ad
// counts as a preroll.
const PrerollThreshold = 1000

// Ad tracks ad requests, responses and plays.
type Ad struct {
	host Host

	generated   int
	requests    map[string]int64
	pending     []string
	breakStart  int64
	newAdPlay   bool
	clicked     bool
	skipped     bool
	prerollLoad bool
}

// NewAd attaches an ad tracker to h.
func NewAd(h Host) *Ad {
	a := &Ad{host: h}
	a.reset()

	h.On(event.AdBreakStart, func(_ event.Name, data record.Record) {
		h.State().AdBreak = true
		a.breakStart = viewerTime(h, data)
	})
	h.On(event.AdBreakEnd, func(event.Name, record.Record) {
		st := h.State()
		st.AdBreak = false
		st.AdPlaying = false
	})
	h.On(event.AdRequest, func(_ event.Name, data record.Record) { a.request(viewerTime(h, data)) })
	h.On(event.AdResponse, func(_ event.Name, data record.Record) { a.response(viewerTime(h, data)) })
	h.On(event.AdPlay, func(event.Name, record.Record) { h.State().AdPlaying = true })
	h.On(event.AdPlaying, func(_ event.Name, data record.Record) { a.playing(viewerTime(h, data)) })
	h.On(event.AdPause, func(event.Name, record.Record) { h.State().AdPlaying = false })
	onEach(h, []event.Name{event.AdEnded, event.AdError}, func(event.Name, record.Record) {
		h.State().AdPlaying = false
		a.newAdPlay = true
		a.clicked = false
		a.skipped = false
	})
	h.On(event.AdClicked, func(event.Name, record.Record) {
		if !a.clicked {
			a.clicked = true
			h.Data().Add("view_ad_clicked_count", 1)
		}
	})
	h.On(event.AdSkipped, func(event.Name, record.Record) {
		if !a.skipped {
			a.skipped = true
			h.Data().Add("view_ad_skipped_count", 1)
		}
	})
	// The request id only describes the event that carried it.
	onEach(h, []event.Name{event.After(event.AdRequest), event.After(event.AdResponse)}, func(event.Name, record.Record) {
		delete(h.Data(), "ad_request_id")
	})
	h.On(event.ViewInit, func(event.Name, record.Record) {
		st := h.State()
		st.AdBreak = false
		st.AdPlaying = false
		a.reset()
	})
	return a
}

func (a *Ad) reset() {
	a.generated = 0
	a.requests = make(map[string]int64)
	a.pending = nil
	a.newAdPlay = true
	a.clicked = false
	a.skipped = false
	a.prerollLoad = false
}

func (a *Ad) isPreroll() bool {
	played, ok := a.host.Data().Float("view_content_playback_time")
	return !ok || played <= PrerollThreshold
}

// requestID returns the id carried by the event or generates one.
func (a *Ad) requestID() string {
	data := a.host.Data()
	if id, ok := data.String("ad_request_id"); ok && id != "" {
		return id
	}
	a.generated++
	id := "generatedAdId" + strconv.Itoa(a.generated)
	data["ad_request_id"] = id
	return id
}

func (a *Ad) request(now int64) {
	id := a.requestID()
	a.requests[id] = now
	a.pending = append(a.pending, id)

	data := a.host.Data()
	data.Add("view_ad_request_count", 1)
	if a.isPreroll() {
		data["view_preroll_requested"] = true
		data.Add("view_preroll_request_count", 1)
	}
	appendSorted(data, "ad_request_list", record.Record{"ad_request_id": id, "viewer_time": now})
}

func (a *Ad) response(now int64) {
	data := a.host.Data()
	id, ok := data.String("ad_request_id")
	if !ok || id == "" {
		if len(a.pending) == 0 {
			return
		}
		id = a.pending[0]
		data["ad_request_id"] = id
	}
	a.removePending(id)

	entry := record.Record{"ad_request_id": id, "viewer_time": now}
	if at, ok := a.requests[id]; ok && now >= at {
		latency := now - at
		entry["ad_response_latency"] = latency
		if a.isPreroll() && !data.Has("view_preroll_request_time") {
			data["view_preroll_request_time"] = latency
		}
	}
	data.Add("view_ad_response_count", 1)
	appendSorted(data, "ad_response_list", entry)
}

func (a *Ad) playing(now int64) {
	a.host.State().AdPlaying = true
	if !a.newAdPlay {
		return
	}
	a.newAdPlay = false

	data := a.host.Data()
	data.Add("view_ad_played_count", 1)
	if a.isPreroll() {
		data["view_preroll_played"] = true
		if !a.prerollLoad && now >= a.breakStart && a.breakStart > 0 {
			a.prerollLoad = true
			data["view_preroll_load_time"] = now - a.breakStart
		}
	}
}

func (a *Ad) removePending(id string) {
	for i, p := range a.pending {
		if p == id {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return
		}
	}
}

// appendSorted adds entry to the list at key, keeping viewer_time order.
func appendSorted(data record.Record, key string, entry record.Record) {
	list, _ := data[key].([]record.Record)
	next := make([]record.Record, len(list), len(list)+1)
	copy(next, list)
	next = append(next, entry)
	sort.SliceStable(next, func(i, j int) bool {
		ti, _ := next[i].Int("viewer_time")
		tj, _ := next[j].Int("viewer_time")
		return ti < tj
	})
	data[key] = next
}
