// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package collector

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tomtom215/viewbeacon/internal/beacon"
	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/config"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/monitor"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/wire"
)

func newTestCollector(t *testing.T, modify func(*config.CollectorConfig)) *Collector {
	t.Helper()
	cfg := config.DefaultConfig().Collector
	if modify != nil {
		modify(&cfg)
	}
	c := New(cfg, zerolog.Nop(), nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func encodedPayload(t *testing.T, events ...record.Record) []byte {
	t.Helper()
	p := beacon.Payload{Metadata: beacon.Metadata{TransmissionTimestamp: 1_700_000_000_000}}
	for _, e := range events {
		p.Events = append(p.Events, wire.EncodeRecord(e, nil))
	}
	body, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func post(t *testing.T, h http.Handler, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", beacon.ContentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a published event")
		return nil
	}
}

func TestHandleBeacon_PublishesDecodedEvents(t *testing.T) {
	c := newTestCollector(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := c.Subscriber().Subscribe(ctx, Topic)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	body := encodedPayload(t,
		record.Record{"event": "viewstart", "view_id": "v1", "view_sequence_number": 1},
		record.Record{"event": "play", "view_id": "v1", "player_playhead_time": 0},
	)
	for _, path := range []string{"/", "/a.gif"} {
		rec := post(t, c.Handler(), path, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("POST %s status = %d, body = %s", path, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"accepted":2`) {
			t.Errorf("POST %s body = %s", path, rec.Body.String())
		}

		for _, want := range []string{"viewstart", "play"} {
			msg := receive(t, msgs)
			if got := msg.Metadata.Get(MetaEvent); got != want {
				t.Errorf("event metadata = %q, want %q", got, want)
			}
			if msg.Metadata.Get(MetaRequestID) == "" {
				t.Error("request id not propagated")
			}
			var e record.Record
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				t.Fatalf("payload: %v", err)
			}
			if id, _ := e.String("view_id"); id != "v1" {
				t.Errorf("decoded view_id = %q", id)
			}
		}
	}
}

func TestHandleBeacon_Rejects(t *testing.T) {
	c := newTestCollector(t, func(cfg *config.CollectorConfig) { cfg.MaxBodyBytes = 256 })

	tests := []struct {
		name string
		body []byte
		want int
	}{
		{"invalid json", []byte("{not json"), http.StatusBadRequest},
		{"no events", []byte(`{"metadata":{"transmission_timestamp":1},"events":[]}`), http.StatusBadRequest},
		{"too large", bytes.Repeat([]byte("x"), 1024), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, c.Handler(), "/", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if !strings.Contains(rec.Body.String(), `"success":false`) {
				t.Errorf("body = %s", rec.Body.String())
			}
		})
	}
}

func TestHandleBeacon_RateLimited(t *testing.T) {
	c := newTestCollector(t, func(cfg *config.CollectorConfig) {
		cfg.RateLimitRequests = 2
		cfg.RateLimitWindow = time.Minute
	})
	h := c.Handler()
	body := encodedPayload(t, record.Record{"event": "hb", "view_id": "v1"})

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, post(t, h, "/", body).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("status codes = %v, want [200 200 429]", codes)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	c := newTestCollector(t, nil)
	h := c.Handler()

	for path, want := range map[string]string{
		"/healthz": `"status":"ok"`,
		"/metrics": "viewbeacon_collector_beacons_total",
	} {
		// Touch the counter so the metric family is exported.
		if path == "/metrics" {
			post(t, h, "/", []byte("{"))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("GET %s missing %s", path, want)
		}
	}
}

func TestConsumer_FoldsEventsIntoViews(t *testing.T) {
	c := newTestCollector(t, nil)
	consumer := NewConsumer(c, zerolog.Nop())

	ch := make(chan *message.Message, 8)
	publish := func(e record.Record) *message.Message {
		data, err := json.Marshal(e)
		if err != nil {
			t.Fatal(err)
		}
		msg := message.NewMessage(watermill.NewUUID(), data)
		name, _ := e.String("event")
		msg.Metadata.Set(MetaEvent, name)
		ch <- msg
		return msg
	}

	msgs := []*message.Message{
		publish(record.Record{"event": "viewstart", "view_id": "v1", "viewer_time": 1000, "video_title": "Sintel"}),
		publish(record.Record{"event": "error", "view_id": "v1", "viewer_time": 1500, "player_error_code": 3}),
		publish(record.Record{"event": "viewend", "view_id": "v1", "viewer_time": 2000, "view_watch_time": 900}),
		publish(record.Record{"event": "hb"}),
	}
	ch <- message.NewMessage(watermill.NewUUID(), []byte("{bad"))
	close(ch)

	if err := consumer.consume(context.Background(), ch); err != nil {
		t.Fatalf("consume() error = %v", err)
	}

	for i, msg := range msgs {
		select {
		case <-msg.Acked():
		default:
			t.Errorf("message %d not acked", i)
		}
	}

	v, ok := c.Views().Get("v1")
	if !ok {
		t.Fatal("view v1 not recorded")
	}
	if v.Events != 3 || v.LastEvent != "viewend" || !v.Ended || v.Errors != 1 {
		t.Errorf("summary = %+v", v)
	}
	if v.FirstSeen != 1000 || v.LastSeen != 2000 || v.VideoTitle != "Sintel" || v.WatchTime != 900 {
		t.Errorf("summary = %+v", v)
	}
	if c.Views().Len() != 1 {
		t.Errorf("views = %d, want 1", c.Views().Len())
	}
}

func TestEndToEnd_MonitorToCollector(t *testing.T) {
	c := newTestCollector(t, nil)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := c.Subscriber().Subscribe(ctx, Topic)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- NewConsumer(c, zerolog.Nop()).consume(ctx, msgs) }()

	opts := config.DefaultOptions()
	opts.BeaconCollectionDomain = srv.URL
	opts.Data = map[string]any{"env_key": "e2e", "video_title": "Tears of Steel"}
	m, err := monitor.New("player-e2e", opts, monitor.Deps{
		Clock:      clock.NewFake(time.UnixMilli(1_700_000_000_000)),
		RandomSeed: 7,
	})
	if err != nil {
		t.Fatalf("monitor.New() error = %v", err)
	}
	viewID := m.ViewID()

	m.Emit(event.Play, nil)
	m.Emit(event.Playing, nil)
	m.Emit(event.Ended, nil)
	m.Destroy(false)
	m.Dispatcher().Wait()

	deadline := time.Now().Add(2 * time.Second)
	var v ViewSummary
	for time.Now().Before(deadline) {
		var ok bool
		if v, ok = c.Views().Get(viewID); ok && v.Ended {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !v.Ended {
		t.Fatalf("view %s never ended at the collector: %+v", viewID, v)
	}
	if v.Events < 5 || v.LastEvent != "viewend" || v.EnvKey != "e2e" || v.VideoTitle != "Tears of Steel" {
		t.Errorf("summary = %+v", v)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/views/"+viewID, nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ended":true`) {
		t.Errorf("GET view = %d %s", rec.Code, rec.Body.String())
	}
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/views/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET unknown view = %d, want 404", rec.Code)
	}

	cancel()
	if err := <-done; err != nil && err != context.Canceled {
		t.Errorf("consume() error = %v", err)
	}
}

func TestLiveTail_StreamsIngestedEvents(t *testing.T) {
	c := newTestCollector(t, nil)
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hubDone := make(chan error, 1)
	go func() { hubDone <- c.Live().Serve(ctx) }()

	msgs, err := c.Subscriber().Subscribe(ctx, Topic)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	go func() { _ = NewConsumer(c, zerolog.Nop()).consume(ctx, msgs) }()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/live?view_id=live-1"
	conn, resp, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	_ = resp.Body.Close()
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for c.Live().ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	body := encodedPayload(t,
		record.Record{"event": "play", "view_id": "other"},
		record.Record{"event": "playing", "view_id": "live-1", "video_title": "Big Buck Bunny"},
	)
	if rec := post(t, c.Handler(), "/", body); rec.Code != http.StatusOK {
		t.Fatalf("POST = %d %s", rec.Code, rec.Body.String())
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type string        `json:"type"`
		Data record.Record `json:"data"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if frame.Type != "event" || frame.Data["event"] != "playing" || frame.Data["video_title"] != "Big Buck Bunny" {
		t.Errorf("frame = %+v, want the live-1 playing event", frame)
	}

	cancel()
	<-hubDone
}
