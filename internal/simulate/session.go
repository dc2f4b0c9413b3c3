// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package simulate drives player monitors through scripted viewing
// sessions. It backs the simulate command and the end-to-end tests.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/config"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/monitor"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// Step is one scripted player action, taken At into the session.
type Step struct {
	At    time.Duration
	// Event is emitted after Apply. Empty means Apply only.
	Event event.Name
	Data  record.Record
	// Apply runs against the player before the event is emitted.
	Apply func(*Player)
}

// Script is a session's steps in time order.
type Script []Step

// WaitFunc blocks for d of session time. Tests pass one that advances a
// fake clock.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Sleep waits on the real clock.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// MinLength is the shortest session DefaultScript can lay out.
const MinLength = 15 * time.Second

// DefaultScript plays a video for length with a seek, a playhead stall, a
// pause and a media request along the way, then ends it. rng varies the
// timings. length is raised to MinLength.
func DefaultScript(length time.Duration, rng *rand.Rand) Script {
	length = max(length, MinLength)
	at := func(frac float64) time.Duration {
		jitter := (rng.Float64() - 0.5) * 0.04
		return time.Duration(float64(length) * (frac + jitter))
	}
	startup := time.Duration(200+rng.IntN(800)) * time.Millisecond
	seekAt, stallAt, pauseAt, resumeAt := at(0.25), at(0.45), at(0.70), at(0.80)
	seekTo := float64(length.Milliseconds()) * 0.5

	return Script{
		{At: 0, Event: event.Play},
		{At: startup, Event: event.RequestCompleted, Data: record.Record{
			"request_type":           "media",
			"request_start":          float64(0),
			"request_response_start": float64(80 + rng.IntN(120)),
			"request_response_end":   float64(400 + rng.IntN(300)),
			"request_bytes_loaded":   float64(250_000 + rng.IntN(750_000)),
		}},
		{At: startup, Event: event.Playing, Apply: func(p *Player) { p.SetPlaying(true) }},
		{At: seekAt, Event: event.Seeking, Apply: func(p *Player) { p.SetPlaying(false) }},
		{At: seekAt + 300*time.Millisecond, Event: event.Seeked, Apply: func(p *Player) { p.Seek(seekTo) }},
		{At: seekAt + 300*time.Millisecond, Event: event.Playing, Apply: func(p *Player) { p.SetPlaying(true) }},
		// The playhead freezes without an event; the heartbeat notices.
		{At: stallAt, Apply: func(p *Player) { p.SetPlaying(false) }},
		{At: stallAt + 2500*time.Millisecond, Apply: func(p *Player) { p.SetPlaying(true) }},
		{At: pauseAt, Event: event.Pause, Apply: func(p *Player) { p.SetPlaying(false) }},
		{At: resumeAt, Event: event.Play},
		{At: resumeAt + 100*time.Millisecond, Event: event.Playing, Apply: func(p *Player) { p.SetPlaying(true) }},
		{At: length, Event: event.Ended, Apply: func(p *Player) { p.SetPlaying(false) }},
	}
}

// Session is one simulated player.
type Session struct {
	ID     string
	Player *Player
	Script Script
}

// NewSession creates a session for player id with a DefaultScript of
// length seeded by seed.
func NewSession(id string, c clock.Clock, length time.Duration, seed uint64) *Session {
	length = max(length, MinLength)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Session{
		ID: id,
		Player: NewPlayer(c, record.Record{
			"video_duration":   length.Milliseconds(),
			"video_source_url": fmt.Sprintf("https://cdn.example.com/vod/%s/index.m3u8", id),
		}),
		Script: DefaultScript(length, rng),
	}
}

// Run registers the session with mg, plays its script and destroys the
// monitor. A canceled ctx ends the view early.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (s *Session) Run(ctx context.Context, mg *monitor.Manager, opts config.Options, wait WaitFunc, log zerolog.Logger) error {
	m, err := mg.Monitor(s.ID, opts, s.Player, nil)
	if err != nil {
		return err
	}
	log.Info().Str("player_id", s.ID).Str("view_id", m.ViewID()).Msg("Session started")

	defer func() {
		if derr := mg.Destroy(s.ID, false); derr != nil {
			log.Warn().Err(derr).Str("player_id", s.ID).Msg("Destroy failed")
		}
		m.Dispatcher().Wait()
	}()

	var elapsed time.Duration
	for _, step := range s.Script {
		if d := step.At - elapsed; d > 0 {
			if err := wait(ctx, d); err != nil {
				return err
			}
			elapsed = step.At
		}
		if step.Apply != nil {
			step.Apply(s.Player)
		}
		if step.Event == "" {
			continue
		}
		if err := mg.Emit(s.ID, step.Event, step.Data.Clone()); err != nil {
			return fmt.Errorf("emit %s: %w", step.Event, err)
		}
	}
	log.Info().Str("player_id", s.ID).Dur("elapsed", elapsed).Msg("Session finished")
	return nil
}
