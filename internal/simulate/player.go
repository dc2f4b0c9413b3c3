// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package simulate

import (
	"sync"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// Player is a synthetic media element. Its playhead advances with the clock
// while it is playing. It implements monitor.StateProvider.
type Player struct {
	clock clock.Clock
	video record.Record

	mu       sync.Mutex
	playhead float64
	playing  bool
	since    int64
}

// NewPlayer creates a paused player at playhead zero. video is merged into
// every state poll, e.g. video_duration and video_source_url.
func NewPlayer(c clock.Clock, video record.Record) *Player {
	return &Player{clock: c, video: video}
}

// SetPlaying starts or stops the playhead.
func (p *Player) SetPlaying(playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.playing = playing
}

// Seek moves the playhead to ms.
func (p *Player) Seek(ms float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	p.playhead = ms
}

// PlayheadTime implements monitor.StateProvider.
func (p *Player) PlayheadTime() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advance()
	return p.playhead, true
}

// StateData implements monitor.StateProvider.
func (p *Player) StateData() record.Record {
	out := p.video.Clone()
	out["player_is_paused"] = !p.isPlaying()
	out["player_width"] = 1280
	out["player_height"] = 720
	return out
}

// AdData implements monitor.StateProvider. The simulator plays no ads.
func (p *Player) AdData() (record.Record, bool) { return nil, false }

func (p *Player) isPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// advance must be called with mu held.
func (p *Player) advance() {
	now := clock.NowMillis(p.clock)
	if p.playing && p.since > 0 {
		p.playhead += float64(now - p.since)
	}
	p.since = now
}
