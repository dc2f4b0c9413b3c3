// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	t.Parallel()

	c := NewFake(time.UnixMilli(1_000))
	var fired []int64

	c.AfterFunc(300*time.Millisecond, func() { fired = append(fired, NowMillis(c)) })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, NowMillis(c)) })
	stopped := c.AfterFunc(200*time.Millisecond, func() { t.Error("stopped timer fired") })
	if !stopped.Stop() {
		t.Fatal("expected Stop to report the timer was pending")
	}

	c.Advance(time.Second)

	if len(fired) != 2 || fired[0] != 1_100 || fired[1] != 1_300 {
		t.Errorf("unexpected fire times: %v", fired)
	}
	if got := NowMillis(c); got != 2_000 {
		t.Errorf("expected clock at 2000ms, got %d", got)
	}
}

func TestFake_RescheduleInsideWindow(t *testing.T) {
	t.Parallel()

	c := NewFake(time.UnixMilli(0))
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(250*time.Millisecond, tick)
	}
	c.AfterFunc(250*time.Millisecond, tick)

	c.Advance(time.Second)

	if ticks != 4 {
		t.Errorf("expected 4 ticks in one second, got %d", ticks)
	}
	if c.Pending() != 1 {
		t.Errorf("expected one pending timer, got %d", c.Pending())
	}
}
