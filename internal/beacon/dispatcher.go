// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package beacon

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/metrics"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// Config holds dispatcher tuning.
type Config struct {
	// MaxQueueLength bounds the queue. The overflow marker is always accepted.
	MaxQueueLength int

	// MaxBeaconSize is the largest number of events sent in one POST.
	MaxBeaconSize int

	// MaxPayloadKBSize is the serialized batch budget in KiB.
	MaxPayloadKBSize int

	// BaseTimeBetweenBeacons is the background send interval without failures.
	BaseTimeBetweenBeacons time.Duration

	// MaxBackoff caps the retry interval. Zero disables the cap.
	MaxBackoff time.Duration

	// RandomSeed seeds the backoff jitter.
	// DETERMINISM: When non-zero, jitter is reproducible for tests.
	// When zero, a time-based seed is used.
	RandomSeed int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxQueueLength:         3600,
		MaxBeaconSize:          300,
		MaxPayloadKBSize:       500,
		BaseTimeBetweenBeacons: 10 * time.Second,
		MaxBackoff:             10 * time.Minute,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxQueueLength <= 0 {
		c.MaxQueueLength = def.MaxQueueLength
	}
	if c.MaxBeaconSize <= 0 {
		c.MaxBeaconSize = def.MaxBeaconSize
	}
	if c.MaxPayloadKBSize <= 0 {
		c.MaxPayloadKBSize = def.MaxPayloadKBSize
	}
	if c.BaseTimeBetweenBeacons <= 0 {
		c.BaseTimeBetweenBeacons = def.BaseTimeBetweenBeacons
	}
}

// Beacon is one queued event: its name and abbreviated fields.
type Beacon struct {
	Name   event.Name
	Fields record.Record
}

// Dispatcher queues beacons and transmits them in batches. A background
// timer sends whatever is queued every BaseTimeBetweenBeacons, backing off
// exponentially while the endpoint fails. Only one POST is in flight at a
// time; a send requested meanwhile runs once the POST completes.
//
// All methods are safe for concurrent use.
type Dispatcher struct {
	cfg       Config
	transport Transport
	clock     clock.Clock
	log       *logging.Limited

	mu              sync.Mutex
	queue           []Beacon
	failureCount    int
	postInFlight    bool
	resendAfterPost bool
	draining        bool
	rttMs           int64
	timer           clock.Timer
	destroyed       bool
	rng             *rand.Rand

	inflight sync.WaitGroup
}

// New creates a dispatcher and starts its background timer.
func New(cfg Config, transport Transport, c clock.Clock, log *logging.Limited) *Dispatcher {
	cfg.applyDefaults()
	if c == nil {
		c = clock.New()
	}

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	d := &Dispatcher{
		cfg:       cfg,
		transport: transport,
		clock:     c,
		log:       log,
		//nolint:gosec // G404: Using weak random for non-cryptographic jitter in backoff timing
		rng: rand.New(rand.NewSource(seed)),
	}

	d.mu.Lock()
	d.armLocked()
	d.mu.Unlock()
	return d
}

// QueueEvent appends a beacon unless the queue is full. The overflow marker
// is accepted regardless. It reports whether the queue was below capacity
// before the insertion.
func (d *Dispatcher) QueueEvent(name event.Name, fields record.Record) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	below := len(d.queue) < d.cfg.MaxQueueLength
	if !below && name != event.RateExceeded {
		metrics.RecordDropped("queue_full", 1)
		return false
	}

	d.queue = append(d.queue, Beacon{Name: name, Fields: fields})
	metrics.BeaconEventsQueued.Inc()
	metrics.BeaconQueueLength.Inc()
	return below
}

// FlushEvents transmits the queue now. When isLastEventRedundant is set
// and exactly one event is queued, that event is discarded instead.
func (d *Dispatcher) FlushEvents(isLastEventRedundant bool) {
	d.mu.Lock()
	if isLastEventRedundant && len(d.queue) == 1 {
		d.queue = nil
		metrics.BeaconQueueLength.Dec()
		metrics.RecordDropped("redundant", 1)
		d.mu.Unlock()
		return
	}
	d.draining = true
	d.mu.Unlock()

	d.sendBeaconQueue()
}

// Destroy stops the background timer. When unloading, the remaining queue
// is handed to the fire-and-forget transport; otherwise it is flushed
// normally. In-flight POSTs are not cancelled.
func (d *Dispatcher) Destroy(unloading bool) {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}

	if !unloading {
		d.mu.Unlock()
		d.FlushEvents(false)
		return
	}

	remaining := d.queue
	d.queue = nil
	rtt := d.rttMs
	d.mu.Unlock()

	metrics.BeaconQueueLength.Sub(float64(len(remaining)))
	for len(remaining) > 0 {
		n := min(len(remaining), d.cfg.MaxBeaconSize)
		body, _, err := createPayload(remaining[:n], clock.NowMillis(d.clock), rtt, d.cfg.MaxPayloadKBSize)
		if err != nil {
			d.log.Error().Err(err).Int("events", n).Msg("dropping beacon batch on unload")
			metrics.RecordDropped("oversize", n)
		} else {
			d.transport.SendAndForget(body)
		}
		remaining = remaining[n:]
	}
}

// Wait blocks until no POST is in flight. Intended for tests and shutdown.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Len returns the number of queued events.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Queued returns a copy of the queue.
func (d *Dispatcher) Queued() []Beacon {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Beacon, len(d.queue))
	copy(out, d.queue)
	return out
}

// FailureCount returns the number of consecutive failed POSTs.
func (d *Dispatcher) FailureCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failureCount
}

// ExpectedBackoff returns the retry interval before jitter after failures
// consecutive failed POSTs: base, then 2^(failures-1) * base.
func ExpectedBackoff(base time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}
	return time.Duration(float64(base) * math.Pow(2, float64(failures-1)))
}

// NextInterval returns the delay the background timer would use now.
func (d *Dispatcher) NextInterval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextIntervalLocked()
}

// nextIntervalLocked must be called with mu held.
func (d *Dispatcher) nextIntervalLocked() time.Duration {
	if d.failureCount == 0 {
		return d.cfg.BaseTimeBetweenBeacons
	}
	backoff := float64(ExpectedBackoff(d.cfg.BaseTimeBetweenBeacons, d.failureCount))
	interval := time.Duration(backoff * (1 + d.rng.Float64()))
	if d.cfg.MaxBackoff > 0 && interval > d.cfg.MaxBackoff {
		interval = d.cfg.MaxBackoff
	}
	return interval
}

func (d *Dispatcher) tick() {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return
	}
	pending := len(d.queue) > 0
	d.mu.Unlock()

	if pending {
		d.sendBeaconQueue()
	}

	d.mu.Lock()
	// A POST in flight re-arms from finishPost once its outcome is counted.
	if !d.postInFlight {
		d.armLocked()
	}
	d.mu.Unlock()
}

// armLocked replaces the background timer using the current failure
// count. Must be called with mu held.
func (d *Dispatcher) armLocked() {
	if d.destroyed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.nextIntervalLocked(), d.tick)
}

func (d *Dispatcher) sendBeaconQueue() {
	d.mu.Lock()
	if d.postInFlight {
		d.resendAfterPost = true
		d.mu.Unlock()
		return
	}
	if len(d.queue) == 0 {
		d.draining = false
		d.mu.Unlock()
		return
	}

	n := min(len(d.queue), d.cfg.MaxBeaconSize)
	batch := make([]Beacon, n)
	copy(batch, d.queue[:n])
	d.queue = append([]Beacon(nil), d.queue[n:]...)
	d.postInFlight = true
	rtt := d.rttMs
	d.inflight.Add(1)
	d.mu.Unlock()

	metrics.BeaconQueueLength.Sub(float64(n))
	go d.post(batch, rtt)
}

func (d *Dispatcher) post(batch []Beacon, rttMs int64) {
	defer d.inflight.Done()

	start := d.clock.Now()
	body, kept, err := createPayload(batch, clock.Millis(start), rttMs, d.cfg.MaxPayloadKBSize)
	if err != nil {
		d.log.Error().Err(err).Int("events", len(batch)).Msg("dropping beacon batch over the payload budget")
		metrics.RecordDropped("oversize", len(batch))
		metrics.RecordBatch("dropped", len(batch), 0)
		d.finishPost(nil, 0, nil)
		return
	}
	if dropped := len(batch) - kept; dropped > 0 {
		d.log.Debug().Int("dropped", dropped).Msg("dropped periodic events to fit payload budget")
		metrics.RecordDropped("shrink", dropped)
	}

	sendErr := d.transport.Send(context.Background(), body)
	elapsed := d.clock.Now().Sub(start)

	if sendErr != nil {
		d.log.Debug().Err(sendErr).Int("events", len(batch)).Msg("beacon POST failed")
		metrics.RecordBatch("failure", len(batch), 0)
		d.finishPost(batch, 0, sendErr)
		return
	}
	metrics.RecordBatch("success", kept, elapsed)
	d.finishPost(nil, elapsed.Milliseconds(), nil)
}

// finishPost records the POST outcome and re-arms the background timer
// with the updated backoff. A failed batch goes back to the front of the
// queue so transmission order stays chronological.
func (d *Dispatcher) finishPost(failed []Beacon, rttMs int64, err error) {
	d.mu.Lock()
	d.postInFlight = false
	if err != nil {
		d.queue = append(failed, d.queue...)
		d.failureCount++
		d.draining = false
		metrics.BeaconQueueLength.Add(float64(len(failed)))
	} else {
		d.failureCount = 0
		if rttMs > 0 {
			d.rttMs = rttMs
		}
	}
	metrics.BeaconConsecutiveFailures.Set(float64(d.failureCount))
	d.armLocked()

	resend := d.resendAfterPost || (d.draining && len(d.queue) > 0)
	d.resendAfterPost = false
	if len(d.queue) == 0 {
		d.draining = false
	}
	d.mu.Unlock()

	if resend {
		d.sendBeaconQueue()
	}
}
