// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/viewbeacon/internal/metrics"
	"github.com/tomtom215/viewbeacon/internal/record"
	"github.com/tomtom215/viewbeacon/internal/websocket"
)

// SweepInterval is how often idle views are dropped from the store.
const SweepInterval = time.Minute

// Consumer reads decoded events off the pub/sub topic and folds them into
// view summaries, then hands them to the live hub. It implements
// suture.Service.
type Consumer struct {
	sub   message.Subscriber
	views *ViewStore
	live  *websocket.Hub
	log   zerolog.Logger
}

// NewConsumer creates a consumer for c's topic.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewConsumer(c *Collector, logger zerolog.Logger) *Consumer {
	return &Consumer{sub: c.Subscriber(), views: c.Views(), live: c.Live(), log: logger}
}

// Serve subscribes and processes messages until ctx is canceled or the
// subscription closes.
func (c *Consumer) Serve(ctx context.Context) error {
	messages, err := c.sub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", Topic, err)
	}
	return c.consume(ctx, messages)
}

func (c *Consumer) consume(ctx context.Context, messages <-chan *message.Message) error {
	sweep := time.NewTicker(SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweep.C:
			if n := c.views.Sweep(); n > 0 {
				c.log.Debug().Int("views", n).Msg("Dropped idle views")
			}
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			c.process(msg)
		}
	}
}

// process always acks. A malformed event will not improve on redelivery.
func (c *Consumer) process(msg *message.Message) {
	defer msg.Ack()

	var e record.Record
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		c.log.Warn().Err(err).
			Str("message_uuid", msg.UUID).
			Str("request_id", msg.Metadata.Get(MetaRequestID)).
			Msg("Dropping malformed event")
		return
	}

	name := msg.Metadata.Get(MetaEvent)
	metrics.RecordIngest(name)
	if !c.views.Apply(e) {
		c.log.Debug().Str("event", name).Msg("Event without view id")
	}
	c.live.BroadcastEvent(e)
}

// String implements fmt.Stringer for supervisor logs.
func (c *Consumer) String() string { return "beacon-consumer" }
