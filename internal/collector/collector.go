// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package collector implements the reference beacon endpoint.
//
// A POSTed beacon is decoded back to full field names and fanned out, one
// watermill message per event, on an in-process pub/sub topic. The
// Consumer folds those events into per-view summaries that can be read
// back over HTTP. The collector is a test and development target for the
// monitor; it does no persistence.
//
// Routes:
//
//	POST /          beacon ingest (env key subdomain style)
//	POST /a.gif     beacon ingest (shared host fallback)
//	GET  /api/v1/views/{viewID}
//	GET  /api/v1/live   websocket tail of decoded events
//	GET  /healthz
//	GET  /metrics
package collector

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/viewbeacon/internal/beacon"
	"github.com/tomtom215/viewbeacon/internal/clock"
	"github.com/tomtom215/viewbeacon/internal/config"
	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/metrics"
	"github.com/tomtom215/viewbeacon/internal/middleware"
	"github.com/tomtom215/viewbeacon/internal/websocket"
	"github.com/tomtom215/viewbeacon/internal/wire"
)

// Topic is the pub/sub topic decoded events are published on.
const Topic = "viewbeacon.events"

// Message metadata keys.
const (
	MetaEvent     = "event"
	MetaRequestID = "request_id"
	MetaSentAt    = "transmission_timestamp"
)

const (
	defaultViewCapacity = 50000
	defaultViewTTL      = time.Hour
)

// Collector receives beacons over HTTP.
type Collector struct {
	cfg    config.CollectorConfig
	log    zerolog.Logger
	pubsub *gochannel.GoChannel
	views  *ViewStore
	live   *websocket.Hub
}

// New creates a collector. A nil clock uses wall time.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg config.CollectorConfig, logger zerolog.Logger, c clock.Clock) *Collector {
	wmLogger := watermill.NewSlogLogger(slog.New(logging.NewSlogHandlerWithLogger(logger)))
	return &Collector{
		cfg: cfg,
		log: logger,
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 1024,
		}, wmLogger),
		views: NewViewStore(defaultViewCapacity, defaultViewTTL, c),
		live:  websocket.NewHub(cfg.CORSOrigins),
	}
}

// Subscriber returns the pub/sub side consumers read events from.
func (c *Collector) Subscriber() message.Subscriber { return c.pubsub }

// Views returns the view summary store.
func (c *Collector) Views() *ViewStore { return c.views }

// Live returns the websocket hub. It must be served for /api/v1/live to
// accept clients.
func (c *Collector) Live() *websocket.Hub { return c.live }

// Close shuts the pub/sub down, closing every subscription channel.
func (c *Collector) Close() error { return c.pubsub.Close() }

// Handler returns the HTTP routes.
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: c.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Group(func(r chi.Router) {
		if c.cfg.RateLimitRequests > 0 {
			r.Use(httprate.LimitByIP(c.cfg.RateLimitRequests, c.cfg.RateLimitWindow))
		}
		r.Post("/", c.handleBeacon)
		r.Post("/a.gif", c.handleBeacon)
	})

	r.Get("/api/v1/views/{viewID}", c.handleView)
	r.Get("/api/v1/live", c.live.ServeWS)
	r.Get("/healthz", c.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

type ingestResult struct {
	Accepted int `json:"accepted"`
}

func (c *Collector) handleBeacon(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, c.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		metrics.CollectorBeacons.WithLabelValues("rejected").Inc()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "beacon body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "failed to read beacon body")
		return
	}
	metrics.CollectorPayloadBytes.Observe(float64(len(body)))

	var p beacon.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		metrics.CollectorBeacons.WithLabelValues("rejected").Inc()
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid beacon JSON")
		return
	}
	if len(p.Events) == 0 {
		metrics.CollectorBeacons.WithLabelValues("rejected").Inc()
		writeError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "beacon has no events")
		return
	}

	reqID := chimiddleware.GetReqID(r.Context())
	msgs := make([]*message.Message, 0, len(p.Events))
	for _, e := range p.Events {
		decoded := wire.DecodeRecord(e)
		data, err := json.Marshal(decoded)
		if err != nil {
			c.log.Warn().Err(err).Str("request_id", reqID).Msg("Skipping unencodable event")
			continue
		}
		name, _ := decoded.String("event")
		msg := message.NewMessage(watermill.NewUUID(), data)
		msg.Metadata.Set(MetaEvent, name)
		msg.Metadata.Set(MetaRequestID, reqID)
		msg.Metadata.Set(MetaSentAt, strconv.FormatInt(p.Metadata.TransmissionTimestamp, 10))
		msgs = append(msgs, msg)
	}

	if err := c.pubsub.Publish(Topic, msgs...); err != nil {
		metrics.CollectorBeacons.WithLabelValues("rejected").Inc()
		c.log.Error().Err(err).Str("request_id", reqID).Msg("Failed to publish beacon events")
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "collector is shutting down")
		return
	}

	metrics.CollectorBeacons.WithLabelValues("accepted").Inc()
	c.log.Debug().Str("request_id", reqID).Int("events", len(msgs)).Msg("Beacon accepted")
	writeSuccess(w, r, http.StatusOK, ingestResult{Accepted: len(msgs)})
}

func (c *Collector) handleView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "viewID")
	v, ok := c.views.Get(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown view")
		return
	}
	writeSuccess(w, r, http.StatusOK, v)
}

func (c *Collector) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, http.StatusOK, map[string]any{
		"status": "ok",
		"views":  c.views.Len(),
	})
}
