// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package beacon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/viewbeacon/internal/logging"
	"github.com/tomtom215/viewbeacon/internal/metrics"
)

// KeepaliveLimit is the largest body sent detached from the caller's
// context, so it completes even if the dispatcher is torn down mid-flight.
const KeepaliveLimit = 57344

// ContentType is the beacon body content type.
const ContentType = "text/plain"

// Transport delivers serialized beacon payloads.
type Transport interface {
	// Send POSTs body and returns an error for network failures and
	// non-2xx responses.
	Send(ctx context.Context, body []byte) error

	// SendAndForget POSTs body in the background and ignores the outcome.
	SendAndForget(body []byte)
}

// StatusError reports a non-2xx beacon response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("beacon endpoint returned status %d", e.StatusCode)
}

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// URL is the beacon endpoint.
	URL string

	// Timeout bounds each POST. Default: 10s
	Timeout time.Duration

	// Client overrides the HTTP client.
	Client *http.Client

	// BreakerName labels circuit breaker metrics. Default: "beacon"
	BreakerName string
}

// HTTPTransport POSTs beacons over HTTP behind a circuit breaker.
//
// DETERMINISM NOTE: the breaker uses real time for its interval and
// timeout. An open breaker is reported as an ordinary transport failure,
// so dispatcher backoff keeps growing while the endpoint is down.
type HTTPTransport struct {
	url     string
	timeout time.Duration
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[struct{}]
	name    string
	log     *logging.Limited
}

// NewHTTPTransport creates a transport for cfg.URL.
// Circuit breaker configuration:
// - Max 1 trial request in half-open state
// - 1 minute measurement window
// - 30 second timeout before attempting recovery
// - Opens after 5 consecutive failures
func NewHTTPTransport(cfg HTTPConfig, log *logging.Limited) *HTTPTransport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "beacon"
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.BreakerName).Set(0)

	t := &HTTPTransport{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client:  cfg.Client,
		name:    cfg.BreakerName,
		log:     log,
	}
	t.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.BreakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("beacon circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	return t
}

// Send POSTs body through the circuit breaker.
func (t *HTTPTransport) Send(ctx context.Context, body []byte) error {
	_, err := t.cb.Execute(func() (struct{}, error) {
		return struct{}{}, t.post(ctx, body)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(t.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(t.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(t.name, "failure").Inc()
	}
	return err
}

// SendAndForget POSTs body on its own goroutine, bypassing the breaker.
func (t *HTTPTransport) SendAndForget(body []byte) {
	go func() {
		if err := t.post(context.Background(), body); err != nil {
			t.log.Debug().Err(err).Msg("fire-and-forget beacon failed")
		}
	}()
}

func (t *HTTPTransport) post(ctx context.Context, body []byte) error {
	if len(body) <= KeepaliveLimit {
		ctx = context.WithoutCancel(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build beacon request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post beacon: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// State returns the breaker state.
func (t *HTTPTransport) State() gobreaker.State {
	return t.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
