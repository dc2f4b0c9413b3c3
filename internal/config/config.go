// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/viewbeacon/internal/validation"
)

// Config is the full process configuration.
type Config struct {
	Monitor   Options         `koanf:"monitor"`
	Collector CollectorConfig `koanf:"collector"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// Options configures a player monitor. Millisecond fields are plain
// integers so YAML and environment values read the same way.
type Options struct {
	Debug bool `koanf:"debug"`

	MinimumRebufferDuration    int `koanf:"minimum_rebuffer_duration" validate:"gte=0"`
	SustainedRebufferThreshold int `koanf:"sustained_rebuffer_threshold" validate:"gt=0"`
	// PlaybackHeartbeatTimeMs is the internal playback heartbeat period in
	// milliseconds, not seconds.
	PlaybackHeartbeatTimeMs    int `koanf:"playback_heartbeat_time_ms" validate:"gt=0"`

	BeaconDomain           string  `koanf:"beacon_domain" validate:"required,hostname"`
	BeaconCollectionDomain string  `koanf:"beacon_collection_domain" validate:"omitempty,collectiondomain"`
	SampleRate             float64 `koanf:"sample_rate" validate:"gte=0,lte=1"`

	DisableCookies                  bool `koanf:"disable_cookies"`
	RespectDoNotTrack               bool `koanf:"respect_do_not_track"`
	DoNotTrack                      bool `koanf:"do_not_track"`
	DisableRebufferTracking         bool `koanf:"disable_rebuffer_tracking"`
	DisablePlayheadRebufferTracking bool `koanf:"disable_playhead_rebuffer_tracking"`

	// Data seeds the view record, e.g. env_key, player_name, video_title.
	Data map[string]any `koanf:"data"`

	MaxQueueLength         int           `koanf:"max_queue_length" validate:"gt=0"`
	MaxBeaconSize          int           `koanf:"max_beacon_size" validate:"gt=0"`
	MaxPayloadKBSize       int           `koanf:"max_payload_kb_size" validate:"gt=0"`
	BaseTimeBetweenBeacons time.Duration `koanf:"base_time_between_beacons" validate:"gt=0"`
	MaxBackoff             time.Duration `koanf:"max_backoff" validate:"gte=0"`

	StoragePath string `koanf:"storage_path"`
}

// CollectorConfig configures the reference beacon collector.
type CollectorConfig struct {
	ListenAddr        string        `koanf:"listen_addr" validate:"required"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// DefaultOptions returns monitor options with every default applied.
func DefaultOptions() Options {
	return Options{
		MinimumRebufferDuration:    250,
		SustainedRebufferThreshold: 1000,
		PlaybackHeartbeatTimeMs:    25,
		BeaconDomain:               "litix.io",
		SampleRate:                 1,
		MaxQueueLength:             3600,
		MaxBeaconSize:              300,
		MaxPayloadKBSize:           500,
		BaseTimeBetweenBeacons:     10 * time.Second,
		MaxBackoff:                 10 * time.Minute,
	}
}

// DefaultConfig returns the full configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Monitor: DefaultOptions(),
		Collector: CollectorConfig{
			ListenAddr:        ":8080",
			RateLimitRequests: 600,
			RateLimitWindow:   time.Minute,
			CORSOrigins:       []string{"*"},
			MaxBodyBytes:      1 << 20, // above the 500 KB payload budget
			ShutdownTimeout:   10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Validate checks monitor options on their own, for callers that build
// them in code.
func (o *Options) Validate() error {
	if err := validation.Struct(o); err != nil {
		return fmt.Errorf("invalid monitor options: %w", err)
	}
	return nil
}

// Millis converts a millisecond option to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
