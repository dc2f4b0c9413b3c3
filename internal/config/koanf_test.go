// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies the built-in defaults
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Monitor.MinimumRebufferDuration != 250 {
		t.Errorf("MinimumRebufferDuration = %d, want 250", cfg.Monitor.MinimumRebufferDuration)
	}
	if cfg.Monitor.SustainedRebufferThreshold != 1000 {
		t.Errorf("SustainedRebufferThreshold = %d, want 1000", cfg.Monitor.SustainedRebufferThreshold)
	}
	if cfg.Monitor.PlaybackHeartbeatTimeMs != 25 {
		t.Errorf("PlaybackHeartbeatTimeMs = %d, want 25", cfg.Monitor.PlaybackHeartbeatTimeMs)
	}
	if cfg.Monitor.BeaconDomain != "litix.io" {
		t.Errorf("BeaconDomain = %q, want litix.io", cfg.Monitor.BeaconDomain)
	}
	if cfg.Monitor.SampleRate != 1 {
		t.Errorf("SampleRate = %v, want 1", cfg.Monitor.SampleRate)
	}
	if cfg.Monitor.MaxQueueLength != 3600 || cfg.Monitor.MaxBeaconSize != 300 || cfg.Monitor.MaxPayloadKBSize != 500 {
		t.Errorf("dispatcher limits = %d/%d/%d, want 3600/300/500",
			cfg.Monitor.MaxQueueLength, cfg.Monitor.MaxBeaconSize, cfg.Monitor.MaxPayloadKBSize)
	}
	if cfg.Monitor.BaseTimeBetweenBeacons != 10*time.Second {
		t.Errorf("BaseTimeBetweenBeacons = %v, want 10s", cfg.Monitor.BaseTimeBetweenBeacons)
	}
	if cfg.Collector.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.Collector.ListenAddr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFile_Layers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
monitor:
  sample_rate: 0.25
  beacon_domain: example.com
  base_time_between_beacons: 5s
  data:
    env_key: abc123
    player_name: test-player
collector:
  listen_addr: ":9999"
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("VIEWBEACON_SAMPLE_RATE", "0.5")
	t.Setenv("VIEWBEACON_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("VIEWBEACON_DEBUG", "true")
	t.Setenv("VIEWBEACON_PLAYBACK_HEARTBEAT_TIME_MS", "40")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	// Environment beats file.
	if cfg.Monitor.SampleRate != 0.5 {
		t.Errorf("SampleRate = %v, want 0.5 from env", cfg.Monitor.SampleRate)
	}
	// File beats defaults.
	if cfg.Monitor.BeaconDomain != "example.com" {
		t.Errorf("BeaconDomain = %q, want example.com", cfg.Monitor.BeaconDomain)
	}
	if cfg.Monitor.BaseTimeBetweenBeacons != 5*time.Second {
		t.Errorf("BaseTimeBetweenBeacons = %v, want 5s", cfg.Monitor.BaseTimeBetweenBeacons)
	}
	if cfg.Collector.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q, want :9999", cfg.Collector.ListenAddr)
	}
	// Defaults survive where nothing overrides them.
	if cfg.Monitor.MaxBeaconSize != 300 {
		t.Errorf("MaxBeaconSize = %d, want 300", cfg.Monitor.MaxBeaconSize)
	}
	if cfg.Monitor.PlaybackHeartbeatTimeMs != 40 {
		t.Errorf("PlaybackHeartbeatTimeMs = %d, want 40 from env", cfg.Monitor.PlaybackHeartbeatTimeMs)
	}
	if !cfg.Monitor.Debug {
		t.Error("Debug should be set from env")
	}
	if got := cfg.Monitor.Data["env_key"]; got != "abc123" {
		t.Errorf("data.env_key = %v, want abc123", got)
	}
	if got := strings.Join(cfg.Collector.CORSOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("CORSOrigins = %q", got)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "sample rate above one", env: map[string]string{"VIEWBEACON_SAMPLE_RATE": "1.5"}, want: "monitor.sample_rate"},
		{name: "zero heartbeat", env: map[string]string{"VIEWBEACON_PLAYBACK_HEARTBEAT_TIME_MS": "0"}, want: "monitor.playback_heartbeat_time_ms"},
		{name: "bad log level", env: map[string]string{"VIEWBEACON_LOG_LEVEL": "loud"}, want: "logging.level"},
		{name: "collection domain with path", env: map[string]string{"VIEWBEACON_BEACON_COLLECTION_DOMAIN": "host/path"}, want: "monitor.beacon_collection_domain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFile("")
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"VIEWBEACON_SAMPLE_RATE":    "monitor.sample_rate",
		"VIEWBEACON_MAX_BACKOFF":    "monitor.max_backoff",
		"VIEWBEACON_LISTEN_ADDR":    "collector.listen_addr",
		"VIEWBEACON_LOG_LEVEL":      "logging.level",
		"VIEWBEACON_ENV_KEY":        "monitor.data.env_key",
		"VIEWBEACON_SOMETHING_ELSE": "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	opts := DefaultOptions()
	if err := opts.Validate(); err != nil {
		t.Fatalf("default options: %v", err)
	}
	opts.BeaconDomain = ""
	if err := opts.Validate(); err == nil || !strings.Contains(err.Error(), "beacon_domain") {
		t.Errorf("missing beacon domain error = %v", err)
	}
}
