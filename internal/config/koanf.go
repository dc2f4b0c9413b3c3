// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable Load reads.
const EnvPrefix = "VIEWBEACON_"

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = EnvPrefix + "CONFIG"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/viewbeacon/config.yaml",
	"/etc/viewbeacon/config.yml",
}

// Load reads defaults, then the config file if one exists, then the
// environment, and validates the result.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are read from the environment as comma-separated lists.
var sliceConfigPaths = []string{
	"collector.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased variable names, without EnvPrefix, to
// koanf paths.
var envMappings = map[string]string{
	"debug":                              "monitor.debug",
	"minimum_rebuffer_duration":          "monitor.minimum_rebuffer_duration",
	"sustained_rebuffer_threshold":       "monitor.sustained_rebuffer_threshold",
	"playback_heartbeat_time_ms":         "monitor.playback_heartbeat_time_ms",
	"beacon_domain":                      "monitor.beacon_domain",
	"beacon_collection_domain":           "monitor.beacon_collection_domain",
	"sample_rate":                        "monitor.sample_rate",
	"disable_cookies":                    "monitor.disable_cookies",
	"respect_do_not_track":               "monitor.respect_do_not_track",
	"do_not_track":                       "monitor.do_not_track",
	"disable_rebuffer_tracking":          "monitor.disable_rebuffer_tracking",
	"disable_playhead_rebuffer_tracking": "monitor.disable_playhead_rebuffer_tracking",
	"max_queue_length":                   "monitor.max_queue_length",
	"max_beacon_size":                    "monitor.max_beacon_size",
	"max_payload_kb_size":                "monitor.max_payload_kb_size",
	"base_time_between_beacons":          "monitor.base_time_between_beacons",
	"max_backoff":                        "monitor.max_backoff",
	"storage_path":                       "monitor.storage_path",
	"env_key":                            "monitor.data.env_key",

	"listen_addr":         "collector.listen_addr",
	"rate_limit_requests": "collector.rate_limit_requests",
	"rate_limit_window":   "collector.rate_limit_window",
	"cors_origins":        "collector.cors_origins",
	"max_body_bytes":      "collector.max_body_bytes",
	"shutdown_timeout":    "collector.shutdown_timeout",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps VIEWBEACON_SAMPLE_RATE to monitor.sample_rate.
// Unknown variables return "" and are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}
