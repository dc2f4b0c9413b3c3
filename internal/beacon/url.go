// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package beacon

import (
	"regexp"
	"strings"
)

// DefaultDomain is the beacon domain used when none is configured.
const DefaultDomain = "litix.io"

var envKeyPattern = regexp.MustCompile(`(?i)^[a-z0-9]+$`)

// URL returns the endpoint beacons are POSTed to.
//
//   - a collection domain wins; one that already has a scheme is used as is
//   - a valid env key yields https://<env_key>.<beacon domain>
//   - otherwise https://img.<beacon domain>/a.gif
func URL(beaconDomain, collectionDomain, envKey string) string {
	if collectionDomain != "" {
		if strings.Contains(collectionDomain, "://") {
			return collectionDomain
		}
		return "https://" + collectionDomain
	}
	if beaconDomain == "" {
		beaconDomain = DefaultDomain
	}
	if envKey != "" && envKeyPattern.MatchString(envKey) {
		return "https://" + envKey + "." + beaconDomain
	}
	return "https://img." + beaconDomain + "/a.gif"
}
