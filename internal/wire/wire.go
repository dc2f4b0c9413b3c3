// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

// Package wire shortens field names for transmission.
//
// A field name is split on "_". The first segment is encoded with the
// one-character prefix table, later segments with the two-character word
// table. A segment missing from its table is written literally between
// underscores, so every name has exactly one encoding and Decode inverts
// Encode:
//
//	view_watch_time      -> "xwati"
//	video_source_bitrate -> "vsubi"
//	custom_1             -> "c_1_"
package wire

import (
	"strings"

	"github.com/tomtom215/viewbeacon/internal/record"
)

var prefixes = map[string]string{
	"env":        "a",
	"beacon":     "b",
	"custom":     "c",
	"ad":         "d",
	"event":      "e",
	"experiment": "f",
	"internal":   "i",
	"mux":        "m",
	"response":   "n",
	"property":   "o",
	"player":     "p",
	"request":    "q",
	"retry":      "r",
	"session":    "s",
	"timestamp":  "t",
	"viewer":     "u",
	"video":      "v",
	"page":       "w",
	"view":       "x",
	"sub":        "y",
}

var words = map[string]string{
	"ad":           "ad",
	"aggregate":    "ag",
	"api":          "ap",
	"architecture": "ar",
	"autoplay":     "au",
	"average":      "av",
	"beacon":       "be",
	"bitrate":      "bi",
	"business":     "bu",
	"bytes":        "by",
	"canceled":     "ca",
	"category":     "ct",
	"cdn":          "cd",
	"change":       "ch",
	"changed":      "cn",
	"clicked":      "cl",
	"code":         "co",
	"completed":    "cm",
	"connection":   "ce",
	"content":      "cb",
	"context":      "cx",
	"count":        "cu",
	"creative":     "cr",
	"cumulative":   "ci",
	"custom":       "cs",
	"data":         "da",
	"device":       "de",
	"domain":       "do",
	"downscale":    "dw",
	"downscaling":  "dn",
	"duration":     "du",
	"edge":         "eg",
	"embed":        "em",
	"encoding":     "en",
	"end":          "ed",
	"env":          "ev",
	"error":        "er",
	"event":        "ee",
	"exception":    "ex",
	"experiment":   "ep",
	"expires":      "ei",
	"failed":       "fa",
	"family":       "fm",
	"first":        "fi",
	"frame":        "fr",
	"frequency":    "fe",
	"headers":      "he",
	"height":       "hi",
	"hostname":     "ho",
	"id":           "id",
	"init":         "in",
	"instance":     "is",
	"is":           "ia",
	"key":          "ke",
	"labeled":      "la",
	"language":     "ln",
	"latency":      "lt",
	"list":         "li",
	"live":         "lv",
	"load":         "lo",
	"loaded":       "ld",
	"manufacturer": "ma",
	"manifest":     "mf",
	"max":          "mx",
	"media":        "me",
	"message":      "ms",
	"min":          "mi",
	"mode":         "mo",
	"model":        "md",
	"ms":           "mb",
	"mux":          "mu",
	"name":         "na",
	"newest":       "nw",
	"number":       "nu",
	"on":           "oo",
	"orientation":  "or",
	"os":           "os",
	"page":         "pa",
	"percentage":   "pe",
	"playback":     "pl",
	"played":       "py",
	"player":       "pr",
	"playhead":     "ph",
	"playing":      "pi",
	"position":     "po",
	"preroll":      "pb",
	"program":      "pg",
	"property":     "pp",
	"ratio":        "ra",
	"rebuffer":     "re",
	"remote":       "rm",
	"rendition":    "rn",
	"request":      "rq",
	"requested":    "ru",
	"response":     "rs",
	"retry":        "rt",
	"sample":       "sa",
	"scale":        "sc",
	"seek":         "se",
	"sequence":     "sq",
	"series":       "sr",
	"session":      "ss",
	"severity":     "sv",
	"skipped":      "sk",
	"software":     "so",
	"source":       "su",
	"start":        "st",
	"startup":      "sp",
	"stream":       "sm",
	"sub":          "sb",
	"throughput":   "th",
	"time":         "ti",
	"title":        "tt",
	"to":           "to",
	"total":        "ta",
	"type":         "ty",
	"universal":    "un",
	"upscale":      "up",
	"upscaling":    "us",
	"url":          "ur",
	"user":         "ue",
	"variant":      "va",
	"version":      "ve",
	"video":        "vi",
	"view":         "vw",
	"viewer":       "vr",
	"watch":        "wa",
	"width":        "wi",
}

var (
	prefixNames = invert(prefixes)
	wordNames   = invert(words)
)

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if _, dup := out[v]; dup {
			panic("wire: duplicate code " + v)
		}
		out[v] = k
	}
	return out
}

// Encode returns the short form of a field name. Unknown segments are
// passed to onUnknown (if non-nil) before being written literally.
func Encode(key string, onUnknown func(segment string)) string {
	segments := strings.Split(key, "_")

	var b strings.Builder
	b.Grow(len(key))
	for i, seg := range segments {
		table := words
		if i == 0 {
			table = prefixes
		}
		if code, ok := table[seg]; ok {
			b.WriteString(code)
			continue
		}
		if onUnknown != nil && seg != "" {
			onUnknown(seg)
		}
		b.WriteByte('_')
		b.WriteString(seg)
		b.WriteByte('_')
	}
	return b.String()
}

// Decode expands a short field name. It reports false if code is not a
// valid encoding.
func Decode(code string) (string, bool) {
	var segments []string
	for i := 0; i < len(code); {
		if code[i] == '_' {
			end := strings.IndexByte(code[i+1:], '_')
			if end < 0 {
				return "", false
			}
			segments = append(segments, code[i+1:i+1+end])
			i += end + 2
			continue
		}

		width, table := 2, wordNames
		if len(segments) == 0 {
			width, table = 1, prefixNames
		}
		if i+width > len(code) {
			return "", false
		}
		name, ok := table[code[i:i+width]]
		if !ok {
			return "", false
		}
		segments = append(segments, name)
		i += width
	}
	if len(segments) == 0 {
		return "", false
	}
	return strings.Join(segments, "_"), true
}

// EncodeRecord shortens every key of r, dropping nil values.
func EncodeRecord(r record.Record, onUnknown func(segment string)) record.Record {
	out := make(record.Record, len(r))
	for k, v := range r {
		if v == nil {
			continue
		}
		out[Encode(k, onUnknown)] = v
	}
	return out
}

// DecodeRecord expands every key of r. Keys that do not decode are kept
// as they are.
func DecodeRecord(r record.Record) record.Record {
	out := make(record.Record, len(r))
	for k, v := range r {
		if name, ok := Decode(k); ok {
			out[name] = v
		} else {
			out[k] = v
		}
	}
	return out
}
