// Viewbeacon - Playback Session Telemetry for Media Players
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/viewbeacon

package tracker

import (
	"fmt"
	"strings"

	"github.com/tomtom215/viewbeacon/internal/event"
	"github.com/tomtom215/viewbeacon/internal/record"
)

// ErrorFieldPrefix prefixes every field describing the current error.
const ErrorFieldPrefix = "player_error_"

// SeverityWarning marks errors that did not stop playback.
const SeverityWarning = "warning"

// Errors applies the error translator and tracks whether the view errored.
type Errors struct {
	host       Host
	translator ErrorTranslator
}

// NewErrors attaches an error tracker to h.
func NewErrors(h Host, translator ErrorTranslator) *Errors {
	e := &Errors{host: h, translator: translator}
	h.On(event.Error, func(event.Name, record.Record) { e.handle() })
	// Error fields describe one error event; clear them once it is sent.
	h.On(event.After(event.Error), func(event.Name, record.Record) {
		h.Data().DeletePrefix(ErrorFieldPrefix)
	})
	h.On(event.ViewInit, func(event.Name, record.Record) {
		st := h.State()
		st.Errored = false
		st.SuppressSend = false
	})
	return e
}

func (e *Errors) handle() {
	data := e.host.Data()
	st := e.host.State()

	if e.translator != nil {
		fields := make(record.Record)
		for k, v := range data {
			if strings.HasPrefix(k, ErrorFieldPrefix) {
				fields[k] = v
			}
		}
		out, keep, err := e.translate(fields)
		switch {
		case err != nil:
			e.host.Log().Error().Err(err).Msg("error translator failed, reporting untranslated error")
			st.Errored = true
			return
		case !keep:
			data.DeletePrefix(ErrorFieldPrefix)
			st.SuppressSend = true
			return
		default:
			data.DeletePrefix(ErrorFieldPrefix)
			data.Merge(out)
		}
	}

	if sev, _ := data.String("player_error_severity"); sev != SeverityWarning {
		st.Errored = true
	}
}

func (e *Errors) translate(fields record.Record) (out record.Record, keep bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error translator panic: %v", r)
		}
	}()
	out, keep = e.translator(fields)
	return out, keep, nil
}
