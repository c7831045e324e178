// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/clipforge/clipforge/internal/pipeline"
)

// ndjsonSink streams pipeline events to an HTTP response as
// newline-delimited JSON, flushing after each event so the caller sees
// progress immediately. A write error (client gone) is returned to the
// Emitter, which stops emission for the rest of the run.
type ndjsonSink struct {
	mu      sync.Mutex
	enc     *json.Encoder
	flusher http.Flusher
}

func newNDJSONSink(w http.ResponseWriter) *ndjsonSink {
	flusher, _ := w.(http.Flusher)
	return &ndjsonSink{
		enc:     json.NewEncoder(w),
		flusher: flusher,
	}
}

// Send writes one event as a single JSON line. json.Encoder appends the
// trailing newline itself.
func (s *ndjsonSink) Send(ev pipeline.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(ev); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// streamHeaders marks the response as an NDJSON event stream.
func streamHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/x-ndjson")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no") // disable proxy buffering
}
