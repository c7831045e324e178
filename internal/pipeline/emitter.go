// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/clipforge/clipforge/internal/logger"
)

var (
	log     *zerolog.Logger
	logOnce sync.Once
)

func getLog() *zerolog.Logger {
	logOnce.Do(func() {
		l := logger.GetPipelineLogger()
		log = &l
	})
	return log
}

// Sink receives serialized events. A Send error means the consumer is
// gone (disconnect, broken pipe); the Emitter treats it as a close
// signal and never calls Send again.
type Sink interface {
	Send(Event) error
}

// Emitter pushes events, in order, to an open output channel. A guarded
// closed flag makes every operation after close a silent no-op, so a
// consumer disconnect mid-run cannot crash the producer, and the
// channel is logically closed exactly once per run.
type Emitter struct {
	mu     sync.Mutex
	sink   Sink
	closed bool
}

// NewEmitter wraps a sink in the guarded emitter.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit delivers one event. After Close, or after the sink has reported
// a delivery failure, Emit silently drops the event.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if err := e.sink.Send(ev); err != nil {
		getLog().Warn().Err(err).Str("event_type", string(ev.Type)).Msg("Event delivery failed, stopping emission")
		e.closed = true
	}
}

// Close marks the emitter closed. Safe to call more than once; only
// the first call has any effect.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Closed reports whether emission has stopped (explicit close or
// consumer disconnect).
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
