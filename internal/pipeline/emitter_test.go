// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// collectSink records every event it receives. failAfter > 0 makes Send
// start failing once that many events have been delivered.
type collectSink struct {
	mu        sync.Mutex
	events    []Event
	failAfter int
}

func (s *collectSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.events) >= s.failAfter {
		return errors.New("consumer gone")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *collectSink) collected() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestEmitterDeliversInOrder(t *testing.T) {
	sink := &collectSink{}
	em := NewEmitter(sink)

	em.Emit(statusEvent(StepScraping, "one"))
	em.Emit(statusEvent(StepScripting, "two"))
	em.Emit(Event{Type: EventComplete, Data: CompleteData{Success: true}})

	events := sink.collected()
	assert.Len(t, events, 3)
	assert.Equal(t, EventStatus, events[0].Type)
	assert.Equal(t, EventStatus, events[1].Type)
	assert.Equal(t, EventComplete, events[2].Type)
}

func TestEmitterAfterCloseIsNoOp(t *testing.T) {
	sink := &collectSink{}
	em := NewEmitter(sink)

	em.Emit(statusEvent(StepScraping, "before"))
	em.Close()
	em.Emit(statusEvent(StepScripting, "after"))

	assert.Len(t, sink.collected(), 1)
	assert.True(t, em.Closed())
}

func TestEmitterCloseIsIdempotent(t *testing.T) {
	em := NewEmitter(&collectSink{})
	em.Close()
	em.Close()
	assert.True(t, em.Closed())
}

func TestEmitterStopsAfterSendFailure(t *testing.T) {
	sink := &collectSink{failAfter: 2}
	em := NewEmitter(sink)

	em.Emit(statusEvent(StepScraping, "one"))
	em.Emit(statusEvent(StepScripting, "two"))
	em.Emit(statusEvent(StepGenerating, "three")) // Send fails, marks closed
	em.Emit(statusEvent(StepRendering, "four"))   // dropped without calling Send

	assert.Len(t, sink.collected(), 2)
	assert.True(t, em.Closed())
}

func TestEmitterConcurrentEmit(t *testing.T) {
	sink := &collectSink{}
	em := NewEmitter(sink)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			em.Emit(statusEvent(StepRendering, "tick"))
		}()
	}
	wg.Wait()

	assert.Len(t, sink.collected(), 20)
}
