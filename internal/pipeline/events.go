// Copyright (C) 2026 ClipForge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

// EventType tags the events streamed to the caller during a run.
type EventType string

const (
	EventStatus        EventType = "status"
	EventProductData   EventType = "productData"
	EventVideoScript   EventType = "videoScript"
	EventReactPageCode EventType = "reactPageCode"
	EventRemotionCode  EventType = "remotionCode"
	EventVideoURL      EventType = "videoUrl"
	EventError         EventType = "error"
	EventComplete      EventType = "complete"
)

// Event is the wire-level unit emitted to the caller: a tagged union
// serialized as one newline-delimited JSON object. Events are created
// by the Engine, never mutated, and delivered in emission order.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// StatusData is the payload of a status event. Attempts is set only
// while the render/repair loop is active.
type StatusData struct {
	Step     Step   `json:"step"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Errors []string `json:"errors"`
}

// CompleteData is the payload of the terminal complete event. Exactly
// one complete event ends every stream.
type CompleteData struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func statusEvent(step Step, message string) Event {
	return Event{Type: EventStatus, Data: StatusData{Step: step, Message: message}}
}

func renderStatusEvent(attempt int, message string) Event {
	return Event{Type: EventStatus, Data: StatusData{Step: StepRendering, Message: message, Attempts: attempt}}
}
