// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that processes events.
type Handler func(event *Event)

// Subscription represents one registered handler.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	// Handler processes matching events.
	Handler Handler

	// Types limits which event types to handle (nil = all types).
	Types []Type
}

// Emitter broadcasts optimizer events to subscribers.
//
// Handler panics are recovered so one misbehaving subscriber cannot fail
// an optimization run, and recent events are buffered for late readers.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	buffer        []Event
	bufferSize    int
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the retained-event buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		e.bufferSize = size
	}
}

// NewEmitter creates an event emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    1000,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.buffer = make([]Event, 0, e.bufferSize)
	return e
}

// Subscribe registers a handler for events.
//
// Inputs:
//
//	handler - Function to call for each event.
//	types - Event types to subscribe to (nil = all types).
//
// Outputs:
//
//	string - Subscription ID for unsubscribing.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.NewString(),
		Handler: handler,
		Types:   types,
	}
	e.subscriptions[sub.ID] = sub
	return sub.ID
}

// Unsubscribe removes a subscription.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[id]; ok {
		delete(e.subscriptions, id)
		return true
	}
	return false
}

// Emit broadcasts an event to all matching subscribers.
//
// Description:
//
//	Stamps the event with an ID and timestamp, buffers it, and invokes
//	every matching handler with panic recovery. A nil Emitter is a valid
//	no-op receiver, so callers without a sink skip the nil checks.
//
// Thread Safety: Safe for concurrent use.
func (e *Emitter) Emit(event Event) {
	if e == nil {
		return
	}

	event.ID = uuid.NewString()
	event.Timestamp = time.Now()

	e.mu.Lock()
	if len(e.buffer) >= e.bufferSize {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, event)
	subs := make([]*Subscription, 0, len(e.subscriptions))
	for _, sub := range e.subscriptions {
		subs = append(subs, sub)
	}
	e.mu.Unlock()

	for _, sub := range subs {
		if e.shouldHandle(sub, &event) {
			e.safeInvokeHandler(sub.Handler, &event)
		}
	}
}

// Buffered returns a copy of the retained events in emission order.
func (e *Emitter) Buffered() []Event {
	if e == nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Event, len(e.buffer))
	copy(out, e.buffer)
	return out
}

// safeInvokeHandler invokes a handler with panic recovery.
func (e *Emitter) safeInvokeHandler(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", r,
			)
		}
	}()
	handler(event)
}

// shouldHandle determines if a subscription should handle an event.
func (e *Emitter) shouldHandle(sub *Subscription, event *Event) bool {
	if len(sub.Types) == 0 {
		return true
	}
	for _, t := range sub.Types {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Recorder is a test helper that stores every event it receives.
//
// Thread Safety: Recorder is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates a Recorder and subscribes it to the emitter.
func NewRecorder(e *Emitter, types ...Type) *Recorder {
	r := &Recorder{}
	e.Subscribe(func(event *Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, *event)
	}, types...)
	return r
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
