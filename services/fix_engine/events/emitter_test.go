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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter(t *testing.T) {
	t.Run("delivers events to subscribers", func(t *testing.T) {
		e := NewEmitter()
		rec := NewRecorder(e)

		e.Emit(Event{Type: TypeEvolutionStart, IssueType: "n_plus_one_query"})
		e.Emit(Event{Type: TypeEvolutionProgress, Progress: &Progress{Generation: 0}})

		got := rec.Events()
		require.Len(t, got, 2)
		assert.Equal(t, TypeEvolutionStart, got[0].Type)
		assert.NotEmpty(t, got[0].ID)
		assert.False(t, got[0].Timestamp.IsZero())
	})

	t.Run("type filter limits delivery", func(t *testing.T) {
		e := NewEmitter()
		rec := NewRecorder(e, TypeEvolutionComplete)

		e.Emit(Event{Type: TypeEvolutionProgress})
		e.Emit(Event{Type: TypeEvolutionComplete})

		got := rec.Events()
		require.Len(t, got, 1)
		assert.Equal(t, TypeEvolutionComplete, got[0].Type)
	})

	t.Run("panicking handler does not stop delivery", func(t *testing.T) {
		e := NewEmitter()
		e.Subscribe(func(event *Event) {
			panic("boom")
		})
		rec := NewRecorder(e)

		e.Emit(Event{Type: TypeEvolutionProgress})
		assert.Len(t, rec.Events(), 1)
	})

	t.Run("nil emitter is a no-op", func(t *testing.T) {
		var e *Emitter
		assert.NotPanics(t, func() {
			e.Emit(Event{Type: TypeEvolutionStart})
		})
		assert.Nil(t, e.Buffered())
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		e := NewEmitter()
		var count int
		id := e.Subscribe(func(event *Event) { count++ })

		e.Emit(Event{Type: TypeEvolutionProgress})
		require.True(t, e.Unsubscribe(id))
		e.Emit(Event{Type: TypeEvolutionProgress})

		assert.Equal(t, 1, count)
		assert.False(t, e.Unsubscribe(id))
	})

	t.Run("buffer retains recent events", func(t *testing.T) {
		e := NewEmitter(WithBufferSize(2))
		e.Emit(Event{Type: TypeEvolutionStart})
		e.Emit(Event{Type: TypeEvolutionProgress})
		e.Emit(Event{Type: TypeEvolutionComplete})

		buf := e.Buffered()
		require.Len(t, buf, 2)
		assert.Equal(t, TypeEvolutionProgress, buf[0].Type)
		assert.Equal(t, TypeEvolutionComplete, buf[1].Type)
	})
}
