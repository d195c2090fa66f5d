// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, LevelInfo, ParseLevel("unknown"))
}

func TestNew(t *testing.T) {
	t.Run("json output carries the service attribute", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Level: LevelInfo, Service: "engine", Writer: &buf, JSON: true})
		logger.Info("analysis complete", "files", 3)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "engine", record["service"])
		assert.Equal(t, "analysis complete", record["msg"])
		assert.EqualValues(t, 3, record["files"])
	})

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(Config{Level: LevelWarn, Writer: &buf})
		logger.Info("dropped")
		assert.Zero(t, buf.Len())

		logger.Warn("kept")
		assert.Contains(t, buf.String(), "kept")
	})
}

func TestDefault(t *testing.T) {
	assert.Same(t, Default(), Default())
}
