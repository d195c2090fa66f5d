// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscope/perfscope/services/fix_engine/detect"
	"github.com/perfscope/perfscope/services/fix_engine/events"
	"github.com/perfscope/perfscope/services/fix_engine/fix"
)

func testIssue() detect.Issue {
	issue := detect.NewIssue(detect.TypeNPlusOneQuery, detect.SeverityCritical, "test.js")
	issue.Title = "N+1 query in loop"
	issue.BeforeSnippet = `await User.findById(u.id)`
	return issue
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PopulationSize = 8
	cfg.MaxGenerations = 4
	cfg.Seed = 42
	return cfg
}

func TestOptimize(t *testing.T) {
	ctx := context.Background()
	generator := fix.NewGenerator(fix.ProjectContext{})

	t.Run("returns ranked evolved solutions", func(t *testing.T) {
		o := NewOptimizer(testConfig(), generator)
		solutions := o.Optimize(ctx, testIssue())
		require.NotEmpty(t, solutions)
		assert.LessOrEqual(t, len(solutions), maxFinalSolutions)

		v := NewValidator()
		for i, s := range solutions {
			assert.Equal(t, fix.TypeEvolved, s.Type)
			assert.Equal(t, i+1, s.Rank)
			assert.Equal(t, detect.RiskMedium, s.RiskLevel)
			if i > 0 {
				assert.GreaterOrEqual(t, solutions[i-1].FitnessScore, s.FitnessScore)
			}

			result, err := v.Validate(ctx, s.Code)
			require.NoError(t, err)
			assert.True(t, result.Valid, "final solution %d does not validate", i)
		}
	})

	t.Run("emits start, per-generation progress, and complete", func(t *testing.T) {
		emitter := events.NewEmitter()
		rec := events.NewRecorder(emitter)

		cfg := testConfig()
		o := NewOptimizer(cfg, generator, WithEmitter(emitter))
		o.Optimize(ctx, testIssue())

		assert.Len(t, rec.OfType(events.TypeEvolutionStart), 1)
		assert.Len(t, rec.OfType(events.TypeEvolutionComplete), 1)

		progress := rec.OfType(events.TypeEvolutionProgress)
		require.NotEmpty(t, progress)
		assert.LessOrEqual(t, len(progress), cfg.MaxGenerations)
		for i, e := range progress {
			require.NotNil(t, e.Progress)
			assert.Equal(t, i, e.Progress.Generation)
			assert.Equal(t, cfg.MaxGenerations, e.Progress.MaxGenerations)
			assert.GreaterOrEqual(t, e.Progress.BestFitness, e.Progress.AvgFitness)
			assert.NotEmpty(t, e.Progress.Population)
		}
	})

	t.Run("invalid config falls back to generator output", func(t *testing.T) {
		cfg := testConfig()
		cfg.PopulationSize = 0

		emitter := events.NewEmitter()
		rec := events.NewRecorder(emitter)
		o := NewOptimizer(cfg, generator, WithEmitter(emitter))

		issue := testIssue()
		solutions := o.Optimize(ctx, issue)
		require.NotEmpty(t, solutions)
		for _, s := range solutions {
			assert.NotEqual(t, fix.TypeEvolved, s.Type)
		}
		assert.Len(t, rec.OfType(events.TypeEvolutionTimeout), 1)
	})

	t.Run("unknown issue type yields no solutions", func(t *testing.T) {
		o := NewOptimizer(testConfig(), generator)
		issue := detect.NewIssue("mystery", detect.SeverityLow, "test.js")
		assert.Empty(t, o.Optimize(ctx, issue))
	})

	t.Run("cancelled context falls back", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		o := NewOptimizer(testConfig(), generator)
		solutions := o.Optimize(cancelled, testIssue())
		// Fallback output, never a panic or an empty hard failure.
		require.NotEmpty(t, solutions)
		for _, s := range solutions {
			assert.NotEqual(t, fix.TypeEvolved, s.Type)
		}
	})

	t.Run("same seed reproduces the same evolved codes", func(t *testing.T) {
		issue := testIssue()
		a := NewOptimizer(testConfig(), generator).Optimize(ctx, issue)
		b := NewOptimizer(testConfig(), generator).Optimize(ctx, issue)
		require.Equal(t, len(a), len(b))
		for i := range a {
			assert.Equal(t, a[i].Code, b[i].Code)
			assert.Equal(t, a[i].FitnessScore, b[i].FitnessScore)
		}
	})
}

func TestSelectSurvivors(t *testing.T) {
	t.Run("keeps the elite unconditionally", func(t *testing.T) {
		pool := []Candidate{
			{ID: "low", Fitness: 10},
			{ID: "top", Fitness: 90},
			{ID: "mid", Fitness: 50},
			{ID: "second", Fitness: 80},
		}
		survivors := selectSurvivors(testRand(), pool, 3, 2)
		require.Len(t, survivors, 3)
		assert.Equal(t, "top", survivors[0].ID)
		assert.Equal(t, "second", survivors[1].ID)
	})

	t.Run("uniform fallback when all fitness is non-positive", func(t *testing.T) {
		pool := []Candidate{
			{ID: "a", Fitness: 0},
			{ID: "b", Fitness: 0},
			{ID: "c", Fitness: 0},
		}
		survivors := selectSurvivors(testRand(), pool, 2, 0)
		assert.Len(t, survivors, 2)
	})

	t.Run("small pools survive whole", func(t *testing.T) {
		pool := []Candidate{{ID: "only", Fitness: 5}}
		survivors := selectSurvivors(testRand(), pool, 4, 2)
		assert.Len(t, survivors, 1)
	})
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.MutationRate = 1.5
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	bad = DefaultConfig()
	bad.ElitismCount = 99
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}
