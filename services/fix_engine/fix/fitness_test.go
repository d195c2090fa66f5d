// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perfscope/perfscope/services/fix_engine/detect"
)

func TestFitnessFormula(t *testing.T) {
	t.Run("weighted sum of the four sub-scores", func(t *testing.T) {
		calc := NewCalculator(ProjectContext{})
		s := detect.Solution{
			Type:             TypeEagerLoading,
			RiskLevel:        detect.RiskLow,
			EstimatedMinutes: 20,
		}
		// performance 90, complexity 90+10=100, maintainability 85,
		// compatibility 80.
		want := 0.40*90 + 0.20*100 + 0.25*85 + 0.15*80
		assert.InDelta(t, want, calc.Fitness(s), 1e-9)
	})

	t.Run("unknown type uses the default sub-scores", func(t *testing.T) {
		calc := NewCalculator(ProjectContext{})
		s := detect.Solution{
			Type:             TypeEvolved,
			RiskLevel:        detect.RiskMedium,
			EstimatedMinutes: 45,
		}
		want := 0.40*70 + 0.20*70 + 0.25*70 + 0.15*80
		assert.InDelta(t, want, calc.Fitness(s), 1e-9)
	})

	t.Run("long estimates lower the complexity score", func(t *testing.T) {
		calc := NewCalculator(ProjectContext{})
		quick := detect.Solution{Type: TypeBatchQuery, RiskLevel: detect.RiskLow, EstimatedMinutes: 20}
		slow := detect.Solution{Type: TypeBatchQuery, RiskLevel: detect.RiskLow, EstimatedMinutes: 180}
		assert.Greater(t, calc.Fitness(quick), calc.Fitness(slow))
	})

	t.Run("existing pattern raises compatibility", func(t *testing.T) {
		s := detect.Solution{Type: TypeEagerLoading, RiskLevel: detect.RiskLow, EstimatedMinutes: 60}
		plain := NewCalculator(ProjectContext{})
		seen := NewCalculator(ProjectContext{Patterns: map[string]bool{TypeEagerLoading: true}})
		assert.InDelta(t, 0.15*20, seen.Fitness(s)-plain.Fitness(s), 1e-9)
	})

	t.Run("missing dependency lowers compatibility", func(t *testing.T) {
		s := detect.Solution{Type: TypeBatchQuery, RiskLevel: detect.RiskLow, EstimatedMinutes: 60}
		missing := NewCalculator(ProjectContext{})
		installed := NewCalculator(ProjectContext{Dependencies: map[string]bool{"dataloader": true}})
		assert.InDelta(t, 0.15*15, installed.Fitness(s)-missing.Fitness(s), 1e-9)
	})

	t.Run("raw query pays a compatibility penalty", func(t *testing.T) {
		raw := detect.Solution{Type: TypeRawSQL, RiskLevel: detect.RiskLow, EstimatedMinutes: 60}
		calc := NewCalculator(ProjectContext{})
		// compatibility: 80 - 10 = 70.
		want := 0.40*85 + 0.20*90 + 0.25*50 + 0.15*70
		assert.InDelta(t, want, calc.Fitness(raw), 1e-9)
	})

	t.Run("sub-scores clamp to the 0-100 range", func(t *testing.T) {
		calc := NewCalculator(ProjectContext{})
		s := detect.Solution{
			Type:             TypeStringJoin,
			RiskLevel:        detect.RiskLow,
			EstimatedMinutes: 10,
		}
		// complexity would be 90+10=100, never above.
		assert.LessOrEqual(t, calc.Fitness(s), 100.0)
	})
}

func TestRank(t *testing.T) {
	t.Run("assigns dense ranks consistent with descending fitness", func(t *testing.T) {
		calc := NewCalculator(ProjectContext{})
		solutions := []detect.Solution{
			{ID: "a", Type: TypeStreaming, RiskLevel: detect.RiskHigh, EstimatedMinutes: 90},
			{ID: "b", Type: TypeEagerLoading, RiskLevel: detect.RiskLow, EstimatedMinutes: 20},
			{ID: "c", Type: TypePagination, RiskLevel: detect.RiskLow, EstimatedMinutes: 30},
		}
		ranked := calc.Rank(solutions)
		require.Len(t, ranked, 3)
		for i, s := range ranked {
			assert.Equal(t, i+1, s.Rank)
			if i > 0 {
				assert.GreaterOrEqual(t, ranked[i-1].FitnessScore, s.FitnessScore)
			}
		}
		assert.Equal(t, "b", ranked[0].ID)
	})

	t.Run("ties keep input order", func(t *testing.T) {
		calc := NewCalculator(ProjectContext{})
		solutions := []detect.Solution{
			{ID: "first", Type: TypePromiseAll, RiskLevel: detect.RiskMedium, EstimatedMinutes: 20},
			{ID: "second", Type: TypePromiseAll, RiskLevel: detect.RiskMedium, EstimatedMinutes: 20},
		}
		ranked := calc.Rank(solutions)
		assert.Equal(t, "first", ranked[0].ID)
		assert.Equal(t, "second", ranked[1].ID)
		assert.Equal(t, []int{1, 2}, []int{ranked[0].Rank, ranked[1].Rank})
	})

	t.Run("empty input stays empty", func(t *testing.T) {
		calc := NewCalculator(ProjectContext{})
		assert.Empty(t, calc.Rank(nil))
	})
}
