// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fix generates and scores candidate fixes for detected issues:
// a deterministic template catalog per issue type, and the weighted fitness
// calculator that ranks every solution list in the engine.
package fix

import (
	"sort"
	"strings"

	"github.com/perfscope/perfscope/services/fix_engine/detect"
)

// Fitness weights. The four sub-scores are each 0-100; the weighted sum is
// the solution's fitnessScore.
const (
	weightPerformance     = 0.40
	weightComplexity      = 0.20
	weightMaintainability = 0.25
	weightCompatibility   = 0.15
)

// performanceScores grades the expected runtime win by solution type.
var performanceScores = map[string]float64{
	TypeEagerLoading:      90,
	TypeBatchQuery:        85,
	TypeJoinQuery:         80,
	TypeRawSQL:            85,
	TypePromiseAll:        85,
	TypeIndexedLookup:     85,
	TypeCombinedIteration: 75,
	TypeStringJoin:        75,
	TypeAsyncIO:           90,
	TypeHoistedRegex:      70,
	TypeHoistedJSON:       75,
	TypeDocumentFragment:  80,
	TypeMapTransform:      65,
	TypeFlattenedLoops:    80,
	TypeFieldSelection:    80,
	TypePagination:        85,
	TypeStreaming:         75,
	TypeCleanupHandler:    70,
	TypeScopedState:       65,
}

// maintainabilityScores grades how readable the result stays by type.
var maintainabilityScores = map[string]float64{
	TypeEagerLoading:      85,
	TypeBatchQuery:        75,
	TypeJoinQuery:         65,
	TypeRawSQL:            50,
	TypePromiseAll:        80,
	TypeIndexedLookup:     75,
	TypeCombinedIteration: 80,
	TypeStringJoin:        85,
	TypeAsyncIO:           80,
	TypeHoistedRegex:      85,
	TypeHoistedJSON:       80,
	TypeDocumentFragment:  75,
	TypeMapTransform:      85,
	TypeFlattenedLoops:    70,
	TypeFieldSelection:    85,
	TypePagination:        80,
	TypeStreaming:         60,
	TypeCleanupHandler:    85,
	TypeScopedState:       80,
}

// complexityByRisk grades implementation complexity by risk level.
var complexityByRisk = map[detect.RiskLevel]float64{
	detect.RiskLow:    90,
	detect.RiskMedium: 70,
	detect.RiskHigh:   50,
}

// typeDependencies names a package a solution type needs installed.
var typeDependencies = map[string]string{
	TypeBatchQuery: "dataloader",
	TypeStreaming:  "JSONStream",
}

// defaultSubScore applies when a solution type has no table entry,
// including "evolved" candidates.
const defaultSubScore = 70

// ProjectContext describes the surrounding project for compatibility
// scoring: which fix patterns it already uses and which packages it has
// installed. The zero value means "nothing known" and is valid.
type ProjectContext struct {
	// Patterns holds solution types already present in the codebase.
	Patterns map[string]bool

	// Dependencies holds installed package names.
	Dependencies map[string]bool
}

// HasPattern reports whether the project already uses the pattern.
func (pc ProjectContext) HasPattern(solutionType string) bool {
	return pc.Patterns[solutionType]
}

// HasDependency reports whether the package is installed.
func (pc ProjectContext) HasDependency(name string) bool {
	return pc.Dependencies[name]
}

// Calculator computes the weighted fitness score for solutions.
//
// Thread Safety: Read-only after construction.
type Calculator struct {
	project ProjectContext
}

// NewCalculator creates a Calculator scoring against the given project.
func NewCalculator(project ProjectContext) *Calculator {
	return &Calculator{project: project}
}

// Fitness computes the weighted 0-100 fitness score for one solution.
//
// Description:
//
//	fitness = 0.40·performance + 0.20·complexity + 0.25·maintainability
//	        + 0.15·compatibility, each sub-score 0-100.
func (c *Calculator) Fitness(s detect.Solution) float64 {
	return weightPerformance*c.performance(s) +
		weightComplexity*c.complexity(s) +
		weightMaintainability*c.maintainability(s) +
		weightCompatibility*c.compatibility(s)
}

func (c *Calculator) performance(s detect.Solution) float64 {
	if score, ok := performanceScores[s.Type]; ok {
		return score
	}
	return defaultSubScore
}

// complexity grades by risk level, adjusted for the effort estimate: quick
// fixes (<30 min) gain 10, long ones (>120 min) lose 20.
func (c *Calculator) complexity(s detect.Solution) float64 {
	score, ok := complexityByRisk[s.RiskLevel]
	if !ok {
		score = complexityByRisk[detect.RiskMedium]
	}
	if s.EstimatedMinutes > 0 && s.EstimatedMinutes < 30 {
		score += 10
	}
	if s.EstimatedMinutes > 120 {
		score -= 20
	}
	return clamp(score)
}

func (c *Calculator) maintainability(s detect.Solution) float64 {
	if score, ok := maintainabilityScores[s.Type]; ok {
		return score
	}
	return defaultSubScore
}

// compatibility starts at 80: +20 when the project already uses the
// pattern, -15 when the solution needs a package that is not installed,
// -10 for a raw-query escape hatch.
func (c *Calculator) compatibility(s detect.Solution) float64 {
	score := 80.0
	if c.project.HasPattern(s.Type) {
		score += 20
	}
	if dep, needs := typeDependencies[s.Type]; needs && !c.project.HasDependency(dep) {
		score -= 15
	}
	if isRawQuery(s) {
		score -= 10
	}
	return clamp(score)
}

// isRawQuery reports whether the solution drops to raw SQL.
func isRawQuery(s detect.Solution) bool {
	return s.Type == TypeRawSQL || strings.Contains(s.Type, "raw")
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Rank recomputes fitness for every solution, sorts descending, and
// reassigns dense 1-based ranks. This is the single re-ranking primitive:
// generator output, optimizer output, and merged lists all pass through it.
//
// The sort is stable, so ties keep their input order. The input slice is
// modified in place and returned.
func (c *Calculator) Rank(solutions []detect.Solution) []detect.Solution {
	for i := range solutions {
		solutions[i].FitnessScore = c.Fitness(solutions[i])
	}
	sort.SliceStable(solutions, func(i, j int) bool {
		return solutions[i].FitnessScore > solutions[j].FitnessScore
	})
	for i := range solutions {
		solutions[i].Rank = i + 1
	}
	return solutions
}
