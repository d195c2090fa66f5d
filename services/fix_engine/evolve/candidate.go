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
	"math/rand"
	"sort"

	"github.com/google/uuid"

	"github.com/perfscope/perfscope/services/fix_engine/detect"
)

// Candidate is one population member in an optimizer run. Candidates are
// discarded at run end except for those converted to final Solutions.
type Candidate struct {
	// ID uniquely identifies the candidate within the run.
	ID string

	// Code is the candidate's regenerated source.
	Code string

	// SolutionType carries the seed template's type for fitness scoring;
	// offspring inherit it from their first parent.
	SolutionType string

	// Risk and Minutes also carry over from the seed template.
	Risk    detect.RiskLevel
	Minutes int

	// Fitness is the last evaluated score.
	Fitness float64

	// Generation is the index the candidate was created in.
	Generation int

	// ParentIDs holds up to two parents (empty for seeds).
	ParentIDs []string

	// Mutations lists the operator descriptions applied along this
	// candidate's lineage.
	Mutations []string
}

// newSeedCandidate wraps a validated template solution as generation zero.
func newSeedCandidate(s detect.Solution) Candidate {
	return Candidate{
		ID:           uuid.NewString(),
		Code:         s.Code,
		SolutionType: s.Type,
		Risk:         s.RiskLevel,
		Minutes:      s.EstimatedMinutes,
	}
}

// asSolution converts a candidate for fitness scoring.
func (c Candidate) asSolution() detect.Solution {
	return detect.Solution{
		Type:             c.SolutionType,
		RiskLevel:        c.Risk,
		EstimatedMinutes: c.Minutes,
	}
}

// tournamentSelect samples size candidates uniformly (with replacement)
// and returns the fittest. Each selection slot draws independently.
func tournamentSelect(rng *rand.Rand, pop []Candidate, size int) Candidate {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < size; i++ {
		contender := pop[rng.Intn(len(pop))]
		if contender.Fitness > best.Fitness {
			best = contender
		}
	}
	return best
}

// selectSurvivors keeps the next generation: the top elitism candidates
// unconditionally, then fitness-proportionate (roulette) selection over
// the rest, falling back to uniform choice when every remaining fitness
// is non-positive.
func selectSurvivors(rng *rand.Rand, combined []Candidate, popSize, elitism int) []Candidate {
	sorted := make([]Candidate, len(combined))
	copy(sorted, combined)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Fitness > sorted[j].Fitness
	})

	if popSize >= len(sorted) {
		return sorted
	}
	if elitism > popSize {
		elitism = popSize
	}

	survivors := make([]Candidate, 0, popSize)
	survivors = append(survivors, sorted[:elitism]...)
	rest := sorted[elitism:]

	for len(survivors) < popSize && len(rest) > 0 {
		idx := rouletteIndex(rng, rest)
		survivors = append(survivors, rest[idx])
		rest = append(rest[:idx], rest[idx+1:]...)
	}
	return survivors
}

// rouletteIndex draws an index with probability proportional to fitness,
// or uniformly when the total non-positive.
func rouletteIndex(rng *rand.Rand, pool []Candidate) int {
	total := 0.0
	for _, c := range pool {
		if c.Fitness > 0 {
			total += c.Fitness
		}
	}
	if total <= 0 {
		return rng.Intn(len(pool))
	}
	target := rng.Float64() * total
	acc := 0.0
	for i, c := range pool {
		if c.Fitness > 0 {
			acc += c.Fitness
		}
		if acc >= target {
			return i
		}
	}
	return len(pool) - 1
}

// bestAndMean returns the fittest candidate and the population mean.
func bestAndMean(pop []Candidate) (Candidate, float64) {
	best := pop[0]
	sum := 0.0
	for _, c := range pop {
		sum += c.Fitness
		if c.Fitness > best.Fitness {
			best = c
		}
	}
	return best, sum / float64(len(pop))
}
