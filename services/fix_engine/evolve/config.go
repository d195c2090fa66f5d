// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evolve refines template solutions with a generational search:
// tree-level mutation and crossover over parsed candidates, gated by a
// syntax/scope validator, scored by the fix package's fitness calculator.
package evolve

import (
	"errors"
	"fmt"
)

// Sentinel errors for configuration validation.
var (
	ErrInvalidConfig = errors.New("invalid optimizer config")
)

// Config holds the optimizer tunables. The zero value is not runnable;
// start from DefaultConfig.
type Config struct {
	// PopulationSize is the number of candidates per generation.
	PopulationSize int `yaml:"population_size"`

	// MaxGenerations bounds the generational loop.
	MaxGenerations int `yaml:"max_generations"`

	// MutationRate is the per-offspring mutation probability.
	MutationRate float64 `yaml:"mutation_rate"`

	// CrossoverRate scales how many parent pairs recombine per
	// generation: floor(PopulationSize*CrossoverRate/2) pairs.
	CrossoverRate float64 `yaml:"crossover_rate"`

	// ElitismCount is how many top candidates survive unconditionally.
	ElitismCount int `yaml:"elitism_count"`

	// ConvergenceThreshold stops the run when (best-mean)/best drops
	// below it.
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`

	// TournamentSize is the sample size for tournament selection.
	TournamentSize int `yaml:"tournament_size"`

	// Seed fixes the random source for reproducible runs; 0 seeds from
	// the clock.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns the standard tunables.
func DefaultConfig() Config {
	return Config{
		PopulationSize:       20,
		MaxGenerations:       10,
		MutationRate:         0.3,
		CrossoverRate:        0.7,
		ElitismCount:         2,
		ConvergenceThreshold: 0.01,
		TournamentSize:       3,
	}
}

// Validate checks the tunables for runnable ranges.
func (c Config) Validate() error {
	if c.PopulationSize < 1 {
		return fmt.Errorf("%w: population size %d < 1", ErrInvalidConfig, c.PopulationSize)
	}
	if c.MaxGenerations < 1 {
		return fmt.Errorf("%w: max generations %d < 1", ErrInvalidConfig, c.MaxGenerations)
	}
	if c.MutationRate < 0 || c.MutationRate > 1 {
		return fmt.Errorf("%w: mutation rate %f outside [0,1]", ErrInvalidConfig, c.MutationRate)
	}
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 {
		return fmt.Errorf("%w: crossover rate %f outside [0,1]", ErrInvalidConfig, c.CrossoverRate)
	}
	if c.ElitismCount < 0 || c.ElitismCount > c.PopulationSize {
		return fmt.Errorf("%w: elitism count %d outside [0,%d]", ErrInvalidConfig, c.ElitismCount, c.PopulationSize)
	}
	if c.ConvergenceThreshold < 0 {
		return fmt.Errorf("%w: convergence threshold %f < 0", ErrInvalidConfig, c.ConvergenceThreshold)
	}
	if c.TournamentSize < 1 {
		return fmt.Errorf("%w: tournament size %d < 1", ErrInvalidConfig, c.TournamentSize)
	}
	return nil
}
