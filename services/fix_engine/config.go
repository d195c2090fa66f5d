// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fixengine is the analysis entry point: it parses a source file,
// runs the detector framework, and attaches generated (optionally evolved)
// solutions to every finding.
package fixengine

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
	"github.com/perfscope/perfscope/services/fix_engine/detect"
	"github.com/perfscope/perfscope/services/fix_engine/evolve"
)

// ErrInvalidConfig marks a configuration the engine cannot run with.
var ErrInvalidConfig = errors.New("invalid engine config")

// DetectorToggles enables/disables individual detectors.
type DetectorToggles struct {
	NPlusOne    bool `yaml:"n_plus_one"`
	Loops       bool `yaml:"inefficient_loops"`
	Payload     bool `yaml:"large_payload"`
	MemoryLeaks bool `yaml:"memory_leak"`
}

// EvolutionConfig wraps the optimizer tunables with an enable flag.
type EvolutionConfig struct {
	// Enabled switches the optimizer on; when false the generator's
	// template output is attached unmodified.
	Enabled bool `yaml:"enabled"`

	evolve.Config `yaml:",inline"`
}

// Config is the engine configuration, resolved once per run and immutable
// thereafter.
type Config struct {
	// Detectors toggles the built-in detectors.
	Detectors DetectorToggles `yaml:"detectors"`

	// MinSeverity drops findings below the threshold from reports.
	MinSeverity detect.Severity `yaml:"min_severity"`

	// CustomAccessMethods adds per-project data-access method names,
	// keyed by method name with the family as value.
	CustomAccessMethods map[string]string `yaml:"custom_access_methods"`

	// Evolution holds the optimizer settings.
	Evolution EvolutionConfig `yaml:"evolution"`

	// MaxConcurrentFiles bounds the batch worker pool.
	MaxConcurrentFiles int `yaml:"max_concurrent_files"`

	// MaxConcurrentOptimizations bounds simultaneous optimizer runs.
	MaxConcurrentOptimizations int `yaml:"max_concurrent_optimizations"`
}

// DefaultConfig returns the engine defaults: every detector on, low
// severity floor, optimizer on with its standard tunables.
func DefaultConfig() Config {
	return Config{
		Detectors: DetectorToggles{
			NPlusOne:    true,
			Loops:       true,
			Payload:     true,
			MemoryLeaks: true,
		},
		MinSeverity: detect.SeverityLow,
		Evolution: EvolutionConfig{
			Enabled: true,
			Config:  evolve.DefaultConfig(),
		},
		MaxConcurrentFiles:         4,
		MaxConcurrentOptimizations: 2,
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the resolved configuration.
func (c Config) Validate() error {
	switch c.MinSeverity {
	case detect.SeverityLow, detect.SeverityMedium, detect.SeverityHigh, detect.SeverityCritical:
	default:
		return fmt.Errorf("%w: unknown min severity %q", ErrInvalidConfig, c.MinSeverity)
	}
	if c.MaxConcurrentFiles < 1 {
		return fmt.Errorf("%w: max concurrent files %d < 1", ErrInvalidConfig, c.MaxConcurrentFiles)
	}
	if c.MaxConcurrentOptimizations < 1 {
		return fmt.Errorf("%w: max concurrent optimizations %d < 1", ErrInvalidConfig, c.MaxConcurrentOptimizations)
	}
	for method, family := range c.CustomAccessMethods {
		if method == "" {
			return fmt.Errorf("%w: empty custom access method name", ErrInvalidConfig)
		}
		switch ast.Family(family) {
		case ast.FamilyMongoose, ast.FamilySequelize, ast.FamilyPrisma, ast.FamilyTypeORM, ast.FamilyKnex:
		default:
			return fmt.Errorf("%w: unknown access family %q for method %q", ErrInvalidConfig, family, method)
		}
	}
	if c.Evolution.Enabled {
		if err := c.Evolution.Config.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// customMethods converts the configured patterns for the access resolver.
func (c Config) customMethods() map[string]ast.Family {
	if len(c.CustomAccessMethods) == 0 {
		return nil
	}
	out := make(map[string]ast.Family, len(c.CustomAccessMethods))
	for method, family := range c.CustomAccessMethods {
		out[method] = ast.Family(family)
	}
	return out
}

// detectors builds the enabled detector list in report order.
func (c Config) detectors() []detect.Detector {
	var out []detect.Detector
	if c.Detectors.NPlusOne {
		out = append(out, detect.NewNPlusOneDetector())
	}
	if c.Detectors.Loops {
		out = append(out, detect.NewLoopDetector())
	}
	if c.Detectors.Payload {
		out = append(out, detect.NewPayloadDetector())
	}
	if c.Detectors.MemoryLeaks {
		out = append(out, detect.NewMemoryLeakDetector())
	}
	return out
}
