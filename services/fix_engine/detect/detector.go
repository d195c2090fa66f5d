// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// Detector inspects one parsed file and emits issues.
//
// Implementations must be pure functions of the analysis context: no I/O,
// no mutation of the context, no state between calls. Two calls with the
// same input must produce equivalent output (modulo generated IDs).
type Detector interface {
	// Name returns the detector identifier used in reports.
	Name() string

	// Detect walks the context and returns the issues found.
	Detect(ctx context.Context, actx *ast.Context) ([]Issue, error)
}

// Framework runs a fixed detector list over a file.
//
// Thread Safety: Read-only after construction; Run is safe for concurrent
// use across files.
type Framework struct {
	detectors []Detector
	logger    *slog.Logger
}

// FrameworkOption configures a Framework.
type FrameworkOption func(*Framework)

// WithLogger sets the framework logger.
func WithLogger(logger *slog.Logger) FrameworkOption {
	return func(f *Framework) {
		f.logger = logger
	}
}

// WithDetectors replaces the detector list.
func WithDetectors(detectors ...Detector) FrameworkOption {
	return func(f *Framework) {
		f.detectors = detectors
	}
}

// NewFramework creates a Framework with the default detector set: N+1,
// inefficient loops, large payloads, memory leaks — in that report order.
func NewFramework(opts ...FrameworkOption) *Framework {
	f := &Framework{
		detectors: []Detector{
			NewNPlusOneDetector(),
			NewLoopDetector(),
			NewPayloadDetector(),
			NewMemoryLeakDetector(),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Detectors returns the registered detectors in report order.
func (f *Framework) Detectors() []Detector {
	out := make([]Detector, len(f.detectors))
	copy(out, f.detectors)
	return out
}

// Run executes every detector against the file.
//
// Description:
//
//	Detectors run sequentially over the shared read-only tree; their
//	results are concatenated in registration order (order affects report
//	order only). A detector error aborts this file — the error carries the
//	detector name so a batch caller can record a per-file failure without
//	losing other files.
//
// Thread Safety: Safe for concurrent use on distinct files.
func (f *Framework) Run(ctx context.Context, actx *ast.Context) ([]Result, error) {
	results := make([]Result, 0, len(f.detectors))
	for _, d := range f.detectors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		issues, err := d.Detect(ctx, actx)
		if err != nil {
			return nil, fmt.Errorf("detector %s on %s: %w", d.Name(), actx.FileID, err)
		}
		f.logger.Debug("detector finished",
			"detector", d.Name(),
			"file", actx.FileID,
			"issues", len(issues),
		)
		results = append(results, Result{DetectorName: d.Name(), Issues: issues})
	}
	return results, nil
}

// snippet returns a single-line-trimmed excerpt of node text for reports,
// capped to keep issue payloads small.
func snippet(text string) string {
	const max = 240
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
