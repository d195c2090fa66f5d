// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fixengine

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
	"github.com/perfscope/perfscope/services/fix_engine/detect"
	"github.com/perfscope/perfscope/services/fix_engine/events"
	"github.com/perfscope/perfscope/services/fix_engine/evolve"
	"github.com/perfscope/perfscope/services/fix_engine/fix"
)

var tracer = otel.Tracer("perfscope.engine")

// Engine runs the full analysis pipeline for source files.
//
// Thread Safety: Read-only after construction; safe for concurrent use.
type Engine struct {
	cfg       Config
	framework *detect.Framework
	generator *fix.Generator
	optimizer *evolve.Optimizer
	emitter   *events.Emitter
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEmitter attaches a progress-event emitter for optimizer runs. Nil
// is allowed and means no progress reporting.
func WithEmitter(emitter *events.Emitter) EngineOption {
	return func(e *Engine) {
		e.emitter = emitter
	}
}

// WithProject sets the project context used for fitness scoring.
func WithProject(project fix.ProjectContext) EngineOption {
	return func(e *Engine) {
		e.generator = fix.NewGenerator(project)
	}
}

// NewEngine creates an Engine from a validated config.
func NewEngine(cfg Config, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		generator: fix.NewGenerator(fix.ProjectContext{}),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.framework = detect.NewFramework(
		detect.WithDetectors(cfg.detectors()...),
		detect.WithLogger(e.logger),
	)
	if cfg.Evolution.Enabled {
		e.optimizer = evolve.NewOptimizer(cfg.Evolution.Config, e.generator,
			evolve.WithEmitter(e.emitter),
			evolve.WithLogger(e.logger),
		)
	}
	return e, nil
}

// AnalyzeSource analyzes one file.
//
// Description:
//
//	Parses the source, runs the enabled detectors, filters findings by
//	the severity floor, and — when generateSolutions is set — attaches
//	the ranked solution list to every surviving issue. With the
//	optimizer enabled, each issue's templates are refined by an
//	evolutionary run; optimizer runs for different issues execute
//	concurrently under the configured bound.
//
// Inputs:
//
//	ctx - Cancels the analysis between stages.
//	source - The file's source text.
//	fileID - Identifier reported in findings (usually the path).
//	generateSolutions - Attach solutions to issues when true.
//
// Outputs:
//
//	[]detect.Result - Per-detector findings in report order.
//	error - Parse failure, detector failure, or cancellation. Parse
//	    failure is the only expected hard failure for a file.
func (e *Engine) AnalyzeSource(ctx context.Context, source []byte, fileID string, generateSolutions bool) ([]detect.Result, error) {
	ctx, span := tracer.Start(ctx, "engine.AnalyzeSource", trace.WithAttributes(
		attribute.String("file.id", fileID),
		attribute.Int("file.bytes", len(source)),
	))
	defer span.End()

	actx, err := ast.Parse(ctx, source, fileID)
	if err != nil {
		return nil, err
	}
	defer actx.Close()

	if custom := e.cfg.customMethods(); custom != nil {
		actx.Access = ast.ResolveAccessContext(actx, custom)
	}

	results, err := e.framework.Run(ctx, actx)
	if err != nil {
		return nil, err
	}
	results = e.filterBySeverity(results)

	if generateSolutions {
		if err := e.attachSolutions(ctx, results); err != nil {
			return nil, err
		}
	}

	issueCount := 0
	for _, r := range results {
		issueCount += len(r.Issues)
	}
	span.SetAttributes(attribute.Int("issues", issueCount))
	e.logger.Info("file analyzed",
		"file", fileID,
		"issues", issueCount,
		"solutions", generateSolutions,
	)
	return results, nil
}

// filterBySeverity drops issues below the configured floor.
func (e *Engine) filterBySeverity(results []detect.Result) []detect.Result {
	for i := range results {
		kept := results[i].Issues[:0]
		for _, issue := range results[i].Issues {
			if issue.Severity.AtLeast(e.cfg.MinSeverity) {
				kept = append(kept, issue)
			}
		}
		results[i].Issues = kept
	}
	return results
}

// attachSolutions fills every issue's solution list, fanning optimizer
// runs out across issues under the concurrency bound.
func (e *Engine) attachSolutions(ctx context.Context, results []detect.Result) error {
	if e.optimizer == nil {
		for ri := range results {
			for ii := range results[ri].Issues {
				issue := &results[ri].Issues[ii]
				issue.Solutions = e.generator.GenerateSolutions(*issue)
			}
		}
		return nil
	}

	sem := semaphore.NewWeighted(int64(e.cfg.MaxConcurrentOptimizations))
	g, ctx := errgroup.WithContext(ctx)
	for ri := range results {
		for ii := range results[ri].Issues {
			issue := &results[ri].Issues[ii]
			g.Go(func() error {
				if err := sem.Acquire(ctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)
				issue.Solutions = e.optimizer.Optimize(ctx, *issue)
				return nil
			})
		}
	}
	return g.Wait()
}

// FileInput is one file in a batch analysis.
type FileInput struct {
	ID     string
	Source []byte
}

// FileResult is one file's outcome in a batch analysis. Err is set when
// the file failed (typically a parse error); Results is nil in that case.
type FileResult struct {
	FileID  string
	Results []detect.Result
	Err     error
}

// AnalyzeFiles analyzes a batch of files with a bounded worker pool.
//
// Description:
//
//	Files are independent, so they run concurrently up to
//	MaxConcurrentFiles. A per-file failure is recorded in its
//	FileResult without aborting the batch; the output keeps the input
//	order.
func (e *Engine) AnalyzeFiles(ctx context.Context, files []FileInput, generateSolutions bool) []FileResult {
	out := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentFiles)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			results, err := e.AnalyzeSource(gctx, file.Source, file.ID, generateSolutions)
			if err != nil {
				e.logger.Warn("file analysis failed",
					"file", file.ID,
					"error", err,
				)
				out[i] = FileResult{FileID: file.ID, Err: fmt.Errorf("analyze %s: %w", file.ID, err)}
				return nil
			}
			out[i] = FileResult{FileID: file.ID, Results: results}
			return nil
		})
	}
	// Workers never return errors; Wait only observes cancellation.
	_ = g.Wait()
	return out
}
