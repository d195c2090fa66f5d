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

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// NPlusOneDetector finds database calls executed once per loop iteration —
// the classic N+1 query pattern.
//
// # Detection Logic
//
//  1. Collect every loop construct (statement loops and iteration methods).
//  2. Within the loop's own scope (nested function bodies excluded unless
//     awaited inline), find calls whose callee resolves through the file's
//     AccessContext to a known data-access family.
//  3. When no family was detected anywhere in the file, fall back to
//     library-agnostic method-name heuristics.
//
// One issue per offending loop; severity grows monotonically with the call
// count: medium (1), high (2), critical (>=3).
//
// # Thread Safety
//
// Safe for concurrent use; the detector holds no state.
type NPlusOneDetector struct{}

// Verify interface compliance at compile time.
var _ Detector = (*NPlusOneDetector)(nil)

// NewNPlusOneDetector creates the detector.
func NewNPlusOneDetector() *NPlusOneDetector {
	return &NPlusOneDetector{}
}

// Name returns the detector identifier.
func (d *NPlusOneDetector) Name() string {
	return "n_plus_one"
}

// Detect finds N+1 query patterns in the file.
func (d *NPlusOneDetector) Detect(ctx context.Context, actx *ast.Context) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0)
	for _, loop := range CollectLoops(actx) {
		calls := d.databaseCalls(loop, actx)
		if len(calls) == 0 {
			continue
		}
		issues = append(issues, d.buildIssue(loop, calls, actx))
	}
	return issues, nil
}

// databaseCalls collects resolved data-access calls inside one loop body.
func (d *NPlusOneDetector) databaseCalls(loop Loop, actx *ast.Context) []DatabaseCall {
	var calls []DatabaseCall

	WalkLoopBody(loop, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		object, method, ok := ast.CalleeParts(node, actx.Source)
		if !ok || object == "" {
			return true
		}

		var family ast.Family
		if actx.Access.Detected() {
			resolved, isDB := actx.Access.ResolveCall(object, method)
			if !isDB {
				return true
			}
			family = resolved
		} else if !ast.HeuristicMethod(method) {
			return true
		}

		calls = append(calls, DatabaseCall{
			MethodName: method,
			Family:     family,
			Location:   ast.LocationOf(node, actx.FileID),
			Snippet:    snippet(ast.Text(node, actx.Source)),
		})
		return true
	})
	return calls
}

// severityForCalls maps the resolved call count to severity. More evidence
// never lowers severity.
func severityForCalls(count int) Severity {
	switch {
	case count >= 3:
		return SeverityCritical
	case count == 2:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func (d *NPlusOneDetector) buildIssue(loop Loop, calls []DatabaseCall, actx *ast.Context) Issue {
	severity := severityForCalls(len(calls))

	issue := NewIssue(TypeNPlusOneQuery, severity, actx.FileID)
	issue.LineNumber = loop.Location.StartLine
	issue.Title = fmt.Sprintf("N+1 query: %d database call(s) inside a %s loop", len(calls), loop.Kind)
	issue.Description = fmt.Sprintf(
		"Each iteration of this %s loop issues a database query (%s). "+
			"With N items this executes N additional queries instead of one batched query.",
		loop.Kind, calls[0].MethodName,
	)
	issue.BeforeSnippet = snippet(ast.Text(loop.Node, actx.Source))

	// Model the blowup at a nominal 100 iterations: calls*100+1 queries
	// versus a single optimal query.
	atScale := float64(len(calls)*100 + 1)
	confidence := 80.0
	if !actx.Access.Detected() {
		confidence = 60.0
	}
	issue.EstimatedImpact = &EstimatedImpact{
		SeverityScore: severityScoreFor(severity),
		Description: fmt.Sprintf(
			"~%.0f queries at 100 iterations where 1 would do", atScale),
		ConfidenceScore: confidence,
		Metrics: map[string]float64{
			"database_calls_in_loop": float64(len(calls)),
			"queries_at_scale":       atScale,
			"optimal_queries":        1,
		},
	}
	return issue
}

// severityScoreFor maps severity tags to the 0-10 impact scale.
func severityScoreFor(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 9
	case SeverityHigh:
		return 7
	case SeverityMedium:
		return 5
	default:
		return 3
	}
}
