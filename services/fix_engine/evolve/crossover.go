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
	"errors"
	"math/rand"
	"strings"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// ErrCrossoverFailed marks a recombination the caller should resolve by
// keeping the parents.
var ErrCrossoverFailed = errors.New("crossover failed")

// Crossover recombines two candidate sources with a single-point split
// over their top-level statement lists.
//
// Description:
//
//	Both parents are parsed; a split index bounded by the shorter
//	parent's statement count is drawn once and used for both orderings:
//	child one is A's prefix with B's suffix, child two the reverse. The
//	children are regenerated as source text; the caller must validate
//	them before admitting either to a population.
//
// Outputs:
//
//	string - Child from A's prefix and B's suffix.
//	string - Child from B's prefix and A's suffix.
//	error - ErrCrossoverFailed when a parent does not parse or has no
//	    top-level statements.
func Crossover(ctx context.Context, a, b string, rng *rand.Rand) (string, string, error) {
	stmtsA, err := topLevelStatements(ctx, a)
	if err != nil {
		return "", "", err
	}
	stmtsB, err := topLevelStatements(ctx, b)
	if err != nil {
		return "", "", err
	}

	shorter := len(stmtsA)
	if len(stmtsB) < shorter {
		shorter = len(stmtsB)
	}
	split := rng.Intn(shorter + 1)

	childAB := joinStatements(stmtsA[:split], stmtsB[split:])
	childBA := joinStatements(stmtsB[:split], stmtsA[split:])
	return childAB, childBA, nil
}

// topLevelStatements returns the source text of each top-level statement.
func topLevelStatements(ctx context.Context, code string) ([]string, error) {
	actx, err := ast.Parse(ctx, []byte(code), "crossover")
	if err != nil {
		return nil, ErrCrossoverFailed
	}
	defer actx.Close()

	if actx.HasErrors() {
		return nil, ErrCrossoverFailed
	}

	var stmts []string
	for i := 0; i < int(actx.Root.NamedChildCount()); i++ {
		stmt := actx.Root.NamedChild(i)
		if stmt == nil || stmt.Type() == ast.NodeComment {
			continue
		}
		stmts = append(stmts, ast.Text(stmt, actx.Source))
	}
	if len(stmts) == 0 {
		return nil, ErrCrossoverFailed
	}
	return stmts, nil
}

// joinStatements rebuilds a program from two statement slices.
func joinStatements(prefix, suffix []string) string {
	parts := make([]string, 0, len(prefix)+len(suffix))
	parts = append(parts, prefix...)
	parts = append(parts, suffix...)
	return strings.Join(parts, "\n\n")
}
