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
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// ValidationResult reports one candidate's acceptance decision. Warnings
// never block acceptance; they exist for run diagnostics.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validator is the single acceptance gate for anything produced by
// mutation or crossover: re-parse the candidate, reject on syntax errors
// or duplicate declarations in one lexical scope, and attach non-blocking
// warnings for unreachable code and empty blocks.
//
// Rejections are normal filtering, not errors; the only error return is a
// cancelled context.
//
// Thread Safety: Safe for concurrent use; the validator holds no state.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks one candidate source string.
func (v *Validator) Validate(ctx context.Context, code string) (*ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ValidationResult{Valid: true}

	actx, err := ast.Parse(ctx, []byte(code), "candidate")
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("parse: %v", err))
		return result, nil
	}
	defer actx.Close()

	if actx.HasErrors() {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("%d syntax error node(s)", actx.SyntaxErrors))
	}

	for _, dup := range actx.Scopes.Duplicates() {
		result.Valid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("duplicate declaration of %q at line %d", dup.Name, dup.Location.StartLine))
	}

	v.collectWarnings(actx, result)
	return result, nil
}

// collectWarnings adds the non-blocking diagnostics: statements after a
// return/throw in the same block, and empty statement blocks.
func (v *Validator) collectWarnings(actx *ast.Context, result *ValidationResult) {
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeStatementBlock && node.Type() != ast.NodeProgram {
			return true
		}

		if node.Type() == ast.NodeStatementBlock && node.NamedChildCount() == 0 {
			loc := ast.LocationOf(node, actx.FileID)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("empty block at line %d", loc.StartLine))
			return true
		}

		terminated := false
		for i := 0; i < int(node.NamedChildCount()); i++ {
			stmt := node.NamedChild(i)
			if stmt == nil || stmt.Type() == ast.NodeComment {
				continue
			}
			if terminated {
				loc := ast.LocationOf(stmt, actx.FileID)
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("unreachable statement at line %d", loc.StartLine))
				break
			}
			if stmt.Type() == ast.NodeReturnStatement || stmt.Type() == ast.NodeThrowStatement {
				terminated = true
			}
		}
		return true
	})
}
