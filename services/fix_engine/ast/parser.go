// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Sentinel errors for the ast package.
var (
	// ErrInvalidContent indicates the source is not valid UTF-8.
	ErrInvalidContent = errors.New("source is not valid UTF-8")

	// ErrFileTooLarge indicates the source exceeds MaxSourceSize.
	ErrFileTooLarge = errors.New("source exceeds maximum size")

	// ErrSyntax indicates the source did not produce a usable tree.
	ErrSyntax = errors.New("syntax error")
)

// MaxSourceSize bounds the accepted input size (10MB, matching the
// JavaScript parser elsewhere in this codebase).
const MaxSourceSize = 10 * 1024 * 1024

// ParseError reports a per-file parse failure with enough context for a
// batch caller to record the failure without losing other files.
//
// Thread Safety: Immutable after creation.
type ParseError struct {
	// FileID identifies the file that failed.
	FileID string

	// Message describes the failure.
	Message string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.FileID, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Context is the read-only analysis context for one file: source bytes,
// parsed tree, lexical scopes, and the optional data-access library context.
// Built once per file via Parse; detectors must never mutate it.
//
// Thread Safety: Safe for concurrent reads after Parse returns. Call Close
// when finished to release the tree-sitter tree.
type Context struct {
	// Source is the raw source text.
	Source []byte

	// FileID identifies the file (relative path or synthetic identifier).
	FileID string

	// Tree is the parsed tree-sitter tree. Owned by this Context.
	Tree *sitter.Tree

	// Root is the program node.
	Root *sitter.Node

	// Scopes is the lexical scope table.
	Scopes *ScopeTable

	// Access is the data-access library context. Nil until
	// ResolveAccessContext is called (Parse calls it).
	Access *AccessContext

	// SyntaxErrors counts ERROR/MISSING nodes found in the tree.
	SyntaxErrors int
}

// HasErrors reports whether the tree contains syntax errors.
func (c *Context) HasErrors() bool {
	return c.SyntaxErrors > 0
}

// Close releases the underlying tree. Safe to call more than once.
func (c *Context) Close() {
	if c.Tree != nil {
		c.Tree.Close()
		c.Tree = nil
	}
}

// Parse parses source text into an analysis Context.
//
// Description:
//
//	Parses the source with tree-sitter's JavaScript grammar, builds the
//	lexical scope table, and resolves the data-access library context from
//	import/require statements. A tree containing ERROR nodes is still
//	returned (detectors tolerate partial trees); a tree that is nothing but
//	errors is rejected.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing.
//	source - Raw source bytes. Must be valid UTF-8.
//	fileID - File identifier used in locations and error reports.
//
// Outputs:
//
//	*Context - The analysis context. Never nil on success.
//	error - *ParseError on failure.
//
// Thread Safety: Safe for concurrent use. A parser is created per call.
func Parse(ctx context.Context, source []byte, fileID string) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ParseError{FileID: fileID, Message: "canceled before parse", Err: err}
	}
	if len(source) > MaxSourceSize {
		return nil, &ParseError{FileID: fileID, Message: ErrFileTooLarge.Error(), Err: ErrFileTooLarge}
	}
	if !utf8.Valid(source) {
		return nil, &ParseError{FileID: fileID, Message: ErrInvalidContent.Error(), Err: ErrInvalidContent}
	}

	ctx, span := startParseSpan(ctx, fileID, len(source))
	defer span.End()
	start := time.Now()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, &ParseError{FileID: fileID, Message: err.Error(), Err: err}
	}

	if err := ctx.Err(); err != nil {
		tree.Close()
		return nil, &ParseError{FileID: fileID, Message: "canceled after parse", Err: err}
	}

	root := tree.RootNode()
	syntaxErrors := CountSyntaxErrors(root)

	// A root with no named children but error flags means tree-sitter could
	// not recover any structure at all.
	if root.HasError() && int(root.NamedChildCount()) == 0 {
		tree.Close()
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, &ParseError{FileID: fileID, Message: "no parsable statements", Err: ErrSyntax}
	}

	ac := &Context{
		Source:       source,
		FileID:       fileID,
		Tree:         tree,
		Root:         root,
		SyntaxErrors: syntaxErrors,
	}
	ac.Scopes = BuildScopes(root, source)
	ac.Access = ResolveAccessContext(ac, nil)

	recordParseMetrics(ctx, time.Since(start), true)
	setParseSpanResult(span, syntaxErrors)
	return ac, nil
}

// CountSyntaxErrors counts ERROR and MISSING nodes under root.
func CountSyntaxErrors(root *sitter.Node) int {
	count := 0
	Walk(root, func(node *sitter.Node) bool {
		if node.IsError() || node.IsMissing() {
			count++
		}
		return true
	})
	return count
}
