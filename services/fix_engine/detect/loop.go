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
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// LoopKind classifies a loop construct.
type LoopKind string

const (
	LoopFor             LoopKind = "for"
	LoopForOf           LoopKind = "for-of"
	LoopForIn           LoopKind = "for-in"
	LoopWhile           LoopKind = "while"
	LoopDoWhile         LoopKind = "do-while"
	LoopIterationMethod LoopKind = "iteration-method"
)

// iterationMethods are array methods whose callback executes per element.
var iterationMethods = map[string]struct{}{
	"forEach": {}, "map": {}, "filter": {}, "reduce": {}, "flatMap": {},
	"some": {}, "every": {}, "find": {}, "findIndex": {},
}

// Loop is one loop construct found in a file. Transient: built per Detect
// call, never retained.
type Loop struct {
	// Kind classifies the construct.
	Kind LoopKind

	// Node is the loop statement (or the iteration-method call).
	Node *sitter.Node

	// Body is the statement block or callback body executed per iteration.
	Body *sitter.Node

	// Location is the loop's source range.
	Location ast.Location
}

// DatabaseCall is one resolved data-access call inside a loop. Transient,
// nested in loop analysis only.
type DatabaseCall struct {
	MethodName string
	Family     ast.Family
	Location   ast.Location
	Snippet    string
}

// CollectLoops finds every loop construct in the file: the four statement
// forms plus iteration-method calls carrying a callback.
func CollectLoops(actx *ast.Context) []Loop {
	var loops []Loop

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		switch node.Type() {
		case ast.NodeForStatement:
			loops = append(loops, Loop{
				Kind:     LoopFor,
				Node:     node,
				Body:     node.ChildByFieldName("body"),
				Location: ast.LocationOf(node, actx.FileID),
			})
		case ast.NodeForInStatement:
			loops = append(loops, Loop{
				Kind:     forInKind(node, actx.Source),
				Node:     node,
				Body:     node.ChildByFieldName("body"),
				Location: ast.LocationOf(node, actx.FileID),
			})
		case ast.NodeWhileStatement:
			loops = append(loops, Loop{
				Kind:     LoopWhile,
				Node:     node,
				Body:     node.ChildByFieldName("body"),
				Location: ast.LocationOf(node, actx.FileID),
			})
		case ast.NodeDoStatement:
			loops = append(loops, Loop{
				Kind:     LoopDoWhile,
				Node:     node,
				Body:     node.ChildByFieldName("body"),
				Location: ast.LocationOf(node, actx.FileID),
			})
		case ast.NodeCallExpression:
			if body := iterationCallbackBody(node, actx.Source); body != nil {
				loops = append(loops, Loop{
					Kind:     LoopIterationMethod,
					Node:     node,
					Body:     body,
					Location: ast.LocationOf(node, actx.FileID),
				})
			}
		}
		return true
	})
	return loops
}

// forInKind distinguishes for-of from for-in by the operator token.
func forInKind(node *sitter.Node, source []byte) LoopKind {
	if op := node.ChildByFieldName("operator"); op != nil {
		if ast.Text(op, source) == "of" {
			return LoopForOf
		}
		return LoopForIn
	}
	// Older grammar revisions expose the keyword as an anonymous child.
	for i := 0; i < int(node.ChildCount()); i++ {
		switch ast.Text(node.Child(i), source) {
		case "of":
			return LoopForOf
		case "in":
			return LoopForIn
		}
	}
	return LoopForIn
}

// iterationCallbackBody returns the callback body when call is an
// iteration-method call (arr.forEach(fn), users.map(u => ...)), else nil.
func iterationCallbackBody(call *sitter.Node, source []byte) *sitter.Node {
	_, method, ok := ast.CalleeParts(call, source)
	if !ok {
		return nil
	}
	if _, isIter := iterationMethods[method]; !isIter {
		return nil
	}

	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		arg := args.Child(i)
		if arg == nil || !ast.IsFunctionNode(arg.Type()) {
			continue
		}
		if body := arg.ChildByFieldName("body"); body != nil {
			return body
		}
	}
	return nil
}

// WalkLoopBody visits the loop body without crossing into nested function
// bodies, except when the nested function sits under an await expression
// (an inline-awaited callback still executes per iteration).
func WalkLoopBody(loop Loop, visit func(node *sitter.Node) bool) {
	if loop.Body == nil {
		return
	}
	ast.Walk(loop.Body, func(node *sitter.Node) bool {
		if node != loop.Body && ast.IsFunctionNode(node.Type()) && !underAwait(node, loop.Body) {
			return false
		}
		return visit(node)
	})
}

// underAwait reports whether node has an await_expression ancestor at or
// below the walk root.
func underAwait(node *sitter.Node, root *sitter.Node) bool {
	for cur := node.Parent(); cur != nil && cur != root; cur = cur.Parent() {
		if cur.Type() == ast.NodeAwaitExpression {
			return true
		}
		if ast.IsFunctionNode(cur.Type()) {
			return false
		}
	}
	return false
}
