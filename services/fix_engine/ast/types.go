// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast parses ECMAScript-family source into tree-sitter trees and
// resolves the lexical and data-access context the detectors consume.
//
// The package owns the single external parser binding (tree-sitter with the
// JavaScript grammar). Everything downstream — detectors, mutation operators,
// the candidate validator — works against the types defined here and never
// touches tree-sitter construction directly.
package ast

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Tree-sitter JavaScript grammar node kinds consumed by this engine.
// Grammar names are stable across the pinned tree-sitter version; an
// unmatched kind falls through switches harmlessly.
const (
	NodeProgram              = "program"
	NodeExpressionStatement  = "expression_statement"
	NodeCallExpression       = "call_expression"
	NodeMemberExpression     = "member_expression"
	NodeSubscriptExpression  = "subscript_expression"
	NodeIdentifier           = "identifier"
	NodePropertyIdentifier   = "property_identifier"
	NodeArguments            = "arguments"
	NodeString               = "string"
	NodeStringFragment       = "string_fragment"
	NodeTemplateString       = "template_string"
	NodeRegex                = "regex"
	NodeComment              = "comment"
	NodeLexicalDeclaration   = "lexical_declaration"
	NodeVariableDeclaration  = "variable_declaration"
	NodeVariableDeclarator   = "variable_declarator"
	NodeFunctionDeclaration  = "function_declaration"
	NodeGeneratorFunction    = "generator_function_declaration"
	NodeFunctionExpression   = "function_expression"
	NodeFunction             = "function"
	NodeArrowFunction        = "arrow_function"
	NodeMethodDefinition     = "method_definition"
	NodeClassDeclaration     = "class_declaration"
	NodeClassBody            = "class_body"
	NodeStatementBlock       = "statement_block"
	NodeFormalParameters     = "formal_parameters"
	NodeReturnStatement      = "return_statement"
	NodeThrowStatement       = "throw_statement"
	NodeIfStatement          = "if_statement"
	NodeForStatement         = "for_statement"
	NodeForInStatement       = "for_in_statement"
	NodeWhileStatement       = "while_statement"
	NodeDoStatement          = "do_statement"
	NodeAwaitExpression      = "await_expression"
	NodeBinaryExpression     = "binary_expression"
	NodeAssignmentExpression = "assignment_expression"
	NodeAugmentedAssignment  = "augmented_assignment_expression"
	NodeNewExpression        = "new_expression"
	NodeObject               = "object"
	NodePair                 = "pair"
	NodeArray                = "array"
	NodeImportStatement      = "import_statement"
	NodeImportClause         = "import_clause"
	NodeNamedImports         = "named_imports"
	NodeImportSpecifier      = "import_specifier"
	NodeNamespaceImport      = "namespace_import"
	NodeEmptyStatement       = "empty_statement"
)

// Location identifies a source range, 1-indexed lines.
type Location struct {
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	StartCol  int    `json:"startCol"`
	EndCol    int    `json:"endCol"`
}

// LocationOf builds a Location for a node.
func LocationOf(node *sitter.Node, filePath string) Location {
	if node == nil {
		return Location{FilePath: filePath}
	}
	return Location{
		FilePath:  filePath,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartCol:  int(node.StartPoint().Column),
		EndCol:    int(node.EndPoint().Column),
	}
}

// Text returns the source text covered by a node.
func Text(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	start, end := node.StartByte(), node.EndByte()
	if int(end) > len(source) {
		end = uint32(len(source))
	}
	if start > end {
		return ""
	}
	return string(source[start:end])
}

// IsLoopNode reports whether the node kind is a loop statement.
func IsLoopNode(kind string) bool {
	switch kind {
	case NodeForStatement, NodeForInStatement, NodeWhileStatement, NodeDoStatement:
		return true
	default:
		return false
	}
}

// IsFunctionNode reports whether the node kind introduces a function body.
// Both "function" and "function_expression" appear depending on grammar
// revision, so both are accepted.
func IsFunctionNode(kind string) bool {
	switch kind {
	case NodeFunctionDeclaration, NodeGeneratorFunction, NodeFunction,
		NodeFunctionExpression, NodeArrowFunction, NodeMethodDefinition:
		return true
	default:
		return false
	}
}

// Walk visits node and its descendants depth-first. The visitor returns
// false to prune the subtree below the current node. Iterative to keep
// stack depth independent of tree shape.
func Walk(root *sitter.Node, visit func(node *sitter.Node) bool) {
	if root == nil {
		return
	}

	stack := make([]*sitter.Node, 0, 64)
	stack = append(stack, root)

	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == nil {
			continue
		}

		if !visit(node) {
			continue
		}

		for i := int(node.ChildCount()) - 1; i >= 0; i-- {
			if child := node.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}

// CollectByKind returns all descendants (including root) of the given kinds.
func CollectByKind(root *sitter.Node, kinds ...string) []*sitter.Node {
	want := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		want[k] = struct{}{}
	}

	var out []*sitter.Node
	Walk(root, func(node *sitter.Node) bool {
		if _, ok := want[node.Type()]; ok {
			out = append(out, node)
		}
		return true
	})
	return out
}

// CalleeParts splits a call_expression into its receiver chain text and the
// final method name. For `prisma.user.findMany()` it returns
// ("prisma.user", "findMany", true). Plain calls like `require(...)` return
// ("", "require", true). Non-call nodes return ok=false.
func CalleeParts(call *sitter.Node, source []byte) (object, method string, ok bool) {
	if call == nil || call.Type() != NodeCallExpression {
		return "", "", false
	}
	fn := call.ChildByFieldName("function")
	if fn == nil {
		return "", "", false
	}

	switch fn.Type() {
	case NodeIdentifier:
		return "", Text(fn, source), true
	case NodeMemberExpression:
		obj := fn.ChildByFieldName("object")
		prop := fn.ChildByFieldName("property")
		if prop == nil {
			return "", "", false
		}
		return Text(obj, source), Text(prop, source), true
	default:
		return "", "", false
	}
}

// RootIdentifier returns the leftmost identifier of a member chain text,
// e.g. "prisma" for "prisma.user.profile".
func RootIdentifier(chain string) string {
	for i := 0; i < len(chain); i++ {
		if chain[i] == '.' || chain[i] == '[' || chain[i] == '(' {
			return chain[:i]
		}
	}
	return chain
}
