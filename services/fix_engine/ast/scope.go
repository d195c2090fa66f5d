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
	sitter "github.com/smacker/go-tree-sitter"
)

// BindingKind classifies how a name was introduced into a scope.
type BindingKind string

const (
	BindingVar      BindingKind = "var"
	BindingLet      BindingKind = "let"
	BindingConst    BindingKind = "const"
	BindingFunction BindingKind = "function"
	BindingClass    BindingKind = "class"
	BindingParam    BindingKind = "param"
)

// blockScoped reports whether duplicate declarations of this kind in one
// scope are a syntax error (let/const/class redeclaration is; var and
// function redeclaration is legal in sloppy mode).
func (k BindingKind) blockScoped() bool {
	switch k {
	case BindingLet, BindingConst, BindingClass:
		return true
	default:
		return false
	}
}

// Binding records one declaration of a name.
type Binding struct {
	Name     string
	Kind     BindingKind
	Node     *sitter.Node
	Location Location
}

// ScopeKind classifies a lexical scope.
type ScopeKind string

const (
	ScopeProgram  ScopeKind = "program"
	ScopeFunction ScopeKind = "function"
	ScopeBlock    ScopeKind = "block"
)

// Scope is one lexical scope: the node that opened it, its parent, and the
// names bound in it. var declarations hoist to the nearest function or
// program scope; let/const bind to the nearest block.
type Scope struct {
	Kind     ScopeKind
	Node     *sitter.Node
	Parent   *Scope
	Children []*Scope
	Bindings map[string][]Binding
}

// Declare records a binding in this scope.
func (s *Scope) Declare(b Binding) {
	if s.Bindings == nil {
		s.Bindings = make(map[string][]Binding)
	}
	s.Bindings[b.Name] = append(s.Bindings[b.Name], b)
}

// Lookup resolves a name in this scope or any ancestor.
func (s *Scope) Lookup(name string) (Binding, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if bs, ok := cur.Bindings[name]; ok && len(bs) > 0 {
			return bs[0], true
		}
	}
	return Binding{}, false
}

// hoistTarget returns the nearest function or program scope.
func (s *Scope) hoistTarget() *Scope {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Kind != ScopeBlock {
			return cur
		}
	}
	return s
}

// ScopeTable holds the scope tree for one file.
//
// Thread Safety: Read-only after BuildScopes returns.
type ScopeTable struct {
	Program *Scope

	// byNode maps scope-opening nodes to their scope.
	byNode map[*sitter.Node]*Scope
}

// ScopeFor returns the innermost scope containing the node.
func (t *ScopeTable) ScopeFor(node *sitter.Node) *Scope {
	for cur := node; cur != nil; cur = cur.Parent() {
		if s, ok := t.byNode[cur]; ok {
			return s
		}
	}
	return t.Program
}

// All returns every scope in the table, program first, preorder.
func (t *ScopeTable) All() []*Scope {
	var out []*Scope
	var visit func(s *Scope)
	visit = func(s *Scope) {
		out = append(out, s)
		for _, c := range s.Children {
			visit(c)
		}
	}
	if t.Program != nil {
		visit(t.Program)
	}
	return out
}

// DeclaredVariables returns every var/let/const binding in the file, in
// declaration order per scope. Used by the rename mutation operator.
func (t *ScopeTable) DeclaredVariables() []Binding {
	var out []Binding
	for _, s := range t.All() {
		for _, bs := range s.Bindings {
			for _, b := range bs {
				switch b.Kind {
				case BindingVar, BindingLet, BindingConst:
					out = append(out, b)
				}
			}
		}
	}
	return out
}

// Duplicates returns names declared more than once in a single scope where
// at least one declaration is block-scoped (let/const/class) — the cases
// that are syntax errors at runtime.
func (t *ScopeTable) Duplicates() []Binding {
	var out []Binding
	for _, s := range t.All() {
		for _, bs := range s.Bindings {
			if len(bs) < 2 {
				continue
			}
			blockScoped := false
			for _, b := range bs {
				if b.Kind.blockScoped() {
					blockScoped = true
					break
				}
			}
			if blockScoped {
				out = append(out, bs[1:]...)
			}
		}
	}
	return out
}

// BuildScopes constructs the lexical scope table for a parsed tree.
//
// Description:
//
//	Opens a scope at the program node, at every function-like node, and at
//	every statement block that is not a function body (function bodies share
//	the function's scope, so parameters and body declarations land
//	together). Loop statements open a block scope for their head
//	declarations. Declarations are attached per JavaScript hoisting rules.
//
// Thread Safety: Safe for concurrent use; the returned table is read-only.
func BuildScopes(root *sitter.Node, source []byte) *ScopeTable {
	table := &ScopeTable{byNode: make(map[*sitter.Node]*Scope)}
	if root == nil {
		table.Program = &Scope{Kind: ScopeProgram, Bindings: map[string][]Binding{}}
		return table
	}

	program := &Scope{Kind: ScopeProgram, Node: root, Bindings: map[string][]Binding{}}
	table.Program = program
	table.byNode[root] = program

	var build func(node *sitter.Node, current *Scope)
	build = func(node *sitter.Node, current *Scope) {
		if node == nil {
			return
		}

		kind := node.Type()
		next := current

		switch {
		case IsFunctionNode(kind):
			next = newChildScope(table, current, ScopeFunction, node)
			declareParams(node, source, next)
			if name := node.ChildByFieldName("name"); name != nil && kind == NodeFunctionDeclaration {
				current.Declare(Binding{
					Name:     Text(name, source),
					Kind:     BindingFunction,
					Node:     node,
					Location: LocationOf(name, ""),
				})
			}

		case kind == NodeClassDeclaration:
			if name := node.ChildByFieldName("name"); name != nil {
				current.Declare(Binding{
					Name:     Text(name, source),
					Kind:     BindingClass,
					Node:     node,
					Location: LocationOf(name, ""),
				})
			}

		case kind == NodeStatementBlock:
			// A block that is a function body shares the function scope.
			parent := node.Parent()
			if parent == nil || !IsFunctionNode(parent.Type()) {
				next = newChildScope(table, current, ScopeBlock, node)
			}

		case IsLoopNode(kind):
			next = newChildScope(table, current, ScopeBlock, node)

		case kind == NodeLexicalDeclaration || kind == NodeVariableDeclaration:
			declareVariables(node, source, current)
		}

		for i := 0; i < int(node.ChildCount()); i++ {
			build(node.Child(i), next)
		}
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		build(root.Child(i), program)
	}
	return table
}

func newChildScope(table *ScopeTable, parent *Scope, kind ScopeKind, node *sitter.Node) *Scope {
	s := &Scope{Kind: kind, Node: node, Parent: parent, Bindings: map[string][]Binding{}}
	parent.Children = append(parent.Children, s)
	table.byNode[node] = s
	return s
}

// declareParams binds formal parameters into the function scope.
func declareParams(fn *sitter.Node, source []byte, scope *Scope) {
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		// Single-parameter arrow function without parens.
		if p := fn.ChildByFieldName("parameter"); p != nil && p.Type() == NodeIdentifier {
			scope.Declare(Binding{Name: Text(p, source), Kind: BindingParam, Node: p, Location: LocationOf(p, "")})
		}
		return
	}
	Walk(params, func(node *sitter.Node) bool {
		if node.Type() == NodeIdentifier {
			scope.Declare(Binding{Name: Text(node, source), Kind: BindingParam, Node: node, Location: LocationOf(node, "")})
		}
		return true
	})
}

// declareVariables binds the declarators of a let/const/var declaration.
func declareVariables(decl *sitter.Node, source []byte, current *Scope) {
	kind := BindingVar
	target := current
	if decl.Type() == NodeLexicalDeclaration {
		kind = BindingLet
		if declText := Text(decl.Child(0), source); declText == "const" {
			kind = BindingConst
		}
	} else {
		target = current.hoistTarget()
	}

	for i := 0; i < int(decl.ChildCount()); i++ {
		child := decl.Child(i)
		if child == nil || child.Type() != NodeVariableDeclarator {
			continue
		}
		name := child.ChildByFieldName("name")
		if name == nil {
			continue
		}
		switch name.Type() {
		case NodeIdentifier:
			target.Declare(Binding{
				Name:     Text(name, source),
				Kind:     kind,
				Node:     child,
				Location: LocationOf(name, ""),
			})
		default:
			// Destructuring patterns: bind every identifier inside.
			Walk(name, func(n *sitter.Node) bool {
				if n.Type() == NodeIdentifier || n.Type() == "shorthand_property_identifier_pattern" {
					target.Declare(Binding{
						Name:     Text(n, source),
						Kind:     kind,
						Node:     child,
						Location: LocationOf(n, ""),
					})
				}
				return true
			})
		}
	}
}
