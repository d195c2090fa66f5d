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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindingNames(bs []Binding) []string {
	names := make([]string, 0, len(bs))
	for _, b := range bs {
		names = append(names, b.Name)
	}
	return names
}

func TestBuildScopes(t *testing.T) {
	t.Run("program and function scopes", func(t *testing.T) {
		actx := mustParse(t, `
const top = 1;
function outer(a, b) {
  let inner = a + b;
  return inner;
}
`)
		scopes := actx.Scopes.All()
		require.GreaterOrEqual(t, len(scopes), 2)
		assert.Equal(t, ScopeProgram, scopes[0].Kind)

		_, ok := scopes[0].Lookup("top")
		assert.True(t, ok)
		_, ok = scopes[0].Lookup("inner")
		assert.False(t, ok, "inner must not leak to program scope")

		names := bindingNames(actx.Scopes.DeclaredVariables())
		assert.Contains(t, names, "top")
		assert.Contains(t, names, "inner")
	})

	t.Run("var hoists out of blocks", func(t *testing.T) {
		actx := mustParse(t, `
function f() {
  if (cond) {
    var hoisted = 1;
    let scoped = 2;
  }
}
`)
		var fnScope *Scope
		for _, s := range actx.Scopes.All() {
			if s.Kind == ScopeFunction {
				fnScope = s
			}
		}
		require.NotNil(t, fnScope)

		_, ok := fnScope.Bindings["hoisted"]
		assert.True(t, ok, "var must hoist to the function scope")
		_, ok = fnScope.Bindings["scoped"]
		assert.False(t, ok, "let must stay in the block scope")
	})

	t.Run("parameters bind in the function scope", func(t *testing.T) {
		actx := mustParse(t, `function g(x, y) { return x; }`)

		var fnScope *Scope
		for _, s := range actx.Scopes.All() {
			if s.Kind == ScopeFunction {
				fnScope = s
			}
		}
		require.NotNil(t, fnScope)
		assert.Contains(t, fnScope.Bindings, "x")
		assert.Contains(t, fnScope.Bindings, "y")
		assert.Equal(t, BindingParam, fnScope.Bindings["y"][0].Kind)
	})

	t.Run("duplicate let flagged", func(t *testing.T) {
		actx := mustParse(t, `
let dup = 1;
let dup = 2;
`)
		dups := actx.Scopes.Duplicates()
		require.Len(t, dups, 1)
		assert.Equal(t, "dup", dups[0].Name)
	})

	t.Run("shadowing across scopes is legal", func(t *testing.T) {
		actx := mustParse(t, `
let name = 'outer';
function shadow() {
  let name = 'inner';
  return name;
}
`)
		assert.Empty(t, actx.Scopes.Duplicates())
	})

	t.Run("duplicate var tolerated", func(t *testing.T) {
		actx := mustParse(t, `
var twice = 1;
var twice = 2;
`)
		assert.Empty(t, actx.Scopes.Duplicates())
	})

	t.Run("loop head declarations stay with the loop", func(t *testing.T) {
		actx := mustParse(t, `
for (let i = 0; i < 10; i++) {
  use(i);
}
`)
		_, ok := actx.Scopes.Program.Bindings["i"]
		assert.False(t, ok, "loop counter must not bind at program scope")

		names := bindingNames(actx.Scopes.DeclaredVariables())
		assert.Contains(t, names, "i")
	})
}
