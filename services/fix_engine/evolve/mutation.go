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
	"math/rand"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// MutationResult is one operator's outcome. OK is false when the operator
// found no applicable site; that is a decline, not an error.
type MutationResult struct {
	Code        string
	Description string
	OK          bool
}

// Operator is one structural edit strategy. Operators are pure: same code
// and random source, same result.
type Operator struct {
	Name  string
	Apply func(ctx context.Context, code string, rng *rand.Rand) MutationResult
}

// Operators returns the mutation operator set in its canonical order.
func Operators() []Operator {
	return []Operator{
		{Name: "rename_variable", Apply: renameVariable},
		{Name: "perturb_query_options", Apply: perturbQueryOptions},
		{Name: "swap_access_method", Apply: swapAccessMethod},
		{Name: "prepend_cache_guard", Apply: prependCacheGuard},
	}
}

// ApplyRandomMutation tries the operators in random order and returns the
// first success. When every operator declines, OK is false and the caller
// keeps the original code.
func ApplyRandomMutation(ctx context.Context, code string, rng *rand.Rand) MutationResult {
	ops := Operators()
	rng.Shuffle(len(ops), func(i, j int) {
		ops[i], ops[j] = ops[j], ops[i]
	})
	for _, op := range ops {
		if result := op.Apply(ctx, code, rng); result.OK {
			return result
		}
	}
	return MutationResult{Code: code}
}

// edit is one byte-range replacement in the source text.
type edit struct {
	start uint32
	end   uint32
	text  string
}

// splice applies edits to the source. Edits must not overlap; they are
// applied back to front so earlier offsets stay valid.
func splice(code string, edits []edit) string {
	sort.Slice(edits, func(i, j int) bool {
		return edits[i].start > edits[j].start
	})
	out := code
	for _, e := range edits {
		out = out[:e.start] + e.text + out[e.end:]
	}
	return out
}

// renameVariable renames one declared variable consistently through its
// uses, skipping property-access positions so member names stay intact.
func renameVariable(ctx context.Context, code string, rng *rand.Rand) MutationResult {
	actx, err := ast.Parse(ctx, []byte(code), "mutation")
	if err != nil {
		return MutationResult{Code: code}
	}
	defer actx.Close()

	bindings := actx.Scopes.DeclaredVariables()
	if len(bindings) == 0 {
		return MutationResult{Code: code}
	}
	target := bindings[rng.Intn(len(bindings))]
	if target.Name == "" {
		return MutationResult{Code: code}
	}

	newName := freshName(target.Name, code)
	var edits []edit
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeIdentifier || ast.Text(node, actx.Source) != target.Name {
			return true
		}
		if isPropertyPosition(node) {
			return true
		}
		edits = append(edits, edit{start: node.StartByte(), end: node.EndByte(), text: newName})
		return true
	})
	if len(edits) == 0 {
		return MutationResult{Code: code}
	}
	return MutationResult{
		Code:        splice(code, edits),
		Description: fmt.Sprintf("renamed %s to %s", target.Name, newName),
		OK:          true,
	}
}

// freshName derives a rename target not already present in the source.
func freshName(base, code string) string {
	name := base + "V2"
	for i := 3; strings.Contains(code, name); i++ {
		name = fmt.Sprintf("%sV%d", base, i)
	}
	return name
}

// isPropertyPosition reports whether the identifier is a member-access
// property or an object-literal key, where renaming would change meaning.
func isPropertyPosition(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case ast.NodeMemberExpression:
		return parent.ChildByFieldName("property") == node
	case ast.NodePair:
		return parent.ChildByFieldName("key") == node
	}
	return false
}

// perturbQueryOptions adjusts one data-access call's options: add field
// selection, add pagination, or drop one entry from an include/relations
// clause.
func perturbQueryOptions(ctx context.Context, code string, rng *rand.Rand) MutationResult {
	actx, err := ast.Parse(ctx, []byte(code), "mutation")
	if err != nil {
		return MutationResult{Code: code}
	}
	defer actx.Close()

	call := pickAccessCall(actx, rng)
	if call == nil {
		return MutationResult{Code: code}
	}
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return MutationResult{Code: code}
	}

	options := firstObjectArg(args)

	// Collect the applicable strategies, then let the random source pick.
	type strategy struct {
		apply func() MutationResult
	}
	var strategies []strategy

	if options == nil || !hasOptionKey(options, actx.Source, "select", "attributes", "fields", "projection") {
		strategies = append(strategies, strategy{apply: func() MutationResult {
			return addOptionEntry(code, args, options, "select: { id: true }", "added field selection")
		}})
	}
	if options == nil || !hasOptionKey(options, actx.Source, "limit", "take") {
		strategies = append(strategies, strategy{apply: func() MutationResult {
			return addOptionEntry(code, args, options, "limit: 50", "added pagination limit")
		}})
	}
	if entry := removableRelationEntry(options, actx.Source); entry != nil {
		strategies = append(strategies, strategy{apply: func() MutationResult {
			return MutationResult{
				Code:        splice(code, []edit{removeListEntry(entry, code)}),
				Description: "removed one relation entry",
				OK:          true,
			}
		}})
	}
	if len(strategies) == 0 {
		return MutationResult{Code: code}
	}
	return strategies[rng.Intn(len(strategies))].apply()
}

// pickAccessCall selects a random data-access call in the tree.
func pickAccessCall(actx *ast.Context, rng *rand.Rand) *sitter.Node {
	var calls []*sitter.Node
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		object, method, ok := ast.CalleeParts(node, actx.Source)
		if !ok || object == "" {
			return true
		}
		if actx.Access.Detected() {
			if _, resolved := actx.Access.ResolveCall(object, method); !resolved {
				return true
			}
		} else if !ast.HeuristicMethod(method) {
			return true
		}
		calls = append(calls, node)
		return true
	})
	if len(calls) == 0 {
		return nil
	}
	return calls[rng.Intn(len(calls))]
}

// firstObjectArg returns the first object-literal argument, if any.
func firstObjectArg(args *sitter.Node) *sitter.Node {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		if arg := args.NamedChild(i); arg != nil && arg.Type() == ast.NodeObject {
			return arg
		}
	}
	return nil
}

// hasOptionKey reports whether the options object carries any of the keys.
func hasOptionKey(options *sitter.Node, source []byte, keys ...string) bool {
	found := false
	ast.Walk(options, func(n *sitter.Node) bool {
		if n.Type() != ast.NodePair {
			return true
		}
		key := n.ChildByFieldName("key")
		if key == nil {
			return true
		}
		name := ast.Text(key, source)
		for _, k := range keys {
			if name == k {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// addOptionEntry inserts an entry into the options object, creating the
// object argument when the call has none.
func addOptionEntry(code string, args, options *sitter.Node, entry, description string) MutationResult {
	var e edit
	if options != nil {
		// After the opening brace.
		insertAt := options.StartByte() + 1
		text := " " + entry + ","
		if options.NamedChildCount() == 0 {
			text = " " + entry + " "
		}
		e = edit{start: insertAt, end: insertAt, text: text}
	} else if args.NamedChildCount() == 0 {
		insertAt := args.StartByte() + 1
		e = edit{start: insertAt, end: insertAt, text: "{ " + entry + " }"}
	} else {
		// Append as a trailing options argument.
		insertAt := args.EndByte() - 1
		e = edit{start: insertAt, end: insertAt, text: ", { " + entry + " }"}
	}
	return MutationResult{
		Code:        splice(code, []edit{e}),
		Description: description,
		OK:          true,
	}
}

// removableRelationEntry finds the first element of an include/relations/
// populate array with more than zero entries.
func removableRelationEntry(options *sitter.Node, source []byte) *sitter.Node {
	if options == nil {
		return nil
	}
	var entry *sitter.Node
	ast.Walk(options, func(n *sitter.Node) bool {
		if n.Type() != ast.NodePair {
			return true
		}
		key := n.ChildByFieldName("key")
		value := n.ChildByFieldName("value")
		if key == nil || value == nil || value.Type() != ast.NodeArray {
			return true
		}
		switch ast.Text(key, source) {
		case "include", "relations", "populate":
			if value.NamedChildCount() > 0 {
				entry = value.NamedChild(0)
				return false
			}
		}
		return true
	})
	return entry
}

// removeListEntry builds the edit removing an array element and its
// trailing comma when present.
func removeListEntry(entry *sitter.Node, code string) edit {
	end := entry.EndByte()
	for int(end) < len(code) && (code[end] == ',' || code[end] == ' ') {
		end++
	}
	return edit{start: entry.StartByte(), end: end}
}

// swapAccessMethod replaces one data-access method name with a known
// same-family sibling.
func swapAccessMethod(ctx context.Context, code string, rng *rand.Rand) MutationResult {
	actx, err := ast.Parse(ctx, []byte(code), "mutation")
	if err != nil {
		return MutationResult{Code: code}
	}
	defer actx.Close()

	type site struct {
		prop    *sitter.Node
		current string
	}
	var sites []site
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		fn := node.ChildByFieldName("function")
		if fn == nil || fn.Type() != ast.NodeMemberExpression {
			return true
		}
		prop := fn.ChildByFieldName("property")
		if prop == nil {
			return true
		}
		method := ast.Text(prop, actx.Source)
		if _, ok := ast.MethodSiblings[method]; ok {
			sites = append(sites, site{prop: prop, current: method})
		}
		return true
	})
	if len(sites) == 0 {
		return MutationResult{Code: code}
	}

	chosen := sites[rng.Intn(len(sites))]
	siblings := ast.MethodSiblings[chosen.current]
	replacement := siblings[rng.Intn(len(siblings))]
	return MutationResult{
		Code: splice(code, []edit{{
			start: chosen.prop.StartByte(),
			end:   chosen.prop.EndByte(),
			text:  replacement,
		}}),
		Description: fmt.Sprintf("swapped %s for %s", chosen.current, replacement),
		OK:          true,
	}
}

// prependCacheGuard inserts a cache-check early return at the top of an
// asynchronous function body.
func prependCacheGuard(ctx context.Context, code string, rng *rand.Rand) MutationResult {
	actx, err := ast.Parse(ctx, []byte(code), "mutation")
	if err != nil {
		return MutationResult{Code: code}
	}
	defer actx.Close()

	var bodies []*sitter.Node
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if !ast.IsFunctionNode(node.Type()) || !isAsyncFunction(node, actx.Source) {
			return true
		}
		if body := node.ChildByFieldName("body"); body != nil && body.Type() == ast.NodeStatementBlock {
			bodies = append(bodies, body)
		}
		return true
	})
	if len(bodies) == 0 {
		return MutationResult{Code: code}
	}

	body := bodies[rng.Intn(len(bodies))]
	guard := "\n  const cached = resultCache.get(cacheKey);\n  if (cached) { return cached; }\n"
	insertAt := body.StartByte() + 1
	return MutationResult{
		Code:        splice(code, []edit{{start: insertAt, end: insertAt, text: guard}}),
		Description: "prepended cache-check early return",
		OK:          true,
	}
}

// isAsyncFunction reports whether the function node carries the async
// keyword.
func isAsyncFunction(node *sitter.Node, source []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if ast.Text(child, source) == "async" {
			return true
		}
		// async precedes everything else in the header.
		if child.IsNamed() {
			break
		}
	}
	return false
}
