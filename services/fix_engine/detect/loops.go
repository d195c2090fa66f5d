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

// domMutationMethods mutate the live DOM when called per iteration.
var domMutationMethods = map[string]struct{}{
	"appendChild": {}, "insertBefore": {}, "removeChild": {},
	"replaceChild": {}, "insertAdjacentHTML": {}, "insertAdjacentElement": {},
}

// lookupMethods are linear-scan membership/search calls; inside a loop they
// imply O(n^2) behavior that a Set/Map lookup avoids.
var lookupMethods = map[string]struct{}{
	"includes": {}, "indexOf": {}, "lastIndexOf": {}, "find": {}, "findIndex": {},
}

// LoopDetector flags loop constructs with per-iteration costs that compound
// at scale: chained array passes, nested iteration, blocking I/O, repeated
// parsing, string building, and linear lookups.
//
// Each check is independent; one loop can raise several issues. Nested
// statement loops are reported once per outermost chain with the depth and
// the implied complexity class.
//
// # Thread Safety
//
// Safe for concurrent use; the detector holds no state.
type LoopDetector struct{}

var _ Detector = (*LoopDetector)(nil)

// NewLoopDetector creates the detector.
func NewLoopDetector() *LoopDetector {
	return &LoopDetector{}
}

// Name returns the detector identifier.
func (d *LoopDetector) Name() string {
	return "inefficient_loops"
}

// Detect runs every loop check against the file.
func (d *LoopDetector) Detect(ctx context.Context, actx *ast.Context) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0)
	issues = append(issues, d.nestedStatementLoops(actx)...)
	issues = append(issues, d.filterThenMap(actx)...)
	issues = append(issues, d.nestedIterationMethods(actx)...)
	issues = append(issues, d.perIterationSites(actx)...)
	return issues, nil
}

// nestedStatementLoops reports each outermost statement-loop chain whose
// static nesting depth reaches 2 (high) or 3+ (critical).
func (d *LoopDetector) nestedStatementLoops(actx *ast.Context) []Issue {
	var issues []Issue

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if !ast.IsLoopNode(node.Type()) {
			return true
		}
		// Only outermost chains: skip loops that sit inside another loop.
		if enclosing, _ := enclosingLoop(node, actx.Source); enclosing != nil {
			return true
		}
		depth := loopNestingDepth(node)
		if depth < 2 {
			return true
		}

		severity := SeverityHigh
		if depth >= 3 {
			severity = SeverityCritical
		}
		complexity := complexityForDepth(depth)

		issue := NewIssue(TypeNestedLoops, severity, actx.FileID)
		issue.LineNumber = ast.LocationOf(node, actx.FileID).StartLine
		issue.Title = fmt.Sprintf("Nested loops %d levels deep (%s)", depth, complexity)
		issue.Description = fmt.Sprintf(
			"Statically nested loops of depth %d imply %s iteration cost. "+
				"Consider hoisting invariant work, indexing one side with a Map, or flattening the traversal.",
			depth, complexity,
		)
		issue.BeforeSnippet = snippet(ast.Text(node, actx.Source))
		issue.Metadata = map[string]string{
			"nestedDepth": fmt.Sprintf("%d", depth),
			"complexity":  complexity,
		}
		issue.EstimatedImpact = &EstimatedImpact{
			SeverityScore:   severityScoreFor(severity),
			Description:     fmt.Sprintf("%s time in the input size", complexity),
			ConfidenceScore: 90,
			Metrics:         map[string]float64{"nested_depth": float64(depth)},
		}
		issues = append(issues, issue)
		return true
	})
	return issues
}

// loopNestingDepth returns the deepest statement-loop chain rooted at loop,
// not crossing function boundaries.
func loopNestingDepth(loop *sitter.Node) int {
	body := loop.ChildByFieldName("body")
	if body == nil {
		return 1
	}
	max := 0
	ast.Walk(body, func(node *sitter.Node) bool {
		if ast.IsFunctionNode(node.Type()) {
			return false
		}
		if ast.IsLoopNode(node.Type()) {
			if d := loopNestingDepth(node); d > max {
				max = d
			}
			return false
		}
		return true
	})
	return 1 + max
}

// complexityForDepth renders the complexity class for a nesting depth.
func complexityForDepth(depth int) string {
	switch depth {
	case 2:
		return "O(n²)"
	case 3:
		return "O(n³)"
	default:
		return fmt.Sprintf("O(n^%d)", depth)
	}
}

// filterThenMap flags `xs.filter(...).map(...)` chains: two full passes
// where one reduce/for-of pass suffices.
func (d *LoopDetector) filterThenMap(actx *ast.Context) []Issue {
	var issues []Issue

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		_, method, ok := ast.CalleeParts(node, actx.Source)
		if !ok || method != "map" {
			return true
		}
		fn := node.ChildByFieldName("function")
		if fn == nil || fn.Type() != ast.NodeMemberExpression {
			return true
		}
		receiver := fn.ChildByFieldName("object")
		_, prev, prevOK := ast.CalleeParts(receiver, actx.Source)
		if !prevOK || prev != "filter" {
			return true
		}

		issue := NewIssue(TypeFilterThenMap, SeverityMedium, actx.FileID)
		issue.LineNumber = ast.LocationOf(node, actx.FileID).StartLine
		issue.Title = "Chained filter().map() iterates the array twice"
		issue.Description = "filter followed by map walks the array twice and allocates an intermediate array. A single reduce or for-of pass does the same work once."
		issue.BeforeSnippet = snippet(ast.Text(node, actx.Source))
		issue.EstimatedImpact = &EstimatedImpact{
			SeverityScore:   severityScoreFor(SeverityMedium),
			Description:     "2 passes and 1 intermediate allocation where 1 pass suffices",
			ConfidenceScore: 95,
		}
		issues = append(issues, issue)
		return true
	})
	return issues
}

// nestedIterationMethods flags an iteration-method callback containing
// another iteration-method call on a different receiver: O(n*m) hiding
// behind two innocuous-looking one-liners.
func (d *LoopDetector) nestedIterationMethods(actx *ast.Context) []Issue {
	var issues []Issue

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		body := iterationCallbackBody(node, actx.Source)
		if body == nil {
			return true
		}

		inner := false
		ast.Walk(body, func(n *sitter.Node) bool {
			if n == body {
				return true
			}
			if n.Type() == ast.NodeCallExpression && iterationCallbackBody(n, actx.Source) != nil {
				inner = true
				return false
			}
			return true
		})
		if !inner {
			return true
		}

		issue := NewIssue(TypeNestedIterationMethods, SeverityHigh, actx.FileID)
		issue.LineNumber = ast.LocationOf(node, actx.FileID).StartLine
		issue.Title = "Nested array iteration methods imply O(n²) or worse"
		issue.Description = "An iteration-method callback invoking another iteration method multiplies the passes. Index the inner collection with a Map keyed by the join field."
		issue.BeforeSnippet = snippet(ast.Text(node, actx.Source))
		issue.EstimatedImpact = &EstimatedImpact{
			SeverityScore:   severityScoreFor(SeverityHigh),
			Description:     "O(n·m) element visits where O(n+m) suffices with an index",
			ConfidenceScore: 85,
		}
		issues = append(issues, issue)
		return true
	})
	return issues
}

// loopSite is one flagged per-iteration occurrence.
type loopSite struct {
	issueType   string
	severity    Severity
	title       string
	description string
	node        *sitter.Node
}

// perIterationSites runs the occurrence-based checks: each hit inside a loop
// body raises its own issue at the occurrence site.
func (d *LoopDetector) perIterationSites(actx *ast.Context) []Issue {
	var sites []loopSite

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		loop, _ := enclosingLoop(node, actx.Source)
		if loop == nil {
			return true
		}

		switch node.Type() {
		case ast.NodeAwaitExpression:
			sites = append(sites, loopSite{
				issueType:   TypeAwaitInLoop,
				severity:    SeverityHigh,
				title:       "await inside a loop serializes asynchronous work",
				description: "Each iteration waits for the previous round trip to finish. Collect the promises and resolve them together with Promise.all.",
				node:        node,
			})
		case ast.NodeCallExpression:
			sites = append(sites, d.classifyCall(node, actx)...)
		case ast.NodeNewExpression:
			if ctor := node.ChildByFieldName("constructor"); ctor != nil &&
				ast.Text(ctor, actx.Source) == "RegExp" {
				sites = append(sites, regexSite(node))
			}
		case ast.NodeRegex:
			sites = append(sites, regexSite(node))
		case ast.NodeAugmentedAssignment:
			if op := node.ChildByFieldName("operator"); op != nil &&
				ast.Text(op, actx.Source) == "+=" && stringOperand(node, actx.Source) {
				sites = append(sites, concatSite(node))
			}
		case ast.NodeAssignmentExpression:
			if selfAppendAssignment(node, actx.Source) {
				sites = append(sites, concatSite(node))
			}
		}
		return true
	})

	issues := make([]Issue, 0, len(sites))
	for _, s := range sites {
		issue := NewIssue(s.issueType, s.severity, actx.FileID)
		issue.LineNumber = ast.LocationOf(s.node, actx.FileID).StartLine
		issue.Title = s.title
		issue.Description = s.description
		issue.BeforeSnippet = snippet(ast.Text(s.node, actx.Source))
		issue.EstimatedImpact = &EstimatedImpact{
			SeverityScore:   severityScoreFor(s.severity),
			Description:     "cost repeated every loop iteration",
			ConfidenceScore: 85,
		}
		issues = append(issues, issue)
	}
	return issues
}

// classifyCall maps one in-loop call to zero or more occurrence sites.
func (d *LoopDetector) classifyCall(call *sitter.Node, actx *ast.Context) []loopSite {
	object, method, ok := ast.CalleeParts(call, actx.Source)
	if !ok {
		return nil
	}

	var sites []loopSite
	switch {
	case isSyncIOCall(object, method):
		sites = append(sites, loopSite{
			issueType:   TypeSyncIOInLoop,
			severity:    SeverityCritical,
			title:       "Synchronous file I/O inside a loop blocks the event loop",
			description: "Each iteration blocks the single-threaded runtime on disk. Use the promise-based fs API and batch the operations.",
			node:        call,
		})
	case object == "JSON" && (method == "parse" || method == "stringify"):
		sites = append(sites, loopSite{
			issueType:   TypeJSONInLoop,
			severity:    SeverityHigh,
			title:       "JSON " + method + " inside a loop re-serializes every iteration",
			description: "Repeated JSON." + method + " is CPU-bound per iteration. Hoist it out of the loop or operate on the parsed structure once.",
			node:        call,
		})
	case method == "push" && object != "":
		sites = append(sites, loopSite{
			issueType:   TypePushInLoop,
			severity:    SeverityLow,
			title:       "push inside a loop builds the array element by element",
			description: "A map/from transformation expresses the same construction in one pass and lets the engine size the result up front.",
			node:        call,
		})
	}
	if _, dom := domMutationMethods[method]; dom {
		sites = append(sites, loopSite{
			issueType:   TypeDOMMutationInLoop,
			severity:    SeverityHigh,
			title:       "DOM mutation inside a loop forces repeated reflow",
			description: "Each " + method + " call can trigger layout. Build the nodes in a DocumentFragment and attach it once after the loop.",
			node:        call,
		})
	}
	if _, lookup := lookupMethods[method]; lookup && object != "" &&
		iterationCallbackBody(call, actx.Source) == nil {
		sites = append(sites, loopSite{
			issueType:   TypeLookupInLoop,
			severity:    SeverityHigh,
			title:       method + " inside a loop performs a linear scan per iteration",
			description: "A per-iteration " + method + " makes the loop O(n²). Build a Set or Map of the searched values before the loop.",
			node:        call,
		})
	}
	return sites
}

// isSyncIOCall matches the blocking fs API: fs.readFileSync and friends, by
// the conventional Sync suffix on the method name.
func isSyncIOCall(object, method string) bool {
	if len(method) <= 4 || method[len(method)-4:] != "Sync" {
		return false
	}
	return object != ""
}

func regexSite(node *sitter.Node) loopSite {
	return loopSite{
		issueType:   TypeRegexInLoop,
		severity:    SeverityMedium,
		title:       "Regular expression constructed inside a loop",
		description: "The pattern is recompiled every iteration. Hoist the regex above the loop and reuse it.",
		node:        node,
	}
}

func concatSite(node *sitter.Node) loopSite {
	return loopSite{
		issueType:   TypeStringConcatInLoop,
		severity:    SeverityMedium,
		title:       "String concatenation inside a loop reallocates the buffer",
		description: "Appending with + per iteration copies the accumulated string each time. Collect parts in an array and join once after the loop.",
		node:        node,
	}
}

// stringOperand reports whether either side of the assignment involves a
// string or template literal.
func stringOperand(node *sitter.Node, source []byte) bool {
	found := false
	ast.Walk(node, func(n *sitter.Node) bool {
		switch n.Type() {
		case ast.NodeString, ast.NodeTemplateString:
			found = true
			return false
		}
		return true
	})
	return found
}

// selfAppendAssignment matches `s = s + <string-ish>`.
func selfAppendAssignment(node *sitter.Node, source []byte) bool {
	left := node.ChildByFieldName("left")
	right := node.ChildByFieldName("right")
	if left == nil || right == nil || right.Type() != ast.NodeBinaryExpression {
		return false
	}
	if op := right.ChildByFieldName("operator"); op == nil || ast.Text(op, source) != "+" {
		return false
	}
	rl := right.ChildByFieldName("left")
	if rl == nil || ast.Text(rl, source) != ast.Text(left, source) {
		return false
	}
	return stringOperand(right, source)
}

// enclosingLoop returns the innermost loop construct executing node per
// iteration, crossing only iteration-method callback boundaries. Returns
// nil when node is not inside a loop.
func enclosingLoop(node *sitter.Node, source []byte) (*sitter.Node, LoopKind) {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if ast.IsLoopNode(cur.Type()) {
			switch cur.Type() {
			case ast.NodeForStatement:
				return cur, LoopFor
			case ast.NodeForInStatement:
				return cur, forInKind(cur, source)
			case ast.NodeWhileStatement:
				return cur, LoopWhile
			default:
				return cur, LoopDoWhile
			}
		}
		if ast.IsFunctionNode(cur.Type()) {
			// Inside a function body: per-iteration only when the function
			// is an iteration-method callback.
			if call := callbackIterationCall(cur, source); call != nil {
				return call, LoopIterationMethod
			}
			return nil, ""
		}
	}
	return nil, ""
}

// callbackIterationCall returns the iteration-method call node when fn is
// passed directly as an argument to one, else nil.
func callbackIterationCall(fn *sitter.Node, source []byte) *sitter.Node {
	parent := fn.Parent()
	if parent == nil || parent.Type() != ast.NodeArguments {
		return nil
	}
	call := parent.Parent()
	if call == nil || call.Type() != ast.NodeCallExpression {
		return nil
	}
	_, method, ok := ast.CalleeParts(call, source)
	if !ok {
		return nil
	}
	if _, isIter := iterationMethods[method]; !isIter {
		return nil
	}
	return call
}
