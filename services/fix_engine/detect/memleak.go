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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// FrameworkKind classifies a file's UI-framework family, which decides
// where teardown code is expected to live.
type FrameworkKind string

const (
	FrameworkNone      FrameworkKind = "none"
	FrameworkHooks     FrameworkKind = "hooks"
	FrameworkLifecycle FrameworkKind = "lifecycle"
)

// hookFrameworkModules import paths indicating a hook-based framework.
var hookFrameworkModules = []string{"react", "preact", "solid-js"}

// lifecycleFrameworkModules import paths indicating a lifecycle-method
// framework.
var lifecycleFrameworkModules = []string{"vue", "@angular/core", "backbone"}

// teardownMethodNames are lifecycle methods where cleanup is expected.
var teardownMethodNames = map[string]struct{}{
	"componentWillUnmount": {}, "ngOnDestroy": {}, "beforeDestroy": {},
	"destroyed": {}, "onUnmounted": {}, "disconnectedCallback": {},
}

// MemoryLeakDetector finds resource registrations with no reachable
// cleanup: event listeners never removed, repeating timers never cleared,
// direct global-object assignment, and closures capturing large outer
// array literals.
//
// The framework classification (none / hook-based / lifecycle-method-based)
// widens where a matching removal call counts: the registration's own
// function, a useEffect cleanup function, or a recognized teardown method.
//
// An uncleared repeating timer is critical regardless of framework; a
// missing listener removal is high when a framework was detected (the
// component remounts, stacking listeners) and medium otherwise.
//
// # Thread Safety
//
// Safe for concurrent use; the detector holds no state.
type MemoryLeakDetector struct{}

var _ Detector = (*MemoryLeakDetector)(nil)

// NewMemoryLeakDetector creates the detector.
func NewMemoryLeakDetector() *MemoryLeakDetector {
	return &MemoryLeakDetector{}
}

// Name returns the detector identifier.
func (d *MemoryLeakDetector) Name() string {
	return "memory_leak"
}

// Detect finds leak patterns in the file.
func (d *MemoryLeakDetector) Detect(ctx context.Context, actx *ast.Context) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	framework := ClassifyFramework(actx)
	cleanups := collectCleanupBodies(actx)

	issues := make([]Issue, 0)
	issues = append(issues, d.uncleanedRegistrations(actx, framework, cleanups)...)
	issues = append(issues, d.globalAssignments(actx)...)
	issues = append(issues, d.largeClosureCaptures(actx)...)
	return issues, nil
}

// ClassifyFramework infers the file's framework family from imports and
// characteristic hook/lifecycle names.
func ClassifyFramework(actx *ast.Context) FrameworkKind {
	for _, mod := range importedModules(actx) {
		for _, h := range hookFrameworkModules {
			if mod == h || strings.HasPrefix(mod, h+"/") {
				return FrameworkHooks
			}
		}
		for _, l := range lifecycleFrameworkModules {
			if mod == l || strings.HasPrefix(mod, l+"/") {
				return FrameworkLifecycle
			}
		}
	}

	// No recognized import: fall back to characteristic names in the body.
	kind := FrameworkNone
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		switch node.Type() {
		case ast.NodeCallExpression:
			if fn := node.ChildByFieldName("function"); fn != nil &&
				fn.Type() == ast.NodeIdentifier &&
				strings.HasPrefix(ast.Text(fn, actx.Source), "use") {
				name := ast.Text(fn, actx.Source)
				if name == "useEffect" || name == "useLayoutEffect" || name == "useState" {
					kind = FrameworkHooks
					return false
				}
			}
		case ast.NodeMethodDefinition:
			if name := node.ChildByFieldName("name"); name != nil {
				n := ast.Text(name, actx.Source)
				if _, ok := teardownMethodNames[n]; ok || n == "componentDidMount" {
					kind = FrameworkLifecycle
					return false
				}
			}
		}
		return true
	})
	return kind
}

// importedModules lists every import/require module path in the file.
func importedModules(actx *ast.Context) []string {
	var mods []string
	for i := 0; i < int(actx.Root.ChildCount()); i++ {
		stmt := actx.Root.Child(i)
		if stmt == nil {
			continue
		}
		switch stmt.Type() {
		case ast.NodeImportStatement:
			for j := 0; j < int(stmt.ChildCount()); j++ {
				if c := stmt.Child(j); c != nil && c.Type() == ast.NodeString {
					mods = append(mods, stringImportPath(c, actx.Source))
				}
			}
		case ast.NodeLexicalDeclaration, ast.NodeVariableDeclaration:
			ast.Walk(stmt, func(n *sitter.Node) bool {
				if n.Type() != ast.NodeCallExpression {
					return true
				}
				fn := n.ChildByFieldName("function")
				if fn == nil || fn.Type() != ast.NodeIdentifier || ast.Text(fn, actx.Source) != "require" {
					return true
				}
				if args := n.ChildByFieldName("arguments"); args != nil {
					for j := 0; j < int(args.ChildCount()); j++ {
						if a := args.Child(j); a != nil && a.Type() == ast.NodeString {
							mods = append(mods, stringImportPath(a, actx.Source))
						}
					}
				}
				return true
			})
		}
	}
	return mods
}

// stringImportPath strips the quotes from a string-literal module path.
func stringImportPath(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		if c := node.Child(i); c != nil && c.Type() == ast.NodeStringFragment {
			return ast.Text(c, source)
		}
	}
	text := ast.Text(node, source)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}

// collectCleanupBodies gathers every node subtree where a removal call
// counts as teardown: useEffect cleanup functions and recognized lifecycle
// teardown methods.
func collectCleanupBodies(actx *ast.Context) []*sitter.Node {
	var bodies []*sitter.Node

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		switch node.Type() {
		case ast.NodeMethodDefinition:
			if name := node.ChildByFieldName("name"); name != nil {
				if _, ok := teardownMethodNames[ast.Text(name, actx.Source)]; ok {
					if body := node.ChildByFieldName("body"); body != nil {
						bodies = append(bodies, body)
					}
				}
			}
		case ast.NodeCallExpression:
			if body := effectCleanupBody(node, actx.Source); body != nil {
				bodies = append(bodies, body)
			}
		}
		return true
	})
	return bodies
}

// effectCleanupBody returns the function returned from a useEffect callback,
// the hook-framework teardown location.
func effectCleanupBody(call *sitter.Node, source []byte) *sitter.Node {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != ast.NodeIdentifier {
		return nil
	}
	name := ast.Text(fn, source)
	if name != "useEffect" && name != "useLayoutEffect" {
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
		cbBody := arg.ChildByFieldName("body")
		if cbBody == nil {
			return nil
		}
		var cleanup *sitter.Node
		ast.Walk(cbBody, func(n *sitter.Node) bool {
			if n.Type() != ast.NodeReturnStatement {
				return true
			}
			for j := 0; j < int(n.NamedChildCount()); j++ {
				if ret := n.NamedChild(j); ret != nil && ast.IsFunctionNode(ret.Type()) {
					cleanup = ret
					return false
				}
			}
			return true
		})
		return cleanup
	}
	return nil
}

// registration is one listener/timer creation site awaiting a matching
// removal.
type registration struct {
	node    *sitter.Node
	isTimer bool

	// key narrows the matching removal: the listener's event name, or the
	// variable holding the timer handle. Empty matches any removal call.
	key string
}

// uncleanedRegistrations raises an issue for each listener/timer
// registration with no matching removal in the same function or any
// teardown body.
func (d *MemoryLeakDetector) uncleanedRegistrations(actx *ast.Context, framework FrameworkKind, cleanups []*sitter.Node) []Issue {
	var regs []registration

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		object, method, ok := ast.CalleeParts(node, actx.Source)
		if !ok {
			return true
		}
		switch method {
		case "addEventListener":
			regs = append(regs, registration{
				node: node,
				key:  firstStringArg(node, actx.Source),
			})
		case "setInterval":
			if object != "" && object != "window" && object != "globalThis" {
				return true
			}
			regs = append(regs, registration{
				node:    node,
				isTimer: true,
				key:     timerHandleName(node, actx.Source),
			})
		}
		return true
	})

	issues := make([]Issue, 0, len(regs))
	for _, reg := range regs {
		if d.removalReachable(reg, actx, cleanups) {
			continue
		}
		issues = append(issues, d.registrationIssue(reg, framework, actx))
	}
	return issues
}

// removalReachable reports whether a matching removal call exists in the
// registration's own function or in any teardown body.
func (d *MemoryLeakDetector) removalReachable(reg registration, actx *ast.Context, cleanups []*sitter.Node) bool {
	scopes := make([]*sitter.Node, 0, len(cleanups)+1)
	if fn := enclosingFunctionOrProgram(reg.node, actx.Root); fn != nil {
		scopes = append(scopes, fn)
	}
	scopes = append(scopes, cleanups...)

	removal := "removeEventListener"
	if reg.isTimer {
		removal = "clearInterval"
	}

	for _, scope := range scopes {
		if hasRemovalCall(scope, removal, reg.key, actx.Source) {
			return true
		}
	}
	return false
}

// hasRemovalCall scans a subtree for a removal call, matching key when the
// registration recorded one.
func hasRemovalCall(root *sitter.Node, removal, key string, source []byte) bool {
	found := false
	ast.Walk(root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		_, method, ok := ast.CalleeParts(node, source)
		if !ok || method != removal {
			return true
		}
		if key == "" || callMentions(node, key, source) {
			found = true
			return false
		}
		return true
	})
	return found
}

// callMentions reports whether key appears as an argument identifier or
// string in the call.
func callMentions(call *sitter.Node, key string, source []byte) bool {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	hit := false
	ast.Walk(args, func(n *sitter.Node) bool {
		switch n.Type() {
		case ast.NodeIdentifier:
			if ast.Text(n, source) == key {
				hit = true
				return false
			}
		case ast.NodeStringFragment:
			if ast.Text(n, source) == key {
				hit = true
				return false
			}
		}
		return true
	})
	return hit
}

// firstStringArg returns the first string-literal argument's content.
func firstStringArg(call *sitter.Node, source []byte) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		if a := args.Child(i); a != nil && a.Type() == ast.NodeString {
			return stringImportPath(a, source)
		}
	}
	return ""
}

// timerHandleName returns the variable the timer handle is stored in, when
// the call sits on the right of a declarator or assignment.
func timerHandleName(call *sitter.Node, source []byte) string {
	parent := call.Parent()
	if parent == nil {
		return ""
	}
	switch parent.Type() {
	case ast.NodeVariableDeclarator:
		if name := parent.ChildByFieldName("name"); name != nil && name.Type() == ast.NodeIdentifier {
			return ast.Text(name, source)
		}
	case ast.NodeAssignmentExpression:
		if left := parent.ChildByFieldName("left"); left != nil {
			return ast.RootIdentifier(ast.Text(left, source))
		}
	}
	return ""
}

// enclosingFunctionOrProgram returns the nearest function body containing
// node, or the program root for top-level code.
func enclosingFunctionOrProgram(node *sitter.Node, root *sitter.Node) *sitter.Node {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if ast.IsFunctionNode(cur.Type()) {
			if body := cur.ChildByFieldName("body"); body != nil {
				return body
			}
			return cur
		}
	}
	return root
}

func (d *MemoryLeakDetector) registrationIssue(reg registration, framework FrameworkKind, actx *ast.Context) Issue {
	var issue Issue
	if reg.isTimer {
		issue = NewIssue(TypeTimerLeak, SeverityCritical, actx.FileID)
		issue.Title = "setInterval with no reachable clearInterval"
		issue.Description = "The repeating timer keeps firing after the creating scope is gone, holding its closure alive. Store the handle and clear it in the teardown path."
	} else {
		severity := SeverityMedium
		if framework != FrameworkNone {
			severity = SeverityHigh
		}
		issue = NewIssue(TypeListenerLeak, severity, actx.FileID)
		issue.Title = "addEventListener with no matching removeEventListener"
		issue.Description = "The listener is never removed, so every mount/registration stacks another copy. Remove it in the teardown path with the same handler reference."
	}
	issue.LineNumber = ast.LocationOf(reg.node, actx.FileID).StartLine
	issue.BeforeSnippet = snippet(ast.Text(reg.node, actx.Source))
	issue.Metadata = map[string]string{"framework": string(framework)}
	issue.EstimatedImpact = &EstimatedImpact{
		SeverityScore:   severityScoreFor(issue.Severity),
		Description:     "resource retained for the process/page lifetime",
		ConfidenceScore: 80,
	}
	return issue
}

// globalAssignments flags direct property assignment on the global object.
func (d *MemoryLeakDetector) globalAssignments(actx *ast.Context) []Issue {
	var issues []Issue

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeAssignmentExpression {
			return true
		}
		left := node.ChildByFieldName("left")
		if left == nil || left.Type() != ast.NodeMemberExpression {
			return true
		}
		obj := left.ChildByFieldName("object")
		if obj == nil {
			return true
		}
		objName := ast.Text(obj, actx.Source)
		if objName != "window" && objName != "global" && objName != "globalThis" {
			return true
		}

		issue := NewIssue(TypeGlobalAssignment, SeverityMedium, actx.FileID)
		issue.LineNumber = ast.LocationOf(node, actx.FileID).StartLine
		issue.Title = "Assignment to a global-object property"
		issue.Description = fmt.Sprintf("Writing %s pins the value for the whole process/page lifetime and leaks it across module boundaries. Scope the state to a module or component instead.", ast.Text(left, actx.Source))
		issue.BeforeSnippet = snippet(ast.Text(node, actx.Source))
		issue.EstimatedImpact = &EstimatedImpact{
			SeverityScore:   severityScoreFor(SeverityMedium),
			Description:     "value retained for the global lifetime",
			ConfidenceScore: 90,
		}
		issues = append(issues, issue)
		return true
	})
	return issues
}

// largeClosureCaptures flags functions capturing an outer array literal with
// more than 100 elements: the closure keeps the whole array reachable.
func (d *MemoryLeakDetector) largeClosureCaptures(actx *ast.Context) []Issue {
	const threshold = 100

	// Array-literal bindings above the threshold, by declarator node.
	type bigArray struct {
		name string
		decl *sitter.Node
	}
	var arrays []bigArray

	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeVariableDeclarator {
			return true
		}
		name := node.ChildByFieldName("name")
		value := node.ChildByFieldName("value")
		if name == nil || value == nil || name.Type() != ast.NodeIdentifier {
			return true
		}
		if value.Type() != ast.NodeArray || int(value.NamedChildCount()) <= threshold {
			return true
		}
		arrays = append(arrays, bigArray{name: ast.Text(name, actx.Source), decl: node})
		return true
	})
	if len(arrays) == 0 {
		return nil
	}

	var issues []Issue
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if !ast.IsFunctionNode(node.Type()) {
			return true
		}
		body := node.ChildByFieldName("body")
		if body == nil {
			return true
		}
		for _, arr := range arrays {
			if nodeContains(node, arr.decl) || !referencesIdentifier(body, arr.name, actx.Source) {
				continue
			}
			issue := NewIssue(TypeLargeClosureCapture, SeverityMedium, actx.FileID)
			issue.LineNumber = ast.LocationOf(node, actx.FileID).StartLine
			issue.Title = fmt.Sprintf("Closure captures the %d+ element array %q", threshold, arr.name)
			issue.Description = "The closure keeps the whole outer array reachable for its own lifetime. Pass only the elements the function needs, or derive a smaller structure first."
			issue.BeforeSnippet = snippet(ast.Text(node, actx.Source))
			issue.EstimatedImpact = &EstimatedImpact{
				SeverityScore:   severityScoreFor(SeverityMedium),
				Description:     "large allocation retained by the closure",
				ConfidenceScore: 70,
			}
			issues = append(issues, issue)
		}
		return true
	})
	return issues
}

// nodeContains reports whether inner lies within outer's byte range.
func nodeContains(outer, inner *sitter.Node) bool {
	return inner.StartByte() >= outer.StartByte() && inner.EndByte() <= outer.EndByte()
}

// referencesIdentifier reports whether the subtree reads the identifier.
func referencesIdentifier(root *sitter.Node, name string, source []byte) bool {
	found := false
	ast.Walk(root, func(n *sitter.Node) bool {
		if n.Type() == ast.NodeIdentifier && ast.Text(n, source) == name {
			found = true
			return false
		}
		return true
	})
	return found
}
