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

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/perfscope/perfscope/services/fix_engine/ast"
)

// selectAllMethods are finder methods that return every row of a collection
// unless constrained by options.
var selectAllMethods = map[string]struct{}{
	"find": {}, "findAll": {}, "findMany": {}, "findAndCountAll": {},
}

// selectionKeys are option keys that narrow the returned columns/fields.
var selectionKeys = map[string]struct{}{
	"select": {}, "attributes": {}, "fields": {}, "projection": {},
}

// limitKeys are option keys that bound the returned row count.
var limitKeys = map[string]struct{}{
	"limit": {}, "take": {}, "top": {}, "first": {},
}

// responseObjects are conventional HTTP response receiver names.
var responseObjects = map[string]struct{}{
	"res": {}, "response": {}, "reply": {},
}

// responseEmitMethods send a body to the client.
var responseEmitMethods = map[string]struct{}{
	"json": {}, "send": {}, "jsonp": {}, "write": {}, "end": {},
}

// PayloadDetector flags oversized query results and response payloads: a
// select-all finder with neither field selection nor a row limit, the same
// result forwarded through a return statement, and response-emission sites
// serializing one directly to the client.
//
// Each unbounded query call is reported once, classified by where it sits:
// response emission (medium), return forwarding (high), or a bare query site
// (high).
//
// # Thread Safety
//
// Safe for concurrent use; the detector holds no state.
type PayloadDetector struct{}

var _ Detector = (*PayloadDetector)(nil)

// NewPayloadDetector creates the detector.
func NewPayloadDetector() *PayloadDetector {
	return &PayloadDetector{}
}

// Name returns the detector identifier.
func (d *PayloadDetector) Name() string {
	return "large_payload"
}

// Detect finds unbounded query and payload sites in the file.
func (d *PayloadDetector) Detect(ctx context.Context, actx *ast.Context) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issues := make([]Issue, 0)
	ast.Walk(actx.Root, func(node *sitter.Node) bool {
		if node.Type() != ast.NodeCallExpression {
			return true
		}
		if !d.isUnboundedQuery(node, actx) {
			return true
		}
		issues = append(issues, d.classifySite(node, actx))
		return true
	})
	return issues, nil
}

// isUnboundedQuery reports whether call is a select-all finder constrained
// by neither field selection nor a row limit.
func (d *PayloadDetector) isUnboundedQuery(call *sitter.Node, actx *ast.Context) bool {
	object, method, ok := ast.CalleeParts(call, actx.Source)
	if !ok || object == "" {
		return false
	}
	if _, all := selectAllMethods[method]; !all {
		return false
	}
	if actx.Access.Detected() {
		if _, resolved := actx.Access.ResolveCall(object, method); !resolved {
			return false
		}
	} else if !ast.HeuristicMethod(method) {
		return false
	}
	if optionsConstrain(call, actx.Source) {
		return false
	}
	return !chainConstrains(call, actx.Source)
}

// optionsConstrain reports whether any object-literal argument carries a
// field-selection or limit key.
func optionsConstrain(call *sitter.Node, source []byte) bool {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return false
	}
	constrained := false
	ast.Walk(args, func(n *sitter.Node) bool {
		if n.Type() != ast.NodePair {
			return true
		}
		key := n.ChildByFieldName("key")
		if key == nil {
			return true
		}
		name := ast.Text(key, source)
		if _, ok := selectionKeys[name]; ok {
			constrained = true
			return false
		}
		if _, ok := limitKeys[name]; ok {
			constrained = true
			return false
		}
		return true
	})
	return constrained
}

// chainConstrains detects builder-style bounding: `.limit(n)` or `.select(...)`
// chained onto the finder call (the knex/query-builder form).
func chainConstrains(call *sitter.Node, source []byte) bool {
	for cur := call.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Type() != ast.NodeMemberExpression {
			break
		}
		prop := cur.ChildByFieldName("property")
		if prop != nil {
			name := ast.Text(prop, source)
			if _, ok := limitKeys[name]; ok {
				return true
			}
			if _, ok := selectionKeys[name]; ok {
				return true
			}
		}
		// Step over the chained call to the next member link.
		cur = cur.Parent()
		if cur == nil || cur.Type() != ast.NodeCallExpression {
			break
		}
	}
	return false
}

// classifySite builds the issue for one unbounded query by its context.
func (d *PayloadDetector) classifySite(call *sitter.Node, actx *ast.Context) Issue {
	issueType := TypeUnboundedQuery
	severity := SeverityHigh
	title := "Unbounded query returns every row"
	description := "This finder has neither field selection nor a row limit, so it materializes the whole collection. Add a projection and pagination."

	site := call
	if emit := enclosingResponseEmit(call, actx.Source); emit != nil {
		issueType = TypeLargeResponse
		severity = SeverityMedium
		title = "Response serializes an unbounded query result"
		description = "The full query result is sent to the client without field selection or a row limit. Select only the fields the client needs and paginate."
		site = emit
	} else if ret := enclosingReturn(call); ret != nil {
		issueType = TypeUnboundedReturn
		title = "Return statement forwards an unlimited query result"
		description = "The unconstrained result set is handed to the caller, hiding the payload size from this function's readers. Bound the query before returning it."
		site = ret
	}

	issue := NewIssue(issueType, severity, actx.FileID)
	issue.LineNumber = ast.LocationOf(site, actx.FileID).StartLine
	issue.Title = title
	issue.Description = description
	issue.BeforeSnippet = snippet(ast.Text(site, actx.Source))
	issue.EstimatedImpact = &EstimatedImpact{
		SeverityScore:   severityScoreFor(severity),
		Description:     "payload size grows linearly with the table",
		ConfidenceScore: 75,
	}
	return issue
}

// enclosingResponseEmit returns the res.json(...)-style call whose argument
// list contains node, else nil. The search stops at function boundaries.
func enclosingResponseEmit(node *sitter.Node, source []byte) *sitter.Node {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if ast.IsFunctionNode(cur.Type()) {
			return nil
		}
		if cur.Type() != ast.NodeCallExpression {
			continue
		}
		object, method, ok := ast.CalleeParts(cur, source)
		if !ok {
			continue
		}
		if _, isResp := responseObjects[ast.RootIdentifier(object)]; !isResp {
			continue
		}
		if _, emits := responseEmitMethods[method]; emits {
			return cur
		}
	}
	return nil
}

// enclosingReturn returns the return statement containing node within the
// same function, else nil.
func enclosingReturn(node *sitter.Node) *sitter.Node {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		if ast.IsFunctionNode(cur.Type()) {
			return nil
		}
		if cur.Type() == ast.NodeReturnStatement {
			return cur
		}
	}
	return nil
}
