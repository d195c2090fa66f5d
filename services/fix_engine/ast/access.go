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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Family is a data-access library family inferred from imports.
type Family string

const (
	FamilyMongoose  Family = "mongoose"
	FamilySequelize Family = "sequelize"
	FamilyPrisma    Family = "prisma"
	FamilyTypeORM   Family = "typeorm"
	FamilyKnex      Family = "knex"
)

// modulePathFamilies maps import/require module paths to families.
var modulePathFamilies = map[string]Family{
	"mongoose":       FamilyMongoose,
	"sequelize":      FamilySequelize,
	"@prisma/client": FamilyPrisma,
	"typeorm":        FamilyTypeORM,
	"knex":           FamilyKnex,
}

// FamilyMethods catalogs the data-access method names recognized per family.
// The catalogs are intentionally name-based: this engine detects syntactic
// patterns, not program semantics.
var FamilyMethods = map[Family][]string{
	FamilyMongoose: {
		"find", "findOne", "findById", "findOneAndUpdate", "findOneAndDelete",
		"findByIdAndUpdate", "findByIdAndDelete", "countDocuments", "aggregate",
		"populate", "exec", "save", "create", "updateOne", "updateMany",
		"deleteOne", "deleteMany",
	},
	FamilySequelize: {
		"findAll", "findOne", "findByPk", "findAndCountAll", "findOrCreate",
		"count", "create", "update", "destroy", "bulkCreate", "query",
	},
	FamilyPrisma: {
		"findMany", "findUnique", "findFirst", "findUniqueOrThrow",
		"findFirstOrThrow", "count", "aggregate", "groupBy", "create",
		"createMany", "update", "updateMany", "upsert", "delete", "deleteMany",
	},
	FamilyTypeORM: {
		"find", "findOne", "findOneBy", "findBy", "findAndCount", "count",
		"createQueryBuilder", "save", "remove", "insert", "update", "delete",
		"query",
	},
	FamilyKnex: {
		"select", "where", "first", "insert", "update", "del", "join",
		"leftJoin", "innerJoin", "pluck", "count",
	},
}

// heuristicMethods is the fallback catalog used when no family was detected
// anywhere in the file: generic finder/query names that strongly suggest a
// database round trip regardless of library.
var heuristicMethods = []string{
	"find", "findOne", "findAll", "findById", "findByPk", "findMany",
	"findUnique", "findFirst", "query", "execute", "aggregate", "count",
	"save", "create", "update", "destroy",
}

// MethodSiblings returns known same-family alternatives for a data-access
// method, used by the method-swap mutation operator. The sibling always has
// compatible call syntax within its family.
var MethodSiblings = map[string][]string{
	"findOne":    {"findById", "find"},
	"findById":   {"findOne"},
	"find":       {"findOne"},
	"findAll":    {"findAndCountAll", "findOne"},
	"findByPk":   {"findOne"},
	"findMany":   {"findFirst"},
	"findUnique": {"findFirst"},
	"findFirst":  {"findMany"},
}

// AccessContext maps local identifiers to data-access library families for
// one file. Built once from imports by ResolveAccessContext; read-only to
// detectors.
//
// Thread Safety: Read-only after construction.
type AccessContext struct {
	// Families lists every family detected in the file, in import order.
	Families []Family

	// Identifiers maps a local binding name (the imported alias, a
	// destructured name, or an instantiated client variable) to its family.
	Identifiers map[string]Family

	// ClientBinding names the instantiated client variable when the file
	// constructs one (e.g. `const prisma = new PrismaClient()`). Empty when
	// absent.
	ClientBinding string

	// methods is the merged recognized-method set for the detected
	// families, including any custom per-project patterns.
	methods map[string]Family
}

// Detected reports whether any family was detected in the file.
func (a *AccessContext) Detected() bool {
	return len(a.Families) > 0
}

// HasFamily reports whether the given family was detected.
func (a *AccessContext) HasFamily(f Family) bool {
	for _, have := range a.Families {
		if have == f {
			return true
		}
	}
	return false
}

// ResolveMethod reports whether a method name belongs to a detected family.
func (a *AccessContext) ResolveMethod(method string) (Family, bool) {
	f, ok := a.methods[method]
	return f, ok
}

// ResolveCall resolves a call's receiver chain and method name to a family.
//
// Description:
//
//	Resolution order: (1) the receiver's root identifier is a known import
//	alias or the client binding; (2) the method name belongs to a detected
//	family's catalog (covers model objects obtained indirectly, e.g. a
//	mongoose model created from a schema). When no family was detected in
//	the file at all, the caller should fall back to HeuristicMethod.
func (a *AccessContext) ResolveCall(object, method string) (Family, bool) {
	if !a.Detected() {
		return "", false
	}
	rootIdent := RootIdentifier(object)
	if f, ok := a.Identifiers[rootIdent]; ok {
		if _, known := a.methods[method]; known {
			return f, true
		}
	}
	if a.ClientBinding != "" && rootIdent == a.ClientBinding {
		if f, ok := a.methods[method]; ok {
			return f, true
		}
	}
	return a.ResolveMethod(method)
}

// HeuristicMethod reports whether a method name matches the library-agnostic
// finder heuristics. Only meaningful when Detected() is false.
func HeuristicMethod(method string) bool {
	for _, m := range heuristicMethods {
		if m == method {
			return true
		}
	}
	return false
}

// ResolveAccessContext builds the AccessContext for a parsed file.
//
// Description:
//
//	Scans import and require statements, mapping module paths to families
//	and local aliases to the importing family. Handles ESM default, named,
//	and namespace imports plus CommonJS require in its plain and
//	destructured forms. Also records the client binding for
//	`new PrismaClient()` style construction.
//
// Inputs:
//
//	ac - The parsed context (Source/Root are read).
//	customMethods - Optional per-project method patterns merged into the
//	    recognized set, keyed by method name. Nil is allowed.
//
// Thread Safety: Safe for concurrent use.
func ResolveAccessContext(ac *Context, customMethods map[string]Family) *AccessContext {
	out := &AccessContext{
		Identifiers: make(map[string]Family),
		methods:     make(map[string]Family),
	}

	addFamily := func(f Family) {
		if !out.HasFamily(f) {
			out.Families = append(out.Families, f)
			for _, m := range FamilyMethods[f] {
				out.methods[m] = f
			}
		}
	}

	for i := 0; i < int(ac.Root.ChildCount()); i++ {
		stmt := ac.Root.Child(i)
		if stmt == nil {
			continue
		}
		switch stmt.Type() {
		case NodeImportStatement:
			resolveESMImport(stmt, ac.Source, out, addFamily)
		case NodeLexicalDeclaration, NodeVariableDeclaration:
			resolveRequire(stmt, ac.Source, out, addFamily)
		}
	}

	// Client construction: const prisma = new PrismaClient().
	resolveClientBinding(ac, out)

	for m, f := range customMethods {
		out.methods[m] = f
	}
	return out
}

// resolveESMImport handles `import X from 'mod'` and its named/namespace forms.
func resolveESMImport(stmt *sitter.Node, source []byte, out *AccessContext, addFamily func(Family)) {
	var family Family
	var found bool

	for i := 0; i < int(stmt.ChildCount()); i++ {
		child := stmt.Child(i)
		if child != nil && child.Type() == NodeString {
			family, found = familyForModule(stringContent(child, source))
			break
		}
	}
	if !found {
		return
	}
	addFamily(family)

	for i := 0; i < int(stmt.ChildCount()); i++ {
		clause := stmt.Child(i)
		if clause == nil || clause.Type() != NodeImportClause {
			continue
		}
		Walk(clause, func(n *sitter.Node) bool {
			if n.Type() == NodeIdentifier {
				out.Identifiers[Text(n, source)] = family
			}
			return true
		})
	}
}

// resolveRequire handles `const X = require('mod')` including destructuring.
func resolveRequire(stmt *sitter.Node, source []byte, out *AccessContext, addFamily func(Family)) {
	for i := 0; i < int(stmt.ChildCount()); i++ {
		decl := stmt.Child(i)
		if decl == nil || decl.Type() != NodeVariableDeclarator {
			continue
		}

		value := decl.ChildByFieldName("value")
		modPath := requirePath(value, source)
		if modPath == "" {
			continue
		}
		family, ok := familyForModule(modPath)
		if !ok {
			continue
		}
		addFamily(family)

		name := decl.ChildByFieldName("name")
		if name == nil {
			continue
		}
		switch name.Type() {
		case NodeIdentifier:
			out.Identifiers[Text(name, source)] = family
		default:
			Walk(name, func(n *sitter.Node) bool {
				switch n.Type() {
				case NodeIdentifier, "shorthand_property_identifier_pattern":
					out.Identifiers[Text(n, source)] = family
				}
				return true
			})
		}
	}
}

// resolveClientBinding finds `new <KnownClient>()` assigned to a variable.
func resolveClientBinding(ac *Context, out *AccessContext) {
	if !out.Detected() {
		return
	}
	Walk(ac.Root, func(node *sitter.Node) bool {
		if node.Type() != NodeVariableDeclarator {
			return true
		}
		value := node.ChildByFieldName("value")
		name := node.ChildByFieldName("name")
		if value == nil || name == nil || value.Type() != NodeNewExpression {
			return true
		}
		ctor := value.ChildByFieldName("constructor")
		if ctor == nil {
			return true
		}
		ctorName := Text(ctor, ac.Source)
		if ctorName == "PrismaClient" || strings.HasSuffix(ctorName, ".PrismaClient") {
			out.ClientBinding = Text(name, ac.Source)
			out.Identifiers[out.ClientBinding] = FamilyPrisma
		}
		return true
	})
}

// requirePath returns the module path when value is `require('...')`, also
// unwrapping the chained form `require('mod').member`.
func requirePath(value *sitter.Node, source []byte) string {
	if value == nil {
		return ""
	}
	if value.Type() == NodeMemberExpression {
		value = value.ChildByFieldName("object")
		if value == nil {
			return ""
		}
	}
	if value.Type() != NodeCallExpression {
		return ""
	}
	fn := value.ChildByFieldName("function")
	if fn == nil || fn.Type() != NodeIdentifier || Text(fn, source) != "require" {
		return ""
	}
	args := value.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.ChildCount()); i++ {
		arg := args.Child(i)
		if arg != nil && arg.Type() == NodeString {
			return stringContent(arg, source)
		}
	}
	return ""
}

// familyForModule maps a module path to a family, tolerating subpath
// imports like "sequelize/lib/model".
func familyForModule(path string) (Family, bool) {
	if f, ok := modulePathFamilies[path]; ok {
		return f, true
	}
	for prefix, f := range modulePathFamilies {
		if strings.HasPrefix(path, prefix+"/") {
			return f, true
		}
	}
	return "", false
}

// stringContent extracts a string literal's content without quotes.
func stringContent(node *sitter.Node, source []byte) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.Type() == NodeStringFragment {
			return Text(child, source)
		}
	}
	text := Text(node, source)
	if len(text) >= 2 {
		return text[1 : len(text)-1]
	}
	return text
}
