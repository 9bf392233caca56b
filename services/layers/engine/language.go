// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine wraps the tree-sitter runtime behind owned handle types.
//
// Every handle that holds native memory (Parser, Tree, Query, Matches) has
// an explicit Close. Nothing in this package is finalized automatically;
// callers own the handles they create.
//
// The package only adapts. Parsing, tree diffing and pattern matching are
// all performed by the runtime; predicates are handed back as raw steps so
// the predicate package can evaluate them.
package engine

import (
	"unsafe"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Language is a grammar loaded from a tree-sitter language pointer.
//
// Languages are static data owned by the grammar package and are safe to
// share between parsers and goroutines.
type Language struct {
	name  string
	inner *sitter.Language
}

// NewLanguage wraps the pointer returned by a grammar binding's Language().
//
// Example:
//
//	import tsgo "github.com/tree-sitter/tree-sitter-go/bindings/go"
//
//	lang := engine.NewLanguage("go", tsgo.Language())
func NewLanguage(name string, ptr unsafe.Pointer) *Language {
	return &Language{name: name, inner: sitter.NewLanguage(ptr)}
}

// Name returns the name the language was registered under.
func (l *Language) Name() string {
	return l.name
}

// ABIVersion returns the grammar's ABI version.
func (l *Language) ABIVersion() uint32 {
	return l.inner.AbiVersion()
}
