// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package languages

import (
	tsembedded "github.com/tree-sitter/tree-sitter-embedded-template/bindings/go"
	tsgo "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tshtml "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tsjson "github.com/tree-sitter/tree-sitter-json/bindings/go"
	tspython "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

// Builtin returns the grammars compiled into this binary.
//
// ERB and EJS share the embedded-template grammar and differ only in the
// language their code blocks inject.
func Builtin() []Grammar {
	return []Grammar{
		{
			Name:       "go",
			Aliases:    []string{"golang"},
			Extensions: []string{".go"},
			Language:   tsgo.Language,
		},
		{
			Name:       "html",
			Aliases:    []string{"htm", "xhtml"},
			Extensions: []string{".html", ".htm"},
			Language:   tshtml.Language,
		},
		{
			Name:       "json",
			Aliases:    []string{"jsonc"},
			Extensions: []string{".json"},
			Language:   tsjson.Language,
		},
		{
			Name:       "python",
			Aliases:    []string{"py", "python3"},
			Extensions: []string{".py"},
			Language:   tspython.Language,
		},
		{
			Name:       "erb",
			Aliases:    []string{"eruby"},
			Extensions: []string{".erb"},
			Language:   tsembedded.Language,
		},
		{
			Name:       "ejs",
			Extensions: []string{".ejs"},
			Language:   tsembedded.Language,
		},
	}
}

// NewBuiltinRegistry returns a registry holding every Builtin grammar.
func NewBuiltinRegistry(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	for _, g := range Builtin() {
		r.Register(g)
	}
	return r
}
