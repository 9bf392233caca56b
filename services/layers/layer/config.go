// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package layer

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianLayers/services/layers/engine"
)

// QueryKind names one of a language's compiled queries.
type QueryKind string

// Well-known query kinds. Any other name is a custom kind.
const (
	Highlights QueryKind = "highlights"
	Injections QueryKind = "injections"
	Locals     QueryKind = "locals"
)

// Custom returns the kind for a non-standard query file, e.g. "tags".
func Custom(name string) QueryKind {
	return QueryKind(strings.ToLower(name))
}

// LanguageConfiguration is a grammar plus its compiled queries.
//
// Description:
//
//	Configurations are immutable after construction and shared by every
//	layer of the same language, including snapshot layers. The owner
//	(normally a language registry) closes it once no layer or snapshot
//	uses it any longer.
type LanguageConfiguration struct {
	// Name is the normalized (lower case) language name.
	Name string

	// Language is the grammar.
	Language *engine.Language

	// Queries holds the compiled queries by kind.
	Queries map[QueryKind]*engine.Query
}

// LanguageProvider resolves an injected language name to a configuration.
//
// It returns false when the language is unknown. A provider must be safe to
// call repeatedly and from the goroutine that mutates the layer tree.
type LanguageProvider func(name string) (*LanguageConfiguration, bool)

// NormalizeName returns the canonical form of a language name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NewLanguageConfiguration compiles sources for lang.
//
// Inputs:
//
//	lang    - The grammar. Its name becomes the configuration name.
//	sources - Query source by kind. Empty sources are skipped.
//
// Outputs:
//
//	*LanguageConfiguration - The configuration.
//	error                  - The first compile error, wrapped with its kind.
//	                         Already compiled queries are released.
func NewLanguageConfiguration(lang *engine.Language, sources map[QueryKind]string) (*LanguageConfiguration, error) {
	cfg := &LanguageConfiguration{
		Name:     NormalizeName(lang.Name()),
		Language: lang,
		Queries:  make(map[QueryKind]*engine.Query, len(sources)),
	}

	for kind, source := range sources {
		if strings.TrimSpace(source) == "" {
			continue
		}
		q, err := engine.NewQuery(lang, source)
		if err != nil {
			cfg.Close()
			return nil, fmt.Errorf("%s %s: %w", cfg.Name, kind, err)
		}
		cfg.Queries[kind] = q
	}

	return cfg, nil
}

// Query returns the compiled query for kind.
func (c *LanguageConfiguration) Query(kind QueryKind) (*engine.Query, bool) {
	q, ok := c.Queries[kind]
	return q, ok && q != nil
}

// Close releases every compiled query.
func (c *LanguageConfiguration) Close() {
	for kind, q := range c.Queries {
		q.Close()
		delete(c.Queries, kind)
	}
}
