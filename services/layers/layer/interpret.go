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
	"cmp"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// Capture names read by the interpreters.
const (
	captureInjectionContent  = "injection.content"
	captureInjectionLanguage = "injection.language"
	keyInjectionLanguage     = "injection.language"
	prefixLocal              = "local."
	captureLocalScope        = "local.scope"
	captureLocalDefinition   = "local.definition"
	groupLocal               = "local"
)

// NamedRange is an interpreted capture: a name attached to a span.
type NamedRange struct {
	Name           string
	NameComponents []string
	Range          ranges.Range
	Depth          int
	Language       string
}

// HighlightsOf flattens matches into highlight ranges.
//
// Description:
//
//	Captures with an empty name or a name starting with '_' are dropped.
//	The rest are ordered by layer depth, then start offset, then number of
//	name components, then pattern index, so a consumer painting them in
//	order lets deeper layers and more specific names win.
//
// Example:
//
//	captures "a" and "a.b.c" at the same offset come out as
//	"a", "a.b.c", and any depth-1 capture comes after both.
func HighlightsOf(matches []QueryMatch) []NamedRange {
	type ordered struct {
		named   NamedRange
		pattern uint
	}

	var all []ordered
	for _, m := range matches {
		for _, c := range m.Captures {
			if c.Name == "" || strings.HasPrefix(c.Name, "_") {
				continue
			}
			all = append(all, ordered{
				named: NamedRange{
					Name:           c.Name,
					NameComponents: c.NameComponents,
					Range:          c.Range,
					Depth:          c.Depth,
					Language:       c.Language,
				},
				pattern: c.PatternIndex,
			})
		}
	}

	slices.SortStableFunc(all, func(a, b ordered) int {
		return cmp.Or(
			cmp.Compare(a.named.Depth, b.named.Depth),
			cmp.Compare(a.named.Range.Bytes.Start, b.named.Range.Bytes.Start),
			cmp.Compare(len(a.named.NameComponents), len(b.named.NameComponents)),
			cmp.Compare(a.pattern, b.pattern),
		)
	})

	out := make([]NamedRange, len(all))
	for i, o := range all {
		out[i] = o.named
	}
	return out
}

// InjectionsOf extracts injected regions from matches of an injections
// query.
//
// Description:
//
//	The language comes from the text of an @injection.language capture,
//	falling back to an injection.language directive on the content
//	capture and then on the match. Matches with no language are dropped.
//	Each @injection.content capture yields one range named by the
//	normalized language.
func InjectionsOf(matches []QueryMatch, text predicate.TextProvider) []NamedRange {
	var out []NamedRange
	for _, m := range matches {
		language := ""
		if text != nil {
			for _, c := range m.CapturesNamed(captureInjectionLanguage) {
				if t, ok := text(c.Range); ok && strings.TrimSpace(t) != "" {
					language = t
					break
				}
			}
		}

		for _, c := range m.CapturesNamed(captureInjectionContent) {
			name := language
			if name == "" {
				name = c.Metadata[keyInjectionLanguage]
			}
			if name == "" {
				name = m.Metadata[keyInjectionLanguage]
			}
			name = NormalizeName(name)
			if name == "" || c.Range.Bytes.IsEmpty() {
				continue
			}
			out = append(out, NamedRange{
				Name:           name,
				NameComponents: []string{name},
				Range:          c.Range,
				Depth:          m.Depth,
				Language:       m.Language,
			})
		}
	}
	return out
}

// LocalsOf extracts local.* captures from matches of a locals query, in
// match order.
func LocalsOf(matches []QueryMatch) []NamedRange {
	var out []NamedRange
	for _, m := range matches {
		for _, c := range m.Captures {
			if !strings.HasPrefix(c.Name, prefixLocal) {
				continue
			}
			out = append(out, NamedRange{
				Name:           c.Name,
				NameComponents: c.NameComponents,
				Range:          c.Range,
				Depth:          c.Depth,
				Language:       c.Language,
			})
		}
	}
	return out
}

// ScopeMembership answers the "local" group for is-not? predicates.
//
// Description:
//
//	A range is a member of "local" when its text equals a
//	@local.definition in the same layer that starts no later than the
//	range, and the innermost @local.scope enclosing that definition also
//	encloses the range. A definition outside any scope is visible
//	everywhere after it. Every other group has no members.
func ScopeMembership(locals []NamedRange, text predicate.TextProvider) predicate.GroupMembershipProvider {
	type definition struct {
		name  string
		at    ranges.ByteRange
		scope ranges.ByteRange
		depth int
	}

	var scopes []NamedRange
	for _, l := range locals {
		if l.Name == captureLocalScope {
			scopes = append(scopes, l)
		}
	}

	var defs []definition
	for _, l := range locals {
		if l.Name != captureLocalDefinition || text == nil {
			continue
		}
		name, ok := text(l.Range)
		if !ok {
			continue
		}
		scope := ranges.ByteRange{Start: 0, End: ranges.MaxOffset}
		for _, s := range scopes {
			if s.Depth == l.Depth && s.Range.Bytes.ContainsRange(l.Range.Bytes) && s.Range.Bytes.Len() < scope.Len() {
				scope = s.Range.Bytes
			}
		}
		defs = append(defs, definition{name: name, at: l.Range.Bytes, scope: scope, depth: l.Depth})
	}

	return func(group string, r ranges.Range) bool {
		if group != groupLocal || text == nil {
			return false
		}
		name, ok := text(r)
		if !ok {
			return false
		}
		for _, d := range defs {
			if d.name == name && d.at.Start <= r.Bytes.Start && d.scope.ContainsRange(r.Bytes) {
				return true
			}
		}
		return false
	}
}
