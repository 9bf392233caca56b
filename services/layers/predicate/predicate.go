// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package predicate turns the raw predicate steps of a compiled query into
// structured predicates and evaluates them against a match.
//
// # Supported predicates
//
//	eq? not-eq? any-eq? any-not-eq?          text equality
//	match? not-match? any-match? any-not-match?  regular expressions
//	any-of? not-any-of?                      set membership
//	is-not?                                  group membership (locals)
//	set!                                     metadata directive
//
// Anything else, including a known name with arguments it cannot use,
// becomes a Generic predicate. Generic predicates never filter a match.
package predicate

import (
	"regexp"
	"slices"

	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// Capture is the view of a query capture that predicates evaluate against.
type Capture struct {
	Name  string
	Range ranges.Range
}

// Predicate is one structured predicate invocation.
//
// The set of implementations is closed: Eq, NotEq, Match, NotMatch, IsNot,
// AnyOf, NotAnyOf, Set and Generic.
type Predicate interface {
	// Name returns the predicate name as written in the query, e.g. "eq?".
	Name() string

	// CaptureNames returns the capture names the predicate reads.
	CaptureNames() []string

	// Evaluate reports whether the captures of one match satisfy the
	// predicate.
	Evaluate(captures []Capture, ctx *Context) bool

	sealed()
}

// Eq requires capture text to equal every string, or, when no strings are
// given, all named captures to have equal text.
type Eq struct {
	Strings  []string
	Captures []string
	// Any passes when a single node satisfies the comparison.
	Any bool
}

// NotEq is the negation of Eq.
type NotEq struct {
	Strings  []string
	Captures []string
	Any      bool
}

// Match requires capture text to match Regex.
type Match struct {
	Regex    *regexp.Regexp
	Captures []string
	Any      bool
}

// NotMatch requires capture text not to match Regex.
type NotMatch struct {
	Regex    *regexp.Regexp
	Captures []string
	Any      bool
}

// IsNot requires that no capture of the match is a member of Group.
type IsNot struct {
	Group string
}

// AnyOf requires the capture's text to be one of Values.
type AnyOf struct {
	Capture string
	Values  []string
}

// NotAnyOf requires the capture's text to be none of Values.
type NotAnyOf struct {
	Capture string
	Values  []string
}

// Set is the set! directive. Capture is empty for match-level metadata.
type Set struct {
	Capture string
	Key     string
	Value   string
}

// Generic holds an unrecognized invocation verbatim.
type Generic struct {
	Operator string
	Strings  []string
	Captures []string
}

func (Eq) sealed()       {}
func (NotEq) sealed()    {}
func (Match) sealed()    {}
func (NotMatch) sealed() {}
func (IsNot) sealed()    {}
func (AnyOf) sealed()    {}
func (NotAnyOf) sealed() {}
func (Set) sealed()      {}
func (Generic) sealed()  {}

func (p Eq) Name() string {
	if p.Any {
		return "any-eq?"
	}
	return "eq?"
}

func (p NotEq) Name() string {
	if p.Any {
		return "any-not-eq?"
	}
	return "not-eq?"
}

func (p Match) Name() string {
	if p.Any {
		return "any-match?"
	}
	return "match?"
}

func (p NotMatch) Name() string {
	if p.Any {
		return "any-not-match?"
	}
	return "not-match?"
}

func (IsNot) Name() string    { return "is-not?" }
func (AnyOf) Name() string    { return "any-of?" }
func (NotAnyOf) Name() string { return "not-any-of?" }
func (Set) Name() string      { return "set!" }
func (p Generic) Name() string {
	return p.Operator
}

func (p Eq) CaptureNames() []string       { return p.Captures }
func (p NotEq) CaptureNames() []string    { return p.Captures }
func (p Match) CaptureNames() []string    { return p.Captures }
func (p NotMatch) CaptureNames() []string { return p.Captures }
func (IsNot) CaptureNames() []string      { return nil }
func (p AnyOf) CaptureNames() []string    { return []string{p.Capture} }
func (p NotAnyOf) CaptureNames() []string { return []string{p.Capture} }
func (p Set) CaptureNames() []string {
	if p.Capture == "" {
		return nil
	}
	return []string{p.Capture}
}
func (p Generic) CaptureNames() []string { return p.Captures }

// Evaluate implements Predicate.
func (p Eq) Evaluate(captures []Capture, ctx *Context) bool {
	texts, ok := ctx.texts(selectCaptures(captures, p.Captures))
	if !ok {
		return false
	}
	if len(p.Strings) == 0 {
		return allEqual(texts)
	}
	return quantify(texts, p.Any, func(text string) bool {
		return allOf(p.Strings, func(s string) bool { return s == text })
	})
}

// Evaluate implements Predicate.
func (p NotEq) Evaluate(captures []Capture, ctx *Context) bool {
	texts, ok := ctx.texts(selectCaptures(captures, p.Captures))
	if !ok {
		return false
	}
	if len(p.Strings) == 0 {
		return len(texts) < 2 || !allEqual(texts)
	}
	return quantify(texts, p.Any, func(text string) bool {
		return allOf(p.Strings, func(s string) bool { return s != text })
	})
}

// Evaluate implements Predicate.
func (p Match) Evaluate(captures []Capture, ctx *Context) bool {
	texts, ok := ctx.texts(selectCaptures(captures, p.Captures))
	if !ok {
		return false
	}
	return quantify(texts, p.Any, p.Regex.MatchString)
}

// Evaluate implements Predicate.
func (p NotMatch) Evaluate(captures []Capture, ctx *Context) bool {
	texts, ok := ctx.texts(selectCaptures(captures, p.Captures))
	if !ok {
		return false
	}
	return quantify(texts, p.Any, func(text string) bool {
		return !p.Regex.MatchString(text)
	})
}

// Evaluate implements Predicate.
//
// With no membership provider every capture is treated as a non-member, so
// the predicate passes.
func (p IsNot) Evaluate(captures []Capture, ctx *Context) bool {
	for _, c := range captures {
		if ctx.isMember(p.Group, c.Range) {
			return false
		}
	}
	return true
}

// Evaluate implements Predicate.
func (p AnyOf) Evaluate(captures []Capture, ctx *Context) bool {
	texts, ok := ctx.texts(selectCaptures(captures, []string{p.Capture}))
	if !ok {
		return false
	}
	return quantify(texts, false, func(text string) bool {
		return slices.Contains(p.Values, text)
	})
}

// Evaluate implements Predicate.
func (p NotAnyOf) Evaluate(captures []Capture, ctx *Context) bool {
	texts, ok := ctx.texts(selectCaptures(captures, []string{p.Capture}))
	if !ok {
		return false
	}
	return quantify(texts, false, func(text string) bool {
		return !slices.Contains(p.Values, text)
	})
}

// Evaluate implements Predicate. Directives never filter.
func (Set) Evaluate([]Capture, *Context) bool { return true }

// Evaluate implements Predicate. Unknown predicates never filter.
func (Generic) Evaluate([]Capture, *Context) bool { return true }

// Allows reports whether every predicate accepts the match captures.
func Allows(predicates []Predicate, captures []Capture, ctx *Context) bool {
	for _, p := range predicates {
		if !p.Evaluate(captures, ctx) {
			return false
		}
	}
	return true
}

// Directives collects set! values.
//
// Description:
//
//	With capture empty, only match-level directives (those naming no
//	capture) are returned. Otherwise only directives aimed at that capture
//	are returned. Later directives override earlier ones for the same key.
func Directives(predicates []Predicate, capture string) map[string]string {
	var out map[string]string
	for _, p := range predicates {
		s, ok := p.(Set)
		if !ok || s.Capture != capture {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[s.Key] = s.Value
	}
	return out
}

func selectCaptures(captures []Capture, names []string) []Capture {
	out := make([]Capture, 0, len(names))
	for _, c := range captures {
		if slices.Contains(names, c.Name) {
			out = append(out, c)
		}
	}
	return out
}

// quantify applies test to every text. A capture absent from the match
// yields no texts, which satisfies an all-quantified predicate and fails an
// any-quantified one.
func quantify(texts []string, anyNode bool, test func(string) bool) bool {
	if anyNode {
		return slices.ContainsFunc(texts, test)
	}
	return allOf(texts, test)
}

func allOf(values []string, test func(string) bool) bool {
	for _, v := range values {
		if !test(v) {
			return false
		}
	}
	return true
}

func allEqual(texts []string) bool {
	for _, t := range texts[min(1, len(texts)):] {
		if t != texts[0] {
			return false
		}
	}
	return true
}
