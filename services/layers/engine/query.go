// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"regexp"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// Query is a compiled query with its predicates parsed per pattern.
//
// Description:
//
//	The runtime binding evaluates text predicates itself when given the
//	source bytes. Layers read text through a TextProvider instead, so
//	NewQuery turns the binding's parsed predicates back into raw steps,
//	parses them with the predicate package, and disables the binding's own
//	text filtering. Matches therefore arrive unfiltered and are resolved by
//	the caller against a predicate.Context.
//
// Thread Safety:
//
//	A compiled Query is read-only after NewQuery and may be executed from
//	several goroutines at once, each through its own Matches.
type Query struct {
	inner      *sitter.Query
	language   string
	names      []string
	steps      [][]predicate.Step
	predicates [][]predicate.Predicate
}

// NewQuery compiles source for lang.
//
// Outputs:
//
//	*Query - The compiled query. Close it when done.
//	error  - A *QueryCompileError (matching ErrQueryCompile) on invalid
//	         query source or malformed predicates.
func NewQuery(lang *Language, source string) (*Query, error) {
	inner, qerr := sitter.NewQuery(lang.inner, source)
	if qerr != nil {
		return nil, &QueryCompileError{
			Language: lang.name,
			Row:      qerr.Row,
			Column:   qerr.Column,
			Offset:   qerr.Offset,
			Message:  qerr.Message,
		}
	}

	q := &Query{
		inner:    inner,
		language: lang.name,
		names:    inner.CaptureNames(),
	}

	count := inner.PatternCount()
	q.steps = make([][]predicate.Step, count)
	q.predicates = make([][]predicate.Predicate, count)

	for i := uint(0); i < count; i++ {
		steps := stepsForPattern(inner, i, q.names)
		preds, err := predicate.Parse(steps)
		if err != nil {
			inner.Close()
			return nil, &QueryCompileError{
				Language: lang.name,
				Offset:   inner.StartByteForPattern(i),
				Message:  err.Error(),
				Cause:    err,
			}
		}
		q.steps[i] = steps
		q.predicates[i] = preds
		inner.TextPredicates[i] = nil
	}

	return q, nil
}

// Language returns the name of the language the query was compiled for.
func (q *Query) Language() string {
	return q.language
}

// PatternCount returns the number of patterns in the query.
func (q *Query) PatternCount() uint {
	return uint(len(q.steps))
}

// CaptureNames returns every capture name, indexed by capture id.
func (q *Query) CaptureNames() []string {
	return q.names
}

// CaptureName returns the name of capture id, or "" if out of range.
func (q *Query) CaptureName(id uint32) string {
	if int(id) >= len(q.names) {
		return ""
	}
	return q.names[id]
}

// PredicateSteps returns the raw predicate steps of a pattern.
func (q *Query) PredicateSteps(pattern uint) []predicate.Step {
	if pattern >= uint(len(q.steps)) {
		return nil
	}
	return q.steps[pattern]
}

// Predicates returns the parsed predicates of a pattern.
func (q *Query) Predicates(pattern uint) []predicate.Predicate {
	if pattern >= uint(len(q.predicates)) {
		return nil
	}
	return q.predicates[pattern]
}

// Close releases the query.
func (q *Query) Close() {
	if q == nil || q.inner == nil {
		return
	}
	q.inner.Close()
	q.inner = nil
}

// ExecuteOption configures one query execution.
type ExecuteOption func(*executeConfig)

type executeConfig struct {
	matchLimit uint
}

// WithMatchLimit caps the number of in-progress matches. Zero keeps the
// runtime default.
func WithMatchLimit(limit uint) ExecuteOption {
	return func(c *executeConfig) {
		c.matchLimit = limit
	}
}

// Execute runs the query over tree, restricted to window.
//
// Description:
//
//	Matches whose nodes intersect window are produced; a match may extend
//	past the window. Predicates are not applied. The returned Matches must
//	be closed, and tree must stay open until it is.
func (q *Query) Execute(tree *Tree, window ranges.ByteRange, opts ...ExecuteOption) *Matches {
	cfg := executeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	cursor := sitter.NewQueryCursor()
	if cfg.matchLimit > 0 {
		cursor.SetMatchLimit(cfg.matchLimit)
	}
	cursor.SetByteRange(window.Start, window.End)

	root := tree.inner.RootNode()
	return &Matches{
		cursor:  cursor,
		matches: cursor.Matches(q.inner, root, nil),
		query:   q,
	}
}

// RawMatch is one unfiltered pattern match.
type RawMatch struct {
	PatternIndex uint
	Captures     []RawCapture
}

// RawCapture is one captured node with its capture id.
type RawCapture struct {
	Node  Node
	Index uint32
}

// Matches iterates the matches of one execution.
//
// Thread Safety:
//
//	NOT safe for concurrent use.
type Matches struct {
	cursor  *sitter.QueryCursor
	matches sitter.QueryMatches
	query   *Query
	done    bool
}

// Next returns the next match, or false once exhausted.
func (m *Matches) Next() (RawMatch, bool) {
	if m.done {
		return RawMatch{}, false
	}
	raw := m.matches.Next()
	if raw == nil {
		m.done = true
		return RawMatch{}, false
	}

	// The runtime reuses the capture buffer on the next call.
	captures := make([]RawCapture, len(raw.Captures))
	for i, c := range raw.Captures {
		captures[i] = RawCapture{Node: Node{inner: c.Node}, Index: c.Index}
	}
	return RawMatch{PatternIndex: raw.PatternIndex, Captures: captures}, true
}

// Query returns the query being executed.
func (m *Matches) Query() *Query {
	return m.query
}

// Close releases the cursor.
func (m *Matches) Close() {
	if m == nil || m.cursor == nil {
		return
	}
	m.cursor.Close()
	m.cursor = nil
	m.done = true
}

// stepsForPattern rebuilds the raw predicate steps of one pattern from the
// binding's pre-parsed predicate lists.
func stepsForPattern(q *sitter.Query, pattern uint, names []string) []predicate.Step {
	var steps []predicate.Step
	capture := func(id uint) predicate.Step {
		return predicate.CaptureStep(names[id])
	}

	for _, tp := range q.TextPredicates[pattern] {
		switch tp.Type {
		case sitter.TextPredicateTypeEqCapture:
			steps = append(steps,
				predicate.StringStep(quantifiedName("eq?", tp.Positive, tp.MatchAllNodes)),
				capture(tp.CaptureId),
				capture(tp.Value.(uint)),
			)
		case sitter.TextPredicateTypeEqString:
			steps = append(steps,
				predicate.StringStep(quantifiedName("eq?", tp.Positive, tp.MatchAllNodes)),
				capture(tp.CaptureId),
				predicate.StringStep(tp.Value.(string)),
			)
		case sitter.TextPredicateTypeMatchString:
			steps = append(steps,
				predicate.StringStep(quantifiedName("match?", tp.Positive, tp.MatchAllNodes)),
				capture(tp.CaptureId),
				predicate.StringStep(tp.Value.(*regexp.Regexp).String()),
			)
		case sitter.TextPredicateTypeAnyString:
			name := "any-of?"
			if !tp.Positive {
				name = "not-any-of?"
			}
			steps = append(steps, predicate.StringStep(name), capture(tp.CaptureId))
			for _, v := range tp.Value.([]string) {
				steps = append(steps, predicate.StringStep(v))
			}
		default:
			continue
		}
		steps = append(steps, predicate.Done())
	}

	for _, prop := range q.PropertySettings(pattern) {
		steps = append(steps, predicate.StringStep("set!"))
		steps = append(steps, propertyArgs(prop, names)...)
		steps = append(steps, predicate.Done())
	}

	for _, pp := range q.PropertyPredicates(pattern) {
		name := "is?"
		if !pp.Positive {
			name = "is-not?"
		}
		steps = append(steps, predicate.StringStep(name))
		steps = append(steps, propertyArgs(pp.Property, names)...)
		steps = append(steps, predicate.Done())
	}

	for _, gp := range q.GeneralPredicates(pattern) {
		steps = append(steps, predicate.StringStep(gp.Operator))
		for _, arg := range gp.Args {
			switch {
			case arg.CaptureId != nil:
				steps = append(steps, capture(*arg.CaptureId))
			case arg.String != nil:
				steps = append(steps, predicate.StringStep(*arg.String))
			}
		}
		steps = append(steps, predicate.Done())
	}

	return steps
}

func propertyArgs(prop sitter.QueryProperty, names []string) []predicate.Step {
	var args []predicate.Step
	if prop.CaptureId != nil {
		args = append(args, predicate.CaptureStep(names[*prop.CaptureId]))
	}
	args = append(args, predicate.StringStep(prop.Key))
	if prop.Value != nil {
		args = append(args, predicate.StringStep(*prop.Value))
	}
	return args
}

// quantifiedName maps the binding's polarity and quantifier flags back to
// the predicate name written in the query.
func quantifiedName(base string, positive, matchAll bool) string {
	name := base
	if !positive {
		name = "not-" + name
	}
	if !matchAll {
		name = "any-" + name
	}
	return name
}
