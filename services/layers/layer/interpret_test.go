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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

func capture(name string, start, end uint, depth int, pattern uint) QueryCapture {
	return QueryCapture{
		Name:           name,
		NameComponents: strings.Split(name, "."),
		Range:          ranges.Range{Bytes: ranges.NewByteRange(start, end)},
		Depth:          depth,
		PatternIndex:   pattern,
	}
}

func names(rs []NamedRange) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

func TestHighlightsOf_Ordering(t *testing.T) {
	matches := []QueryMatch{
		{Captures: []QueryCapture{capture("a.b.c", 0, 3, 0, 2)}},
		{Captures: []QueryCapture{capture("nested", 0, 3, 1, 0)}},
		{Captures: []QueryCapture{capture("a", 0, 3, 0, 5)}},
		{Captures: []QueryCapture{capture("a.b", 0, 3, 0, 1)}},
		{Captures: []QueryCapture{capture("later", 4, 6, 0, 0)}},
		{Captures: []QueryCapture{capture("_hidden", 0, 3, 0, 0), capture("", 0, 3, 0, 0)}},
	}

	got := HighlightsOf(matches)
	assert.Equal(t, []string{"a", "a.b", "a.b.c", "later", "nested"}, names(got))
}

func TestHighlightsOf_PatternTieBreak(t *testing.T) {
	matches := []QueryMatch{
		{Captures: []QueryCapture{capture("second", 0, 3, 0, 7)}},
		{Captures: []QueryCapture{capture("first", 0, 3, 0, 1)}},
	}
	assert.Equal(t, []string{"first", "second"}, names(HighlightsOf(matches)))
}

func TestInjectionsOf(t *testing.T) {
	const text = `<script lang="JavaScript">x</script>`
	provider := StringTextProvider(text)

	langCapture := capture("injection.language", 14, 24, 0, 0)
	content := capture("injection.content", 26, 27, 0, 0)

	tests := []struct {
		name  string
		match QueryMatch
		want  []string
	}{
		{
			name:  "language from capture text",
			match: QueryMatch{Captures: []QueryCapture{langCapture, content}},
			want:  []string{"javascript"},
		},
		{
			name: "language from match directive",
			match: QueryMatch{
				Captures: []QueryCapture{content},
				Metadata: map[string]string{"injection.language": "CSS"},
			},
			want: []string{"css"},
		},
		{
			name: "capture directive wins over match directive",
			match: QueryMatch{
				Captures: []QueryCapture{func() QueryCapture {
					c := content
					c.Metadata = map[string]string{"injection.language": "ruby"}
					return c
				}()},
				Metadata: map[string]string{"injection.language": "css"},
			},
			want: []string{"ruby"},
		},
		{
			name:  "no language drops the match",
			match: QueryMatch{Captures: []QueryCapture{content}},
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InjectionsOf([]QueryMatch{tt.match}, provider)
			assert.Equal(t, tt.want, names(got))
			for _, r := range got {
				assert.Equal(t, content.Range, r.Range)
			}
		})
	}
}

func TestLocalsAndScopeMembership(t *testing.T) {
	// func f() { x := 1; x }  y
	const text = "func f() { x := 1; x }  x"
	matches := []QueryMatch{
		{Captures: []QueryCapture{capture("local.scope", 9, 22, 0, 0)}},
		{Captures: []QueryCapture{capture("local.definition", 11, 12, 0, 1), capture("variable", 11, 12, 0, 1)}},
		{Captures: []QueryCapture{capture("local.reference", 19, 20, 0, 2)}},
	}

	locals := LocalsOf(matches)
	require.Equal(t, []string{"local.scope", "local.definition", "local.reference"}, names(locals))

	member := ScopeMembership(locals, StringTextProvider(text))
	inScope := ranges.Range{Bytes: ranges.NewByteRange(19, 20)}
	outOfScope := ranges.Range{Bytes: ranges.NewByteRange(24, 25)}

	assert.True(t, member("local", inScope))
	assert.False(t, member("local", outOfScope))
	assert.False(t, member("other", inScope))

	ctx := predicate.NewContext(StringTextProvider(text), member)
	isNot := []predicate.Predicate{predicate.IsNot{Group: "local"}}
	assert.False(t, predicate.Allows(isNot, []predicate.Capture{{Name: "v", Range: inScope}}, ctx))
}
