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
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tsgo "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/AleutianAI/AleutianLayers/services/layers/engine"
	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

const (
	goInjections = `
((interpreted_string_literal_content) @injection.content
  (#set! injection.language "go"))
((raw_string_literal_content) @injection.content
  (#set! injection.language "go"))
`
	goHighlights = `
"var" @keyword
(identifier) @variable
`
	injectedSource = `var a = "var b = 1"`
)

func goConfigNamed(t *testing.T, name string, queries map[QueryKind]string) *LanguageConfiguration {
	t.Helper()
	cfg, err := NewLanguageConfiguration(engine.NewLanguage(name, tsgo.Language()), queries)
	require.NoError(t, err)
	t.Cleanup(cfg.Close)
	return cfg
}

func goConfig(t *testing.T) *LanguageConfiguration {
	return goConfigNamed(t, "go", map[QueryKind]string{
		Injections: goInjections,
		Highlights: goHighlights,
	})
}

func providerOf(configs ...*LanguageConfiguration) LanguageProvider {
	return func(name string) (*LanguageConfiguration, bool) {
		for _, cfg := range configs {
			if cfg.Name == name {
				return cfg, true
			}
		}
		return nil, false
	}
}

// harness drives a root layer through text edits.
type harness struct {
	t    *testing.T
	root *LanguageLayer
	text string
}

func newHarness(t *testing.T, cfg *LanguageConfiguration, opts ...Option) *harness {
	t.Helper()
	root, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(root.Close)
	return &harness{t: t, root: root}
}

func (h *harness) replace(start, end uint, replacement string) ranges.Set {
	h.t.Helper()
	oldEnd, err := ranges.NewLocator(h.text).Point(end)
	require.NoError(h.t, err)

	next := h.text[:start] + replacement + h.text[end:]
	edit, err := ranges.NewInputEdit(
		ranges.NewByteRange(start, end),
		len(replacement)-int(end-start),
		oldEnd,
		ranges.NewLocator(next).Transformer(),
	)
	require.NoError(h.t, err)

	invalidated, err := h.root.DidChangeContent(context.Background(), edit, StringContent(next))
	require.NoError(h.t, err)
	h.text = next
	return invalidated
}

func (h *harness) load(text string) ranges.Set {
	return h.replace(0, uint(len(h.text)), text)
}

func (h *harness) highlights() []NamedRange {
	h.t.Helper()
	cursor, err := h.root.ExecuteQuery(Highlights, ranges.All())
	require.NoError(h.t, err)
	defer cursor.Close()
	cursor.Resolve(predicate.NewContext(StringTextProvider(h.text), nil))
	return HighlightsOf(cursor.Collect())
}

// layerShape is the part of a layer that must not depend on edit history.
type layerShape struct {
	Name  string
	Depth int
	Bytes []ranges.ByteRange
}

func shapeOf(root *LanguageLayer) []layerShape {
	var out []layerShape
	for _, l := range root.Layers() {
		shape := layerShape{Name: l.Name(), Depth: l.Depth()}
		if l.Depth() > 0 {
			for _, r := range l.IncludedRanges() {
				shape.Bytes = append(shape.Bytes, r.Bytes)
			}
		}
		out = append(out, shape)
	}
	return out
}

type highlightSpan struct {
	Name  string
	Depth int
	Bytes ranges.ByteRange
}

func spansOf(hls []NamedRange) []highlightSpan {
	out := make([]highlightSpan, 0, len(hls))
	for _, hl := range hls {
		out = append(out, highlightSpan{Name: hl.Name, Depth: hl.Depth, Bytes: hl.Range.Bytes})
	}
	return out
}

// assertNested checks that every child range lies inside its parent.
func (h *harness) assertNested() {
	h.t.Helper()
	for _, l := range h.root.Layers() {
		bounds := l.RangeSet()
		for _, child := range l.Children() {
			assert.NotEmpty(h.t, child.IncludedRanges(), "%s/%d kept with no ranges", child.Name(), child.Depth())
			for _, r := range child.IncludedRanges() {
				assert.True(h.t, bounds.ContainsRange(r.Bytes),
					"%s/%d range %s outside parent %s", child.Name(), child.Depth(), r.Bytes, bounds)
			}
		}
	}
}

// assertMatchesFreshParse compares the edited tree with one built from
// scratch over the same text.
func (h *harness) assertMatchesFreshParse(cfg *LanguageConfiguration) {
	h.t.Helper()
	fresh := newHarness(h.t, cfg, WithLanguageProvider(providerOf(cfg)))
	fresh.load(h.text)
	assert.Equal(h.t, shapeOf(fresh.root), shapeOf(h.root), "layers for %q", h.text)
	assert.Equal(h.t, spansOf(fresh.highlights()), spansOf(h.highlights()), "highlights for %q", h.text)
}

func TestLanguageLayer_InjectionRoundTrip(t *testing.T) {
	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))

	invalidated := h.load(injectedSource)
	assert.True(t, invalidated.ContainsRange(ranges.NewByteRange(0, uint(len(injectedSource)))))

	child, ok := h.root.Child("go")
	require.True(t, ok)
	assert.Equal(t, 1, child.Depth())
	require.Len(t, child.IncludedRanges(), 1)
	assert.Equal(t, ranges.NewByteRange(9, 18), child.IncludedRanges()[0].Bytes)

	var keywords []NamedRange
	for _, hl := range h.highlights() {
		if hl.Name == "keyword" {
			keywords = append(keywords, hl)
		}
	}
	require.Len(t, keywords, 2)
	assert.Equal(t, ranges.NewByteRange(0, 3), keywords[0].Range.Bytes)
	assert.Equal(t, 0, keywords[0].Depth)
	assert.Equal(t, ranges.NewByteRange(9, 12), keywords[1].Range.Bytes)
	assert.Equal(t, 1, keywords[1].Depth)

	assert.Same(t, child, h.root.LayerFor(ranges.NewByteRange(10, 11)))
	assert.Same(t, h.root, h.root.LayerFor(ranges.NewByteRange(1, 2)))
}

func TestLanguageLayer_MaxDepth(t *testing.T) {
	// The outer string holds Go whose raw string holds more Go.
	const nested = "var a = \"var b = `var c = 1`\""

	tests := []struct {
		name      string
		maxDepth  int
		wantDepth int
	}{
		{name: "default depth builds both levels", maxDepth: DefaultMaxDepth, wantDepth: 2},
		{name: "depth one stops at the first injection", maxDepth: 1, wantDepth: 1},
		{name: "depth zero builds no children", maxDepth: 0, wantDepth: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := goConfig(t)
			h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)), WithMaxDepth(tt.maxDepth))
			h.load(nested)

			deepest := 0
			for _, l := range h.root.Layers() {
				deepest = max(deepest, l.Depth())
				assert.Empty(t, l.Missing())
			}
			assert.Equal(t, tt.wantDepth, deepest)
		})
	}
}

func TestLanguageLayer_MissingLanguageResolution(t *testing.T) {
	root := goConfigNamed(t, "go", map[QueryKind]string{
		Injections: `((interpreted_string_literal_content) @injection.content
  (#set! injection.language "embedded"))`,
	})
	embedded := goConfigNamed(t, "embedded", map[QueryKind]string{})

	known := []*LanguageConfiguration{root}
	provider := func(name string) (*LanguageConfiguration, bool) {
		return providerOf(known...)(name)
	}

	h := newHarness(t, root, WithLanguageProvider(provider))
	h.load(injectedSource)

	assert.Empty(t, h.root.Children())
	missing := h.root.Missing()
	require.Contains(t, missing, "embedded")
	assert.Equal(t, ranges.NewByteRange(9, 18), missing["embedded"][0].Bytes)

	known = append(known, embedded)
	invalidated, err := h.root.LanguageConfigurationChanged(context.Background(), "Embedded", StringContent(h.text))
	require.NoError(t, err)

	assert.True(t, invalidated.Equal(ranges.NewSet(ranges.NewByteRange(9, 18))), "got %s", invalidated)
	assert.Empty(t, h.root.Missing())
	child, ok := h.root.Child("embedded")
	require.True(t, ok)
	assert.False(t, child.State().IsEmpty())
}

func TestLanguageLayer_EditInsideInjection(t *testing.T) {
	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(injectedSource)

	// "1" -> "42" inside the string.
	invalidated := h.replace(17, 18, "42")
	assert.True(t, invalidated.ContainsRange(ranges.NewByteRange(17, 19)), "got %s", invalidated)

	child, ok := h.root.Child("go")
	require.True(t, ok)
	require.Len(t, child.IncludedRanges(), 1)
	assert.Equal(t, ranges.NewByteRange(9, 19), child.IncludedRanges()[0].Bytes)

	again, err := h.root.Parse(context.Background(), StringContent(h.text), ranges.Set{})
	require.NoError(t, err)
	assert.True(t, again.IsEmpty(), "reparse without edits invalidated %s", again)
}

func TestLanguageLayer_PartialInvalidation(t *testing.T) {
	const source = "var a = \"var x = 1\"\nvar b = \"var y = 2\"\n"

	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(source)

	child, ok := h.root.Child("go")
	require.True(t, ok)
	require.Len(t, child.IncludedRanges(), 2)

	// "2" -> "33" in the second string only.
	invalidated := h.replace(37, 38, "33")
	assert.True(t, invalidated.ContainsRange(ranges.NewByteRange(37, 39)))
	assert.False(t, invalidated.Intersects(ranges.NewByteRange(9, 18)), "first string invalidated: %s", invalidated)

	rs := child.IncludedRanges()
	require.Len(t, rs, 2)
	assert.Equal(t, ranges.NewByteRange(9, 18), rs[0].Bytes)
	assert.Equal(t, ranges.NewByteRange(29, 39), rs[1].Bytes)
}

func TestLanguageLayer_RetiresChild(t *testing.T) {
	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(injectedSource)
	require.Len(t, h.root.Children(), 1)

	// Replace the whole string literal with a number.
	h.replace(8, 19, "1")

	assert.Empty(t, h.root.Children())
	assert.Len(t, h.root.Layers(), 1)
}

func TestLanguageLayer_QueryUnavailable(t *testing.T) {
	cfg := goConfig(t)
	h := newHarness(t, cfg)
	h.load(injectedSource)

	_, err := h.root.ExecuteQuery(Locals, ranges.All())
	require.ErrorIs(t, err, ErrQueryUnavailable)

	var unavailable *QueryUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "go", unavailable.Layer)
	assert.Equal(t, Locals, unavailable.Kind)
}

func TestTreeSnapshot_ExecuteQueryPartial(t *testing.T) {
	marks := Custom("marks")
	root := goConfigNamed(t, "go", map[QueryKind]string{
		Injections: goInjections,
		marks:      `(identifier) @mark`,
	})
	// The injected layer's configuration has no marks query.
	h := newHarness(t, root, WithLanguageProvider(providerOf(goConfig(t))))
	h.load(injectedSource)
	require.Len(t, h.root.Layers(), 2)

	snap := h.root.Snapshot()
	defer snap.Close()

	_, err := snap.ExecuteQuery(marks, ranges.All())
	require.ErrorIs(t, err, ErrQueryUnavailable)

	cursor, err := snap.ExecuteQueryPartial(marks, ranges.All())
	require.NoError(t, err)
	defer cursor.Close()

	matches := cursor.Collect()
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].Depth)
	assert.Equal(t, "mark", matches[0].Captures[0].Name)
	assert.Equal(t, ranges.NewByteRange(4, 5), matches[0].Captures[0].Range.Bytes)
}

func TestLanguageLayer_SnapshotSurvivesEdit(t *testing.T) {
	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(injectedSource)

	snap := h.root.Snapshot()
	require.Len(t, snap.Infos(), 2)

	h.replace(8, 19, "1")
	require.Len(t, h.root.Layers(), 1)

	cursor, err := snap.ExecuteQueryOwned(Highlights, ranges.All())
	require.NoError(t, err)
	matches := cursor.Collect()
	depths := map[int]bool{}
	for _, m := range matches {
		depths[m.Depth] = true
	}
	cursor.Close()

	assert.True(t, depths[0])
	assert.True(t, depths[1])

	_, err = snap.ExecuteQuery(Highlights, ranges.All())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestLanguageLayer_ClosedLayer(t *testing.T) {
	root, err := New(goConfig(t))
	require.NoError(t, err)
	root.Close()
	root.Close()

	_, err = root.Parse(context.Background(), StringContent("var a = 1"), ranges.All())
	assert.ErrorIs(t, err, ErrClosed)

	_, err = New(nil)
	assert.ErrorIs(t, err, ErrNilConfiguration)
}

func TestDiff(t *testing.T) {
	p, err := engine.NewParser(engine.NewLanguage("go", tsgo.Language()))
	require.NoError(t, err)
	defer p.Close()

	tree, err := p.Parse(context.Background(), StringContent("var a = 1").Read, nil)
	require.NoError(t, err)
	state := NewParseState(tree)
	defer state.Close()

	changed := Diff(ParseState{}, state)
	require.Len(t, changed, 1)
	assert.Equal(t, ranges.NewByteRange(0, 9), changed[0].Bytes)

	assert.Empty(t, Diff(state, ParseState{}))

	copied := state.Copy()
	defer copied.Close()
	assert.NotSame(t, state.Tree(), copied.Tree())
}

func TestLanguageLayer_ChildRangesStayInsideParent(t *testing.T) {
	const source = "var a = \"var b = 1\"\nvar c = `var d = \"e\"`\n"

	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(source)
	require.Len(t, h.root.Layers(), 3)
	h.assertNested()

	// Drop the closing quote and newline so the first string runs on.
	h.replace(17, 20, "")
	h.assertNested()
	h.assertMatchesFreshParse(cfg)
}

func TestLanguageLayer_EmptyGrandchildRetired(t *testing.T) {
	const source = "var a = \"var b = 1\"\nvar c = `var d = \"e\"`\n"

	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(source)

	edits := []struct {
		start, end  uint
		replacement string
	}{
		{start: 24, end: 25, replacement: ""},
		{start: 9, end: 9, replacement: ";"},
		{start: 38, end: 40, replacement: ""},
	}
	for _, e := range edits {
		h.replace(e.start, e.end, e.replacement)
		h.assertNested()
	}

	for _, l := range h.root.Layers() {
		assert.Less(t, l.Depth(), 2, "layer %s/%d survived", l.Name(), l.Depth())
	}
	child, ok := h.root.Child("go")
	require.True(t, ok)
	var got []ranges.ByteRange
	for _, r := range child.IncludedRanges() {
		got = append(got, r.Bytes)
	}
	assert.Equal(t, []ranges.ByteRange{ranges.NewByteRange(9, 19), ranges.NewByteRange(29, 38)}, got)
	h.assertMatchesFreshParse(cfg)
}

func TestLanguageLayer_InjectionClosedAtEditBoundary(t *testing.T) {
	// The innermost string is missing its closing quote.
	const source = "var a = `var b = \"var c = 1`"

	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(source)

	// Close it right where the raw string ends.
	h.replace(27, 27, "\"")
	h.assertNested()

	var deepest *LanguageLayer
	for _, l := range h.root.Layers() {
		if l.Depth() == 2 {
			deepest = l
		}
	}
	require.NotNil(t, deepest, "no layer for the closed string")
	require.Len(t, deepest.IncludedRanges(), 1)
	assert.Equal(t, ranges.NewByteRange(18, 27), deepest.IncludedRanges()[0].Bytes)
	h.assertMatchesFreshParse(cfg)
}

func TestLanguageLayer_ParseTimeoutKeepsState(t *testing.T) {
	cfg := goConfig(t)
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)), WithParseTimeout(200*time.Millisecond))
	h.load(strings.Repeat("var a = 1\n", 2000))

	before := h.root.State().Tree()
	require.NotNil(t, before)

	next := strings.Repeat("var b = 2\n", 2000)
	oldEnd, err := ranges.NewLocator(h.text).Point(uint(len(h.text)))
	require.NoError(t, err)
	edit, err := ranges.NewInputEdit(
		ranges.NewByteRange(0, uint(len(h.text))),
		len(next)-len(h.text),
		oldEnd,
		ranges.NewLocator(next).Transformer(),
	)
	require.NoError(t, err)

	// The first read stalls past the timeout.
	content := StringContent(next)
	read := content.Read
	var stall sync.Once
	content.Read = func(offset uint, p ranges.Point) []byte {
		stall.Do(func() { time.Sleep(300 * time.Millisecond) })
		return read(offset, p)
	}

	invalidated, err := h.root.DidChangeContent(context.Background(), edit, content)
	require.NoError(t, err)
	assert.True(t, invalidated.IsEmpty(), "got %s", invalidated)
	assert.Same(t, before, h.root.State().Tree())
	assert.False(t, h.root.State().IsEmpty())
}

func TestLayeredCursor_RegionGrowsWithMatches(t *testing.T) {
	cfg := goConfigNamed(t, "go", map[QueryKind]string{
		Injections: goInjections,
		Highlights: "(var_declaration) @decl\n\"var\" @keyword\n",
	})
	h := newHarness(t, cfg, WithLanguageProvider(providerOf(cfg)))
	h.load(injectedSource)

	cursor, err := h.root.ExecuteQuery(Highlights, ranges.NewSet(ranges.NewByteRange(0, 1)))
	require.NoError(t, err)
	defer cursor.Close()

	var got []highlightSpan
	for _, m := range cursor.Collect() {
		for _, c := range m.Captures {
			got = append(got, highlightSpan{Name: c.Name, Depth: c.Depth, Bytes: c.Range.Bytes})
		}
	}

	// The root declaration covers the string, which pulls the injected
	// layer into the query.
	assert.Contains(t, got, highlightSpan{Name: "decl", Depth: 0, Bytes: ranges.NewByteRange(0, 19)})
	assert.Contains(t, got, highlightSpan{Name: "decl", Depth: 1, Bytes: ranges.NewByteRange(9, 18)})
	assert.Contains(t, got, highlightSpan{Name: "keyword", Depth: 1, Bytes: ranges.NewByteRange(9, 12)})
	assert.True(t, cursor.Region().Equal(ranges.NewSet(ranges.NewByteRange(0, 19))), "got %s", cursor.Region())
}
