// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layer maintains a tree of incrementally parsed language layers.
//
// A root layer parses the whole document in its own language. Its
// injections query locates regions written in other languages; each such
// language gets one child layer restricted to those regions, which may in
// turn host further injections up to a configured depth. Edits are shifted
// through every layer and then reparsed top-down, and every parse reports
// the byte ranges whose syntax may have changed.
//
// Queries run across all layers at once through a LayeredCursor, and
// interpreters turn the resulting matches into highlights, injections and
// local-scope information.
//
// Thread Safety:
//
//	A layer tree has a single writer. Mutating operations and live queries
//	must not run concurrently; use Snapshot to hand a consistent copy to
//	other goroutines.
package layer

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/AleutianAI/AleutianLayers/services/layers/engine"
	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// DefaultMaxDepth is the deepest injection nesting built when no
// WithMaxDepth option is given. The root layer has depth 0.
const DefaultMaxDepth = 4

// settings are shared by every layer of one tree.
type settings struct {
	provider     LanguageProvider
	maxDepth     int
	parseTimeout time.Duration
	matchLimit   uint
	logger       *slog.Logger
}

// Option configures a layer tree.
type Option func(*settings)

// WithLanguageProvider sets the resolver for injected language names.
// Without one, every injected language stays unresolved.
func WithLanguageProvider(p LanguageProvider) Option {
	return func(s *settings) {
		s.provider = p
	}
}

// WithMaxDepth bounds injection nesting. Negative values are treated as 0.
func WithMaxDepth(depth int) Option {
	return func(s *settings) {
		s.maxDepth = max(depth, 0)
	}
}

// WithParseTimeout bounds each layer's parse. Zero disables the bound.
func WithParseTimeout(d time.Duration) Option {
	return func(s *settings) {
		s.parseTimeout = d
	}
}

// WithMatchLimit caps in-progress matches per query cursor.
func WithMatchLimit(limit uint) Option {
	return func(s *settings) {
		s.matchLimit = limit
	}
}

// WithLogger sets the logger for degraded-mode warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// LanguageLayer is one node of the layer tree.
//
// Description:
//
//	A layer owns its parser, its most recent parse state, the ranges it is
//	restricted to, one child per injected language, and the ranges of
//	injected languages the provider could not resolve. The root layer is
//	unrestricted and covers the whole document.
//
// Thread Safety:
//
//	NOT safe for concurrent use. See the package documentation.
type LanguageLayer struct {
	config   *LanguageConfiguration
	settings *settings
	parser   *engine.Parser
	depth    int

	// restricted is false only for the root layer.
	restricted bool
	included   []ranges.Range

	state ParseState

	children map[string]*LanguageLayer
	order    []string
	missing  map[string][]ranges.Range

	closed bool
}

// New creates an unparsed root layer for config.
//
// Description:
//
//	The root covers the whole document. Feed it text with DidChangeContent
//	(an insertion at offset 0 for the initial load).
//
// Inputs:
//
//	config - The root language. Required.
//	opts   - Tree-wide options.
//
// Outputs:
//
//	*LanguageLayer - The root layer. Close it when done.
//	error          - ErrNilConfiguration, or an engine error for a grammar
//	                 the runtime cannot load.
//
// Example:
//
//	root, err := layer.New(goConfig, layer.WithLanguageProvider(registry.Provider()))
//	if err != nil {
//	    return err
//	}
//	defer root.Close()
func New(config *LanguageConfiguration, opts ...Option) (*LanguageLayer, error) {
	s := &settings{
		maxDepth: DefaultMaxDepth,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return newLayer(config, s, 0, nil)
}

func newLayer(config *LanguageConfiguration, s *settings, depth int, included []ranges.Range) (*LanguageLayer, error) {
	if config == nil || config.Language == nil {
		return nil, ErrNilConfiguration
	}

	parser, err := engine.NewParser(config.Language, engine.WithTimeout(s.parseTimeout))
	if err != nil {
		return nil, err
	}

	return &LanguageLayer{
		config:     config,
		settings:   s,
		parser:     parser,
		depth:      depth,
		restricted: depth > 0,
		included:   included,
		children:   make(map[string]*LanguageLayer),
		missing:    make(map[string][]ranges.Range),
	}, nil
}

// Name returns the layer's language name.
func (l *LanguageLayer) Name() string {
	return l.config.Name
}

// Config returns the layer's language configuration.
func (l *LanguageLayer) Config() *LanguageConfiguration {
	return l.config
}

// Depth returns the nesting depth. The root has depth 0.
func (l *LanguageLayer) Depth() int {
	return l.depth
}

// State returns the current parse state. The layer keeps ownership.
func (l *LanguageLayer) State() ParseState {
	return l.state
}

// IncludedRanges returns a copy of the ranges the layer is restricted to.
// It is empty for the root.
func (l *LanguageLayer) IncludedRanges() []ranges.Range {
	return slices.Clone(l.included)
}

// RangeSet returns the byte set the layer covers.
func (l *LanguageLayer) RangeSet() ranges.Set {
	if !l.restricted {
		return ranges.All()
	}
	return ranges.SetOf(l.included)
}

// Children returns the child layers in creation order.
func (l *LanguageLayer) Children() []*LanguageLayer {
	out := make([]*LanguageLayer, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.children[name])
	}
	return out
}

// Child returns the child layer for an injected language.
func (l *LanguageLayer) Child(name string) (*LanguageLayer, bool) {
	c, ok := l.children[NormalizeName(name)]
	return c, ok
}

// Missing returns the ranges of injected languages awaiting a
// configuration, keyed by language name.
func (l *LanguageLayer) Missing() map[string][]ranges.Range {
	out := make(map[string][]ranges.Range, len(l.missing))
	for name, rs := range l.missing {
		out[name] = slices.Clone(rs)
	}
	return out
}

// Layers returns this layer and all descendants in pre-order.
func (l *LanguageLayer) Layers() []*LanguageLayer {
	out := []*LanguageLayer{l}
	for _, child := range l.Children() {
		out = append(out, child.Layers()...)
	}
	return out
}

// LayerFor returns the deepest layer whose range set contains r, or nil if
// this layer does not contain it.
func (l *LanguageLayer) LayerFor(r ranges.ByteRange) *LanguageLayer {
	if l.restricted && !l.RangeSet().ContainsRange(r) {
		return nil
	}
	for _, child := range l.Children() {
		if found := child.LayerFor(r); found != nil {
			return found
		}
	}
	return l
}

// ApplyEdit shifts the layer, its pending ranges, and every descendant for
// edit. Nothing is reparsed.
func (l *LanguageLayer) ApplyEdit(edit ranges.InputEdit) {
	if l.closed {
		return
	}

	l.state.ApplyEdit(edit)
	if l.restricted {
		l.included = ranges.ShiftAll(l.included, edit)
	}

	for name, rs := range l.missing {
		shifted := ranges.ShiftAll(rs, edit)
		if len(shifted) == 0 {
			delete(l.missing, name)
			continue
		}
		l.missing[name] = shifted
	}

	for _, child := range l.Children() {
		child.ApplyEdit(edit)
	}
}

// DidChangeContent applies edit to the tree and reparses.
//
// Description:
//
//	content must already hold the post-edit text. The returned set covers
//	every byte whose syntax may differ from before the edit, including the
//	edit's own span.
//
// Outputs:
//
//	ranges.Set - The invalidated bytes.
//	error      - A context error if ctx ended mid-way. Layers already
//	             reparsed keep their new state; the rest keep their edited
//	             previous state.
func (l *LanguageLayer) DidChangeContent(ctx context.Context, edit ranges.InputEdit, content Content) (ranges.Set, error) {
	l.ApplyEdit(edit)
	return l.Parse(ctx, content, edit.AffectedSet())
}

// Parse reparses the layer and reconciles its children.
//
// Description:
//
//	The layer reparses from its edited previous tree. The structural diff,
//	clipped to the layer's range set, is merged with affected to form the
//	region whose injections are re-examined. Children whose ranges change,
//	or whose text was touched by affected, are reparsed after this layer;
//	children outside the region are left alone. Injected languages with
//	no configuration are recorded as missing. Children that lose every
//	range are retired.
//
//	If the engine produces no tree (parse failure or parse timeout) the
//	previous state is kept, a warning is logged and nothing is
//	invalidated for this layer.
//
// Inputs:
//
//	ctx      - Cancels parsing. Cancellation returns ctx's error.
//	content  - The current document text.
//	affected - Bytes the caller knows were edited.
//
// Outputs:
//
//	ranges.Set - The invalidated bytes of this layer and its descendants.
//	error      - ErrClosed, or a context error.
func (l *LanguageLayer) Parse(ctx context.Context, content Content, affected ranges.Set) (ranges.Set, error) {
	if l.closed {
		return ranges.Set{}, ErrClosed
	}

	ctx, span := startParseSpan(ctx, l.Name(), l.depth)
	defer span.End()
	start := time.Now()

	if l.restricted {
		if len(l.included) == 0 {
			return ranges.Set{}, nil
		}
		if err := l.parser.SetIncludedRanges(l.included); err != nil {
			l.settings.logger.Warn("layer ranges rejected, keeping previous state",
				slog.String("language", l.Name()),
				slog.Int("depth", l.depth),
				slog.String("error", err.Error()))
			recordParseMetrics(ctx, l.Name(), time.Since(start), 0, false)
			return ranges.Set{}, nil
		}
	}

	tree, err := l.parser.Parse(ctx, content.Read, l.state.Tree())
	if err != nil {
		span.RecordError(err)
		recordParseMetrics(ctx, l.Name(), time.Since(start), 0, false)
		if ctx.Err() != nil {
			return ranges.Set{}, err
		}
		l.settings.logger.Warn("layer parse produced no tree, keeping previous state",
			slog.String("language", l.Name()),
			slog.Int("depth", l.depth),
			slog.String("error", err.Error()))
		return ranges.Set{}, nil
	}

	next := NewParseState(tree)
	changed := ranges.SetOf(Diff(l.state, next)).Intersection(l.RangeSet())
	l.state.Close()
	l.state = next

	region := changed.Union(affected.Intersection(l.RangeSet()))
	sub, err := l.resolveSublayers(ctx, content, region, affected)
	invalidated := region.Union(sub)

	recordParseMetrics(ctx, l.Name(), time.Since(start), invalidated.Count(), true)
	return invalidated, err
}

// resolveSublayers re-examines injections inside region and brings the
// children in line with them.
//
// The scan window is region and the edit seam, each grown by one byte, so
// injection content ending or starting exactly at an edit is seen. Child
// ranges that no longer lie inside this layer are dropped and the part of
// them still inside is rescanned. A child left with no ranges is retired
// even when nothing else needs scanning.
func (l *LanguageLayer) resolveSublayers(ctx context.Context, content Content, region, affected ranges.Set) (ranges.Set, error) {
	invalidated := ranges.Set{}
	bounds := l.RangeSet()
	seam := widen(affected)
	scan := widen(region).Union(seam).Intersection(bounds)

	stale := false
	for _, child := range l.Children() {
		if len(child.included) == 0 {
			stale = true
		}
		for _, r := range child.included {
			if !bounds.ContainsRange(r.Bytes) {
				stale = true
				scan = scan.Union(bounds.Intersection(ranges.NewSet(r.Bytes)))
			}
		}
	}
	if scan.IsEmpty() && !stale {
		return invalidated, nil
	}

	found, scanned := newInjectionGroups(), scan
	if !scan.IsEmpty() {
		found, scanned = l.scanInjections(content, scan)
	}

	for _, name := range slices.Clone(l.order) {
		child := l.children[name]
		previous := child.included
		kept := rangesWithin(rangesOutside(previous, scanned), bounds)
		next := mergeRanges(kept, found.take(name))

		if len(next) == 0 {
			invalidated = invalidated.Union(ranges.SetOf(previous))
			l.retire(ctx, name)
			continue
		}

		childAffected := affected
		if !slices.Equal(previous, next) {
			before, after := ranges.SetOf(previous), ranges.SetOf(next)
			moved := before.Union(after).Subtract(before.Intersection(after))
			invalidated = invalidated.Union(moved)
			childAffected = childAffected.Union(moved)
			child.included = next
		} else if !child.RangeSet().IntersectsSet(seam) && !child.state.IsEmpty() && !child.outgrown() {
			continue
		}

		sub, err := child.Parse(ctx, content, childAffected)
		invalidated = invalidated.Union(sub)
		if err != nil {
			return invalidated, err
		}
	}

	for _, name := range sortedKeys(l.missing) {
		kept := rangesWithin(rangesOutside(l.missing[name], scanned), bounds)
		if len(kept) == 0 {
			delete(l.missing, name)
			continue
		}
		l.missing[name] = kept
	}

	for _, name := range found.order {
		rs := found.take(name)
		if len(rs) == 0 {
			continue
		}
		sub, err := l.attach(ctx, content, name, rs)
		invalidated = invalidated.Union(sub)
		if err != nil {
			return invalidated, err
		}
	}

	return invalidated, nil
}

// attach creates a child for name over rs, or records rs as missing when
// the language cannot be resolved.
func (l *LanguageLayer) attach(ctx context.Context, content Content, name string, rs []ranges.Range) (ranges.Set, error) {
	if l.depth+1 > l.settings.maxDepth {
		l.settings.logger.Debug("injection beyond maximum depth ignored",
			slog.String("language", name),
			slog.Int("depth", l.depth+1))
		return ranges.Set{}, nil
	}

	var cfg *LanguageConfiguration
	ok := false
	if l.settings.provider != nil {
		cfg, ok = l.settings.provider(name)
	}
	if !ok {
		l.missing[name] = mergeRanges(l.missing[name], rs)
		l.settings.logger.Debug("injected language unresolved",
			slog.String("language", name),
			slog.String("parent", l.Name()))
		return ranges.Set{}, nil
	}

	if pending, waiting := l.missing[name]; waiting {
		rs = mergeRanges(pending, rs)
		delete(l.missing, name)
	}

	child, err := newLayer(cfg, l.settings, l.depth+1, rs)
	if err != nil {
		l.settings.logger.Warn("cannot create injected layer",
			slog.String("language", name),
			slog.String("error", err.Error()))
		return ranges.Set{}, nil
	}

	l.children[name] = child
	l.order = append(l.order, name)
	recordLayerCreated(ctx, name)

	created := ranges.SetOf(rs)
	sub, err := child.Parse(ctx, content, created)
	return created.Union(sub), err
}

// retire closes and removes the child for name.
func (l *LanguageLayer) retire(ctx context.Context, name string) {
	child, ok := l.children[name]
	if !ok {
		return
	}
	child.Close()
	delete(l.children, name)
	l.order = slices.DeleteFunc(l.order, func(n string) bool { return n == name })
	recordLayerRetired(ctx, name)
}

// scanInjections runs the injections query over region and groups the
// resulting content ranges by language. The returned set is region grown
// by the span of every match examined.
func (l *LanguageLayer) scanInjections(content Content, region ranges.Set) (*injectionGroups, ranges.Set) {
	groups := newInjectionGroups()

	query, ok := l.config.Query(Injections)
	if !ok || l.state.IsEmpty() {
		return groups, region
	}

	target := queryTarget{
		language: l.Name(),
		depth:    l.depth,
		tree:     l.state.Tree(),
		query:    query,
		rangeSet: l.RangeSet(),
	}
	cursor := newLayeredCursor(Injections, []queryTarget{target}, region, l.settings.matchLimit, nil)
	defer cursor.Close()

	pctx := predicate.NewContext(content.Text, nil)
	var matches []QueryMatch
	for m := range cursor.All() {
		if m.Allowed(pctx) {
			matches = append(matches, m)
		}
	}

	for _, injection := range InjectionsOf(matches, pctx.TextProvider()) {
		for _, piece := range l.clip(injection.Range) {
			groups.add(injection.Name, piece)
		}
	}
	return groups, cursor.Region()
}

// LanguageConfigurationChanged reacts to a configuration becoming available
// or being replaced.
//
// Description:
//
//	If name is this layer's language, the layer reloads its configuration
//	from the provider, drops its children and reparses from scratch.
//	Otherwise every child is notified, and then ranges recorded as missing
//	for name become a new child layer.
//
// Outputs:
//
//	ranges.Set - The invalidated bytes.
//	error      - A context error if ctx ended mid-way.
func (l *LanguageLayer) LanguageConfigurationChanged(ctx context.Context, name string, content Content) (ranges.Set, error) {
	if l.closed {
		return ranges.Set{}, ErrClosed
	}
	name = NormalizeName(name)

	if l.Name() == name {
		return l.reload(ctx, content)
	}

	invalidated := ranges.Set{}
	for _, child := range l.Children() {
		sub, err := child.LanguageConfigurationChanged(ctx, name, content)
		invalidated = invalidated.Union(sub)
		if err != nil {
			return invalidated, err
		}
	}

	rs, waiting := l.missing[name]
	if !waiting {
		return invalidated, nil
	}
	sub, err := l.attach(ctx, content, name, rs)
	return invalidated.Union(sub), err
}

// reload swaps in the provider's current configuration and reparses.
func (l *LanguageLayer) reload(ctx context.Context, content Content) (ranges.Set, error) {
	if l.settings.provider != nil {
		if cfg, ok := l.settings.provider(l.Name()); ok && cfg != l.config {
			parser, err := engine.NewParser(cfg.Language, engine.WithTimeout(l.settings.parseTimeout))
			if err != nil {
				return ranges.Set{}, err
			}
			l.parser.Close()
			l.parser = parser
			l.config = cfg
		}
	}

	invalidated := l.RangeSet()
	if root, ok := l.state.RootRange(); ok && !l.restricted {
		invalidated = ranges.NewSet(root.Bytes)
	}

	for _, name := range slices.Clone(l.order) {
		l.retire(ctx, name)
	}
	clear(l.missing)
	l.state.Close()
	l.state = ParseState{}
	l.parser.Reset()

	sub, err := l.Parse(ctx, content, ranges.Set{})
	return invalidated.Union(sub), err
}

// Close releases the layer and every descendant.
func (l *LanguageLayer) Close() {
	if l.closed {
		return
	}
	l.closed = true
	for _, child := range l.Children() {
		child.Close()
	}
	clear(l.children)
	l.order = nil
	l.state.Close()
	l.state = ParseState{}
	l.parser.Close()
}

// injectionGroups collects injection ranges per language in order of first
// appearance.
type injectionGroups struct {
	order  []string
	ranges map[string][]ranges.Range
}

func newInjectionGroups() *injectionGroups {
	return &injectionGroups{ranges: make(map[string][]ranges.Range)}
}

func (g *injectionGroups) add(name string, r ranges.Range) {
	if _, seen := g.ranges[name]; !seen {
		g.order = append(g.order, name)
	}
	g.ranges[name] = append(g.ranges[name], r)
}

// take returns and removes the ranges for name.
func (g *injectionGroups) take(name string) []ranges.Range {
	rs := g.ranges[name]
	g.ranges[name] = nil
	return rs
}

// mergeRanges combines a and b into ranges usable as included ranges:
// sorted, non-empty and non-overlapping. Of two overlapping ranges the one
// starting first wins.
func mergeRanges(a, b []ranges.Range) []ranges.Range {
	all := make([]ranges.Range, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	slices.SortStableFunc(all, func(x, y ranges.Range) int {
		return cmp.Or(
			cmp.Compare(x.Bytes.Start, y.Bytes.Start),
			cmp.Compare(y.Bytes.End, x.Bytes.End),
		)
	})

	out := all[:0]
	for _, r := range all {
		if r.Bytes.IsEmpty() {
			continue
		}
		if n := len(out); n > 0 && r.Bytes.Start < out[n-1].Bytes.End {
			continue
		}
		out = append(out, r)
	}
	return slices.Clip(out)
}

// rangesOutside keeps the ranges that do not touch set.
func rangesOutside(rs []ranges.Range, set ranges.Set) []ranges.Range {
	var out []ranges.Range
	for _, r := range rs {
		if !set.Intersects(r.Bytes) {
			out = append(out, r)
		}
	}
	return out
}

// clip cuts r down to the parts inside the layer's included ranges. Content
// nodes of a restricted layer may span the gaps between its ranges.
func (l *LanguageLayer) clip(r ranges.Range) []ranges.Range {
	if !l.restricted {
		return []ranges.Range{r}
	}
	var out []ranges.Range
	for _, in := range l.included {
		if max(r.Bytes.Start, in.Bytes.Start) >= min(r.Bytes.End, in.Bytes.End) {
			continue
		}
		piece := r
		if in.Bytes.Start > r.Bytes.Start {
			piece.Bytes.Start, piece.StartPoint = in.Bytes.Start, in.StartPoint
		}
		if in.Bytes.End < r.Bytes.End {
			piece.Bytes.End, piece.EndPoint = in.Bytes.End, in.EndPoint
		}
		out = append(out, piece)
	}
	return out
}

// rangesWithin keeps the ranges that lie entirely inside set.
func rangesWithin(rs []ranges.Range, set ranges.Set) []ranges.Range {
	var out []ranges.Range
	for _, r := range rs {
		if set.ContainsRange(r.Bytes) {
			out = append(out, r)
		}
	}
	return out
}

// widen grows every range of s by one byte on each side.
func widen(s ranges.Set) ranges.Set {
	rs := s.Ranges()
	out := make([]ranges.ByteRange, 0, len(rs))
	for _, r := range rs {
		if r.Start > 0 {
			r.Start--
		}
		if r.End < ranges.MaxOffset {
			r.End++
		}
		out = append(out, r)
	}
	return ranges.NewSet(out...)
}

// outgrown reports whether some descendant has no ranges left or holds
// ranges outside its parent, which only a reparse of the parent repairs.
func (l *LanguageLayer) outgrown() bool {
	bounds := l.RangeSet()
	for _, child := range l.Children() {
		if len(child.included) == 0 || len(rangesWithin(child.included, bounds)) != len(child.included) {
			return true
		}
		if child.outgrown() {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
