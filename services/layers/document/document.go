// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package document wraps a layer tree and its text behind a single-writer
// API for editors and tools.
package document

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

var tracer = otel.Tracer("aleutian.layers.document")

// InvalidationHandler receives the bytes invalidated by each mutation.
// It runs with the document locked and must not call back into it.
type InvalidationHandler func(id uuid.UUID, invalidated ranges.Set)

type options struct {
	layerOpts    []layer.Option
	logger       *slog.Logger
	onInvalidate InvalidationHandler
}

// Option configures a Document.
type Option func(*options)

// WithLayerOptions passes options to the root layer.
func WithLayerOptions(opts ...layer.Option) Option {
	return func(o *options) {
		o.layerOpts = append(o.layerOpts, opts...)
	}
}

// WithLogger sets the document logger. It is also handed to the layers.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithInvalidationHandler registers fn to observe every invalidation.
func WithInvalidationHandler(fn InvalidationHandler) Option {
	return func(o *options) {
		o.onInvalidate = fn
	}
}

// pendingChange is recorded by WillChangeContent.
type pendingChange struct {
	region      ranges.ByteRange
	oldEndPoint ranges.Point
}

// Document is a text buffer with a layered parse tree.
//
// Description:
//
//	Every mutation takes the document lock, edits the text, and reparses
//	the layer tree before returning the invalidated bytes. Queries run on
//	snapshots taken under the lock, so they never observe a torn tree and
//	may be consumed on other goroutines while edits continue.
//
// Thread Safety:
//
//	Safe for concurrent use. Mutations are serialized.
type Document struct {
	mu      sync.Mutex
	id      uuid.UUID
	root    *layer.LanguageLayer
	text    string
	locator *ranges.Locator
	pending *pendingChange
	closed  bool

	logger       *slog.Logger
	onInvalidate InvalidationHandler
}

// New creates an empty document whose root language is root.
//
// Inputs:
//
//	root - The document's language configuration.
//	opts - Document and layer options.
//
// Outputs:
//
//	*Document - The document. Close it when done.
//	error     - An error creating the root layer.
//
// Example:
//
//	cfg, _ := registry.Configuration("html")
//	doc, err := document.New(cfg, document.WithLayerOptions(
//	    layer.WithLanguageProvider(registry.Provider()),
//	))
func New(root *layer.LanguageConfiguration, opts ...Option) (*Document, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.New()
	logger := o.logger.With(slog.String("document_id", id.String()))
	layerOpts := append([]layer.Option{layer.WithLogger(logger)}, o.layerOpts...)

	rootLayer, err := layer.New(root, layerOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating root layer: %w", err)
	}

	return &Document{
		id:           id,
		root:         rootLayer,
		locator:      ranges.NewLocator(""),
		logger:       logger,
		onInvalidate: o.onInvalidate,
	}, nil
}

// ID returns the document's identity, used in logs and spans.
func (d *Document) ID() uuid.UUID {
	return d.id
}

// Language returns the root language name.
func (d *Document) Language() string {
	return d.root.Name()
}

// Text returns the current text.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.text
}

// ReplaceContent replaces the whole text.
//
// Outputs:
//
//	ranges.Set - The invalidated bytes, in new-text offsets.
//	error      - ErrClosed, or a context error.
func (d *Document) ReplaceContent(ctx context.Context, text string) (ranges.Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	whole := ranges.NewByteRange(0, d.locator.Len())
	return d.change(ctx, "ReplaceContent", whole, len(text)-len(d.text), text, nil)
}

// WillChangeContent records region before the caller mutates its text.
//
// The old end point of region is captured now, so the following
// DidChangeContent can describe the edit even if the caller computes the
// new text from a buffer that has already changed.
func (d *Document) WillChangeContent(region ranges.ByteRange) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	end, err := d.locator.Point(region.End)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrOutOfBounds, err)
	}
	d.pending = &pendingChange{region: region, oldEndPoint: end}
	return nil
}

// DidChangeContent applies a change to region that altered its length by
// delta and produced text.
//
// Description:
//
//	region is in old-text offsets. If WillChangeContent recorded the same
//	region, its old end point is used; otherwise the point is computed
//	from the text the document still holds.
//
// Outputs:
//
//	ranges.Set - The invalidated bytes, in new-text offsets.
//	error      - ErrClosed, ErrOutOfBounds, ranges.ErrInvalidEdit, or a
//	             context error.
func (d *Document) DidChangeContent(ctx context.Context, region ranges.ByteRange, delta int, text string) (ranges.Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var oldEnd *ranges.Point
	if d.pending != nil && d.pending.region == region {
		oldEnd = &d.pending.oldEndPoint
	}
	d.pending = nil
	return d.change(ctx, "DidChangeContent", region, delta, text, oldEnd)
}

// ApplyChange replaces region with replacement.
func (d *Document) ApplyChange(ctx context.Context, region ranges.ByteRange, replacement string) (ranges.Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if region.End > d.locator.Len() || region.Start > region.End {
		return ranges.Set{}, fmt.Errorf("%w: %s of %d bytes", ErrOutOfBounds, region, d.locator.Len())
	}
	text := d.text[:region.Start] + replacement + d.text[region.End:]
	return d.change(ctx, "ApplyChange", region, len(replacement)-int(region.Len()), text, nil)
}

// change builds the edit and runs it through the layer tree. d.mu is held.
func (d *Document) change(ctx context.Context, op string, region ranges.ByteRange, delta int, text string, oldEnd *ranges.Point) (ranges.Set, error) {
	if d.closed {
		return ranges.Set{}, ErrClosed
	}

	ctx, span := d.startSpan(ctx, op)
	defer span.End()

	var oldEndPoint ranges.Point
	if oldEnd != nil {
		oldEndPoint = *oldEnd
	} else {
		p, err := d.locator.Point(region.End)
		if err != nil {
			return ranges.Set{}, fmt.Errorf("%w: %w", ErrOutOfBounds, err)
		}
		oldEndPoint = p
	}

	locator := ranges.NewLocator(text)
	edit, err := ranges.NewInputEdit(region, delta, oldEndPoint, locator.Transformer())
	if err != nil {
		return ranges.Set{}, err
	}
	if edit.NewEndByte > locator.Len() {
		return ranges.Set{}, fmt.Errorf("%w: edit ends at %d, text has %d bytes", ErrOutOfBounds, edit.NewEndByte, locator.Len())
	}

	d.text = text
	d.locator = locator

	invalidated, err := d.root.DidChangeContent(ctx, edit, layer.StringContent(text))
	span.SetAttributes(attribute.Int64("invalidated_bytes", int64(invalidated.Count())))
	if err != nil {
		span.RecordError(err)
		d.logger.Warn("document reparse interrupted",
			slog.String("op", op),
			slog.String("error", err.Error()))
	}
	d.notify(invalidated)
	return invalidated, err
}

// ExecuteQuery runs the kind query over region on a snapshot.
//
// The returned cursor owns the snapshot; closing the cursor releases it.
// It may be consumed on any goroutine.
func (d *Document) ExecuteQuery(kind layer.QueryKind, region ranges.Set) (*layer.LayeredCursor, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	return snap.ExecuteQueryOwned(kind, region)
}

// Highlights returns the highlights within region.
//
// text supplies predicate text; nil uses the document's text at the time
// of the call.
func (d *Document) Highlights(region ranges.Set, text predicate.TextProvider) ([]layer.NamedRange, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	snap := d.root.SnapshotIn(region)
	if text == nil {
		text = layer.StringTextProvider(d.text)
	}
	d.mu.Unlock()

	defer snap.Close()
	return snap.Highlights(region, text)
}

// LanguageConfigurationChanged tells the tree that name's configuration
// appeared or changed, so pending injections of it can be built.
func (d *Document) LanguageConfigurationChanged(ctx context.Context, name string) (ranges.Set, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ranges.Set{}, ErrClosed
	}
	ctx, span := d.startSpan(ctx, "LanguageConfigurationChanged")
	defer span.End()
	span.SetAttributes(attribute.String("layer.language", name))

	invalidated, err := d.root.LanguageConfigurationChanged(ctx, name, layer.StringContent(d.text))
	if err != nil {
		span.RecordError(err)
	}
	d.notify(invalidated)
	return invalidated, err
}

// Snapshot copies the layer tree. The caller must Close it.
func (d *Document) Snapshot() (*layer.TreeSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	return d.root.Snapshot(), nil
}

// Layers describes every layer in pre-order.
func (d *Document) Layers() []layer.LayerInfo {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	all := d.root.Layers()
	out := make([]layer.LayerInfo, len(all))
	for i, l := range all {
		out[i] = l.Info()
	}
	return out
}

// LayerAt describes the deepest layer covering r.
func (d *Document) LayerAt(r ranges.ByteRange) (layer.LayerInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return layer.LayerInfo{}, false
	}
	l := d.root.LayerFor(r)
	if l == nil {
		return layer.LayerInfo{}, false
	}
	return l.Info(), true
}

// Close releases the layer tree. Open snapshots stay valid.
func (d *Document) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	d.root.Close()
}

func (d *Document) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "document."+op,
		trace.WithAttributes(
			attribute.String("document.id", d.id.String()),
			attribute.String("document.language", d.root.Name()),
		),
	)
}

func (d *Document) notify(invalidated ranges.Set) {
	if d.onInvalidate != nil && !invalidated.IsEmpty() {
		d.onInvalidate(d.id, invalidated)
	}
}
