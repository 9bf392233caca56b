// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package document

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLayers/services/layers/languages"
	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// The raw string holds JSON at bytes 34..42.
const goWithJSON = "package main\n\nconst configJSON = `{\"a\": 1}`\n"

func newGoDocument(t *testing.T, registry *languages.Registry, opts ...Option) *Document {
	t.Helper()
	cfg, err := registry.Configuration("go")
	require.NoError(t, err)

	opts = append(opts, WithLayerOptions(layer.WithLanguageProvider(registry.Provider())))
	doc, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(doc.Close)
	return doc
}

func builtinRegistry(t *testing.T) *languages.Registry {
	t.Helper()
	r := languages.NewBuiltinRegistry()
	t.Cleanup(r.Close)
	return r
}

func grammarNamed(t *testing.T, name string) languages.Grammar {
	t.Helper()
	for _, g := range languages.Builtin() {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("no builtin grammar %q", name)
	return languages.Grammar{}
}

func TestDocument_ReplaceContentBuildsLayers(t *testing.T) {
	doc := newGoDocument(t, builtinRegistry(t))

	invalidated, err := doc.ReplaceContent(context.Background(), goWithJSON)
	require.NoError(t, err)
	assert.True(t, invalidated.ContainsRange(ranges.NewByteRange(0, uint(len(goWithJSON)))))

	infos := doc.Layers()
	require.Len(t, infos, 2)
	assert.Equal(t, "go", infos[0].Language)
	assert.Equal(t, "json", infos[1].Language)
	assert.Equal(t, 1, infos[1].Depth)
	assert.Equal(t, []ranges.ByteRange{ranges.NewByteRange(34, 42)}, infos[1].Ranges)

	at, ok := doc.LayerAt(ranges.NewByteRange(40, 41))
	require.True(t, ok)
	assert.Equal(t, "json", at.Language)

	at, ok = doc.LayerAt(ranges.NewByteRange(0, 7))
	require.True(t, ok)
	assert.Equal(t, "go", at.Language)
}

func TestDocument_Highlights(t *testing.T) {
	doc := newGoDocument(t, builtinRegistry(t))
	_, err := doc.ReplaceContent(context.Background(), goWithJSON)
	require.NoError(t, err)

	highlights, err := doc.Highlights(ranges.All(), nil)
	require.NoError(t, err)

	var number *layer.NamedRange
	for i, h := range highlights {
		if h.Name == "number" && h.Language == "json" {
			number = &highlights[i]
		}
	}
	require.NotNil(t, number)
	assert.Equal(t, ranges.NewByteRange(40, 41), number.Range.Bytes)
	assert.Equal(t, 1, number.Depth)

	// Depth 0 highlights all precede depth 1 ones.
	seenDeep := false
	for _, h := range highlights {
		if h.Depth == 1 {
			seenDeep = true
		}
		if seenDeep {
			assert.Equal(t, 1, h.Depth)
		}
	}
}

func TestDocument_ApplyChange(t *testing.T) {
	doc := newGoDocument(t, builtinRegistry(t))
	_, err := doc.ReplaceContent(context.Background(), goWithJSON)
	require.NoError(t, err)

	// 1 -> 123 inside the JSON.
	invalidated, err := doc.ApplyChange(context.Background(), ranges.NewByteRange(40, 41), "123")
	require.NoError(t, err)
	assert.True(t, invalidated.ContainsRange(ranges.NewByteRange(40, 43)))

	infos := doc.Layers()
	require.Len(t, infos, 2)
	assert.Equal(t, []ranges.ByteRange{ranges.NewByteRange(34, 44)}, infos[1].Ranges)
	assert.Contains(t, doc.Text(), `{"a": 123}`)

	_, err = doc.ApplyChange(context.Background(), ranges.NewByteRange(40, 4000), "")
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestDocument_WillAndDidChangeContent(t *testing.T) {
	doc := newGoDocument(t, builtinRegistry(t))
	_, err := doc.ReplaceContent(context.Background(), goWithJSON)
	require.NoError(t, err)

	// Rename the constant so it no longer announces JSON.
	region := ranges.NewByteRange(20, 30) // "configJSON"
	require.NoError(t, doc.WillChangeContent(region))

	text := doc.Text()
	next := text[:20] + "config" + text[30:]
	invalidated, err := doc.DidChangeContent(context.Background(), region, -4, next)
	require.NoError(t, err)

	assert.Len(t, doc.Layers(), 1)
	// The retired JSON layer's old bytes, now at 30..38, are invalidated.
	assert.True(t, invalidated.ContainsRange(ranges.NewByteRange(30, 38)), "got %s", invalidated)
	assert.Equal(t, next, doc.Text())

	assert.ErrorIs(t, doc.WillChangeContent(ranges.NewByteRange(0, 5000)), ErrOutOfBounds)
}

func TestDocument_LanguageConfigurationChanged(t *testing.T) {
	registry := languages.NewRegistry()
	t.Cleanup(registry.Close)
	registry.Register(grammarNamed(t, "go"))

	var mu sync.Mutex
	var notified []ranges.Set
	doc := newGoDocument(t, registry, WithInvalidationHandler(func(_ uuid.UUID, s ranges.Set) {
		mu.Lock()
		defer mu.Unlock()
		notified = append(notified, s)
	}))

	_, err := doc.ReplaceContent(context.Background(), goWithJSON)
	require.NoError(t, err)
	require.Len(t, doc.Layers(), 1)
	assert.Equal(t, []string{"json"}, doc.Layers()[0].Missing)

	registry.Register(grammarNamed(t, "json"))
	invalidated, err := doc.LanguageConfigurationChanged(context.Background(), "json")
	require.NoError(t, err)

	assert.True(t, invalidated.Equal(ranges.NewSet(ranges.NewByteRange(34, 42))), "got %s", invalidated)
	require.Len(t, doc.Layers(), 2)
	assert.Empty(t, doc.Layers()[0].Missing)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notified, 2)
	assert.True(t, notified[1].Equal(invalidated))
}

func TestDocument_SnapshotQueryWhileEditing(t *testing.T) {
	doc := newGoDocument(t, builtinRegistry(t))
	_, err := doc.ReplaceContent(context.Background(), goWithJSON)
	require.NoError(t, err)

	cursor, err := doc.ExecuteQuery(layer.Highlights, ranges.All())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var count int
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cursor.Close()
		for range cursor.All() {
			count++
		}
	}()

	for i := 0; i < 5; i++ {
		_, err := doc.ApplyChange(context.Background(), ranges.NewByteRange(0, 0), "// edit\n")
		require.NoError(t, err)
	}
	wg.Wait()

	assert.Positive(t, count)
}

func TestDocument_Closed(t *testing.T) {
	doc := newGoDocument(t, builtinRegistry(t))
	doc.Close()

	_, err := doc.ReplaceContent(context.Background(), "package main\n")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = doc.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = doc.Highlights(ranges.All(), nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, doc.Layers())
	assert.NotEqual(t, uuid.Nil, doc.ID())
}
