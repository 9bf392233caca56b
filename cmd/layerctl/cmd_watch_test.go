// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// newTestSession opens path in a watch session whose query overrides live
// in queryDir.
func newTestSession(t *testing.T, path, queryDir string) (*watchSession, *bytes.Buffer) {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "layers.yaml")
	cfg := "logging:\n  level: error\nwatch:\n  debounce: 10ms\n  rate_per_second: 100\n  burst: 5\n"
	if queryDir != "" {
		cfg += "languages:\n  query_dir: " + queryDir + "\n"
	}
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	a := &app{}
	require.NoError(t, a.setup(cmd, &globalFlags{configPath: cfgPath, output: "machine"}))
	t.Cleanup(func() { _ = a.teardown(context.Background()) })

	doc, err := a.openDocument(context.Background(), path, "")
	require.NoError(t, err)
	t.Cleanup(doc.Close)

	return &watchSession{
		app:     a,
		doc:     doc,
		path:    path,
		printer: a.printer,
		logger:  a.logger.Slog(),
	}, &out
}

func TestWatchSession_SyncFile(t *testing.T) {
	path := writeSample(t)
	s, out := newTestSession(t, path, "")

	// Unchanged file is a no-op.
	require.NoError(t, s.syncFile(context.Background()))
	assert.Empty(t, out.String())

	edited := strings.Replace(sampleGo, `{"a": 1}`, `{"a": [1, 2]}`, 1)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o644))

	require.NoError(t, s.syncFile(context.Background()))
	assert.Equal(t, edited, s.doc.Text())
	assert.Contains(t, out.String(), "change\t")
	assert.Contains(t, out.String(), "invalidated=")
	assert.Contains(t, out.String(), "json\t1\t")
}

func TestWatchSession_SyncFileMissing(t *testing.T) {
	path := writeSample(t)
	s, _ := newTestSession(t, path, "")

	require.NoError(t, os.Remove(path))
	require.ErrorIs(t, s.syncFile(context.Background()), os.ErrNotExist)
	assert.Equal(t, sampleGo, s.doc.Text())
}

func TestWatchSession_ReloadLanguage(t *testing.T) {
	queryDir := t.TempDir()
	jsonDir := filepath.Join(queryDir, "json")
	require.NoError(t, os.MkdirAll(jsonDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(jsonDir, "highlights.scm"), []byte("(number) @number\n"), 0o644))

	path := writeSample(t)
	s, out := newTestSession(t, path, queryDir)

	require.NoError(t, os.WriteFile(filepath.Join(jsonDir, "highlights.scm"), []byte("(string) @string\n"), 0o644))
	s.reloadLanguage(context.Background(), "json")
	assert.Contains(t, out.String(), "reload\tjson\tinvalidated=")

	out.Reset()
	require.NoError(t, os.WriteFile(filepath.Join(jsonDir, "highlights.scm"), []byte("(string @broken\n"), 0o644))
	s.reloadLanguage(context.Background(), "json")
	assert.Contains(t, out.String(), "reload json:")
	assert.NotContains(t, out.String(), "reload\tjson")

	// The previous configuration still serves highlights.
	hl, err := s.doc.Highlights(ranges.All(), nil)
	require.NoError(t, err)
	var jsonNames []string
	for _, h := range hl {
		if h.Language == "json" {
			jsonNames = append(jsonNames, h.Name)
		}
	}
	assert.Contains(t, jsonNames, "string")
}

func TestWatchSession_Run(t *testing.T) {
	path := writeSample(t)
	s, _ := newTestSession(t, path, "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.run(ctx) }()

	edited := strings.Replace(sampleGo, "1}", "3}", 1)
	assert.Eventually(t, func() bool {
		// Rewrite until the watcher is up and has seen a change.
		_ = os.WriteFile(path, []byte(edited), 0o644)
		return s.doc.Text() == edited
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop")
	}
}

func TestLanguageForQueryFile(t *testing.T) {
	dir := "q"
	tests := []struct {
		path string
		lang string
		ok   bool
	}{
		{filepath.Join(dir, "json", "highlights.scm"), "json", true},
		{filepath.Join(dir, "go", "tags.scm"), "go", true},
		{filepath.Join(dir, "go", "notes.txt"), "", false},
		{filepath.Join(dir, "highlights.scm"), "", false},
		{filepath.Join(dir, "go", "nested", "x.scm"), "", false},
		{filepath.Join("elsewhere", "go", "x.scm"), "", false},
	}
	for _, tt := range tests {
		lang, ok := languageForQueryFile(dir, tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.lang, lang, tt.path)
	}
}
