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
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianLayers/pkg/validation"
	"github.com/AleutianAI/AleutianLayers/services/layers/layer"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

const sampleGo = "package main\n\nconst configJSON = `{\"a\": 1}`\n\nconst querySQL = `select 1`\n"

// writeSample writes sampleGo to a temp dir and returns its path.
func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte(sampleGo), 0o644))
	return path
}

// runCLI runs layerctl in machine mode against a config file that does not
// exist, so the defaults apply.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIWithConfig(t, filepath.Join(t.TempDir(), "missing.yaml"), args...)
}

func runCLIWithConfig(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath, "-o", "machine", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_Highlight(t *testing.T) {
	path := writeSample(t)

	out, err := runCLI(t, "highlight", path)
	require.NoError(t, err)

	assert.Contains(t, out, path+"\t")
	assert.Contains(t, out, "\tgo\t0\n")
	assert.Contains(t, out, "\tjson\t1\n", "the raw string is highlighted as JSON")
	assert.Contains(t, out, "SUMMARY: files=1")
	assert.Contains(t, out, "failed=0")
}

func TestCLI_Highlight_Region(t *testing.T) {
	path := writeSample(t)
	jsonStart := strings.Index(sampleGo, "{")

	out, err := runCLI(t, "highlight", "--start", "0", "--end", "12", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "\tjson\t1\n")

	out, err = runCLI(t, "highlight", "--start", strconv.Itoa(jsonStart), path)
	require.NoError(t, err)
	assert.Contains(t, out, "\tjson\t1\n")
}

func TestCLI_Highlight_FailedFile(t *testing.T) {
	path := writeSample(t)
	missing := filepath.Join(t.TempDir(), "gone.go")

	out, err := runCLI(t, "highlight", path, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, out, "failed=1")
}

func TestCLI_UnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.unknown")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := runCLI(t, "layers", path)
	require.ErrorIs(t, err, errNoLanguage)

	_, err = runCLI(t, "layers", "--language", "json", path)
	require.NoError(t, err)
}

func TestCLI_LayersJSON(t *testing.T) {
	path := writeSample(t)

	out, err := runCLI(t, "layers", "--json", path)
	require.NoError(t, err)

	var infos []layer.LayerInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 2)

	assert.Equal(t, "go", infos[0].Language)
	assert.Equal(t, 0, infos[0].Depth)
	assert.True(t, infos[0].HasTree)
	assert.Equal(t, []string{"sql"}, infos[0].Missing)

	start := uint(strings.Index(sampleGo, "{"))
	end := uint(strings.Index(sampleGo, "}") + 1)
	assert.Equal(t, "json", infos[1].Language)
	assert.Equal(t, 1, infos[1].Depth)
	assert.Equal(t, []ranges.ByteRange{ranges.NewByteRange(start, end)}, infos[1].Ranges)
}

func TestCLI_Injections(t *testing.T) {
	path := writeSample(t)

	out, err := runCLI(t, "injections", path)
	require.NoError(t, err)
	assert.Contains(t, out, "\tjson\t1\t"+`"{\"a\": 1}"`)
	assert.Contains(t, out, "unregistered languages: sql")
	assert.Contains(t, out, "1 injected ranges, 1 unresolved languages")
}

func TestCLI_Query(t *testing.T) {
	path := writeSample(t)

	out, err := runCLI(t, "query", "-k", "locals", path)
	require.NoError(t, err)
	assert.Contains(t, out, "@local.definition\tgo\t0")
	assert.Contains(t, out, `"configJSON"`)

	_, err = runCLI(t, "query", "-k", "locals", "--strict", path)
	require.ErrorIs(t, err, layer.ErrQueryUnavailable)
}

func TestCLI_Patch(t *testing.T) {
	path := writeSample(t)
	patch := "--- a/main.go\n+++ b/main.go\n@@ -3,1 +3,1 @@\n-const configJSON = `{\"a\": 1}`\n+const configJSON = `{\"a\": 2}`\n"
	patchPath := filepath.Join(t.TempDir(), "edit.diff")
	require.NoError(t, os.WriteFile(patchPath, []byte(patch), 0o644))

	out, err := runCLI(t, "patch", "--write", path, patchPath)
	require.NoError(t, err)
	assert.Contains(t, out, "hunk=1\t")
	assert.Contains(t, out, "OK: wrote "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Replace(sampleGo, `"a": 1`, `"a": 2`, 1), string(data))
}

func TestCLI_Patch_Mismatch(t *testing.T) {
	path := writeSample(t)
	patch := "--- a/main.go\n+++ b/main.go\n@@ -3,1 +3,1 @@\n-const other = 1\n+const other = 2\n"
	patchPath := filepath.Join(t.TempDir(), "edit.diff")
	require.NoError(t, os.WriteFile(patchPath, []byte(patch), 0o644))

	_, err := runCLI(t, "patch", "--write", path, patchPath)
	require.ErrorIs(t, err, errPatchMismatch)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleGo, string(data))
}

func TestCLI_Languages(t *testing.T) {
	out, err := runCLI(t, "languages")
	require.NoError(t, err)
	assert.Contains(t, out, "go\thighlights,injections,locals,tags\n")
	assert.Contains(t, out, "json\thighlights\n")
}

func TestCLI_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "layers.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("layers:\n  max_depth: 500\n"), 0o644))

	_, err := runCLIWithConfig(t, cfgPath, "languages")
	require.Error(t, err)
}

func TestCLI_Query_InvalidKind(t *testing.T) {
	path := writeSample(t)

	_, err := runCLI(t, "query", "-k", "../secrets", path)
	require.ErrorIs(t, err, validation.ErrInvalidName)
}
