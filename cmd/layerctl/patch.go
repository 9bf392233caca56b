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
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// errPatchMismatch means a hunk's old lines are not in the document.
var errPatchMismatch = errors.New("patch does not apply")

// changeApplier is the part of a document a patch needs.
type changeApplier interface {
	Text() string
	ApplyChange(ctx context.Context, region ranges.ByteRange, replacement string) (ranges.Set, error)
}

// hunkResult is the outcome of applying one hunk.
type hunkResult struct {
	Hunk        int
	Region      ranges.ByteRange
	Replacement string
	Invalidated ranges.Set
}

// hunkBlocks splits a hunk body into the text it replaces and the text it
// inserts. Lines marked "\ No newline at end of file" drop the newline of
// the preceding line.
func hunkBlocks(body []byte) (removed, added string) {
	var oldB, newB []byte
	lastSide := byte(0)
	for _, line := range bytes.SplitAfter(body, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		text := line[1:]
		switch line[0] {
		case ' ':
			oldB = append(oldB, text...)
			newB = append(newB, text...)
		case '-':
			oldB = append(oldB, text...)
		case '+':
			newB = append(newB, text...)
		case '\\':
			if lastSide == ' ' || lastSide == '-' {
				oldB = bytes.TrimSuffix(oldB, []byte("\n"))
			}
			if lastSide == ' ' || lastSide == '+' {
				newB = bytes.TrimSuffix(newB, []byte("\n"))
			}
			continue
		default:
			continue
		}
		lastSide = line[0]
	}
	return string(oldB), string(newB)
}

// lineOffset returns the byte offset where 0-based line starts, or
// len(text) if text has fewer lines.
func lineOffset(text string, line int) uint {
	offset := 0
	for i := 0; i < line; i++ {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return uint(len(text))
		}
		offset += next + 1
	}
	return uint(offset)
}

// applyFileDiff applies every hunk of fd to doc in order.
//
// Description:
//
//	Hunks are applied one by one as document changes. Each hunk's start is
//	taken from its new-file line number, which is where its old lines sit
//	once the earlier hunks have been applied.
//
// Outputs:
//
//	[]hunkResult - One entry per applied hunk.
//	error        - errPatchMismatch, or an error from ApplyChange. Hunks
//	               before the failing one stay applied.
func applyFileDiff(ctx context.Context, doc changeApplier, fd *diff.FileDiff) ([]hunkResult, error) {
	results := make([]hunkResult, 0, len(fd.Hunks))
	for i, h := range fd.Hunks {
		old, replacement := hunkBlocks(h.Body)

		startLine := int(h.NewStartLine) - 1
		if h.NewLines == 0 {
			startLine = int(h.NewStartLine)
		}
		if startLine < 0 {
			startLine = 0
		}

		text := doc.Text()
		start := lineOffset(text, startLine)
		end := start + uint(len(old))
		if end > uint(len(text)) || text[start:end] != old {
			return results, fmt.Errorf("%w: hunk %d at line %d", errPatchMismatch, i+1, startLine+1)
		}

		region := ranges.NewByteRange(start, end)
		invalidated, err := doc.ApplyChange(ctx, region, replacement)
		if err != nil {
			return results, fmt.Errorf("hunk %d: %w", i+1, err)
		}
		results = append(results, hunkResult{
			Hunk:        i + 1,
			Region:      region,
			Replacement: replacement,
			Invalidated: invalidated,
		})
	}
	return results, nil
}
