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
	"github.com/AleutianAI/AleutianLayers/services/layers/engine"
	"github.com/AleutianAI/AleutianLayers/services/layers/predicate"
	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// readChunk caps how much text one read callback hands to the parser.
const readChunk = 16 * 1024

// Content gives a layer tree access to the current document text.
//
// Read feeds the parser; Text feeds predicates and injection language
// names. Both must describe the same text and must not change while a
// parse or query is running.
type Content struct {
	Read engine.ReadFunc
	Text predicate.TextProvider
}

// StringContent serves both callbacks from text.
func StringContent(text string) Content {
	buf := []byte(text)
	return Content{
		Read: func(offset uint, _ ranges.Point) []byte {
			if offset >= uint(len(buf)) {
				return nil
			}
			end := min(uint(len(buf)), offset+readChunk)
			return buf[offset:end]
		},
		Text: StringTextProvider(text),
	}
}

// StringTextProvider returns the text of r within text, or false when r
// falls outside it.
func StringTextProvider(text string) predicate.TextProvider {
	return func(r ranges.Range) (string, bool) {
		if r.Bytes.End > uint(len(text)) || r.Bytes.Start > r.Bytes.End {
			return "", false
		}
		return text[r.Bytes.Start:r.Bytes.End], true
	}
}
