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
	"unicode/utf8"

	"github.com/AleutianAI/AleutianLayers/services/layers/ranges"
)

// diffText finds the single edit turning before into after: the span of before
// between their common prefix and suffix, and what replaces it.
//
// The bounds are moved to rune starts so an edit never splits a UTF-8
// sequence. changed is false when the texts are equal.
func diffText(before, after string) (region ranges.ByteRange, replacement string, changed bool) {
	if before == after {
		return ranges.ByteRange{}, "", false
	}

	limit := min(len(before), len(after))
	prefix := 0
	for prefix < limit && before[prefix] == after[prefix] {
		prefix++
	}
	for prefix > 0 && (!runeStartAt(before, prefix) || !runeStartAt(after, prefix)) {
		prefix--
	}

	suffix := 0
	for suffix < limit-prefix && before[len(before)-1-suffix] == after[len(after)-1-suffix] {
		suffix++
	}
	for suffix > 0 && !utf8.RuneStart(before[len(before)-suffix]) {
		suffix--
	}

	start := uint(prefix)
	return ranges.NewByteRange(start, uint(len(before)-suffix)), after[prefix : len(after)-suffix], true
}

// runeStartAt reports whether i is a rune boundary of s.
func runeStartAt(s string, i int) bool {
	return i >= len(s) || utf8.RuneStart(s[i])
}
