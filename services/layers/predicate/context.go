// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package predicate

import "github.com/AleutianAI/AleutianLayers/services/layers/ranges"

// TextProvider returns the text covered by r, or false when the text is not
// available.
//
// Implementations must be safe to call repeatedly with the same range and
// must not mutate the underlying content.
type TextProvider func(r ranges.Range) (string, bool)

// GroupMembershipProvider reports whether the node at r belongs to group,
// e.g. whether an identifier resolves to a "local" definition.
type GroupMembershipProvider func(group string, r ranges.Range) bool

// Context supplies the external data predicates evaluate against.
//
// Description:
//
//	Text lookups are memoized per byte range for the lifetime of the
//	Context, so several predicates naming the same capture extract its text
//	once. Create one Context per evaluation pass; do not keep it across
//	content changes.
//
// Thread Safety:
//
//	A Context is NOT safe for concurrent use. Each goroutine evaluating
//	matches needs its own Context.
type Context struct {
	textProvider TextProvider
	membership   GroupMembershipProvider
	cache        map[ranges.ByteRange]cachedText
}

type cachedText struct {
	text string
	ok   bool
}

// NewContext creates a caching context. Either provider may be nil.
//
// A nil TextProvider makes every text-comparing predicate fail closed. A nil
// GroupMembershipProvider reports every node as a non-member.
func NewContext(text TextProvider, membership GroupMembershipProvider) *Context {
	return &Context{
		textProvider: text,
		membership:   membership,
		cache:        make(map[ranges.ByteRange]cachedText),
	}
}

// Text returns the text for r through the cache.
func (c *Context) Text(r ranges.Range) (string, bool) {
	if c == nil || c.textProvider == nil {
		return "", false
	}
	if c.cache == nil {
		c.cache = make(map[ranges.ByteRange]cachedText)
	}
	if hit, ok := c.cache[r.Bytes]; ok {
		return hit.text, hit.ok
	}
	text, ok := c.textProvider(r)
	c.cache[r.Bytes] = cachedText{text: text, ok: ok}
	return text, ok
}

// TextProvider returns the caching lookup as a TextProvider.
func (c *Context) TextProvider() TextProvider {
	return c.Text
}

// WithMembership returns a context sharing this context's text cache but
// using a different membership provider.
func (c *Context) WithMembership(membership GroupMembershipProvider) *Context {
	return &Context{
		textProvider: c.textProvider,
		membership:   membership,
		cache:        c.cache,
	}
}

func (c *Context) texts(captures []Capture) ([]string, bool) {
	out := make([]string, 0, len(captures))
	for _, capture := range captures {
		text, ok := c.Text(capture.Range)
		if !ok {
			return nil, false
		}
		out = append(out, text)
	}
	return out, true
}

func (c *Context) isMember(group string, r ranges.Range) bool {
	if c == nil || c.membership == nil {
		return false
	}
	return c.membership(group, r)
}
