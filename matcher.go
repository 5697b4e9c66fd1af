// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"fmt"

	"github.com/gobwas/glob"
)

// EntryMatcher selects archive entries by name for extraction or display.
// A matcher built from an empty name or pattern set matches every entry.
// Matchers are immutable after construction and safe for reuse.
type EntryMatcher struct {
	names map[string]struct{}
	globs []glob.Glob
	all   bool
}

// MatchAll builds a matcher accepting every entry.
func MatchAll() *EntryMatcher {
	return &EntryMatcher{all: true}
}

// MatchNames builds a matcher accepting exactly the given entry names.
// An empty list matches every entry.
func MatchNames(names []string) *EntryMatcher {
	if len(names) == 0 {
		return MatchAll()
	}

	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}

	return &EntryMatcher{names: set}
}

// MatchGlobs builds a matcher accepting entries whose name matches any of the
// given glob patterns. "/" is the separator: "*" and "?" do not cross it,
// "**" does. Character classes ("[a-z]") and brace alternation ("{png,jpg}")
// are supported. An empty list matches every entry; an invalid pattern fails
// construction.
func MatchGlobs(patterns []string) (*EntryMatcher, error) {
	if len(patterns) == 0 {
		return MatchAll(), nil
	}

	globs := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidGlobPattern, pattern, err)
		}

		globs = append(globs, g)
	}

	return &EntryMatcher{globs: globs}, nil
}

// Matches reports whether the entry name is selected.
func (m *EntryMatcher) Matches(name string) bool {
	if m == nil || m.all {
		return true
	}

	if m.names != nil {
		_, ok := m.names[name]
		return ok
	}

	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}

	return false
}

// MatchesAll reports whether the matcher accepts every entry.
// It enables the single-pass extraction fast path.
func (m *EntryMatcher) MatchesAll() bool {
	return m == nil || m.all
}
