// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"errors"
	"testing"
)

func TestMatchNames(t *testing.T) {
	t.Parallel()

	m := MatchNames([]string{"docs/a.txt", "b.bin"})
	cases := []struct {
		name string
		want bool
	}{
		{name: "docs/a.txt", want: true},
		{name: "b.bin", want: true},
		{name: "docs/a.txt.bak", want: false},
		{name: "a.txt", want: false},
	}
	for _, tc := range cases {
		if got := m.Matches(tc.name); got != tc.want {
			t.Fatalf("Matches(%q): got %v, want %v", tc.name, got, tc.want)
		}
	}

	if m.MatchesAll() {
		t.Fatal("explicit name set must not match everything")
	}
}

func TestMatchNamesEmptyMatchesEverything(t *testing.T) {
	t.Parallel()

	m := MatchNames(nil)
	if !m.MatchesAll() {
		t.Fatal("empty name set must match everything")
	}
	if !m.Matches("anything/at/all") {
		t.Fatal("empty name set rejected an entry")
	}
}

func TestMatchGlobs(t *testing.T) {
	t.Parallel()

	m, err := MatchGlobs([]string{"*.txt", "data/**", "img.{png,jpg}"})
	if err != nil {
		t.Fatalf("MatchGlobs: %v", err)
	}

	cases := []struct {
		name string
		want bool
	}{
		{name: "a.txt", want: true},
		{name: "a.txt.bak", want: false},
		// "*" must not cross the separator.
		{name: "docs/a.txt", want: false},
		{name: "data/sub/file.bin", want: true},
		{name: "database.bin", want: false},
		// Brace alternation is part of the pattern syntax.
		{name: "img.png", want: true},
		{name: "img.jpg", want: true},
		{name: "img.gif", want: false},
	}
	for _, tc := range cases {
		if got := m.Matches(tc.name); got != tc.want {
			t.Fatalf("Matches(%q): got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMatchGlobsEmptyMatchesEverything(t *testing.T) {
	t.Parallel()

	m, err := MatchGlobs(nil)
	if err != nil {
		t.Fatalf("MatchGlobs: %v", err)
	}
	if !m.MatchesAll() {
		t.Fatal("empty pattern set must match everything")
	}
}

func TestMatchGlobsInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := MatchGlobs([]string{"[unclosed"}); !errors.Is(err, ErrInvalidGlobPattern) {
		t.Fatalf("got %v, want %v", err, ErrInvalidGlobPattern)
	}
}
