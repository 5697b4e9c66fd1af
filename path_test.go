// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import "testing"

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "docs/a.txt", want: "docs/a.txt"},
		{in: "./docs/a.txt", want: "docs/a.txt"},
		{in: "/docs/a.txt", want: "docs/a.txt"},
		{in: `docs\sub\a.txt`, want: "docs/sub/a.txt"},
		{in: " docs/a.txt ", want: "docs/a.txt"},
		{in: "docs//a.txt", want: "docs/a.txt"},
		{in: "docs/./a.txt", want: "docs/a.txt"},
		{in: "", want: ""},
		{in: ".", want: ""},
		{in: "/", want: ""},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in); got != tc.want {
			t.Fatalf("NormalizeName(%q): got %q, want %q", tc.in, got, tc.want)
		}
	}
}
