// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// splitEntryComponents breaks an entry name into path components, accepting
// both "/" and "\" separators and dropping root and drive prefixes.
func splitEntryComponents(name string) ([]string, error) {
	name = strings.ReplaceAll(name, `\`, `/`)

	raw := strings.Split(name, "/")
	components := make([]string, 0, len(raw))
	for _, c := range raw {
		switch {
		case c == "" || c == ".":
			// Root, repeated separator, or current-dir component.
		case c == "..":
			return nil, fmt.Errorf("%w: %q", ErrPathTraversal, name)
		case len(c) == 2 && c[1] == ':':
			// Drive prefix.
		default:
			components = append(components, c)
		}
	}
	if len(components) == 0 {
		return nil, fmt.Errorf("%w: %q has no usable components", ErrInvalidEntryName, name)
	}

	return components, nil
}

// ResolveExtractPath maps an untrusted entry name to a path strictly inside
// rootAbs, creating parent directories as needed. Names with ".." components
// are rejected before touching the filesystem. The containing directory is
// then canonicalized and checked against the canonical root, so an entry
// whose parent is a symlink pointing outside the output tree is rejected
// instead of written elsewhere.
func ResolveExtractPath(rootAbs, entryName string) (string, error) {
	components, err := splitEntryComponents(entryName)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(rootAbs, filepath.Join(components...))
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	canonicalParent, err := filepath.EvalSymlinks(filepath.Dir(dest))
	if err != nil {
		return "", fmt.Errorf("canonicalize parent: %w", err)
	}

	canonicalRoot, err := filepath.EvalSymlinks(rootAbs)
	if err != nil {
		return "", fmt.Errorf("canonicalize output root: %w", err)
	}

	if canonicalParent != canonicalRoot &&
		!strings.HasPrefix(canonicalParent, canonicalRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q resolves to %s", ErrPathEscapesRoot, entryName, canonicalParent)
	}

	return filepath.Join(canonicalParent, filepath.Base(dest)), nil
}
