// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"fmt"
	"os"
)

// deferredFileWriter appends to a pre-created file, reopening it per Write.
// Single-pass extraction of a whole archive needs one destination per entry
// at the same time; keeping them all open would exhaust file descriptors, so
// no descriptor is held between writes.
type deferredFileWriter struct {
	path string
}

// newDeferredFileWriter truncates or creates the file and returns an
// append-only writer for it. No descriptor stays open on return.
func newDeferredFileWriter(path string) (*deferredFileWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	return &deferredFileWriter{path: path}, nil
}

// Write opens the file in append mode, writes p, and closes it again.
func (d *deferredFileWriter) Write(p []byte) (int, error) {
	f, err := os.OpenFile(d.path, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return 0, fmt.Errorf("reopen output file: %w", err)
	}

	n, err := f.Write(p)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("append output file: %w", err)
	}

	return n, nil
}
