// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Extract writes the matching entries of r under outputDir.
// A rejected or failing entry is skipped, reported through opts.OnSkip, and
// never aborts the rest; only output-root and stream-level failures are fatal.
// When the matcher accepts everything, all entries are served in one pass over
// the archive instead of one decode per entry.
func Extract(r *Reader, outputDir string, m *EntryMatcher, opts ExtractOptions) error {
	if r == nil {
		return ErrNilReader
	}

	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	rootAbs, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}

	if m.MatchesAll() {
		return linearExtractAll(r, rootAbs, opts)
	}

	names := make([]string, 0)
	for _, name := range r.EntryNames() {
		if m.Matches(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		written, outputPath, err := extractOne(r, rootAbs, name)
		if err != nil {
			if opts.OnSkip != nil {
				opts.OnSkip(name, err)
			}
			continue
		}

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(name, written, outputPath)
		}
	}

	return nil
}

// extractOne resolves, creates, and fills one output file via Lookup.
func extractOne(r *Reader, rootAbs, name string) (int64, string, error) {
	outputPath, err := ResolveExtractPath(rootAbs, name)
	if err != nil {
		return 0, "", err
	}

	entry, err := r.Lookup(name)
	if err != nil {
		return 0, "", err
	}

	f, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, "", fmt.Errorf("create output file: %w", err)
	}

	written, err := io.Copy(f, entry.Data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return written, outputPath, fmt.Errorf("write output file: %w", err)
	}

	return written, outputPath, nil
}

// linearExtractAll extracts every entry in a single pass over the archive.
// Destinations are deferred writers, so the pass never holds more than one
// output descriptor open at a time.
func linearExtractAll(r *Reader, rootAbs string, opts ExtractOptions) error {
	dests := make(map[string]io.Writer)
	paths := make(map[string]string)
	for _, name := range r.EntryNames() {
		outputPath, err := ResolveExtractPath(rootAbs, name)
		if err != nil {
			if opts.OnSkip != nil {
				opts.OnSkip(name, err)
			}
			continue
		}

		w, err := newDeferredFileWriter(outputPath)
		if err != nil {
			if opts.OnSkip != nil {
				opts.OnSkip(name, err)
			}
			continue
		}

		dests[name] = w
		paths[name] = outputPath
	}

	if err := r.LinearExtract(dests); err != nil {
		return err
	}

	if opts.OnEntryDone != nil {
		for _, info := range r.Entries() {
			if path, ok := paths[info.Name]; ok {
				opts.OnEntryDone(info.Name, int64(info.Size), path)
			}
		}
	}

	return nil
}
