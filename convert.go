// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"fmt"
	"sort"
)

// Convert copies every entry of r into w, re-encoding it under w's layer
// configuration. Entries that cannot be read from the source are skipped and
// reported through opts.OnSkip; failures writing the output archive are fatal.
// Convert finalizes w on success.
func Convert(r *Reader, w *Writer, opts ConvertOptions) error {
	if r == nil {
		return ErrNilReader
	}
	if w == nil {
		return ErrNilWriter
	}

	names := r.EntryNames()
	sort.Strings(names)

	for _, name := range names {
		entry, err := r.Lookup(name)
		if err != nil {
			if opts.OnSkip != nil {
				opts.OnSkip(name, err)
			}
			continue
		}

		if err := w.AddEntry(entry.Name, entry.Size, entry.Data); err != nil {
			return fmt.Errorf("convert entry %s: %w", name, err)
		}

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(entry.Name, entry.Size)
		}
	}

	return w.Finalize()
}

// Repair recovers what it can from a damaged archive into w and finalizes w
// exactly once. The returned status says why recovery stopped reading;
// RecoveryEndOfData means the whole archive was recovered.
func Repair(r *FailSafeReader, w *Writer) (RecoveryStatus, error) {
	if r == nil {
		return RecoveryNoError, ErrNilReader
	}
	if w == nil {
		return RecoveryNoError, ErrNilWriter
	}

	status, err := r.ConvertTo(w)
	if err != nil {
		return status, err
	}

	if err := w.Finalize(); err != nil {
		return status, err
	}

	return status, nil
}
