// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"archive/tar"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ToTar writes every entry of r as a tar stream on w.
// Entry names are forced relative so the tar never carries absolute paths;
// entries that cannot be read are skipped.
func ToTar(r *Reader, w io.Writer, opts ConvertOptions) error {
	if r == nil {
		return ErrNilReader
	}
	if w == nil {
		return ErrNilWriter
	}

	tw := tar.NewWriter(w)
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

		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     tarEntryName(name),
			Size:     int64(entry.Size),
			Mode:     0o444,
			Format:   tar.FormatGNU,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header for %s: %w", name, err)
		}

		if _, err := io.Copy(tw, entry.Data); err != nil {
			return fmt.Errorf("write tar entry %s: %w", name, err)
		}

		if opts.OnEntryDone != nil {
			opts.OnEntryDone(entry.Name, entry.Size)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish tar stream: %w", err)
	}

	return nil
}

// tarEntryName makes a stored entry name safe as a tar member name.
func tarEntryName(name string) string {
	name = strings.ReplaceAll(name, `\`, `/`)
	name = strings.TrimLeft(name, "/")
	if name == "" {
		name = "unnamed"
	}

	return "./" + name
}
