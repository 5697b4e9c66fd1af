// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"archive/tar"
	"bytes"
	"crypto/ecdh"
	"io"
	"sort"
	"testing"
)

func TestConvertReencodes(t *testing.T) {
	t.Parallel()

	entries := testEntries()
	raw := buildArchive(t, WriterOptions{Layers: LayerCompress, Codec: CodecLZ4}, entries)
	src := openArchive(t, raw, ReaderOptions{})
	defer src.Close()

	key := testKey(t)
	var out bytes.Buffer
	w, err := NewWriter(&out, WriterOptions{
		Layers:        LayerCompress | LayerEncrypt,
		Codec:         CodecZstd,
		RecipientKeys: []*ecdh.PublicKey{key.PublicKey()},
	})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	var converted []string
	err = Convert(src, w, ConvertOptions{
		OnEntryDone: func(name string, size uint64) {
			converted = append(converted, name)
		},
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(converted) != len(entries) {
		t.Fatalf("converted %d entries, want %d", len(converted), len(entries))
	}

	dst := openArchive(t, out.Bytes(), ReaderOptions{PrivateKeys: []*ecdh.PrivateKey{key}})
	defer dst.Close()

	for _, e := range entries {
		entry, err := dst.Lookup(e.name)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", e.name, err)
		}
		got, err := io.ReadAll(entry.Data)
		if err != nil {
			t.Fatalf("read %s: %v", e.name, err)
		}
		if !bytes.Equal(got, e.data) {
			t.Fatalf("entry %s: content mismatch after conversion", e.name)
		}
	}
}

func TestToTar(t *testing.T) {
	t.Parallel()

	entries := testEntries()
	raw := buildArchive(t, WriterOptions{Layers: LayerCompress}, entries)
	r := openArchive(t, raw, ReaderOptions{})
	defer r.Close()

	var out bytes.Buffer
	if err := ToTar(r, &out, ConvertOptions{}); err != nil {
		t.Fatalf("ToTar: %v", err)
	}

	want := make(map[string][]byte, len(entries))
	for _, e := range entries {
		want["./"+e.name] = e.data
	}

	var names []string
	tr := tar.NewReader(&out)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar.Next: %v", err)
		}

		data, ok := want[hdr.Name]
		if !ok {
			t.Fatalf("unexpected tar member %q", hdr.Name)
		}
		got, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("read tar member %q: %v", hdr.Name, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("tar member %q: content mismatch", hdr.Name)
		}
		names = append(names, hdr.Name)
	}

	if len(names) != len(entries) {
		t.Fatalf("tar holds %d members, want %d", len(names), len(entries))
	}
	if !sort.StringsAreSorted(names) {
		t.Fatalf("tar members not sorted: %v", names)
	}
}
