// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestDeferredFileWriterAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := newDeferredFileWriter(path)
	if err != nil {
		t.Fatalf("newDeferredFileWriter: %v", err)
	}

	// Creation must leave an empty file even if nothing is ever written.
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if st.Size() != 0 {
		t.Fatalf("fresh file size: got %d, want 0", st.Size())
	}

	chunks := [][]byte{[]byte("first "), []byte("second "), []byte("third")}
	for _, c := range chunks {
		n, err := w.Write(c)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if n != len(c) {
			t.Fatalf("Write: got %d bytes, want %d", n, len(c))
		}
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := []byte("first second third"); !bytes.Equal(got, want) {
		t.Fatalf("content: got %q, want %q", got, want)
	}
}

func TestDeferredFileWriterTruncatesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.bin")
	if err := os.WriteFile(path, []byte("stale content"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w, err := newDeferredFileWriter(path)
	if err != nil {
		t.Fatalf("newDeferredFileWriter: %v", err)
	}
	if _, err := w.Write([]byte("new")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if want := []byte("new"); !bytes.Equal(got, want) {
		t.Fatalf("content: got %q, want %q", got, want)
	}
}

func TestDeferredFileWritersHoldNoDescriptors(t *testing.T) {
	if _, err := os.Stat("/proc/self/fd"); err != nil {
		t.Skip("/proc/self/fd not available")
	}

	countFDs := func() int {
		names, err := os.ReadDir("/proc/self/fd")
		if err != nil {
			t.Fatalf("ReadDir(/proc/self/fd): %v", err)
		}
		return len(names)
	}

	dir := t.TempDir()
	before := countFDs()

	writers := make([]*deferredFileWriter, 100)
	for i := range writers {
		w, err := newDeferredFileWriter(filepath.Join(dir, fmt.Sprintf("f%02d", i)))
		if err != nil {
			t.Fatalf("newDeferredFileWriter: %v", err)
		}
		if _, err := w.Write([]byte("x")); err != nil {
			t.Fatalf("Write: %v", err)
		}
		writers[i] = w
	}

	// 100 live writers must not pin 100 descriptors.
	if after := countFDs(); after > before+5 {
		t.Fatalf("open descriptors grew from %d to %d with %d live writers", before, after, len(writers))
	}
}

func TestDeferredFileWritersInterleave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := newDeferredFileWriter(filepath.Join(dir, "a"))
	if err != nil {
		t.Fatalf("newDeferredFileWriter: %v", err)
	}
	b, err := newDeferredFileWriter(filepath.Join(dir, "b"))
	if err != nil {
		t.Fatalf("newDeferredFileWriter: %v", err)
	}

	// Writers hold no descriptor, so any interleaving is safe.
	for i := 0; i < 3; i++ {
		if _, err := a.Write([]byte("a")); err != nil {
			t.Fatalf("Write a: %v", err)
		}
		if _, err := b.Write([]byte("b")); err != nil {
			t.Fatalf("Write b: %v", err)
		}
	}

	gotA, _ := os.ReadFile(filepath.Join(dir, "a"))
	gotB, _ := os.ReadFile(filepath.Join(dir, "b"))
	if string(gotA) != "aaa" || string(gotB) != "bbb" {
		t.Fatalf("content: got %q/%q, want aaa/bbb", gotA, gotB)
	}
}
