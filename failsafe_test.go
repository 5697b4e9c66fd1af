// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"bytes"
	"crypto/ecdh"
	"io"
	"testing"
)

// blockLen is the on-stream size of one plain entry block.
func blockLen(name string, size int) int {
	return 1 + 2 + len(name) + 8 + size + digestSize
}

// repairInto runs a full repair of raw into a fresh plain archive.
func repairInto(t *testing.T, raw []byte, opts ReaderOptions) (RecoveryStatus, *Reader) {
	t.Helper()

	fr, err := NewFailSafeReader(bytes.NewReader(raw), int64(len(raw)), opts)
	if err != nil {
		t.Fatalf("NewFailSafeReader: %v", err)
	}

	var out bytes.Buffer
	w, err := NewWriter(&out, WriterOptions{})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	status, err := Repair(fr, w)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}

	return status, openArchive(t, out.Bytes(), ReaderOptions{})
}

func TestRepairIntactArchive(t *testing.T) {
	t.Parallel()

	entries := testEntries()
	raw := buildArchive(t, WriterOptions{}, entries)

	status, repaired := repairInto(t, raw, ReaderOptions{})
	defer repaired.Close()

	if status != RecoveryEndOfData {
		t.Fatalf("status: got %s, want %s", status, RecoveryEndOfData)
	}
	if got := len(repaired.EntryNames()); got != len(entries) {
		t.Fatalf("recovered %d entries, want %d", got, len(entries))
	}
	for _, e := range entries {
		entry, err := repaired.Lookup(e.name)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", e.name, err)
		}
		got, err := io.ReadAll(entry.Data)
		if err != nil {
			t.Fatalf("read %s: %v", e.name, err)
		}
		if !bytes.Equal(got, e.data) {
			t.Fatalf("entry %s: content mismatch", e.name)
		}
	}
}

func TestRepairTruncatedArchive(t *testing.T) {
	t.Parallel()

	entries := testEntries()
	raw := buildArchive(t, WriterOptions{}, entries)

	// Keep the first two whole entry blocks, dropping everything after.
	keep := headerSize +
		blockLen(entries[0].name, len(entries[0].data)) +
		blockLen(entries[1].name, len(entries[1].data))

	cases := []struct {
		name string
		cut  int
	}{
		// Cut exactly between blocks: the stream still stopped before its
		// logical end, so this is truncation, not a clean recovery.
		{name: "at_block_boundary", cut: keep},
		{name: "inside_next_header", cut: keep + 5},
		{name: "inside_next_digest", cut: keep + blockLen(entries[2].name, 0) - 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			status, repaired := repairInto(t, raw[:tc.cut], ReaderOptions{})
			defer repaired.Close()

			if status != RecoveryTruncated {
				t.Fatalf("status: got %s, want %s", status, RecoveryTruncated)
			}

			names := repaired.EntryNames()
			if len(names) != 2 {
				t.Fatalf("recovered %d entries, want 2", len(names))
			}
			for i := 0; i < 2; i++ {
				if names[i] != entries[i].name {
					t.Fatalf("entry %d: got %q, want %q", i, names[i], entries[i].name)
				}
			}
		})
	}
}

func TestRepairCorruptEncryptionLayer(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	raw := buildArchive(t, WriterOptions{
		Layers:        LayerEncrypt,
		RecipientKeys: []*ecdh.PublicKey{key.PublicKey()},
	}, testEntries())

	// Flip one ciphertext byte of the first chunk, past the key material.
	bad := append([]byte(nil), raw...)
	dataStart := headerSize + keySize + 4 + wrappedKeySize
	bad[dataStart+4] ^= 0xff

	status, repaired := repairInto(t, bad, ReaderOptions{PrivateKeys: []*ecdh.PrivateKey{key}})
	defer repaired.Close()

	if status != RecoveryCorruptLayer {
		t.Fatalf("status: got %s, want %s", status, RecoveryCorruptLayer)
	}
	if got := len(repaired.EntryNames()); got != 0 {
		t.Fatalf("recovered %d entries from a corrupt first chunk, want 0", got)
	}
}

func TestRepairDigestMismatch(t *testing.T) {
	t.Parallel()

	entries := testEntries()
	raw := buildArchive(t, WriterOptions{}, entries)

	// Corrupt one payload byte of the second entry.
	bad := append([]byte(nil), raw...)
	off := headerSize +
		blockLen(entries[0].name, len(entries[0].data)) +
		1 + 2 + len(entries[1].name) + 8
	bad[off] ^= 0xff

	status, repaired := repairInto(t, bad, ReaderOptions{})
	defer repaired.Close()

	if status != RecoveryDigestMismatch {
		t.Fatalf("status: got %s, want %s", status, RecoveryDigestMismatch)
	}

	// The entry before the damage survives; the damaged one is dropped.
	names := repaired.EntryNames()
	if len(names) != 1 || names[0] != entries[0].name {
		t.Fatalf("recovered %v, want [%s]", names, entries[0].name)
	}
}

func TestRepairBadBlock(t *testing.T) {
	t.Parallel()

	entries := testEntries()
	raw := buildArchive(t, WriterOptions{}, entries)

	// Replace the second entry's opcode with garbage.
	bad := append([]byte(nil), raw...)
	bad[headerSize+blockLen(entries[0].name, len(entries[0].data))] = 0x7f

	status, repaired := repairInto(t, bad, ReaderOptions{})
	defer repaired.Close()

	if status != RecoveryBadBlock {
		t.Fatalf("status: got %s, want %s", status, RecoveryBadBlock)
	}
	names := repaired.EntryNames()
	if len(names) != 1 || names[0] != entries[0].name {
		t.Fatalf("recovered %v, want [%s]", names, entries[0].name)
	}
}

func TestRecoveryStatusString(t *testing.T) {
	t.Parallel()

	cases := map[RecoveryStatus]string{
		RecoveryNoError:        "no error",
		RecoveryEndOfData:      "end of data",
		RecoveryTruncated:      "truncated",
		RecoveryCorruptLayer:   "corrupt layer",
		RecoveryBadBlock:       "bad block",
		RecoveryDigestMismatch: "digest mismatch",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Fatalf("String(%d): got %q, want %q", status, got, want)
		}
	}
}
