// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// entryRecord is one entry from the open scan table.
type entryRecord struct {
	// name is the stored entry name.
	name string
	// size is the payload size in bytes.
	size uint64
	// digest is the stored payload digest.
	digest [digestSize]byte
	// payloadOffset is the payload position in the decoded block stream.
	payloadOffset int64
}

// Entry is one archived entry opened for reading.
type Entry struct {
	// Data reads exactly Size payload bytes.
	Data io.Reader
	// Name is the stored entry name.
	Name string
	// Size is the payload size in bytes.
	Size uint64
}

// Reader reads a finalized MLA archive.
// Opening scans the whole block stream once, building the entry table and
// verifying payload digests. Lookup decodes the layered stream again from the
// start; LinearExtract serves many entries in a single pass instead.
type Reader struct {
	// ra is the random-access archive source.
	ra io.ReaderAt
	// file is set when Reader owns an *os.File opened via Open.
	file *os.File
	// fh is the parsed file header.
	fh *fileHeader
	// fileKey is the unwrapped stream key material, nil for plain archives.
	fileKey []byte
	// entries is the scan table in archive order.
	entries []entryRecord
	// byName maps entry name to its entries index.
	byName map[string]int
	// size is the archive size in bytes.
	size int64

	mu     sync.Mutex
	closed bool
}

// Open opens the archive file at path.
func Open(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	r, err := NewReader(f, st.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewReader opens an archive from a random-access source of the given size.
func NewReader(ra io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	if ra == nil {
		return nil, ErrNilReader
	}

	fh, err := parseFileHeader(ra, size)
	if err != nil {
		return nil, err
	}

	var fileKey []byte
	if fh.layers.Has(LayerEncrypt) {
		fileKey, err = unwrapFileKey(fh, opts.PrivateKeys)
		if err != nil {
			return nil, err
		}
	}

	r := &Reader{
		ra:      ra,
		fh:      fh,
		fileKey: fileKey,
		size:    size,
	}
	if err := r.scan(opts.SkipDigestCheck); err != nil {
		return nil, err
	}

	return r, nil
}

// blockStream decodes the layered stream from its first byte.
func (r *Reader) blockStream() (io.Reader, error) {
	section := io.NewSectionReader(r.ra, r.fh.dataStart, r.size-r.fh.dataStart)
	return buildReadStack(section, r.fh, r.fileKey)
}

// countingReader tracks the logical offset consumed from the block stream.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// scan walks the whole block stream, building the entry table.
// The end marker is required; a stream stopping short of it is rejected.
func (r *Reader) scan(skipDigest bool) error {
	stream, err := r.blockStream()
	if err != nil {
		return err
	}

	counted := &countingReader{r: stream}
	r.byName = make(map[string]int)
	for {
		var op [1]byte
		if _, err := io.ReadFull(counted, op[:]); err != nil {
			return fmt.Errorf("%w: missing end marker", ErrCorruptBlock)
		}

		switch op[0] {
		case opEnd:
			return nil
		case opEntry:
		default:
			return fmt.Errorf("%w: opcode 0x%02x", ErrCorruptBlock, op[0])
		}

		rec, err := readEntryHeader(counted)
		if err != nil {
			return err
		}

		rec.payloadOffset = counted.n
		digest := sha256.New()
		payload := io.Writer(io.Discard)
		if !skipDigest {
			payload = digest
		}
		if _, err := io.CopyN(payload, counted, int64(rec.size)); err != nil {
			return fmt.Errorf("%w: entry %s payload: %w", ErrCorruptBlock, rec.name, err)
		}

		if _, err := io.ReadFull(counted, rec.digest[:]); err != nil {
			return fmt.Errorf("%w: entry %s digest: %w", ErrCorruptBlock, rec.name, err)
		}

		if !skipDigest && !bytes.Equal(digest.Sum(nil), rec.digest[:]) {
			return fmt.Errorf("%w: entry %s", ErrDigestMismatch, rec.name)
		}

		if _, dup := r.byName[rec.name]; !dup {
			r.byName[rec.name] = len(r.entries)
		}
		r.entries = append(r.entries, rec)
	}
}

// readEntryHeader reads the name length, name, and size of one entry block.
func readEntryHeader(stream io.Reader) (entryRecord, error) {
	var rec entryRecord

	var fixed [2]byte
	if _, err := io.ReadFull(stream, fixed[:]); err != nil {
		return rec, fmt.Errorf("%w: entry name length: %w", ErrCorruptBlock, err)
	}

	nameLen := binary.LittleEndian.Uint16(fixed[:])
	if nameLen == 0 || int(nameLen) > maxNameLen {
		return rec, fmt.Errorf("%w: entry name length %d", ErrCorruptBlock, nameLen)
	}

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(stream, name); err != nil {
		return rec, fmt.Errorf("%w: entry name: %w", ErrCorruptBlock, err)
	}

	var sizeBuf [8]byte
	if _, err := io.ReadFull(stream, sizeBuf[:]); err != nil {
		return rec, fmt.Errorf("%w: entry size: %w", ErrCorruptBlock, err)
	}

	rec.name = string(name)
	rec.size = binary.LittleEndian.Uint64(sizeBuf[:])
	if err := validateEntryName(rec.name); err != nil {
		return rec, fmt.Errorf("%w: %w", ErrCorruptBlock, err)
	}

	return rec, nil
}

// Entries returns the scan table in archive order.
func (r *Reader) Entries() []EntryInfo {
	out := make([]EntryInfo, len(r.entries))
	for i, rec := range r.entries {
		out[i] = EntryInfo{Name: rec.name, Size: rec.size, Digest: rec.digest}
	}

	return out
}

// EntryNames returns entry names in archive order.
func (r *Reader) EntryNames() []string {
	out := make([]string, len(r.entries))
	for i, rec := range r.entries {
		out[i] = rec.name
	}

	return out
}

// EntryDigest returns the stored payload digest of the named entry.
func (r *Reader) EntryDigest(name string) ([digestSize]byte, error) {
	idx, ok := r.byName[name]
	if !ok {
		return [digestSize]byte{}, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return r.entries[idx].digest, nil
}

// Lookup opens the named entry for reading.
// Each call decodes the layered stream from the start up to the entry, so
// reading many entries this way is quadratic; prefer LinearExtract for that.
func (r *Reader) Lookup(name string) (*Entry, error) {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	idx, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	rec := r.entries[idx]
	stream, err := r.blockStream()
	if err != nil {
		return nil, err
	}

	if _, err := io.CopyN(io.Discard, stream, rec.payloadOffset); err != nil {
		return nil, fmt.Errorf("seek to entry %s: %w", name, err)
	}

	return &Entry{
		Name: rec.name,
		Size: rec.size,
		Data: io.LimitReader(stream, int64(rec.size)),
	}, nil
}

// LinearExtract streams every entry once in archive order, writing entries
// present in dests to their writer and discarding the rest. Written payloads
// are digest-verified.
func (r *Reader) LinearExtract(dests map[string]io.Writer) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	stream, err := r.blockStream()
	if err != nil {
		return err
	}

	counted := &countingReader{r: stream}
	for _, rec := range r.entries {
		if skip := rec.payloadOffset - counted.n; skip > 0 {
			if _, err := io.CopyN(io.Discard, counted, skip); err != nil {
				return fmt.Errorf("%w: entry %s: %w", ErrCorruptBlock, rec.name, err)
			}
		}

		dst, wanted := dests[rec.name]
		if !wanted || dst == nil {
			if _, err := io.CopyN(io.Discard, counted, int64(rec.size)); err != nil {
				return fmt.Errorf("%w: entry %s payload: %w", ErrCorruptBlock, rec.name, err)
			}
			continue
		}

		digest := sha256.New()
		if _, err := io.CopyN(io.MultiWriter(dst, digest), counted, int64(rec.size)); err != nil {
			return fmt.Errorf("extract entry %s: %w", rec.name, err)
		}

		if !bytes.Equal(digest.Sum(nil), rec.digest[:]) {
			return fmt.Errorf("%w: entry %s", ErrDigestMismatch, rec.name)
		}
	}

	return nil
}

// Layers returns the enabled layer flags of the open archive.
func (r *Reader) Layers() Layers {
	return r.fh.layers
}

// Codec returns the compression codec id of the open archive.
func (r *Reader) Codec() Codec {
	return r.fh.codec
}

// Close releases the underlying file when the Reader owns one.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true

	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close archive: %w", err)
		}
	}

	return nil
}
