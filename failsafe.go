// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// RecoveryStatus classifies where and why fail-safe recovery stopped reading.
type RecoveryStatus int

// Recovery stop classes.
const (
	// RecoveryNoError means recovery was not stopped by the input stream.
	RecoveryNoError RecoveryStatus = iota
	// RecoveryEndOfData means the end marker was reached: the whole archive
	// was recovered.
	RecoveryEndOfData
	// RecoveryTruncated means the stream ended before the end marker.
	RecoveryTruncated
	// RecoveryCorruptLayer means a compression or encryption chunk failed to decode.
	RecoveryCorruptLayer
	// RecoveryBadBlock means the block stream held a malformed entry block.
	RecoveryBadBlock
	// RecoveryDigestMismatch means an entry payload did not match its stored digest.
	RecoveryDigestMismatch
)

// String returns the recovery status name.
func (s RecoveryStatus) String() string {
	switch s {
	case RecoveryNoError:
		return "no error"
	case RecoveryEndOfData:
		return "end of data"
	case RecoveryTruncated:
		return "truncated"
	case RecoveryCorruptLayer:
		return "corrupt layer"
	case RecoveryBadBlock:
		return "bad block"
	case RecoveryDigestMismatch:
		return "digest mismatch"
	default:
		return "unknown"
	}
}

// FailSafeReader reads as much of a damaged archive as possible.
// Unlike Reader it does not require the end marker, does not pre-scan, and
// recovers whole entries until the stream stops making sense.
type FailSafeReader struct {
	// ra is the random-access archive source.
	ra io.ReaderAt
	// file is set when FailSafeReader owns an *os.File opened via OpenFailSafe.
	file *os.File
	// fh is the parsed file header.
	fh *fileHeader
	// fileKey is the unwrapped stream key material, nil for plain archives.
	fileKey []byte
	// size is the archive size in bytes.
	size int64
}

// OpenFailSafe opens the archive file at path for recovery.
// The header must still be intact; damage past it is tolerated.
func OpenFailSafe(path string, opts ReaderOptions) (*FailSafeReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	r, err := NewFailSafeReader(f, st.Size(), opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	r.file = f
	return r, nil
}

// NewFailSafeReader opens a recovery reader over a random-access source.
func NewFailSafeReader(ra io.ReaderAt, size int64, opts ReaderOptions) (*FailSafeReader, error) {
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

	return &FailSafeReader{ra: ra, fh: fh, fileKey: fileKey, size: size}, nil
}

// classifyStreamErr maps a block stream read error to a recovery status.
func classifyStreamErr(err error) RecoveryStatus {
	switch {
	case errors.Is(err, ErrCorruptChunk):
		return RecoveryCorruptLayer
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return RecoveryTruncated
	default:
		return RecoveryBadBlock
	}
}

// ConvertTo copies recoverable entries into w, one whole entry at a time.
// Entries whose payload or digest cannot be fully read are dropped. The
// returned status says why reading stopped; w is left unfinalized so the
// caller decides when the output archive is complete.
func (r *FailSafeReader) ConvertTo(w *Writer) (RecoveryStatus, error) {
	if w == nil {
		return RecoveryNoError, ErrNilWriter
	}

	section := io.NewSectionReader(r.ra, r.fh.dataStart, r.size-r.fh.dataStart)
	stream, err := buildReadStack(section, r.fh, r.fileKey)
	if err != nil {
		return RecoveryNoError, err
	}

	for {
		var op [1]byte
		if _, err := io.ReadFull(stream, op[:]); err != nil {
			return classifyStreamErr(err), nil
		}

		switch op[0] {
		case opEnd:
			return RecoveryEndOfData, nil
		case opEntry:
		default:
			return RecoveryBadBlock, nil
		}

		rec, err := readEntryHeader(stream)
		if err != nil {
			return classifyStreamErr(err), nil
		}

		sp := newSpool()
		digest := sha256.New()
		_, err = io.CopyN(io.MultiWriter(sp, digest), stream, int64(rec.size))
		if err == nil {
			_, err = io.ReadFull(stream, rec.digest[:])
		}
		if err != nil {
			status := classifyStreamErr(err)
			if cerr := sp.discard(); cerr != nil {
				return status, cerr
			}
			return status, nil
		}

		if !bytes.Equal(digest.Sum(nil), rec.digest[:]) {
			if cerr := sp.discard(); cerr != nil {
				return RecoveryDigestMismatch, cerr
			}
			return RecoveryDigestMismatch, nil
		}

		payload, err := sp.open()
		if err != nil {
			return RecoveryNoError, err
		}
		err = w.AddEntry(rec.name, rec.size, payload)
		if cerr := sp.discard(); err == nil {
			err = cerr
		}
		if err != nil {
			return RecoveryNoError, fmt.Errorf("recover entry %s: %w", rec.name, err)
		}
	}
}

// Close releases the underlying file when the reader owns one.
func (r *FailSafeReader) Close() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close archive: %w", err)
		}
		r.file = nil
	}

	return nil
}

// spoolMemLimit is the in-memory spool size above which a temp file is used.
const spoolMemLimit = 32 * 1024 * 1024

// spool buffers one recovered payload before it is re-added to an archive.
// Small payloads stay in memory; large ones spill to a temp file.
type spool struct {
	mem  bytes.Buffer
	file *os.File
}

func newSpool() *spool {
	return &spool{}
}

// Write appends payload bytes, spilling to disk past the memory limit.
func (s *spool) Write(p []byte) (int, error) {
	if s.file == nil && s.mem.Len()+len(p) > spoolMemLimit {
		f, err := os.CreateTemp("", "mla-recover-*")
		if err != nil {
			return 0, fmt.Errorf("spool entry: %w", err)
		}

		if _, err := s.mem.WriteTo(f); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return 0, fmt.Errorf("spool entry: %w", err)
		}

		s.file = f
	}

	if s.file != nil {
		n, err := s.file.Write(p)
		if err != nil {
			return n, fmt.Errorf("spool entry: %w", err)
		}
		return n, nil
	}

	return s.mem.Write(p)
}

// open positions the spool for reading back from the start.
func (s *spool) open() (io.Reader, error) {
	if s.file != nil {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind spool: %w", err)
		}
		return s.file, nil
	}

	return &s.mem, nil
}

// discard releases spool resources.
func (s *spool) discard() error {
	if s.file == nil {
		return nil
	}

	name := s.file.Name()
	err := s.file.Close()
	if rerr := os.Remove(name); err == nil {
		err = rerr
	}
	s.file = nil
	if err != nil {
		return fmt.Errorf("discard spool: %w", err)
	}

	return nil
}
