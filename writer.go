// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"bufio"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/woozymasta/pathrules"
)

// writerBufferSize is the buffered output size under the layer stack.
const writerBufferSize = 256 * 1024

// writeCopyBufferSize is the payload copy buffer used by AddEntry.
const writeCopyBufferSize = 64 * 1024

// Writer emits one MLA archive entry by entry.
// Entries are written in call order; Finalize must be called exactly once, last.
type Writer struct {
	// dst is the buffered destination under the layer stack.
	dst *bufio.Writer
	// stack is the assembled layer chain.
	stack *writeStack
	// file is set when Writer owns an *os.File opened via CreateFile.
	file *os.File
	// rules optionally restricts codec compression per entry.
	rules *compressRuleMatcher
	// copyBuf is the reusable payload copy buffer.
	copyBuf []byte
	// entries counts written entries.
	entries int
	// finalized reports whether Finalize already ran.
	finalized bool
}

// compressRuleMatcher holds compiled per-entry compression rules.
type compressRuleMatcher struct {
	matcher *pathrules.Matcher
}

// newCompressRuleMatcher compiles compression path rules.
func newCompressRuleMatcher(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*compressRuleMatcher, error) {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := NormalizeName(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}
	if len(normalized) == 0 {
		return nil, nil
	}

	matcher, err := pathrules.NewMatcher(normalized, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidCompressRules, err)
	}

	return &compressRuleMatcher{matcher: matcher}, nil
}

// Match reports whether entry name is included by the compress rules.
func (m *compressRuleMatcher) Match(name string) bool {
	if m == nil || m.matcher == nil {
		return true
	}

	candidate := NormalizeName(name)
	if candidate == "" {
		return false
	}

	return m.matcher.Included(candidate, false)
}

// NewWriter starts a fresh archive on dst.
// Configuration is validated before any byte is written.
func NewWriter(dst io.Writer, opts WriterOptions) (*Writer, error) {
	if dst == nil {
		return nil, ErrNilWriter
	}

	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rules, err := newCompressRuleMatcher(opts.CompressRules, opts.CompressMatcherOptions)
	if err != nil {
		return nil, err
	}

	bw := bufio.NewWriterSize(dst, writerBufferSize)

	var (
		ephemeralPub []byte
		wrappedKeys  [][]byte
		fileKey      []byte
	)
	if opts.Layers.Has(LayerEncrypt) {
		fileKey = make([]byte, keySize)
		if _, err := rand.Read(fileKey); err != nil {
			return nil, fmt.Errorf("generate file key: %w", err)
		}

		ephemeralPub, wrappedKeys, err = wrapFileKey(fileKey, opts.RecipientKeys)
		if err != nil {
			return nil, err
		}
	}

	if err := encodeFileHeader(bw, opts.Layers, opts.Codec, ephemeralPub, wrappedKeys); err != nil {
		return nil, err
	}

	var stack *writeStack
	if opts.Layers.Has(LayerEncrypt) {
		aead, err := newStreamAEAD(fileKey, ephemeralPub)
		if err != nil {
			return nil, err
		}

		stack, err = buildWriteStack(bw, opts, aead)
		if err != nil {
			return nil, err
		}
	} else {
		stack, err = buildWriteStack(bw, opts, nil)
		if err != nil {
			return nil, err
		}
	}

	return &Writer{
		dst:     bw,
		stack:   stack,
		rules:   rules,
		copyBuf: make([]byte, writeCopyBufferSize),
	}, nil
}

// CreateFile starts a fresh archive file at path.
// The file is owned by the Writer and closed by Finalize.
func CreateFile(path string, opts WriterOptions) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}

	w, err := NewWriter(f, opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	w.file = f
	return w, nil
}

// AddEntry writes one entry with the declared size from r.
// A source yielding fewer or more than size bytes is an error.
func (w *Writer) AddEntry(name string, size uint64, r io.Reader) error {
	if w == nil {
		return ErrNilWriter
	}
	if w.finalized {
		return ErrFinalized
	}
	if r == nil {
		return ErrNilReader
	}

	if err := validateEntryName(name); err != nil {
		return err
	}

	if w.stack.comp != nil && w.rules != nil {
		w.stack.comp.setRaw(!w.rules.Match(name))
		defer w.stack.comp.setRaw(false)
	}

	var hdr [11]byte
	hdr[0] = opEntry
	binary.LittleEndian.PutUint16(hdr[1:3], uint16(len(name)))
	binary.LittleEndian.PutUint64(hdr[3:11], size)
	if _, err := w.stack.top.Write(hdr[:]); err != nil {
		return fmt.Errorf("write entry header: %w", err)
	}

	if _, err := io.WriteString(w.stack.top, name); err != nil {
		return fmt.Errorf("write entry name: %w", err)
	}

	digest := sha256.New()
	payload := io.MultiWriter(w.stack.top, digest)
	written, err := io.CopyBuffer(payload, io.LimitReader(r, int64(size)), w.copyBuf)
	if err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	if uint64(written) != size {
		return fmt.Errorf("%w: entry %s yielded %d of %d bytes", ErrEntrySizeMismatch, name, written, size)
	}

	// Probe one extra byte to ensure the source is not longer than declared.
	var probe [1]byte
	if n, err := r.Read(probe[:]); n > 0 {
		return fmt.Errorf("%w: entry %s source longer than %d bytes", ErrEntrySizeMismatch, name, size)
	} else if err != nil && err != io.EOF {
		return fmt.Errorf("write entry %s: %w", name, err)
	}

	if _, err := w.stack.top.Write(digest.Sum(nil)); err != nil {
		return fmt.Errorf("write entry digest: %w", err)
	}

	w.entries++
	return nil
}

// Entries returns the number of entries written so far.
func (w *Writer) Entries() int {
	if w == nil {
		return 0
	}

	return w.entries
}

// Finalize writes the end marker and flushes every layer.
// It must be called exactly once; the archive is unusable without it.
func (w *Writer) Finalize() error {
	if w == nil {
		return ErrNilWriter
	}
	if w.finalized {
		return ErrFinalized
	}
	w.finalized = true

	if _, err := w.stack.top.Write([]byte{opEnd}); err != nil {
		return fmt.Errorf("write end marker: %w", err)
	}

	if err := w.stack.close(); err != nil {
		return err
	}

	if err := w.dst.Flush(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("sync archive file: %w", err)
		}

		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close archive file: %w", err)
		}
	}

	return nil
}
