// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"crypto/cipher"
	"fmt"
	"io"
)

// writeStack is the assembled layer chain above an output destination.
type writeStack struct {
	// top is the block stream target.
	top io.Writer
	// comp exposes the raw-mode toggle when the compress layer is present.
	comp *compressWriter
	// closers flush layers innermost-first.
	closers []io.Closer
}

// buildWriteStack wraps dst with the enabled layers.
func buildWriteStack(dst io.Writer, opts WriterOptions, aead cipher.AEAD) (*writeStack, error) {
	stack := &writeStack{top: dst}

	if opts.Layers.Has(LayerEncrypt) {
		ew := newEncryptWriter(stack.top, aead)
		stack.top = ew
		stack.closers = append([]io.Closer{ew}, stack.closers...)
	}

	if opts.Layers.Has(LayerCompress) {
		codec, err := newChunkCodec(opts.Codec, opts.CompressionLevel)
		if err != nil {
			return nil, err
		}

		cw := newCompressWriter(stack.top, codec)
		stack.top = cw
		stack.comp = cw
		stack.closers = append([]io.Closer{cw}, stack.closers...)
	}

	return stack, nil
}

// close flushes every layer innermost-first.
func (s *writeStack) close() error {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			return fmt.Errorf("flush layer: %w", err)
		}
	}

	return nil
}

// buildReadStack wraps src with the decode chain matching the parsed header.
func buildReadStack(src io.Reader, fh *fileHeader, fileKey []byte) (io.Reader, error) {
	r := src

	if fh.layers.Has(LayerEncrypt) {
		aead, err := newStreamAEAD(fileKey, fh.ephemeralPub)
		if err != nil {
			return nil, err
		}

		r = newDecryptReader(r, aead)
	}

	if fh.layers.Has(LayerCompress) {
		codec, err := newChunkCodec(fh.codec, DefaultCompressionLevel)
		if err != nil {
			return nil, err
		}

		r = newDecompressReader(r, codec)
	}

	return r, nil
}
