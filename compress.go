// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/woozymasta/lzss"
)

// chunkCodec compresses and decompresses one chunk at a time.
type chunkCodec interface {
	// compress returns the compressed chunk, or nil when compression does not
	// shrink the input.
	compress(src []byte) ([]byte, error)
	// decompress expands one compressed chunk to exactly origLen bytes.
	decompress(src []byte, origLen int) ([]byte, error)
}

// newChunkCodec builds the codec for the given id and compression level.
func newChunkCodec(codec Codec, level int) (chunkCodec, error) {
	switch codec {
	case CodecZstd:
		return newZstdCodec(level)
	case CodecLZ4:
		return newLZ4Codec(level), nil
	case CodecLZSS:
		return lzssCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: id %d", ErrUnknownCodec, codec)
	}
}

// zstdCodec implements chunkCodec over Zstandard.
type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// zstdLevel maps the [0, 11] level scale onto zstd encoder levels.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 2:
		return zstd.SpeedFastest
	case level <= 5:
		return zstd.SpeedDefault
	case level <= 8:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// newZstdCodec builds a zstd chunk codec for the given level.
func newZstdCodec(level int) (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstdLevel(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("init zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}

	return &zstdCodec{enc: enc, dec: dec}, nil
}

// compress encodes one chunk with zstd.
func (c *zstdCodec) compress(src []byte) ([]byte, error) {
	out := c.enc.EncodeAll(src, nil)
	if len(out) >= len(src) {
		return nil, nil
	}

	return out, nil
}

// decompress decodes one zstd chunk and enforces the declared original length.
func (c *zstdCodec) decompress(src []byte, origLen int) ([]byte, error) {
	out, err := c.dec.DecodeAll(src, make([]byte, 0, origLen))
	if err != nil {
		return nil, fmt.Errorf("%w: zstd: %w", ErrCorruptChunk, err)
	}
	if len(out) != origLen {
		return nil, fmt.Errorf("%w: zstd chunk decoded to %d bytes, want %d", ErrCorruptChunk, len(out), origLen)
	}

	return out, nil
}

// lz4Codec implements chunkCodec over LZ4 block compression.
type lz4Codec struct {
	level lz4.CompressionLevel
}

// lz4Level maps the [0, 11] level scale onto LZ4 compression levels.
func lz4Level(level int) lz4.CompressionLevel {
	switch {
	case level <= 0:
		return lz4.Fast
	case level >= 9:
		return lz4.Level9
	default:
		return lz4.CompressionLevel(1 << (8 + level))
	}
}

// newLZ4Codec builds an LZ4 chunk codec for the given level.
func newLZ4Codec(level int) lz4Codec {
	return lz4Codec{level: lz4Level(level)}
}

// compress encodes one chunk with LZ4.
func (c lz4Codec) compress(src []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(src)))

	var (
		n   int
		err error
	)
	if c.level == lz4.Fast {
		var comp lz4.Compressor
		n, err = comp.CompressBlock(src, dst)
	} else {
		comp := lz4.CompressorHC{Level: c.level}
		n, err = comp.CompressBlock(src, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(src) {
		// Incompressible chunk.
		return nil, nil
	}

	return dst[:n], nil
}

// decompress decodes one LZ4 chunk and enforces the declared original length.
func (c lz4Codec) decompress(src []byte, origLen int) ([]byte, error) {
	dst := make([]byte, origLen)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %w", ErrCorruptChunk, err)
	}
	if n != origLen {
		return nil, fmt.Errorf("%w: lz4 chunk decoded to %d bytes, want %d", ErrCorruptChunk, n, origLen)
	}

	return dst, nil
}

// lzssCodec implements chunkCodec over LZSS.
type lzssCodec struct{}

// compress encodes one chunk with LZSS.
func (lzssCodec) compress(src []byte) ([]byte, error) {
	out, err := lzss.Compress(src, lzss.DefaultCompressOptions())
	if err != nil {
		return nil, fmt.Errorf("lzss compress: %w", err)
	}
	if len(out) >= len(src) {
		return nil, nil
	}

	return out, nil
}

// decompress decodes one LZSS chunk and enforces the declared original length.
func (lzssCodec) decompress(src []byte, origLen int) ([]byte, error) {
	var dst bytes.Buffer
	dst.Grow(origLen)
	if _, err := lzss.DecompressToWriter(&dst, bytes.NewReader(src), origLen, nil); err != nil {
		return nil, fmt.Errorf("%w: lzss: %w", ErrCorruptChunk, err)
	}
	if dst.Len() != origLen {
		return nil, fmt.Errorf("%w: lzss chunk decoded to %d bytes, want %d", ErrCorruptChunk, dst.Len(), origLen)
	}

	return dst.Bytes(), nil
}

// compressWriter frames buffered chunks as compLen/origLen records.
// Chunks that do not shrink, and chunks written while raw mode is set,
// are stored verbatim with compLen == origLen.
type compressWriter struct {
	w     io.Writer
	codec chunkCodec
	buf   []byte
	n     int
	raw   bool
}

// newCompressWriter wraps dst with the chunked compression layer.
func newCompressWriter(dst io.Writer, codec chunkCodec) *compressWriter {
	return &compressWriter{
		w:     dst,
		codec: codec,
		buf:   make([]byte, chunkSize),
	}
}

// setRaw toggles raw storage for chunks flushed from this point on.
func (c *compressWriter) setRaw(raw bool) {
	c.raw = raw
}

// Write buffers plaintext and frames full chunks.
func (c *compressWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := copy(c.buf[c.n:], p)
		c.n += n
		p = p[n:]
		total += n

		if c.n == len(c.buf) {
			if err := c.flushChunk(); err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

// Close frames the trailing partial chunk.
func (c *compressWriter) Close() error {
	if c.n > 0 {
		return c.flushChunk()
	}

	return nil
}

// flushChunk compresses and writes one buffered chunk.
func (c *compressWriter) flushChunk() error {
	src := c.buf[:c.n]
	c.n = 0

	var compressed []byte
	if !c.raw {
		out, err := c.codec.compress(src)
		if err != nil {
			return err
		}

		compressed = out
	}

	payload := src
	if compressed != nil {
		payload = compressed
	}

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(src)))
	if _, err := c.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write chunk header: %w", err)
	}

	if _, err := c.w.Write(payload); err != nil {
		return fmt.Errorf("write chunk payload: %w", err)
	}

	return nil
}

// decompressReader expands compLen/origLen framed chunks into a plain stream.
type decompressReader struct {
	r     io.Reader
	codec chunkCodec
	buf   []byte
	off   int
}

// newDecompressReader wraps src with the chunked decompression layer.
func newDecompressReader(src io.Reader, codec chunkCodec) *decompressReader {
	return &decompressReader{r: src, codec: codec}
}

// Read serves decompressed bytes, expanding the next chunk on demand.
func (d *decompressReader) Read(p []byte) (int, error) {
	for d.off >= len(d.buf) {
		if err := d.readChunk(); err != nil {
			return 0, err
		}
	}

	n := copy(p, d.buf[d.off:])
	d.off += n
	return n, nil
}

// readChunk reads and expands the next framed chunk.
func (d *decompressReader) readChunk() error {
	var hdr [8]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}

		return fmt.Errorf("read chunk header: %w", io.ErrUnexpectedEOF)
	}

	compLen := binary.LittleEndian.Uint32(hdr[0:4])
	origLen := binary.LittleEndian.Uint32(hdr[4:8])
	if compLen == 0 || origLen == 0 || compLen > origLen || origLen > maxChunkDecoded {
		return fmt.Errorf("%w: chunk lengths %d/%d", ErrCorruptChunk, compLen, origLen)
	}

	payload := make([]byte, compLen)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return fmt.Errorf("read chunk payload: %w", io.ErrUnexpectedEOF)
	}

	if compLen == origLen {
		d.buf = payload
		d.off = 0
		return nil
	}

	out, err := d.codec.decompress(payload, int(origLen))
	if err != nil {
		return err
	}

	d.buf = out
	d.off = 0
	return nil
}
