// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"crypto/ecdh"
	"fmt"

	"github.com/woozymasta/pathrules"
)

// Internal binary layout and format limits.
const (
	headerSize    = 8         // fixed MLA header size in bytes
	formatVersion = 1         // current MLA format version
	digestSize    = 32        // SHA-256 digest size stored per entry
	maxNameLen    = 4096      // max entry name length in bytes
	chunkSize     = 64 * 1024 // plaintext chunk size for layered streams
	// maxChunkDecoded bounds decoded chunk size accepted from untrusted input.
	maxChunkDecoded = 4 * 1024 * 1024
)

// Default tuning values.
const (
	// DefaultCompressionLevel balances speed and density across codecs.
	DefaultCompressionLevel = 5
	// MaxCompressionLevel is the highest accepted compression level.
	MaxCompressionLevel = 11
)

// Block stream opcodes.
const (
	// opEnd terminates the entry block stream; it is the archive's logical end marker.
	opEnd byte = 0x00
	// opEntry starts one entry block: name length, name, size, payload, digest.
	opEntry byte = 0x01
)

// Layers is a bitmask of enabled archive layers.
type Layers uint8

// Archive layer flags.
const (
	// LayerCompress enables the chunked compression layer.
	LayerCompress Layers = 1 << 0
	// LayerEncrypt enables the chunked AEAD encryption layer.
	LayerEncrypt Layers = 1 << 1
)

// Has reports whether all given layer bits are enabled.
func (l Layers) Has(flag Layers) bool {
	return l&flag == flag
}

// ParseLayers converts layer names ("compress", "encrypt") to a Layers mask.
func ParseLayers(names []string) (Layers, error) {
	var layers Layers
	for _, name := range names {
		switch name {
		case "compress":
			layers |= LayerCompress
		case "encrypt":
			layers |= LayerEncrypt
		default:
			return 0, fmt.Errorf("%w: %q", ErrUnknownLayer, name)
		}
	}

	return layers, nil
}

// Codec identifies the compression codec used by the compress layer.
type Codec uint8

// Compression codecs.
const (
	// CodecNone means the compress layer is absent.
	CodecNone Codec = 0
	// CodecZstd selects Zstandard chunk compression.
	CodecZstd Codec = 1
	// CodecLZ4 selects LZ4 block chunk compression.
	CodecLZ4 Codec = 2
	// CodecLZSS selects LZSS chunk compression.
	CodecLZSS Codec = 3
)

// ParseCodec converts a codec name to its Codec id.
func ParseCodec(name string) (Codec, error) {
	switch name {
	case "", "zstd":
		return CodecZstd, nil
	case "lz4":
		return CodecLZ4, nil
	case "lzss":
		return CodecLZSS, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// String returns the codec name.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	case CodecLZSS:
		return "lzss"
	default:
		return "unknown"
	}
}

// EntryInfo describes one archived entry from the reader's scan table.
type EntryInfo struct {
	// Name is the entry name as stored in the archive.
	Name string `json:"name" yaml:"name"`
	// Size is the entry payload size in bytes.
	Size uint64 `json:"size" yaml:"size"`
	// Digest is the SHA-256 digest of the entry payload.
	Digest [digestSize]byte `json:"digest" yaml:"digest"`
}

// WriterOptions configures archive writer behavior.
type WriterOptions struct {
	// RecipientKeys are X25519 public keys able to decrypt the archive.
	// Required when LayerEncrypt is enabled.
	RecipientKeys []*ecdh.PublicKey `json:"-" yaml:"-"`
	// CompressRules optionally restricts which entries go through codec
	// compression; excluded entries are stored in raw chunks.
	CompressRules []pathrules.Rule `json:"compress_rules,omitempty" yaml:"compress_rules,omitempty"`
	// CompressMatcherOptions control compression path rule matching.
	CompressMatcherOptions pathrules.MatcherOptions `json:"compress_matcher_options,omitzero" yaml:"compress_matcher_options,omitzero"`
	// Layers selects enabled layers; zero means a plain container.
	Layers Layers `json:"layers,omitempty" yaml:"layers,omitempty"`
	// Codec selects the compression codec; zero means CodecZstd when
	// LayerCompress is enabled.
	Codec Codec `json:"codec,omitempty" yaml:"codec,omitempty"`
	// CompressionLevel is the codec level in [0, 11].
	CompressionLevel int `json:"compression_level,omitempty" yaml:"compression_level,omitempty"`
}

// ReaderOptions configures archive reader behavior.
type ReaderOptions struct {
	// PrivateKeys are candidate X25519 private keys tried against each
	// wrapped file key of an encrypted archive.
	PrivateKeys []*ecdh.PrivateKey `json:"-" yaml:"-"`
	// SkipDigestCheck disables payload digest verification during the open scan.
	SkipDigestCheck bool `json:"skip_digest_check,omitempty" yaml:"skip_digest_check,omitempty"`
}

// ExtractOptions configures extraction orchestration behavior.
type ExtractOptions struct {
	// OnEntryDone is called after one entry is fully written to disk.
	OnEntryDone func(name string, written int64, outputPath string) `json:"-" yaml:"-"`
	// OnSkip is called when one entry is rejected or fails and is skipped.
	OnSkip func(name string, reason error) `json:"-" yaml:"-"`
}

// ConvertOptions configures archive-to-archive conversion behavior.
type ConvertOptions struct {
	// OnEntryDone is called after one entry is fully written to the output archive.
	OnEntryDone func(name string, size uint64) `json:"-" yaml:"-"`
	// OnSkip is called when one source entry cannot be read and is skipped.
	OnSkip func(name string, reason error) `json:"-" yaml:"-"`
}

// applyDefaults fills zero-valued writer options with defaults.
func (opts *WriterOptions) applyDefaults() {
	if opts.Layers.Has(LayerCompress) && opts.Codec == CodecNone {
		opts.Codec = CodecZstd
	}

	if opts.CompressMatcherOptions == (pathrules.MatcherOptions{}) {
		opts.CompressMatcherOptions = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionInclude,
		}
	}

	if opts.CompressMatcherOptions.DefaultAction == pathrules.ActionUnknown {
		opts.CompressMatcherOptions.DefaultAction = pathrules.ActionInclude
	}
}

// validate rejects inconsistent writer configuration before any I/O.
func (opts *WriterOptions) validate() error {
	if opts.Layers&^(LayerCompress|LayerEncrypt) != 0 {
		return ErrUnknownLayer
	}

	if opts.CompressionLevel < 0 || opts.CompressionLevel > MaxCompressionLevel {
		return ErrInvalidCompressionLevel
	}

	if opts.Layers.Has(LayerCompress) {
		switch opts.Codec {
		case CodecZstd, CodecLZ4, CodecLZSS:
		default:
			return ErrUnknownCodec
		}
	}

	if opts.Layers.Has(LayerEncrypt) && len(opts.RecipientKeys) == 0 {
		return ErrNoRecipients
	}

	return nil
}
