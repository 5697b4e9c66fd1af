// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import "errors"

// Sentinel errors for MLA operations. Use errors.Is in callers.
var (
	// ErrInvalidHeader means the file is missing or has a bad MLA header.
	ErrInvalidHeader = errors.New("invalid MLA file: missing or bad header")
	// ErrUnsupportedVersion means the archive format version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported MLA format version")
	// ErrUnknownLayer means the layer selection contains an unknown layer name.
	ErrUnknownLayer = errors.New("unknown layer")
	// ErrUnknownCodec means the compression codec id is not supported.
	ErrUnknownCodec = errors.New("unknown compression codec")
	// ErrInvalidCompressionLevel means the compression level is outside [0, 11].
	ErrInvalidCompressionLevel = errors.New("compression level must be in [0, 11]")
	// ErrInvalidCompressRules means one or more compression path rules are invalid.
	ErrInvalidCompressRules = errors.New("invalid compress rules")
	// ErrNoRecipients means the encrypt layer is enabled without any public key.
	ErrNoRecipients = errors.New("encrypt layer requires at least one recipient public key")
	// ErrNoMatchingKey means none of the candidate private keys unwraps the file key.
	ErrNoMatchingKey = errors.New("no candidate private key matches the archive")
	// ErrInvalidKeyFormat means key material is not a valid X25519 key in PEM or DER form.
	ErrInvalidKeyFormat = errors.New("invalid X25519 key format")
	// ErrNilReader means the reader is nil.
	ErrNilReader = errors.New("reader is nil")
	// ErrNilWriter means the writer is nil.
	ErrNilWriter = errors.New("writer is nil")
	// ErrClosed means the reader or resource is already closed.
	ErrClosed = errors.New("reader or resource already closed")
	// ErrFinalized means the writer is already finalized.
	ErrFinalized = errors.New("writer already finalized")
	// ErrEntryNotFound means the entry is not found in the archive index.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryNameTooLong means the entry name exceeds the maximum length.
	ErrEntryNameTooLong = errors.New("entry name exceeds maximum length")
	// ErrInvalidEntryName means the entry name is empty or contains NUL bytes.
	ErrInvalidEntryName = errors.New("invalid entry name")
	// ErrEntrySizeMismatch means the entry source yielded fewer or more bytes than declared.
	ErrEntrySizeMismatch = errors.New("entry source size does not match declared size")
	// ErrDigestMismatch means a stored entry digest does not match the payload.
	ErrDigestMismatch = errors.New("entry digest mismatch")
	// ErrCorruptChunk means one layer chunk failed authentication or decoding.
	ErrCorruptChunk = errors.New("corrupt layer chunk")
	// ErrCorruptBlock means the entry block stream contains an unknown block type.
	ErrCorruptBlock = errors.New("corrupt block stream")
	// ErrInvalidGlobPattern means a supplied glob pattern does not compile.
	ErrInvalidGlobPattern = errors.New("invalid glob pattern")
	// ErrPathTraversal means an entry name contains a parent-directory component.
	ErrPathTraversal = errors.New("entry name contains a parent-directory component")
	// ErrPathEscapesRoot means the resolved extraction path escapes the output root.
	ErrPathEscapesRoot = errors.New("extraction path escapes output root")
)
