// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// magic identifies an MLA container file.
var magic = [4]byte{'M', 'L', 'A', '1'}

// fileHeader is the parsed fixed header plus the optional encryption header.
type fileHeader struct {
	// wrappedKeys are per-recipient sealed copies of the file key.
	wrappedKeys [][]byte
	// ephemeralPub is the writer's ephemeral X25519 public key.
	ephemeralPub []byte
	// dataStart is the absolute offset of the first layered stream byte.
	dataStart int64
	// layers are the enabled layer flags.
	layers Layers
	// codec is the compression codec id.
	codec Codec
	// version is the format version byte.
	version byte
}

// encodeFileHeader writes the fixed header and optional encryption header.
func encodeFileHeader(w io.Writer, layers Layers, codec Codec, ephemeralPub []byte, wrappedKeys [][]byte) error {
	var hdr [headerSize]byte
	copy(hdr[:4], magic[:])
	hdr[4] = formatVersion
	hdr[5] = byte(layers)
	hdr[6] = byte(codec)
	hdr[7] = 0

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	if !layers.Has(LayerEncrypt) {
		return nil
	}

	if _, err := w.Write(ephemeralPub); err != nil {
		return fmt.Errorf("write ephemeral key: %w", err)
	}

	var count [4]byte
	binary.LittleEndian.PutUint32(count[:], uint32(len(wrappedKeys)))
	if _, err := w.Write(count[:]); err != nil {
		return fmt.Errorf("write recipient count: %w", err)
	}

	for _, wk := range wrappedKeys {
		if _, err := w.Write(wk); err != nil {
			return fmt.Errorf("write wrapped key: %w", err)
		}
	}

	return nil
}

// parseFileHeader reads and validates the header section from a random-access source.
func parseFileHeader(ra io.ReaderAt, size int64) (*fileHeader, error) {
	if size < headerSize {
		return nil, fmt.Errorf("%w: short header", ErrInvalidHeader)
	}

	var hdr [headerSize]byte
	if _, err := ra.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	if [4]byte(hdr[:4]) != magic {
		return nil, ErrInvalidHeader
	}

	if hdr[4] != formatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, hdr[4])
	}

	fh := &fileHeader{
		version: hdr[4],
		layers:  Layers(hdr[5]),
		codec:   Codec(hdr[6]),
	}
	if fh.layers&^(LayerCompress|LayerEncrypt) != 0 {
		return nil, fmt.Errorf("%w: flags 0x%02x", ErrUnknownLayer, hdr[5])
	}

	off := int64(headerSize)
	if fh.layers.Has(LayerEncrypt) {
		var encFixed [keySize + 4]byte
		if _, err := ra.ReadAt(encFixed[:], off); err != nil {
			return nil, fmt.Errorf("%w: short encryption header", ErrInvalidHeader)
		}

		fh.ephemeralPub = append([]byte(nil), encFixed[:keySize]...)
		count := binary.LittleEndian.Uint32(encFixed[keySize:])
		if count == 0 || count > maxRecipients {
			return nil, fmt.Errorf("%w: recipient count %d", ErrInvalidHeader, count)
		}

		off += keySize + 4
		fh.wrappedKeys = make([][]byte, 0, count)
		for i := uint32(0); i < count; i++ {
			wk := make([]byte, wrappedKeySize)
			if _, err := ra.ReadAt(wk, off); err != nil {
				return nil, fmt.Errorf("%w: short wrapped key", ErrInvalidHeader)
			}

			fh.wrappedKeys = append(fh.wrappedKeys, wk)
			off += wrappedKeySize
		}
	}

	fh.dataStart = off
	return fh, nil
}

// validateEntryName rejects names that cannot be stored in the entry block stream.
func validateEntryName(name string) error {
	if name == "" {
		return ErrInvalidEntryName
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidEntryName, name)
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrEntryNameTooLong, name[:64])
	}

	return nil
}
