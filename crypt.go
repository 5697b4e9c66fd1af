// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Encryption layer sizes and limits.
const (
	// keySize is the X25519 key and file key size in bytes.
	keySize = 32
	// wrappedKeySize is one sealed file key: key bytes plus AEAD tag.
	wrappedKeySize = keySize + chacha20poly1305.Overhead
	// maxRecipients bounds the recipient table accepted from untrusted input.
	maxRecipients = 1024
	// maxCipherChunk bounds one ciphertext chunk accepted from untrusted input.
	maxCipherChunk = chunkSize + chacha20poly1305.Overhead
)

// HKDF info strings separating key-wrap and stream key domains.
const (
	infoKeyWrap   = "mla/v1 key wrap"
	infoStreamKey = "mla/v1 stream key"
)

// deriveKey expands one 32-byte key from secret material via HKDF-SHA256.
func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	out := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	return out, nil
}

// wrapFileKey seals the file key for every recipient under an ephemeral X25519 exchange.
func wrapFileKey(fileKey []byte, recipients []*ecdh.PublicKey) (ephemeralPub []byte, wrapped [][]byte, err error) {
	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	ephemeralPub = ephemeral.PublicKey().Bytes()
	wrapped = make([][]byte, 0, len(recipients))
	var zeroNonce [chacha20poly1305.NonceSize]byte
	for _, pub := range recipients {
		shared, err := ephemeral.ECDH(pub)
		if err != nil {
			return nil, nil, fmt.Errorf("key exchange: %w", err)
		}

		kek, err := deriveKey(shared, append(append([]byte(nil), ephemeralPub...), pub.Bytes()...), infoKeyWrap)
		if err != nil {
			return nil, nil, err
		}

		aead, err := chacha20poly1305.New(kek)
		if err != nil {
			return nil, nil, fmt.Errorf("init key wrap cipher: %w", err)
		}

		wrapped = append(wrapped, aead.Seal(nil, zeroNonce[:], fileKey, nil))
	}

	return ephemeralPub, wrapped, nil
}

// unwrapFileKey recovers the file key by trying every candidate private key
// against every wrapped key blob.
func unwrapFileKey(fh *fileHeader, candidates []*ecdh.PrivateKey) ([]byte, error) {
	ephPub, err := ecdh.X25519().NewPublicKey(fh.ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ephemeral key", ErrInvalidHeader)
	}

	var zeroNonce [chacha20poly1305.NonceSize]byte
	for _, priv := range candidates {
		if priv == nil {
			continue
		}

		shared, err := priv.ECDH(ephPub)
		if err != nil {
			continue
		}

		salt := append(append([]byte(nil), fh.ephemeralPub...), priv.PublicKey().Bytes()...)
		kek, err := deriveKey(shared, salt, infoKeyWrap)
		if err != nil {
			continue
		}

		aead, err := chacha20poly1305.New(kek)
		if err != nil {
			continue
		}

		for _, wk := range fh.wrappedKeys {
			fileKey, err := aead.Open(nil, zeroNonce[:], wk, nil)
			if err == nil {
				return fileKey, nil
			}
		}
	}

	return nil, ErrNoMatchingKey
}

// newStreamAEAD builds the chunk cipher from the unwrapped file key.
func newStreamAEAD(fileKey, ephemeralPub []byte) (cipher.AEAD, error) {
	streamKey, err := deriveKey(fileKey, ephemeralPub, infoStreamKey)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(streamKey)
	if err != nil {
		return nil, fmt.Errorf("init stream cipher: %w", err)
	}

	return aead, nil
}

// chunkNonce encodes the chunk counter into an AEAD nonce.
func chunkNonce(counter uint64) [chacha20poly1305.NonceSize]byte {
	var nonce [chacha20poly1305.NonceSize]byte
	binary.LittleEndian.PutUint64(nonce[:8], counter)
	return nonce
}

// encryptWriter seals fixed-size plaintext chunks into length-prefixed ciphertext.
type encryptWriter struct {
	w       io.Writer
	aead    cipher.AEAD
	buf     []byte
	n       int
	counter uint64
}

// newEncryptWriter wraps dst with the chunked AEAD encryption layer.
func newEncryptWriter(dst io.Writer, aead cipher.AEAD) *encryptWriter {
	return &encryptWriter{
		w:    dst,
		aead: aead,
		buf:  make([]byte, chunkSize),
	}
}

// Write buffers plaintext and seals full chunks.
func (e *encryptWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := copy(e.buf[e.n:], p)
		e.n += n
		p = p[n:]
		total += n

		if e.n == len(e.buf) {
			if err := e.flushChunk(); err != nil {
				return total, err
			}
		}
	}

	return total, nil
}

// Close seals the trailing partial chunk.
func (e *encryptWriter) Close() error {
	if e.n > 0 {
		return e.flushChunk()
	}

	return nil
}

// flushChunk seals and writes one buffered chunk.
func (e *encryptWriter) flushChunk() error {
	nonce := chunkNonce(e.counter)
	ct := e.aead.Seal(nil, nonce[:], e.buf[:e.n], nil)
	e.counter++
	e.n = 0

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(ct)))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("write chunk length: %w", err)
	}

	if _, err := e.w.Write(ct); err != nil {
		return fmt.Errorf("write chunk: %w", err)
	}

	return nil
}

// decryptReader opens length-prefixed ciphertext chunks into a plaintext stream.
type decryptReader struct {
	r       io.Reader
	aead    cipher.AEAD
	buf     []byte
	off     int
	counter uint64
}

// newDecryptReader wraps src with the chunked AEAD decryption layer.
func newDecryptReader(src io.Reader, aead cipher.AEAD) *decryptReader {
	return &decryptReader{r: src, aead: aead}
}

// Read serves decrypted bytes, opening the next chunk on demand.
func (d *decryptReader) Read(p []byte) (int, error) {
	for d.off >= len(d.buf) {
		if err := d.readChunk(); err != nil {
			return 0, err
		}
	}

	n := copy(p, d.buf[d.off:])
	d.off += n
	return n, nil
}

// readChunk reads and authenticates the next ciphertext chunk.
func (d *decryptReader) readChunk() error {
	var hdr [4]byte
	if _, err := io.ReadFull(d.r, hdr[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}

		return fmt.Errorf("read chunk length: %w", io.ErrUnexpectedEOF)
	}

	ctLen := binary.LittleEndian.Uint32(hdr[:])
	if ctLen < chacha20poly1305.Overhead || ctLen > maxCipherChunk {
		return fmt.Errorf("%w: ciphertext chunk length %d", ErrCorruptChunk, ctLen)
	}

	ct := make([]byte, ctLen)
	if _, err := io.ReadFull(d.r, ct); err != nil {
		return fmt.Errorf("read chunk: %w", io.ErrUnexpectedEOF)
	}

	nonce := chunkNonce(d.counter)
	plain, err := d.aead.Open(nil, nonce[:], ct, nil)
	if err != nil {
		return fmt.Errorf("%w: chunk %d failed authentication", ErrCorruptChunk, d.counter)
	}

	d.counter++
	d.buf = plain
	d.off = 0
	return nil
}
