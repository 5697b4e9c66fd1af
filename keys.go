// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
)

// PEM block types accepted for key material.
const (
	pemTypePrivate = "PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"
)

// GenerateKeyPair generates a fresh X25519 keypair from the given entropy source.
func GenerateKeyPair(entropy io.Reader) (*ecdh.PrivateKey, error) {
	if entropy == nil {
		entropy = rand.Reader
	}

	key, err := ecdh.X25519().GenerateKey(entropy)
	if err != nil {
		return nil, fmt.Errorf("generate X25519 key: %w", err)
	}

	return key, nil
}

// WriteKeyPair writes the private key in DER form to basePath and the public
// key in PEM form to basePath+".pub".
func WriteKeyPair(basePath string, key *ecdh.PrivateKey) error {
	if key == nil {
		return ErrInvalidKeyFormat
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(key.PublicKey())
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	// Private key stays in DER to avoid accidental copy-paste exposure;
	// the public key is PEM for text-based configs.
	if err := os.WriteFile(basePath, privDER, 0o600); err != nil {
		return fmt.Errorf("write private key %s: %w", basePath, err)
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: pubDER})
	if err := os.WriteFile(basePath+".pub", pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key %s.pub: %w", basePath, err)
	}

	return nil
}

// ParsePrivateKey parses an X25519 private key from PEM or DER PKCS#8 data.
func ParsePrivateKey(data []byte) (*ecdh.PrivateKey, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != pemTypePrivate {
			return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKeyFormat, block.Type)
		}

		der = block.Bytes
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	key, ok := parsed.(*ecdh.PrivateKey)
	if !ok || key.Curve() != ecdh.X25519() {
		return nil, fmt.Errorf("%w: not an X25519 private key", ErrInvalidKeyFormat)
	}

	return key, nil
}

// ParsePublicKey parses an X25519 public key from PEM or DER PKIX data.
func ParsePublicKey(data []byte) (*ecdh.PublicKey, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != pemTypePublic {
			return nil, fmt.Errorf("%w: unexpected PEM type %q", ErrInvalidKeyFormat, block.Type)
		}

		der = block.Bytes
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyFormat, err)
	}

	key, ok := parsed.(*ecdh.PublicKey)
	if !ok || key.Curve() != ecdh.X25519() {
		return nil, fmt.Errorf("%w: not an X25519 public key", ErrInvalidKeyFormat)
	}

	return key, nil
}

// LoadPrivateKeyFile reads and parses one X25519 private key file.
func LoadPrivateKeyFile(path string) (*ecdh.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}

	key, err := ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}

	return key, nil
}

// LoadPublicKeyFile reads and parses one X25519 public key file.
func LoadPublicKeyFile(path string) (*ecdh.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key %s: %w", path, err)
	}

	key, err := ParsePublicKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key %s: %w", path, err)
	}

	return key, nil
}
