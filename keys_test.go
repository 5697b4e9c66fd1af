// SPDX-License-Identifier: MIT
// Copyright (c) 2026 MLA authors
// Source: github.com/commial/MLA

package mla

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"path/filepath"
	"testing"
)

func TestKeyPairRoundTrip(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	base := filepath.Join(t.TempDir(), "archive_key")
	if err := WriteKeyPair(base, key); err != nil {
		t.Fatalf("WriteKeyPair: %v", err)
	}

	priv, err := LoadPrivateKeyFile(base)
	if err != nil {
		t.Fatalf("LoadPrivateKeyFile: %v", err)
	}
	if !priv.Equal(key) {
		t.Fatal("loaded private key differs from generated key")
	}

	pub, err := LoadPublicKeyFile(base + ".pub")
	if err != nil {
		t.Fatalf("LoadPublicKeyFile: %v", err)
	}
	if !pub.Equal(key.PublicKey()) {
		t.Fatal("loaded public key differs from generated key")
	}
}

func TestParsePrivateKeyAcceptsPEM(t *testing.T) {
	t.Parallel()

	key := testKey(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey: %v", err)
	}

	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	parsed, err := ParsePrivateKey(pemData)
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if !parsed.Equal(key) {
		t.Fatal("parsed key differs from generated key")
	}
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParsePrivateKey([]byte("not a key")); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("ParsePrivateKey: got %v, want %v", err, ErrInvalidKeyFormat)
	}
	if _, err := ParsePublicKey([]byte("not a key")); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("ParsePublicKey: got %v, want %v", err, ErrInvalidKeyFormat)
	}

	wrongType := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}})
	if _, err := ParsePrivateKey(wrongType); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Fatalf("ParsePrivateKey wrong PEM type: got %v, want %v", err, ErrInvalidKeyFormat)
	}
}
