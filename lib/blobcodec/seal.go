// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobcodec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// Sealer encrypts blobs to a single age X25519 identity and decrypts
// them with it. The same server holds both halves: sealing protects
// content files copied off the host, not content in memory.
type Sealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewSealer parses an AGE-SECRET-KEY-1... identity.
func NewSealer(identity string) (*Sealer, error) {
	parsed, err := age.ParseX25519Identity(identity)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: parsing age identity: %w", err)
	}
	return &Sealer{identity: parsed, recipient: parsed.Recipient()}, nil
}

// LoadSealer reads an age identity file (as written by age-keygen:
// comment lines followed by one AGE-SECRET-KEY line).
func LoadSealer(path string) (*Sealer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: parsing identity file %s: %w", path, err)
	}
	if len(identities) != 1 {
		return nil, fmt.Errorf("blobcodec: identity file %s holds %d identities, want 1", path, len(identities))
	}
	x25519, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("blobcodec: identity file %s does not hold an X25519 identity", path)
	}
	return &Sealer{identity: x25519, recipient: x25519.Recipient()}, nil
}

// GenerateIdentity returns a fresh identity in AGE-SECRET-KEY form,
// together with its public recipient string.
func GenerateIdentity() (identity, recipient string, err error) {
	generated, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("blobcodec: generating age identity: %w", err)
	}
	return generated.String(), generated.Recipient().String(), nil
}

// Recipient returns the public key blobs are sealed to.
func (s *Sealer) Recipient() string { return s.recipient.String() }

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, s.recipient)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("blobcodec: sealing: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("blobcodec: finalizing seal: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Open decrypts a blob produced by Seal.
func (s *Sealer) Open(ciphertext []byte) ([]byte, error) {
	if s == nil {
		return nil, errors.New("blobcodec: blob is sealed but no identity is configured")
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), s.identity)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: opening sealed blob: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: reading sealed blob: %w", err)
	}
	return plaintext, nil
}
