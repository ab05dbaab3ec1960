// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// ErrBadCredentials is returned by an Authenticator that rejects the
// presented credentials. Implementations must not reveal whether the
// username or the token was wrong.
var ErrBadCredentials = errors.New("invalid username or token")

// Authenticator verifies client credentials and returns the granted
// roles.
type Authenticator interface {
	Authenticate(ctx context.Context, username, token string) (Role, error)
}

// Credential is one pre-provisioned user.
type Credential struct {
	Username string
	// TokenDigest is the lowercase hex BLAKE3-256 digest of the
	// user's token (see [DigestToken]). Plaintext tokens are never
	// stored.
	TokenDigest string
	Roles       Role
}

// StaticAuthenticator authenticates against a fixed credential table.
type StaticAuthenticator struct {
	credentials map[string]Credential
}

// NewStaticAuthenticator builds an authenticator from credentials.
// Duplicate usernames and malformed digests are rejected.
func NewStaticAuthenticator(credentials []Credential) (*StaticAuthenticator, error) {
	table := make(map[string]Credential, len(credentials))
	for _, credential := range credentials {
		if credential.Username == "" {
			return nil, errors.New("session: credential with empty username")
		}
		if _, exists := table[credential.Username]; exists {
			return nil, fmt.Errorf("session: duplicate credential for %q", credential.Username)
		}
		digest, err := hex.DecodeString(credential.TokenDigest)
		if err != nil || len(digest) != 32 {
			return nil, fmt.Errorf("session: credential %q: token digest must be 64 hex characters", credential.Username)
		}
		if credential.Roles == 0 {
			return nil, fmt.Errorf("session: credential %q grants no roles", credential.Username)
		}
		table[credential.Username] = credential
	}
	return &StaticAuthenticator{credentials: table}, nil
}

// Authenticate checks token against the stored digest for username.
func (a *StaticAuthenticator) Authenticate(_ context.Context, username, token string) (Role, error) {
	credential, ok := a.credentials[username]
	if !ok {
		// Hash anyway so unknown users cost the same as wrong tokens.
		_ = DigestToken(token)
		return 0, ErrBadCredentials
	}
	presented := DigestToken(token)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(credential.TokenDigest)) != 1 {
		return 0, ErrBadCredentials
	}
	return credential.Roles, nil
}

// DigestToken returns the lowercase hex BLAKE3-256 digest of token, the
// form stored in configuration.
func DigestToken(token string) string {
	sum := blake3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
