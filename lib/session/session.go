// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

// Session is the state of one connected client. It is not safe for
// concurrent use: only the connection's worker goroutine touches it,
// and that worker processes one request at a time.
type Session struct {
	// ConnectionID is assigned by the transport and only used for
	// log correlation.
	ConnectionID uint64

	// RemoteAddr is the peer address as reported by the transport.
	RemoteAddr string

	// Username is empty until the client authenticates.
	Username string

	// Roles is the permission set granted at authentication.
	Roles Role
}

// New returns an unauthenticated session.
func New(connectionID uint64, remoteAddr string) *Session {
	return &Session{ConnectionID: connectionID, RemoteAddr: remoteAddr}
}

// Authenticated reports whether the session has an identity.
func (s *Session) Authenticated() bool {
	return s != nil && s.Username != ""
}

// HasRole reports whether the session holds role. A nil session holds
// nothing.
func (s *Session) HasRole(role Role) bool {
	return s != nil && s.Roles.Has(role)
}

// SetIdentity replaces the session's identity. Called by the login
// handler after the Authenticator accepts the credentials.
func (s *Session) SetIdentity(username string, roles Role) {
	s.Username = username
	s.Roles = roles
}

// Clear drops the session's identity.
func (s *Session) Clear() {
	s.Username = ""
	s.Roles = 0
}
