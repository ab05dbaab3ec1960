// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds per-connection client state: who the client
// is (username) and what it may do (a set of [Role] values).
//
// A Session is created by the transport when a client connects and is
// owned by that connection's worker goroutine. It is handed explicitly
// to the dispatcher and handlers as an argument, never through a
// context value or a global.
//
// Authentication itself is delegated to an [Authenticator]. The
// bundled [StaticAuthenticator] checks pre-provisioned credentials
// from configuration; it is not a login protocol.
package session
