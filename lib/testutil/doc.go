// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for mapforge packages.
//
// [SocketDir] creates a temporary directory in /tmp suitable for Unix
// domain sockets. Unix domain sockets have a 108-byte path limit
// (sun_path in sockaddr_un), and t.TempDir() paths under deeply nested
// TMPDIRs exceed it. The directory is removed when the test completes.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wait on a
// channel with a deadline, so a hung server or handler fails the test
// instead of stalling the test binary.
//
// [UniqueName] generates non-colliding map names.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no mapforge-internal dependencies.
package testutil
