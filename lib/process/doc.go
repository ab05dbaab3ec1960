// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for mapforge
// binaries. These functions centralize the raw I/O that happens before
// the structured logger exists or after main has given up:
//
//   - Fatal error reporting to stderr when the logger may not be
//     initialized (pre-logger).
//   - Process exit with a code chosen by the error ([ExitError]).
package process
