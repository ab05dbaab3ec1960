// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envelope defines the request/response unit exchanged between
// game clients and the map server, and its wire encoding.
//
// An [Envelope] names a (class, function) pair, carries a structured
// payload (string-keyed map of arbitrary values), an optional binary
// blob, a caller-chosen correlation id, and an [ErrorCode]. The codec
// never looks inside the payload: the schema for each function's
// payload belongs to that function's handler.
//
// Envelopes are CBOR-encoded with lib/codec's deterministic mode.
// The binary blob is a CBOR byte string, so its length is explicit and
// zero-length or very large blobs need no escaping.
//
// On a stream, each envelope is preceded by a 4-byte big-endian length
// (see [WriteFrame] and [ReadFrame]). The length prefix lets a reader
// enforce a size cap before buffering a frame and lets a malformed
// envelope be skipped without losing the connection.
package envelope
