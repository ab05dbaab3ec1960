// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides mapforge's standard CBOR encoding configuration.
//
// Every binary format mapforge owns is CBOR: the request/response
// envelope exchanged with game clients (see lib/envelope) and the
// framed payloads stored alongside it. JSON appears only at the edges,
// in map content documents and CLI output.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same logical envelope always produces identical bytes, which keeps
// round-trip tests exact and makes captured traffic diffable.
//
// The decoder is configured for untrusted input from game clients:
//
//   - Integers decoded into any-typed targets become int64, so handler
//     payload values have one integer type regardless of sign.
//   - Maps decoded into any-typed targets become map[string]any.
//   - Duplicate map keys are rejected rather than last-one-wins.
//   - Nesting depth is capped.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec
