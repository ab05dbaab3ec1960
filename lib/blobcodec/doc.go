// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobcodec transforms map content between its logical bytes
// and the bytes the content repository stores.
//
// Two independent stages are applied on write and reversed on read:
//
//   - Compression ([Compress], [Decompress]): compiled maps are mostly
//     JSON and compress well with zstd; binary-heavy maps fall back to
//     LZ4 or to no compression. The chosen [Tag] is stored beside the
//     blob.
//   - Sealing ([Sealer]): when the server is configured with an age
//     X25519 identity, compressed blobs are encrypted to that
//     identity's recipient before they reach disk.
//
// Hashes are always taken over logical (uncompressed, unsealed) bytes,
// so neither stage affects content identity.
package blobcodec
