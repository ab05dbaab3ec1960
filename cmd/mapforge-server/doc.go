// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Mapforge-server serves the map protocol. It stores map metadata and
// map content in two SQLite databases and keeps them consistent with
// compensating transactions (see [mapstore.Manager]).
//
// # Startup
//
// The server loads its YAML configuration from --config or
// MAPFORGE_CONFIG, validates it, creates the data directories, and
// opens both databases. When storage.seal_identity_file is set, map
// content is encrypted at rest to that age identity. It then registers
// the protocol handlers, checks that every protocol function has a
// handler, and listens on server.address.
//
// # Shutdown
//
// SIGINT or SIGTERM stops the listener. Idle connections are closed
// immediately; a request that is already executing finishes and its
// response is written before the connection closes.
package main
