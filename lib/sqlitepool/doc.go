// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool and the
// transaction handle used by both map repositories.
//
// It wraps zombiezen.com/go/sqlite with the standard pragmas: WAL
// journal mode, NORMAL synchronous, a busy timeout so concurrent
// writers queue instead of failing with SQLITE_BUSY, and a bounded page
// cache.
//
// Connections are NOT safe for concurrent use. A caller either borrows
// one with [Pool.Take] and returns it with [Pool.Put], or opens a
// [Txn] with [Pool.Begin], which owns a connection until Commit or
// Rollback. Every Txn has its own connection, so two workers can never
// interleave statements inside one transaction.
//
//	txn, err := pool.Begin(ctx)
//	if err != nil {
//	    return err
//	}
//	defer txn.Rollback() // no-op after Commit
//
//	if err := sqlitex.Execute(txn.Conn(), query, opts); err != nil {
//	    return err
//	}
//	return txn.Commit()
//
// Write transactions start with BEGIN IMMEDIATE, taking SQLite's write
// lock up front. Two writers therefore serialize at Begin rather than
// deadlocking on lock upgrade halfway through.
package sqlitepool
