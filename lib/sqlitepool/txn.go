// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// ErrTxnDone is returned by Commit on a transaction that has already
// been committed or rolled back.
var ErrTxnDone = errors.New("sqlitepool: transaction already finished")

// Txn is a transaction that owns one pooled connection. It is used by
// one goroutine at a time; the connection goes back to the pool when
// the transaction finishes.
type Txn struct {
	pool *Pool
	conn *sqlite.Conn
	done bool
}

// Begin starts a write transaction (BEGIN IMMEDIATE).
func (p *Pool) Begin(ctx context.Context) (*Txn, error) {
	return p.begin(ctx, "BEGIN IMMEDIATE")
}

// BeginRead starts a deferred transaction for reads. It sees one
// consistent snapshot and does not take the write lock.
func (p *Pool) BeginRead(ctx context.Context) (*Txn, error) {
	return p.begin(ctx, "BEGIN DEFERRED")
}

func (p *Pool) begin(ctx context.Context, statement string) (*Txn, error) {
	conn, err := p.Take(ctx)
	if err != nil {
		return nil, err
	}
	if err := sqlitex.ExecuteTransient(conn, statement, nil); err != nil {
		p.Put(conn)
		return nil, fmt.Errorf("sqlitepool: %s on %s: %w", statement, p.path, err)
	}
	return &Txn{pool: p, conn: conn}, nil
}

// Conn returns the transaction's connection. Valid until the
// transaction finishes.
func (t *Txn) Conn() *sqlite.Conn { return t.conn }

// Done reports whether the transaction has finished.
func (t *Txn) Done() bool { return t.done }

// Commit commits the transaction. If COMMIT fails the transaction is
// rolled back, so the caller never holds a half-open transaction.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	defer t.release()

	if err := sqlitex.ExecuteTransient(t.conn, "COMMIT", nil); err != nil {
		if !t.conn.AutocommitEnabled() {
			_ = sqlitex.ExecuteTransient(t.conn, "ROLLBACK", nil)
		}
		return fmt.Errorf("sqlitepool: commit on %s: %w", t.pool.path, err)
	}
	return nil
}

// Rollback aborts the transaction. It is a no-op on a finished
// transaction, so callers can defer it unconditionally.
func (t *Txn) Rollback() error {
	if t.done {
		return nil
	}
	defer t.release()

	if t.conn.AutocommitEnabled() {
		// SQLite already rolled back (e.g. after SQLITE_FULL).
		return nil
	}
	if err := sqlitex.ExecuteTransient(t.conn, "ROLLBACK", nil); err != nil {
		return fmt.Errorf("sqlitepool: rollback on %s: %w", t.pool.path, err)
	}
	return nil
}

func (t *Txn) release() {
	t.done = true
	t.pool.Put(t.conn)
	t.conn = nil
}
