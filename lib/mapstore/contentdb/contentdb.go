// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentdb is the SQLite content repository. Map data is
// compressed and, when a sealer is configured, age-encrypted before it
// is stored; reads reverse both steps and check the result against the
// stored BLAKE3 hash.
package contentdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/mapforge/lib/blobcodec"
	"github.com/bureau-foundation/mapforge/lib/mapdata"
	"github.com/bureau-foundation/mapforge/lib/mapstore"
	"github.com/bureau-foundation/mapforge/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS content (
	identifier   TEXT    PRIMARY KEY,
	data         BLOB,
	compression  INTEGER NOT NULL,
	sealed       INTEGER NOT NULL,
	size         INTEGER NOT NULL,
	stored_size  INTEGER NOT NULL,
	content_hash TEXT    NOT NULL
);
`

// ErrCorrupt is returned by Get when stored data does not reproduce
// its recorded hash.
var ErrCorrupt = errors.New("content does not match its hash")

// Config holds the parameters for opening the content database.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	PoolSize          int
	BusyTimeoutMillis int

	// Compression is "auto" (or empty), "none", "lz4" or "zstd".
	Compression string

	// Sealer, if set, encrypts data at rest. Blobs written while a
	// sealer was configured cannot be read without it.
	Sealer *blobcodec.Sealer

	Logger *slog.Logger
}

// DB is the content repository. It implements
// mapstore.ContentRepository.
type DB struct {
	pool   *sqlitepool.Pool
	codec  codec
	logger *slog.Logger
}

var _ mapstore.ContentRepository = (*DB)(nil)

// codec turns logical data into stored bytes and back.
type codec struct {
	auto   bool
	tag    blobcodec.Tag
	sealer *blobcodec.Sealer
}

// Open opens (creating if needed) the content database.
func Open(cfg Config) (*DB, error) {
	blobs := codec{sealer: cfg.Sealer}
	switch cfg.Compression {
	case "", "auto":
		blobs.auto = true
	default:
		tag, err := blobcodec.ParseTag(cfg.Compression)
		if err != nil {
			return nil, fmt.Errorf("contentdb: %w", err)
		}
		blobs.tag = tag
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:              cfg.Path,
		PoolSize:          cfg.PoolSize,
		BusyTimeoutMillis: cfg.BusyTimeoutMillis,
		Logger:            logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("contentdb: %w", err)
	}
	if cfg.Sealer != nil {
		logger.Info("content sealing enabled", "recipient", cfg.Sealer.Recipient())
	}
	return &DB{pool: pool, codec: blobs, logger: logger}, nil
}

// Close closes the pool, waiting for outstanding transactions.
func (db *DB) Close() error {
	return db.pool.Close()
}

// Begin starts a write transaction.
func (db *DB) Begin(ctx context.Context) (mapstore.ContentTxn, error) {
	txn, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("contentdb: %w", err)
	}
	return &Txn{txn: txn, conn: txn.Conn(), codec: db.codec}, nil
}

// BeginRead starts a read transaction.
func (db *DB) BeginRead(ctx context.Context) (mapstore.ContentTxn, error) {
	txn, err := db.pool.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("contentdb: %w", err)
	}
	return &Txn{txn: txn, conn: txn.Conn(), codec: db.codec}, nil
}

// Txn is a content transaction. It implements mapstore.ContentTxn.
type Txn struct {
	txn   *sqlitepool.Txn
	conn  *sqlite.Conn
	codec codec
}

func (t *Txn) Commit() error {
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("contentdb: %w", err)
	}
	return nil
}

func (t *Txn) Rollback() error {
	if err := t.txn.Rollback(); err != nil {
		return fmt.Errorf("contentdb: %w", err)
	}
	return nil
}

// storedBlob is a content record in its at-rest form.
type storedBlob struct {
	data        []byte
	compression blobcodec.Tag
	sealed      bool
	size        int64
	hash        string
}

func (c codec) encode(record mapstore.ContentRecord) (storedBlob, error) {
	hash := mapdata.Hash(record.Data)
	if record.ContentHash != "" && record.ContentHash != hash {
		return storedBlob{}, fmt.Errorf("content hash %s does not match data (%s)", record.ContentHash, hash)
	}

	var (
		data []byte
		tag  blobcodec.Tag
		err  error
	)
	if c.auto {
		data, tag, err = blobcodec.Compress(record.Data)
	} else {
		data, tag, err = blobcodec.CompressWith(record.Data, c.tag)
	}
	if err != nil {
		return storedBlob{}, err
	}

	blob := storedBlob{
		data:        data,
		compression: tag,
		size:        int64(len(record.Data)),
		hash:        hash,
	}
	if c.sealer != nil {
		blob.data, err = c.sealer.Seal(data)
		if err != nil {
			return storedBlob{}, err
		}
		blob.sealed = true
	}
	return blob, nil
}

func (c codec) decode(blob storedBlob) ([]byte, error) {
	data := blob.data
	if blob.sealed {
		var err error
		data, err = c.sealer.Open(data)
		if err != nil {
			return nil, err
		}
	}
	data, err := blobcodec.Decompress(data, blob.compression, int(blob.size))
	if err != nil {
		return nil, err
	}
	if hash := mapdata.Hash(data); hash != blob.hash {
		return nil, fmt.Errorf("%w: stored %s, computed %s", ErrCorrupt, blob.hash, hash)
	}
	return data, nil
}

func (t *Txn) Insert(record mapstore.ContentRecord) error {
	blob, err := t.codec.encode(record)
	if err != nil {
		return fmt.Errorf("contentdb: insert %s: %w", record.Identifier, err)
	}
	err = sqlitex.Execute(t.conn,
		`INSERT INTO content (identifier, data, compression, sealed, size, stored_size, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			record.Identifier,
			blob.data,
			int64(blob.compression),
			blob.sealed,
			blob.size,
			int64(len(blob.data)),
			blob.hash,
		}})
	if err != nil {
		return fmt.Errorf("contentdb: insert %s: %w", record.Identifier, err)
	}
	return nil
}

func (t *Txn) Replace(record mapstore.ContentRecord) error {
	blob, err := t.codec.encode(record)
	if err != nil {
		return fmt.Errorf("contentdb: replace %s: %w", record.Identifier, err)
	}
	err = sqlitex.Execute(t.conn,
		`UPDATE content SET data = ?, compression = ?, sealed = ?, size = ?,
			stored_size = ?, content_hash = ?
		WHERE identifier = ?`,
		&sqlitex.ExecOptions{Args: []any{
			blob.data,
			int64(blob.compression),
			blob.sealed,
			blob.size,
			int64(len(blob.data)),
			blob.hash,
			record.Identifier,
		}})
	if err != nil {
		return fmt.Errorf("contentdb: replace %s: %w", record.Identifier, err)
	}
	if t.conn.Changes() == 0 {
		return fmt.Errorf("contentdb: replace %s: %w", record.Identifier, mapstore.ErrNotFound)
	}
	return nil
}

func (t *Txn) Get(identifier string) (mapstore.ContentRecord, error) {
	var (
		blob  storedBlob
		found bool
	)
	err := sqlitex.Execute(t.conn,
		`SELECT data, compression, sealed, size, content_hash FROM content WHERE identifier = ?`,
		&sqlitex.ExecOptions{
			Args: []any{identifier},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				blob.data = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, blob.data)
				blob.compression = blobcodec.Tag(stmt.ColumnInt64(1))
				blob.sealed = stmt.ColumnBool(2)
				blob.size = stmt.ColumnInt64(3)
				blob.hash = stmt.ColumnText(4)
				return nil
			},
		})
	if err != nil {
		return mapstore.ContentRecord{}, fmt.Errorf("contentdb: get %s: %w", identifier, err)
	}
	if !found {
		return mapstore.ContentRecord{}, fmt.Errorf("contentdb: %s: %w", identifier, mapstore.ErrNotFound)
	}

	data, err := t.codec.decode(blob)
	if err != nil {
		return mapstore.ContentRecord{}, fmt.Errorf("contentdb: get %s: %w", identifier, err)
	}
	return mapstore.ContentRecord{Identifier: identifier, Data: data, ContentHash: blob.hash}, nil
}

func (t *Txn) Delete(identifier string) error {
	err := sqlitex.Execute(t.conn, `DELETE FROM content WHERE identifier = ?`,
		&sqlitex.ExecOptions{Args: []any{identifier}})
	if err != nil {
		return fmt.Errorf("contentdb: delete %s: %w", identifier, err)
	}
	if t.conn.Changes() == 0 {
		return fmt.Errorf("contentdb: delete %s: %w", identifier, mapstore.ErrNotFound)
	}
	return nil
}

func (t *Txn) Hashes() (map[string]string, error) {
	hashes := make(map[string]string)
	err := sqlitex.Execute(t.conn, `SELECT identifier, content_hash FROM content`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				hashes[stmt.ColumnText(0)] = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("contentdb: hashes: %w", err)
	}
	return hashes, nil
}

func (t *Txn) Sizes() (logical, stored int64, err error) {
	err = sqlitex.Execute(t.conn,
		`SELECT COALESCE(SUM(size), 0), COALESCE(SUM(stored_size), 0) FROM content`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				logical = stmt.ColumnInt64(0)
				stored = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return 0, 0, fmt.Errorf("contentdb: sizes: %w", err)
	}
	return logical, stored, nil
}
