// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metadatadb is the SQLite metadata repository: map records
// and the mission links derived from map content.
package metadatadb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/mapforge/lib/mapstore"
	"github.com/bureau-foundation/mapforge/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS map (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier    TEXT    NOT NULL UNIQUE,
	name          TEXT    NOT NULL,
	owner         TEXT    NOT NULL,
	version       INTEGER NOT NULL,
	mission_count INTEGER NOT NULL,
	content_hash  TEXT    NOT NULL,
	size          INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	modified_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS map_owner ON map (owner);

CREATE TABLE IF NOT EXISTS mission_link (
	mission_identifier TEXT    NOT NULL,
	map_id             INTEGER NOT NULL,
	PRIMARY KEY (mission_identifier, map_id)
) WITHOUT ROWID;
CREATE INDEX IF NOT EXISTS mission_link_map ON mission_link (map_id);
`

const mapColumns = `id, identifier, name, owner, version, mission_count,
	content_hash, size, created_at, modified_at`

// Config holds the parameters for opening the metadata database.
type Config struct {
	// Path is the database file. The parent directory must exist.
	Path string

	// PoolSize is the number of connections. Defaults to the
	// sqlitepool default.
	PoolSize int

	// BusyTimeoutMillis bounds how long a writer waits for another
	// writer. Defaults to the sqlitepool default.
	BusyTimeoutMillis int

	Logger *slog.Logger
}

// DB is the metadata repository. It implements
// mapstore.MetadataRepository.
type DB struct {
	pool *sqlitepool.Pool
}

var _ mapstore.MetadataRepository = (*DB)(nil)

// Open opens (creating if needed) the metadata database.
func Open(cfg Config) (*DB, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:              cfg.Path,
		PoolSize:          cfg.PoolSize,
		BusyTimeoutMillis: cfg.BusyTimeoutMillis,
		Logger:            cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("metadatadb: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the pool, waiting for outstanding transactions.
func (db *DB) Close() error {
	return db.pool.Close()
}

// Begin starts a write transaction.
func (db *DB) Begin(ctx context.Context) (mapstore.MetadataTxn, error) {
	txn, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("metadatadb: %w", err)
	}
	return &Txn{txn: txn, conn: txn.Conn()}, nil
}

// BeginRead starts a read transaction.
func (db *DB) BeginRead(ctx context.Context) (mapstore.MetadataTxn, error) {
	txn, err := db.pool.BeginRead(ctx)
	if err != nil {
		return nil, fmt.Errorf("metadatadb: %w", err)
	}
	return &Txn{txn: txn, conn: txn.Conn()}, nil
}

// Txn is a metadata transaction. It implements mapstore.MetadataTxn.
type Txn struct {
	txn  *sqlitepool.Txn
	conn *sqlite.Conn
}

func (t *Txn) Commit() error {
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("metadatadb: %w", err)
	}
	return nil
}

func (t *Txn) Rollback() error {
	if err := t.txn.Rollback(); err != nil {
		return fmt.Errorf("metadatadb: %w", err)
	}
	return nil
}

func (t *Txn) InsertMap(record *mapstore.MapRecord) error {
	err := sqlitex.Execute(t.conn,
		`INSERT INTO map (identifier, name, owner, version, mission_count,
			content_hash, size, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			record.Identifier,
			record.Name,
			record.Owner,
			record.Version,
			record.MissionCount,
			record.ContentHash,
			record.Size,
			record.CreatedAt.UnixNano(),
			record.ModifiedAt.UnixNano(),
		}})
	if err != nil {
		return fmt.Errorf("metadatadb: insert map %s: %w", record.Identifier, err)
	}
	record.ID = t.conn.LastInsertRowID()
	return nil
}

func (t *Txn) GetMap(id int64) (mapstore.MapRecord, error) {
	records, err := t.queryMaps(`SELECT `+mapColumns+` FROM map WHERE id = ?`, id)
	if err != nil {
		return mapstore.MapRecord{}, fmt.Errorf("metadatadb: get map %d: %w", id, err)
	}
	if len(records) == 0 {
		return mapstore.MapRecord{}, fmt.Errorf("metadatadb: map %d: %w", id, mapstore.ErrNotFound)
	}
	return records[0], nil
}

func (t *Txn) GetMapByIdentifier(identifier string) (mapstore.MapRecord, error) {
	records, err := t.queryMaps(`SELECT `+mapColumns+` FROM map WHERE identifier = ?`, identifier)
	if err != nil {
		return mapstore.MapRecord{}, fmt.Errorf("metadatadb: get map %s: %w", identifier, err)
	}
	if len(records) == 0 {
		return mapstore.MapRecord{}, fmt.Errorf("metadatadb: map %s: %w", identifier, mapstore.ErrNotFound)
	}
	return records[0], nil
}

func (t *Txn) LookupMaps(ids []int64) (map[int64]mapstore.MapRecord, error) {
	found := make(map[int64]mapstore.MapRecord, len(ids))
	for _, id := range ids {
		records, err := t.queryMaps(`SELECT `+mapColumns+` FROM map WHERE id = ?`, id)
		if err != nil {
			return nil, fmt.Errorf("metadatadb: lookup map %d: %w", id, err)
		}
		if len(records) > 0 {
			found[id] = records[0]
		}
	}
	return found, nil
}

func (t *Txn) ListMaps(owner string) ([]mapstore.MapRecord, error) {
	var (
		records []mapstore.MapRecord
		err     error
	)
	if owner == "" {
		records, err = t.queryMaps(`SELECT ` + mapColumns + ` FROM map ORDER BY id`)
	} else {
		records, err = t.queryMaps(`SELECT `+mapColumns+` FROM map WHERE owner = ? ORDER BY id`, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("metadatadb: list maps: %w", err)
	}
	return records, nil
}

func (t *Txn) SetContent(id int64, fromVersion int64, state mapstore.ContentState) (bool, error) {
	err := sqlitex.Execute(t.conn,
		`UPDATE map SET version = ?, content_hash = ?, mission_count = ?,
			size = ?, modified_at = ?
		WHERE id = ? AND version = ?`,
		&sqlitex.ExecOptions{Args: []any{
			state.Version,
			state.ContentHash,
			state.MissionCount,
			state.Size,
			state.ModifiedAt.UnixNano(),
			id,
			fromVersion,
		}})
	if err != nil {
		return false, fmt.Errorf("metadatadb: set content of map %d: %w", id, err)
	}
	return t.conn.Changes() > 0, nil
}

func (t *Txn) Rename(id int64, name string, modifiedAt time.Time) error {
	err := sqlitex.Execute(t.conn,
		`UPDATE map SET name = ?, modified_at = ? WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{name, modifiedAt.UnixNano(), id}})
	if err != nil {
		return fmt.Errorf("metadatadb: rename map %d: %w", id, err)
	}
	if t.conn.Changes() == 0 {
		return fmt.Errorf("metadatadb: rename map %d: %w", id, mapstore.ErrNotFound)
	}
	return nil
}

func (t *Txn) DeleteMap(id int64) error {
	err := sqlitex.Execute(t.conn, `DELETE FROM mission_link WHERE map_id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("metadatadb: delete mission links of map %d: %w", id, err)
	}
	err = sqlitex.Execute(t.conn, `DELETE FROM map WHERE id = ?`,
		&sqlitex.ExecOptions{Args: []any{id}})
	if err != nil {
		return fmt.Errorf("metadatadb: delete map %d: %w", id, err)
	}
	if t.conn.Changes() == 0 {
		return fmt.Errorf("metadatadb: delete map %d: %w", id, mapstore.ErrNotFound)
	}
	return nil
}

func (t *Txn) MissionLinks(id int64) ([]string, error) {
	missions := []string{}
	err := sqlitex.Execute(t.conn,
		`SELECT mission_identifier FROM mission_link WHERE map_id = ?
		ORDER BY mission_identifier`,
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				missions = append(missions, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("metadatadb: mission links of map %d: %w", id, err)
	}
	return missions, nil
}

func (t *Txn) UpsertMissionLinks(id int64, missions []string) error {
	for _, mission := range missions {
		err := sqlitex.Execute(t.conn,
			`INSERT OR REPLACE INTO mission_link (mission_identifier, map_id) VALUES (?, ?)`,
			&sqlitex.ExecOptions{Args: []any{mission, id}})
		if err != nil {
			return fmt.Errorf("metadatadb: link mission %s to map %d: %w", mission, id, err)
		}
	}
	return nil
}

func (t *Txn) DeleteMissionLinks(id int64, missions []string) error {
	for _, mission := range missions {
		err := sqlitex.Execute(t.conn,
			`DELETE FROM mission_link WHERE mission_identifier = ? AND map_id = ?`,
			&sqlitex.ExecOptions{Args: []any{mission, id}})
		if err != nil {
			return fmt.Errorf("metadatadb: unlink mission %s from map %d: %w", mission, id, err)
		}
	}
	return nil
}

func (t *Txn) FindMission(mission string) ([]mapstore.MapRecord, error) {
	records, err := t.queryMaps(`SELECT `+mapColumns+` FROM map
		WHERE id IN (SELECT map_id FROM mission_link WHERE mission_identifier = ?)
		ORDER BY id`, mission)
	if err != nil {
		return nil, fmt.Errorf("metadatadb: find mission %s: %w", mission, err)
	}
	return records, nil
}

func (t *Txn) Counts() (maps, links int64, err error) {
	err = sqlitex.Execute(t.conn,
		`SELECT (SELECT COUNT(*) FROM map), (SELECT COUNT(*) FROM mission_link)`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				maps = stmt.ColumnInt64(0)
				links = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return 0, 0, fmt.Errorf("metadatadb: counts: %w", err)
	}
	return maps, links, nil
}

func (t *Txn) queryMaps(query string, args ...any) ([]mapstore.MapRecord, error) {
	var records []mapstore.MapRecord
	err := sqlitex.Execute(t.conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanMap(stmt))
			return nil
		},
	})
	return records, err
}

// scanMap reads a row selected with mapColumns.
func scanMap(stmt *sqlite.Stmt) mapstore.MapRecord {
	return mapstore.MapRecord{
		ID:           stmt.ColumnInt64(0),
		Identifier:   stmt.ColumnText(1),
		Name:         stmt.ColumnText(2),
		Owner:        stmt.ColumnText(3),
		Version:      stmt.ColumnInt64(4),
		MissionCount: stmt.ColumnInt(5),
		ContentHash:  stmt.ColumnText(6),
		Size:         stmt.ColumnInt64(7),
		CreatedAt:    time.Unix(0, stmt.ColumnInt64(8)).UTC(),
		ModifiedAt:   time.Unix(0, stmt.ColumnInt64(9)).UTC(),
	}
}
