// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapstore

import (
	"context"
	"time"
)

// MetadataRepository opens transactions on the metadata store.
// Implemented by metadatadb.
type MetadataRepository interface {
	// Begin starts a write transaction, taking the store's write lock.
	Begin(ctx context.Context) (MetadataTxn, error)

	// BeginRead starts a read-only snapshot.
	BeginRead(ctx context.Context) (MetadataTxn, error)
}

// MetadataTxn is one metadata transaction. It is used by a single
// goroutine. Rollback after Commit is a no-op, so callers defer
// Rollback unconditionally.
//
// Lookups return an error matching ErrNotFound for absent records.
type MetadataTxn interface {
	// InsertMap inserts record and sets record.ID.
	InsertMap(record *MapRecord) error

	GetMap(id int64) (MapRecord, error)
	GetMapByIdentifier(identifier string) (MapRecord, error)

	// LookupMaps returns the records for ids that exist. Absent ids are
	// simply missing from the result.
	LookupMaps(ids []int64) (map[int64]MapRecord, error)

	// ListMaps returns records ordered by id. An empty owner lists all.
	ListMaps(owner string) ([]MapRecord, error)

	// SetContent moves map id to state if its version is still
	// fromVersion. It reports whether the record changed.
	SetContent(id int64, fromVersion int64, state ContentState) (bool, error)

	// Rename changes a map's name without touching its version.
	Rename(id int64, name string, modifiedAt time.Time) error

	// DeleteMap removes the record and its mission links.
	DeleteMap(id int64) error

	// MissionLinks returns the sorted mission identifiers linked to id.
	MissionLinks(id int64) ([]string, error)
	UpsertMissionLinks(id int64, missions []string) error
	DeleteMissionLinks(id int64, missions []string) error

	// FindMission returns the maps linked to a mission, ordered by id.
	FindMission(mission string) ([]MapRecord, error)

	// Counts returns the number of maps and mission links.
	Counts() (maps, links int64, err error)

	Commit() error
	Rollback() error
}

// ContentRepository opens transactions on the content store.
// Implemented by contentdb.
type ContentRepository interface {
	Begin(ctx context.Context) (ContentTxn, error)
	BeginRead(ctx context.Context) (ContentTxn, error)
}

// ContentTxn is one content transaction, with the same usage rules as
// MetadataTxn.
type ContentTxn interface {
	// Insert adds a record; the identifier must be new.
	Insert(record ContentRecord) error

	// Replace overwrites the data of an existing record.
	Replace(record ContentRecord) error

	// Get returns the logical data, verified against its stored hash.
	Get(identifier string) (ContentRecord, error)

	Delete(identifier string) error

	// Hashes returns identifier → content hash for every record,
	// without reading the data.
	Hashes() (map[string]string, error)

	// Sizes returns the total logical and at-rest sizes.
	Sizes() (logical, stored int64, err error)

	Commit() error
	Rollback() error
}
