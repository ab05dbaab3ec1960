// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapstore

import "time"

// MapRecord is the metadata side of a map.
type MapRecord struct {
	// ID is assigned by the metadata repository on insert.
	ID int64

	// Identifier ties the record to its content. Immutable.
	Identifier string

	Name string

	// Owner is the username of the teacher who created the map.
	// Immutable.
	Owner string

	// Version starts at 1 and increases by exactly one per accepted
	// content update.
	Version int64

	MissionCount int

	// ContentHash is mapdata.Hash of the current content.
	ContentHash string

	// Size is the logical (uncompressed) content length in bytes.
	Size int64

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// ContentState is the part of a MapRecord that follows the content.
// Updates move a record from one ContentState to the next; compensation
// moves it back.
type ContentState struct {
	Version      int64
	ContentHash  string
	MissionCount int
	Size         int64
	ModifiedAt   time.Time
}

// State extracts the content-derived fields of r.
func (r MapRecord) State() ContentState {
	return ContentState{
		Version:      r.Version,
		ContentHash:  r.ContentHash,
		MissionCount: r.MissionCount,
		Size:         r.Size,
		ModifiedAt:   r.ModifiedAt,
	}
}

// ContentRecord is the content side of a map.
type ContentRecord struct {
	Identifier  string
	Data        []byte
	ContentHash string
}

// RemoveResult lists the maps a RemoveMaps call deleted, in request
// order.
type RemoveResult struct {
	Removed []int64
}

// Stats summarizes both repositories.
type Stats struct {
	Maps         int64
	MissionLinks int64

	// ContentBytes is the logical size of all content.
	ContentBytes int64

	// StoredBytes is what the content occupies at rest, after
	// compression and sealing.
	StoredBytes int64
}

// InconsistencyKind classifies a Verify finding.
type InconsistencyKind string

const (
	// MissingContent: a metadata record has no content record.
	MissingContent InconsistencyKind = "missing_content"

	// OrphanContent: a content record has no metadata record.
	OrphanContent InconsistencyKind = "orphan_content"

	// HashMismatch: the metadata hash differs from the stored content's
	// hash.
	HashMismatch InconsistencyKind = "hash_mismatch"
)

// Inconsistency is one cross-store violation found by Verify.
type Inconsistency struct {
	Kind       InconsistencyKind
	Identifier string

	// MapID is zero for OrphanContent.
	MapID int64

	MetadataHash string
	ContentHash  string
}
