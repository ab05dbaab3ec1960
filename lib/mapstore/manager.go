// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/mapforge/lib/clock"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/mapdata"
)

// ManagerConfig holds the parameters for creating a Manager.
type ManagerConfig struct {
	Metadata MetadataRepository
	Content  ContentRepository

	// Clock stamps CreatedAt and ModifiedAt. Defaults to the real
	// clock.
	Clock clock.Clock

	// Logger receives one line per mutation and every compensation.
	// Nil discards.
	Logger *slog.Logger

	// NewIdentifier generates map identifiers. Defaults to random
	// UUIDs.
	NewIdentifier func() string
}

// Manager runs map operations across the metadata and content
// repositories. Safe for concurrent use; concurrent writers to the
// same map are serialized by the repositories' write locks and the
// last committer wins.
type Manager struct {
	metadata      MetadataRepository
	content       ContentRepository
	clock         clock.Clock
	logger        *slog.Logger
	newIdentifier func() string
}

// contentReadAttempts bounds how often GetMapContent re-reads when an
// update commits between its metadata and content reads.
const contentReadAttempts = 3

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Metadata == nil {
		return nil, errors.New("mapstore: Metadata repository is required")
	}
	if cfg.Content == nil {
		return nil, errors.New("mapstore: Content repository is required")
	}
	manager := &Manager{
		metadata:      cfg.Metadata,
		content:       cfg.Content,
		clock:         cfg.Clock,
		logger:        cfg.Logger,
		newIdentifier: cfg.NewIdentifier,
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.New(slog.DiscardHandler)
	}
	if manager.newIdentifier == nil {
		manager.newIdentifier = uuid.NewString
	}
	return manager, nil
}

// CreateMap creates an empty map at version 1 owned by owner.
func (m *Manager) CreateMap(ctx context.Context, owner, name string) (MapRecord, error) {
	const op = "create"
	name = strings.TrimSpace(name)
	if owner == "" {
		return MapRecord{}, m.fail(op, envelope.CodeCreateFailed, 0, "", fmt.Errorf("%w: owner is required", ErrInvalidArgument))
	}
	if name == "" {
		return MapRecord{}, m.fail(op, envelope.CodeCreateFailed, 0, "", fmt.Errorf("%w: name is required", ErrInvalidArgument))
	}

	now := m.clock.Now().UTC()
	record := MapRecord{
		Identifier:  m.newIdentifier(),
		Name:        name,
		Owner:       owner,
		Version:     1,
		ContentHash: mapdata.EmptyHash,
		CreatedAt:   now,
		ModifiedAt:  now,
	}
	fail := func(err error) (MapRecord, error) {
		return MapRecord{}, m.fail(op, envelope.CodeCreateFailed, 0, record.Identifier, err)
	}

	metadata, err := m.metadata.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer metadata.Rollback()

	if err := metadata.InsertMap(&record); err != nil {
		return fail(err)
	}

	content, err := m.content.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer content.Rollback()

	if err := content.Insert(ContentRecord{Identifier: record.Identifier, ContentHash: mapdata.EmptyHash}); err != nil {
		return fail(err)
	}

	if err := metadata.Commit(); err != nil {
		return fail(err)
	}
	if err := content.Commit(); err != nil {
		if compensateErr := m.compensateCreate(ctx, record); compensateErr != nil {
			err = errors.Join(err, compensateErr)
		}
		return fail(err)
	}

	m.logger.Info("map created",
		"map_id", record.ID,
		"identifier", record.Identifier,
		"owner", owner,
		"name", name,
	)
	return record, nil
}

func (m *Manager) compensateCreate(ctx context.Context, record MapRecord) error {
	metadata, err := m.metadata.Begin(context.WithoutCancel(ctx))
	if err != nil {
		return m.compensationFailed("create", record.ID, err)
	}
	defer metadata.Rollback()

	if err := metadata.DeleteMap(record.ID); err != nil {
		return m.compensationFailed("create", record.ID, err)
	}
	if err := metadata.Commit(); err != nil {
		return m.compensationFailed("create", record.ID, err)
	}
	m.logger.Warn("map create compensated", "map_id", record.ID, "identifier", record.Identifier)
	return nil
}

// UpdateMapContent replaces the content of map id, which must be owned
// by owner, and returns the updated record. The version advances by
// one even when data is byte-identical to the current content.
func (m *Manager) UpdateMapContent(ctx context.Context, id int64, owner string, data []byte) (MapRecord, error) {
	const op = "update"
	fail := func(err error) (MapRecord, error) {
		return MapRecord{}, m.fail(op, envelope.CodeUpdateFailed, id, "", err)
	}

	metadata, err := m.metadata.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer metadata.Rollback()

	previous, err := metadata.GetMap(id)
	if err != nil {
		return fail(err)
	}
	if previous.Owner != owner {
		return fail(ErrNotFound)
	}

	// Content is judged only once the caller has shown it owns the map,
	// so an unknown id reports NotFound whatever the bytes are.
	parsed, err := mapdata.Parse(data)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	hash := mapdata.Hash(data)

	existing, err := metadata.MissionLinks(id)
	if err != nil {
		return fail(err)
	}
	var added []string
	for _, mission := range parsed.Missions {
		if _, found := slices.BinarySearch(existing, mission); !found {
			added = append(added, mission)
		}
	}

	content, err := m.content.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer content.Rollback()

	if err := content.Replace(ContentRecord{Identifier: previous.Identifier, Data: data, ContentHash: hash}); err != nil {
		return fail(err)
	}

	updated := previous
	updated.Version = previous.Version + 1
	updated.ContentHash = hash
	updated.MissionCount = len(parsed.Missions)
	updated.Size = int64(len(data))
	updated.ModifiedAt = m.clock.Now().UTC()

	changed, err := metadata.SetContent(id, previous.Version, updated.State())
	if err != nil {
		return fail(err)
	}
	if !changed {
		return fail(fmt.Errorf("version %d changed during update", previous.Version))
	}
	if err := metadata.UpsertMissionLinks(id, parsed.Missions); err != nil {
		return fail(err)
	}

	if err := metadata.Commit(); err != nil {
		return fail(err)
	}
	if err := content.Commit(); err != nil {
		if compensateErr := m.compensateUpdate(ctx, previous, updated, added); compensateErr != nil {
			err = errors.Join(err, compensateErr)
		}
		return fail(err)
	}

	m.logger.Info("map content updated",
		"map_id", id,
		"identifier", updated.Identifier,
		"version", updated.Version,
		"content_hash", hash,
		"missions", updated.MissionCount,
		"size", updated.Size,
	)
	return updated, nil
}

// compensateUpdate puts map metadata back to previous after the content
// commit failed. If another update has committed since, its state is
// authoritative and nothing is restored.
func (m *Manager) compensateUpdate(ctx context.Context, previous, updated MapRecord, added []string) error {
	metadata, err := m.metadata.Begin(context.WithoutCancel(ctx))
	if err != nil {
		return m.compensationFailed("update", previous.ID, err)
	}
	defer metadata.Rollback()

	restored, err := metadata.SetContent(previous.ID, updated.Version, previous.State())
	if err != nil {
		return m.compensationFailed("update", previous.ID, err)
	}
	if !restored {
		m.logger.Warn("map update not compensated: superseded by a later update",
			"map_id", previous.ID,
			"failed_version", updated.Version,
		)
		return nil
	}
	if err := metadata.DeleteMissionLinks(previous.ID, added); err != nil {
		return m.compensationFailed("update", previous.ID, err)
	}
	if err := metadata.Commit(); err != nil {
		return m.compensationFailed("update", previous.ID, err)
	}
	m.logger.Warn("map update compensated",
		"map_id", previous.ID,
		"version", previous.Version,
		"discarded_version", updated.Version,
	)
	return nil
}

// RemoveMaps deletes the listed maps, all of which must exist and be
// owned by owner; otherwise nothing is deleted. Duplicate ids are
// collapsed. Each map is removed in its own pair of transactions, so a
// failure partway through leaves earlier maps removed: the returned
// *RemoveError lists them.
func (m *Manager) RemoveMaps(ctx context.Context, ids []int64, owner string) (RemoveResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return RemoveResult{}, &RemoveError{
			Code: envelope.CodeInvalidArgument,
			Err:  fmt.Errorf("%w: no map ids", ErrInvalidArgument),
		}
	}

	records, err := m.lookupMaps(ctx, ids)
	if err != nil {
		return RemoveResult{}, &RemoveError{Code: envelope.CodeRemoveFailed, Failed: ids[0], Err: err}
	}
	for _, id := range ids {
		record, ok := records[id]
		if !ok {
			return RemoveResult{}, &RemoveError{Code: envelope.CodeNotFound, Failed: id, Err: ErrNotFound}
		}
		if record.Owner != owner {
			return RemoveResult{}, &RemoveError{Code: envelope.CodePermissionDenied, Failed: id, Err: ErrPermissionDenied}
		}
	}

	result := RemoveResult{Removed: make([]int64, 0, len(ids))}
	for _, id := range ids {
		if err := m.removeMap(ctx, records[id]); err != nil {
			m.logger.Warn("map batch removal stopped",
				"failed", id,
				"identifier", records[id].Identifier,
				"removed", result.Removed,
				"error", err,
			)
			return result, &RemoveError{
				Code:             codeFor(err, envelope.CodeRemoveFailed),
				Removed:          slices.Clone(result.Removed),
				Failed:           id,
				FailedIdentifier: records[id].Identifier,
				Err:              err,
			}
		}
		result.Removed = append(result.Removed, id)
		m.logger.Info("map removed", "map_id", id, "identifier", records[id].Identifier, "owner", owner)
	}
	return result, nil
}

// removeMap deletes one map. Content commits first; if the metadata
// commit then fails, the content is written back.
func (m *Manager) removeMap(ctx context.Context, record MapRecord) error {
	metadata, err := m.metadata.Begin(ctx)
	if err != nil {
		return err
	}
	defer metadata.Rollback()

	if _, err := metadata.GetMap(record.ID); err != nil {
		return err
	}

	content, err := m.content.Begin(ctx)
	if err != nil {
		return err
	}
	defer content.Rollback()

	saved, err := content.Get(record.Identifier)
	restorable := err == nil
	switch {
	case errors.Is(err, ErrNotFound):
		m.logger.Warn("removing map with no content", "map_id", record.ID, "identifier", record.Identifier)
	case err != nil:
		m.logger.Warn("removing map with unreadable content",
			"map_id", record.ID,
			"identifier", record.Identifier,
			"error", err,
		)
	}
	if !errors.Is(err, ErrNotFound) {
		if err := content.Delete(record.Identifier); err != nil {
			return err
		}
	}

	if err := metadata.DeleteMap(record.ID); err != nil {
		return err
	}

	if err := content.Commit(); err != nil {
		return err
	}
	if err := metadata.Commit(); err != nil {
		if restorable {
			if restoreErr := m.restoreContent(ctx, saved); restoreErr != nil {
				err = errors.Join(err, restoreErr)
			}
		}
		return err
	}
	return nil
}

func (m *Manager) restoreContent(ctx context.Context, saved ContentRecord) error {
	content, err := m.content.Begin(context.WithoutCancel(ctx))
	if err != nil {
		return m.compensationFailed("remove", 0, err)
	}
	defer content.Rollback()

	if err := content.Insert(saved); err != nil {
		return m.compensationFailed("remove", 0, err)
	}
	if err := content.Commit(); err != nil {
		return m.compensationFailed("remove", 0, err)
	}
	m.logger.Warn("map remove compensated", "identifier", saved.Identifier)
	return nil
}

// GetMap returns the metadata of map id.
func (m *Manager) GetMap(ctx context.Context, id int64) (MapRecord, error) {
	metadata, err := m.metadata.BeginRead(ctx)
	if err != nil {
		return MapRecord{}, m.fail("get", envelope.CodeInternalError, id, "", err)
	}
	defer metadata.Rollback()

	record, err := metadata.GetMap(id)
	if err != nil {
		return MapRecord{}, m.fail("get", envelope.CodeInternalError, id, "", err)
	}
	return record, nil
}

// GetMapContent returns a map's metadata and content by identifier.
// The two always agree: the returned record's ContentHash is the hash
// of the returned data.
func (m *Manager) GetMapContent(ctx context.Context, identifier string) (MapRecord, []byte, error) {
	const op = "get content"
	var lastErr error
	for range contentReadAttempts {
		record, data, err := m.readMapContent(ctx, identifier)
		if err == nil {
			return record, data, nil
		}
		if !errors.Is(err, errContentRace) {
			return MapRecord{}, nil, m.fail(op, envelope.CodeInternalError, 0, identifier, err)
		}
		lastErr = err
	}
	return MapRecord{}, nil, m.fail(op, envelope.CodeInternalError, 0, identifier, lastErr)
}

var errContentRace = errors.New("content hash does not match metadata")

func (m *Manager) readMapContent(ctx context.Context, identifier string) (MapRecord, []byte, error) {
	metadata, err := m.metadata.BeginRead(ctx)
	if err != nil {
		return MapRecord{}, nil, err
	}
	defer metadata.Rollback()

	record, err := metadata.GetMapByIdentifier(identifier)
	if err != nil {
		return MapRecord{}, nil, err
	}

	content, err := m.content.BeginRead(ctx)
	if err != nil {
		return MapRecord{}, nil, err
	}
	defer content.Rollback()

	stored, err := content.Get(identifier)
	if err != nil {
		return MapRecord{}, nil, err
	}
	if stored.ContentHash != record.ContentHash {
		return MapRecord{}, nil, fmt.Errorf("%w: metadata %s, content %s", errContentRace, record.ContentHash, stored.ContentHash)
	}
	return record, stored.Data, nil
}

// ListMaps returns the maps owned by owner, or every map when owner is
// empty, ordered by id.
func (m *Manager) ListMaps(ctx context.Context, owner string) ([]MapRecord, error) {
	metadata, err := m.metadata.BeginRead(ctx)
	if err != nil {
		return nil, m.fail("list", envelope.CodeInternalError, 0, "", err)
	}
	defer metadata.Rollback()

	records, err := metadata.ListMaps(owner)
	if err != nil {
		return nil, m.fail("list", envelope.CodeInternalError, 0, "", err)
	}
	return records, nil
}

// FindMission returns the maps that declare mission, ordered by id.
func (m *Manager) FindMission(ctx context.Context, mission string) ([]MapRecord, error) {
	if strings.TrimSpace(mission) == "" {
		return nil, m.fail("find mission", envelope.CodeInternalError, 0, "", fmt.Errorf("%w: mission is required", ErrInvalidArgument))
	}
	metadata, err := m.metadata.BeginRead(ctx)
	if err != nil {
		return nil, m.fail("find mission", envelope.CodeInternalError, 0, "", err)
	}
	defer metadata.Rollback()

	records, err := metadata.FindMission(mission)
	if err != nil {
		return nil, m.fail("find mission", envelope.CodeInternalError, 0, "", err)
	}
	return records, nil
}

// RenameMap changes the name of map id, which must be owned by owner.
// Only metadata changes; the version does not advance.
func (m *Manager) RenameMap(ctx context.Context, id int64, owner, name string) (MapRecord, error) {
	const op = "rename"
	fail := func(err error) (MapRecord, error) {
		return MapRecord{}, m.fail(op, envelope.CodeUpdateFailed, id, "", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fail(fmt.Errorf("%w: name is required", ErrInvalidArgument))
	}

	metadata, err := m.metadata.Begin(ctx)
	if err != nil {
		return fail(err)
	}
	defer metadata.Rollback()

	record, err := metadata.GetMap(id)
	if err != nil {
		return fail(err)
	}
	if record.Owner != owner {
		return fail(ErrNotFound)
	}
	record.Name = name
	record.ModifiedAt = m.clock.Now().UTC()
	if err := metadata.Rename(id, name, record.ModifiedAt); err != nil {
		return fail(err)
	}
	if err := metadata.Commit(); err != nil {
		return fail(err)
	}

	m.logger.Info("map renamed", "map_id", id, "name", name)
	return record, nil
}

// Stats reports counts and sizes across both repositories.
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	metadata, err := m.metadata.BeginRead(ctx)
	if err != nil {
		return Stats{}, m.fail("stats", envelope.CodeInternalError, 0, "", err)
	}
	defer metadata.Rollback()

	var stats Stats
	stats.Maps, stats.MissionLinks, err = metadata.Counts()
	if err != nil {
		return Stats{}, m.fail("stats", envelope.CodeInternalError, 0, "", err)
	}

	content, err := m.content.BeginRead(ctx)
	if err != nil {
		return Stats{}, m.fail("stats", envelope.CodeInternalError, 0, "", err)
	}
	defer content.Rollback()

	stats.ContentBytes, stats.StoredBytes, err = content.Sizes()
	if err != nil {
		return Stats{}, m.fail("stats", envelope.CodeInternalError, 0, "", err)
	}
	return stats, nil
}

// Verify compares both repositories and reports every identifier
// whose metadata and content disagree, ordered by identifier. It
// changes nothing.
func (m *Manager) Verify(ctx context.Context) ([]Inconsistency, error) {
	records, err := m.ListMaps(ctx, "")
	if err != nil {
		return nil, err
	}

	content, err := m.content.BeginRead(ctx)
	if err != nil {
		return nil, m.fail("verify", envelope.CodeInternalError, 0, "", err)
	}
	defer content.Rollback()

	hashes, err := content.Hashes()
	if err != nil {
		return nil, m.fail("verify", envelope.CodeInternalError, 0, "", err)
	}

	var found []Inconsistency
	for _, record := range records {
		contentHash, ok := hashes[record.Identifier]
		switch {
		case !ok:
			found = append(found, Inconsistency{
				Kind:         MissingContent,
				Identifier:   record.Identifier,
				MapID:        record.ID,
				MetadataHash: record.ContentHash,
			})
		case contentHash != record.ContentHash:
			found = append(found, Inconsistency{
				Kind:         HashMismatch,
				Identifier:   record.Identifier,
				MapID:        record.ID,
				MetadataHash: record.ContentHash,
				ContentHash:  contentHash,
			})
		}
		delete(hashes, record.Identifier)
	}
	for identifier, contentHash := range hashes {
		found = append(found, Inconsistency{
			Kind:        OrphanContent,
			Identifier:  identifier,
			ContentHash: contentHash,
		})
	}
	slices.SortFunc(found, func(a, b Inconsistency) int {
		return strings.Compare(a.Identifier, b.Identifier)
	})

	if len(found) > 0 {
		m.logger.Warn("map store inconsistencies found", "count", len(found))
	}
	return found, nil
}

func (m *Manager) lookupMaps(ctx context.Context, ids []int64) (map[int64]MapRecord, error) {
	metadata, err := m.metadata.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer metadata.Rollback()
	return metadata.LookupMaps(ids)
}

func (m *Manager) fail(op string, fallback envelope.ErrorCode, id int64, identifier string, err error) error {
	return &Error{
		Code:       codeFor(err, fallback),
		Op:         op,
		MapID:      id,
		Identifier: identifier,
		Err:        err,
	}
}

func (m *Manager) compensationFailed(op string, id int64, err error) error {
	m.logger.Error("compensation failed; stores may be inconsistent",
		"op", op,
		"map_id", id,
		"error", err,
	)
	return fmt.Errorf("compensating %s: %w", op, err)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	return unique
}
