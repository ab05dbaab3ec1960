// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapstore_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/mapforge/lib/clock"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/mapdata"
	"github.com/bureau-foundation/mapforge/lib/mapstore"
	"github.com/bureau-foundation/mapforge/lib/mapstore/contentdb"
	"github.com/bureau-foundation/mapforge/lib/mapstore/metadatadb"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	manager  *mapstore.Manager
	metadata *metadatadb.DB
	content  *contentdb.DB
	faults   *faults
	clock    *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	directory := t.TempDir()

	metadata, err := metadatadb.Open(metadatadb.Config{Path: filepath.Join(directory, "metadata.db"), PoolSize: 4})
	if err != nil {
		t.Fatalf("metadatadb.Open: %v", err)
	}
	t.Cleanup(func() { metadata.Close() })

	content, err := contentdb.Open(contentdb.Config{Path: filepath.Join(directory, "content.db"), PoolSize: 4})
	if err != nil {
		t.Fatalf("contentdb.Open: %v", err)
	}
	t.Cleanup(func() { content.Close() })

	injected := newFaults()
	fakeClock := clock.Fake(epoch)
	var sequence atomic.Int64
	manager, err := mapstore.NewManager(mapstore.ManagerConfig{
		Metadata: faultyMetadata{inner: metadata, faults: injected},
		Content:  faultyContent{inner: content, faults: injected},
		Clock:    fakeClock,
		NewIdentifier: func() string {
			return fmt.Sprintf("I%d", sequence.Add(1))
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &harness{
		manager:  manager,
		metadata: metadata,
		content:  content,
		faults:   injected,
		clock:    fakeClock,
	}
}

func (h *harness) create(t *testing.T, owner, name string) mapstore.MapRecord {
	t.Helper()
	record, err := h.manager.CreateMap(context.Background(), owner, name)
	if err != nil {
		t.Fatalf("CreateMap(%s, %s): %v", owner, name, err)
	}
	return record
}

func (h *harness) update(t *testing.T, id int64, owner string, data []byte) mapstore.MapRecord {
	t.Helper()
	record, err := h.manager.UpdateMapContent(context.Background(), id, owner, data)
	if err != nil {
		t.Fatalf("UpdateMapContent(%d): %v", id, err)
	}
	return record
}

func (h *harness) requireConsistent(t *testing.T) {
	t.Helper()
	found, err := h.manager.Verify(context.Background())
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(found) > 0 {
		t.Fatalf("stores inconsistent: %+v", found)
	}
}

func (h *harness) missionMaps(t *testing.T, mission string) []int64 {
	t.Helper()
	records, err := h.manager.FindMission(context.Background(), mission)
	if err != nil {
		t.Fatalf("FindMission(%s): %v", mission, err)
	}
	ids := []int64{}
	for _, record := range records {
		ids = append(ids, record.ID)
	}
	return ids
}

func requireCode(t *testing.T, err error, want envelope.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("got nil error, want %s", want)
	}
	if got := envelope.CodeOf(err); got != want {
		t.Fatalf("error code = %s, want %s (error: %v)", got, want, err)
	}
}

func missions(identifiers ...string) []byte {
	var buffer bytes.Buffer
	buffer.WriteString(`{"name": "level", "missions": [`)
	for i, identifier := range identifiers {
		if i > 0 {
			buffer.WriteString(", ")
		}
		fmt.Fprintf(&buffer, `{"identifier": %q}`, identifier)
	}
	buffer.WriteString("]}")
	return buffer.Bytes()
}

func TestNewManagerRequiresRepositories(t *testing.T) {
	if _, err := mapstore.NewManager(mapstore.ManagerConfig{}); err == nil {
		t.Error("NewManager accepted a config without repositories")
	}
}

func TestCreateMap(t *testing.T) {
	h := newHarness(t)
	record := h.create(t, "alice", "L1")

	if record.ID == 0 || record.Identifier != "I1" {
		t.Errorf("record = %+v", record)
	}
	if record.Version != 1 {
		t.Errorf("Version = %d, want 1", record.Version)
	}
	if record.ContentHash != mapdata.EmptyHash || record.MissionCount != 0 || record.Size != 0 {
		t.Errorf("new map is not empty: %+v", record)
	}
	if !record.CreatedAt.Equal(epoch) || !record.ModifiedAt.Equal(epoch) {
		t.Errorf("timestamps = %v, %v; want %v", record.CreatedAt, record.ModifiedAt, epoch)
	}

	stored, data, err := h.manager.GetMapContent(context.Background(), record.Identifier)
	if err != nil {
		t.Fatalf("GetMapContent: %v", err)
	}
	if stored.ID != record.ID || len(data) != 0 {
		t.Errorf("GetMapContent = %+v, %q", stored, data)
	}
	h.requireConsistent(t)
}

func TestCreateMapValidation(t *testing.T) {
	h := newHarness(t)
	_, err := h.manager.CreateMap(context.Background(), "alice", "   ")
	requireCode(t, err, envelope.CodeInvalidArgument)
	if !errors.Is(err, mapstore.ErrInvalidArgument) {
		t.Errorf("error %v does not match ErrInvalidArgument", err)
	}
	_, err = h.manager.CreateMap(context.Background(), "", "L1")
	requireCode(t, err, envelope.CodeInvalidArgument)

	maps, err := h.manager.ListMaps(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(maps) != 0 {
		t.Errorf("rejected creates left %d maps", len(maps))
	}
}

func TestCreateMapFailures(t *testing.T) {
	for _, point := range []string{"content.begin", "content.insert", "metadata.commit", "content.commit"} {
		t.Run(point, func(t *testing.T) {
			h := newHarness(t)
			h.faults.arm(point, 1)

			_, err := h.manager.CreateMap(context.Background(), "alice", "L1")
			requireCode(t, err, envelope.CodeCreateFailed)
			if !errors.Is(err, errInjected) {
				t.Errorf("error %v does not wrap the injected fault", err)
			}

			maps, err := h.manager.ListMaps(context.Background(), "")
			if err != nil {
				t.Fatal(err)
			}
			if len(maps) != 0 {
				t.Errorf("failed create left maps: %+v", maps)
			}
			h.requireConsistent(t)

			// The stores still accept a create afterwards.
			h.create(t, "alice", "L1")
			h.requireConsistent(t)
		})
	}
}

func TestUpdateMapContent(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "alice", "L1")
	h.clock.Advance(time.Minute)

	data := missions("m2", "m1", "m2")
	updated := h.update(t, created.ID, "alice", data)

	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}
	if updated.ContentHash != mapdata.Hash(data) {
		t.Errorf("ContentHash = %s, want %s", updated.ContentHash, mapdata.Hash(data))
	}
	if updated.MissionCount != 2 || updated.Size != int64(len(data)) {
		t.Errorf("MissionCount = %d, Size = %d", updated.MissionCount, updated.Size)
	}
	if !updated.ModifiedAt.Equal(epoch.Add(time.Minute)) || !updated.CreatedAt.Equal(epoch) {
		t.Errorf("timestamps = %v, %v", updated.CreatedAt, updated.ModifiedAt)
	}

	record, stored, err := h.manager.GetMapContent(context.Background(), created.Identifier)
	if err != nil {
		t.Fatalf("GetMapContent: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Errorf("stored content = %q", stored)
	}
	if record.ContentHash != mapdata.Hash(stored) || record.Version != 2 {
		t.Errorf("metadata after update = %+v", record)
	}

	for _, mission := range []string{"m1", "m2"} {
		if ids := h.missionMaps(t, mission); !slices.Equal(ids, []int64{created.ID}) {
			t.Errorf("FindMission(%s) = %v", mission, ids)
		}
	}
	h.requireConsistent(t)
}

func TestUpdateIdenticalContentAdvancesVersion(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "alice", "L1")
	data := missions("m1")
	first := h.update(t, created.ID, "alice", data)
	second := h.update(t, created.ID, "alice", data)
	if first.Version != 2 || second.Version != 3 {
		t.Errorf("versions = %d, %d; want 2, 3", first.Version, second.Version)
	}
	if first.ContentHash != second.ContentHash {
		t.Error("identical content produced different hashes")
	}
}

func TestUpdateMissionLinksAccumulate(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "alice", "L1")
	h.update(t, created.ID, "alice", missions("m1"))
	h.update(t, created.ID, "alice", missions("m2"))

	// Links are only ever added by updates.
	if ids := h.missionMaps(t, "m1"); !slices.Equal(ids, []int64{created.ID}) {
		t.Errorf("FindMission(m1) = %v", ids)
	}
	if ids := h.missionMaps(t, "m2"); !slices.Equal(ids, []int64{created.ID}) {
		t.Errorf("FindMission(m2) = %v", ids)
	}
}

func TestUpdateRejections(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "alice", "L1")

	_, err := h.manager.UpdateMapContent(context.Background(), created.ID, "bob", missions("m1"))
	requireCode(t, err, envelope.CodeNotFound)
	if !errors.Is(err, mapstore.ErrNotFound) {
		t.Errorf("error %v does not match ErrNotFound", err)
	}

	_, err = h.manager.UpdateMapContent(context.Background(), created.ID+100, "alice", missions("m1"))
	requireCode(t, err, envelope.CodeNotFound)

	_, err = h.manager.UpdateMapContent(context.Background(), created.ID, "alice", []byte(`{"missions": [{"title": "no id"}]}`))
	requireCode(t, err, envelope.CodeInvalidArgument)

	var storeErr *mapstore.Error
	if !errors.As(err, &storeErr) || storeErr.Op != "update" || storeErr.MapID != created.ID {
		t.Errorf("error %v is not a *mapstore.Error for update of map %d", err, created.ID)
	}

	// Ownership is settled before content is parsed: unparseable bytes
	// sent to a map the caller cannot see still report NotFound.
	garbage := []byte("not a map")
	_, err = h.manager.UpdateMapContent(context.Background(), created.ID, "bob", garbage)
	requireCode(t, err, envelope.CodeNotFound)
	_, err = h.manager.UpdateMapContent(context.Background(), created.ID+100, "alice", garbage)
	requireCode(t, err, envelope.CodeNotFound)

	record, err := h.manager.GetMap(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if record.Version != 1 {
		t.Errorf("rejected updates changed the version to %d", record.Version)
	}
}

func TestUpdateFailuresLeaveMapUnchanged(t *testing.T) {
	points := []string{
		"content.begin",
		"content.replace",
		"metadata.set_content",
		"metadata.commit",
		"content.commit",
	}
	for _, point := range points {
		t.Run(point, func(t *testing.T) {
			h := newHarness(t)
			created := h.create(t, "alice", "L1")
			original := missions("m1")
			before := h.update(t, created.ID, "alice", original)

			h.clock.Advance(time.Hour)
			h.faults.arm(point, 1)
			_, err := h.manager.UpdateMapContent(context.Background(), created.ID, "alice", missions("m1", "m2"))
			requireCode(t, err, envelope.CodeUpdateFailed)

			after, data, err := h.manager.GetMapContent(context.Background(), created.Identifier)
			if err != nil {
				t.Fatalf("GetMapContent: %v", err)
			}
			if after.Version != before.Version || after.ContentHash != before.ContentHash {
				t.Errorf("failed update changed the map: before %+v, after %+v", before, after)
			}
			if after.MissionCount != 1 || !after.ModifiedAt.Equal(before.ModifiedAt) {
				t.Errorf("failed update changed derived fields: %+v", after)
			}
			if !bytes.Equal(data, original) {
				t.Errorf("failed update changed content to %q", data)
			}
			if ids := h.missionMaps(t, "m2"); len(ids) != 0 {
				t.Errorf("failed update left mission link m2 on %v", ids)
			}
			if ids := h.missionMaps(t, "m1"); !slices.Equal(ids, []int64{created.ID}) {
				t.Errorf("failed update removed pre-existing link m1: %v", ids)
			}
			h.requireConsistent(t)

			// The next update takes the next version.
			next := h.update(t, created.ID, "alice", missions("m3"))
			if next.Version != before.Version+1 {
				t.Errorf("version after recovery = %d, want %d", next.Version, before.Version+1)
			}
		})
	}
}

func TestAliceScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created := h.create(t, "alice", "L1")
	if created.Version != 1 {
		t.Fatalf("created version = %d", created.Version)
	}
	updated := h.update(t, created.ID, "alice", missions("m1", "m2"))
	if updated.Version != 2 {
		t.Fatalf("updated version = %d", updated.Version)
	}

	stats, err := h.manager.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Maps != 1 || stats.MissionLinks != 2 {
		t.Errorf("Stats = %+v, want 1 map and 2 links", stats)
	}

	result, err := h.manager.RemoveMaps(ctx, []int64{created.ID}, "alice")
	if err != nil {
		t.Fatalf("RemoveMaps: %v", err)
	}
	if !slices.Equal(result.Removed, []int64{created.ID}) {
		t.Errorf("Removed = %v", result.Removed)
	}

	if _, err := h.manager.GetMap(ctx, created.ID); !errors.Is(err, mapstore.ErrNotFound) {
		t.Errorf("GetMap after remove: %v", err)
	}
	if _, _, err := h.manager.GetMapContent(ctx, created.Identifier); !errors.Is(err, mapstore.ErrNotFound) {
		t.Errorf("GetMapContent after remove: %v", err)
	}
	stats, err = h.manager.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Maps != 0 || stats.MissionLinks != 0 || stats.ContentBytes != 0 || stats.StoredBytes != 0 {
		t.Errorf("Stats after remove = %+v", stats)
	}
	h.requireConsistent(t)
}

func TestRemoveRejectsWholeBatch(t *testing.T) {
	tests := []struct {
		name     string
		foreign  bool
		wantCode envelope.ErrorCode
	}{
		{"foreign map", true, envelope.CodePermissionDenied},
		{"missing map", false, envelope.CodeNotFound},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			h := newHarness(t)
			first := h.create(t, "alice", "A")
			other := h.create(t, "bob", "B")
			last := h.create(t, "alice", "C")

			middle := other.ID
			if !test.foreign {
				middle = last.ID + 100
			}
			result, err := h.manager.RemoveMaps(context.Background(), []int64{first.ID, middle, last.ID}, "alice")
			requireCode(t, err, test.wantCode)
			if len(result.Removed) != 0 {
				t.Errorf("Removed = %v, want none", result.Removed)
			}

			var removeErr *mapstore.RemoveError
			if !errors.As(err, &removeErr) {
				t.Fatalf("error %T is not a *RemoveError", err)
			}
			payload := removeErr.ErrorPayload()
			if removed := payload["removed"].([]int64); len(removed) != 0 || payload["failed"] != middle {
				t.Errorf("ErrorPayload = %v", payload)
			}
			if _, named := payload["failed_identifier"]; named {
				t.Errorf("rejected batch names an identifier: %v", payload)
			}

			maps, err := h.manager.ListMaps(context.Background(), "")
			if err != nil {
				t.Fatal(err)
			}
			if len(maps) != 3 {
				t.Errorf("%d maps left, want 3", len(maps))
			}
		})
	}
}

func TestRemovePartialBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.create(t, "alice", "A")
	second := h.create(t, "alice", "B")
	third := h.create(t, "alice", "C")
	h.update(t, second.ID, "alice", missions("m1"))

	h.faults.arm("content.delete:"+second.Identifier, 1)
	result, err := h.manager.RemoveMaps(ctx, []int64{first.ID, second.ID, third.ID}, "alice")
	requireCode(t, err, envelope.CodeRemoveFailed)

	if !slices.Equal(result.Removed, []int64{first.ID}) {
		t.Errorf("Removed = %v, want [%d]", result.Removed, first.ID)
	}
	var removeErr *mapstore.RemoveError
	if !errors.As(err, &removeErr) {
		t.Fatalf("error %T is not a *RemoveError", err)
	}
	if removeErr.Failed != second.ID || !slices.Equal(removeErr.Removed, []int64{first.ID}) {
		t.Errorf("RemoveError = %+v", removeErr)
	}
	if removeErr.FailedIdentifier != second.Identifier {
		t.Errorf("FailedIdentifier = %q, want %q", removeErr.FailedIdentifier, second.Identifier)
	}
	if payload := removeErr.ErrorPayload(); payload["failed_identifier"] != second.Identifier {
		t.Errorf("ErrorPayload = %v, want failed_identifier %s", payload, second.Identifier)
	}
	if !strings.Contains(err.Error(), second.Identifier) {
		t.Errorf("error %q does not name identifier %s", err, second.Identifier)
	}

	if _, err := h.manager.GetMap(ctx, first.ID); !errors.Is(err, mapstore.ErrNotFound) {
		t.Errorf("first map survived: %v", err)
	}
	for _, id := range []int64{second.ID, third.ID} {
		if _, err := h.manager.GetMap(ctx, id); err != nil {
			t.Errorf("map %d was removed: %v", id, err)
		}
	}
	if ids := h.missionMaps(t, "m1"); !slices.Equal(ids, []int64{second.ID}) {
		t.Errorf("mission links of the failed map changed: %v", ids)
	}
	h.requireConsistent(t)
}

func TestRemoveMetadataCommitFailureRestoresContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created := h.create(t, "alice", "L1")
	data := missions("m1", "m2")
	h.update(t, created.ID, "alice", data)

	h.faults.arm("metadata.commit", 1)
	result, err := h.manager.RemoveMaps(ctx, []int64{created.ID}, "alice")
	requireCode(t, err, envelope.CodeRemoveFailed)
	if len(result.Removed) != 0 {
		t.Errorf("Removed = %v", result.Removed)
	}

	_, stored, err := h.manager.GetMapContent(ctx, created.Identifier)
	if err != nil {
		t.Fatalf("GetMapContent: %v", err)
	}
	if !bytes.Equal(stored, data) {
		t.Errorf("restored content = %q", stored)
	}
	h.requireConsistent(t)
}

func TestRemoveCollapsesDuplicates(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "alice", "L1")
	result, err := h.manager.RemoveMaps(context.Background(), []int64{created.ID, created.ID}, "alice")
	if err != nil {
		t.Fatalf("RemoveMaps: %v", err)
	}
	if !slices.Equal(result.Removed, []int64{created.ID}) {
		t.Errorf("Removed = %v", result.Removed)
	}

	_, err = h.manager.RemoveMaps(context.Background(), nil, "alice")
	requireCode(t, err, envelope.CodeInvalidArgument)
}

func TestRenameMap(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "alice", "L1")
	h.clock.Advance(time.Second)

	renamed, err := h.manager.RenameMap(context.Background(), created.ID, "alice", "Fractions")
	if err != nil {
		t.Fatalf("RenameMap: %v", err)
	}
	if renamed.Name != "Fractions" || renamed.Version != 1 {
		t.Errorf("renamed = %+v", renamed)
	}
	stored, err := h.manager.GetMap(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "Fractions" || stored.Version != 1 || stored.ContentHash != created.ContentHash {
		t.Errorf("stored = %+v", stored)
	}

	_, err = h.manager.RenameMap(context.Background(), created.ID, "bob", "Mine")
	requireCode(t, err, envelope.CodeNotFound)
	_, err = h.manager.RenameMap(context.Background(), created.ID, "alice", "")
	requireCode(t, err, envelope.CodeInvalidArgument)
}

func TestListMapsByOwner(t *testing.T) {
	h := newHarness(t)
	a1 := h.create(t, "alice", "A1")
	h.create(t, "bob", "B1")
	a2 := h.create(t, "alice", "A2")

	owned, err := h.manager.ListMaps(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(owned) != 2 || owned[0].ID != a1.ID || owned[1].ID != a2.ID {
		t.Errorf("ListMaps(alice) = %+v", owned)
	}
	all, err := h.manager.ListMaps(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("ListMaps(\"\") = %d maps", len(all))
	}
}

func TestFindMissionAcrossMaps(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, "alice", "A")
	second := h.create(t, "bob", "B")
	h.update(t, first.ID, "alice", missions("shared", "only-a"))
	h.update(t, second.ID, "bob", missions("shared"))

	if ids := h.missionMaps(t, "shared"); !slices.Equal(ids, []int64{first.ID, second.ID}) {
		t.Errorf("FindMission(shared) = %v", ids)
	}
	if ids := h.missionMaps(t, "absent"); len(ids) != 0 {
		t.Errorf("FindMission(absent) = %v", ids)
	}
	_, err := h.manager.FindMission(context.Background(), " ")
	requireCode(t, err, envelope.CodeInvalidArgument)
}

func TestVerifyFindsInconsistencies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	missing := h.create(t, "alice", "missing content")
	stale := h.create(t, "alice", "stale hash")
	h.create(t, "alice", "healthy")

	content, err := h.content.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := content.Delete(missing.Identifier); err != nil {
		t.Fatal(err)
	}
	if err := content.Replace(mapstore.ContentRecord{Identifier: stale.Identifier, Data: missions("m1")}); err != nil {
		t.Fatal(err)
	}
	if err := content.Insert(mapstore.ContentRecord{Identifier: "orphan"}); err != nil {
		t.Fatal(err)
	}
	if err := content.Commit(); err != nil {
		t.Fatal(err)
	}

	found, err := h.manager.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	want := map[string]mapstore.InconsistencyKind{
		missing.Identifier: mapstore.MissingContent,
		stale.Identifier:   mapstore.HashMismatch,
		"orphan":           mapstore.OrphanContent,
	}
	if len(found) != len(want) {
		t.Fatalf("Verify found %d inconsistencies, want %d: %+v", len(found), len(want), found)
	}
	for _, inconsistency := range found {
		if want[inconsistency.Identifier] != inconsistency.Kind {
			t.Errorf("%s: kind %s, want %s", inconsistency.Identifier, inconsistency.Kind, want[inconsistency.Identifier])
		}
	}
	if !slices.IsSortedFunc(found, func(a, b mapstore.Inconsistency) int {
		if a.Identifier < b.Identifier {
			return -1
		}
		if a.Identifier > b.Identifier {
			return 1
		}
		return 0
	}) {
		t.Errorf("Verify results not sorted: %+v", found)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	h := newHarness(t)
	created := h.create(t, "alice", "L1")

	const writers = 8
	var waitGroup sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := h.manager.UpdateMapContent(context.Background(), created.ID, "alice", missions(fmt.Sprintf("m%d", i)))
			errs <- err
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent update: %v", err)
		}
	}

	record, data, err := h.manager.GetMapContent(context.Background(), created.Identifier)
	if err != nil {
		t.Fatal(err)
	}
	if record.Version != 1+writers {
		t.Errorf("Version = %d, want %d", record.Version, 1+writers)
	}
	if record.ContentHash != mapdata.Hash(data) {
		t.Error("metadata hash does not match the last committed content")
	}
	stats, err := h.manager.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.MissionLinks != writers {
		t.Errorf("MissionLinks = %d, want %d", stats.MissionLinks, writers)
	}
	h.requireConsistent(t)
}
