// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapstore_test

import (
	"context"
	"errors"
	"sync"

	"github.com/bureau-foundation/mapforge/lib/mapstore"
)

var errInjected = errors.New("injected fault")

// faults arms one-shot failures at named points. A point is an
// operation name ("content.commit", "metadata.set_content"), optionally
// qualified by an identifier ("content.delete:I2").
type faults struct {
	mu    sync.Mutex
	armed map[string]int
}

func newFaults() *faults {
	return &faults{armed: make(map[string]int)}
}

// arm makes the next n hits of point fail.
func (f *faults) arm(point string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed[point] += n
}

func (f *faults) trip(points ...string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, point := range points {
		if f.armed[point] > 0 {
			f.armed[point]--
			return true
		}
	}
	return false
}

type faultyMetadata struct {
	inner  mapstore.MetadataRepository
	faults *faults
}

func (r faultyMetadata) Begin(ctx context.Context) (mapstore.MetadataTxn, error) {
	if r.faults.trip("metadata.begin") {
		return nil, errInjected
	}
	txn, err := r.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyMetadataTxn{MetadataTxn: txn, faults: r.faults}, nil
}

func (r faultyMetadata) BeginRead(ctx context.Context) (mapstore.MetadataTxn, error) {
	return r.inner.BeginRead(ctx)
}

type faultyMetadataTxn struct {
	mapstore.MetadataTxn
	faults *faults
}

func (t *faultyMetadataTxn) SetContent(id int64, fromVersion int64, state mapstore.ContentState) (bool, error) {
	if t.faults.trip("metadata.set_content") {
		return false, errInjected
	}
	return t.MetadataTxn.SetContent(id, fromVersion, state)
}

func (t *faultyMetadataTxn) DeleteMap(id int64) error {
	if t.faults.trip("metadata.delete") {
		return errInjected
	}
	return t.MetadataTxn.DeleteMap(id)
}

func (t *faultyMetadataTxn) Commit() error {
	if t.faults.trip("metadata.commit") {
		t.MetadataTxn.Rollback()
		return errInjected
	}
	return t.MetadataTxn.Commit()
}

type faultyContent struct {
	inner  mapstore.ContentRepository
	faults *faults
}

func (r faultyContent) Begin(ctx context.Context) (mapstore.ContentTxn, error) {
	if r.faults.trip("content.begin") {
		return nil, errInjected
	}
	txn, err := r.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyContentTxn{ContentTxn: txn, faults: r.faults}, nil
}

func (r faultyContent) BeginRead(ctx context.Context) (mapstore.ContentTxn, error) {
	return r.inner.BeginRead(ctx)
}

type faultyContentTxn struct {
	mapstore.ContentTxn
	faults *faults
}

func (t *faultyContentTxn) Insert(record mapstore.ContentRecord) error {
	if t.faults.trip("content.insert") {
		return errInjected
	}
	return t.ContentTxn.Insert(record)
}

func (t *faultyContentTxn) Replace(record mapstore.ContentRecord) error {
	if t.faults.trip("content.replace") {
		return errInjected
	}
	return t.ContentTxn.Replace(record)
}

func (t *faultyContentTxn) Delete(identifier string) error {
	if t.faults.trip("content.delete", "content.delete:"+identifier) {
		return errInjected
	}
	return t.ContentTxn.Delete(identifier)
}

func (t *faultyContentTxn) Commit() error {
	if t.faults.trip("content.commit") {
		t.ContentTxn.Rollback()
		return errInjected
	}
	return t.ContentTxn.Commit()
}
