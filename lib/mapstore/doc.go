// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mapstore keeps map metadata and map content consistent
// across two independent databases.
//
// A map lives in two places. The metadata repository holds the
// [MapRecord] (ownership, name, version, content hash) and the mission
// links that index which maps declare which missions. The content
// repository holds the map bytes, keyed by the map's immutable
// identifier. Neither database can see the other, so there is no
// distributed transaction: [Manager] runs each operation as a saga.
//
// Every Manager operation opens its own transactions, always taking
// the metadata transaction before the content transaction, and
// finishes them before returning. A failure before the metadata
// commit rolls both back. A failure of the content commit after the
// metadata commit is repaired by a compensating metadata transaction.
// Either way an error return means the stores are as they were before
// the call.
//
// The exception is [Manager.RemoveMaps]: maps removed earlier in a
// batch stay removed when a later map fails. The caller receives a
// [*RemoveError] naming what was removed and what failed, and must
// reconcile.
package mapstore
