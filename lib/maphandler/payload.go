// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package maphandler

import (
	"time"

	"github.com/bureau-foundation/mapforge/lib/mapstore"
	"github.com/bureau-foundation/mapforge/lib/session"
)

func recordPayload(record mapstore.MapRecord) map[string]any {
	return map[string]any{
		"id":            record.ID,
		"identifier":    record.Identifier,
		"name":          record.Name,
		"owner":         record.Owner,
		"version":       record.Version,
		"mission_count": int64(record.MissionCount),
		"content_hash":  record.ContentHash,
		"size":          record.Size,
		"created_at":    record.CreatedAt.UTC().Format(time.RFC3339Nano),
		"modified_at":   record.ModifiedAt.UTC().Format(time.RFC3339Nano),
	}
}

func recordsPayload(records []mapstore.MapRecord) []any {
	list := make([]any, 0, len(records))
	for _, record := range records {
		list = append(list, recordPayload(record))
	}
	return list
}

func identityPayload(caller *session.Session) map[string]any {
	roles := caller.Roles.Names()
	if roles == nil {
		roles = []string{}
	}
	return map[string]any{
		"username":      caller.Username,
		"roles":         roles,
		"authenticated": caller.Authenticated(),
	}
}
