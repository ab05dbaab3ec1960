// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"slices"
	"testing"

	"github.com/bureau-foundation/mapforge/lib/envelope"
)

func TestPayloadGetters(t *testing.T) {
	payload := map[string]any{
		"name":    "L1",
		"empty":   "",
		"id":      int64(12),
		"small":   7,
		"huge":    uint64(1) << 63,
		"ids":     []any{int64(1), uint64(2), 3},
		"typed":   []int64{4, 5},
		"mixed":   []any{int64(1), "two"},
		"decimal": 1.5,
	}

	if name, err := String(payload, "name"); err != nil || name != "L1" {
		t.Errorf("String(name) = %q, %v", name, err)
	}
	if id, err := Int64(payload, "id"); err != nil || id != 12 {
		t.Errorf("Int64(id) = %d, %v", id, err)
	}
	if small, err := Int64(payload, "small"); err != nil || small != 7 {
		t.Errorf("Int64(small) = %d, %v", small, err)
	}
	if ids, err := Int64s(payload, "ids"); err != nil || !slices.Equal(ids, []int64{1, 2, 3}) {
		t.Errorf("Int64s(ids) = %v, %v", ids, err)
	}
	if ids, err := Int64s(payload, "typed"); err != nil || !slices.Equal(ids, []int64{4, 5}) {
		t.Errorf("Int64s(typed) = %v, %v", ids, err)
	}

	failures := []struct {
		name string
		call func() error
	}{
		{"missing string", func() error { _, err := String(payload, "absent"); return err }},
		{"empty string", func() error { _, err := String(payload, "empty"); return err }},
		{"string of int", func() error { _, err := String(payload, "id"); return err }},
		{"missing int", func() error { _, err := Int64(payload, "absent"); return err }},
		{"int of string", func() error { _, err := Int64(payload, "name"); return err }},
		{"int of float", func() error { _, err := Int64(payload, "decimal"); return err }},
		{"overflowing int", func() error { _, err := Int64(payload, "huge"); return err }},
		{"list of string", func() error { _, err := Int64s(payload, "name"); return err }},
		{"mixed list", func() error { _, err := Int64s(payload, "mixed"); return err }},
	}
	for _, failure := range failures {
		err := failure.call()
		if envelope.CodeOf(err) != envelope.CodeInvalidArgument {
			t.Errorf("%s: error %v, want InvalidArgument", failure.name, err)
		}
	}
}
