// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var nameCounter atomic.Uint64

// UniqueName returns "prefix-N" with N increasing across the test
// binary, for map names and mission identifiers that must not collide
// between subtests sharing a store.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, nameCounter.Add(1))
}
