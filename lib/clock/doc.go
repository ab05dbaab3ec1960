// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the current time so map timestamps and
// dispatch durations are deterministic under test.
//
// Production code injects [Real]; tests inject [Fake] and move time
// with [FakeClock.Advance] or [FakeClock.Set].
package clock
