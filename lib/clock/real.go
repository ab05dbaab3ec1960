// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

type realClock struct{}

// Real returns a Clock backed by the system wall clock.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }
