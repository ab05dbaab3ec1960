// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the mapforge operator CLI:
// a tree of [Command] values dispatched by positional name, per-command
// pflag flag sets, typo suggestions, connection flags shared by every
// command that talks to a server ([Connection]), and output that is
// human-readable on a terminal and JSON otherwise ([Output]).
package cli
