// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Mapforge is the operator CLI for a mapforge server. Every command
// opens one connection, optionally logs in (--user with MAPFORGE_TOKEN
// or --token-file), performs one protocol call, and prints the result:
// tables on a terminal, JSON otherwise.
//
// Two commands work offline: hash-token prints the digest to put in a
// server's users list, and keygen creates an age identity for sealing
// stored map content.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/mapforge/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return root(environment{
		ctx:    ctx,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}).Execute(os.Args[1:])
}
