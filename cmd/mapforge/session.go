// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bureau-foundation/mapforge/cmd/mapforge/cli"
	"github.com/bureau-foundation/mapforge/lib/client"
)

func statusCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "status",
		Summary: "Show server version, uptime, and storage totals",
		Flags:   r.flags("status"),
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "server", "status", nil, nil)
				if err != nil {
					return err
				}
				status := response.Payload
				return r.output.Emit(status, func(w *tabwriter.Writer) {
					uptime := time.Duration(cli.Int(status, "uptime_seconds")) * time.Second
					fmt.Fprintf(w, "version:\t%s\n", cli.Str(status, "version"))
					fmt.Fprintf(w, "uptime:\t%s\n", uptime)
					fmt.Fprintf(w, "maps:\t%d\n", cli.Int(status, "maps"))
					fmt.Fprintf(w, "mission links:\t%d\n", cli.Int(status, "mission_links"))
					fmt.Fprintf(w, "content:\t%s (%s stored)\n",
						cli.Bytes(cli.Int(status, "content_bytes")),
						cli.Bytes(cli.Int(status, "stored_bytes")))
				})
			})
		},
	}
}

func whoamiCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "whoami",
		Summary: "Log in and show the resulting identity",
		Description: `Log in with --user and show the identity the server assigned.
Without --user, shows the identity of an anonymous connection.`,
		Flags: r.flags("whoami"),
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				identity, err := conn.Whoami(ctx)
				if err != nil {
					return err
				}
				result := map[string]any{
					"username":      identity.Username,
					"roles":         cli.NonNil(identity.Roles),
					"authenticated": identity.Authenticated,
				}
				return r.output.Emit(result, func(w *tabwriter.Writer) {
					if !identity.Authenticated {
						fmt.Fprintln(w, "not logged in")
						return
					}
					fmt.Fprintf(w, "user:\t%s\n", identity.Username)
					fmt.Fprintf(w, "roles:\t%s\n", strings.Join(identity.Roles, ", "))
				})
			})
		},
	}
}
