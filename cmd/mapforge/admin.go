// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/bureau-foundation/mapforge/cmd/mapforge/cli"
	"github.com/bureau-foundation/mapforge/lib/client"
	"github.com/bureau-foundation/mapforge/lib/process"
)

// exitInconsistent is the exit status of verify when it finds problems.
const exitInconsistent = 2

func verifyCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "verify",
		Summary: "Cross-check the metadata and content stores (admin)",
		Description: `Compare every metadata record with the content store. Reports maps
whose content is missing, content with no metadata record, and
records whose content hash differs from the stored content. Exits
with status 2 when anything is found.`,
		Flags: r.flags("verify"),
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "admin", "verify", nil, nil)
				if err != nil {
					return err
				}
				found := cli.NonNil(cli.List(response.Payload, "inconsistencies"))
				err = r.output.Emit(response.Payload, func(w *tabwriter.Writer) {
					if len(found) == 0 {
						fmt.Fprintln(w, "metadata and content are consistent")
						return
					}
					fmt.Fprintln(w, "KIND\tID\tIDENTIFIER\tMETADATA HASH\tCONTENT HASH")
					for _, entry := range found {
						inconsistency, _ := entry.(map[string]any)
						fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
							cli.Str(inconsistency, "kind"),
							cli.Int(inconsistency, "id"),
							cli.Str(inconsistency, "identifier"),
							shortHash(cli.Str(inconsistency, "metadata_hash")),
							shortHash(cli.Str(inconsistency, "content_hash")),
						)
					}
				})
				if err != nil {
					return err
				}
				if len(found) > 0 {
					return &process.ExitError{Code: exitInconsistent}
				}
				return nil
			})
		},
	}
}

func shortHash(hash string) string {
	if hash == "" {
		return "-"
	}
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
