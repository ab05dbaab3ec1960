// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mapforge/cmd/mapforge/cli"
	"github.com/bureau-foundation/mapforge/lib/client"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/mapdata"
)

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, cli.Validation("invalid map id %q: must be a positive integer", arg)
	}
	return id, nil
}

func createCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "create",
		Summary: "Create an empty map owned by the logged-in teacher",
		Usage:   "mapforge create <name> [flags]",
		Flags:   r.flags("create"),
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 1, "name"); err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "teacher", "createMap", map[string]any{"name": args[0]}, nil)
				if err != nil {
					return err
				}
				created := response.Payload
				return r.output.Emit(created, func(w *tabwriter.Writer) {
					fmt.Fprintf(w, "created map %d (%s)\n", cli.Int(created, "id"), cli.Str(created, "identifier"))
				})
			})
		},
	}
}

func readInput(env environment, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(env.stdin)
	}
	return os.ReadFile(path)
}

func uploadCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "upload",
		Summary: "Replace a map's content",
		Description: `Replace the content of a map with a file ("-" reads stdin). The
content is checked locally before it is sent, and the content hash
the server reports is compared with the local one.`,
		Usage: "mapforge upload <id> <file> [flags]",
		Examples: []cli.Example{
			{Description: "Upload a compiled map", Command: "mapforge upload 12 level1.json -u alice"},
		},
		Flags: r.flags("upload"),
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 2, "id", "file"); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			data, err := readInput(env, args[1])
			if err != nil {
				return fmt.Errorf("reading map content: %w", err)
			}
			content, err := mapdata.Parse(data)
			if err != nil {
				return cli.Validation("%s: %v", args[1], err)
			}
			localHash := mapdata.Hash(data)

			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "teacher", "updateMapContent", map[string]any{"id": id}, data)
				if err != nil {
					return err
				}
				updated := response.Payload
				if remoteHash := cli.Str(updated, "content_hash"); remoteHash != localHash {
					return fmt.Errorf("server stored content hash %s, local content hash is %s", remoteHash, localHash)
				}
				return r.output.Emit(updated, func(w *tabwriter.Writer) {
					fmt.Fprintf(w, "map %d now at version %d: %d mission(s), %s\n",
						id, cli.Int(updated, "version"), len(content.Missions), cli.Bytes(int64(len(data))))
				})
			})
		},
	}
}

func renameCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "rename",
		Summary: "Rename a map",
		Usage:   "mapforge rename <id> <name> [flags]",
		Flags:   r.flags("rename"),
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 2, "id", "name"); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "teacher", "renameMap", map[string]any{"id": id, "name": args[1]}, nil)
				if err != nil {
					return err
				}
				return r.output.Emit(response.Payload, func(w *tabwriter.Writer) {
					fmt.Fprintf(w, "map %d renamed to %q\n", id, cli.Str(response.Payload, "name"))
				})
			})
		},
	}
}

func removeCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "remove",
		Summary: "Remove one or more maps",
		Description: `Remove maps by id. If any id is missing or owned by someone else,
nothing is removed. If the server fails part way through a batch,
the maps removed before the failure are listed and the command
exits non-zero.`,
		Usage: "mapforge remove <id>... [flags]",
		Flags: r.flags("remove"),
		Run: func(args []string) error {
			if len(args) == 0 {
				return cli.Validation("missing argument <id>")
			}
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, callErr := r.call(ctx, conn, "teacher", "removeMap", map[string]any{"ids": ids}, nil)
				if response == nil || (callErr != nil && len(response.Payload) == 0) {
					return callErr
				}
				removed := cli.NonNil(cli.List(response.Payload, "removed"))
				result := map[string]any{"removed": removed}
				if callErr != nil {
					result["failed"] = cli.Int(response.Payload, "failed")
					if identifier := cli.Str(response.Payload, "failed_identifier"); identifier != "" {
						result["failed_identifier"] = identifier
					}
					result["error"] = response.ErrorDetail
				}
				if err := r.output.Emit(result, func(w *tabwriter.Writer) {
					for _, id := range removed {
						fmt.Fprintf(w, "removed map %v\n", id)
					}
				}); err != nil {
					return err
				}
				return callErr
			})
		},
	}
}

func listCommand(env environment) *cli.Command {
	r := newRemote(env)
	var all bool
	flags := r.flags("list")
	return &cli.Command{
		Name:    "list",
		Summary: "List your maps, or every map with --all (admin)",
		Flags: func() *pflag.FlagSet {
			flagSet := flags()
			flagSet.BoolVar(&all, "all", false, "list maps of every owner (requires admin)")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}
			class := "teacher"
			if all {
				class = "admin"
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, class, "getAllMap", nil, nil)
				if err != nil {
					return err
				}
				maps := cli.NonNil(cli.List(response.Payload, "maps"))
				return r.output.Emit(maps, func(w *tabwriter.Writer) {
					cli.Maps(w, maps)
				})
			})
		},
	}
}

// fetched is the shared tail of get and content: verify the received
// bytes against the record, then write them out.
func (r *remote) fetched(response *envelope.Envelope, outputPath string) error {
	record, _ := response.Payload["map"].(map[string]any)
	if hash := mapdata.Hash(response.Binary); hash != cli.Str(record, "content_hash") {
		return fmt.Errorf("received content hash %s does not match record hash %s", hash, cli.Str(record, "content_hash"))
	}

	if outputPath == "" {
		_, err := r.env.stdout.Write(response.Binary)
		return err
	}
	if err := os.WriteFile(outputPath, response.Binary, 0o644); err != nil {
		return fmt.Errorf("writing map content: %w", err)
	}
	return r.output.Emit(record, func(w *tabwriter.Writer) {
		cli.Map(w, record)
	})
}

func getCommand(env environment) *cli.Command {
	r := newRemote(env)
	var outputPath string
	flags := r.flags("get")
	return &cli.Command{
		Name:    "get",
		Summary: "Download one of your maps by id",
		Description: `Download a map you own. The content is written to stdout, or to
--output, in which case the map record is printed instead.`,
		Usage: "mapforge get <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := flags()
			flagSet.StringVarP(&outputPath, "output", "o", "", "write content to this file")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 1, "id"); err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "teacher", "getMap", map[string]any{"id": id}, nil)
				if err != nil {
					return err
				}
				return r.fetched(response, outputPath)
			})
		},
	}
}

func contentCommand(env environment) *cli.Command {
	r := newRemote(env)
	var outputPath string
	flags := r.flags("content")
	return &cli.Command{
		Name:    "content",
		Summary: "Download any map's content by identifier",
		Usage:   "mapforge content <identifier> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := flags()
			flagSet.StringVarP(&outputPath, "output", "o", "", "write content to this file")
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 1, "identifier"); err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "student", "getMapContent", map[string]any{"identifier": args[0]}, nil)
				if err != nil {
					return err
				}
				return r.fetched(response, outputPath)
			})
		},
	}
}

func findCommand(env environment) *cli.Command {
	r := newRemote(env)
	return &cli.Command{
		Name:    "find",
		Summary: "List the maps that declare a mission",
		Usage:   "mapforge find <mission> [flags]",
		Flags:   r.flags("find"),
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 1, "mission"); err != nil {
				return err
			}
			return r.with(func(ctx context.Context, conn *client.Client) error {
				response, err := r.call(ctx, conn, "student", "findMission", map[string]any{"mission": args[0]}, nil)
				if err != nil {
					return err
				}
				maps := cli.NonNil(cli.List(response.Payload, "maps"))
				return r.output.Emit(maps, func(w *tabwriter.Writer) {
					if len(maps) == 0 {
						fmt.Fprintf(w, "no map declares mission %q\n", args[0])
						return
					}
					cli.Maps(w, maps)
				})
			})
		},
	}
}
