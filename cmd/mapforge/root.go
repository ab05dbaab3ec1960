// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mapforge/cmd/mapforge/cli"
	"github.com/bureau-foundation/mapforge/lib/client"
	"github.com/bureau-foundation/mapforge/lib/codec"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/version"
)

// environment is what commands read from and write to.
type environment struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func root(env environment) *cli.Command {
	return &cli.Command{
		Name:        "mapforge",
		Description: "Mapforge operator CLI: manage maps on a mapforge server.",
		Subcommands: []*cli.Command{
			statusCommand(env),
			whoamiCommand(env),
			createCommand(env),
			uploadCommand(env),
			renameCommand(env),
			removeCommand(env),
			listCommand(env),
			getCommand(env),
			contentCommand(env),
			findCommand(env),
			verifyCommand(env),
			hashTokenCommand(env),
			keygenCommand(env),
			versionCommand(env),
		},
	}
}

// remote is the flag state shared by commands that call the server.
type remote struct {
	env        environment
	connection cli.Connection
	output     cli.Output
	raw        bool
}

func newRemote(env environment) *remote {
	return &remote{env: env, output: cli.Output{Writer: env.stdout}}
}

func (r *remote) flags(name string) func() *pflag.FlagSet {
	return func() *pflag.FlagSet {
		flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
		r.connection.AddFlags(flagSet)
		r.output.AddFlags(flagSet)
		flagSet.BoolVar(&r.raw, "raw", false, "print each response envelope to stderr in CBOR diagnostic notation")
		return flagSet
	}
}

// with connects, runs fn, and closes the connection.
func (r *remote) with(fn func(ctx context.Context, conn *client.Client) error) error {
	conn, err := r.connection.Connect(r.env.ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(r.env.ctx, conn)
}

// call is conn.Call plus the --raw dump. The response is dumped even
// when it carries an error code.
func (r *remote) call(ctx context.Context, conn *client.Client, class, function string, payload map[string]any, binary []byte) (*envelope.Envelope, error) {
	response, err := conn.Call(ctx, class, function, payload, binary)
	if r.raw && response != nil {
		if dumpErr := dumpEnvelope(r.env.stderr, response); dumpErr != nil {
			return response, errors.Join(err, dumpErr)
		}
	}
	return response, err
}

func dumpEnvelope(w io.Writer, response *envelope.Envelope) error {
	data, err := envelope.Encode(response)
	if err != nil {
		return fmt.Errorf("encoding response for --raw: %w", err)
	}
	notation, err := codec.Diagnose(data)
	if err != nil {
		return fmt.Errorf("diagnosing response: %w", err)
	}
	fmt.Fprintf(w, "%s/%s #%d: %s\n", response.Class, response.Function, response.CorrelationID, notation)
	return nil
}

func versionCommand(env environment) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print the CLI version",
		Run: func(args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			fmt.Fprintf(env.stdout, "mapforge %s\n", version.Full())
			return nil
		},
	}
}
