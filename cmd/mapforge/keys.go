// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/mapforge/cmd/mapforge/cli"
	"github.com/bureau-foundation/mapforge/lib/blobcodec"
	"github.com/bureau-foundation/mapforge/lib/session"
)

// readToken reads one token from stdin, without echo on a terminal.
func readToken(env environment) (string, error) {
	if file, ok := env.stdin.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(env.stderr, "token: ")
		secret, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(env.stderr)
		if err != nil {
			return "", fmt.Errorf("reading token: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}
	line, err := bufio.NewReader(env.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func hashTokenCommand(env environment) *cli.Command {
	output := cli.Output{Writer: env.stdout}
	return &cli.Command{
		Name:    "hash-token",
		Summary: "Print the digest of a login token for the server's users list",
		Description: `Read a token from stdin and print its BLAKE3 digest, the value of
token_blake3 in a server configuration's users list.`,
		Examples: []cli.Example{
			{Command: "head -c 32 /dev/urandom | base64 | tee alice.token | mapforge hash-token"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("hash-token", pflag.ContinueOnError)
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}
			token, err := readToken(env)
			if err != nil {
				return err
			}
			if token == "" {
				return errors.New("empty token")
			}
			digest := session.DigestToken(token)
			return output.Emit(map[string]any{"token_blake3": digest}, func(w *tabwriter.Writer) {
				fmt.Fprintln(w, digest)
			})
		},
	}
}

func keygenCommand(env environment) *cli.Command {
	output := cli.Output{Writer: env.stdout}
	var outputPath string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Create an age identity for sealing stored map content",
		Description: `Generate an X25519 age identity and write it to --output with mode
0600. Point storage.seal_identity_file at it to encrypt map content
at rest. Losing the file makes sealed content unreadable.`,
		Usage: "mapforge keygen --output <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVarP(&outputPath, "output", "o", "", "identity file to create (must not exist)")
			output.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if err := cli.ExactArgs(args, 0); err != nil {
				return err
			}
			if outputPath == "" {
				return cli.Validation("--output is required")
			}
			identity, recipient, err := blobcodec.GenerateIdentity()
			if err != nil {
				return err
			}
			file, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
			if err != nil {
				return fmt.Errorf("creating identity file: %w", err)
			}
			_, writeErr := fmt.Fprintf(file, "# recipient: %s\n%s\n", recipient, identity)
			if err := errors.Join(writeErr, file.Close()); err != nil {
				os.Remove(outputPath)
				return fmt.Errorf("writing identity file: %w", err)
			}
			return output.Emit(map[string]any{"identity_file": outputPath, "recipient": recipient}, func(w *tabwriter.Writer) {
				fmt.Fprintf(w, "wrote %s\nrecipient: %s\n", outputPath, recipient)
			})
		},
	}
}
