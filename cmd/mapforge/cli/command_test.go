// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "mapforge",
		Subcommands: []*Command{
			{Name: "list", Run: func(args []string) error { called = "list"; return nil }},
			{Name: "rename", Run: func(args []string) error {
				called = "rename"
				receivedArgs = args
				return nil
			}},
		},
	}

	if err := root.Execute([]string{"rename", "4", "Level One"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "rename" {
		t.Errorf("dispatched to %q, want rename", called)
	}
	if len(receivedArgs) != 2 || receivedArgs[1] != "Level One" {
		t.Errorf("args = %q", receivedArgs)
	}
}

func TestCommand_Execute_UnknownSuggests(t *testing.T) {
	root := &Command{
		Name:        "mapforge",
		Subcommands: []*Command{{Name: "upload", Run: func([]string) error { return nil }}},
	}

	err := root.Execute([]string{"uplaod"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "upload"`) {
		t.Fatalf("Execute(uplaod) = %v", err)
	}

	err = root.Execute([]string{"teleport"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Fatalf("Execute(teleport) = %v", err)
	}
}

func TestCommand_Execute_ParsesFlags(t *testing.T) {
	var all bool
	var gotArgs []string
	command := &Command{
		Name: "list",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.BoolVar(&all, "all", false, "every owner")
			return flagSet
		},
		Run: func(args []string) error {
			gotArgs = args
			return nil
		},
	}

	if err := command.Execute([]string{"--all", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if !all {
		t.Error("--all was not parsed")
	}
	if len(gotArgs) != 1 || gotArgs[0] != "extra" {
		t.Errorf("positional args = %q", gotArgs)
	}
}

func TestCommand_Execute_UnknownFlagSuggests(t *testing.T) {
	command := &Command{
		Name: "get",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("get", pflag.ContinueOnError)
			flagSet.String("output", "", "file")
			return flagSet
		},
		Run: func([]string) error { return nil },
	}

	err := command.Execute([]string{"--ouptut", "x"})
	if err == nil || !strings.Contains(err.Error(), "did you mean --output?") {
		t.Fatalf("Execute(--ouptut) = %v", err)
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "mapforge",
		Subcommands: []*Command{{Name: "status", Run: func([]string) error { return nil }}},
	}
	if err := root.Execute(nil); err == nil {
		t.Fatal("Execute() with no subcommand succeeded")
	}
}

func TestCommand_PrintHelp(t *testing.T) {
	root := &Command{
		Name:        "mapforge",
		Description: "Manage maps.",
		Subcommands: []*Command{
			{Name: "create", Summary: "Create an empty map"},
			{Name: "verify", Summary: "Cross-check the stores"},
		},
	}
	var buffer bytes.Buffer
	root.PrintHelp(&buffer)

	for _, want := range []string{"Manage maps.", "Usage:\n  mapforge <command> [flags]", "create", "Cross-check the stores", "mapforge <command> --help"} {
		if !strings.Contains(buffer.String(), want) {
			t.Errorf("help output missing %q:\n%s", want, buffer.String())
		}
	}
}

func TestExactArgs(t *testing.T) {
	if err := ExactArgs([]string{"1", "a"}, 2, "id", "name"); err != nil {
		t.Errorf("ExactArgs(2 of 2) = %v", err)
	}
	if err := ExactArgs([]string{"1"}, 2, "id", "name"); err == nil || !strings.Contains(err.Error(), "<name>") {
		t.Errorf("ExactArgs(1 of 2) = %v, want missing <name>", err)
	}
	if err := ExactArgs([]string{"1", "2"}, 0); err == nil {
		t.Error("ExactArgs accepted extra arguments")
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"list", "", 4},
		{"list", "list", 0},
		{"lsit", "list", 2},
		{"verfy", "verify", 1},
		{"kitten", "sitting", 3},
	}
	for _, test := range tests {
		if got := levenshtein(test.a, test.b); got != test.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}
