// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mapforge/lib/config"
	"github.com/bureau-foundation/mapforge/lib/process"
	"github.com/bureau-foundation/mapforge/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("mapforge-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to mapforge.yaml (default: $MAPFORGE_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	if showVersion {
		fmt.Printf("mapforge-server %s\n", version.Full())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	instance, err := start(cfg, logger)
	if err != nil {
		return err
	}
	defer instance.Close()

	binaryHash, err := version.ExecutableHash()
	if err != nil {
		logger.Warn("cannot hash executable", "error", err)
	}
	logger.Info("mapforge server starting",
		"version", version.Info(),
		"binary_blake3", binaryHash,
		"environment", cfg.Environment,
		"metadata_db", cfg.Paths.MetadataDB,
		"content_db", cfg.Paths.ContentDB,
		"sealed", instance.sealed,
	)

	if err := instance.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}
