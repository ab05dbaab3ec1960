// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/bureau-foundation/mapforge/lib/blobcodec"
	"github.com/bureau-foundation/mapforge/lib/clock"
	"github.com/bureau-foundation/mapforge/lib/config"
	"github.com/bureau-foundation/mapforge/lib/dispatch"
	"github.com/bureau-foundation/mapforge/lib/maphandler"
	"github.com/bureau-foundation/mapforge/lib/mapstore"
	"github.com/bureau-foundation/mapforge/lib/mapstore/contentdb"
	"github.com/bureau-foundation/mapforge/lib/mapstore/metadatadb"
	"github.com/bureau-foundation/mapforge/lib/server"
	"github.com/bureau-foundation/mapforge/lib/session"
)

// instance is a configured server with its databases open and its
// listener bound.
type instance struct {
	metadata *metadatadb.DB
	content  *contentdb.DB
	server   *server.Server
	listener net.Listener
	sealed   bool
}

// start opens the databases, builds the handler registry, and binds
// the listener. On error everything opened so far is closed.
func start(cfg *config.Config, logger *slog.Logger) (_ *instance, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	frameLimit, err := cfg.Server.FrameLimit()
	if err != nil {
		return nil, err
	}
	idleTimeout, writeTimeout, err := cfg.Server.Timeouts()
	if err != nil {
		return nil, err
	}
	busyTimeout, err := cfg.Storage.BusyTimeoutMillis()
	if err != nil {
		return nil, err
	}

	credentials, err := credentialsFromConfig(cfg.Users)
	if err != nil {
		return nil, err
	}
	authenticator, err := session.NewStaticAuthenticator(credentials)
	if err != nil {
		return nil, err
	}
	if len(credentials) == 0 {
		logger.Warn("no users configured; every map function will be denied")
	}

	var sealer *blobcodec.Sealer
	if cfg.Storage.SealIdentityFile != "" {
		sealer, err = blobcodec.LoadSealer(cfg.Storage.SealIdentityFile)
		if err != nil {
			return nil, err
		}
	}

	result := &instance{sealed: sealer != nil}
	defer func() {
		if err != nil {
			result.Close()
		}
	}()

	result.metadata, err = metadatadb.Open(metadatadb.Config{
		Path:              cfg.Paths.MetadataDB,
		PoolSize:          cfg.Storage.MetadataPoolSize,
		BusyTimeoutMillis: busyTimeout,
		Logger:            logger.With("db", "metadata"),
	})
	if err != nil {
		return nil, err
	}
	result.content, err = contentdb.Open(contentdb.Config{
		Path:              cfg.Paths.ContentDB,
		PoolSize:          cfg.Storage.ContentPoolSize,
		BusyTimeoutMillis: busyTimeout,
		Compression:       cfg.Storage.Compression,
		Sealer:            sealer,
		Logger:            logger.With("db", "content"),
	})
	if err != nil {
		return nil, err
	}

	manager, err := mapstore.NewManager(mapstore.ManagerConfig{
		Metadata: result.metadata,
		Content:  result.content,
		Clock:    clock.Real(),
		Logger:   logger.With("component", "mapstore"),
	})
	if err != nil {
		return nil, err
	}

	handlers, err := maphandler.New(maphandler.Config{
		Manager:       manager,
		Authenticator: authenticator,
		Clock:         clock.Real(),
		Logger:        logger.With("component", "maphandler"),
	})
	if err != nil {
		return nil, err
	}
	registry := dispatch.NewRegistry(dispatch.Config{
		Logger: logger.With("component", "dispatch"),
		Clock:  clock.Real(),
	})
	handlers.Register(registry)
	if err := registry.Validate(maphandler.RequiredKeys...); err != nil {
		return nil, fmt.Errorf("handler registry incomplete: %w", err)
	}

	result.server, err = server.New(server.Config{
		Registry:     registry,
		MaxFrameSize: frameLimit,
		IdleTimeout:  idleTimeout,
		WriteTimeout: writeTimeout,
		Logger:       logger.With("component", "server"),
	})
	if err != nil {
		return nil, err
	}
	result.listener, err = server.Listen(cfg.Server.Network, cfg.Server.Address)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Serve runs until ctx is cancelled. It takes ownership of the
// listener; Close still closes the databases.
func (i *instance) Serve(ctx context.Context) error {
	listener := i.listener
	i.listener = nil
	return i.server.Serve(ctx, listener)
}

// Close releases everything start opened.
func (i *instance) Close() error {
	var errs []error
	if i.listener != nil {
		errs = append(errs, i.listener.Close())
	}
	if i.metadata != nil {
		errs = append(errs, i.metadata.Close())
	}
	if i.content != nil {
		errs = append(errs, i.content.Close())
	}
	return errors.Join(errs...)
}

func credentialsFromConfig(users []config.UserConfig) ([]session.Credential, error) {
	credentials := make([]session.Credential, 0, len(users))
	for _, user := range users {
		roles, err := session.ParseRoles(user.Roles)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", user.Name, err)
		}
		credentials = append(credentials, session.Credential{
			Username:    user.Name,
			TokenDigest: user.TokenBlake3,
			Roles:       roles,
		})
	}
	return credentials, nil
}
