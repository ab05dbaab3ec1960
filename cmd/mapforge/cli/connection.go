// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/mapforge/lib/client"
)

// Connection holds the flags that locate and authenticate to a server.
// The token is never a flag, since flags are visible to other users
// through the process table: it comes from --token-file or
// MAPFORGE_TOKEN.
type Connection struct {
	Network   string
	Address   string
	User      string
	TokenFile string
}

// DefaultAddress is the socket path used when neither --address nor
// MAPFORGE_ADDRESS is set. It matches the server's default
// configuration.
func DefaultAddress() string {
	if address := os.Getenv("MAPFORGE_ADDRESS"); address != "" {
		return address
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".cache", "mapforge", "mapforge.sock")
}

// AddFlags registers the connection flags.
func (c *Connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.Network, "network", "unix", "server network: unix or tcp")
	flagSet.StringVar(&c.Address, "address", DefaultAddress(), "server socket path or host:port (env MAPFORGE_ADDRESS)")
	flagSet.StringVarP(&c.User, "user", "u", os.Getenv("MAPFORGE_USER"), "log in as this user (env MAPFORGE_USER)")
	flagSet.StringVar(&c.TokenFile, "token-file", "", "read the login token from this file (default: env MAPFORGE_TOKEN)")
}

// token returns the login token for User.
func (c *Connection) token() (string, error) {
	if c.TokenFile != "" {
		data, err := os.ReadFile(c.TokenFile)
		if err != nil {
			return "", fmt.Errorf("reading token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("token file %s is empty", c.TokenFile)
		}
		return token, nil
	}
	if token := os.Getenv("MAPFORGE_TOKEN"); token != "" {
		return token, nil
	}
	return "", errors.New("no token: set MAPFORGE_TOKEN or pass --token-file")
}

// Connect dials the server and, when a user is configured, logs in.
func (c *Connection) Connect(ctx context.Context) (*client.Client, error) {
	var token string
	if c.User != "" {
		var err error
		if token, err = c.token(); err != nil {
			return nil, err
		}
	}

	conn, err := client.Dial(ctx, c.Network, c.Address)
	if err != nil {
		return nil, err
	}
	if c.User == "" {
		return conn, nil
	}
	if _, err := conn.Login(ctx, c.User, token); err != nil {
		conn.Close()
		return nil, fmt.Errorf("logging in as %s: %w", c.User, err)
	}
	return conn, nil
}
