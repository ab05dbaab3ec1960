// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for mapforge.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// Server configures the listener and per-connection limits.
	Server ServerConfig `yaml:"server"`

	// Storage configures the two SQLite databases.
	Storage StorageConfig `yaml:"storage"`

	// Log configures the process logger.
	Log LogConfig `yaml:"log"`

	// Users lists the accounts allowed to log in.
	Users []UserConfig `yaml:"users"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Paths   *PathsConfig   `yaml:"paths,omitempty"`
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Storage *StorageConfig `yaml:"storage,omitempty"`
	Log     *LogConfig     `yaml:"log,omitempty"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for mapforge data.
	Root string `yaml:"root"`

	// MetadataDB is the metadata database file.
	// Default: ${MAPFORGE_ROOT}/metadata.db
	MetadataDB string `yaml:"metadata_db"`

	// ContentDB is the content database file.
	// Default: ${MAPFORGE_ROOT}/content.db
	ContentDB string `yaml:"content_db"`
}

// ServerConfig configures the listener.
type ServerConfig struct {
	// Network is "unix" or "tcp".
	Network string `yaml:"network"`

	// Address is a socket path for unix, host:port for tcp.
	// Default: ${MAPFORGE_ROOT}/mapforge.sock
	Address string `yaml:"address"`

	// MaxFrameSize caps one request, e.g. "64 MiB".
	MaxFrameSize string `yaml:"max_frame_size"`

	// IdleTimeout closes connections that send nothing for this long.
	// Default: 5m
	IdleTimeout string `yaml:"idle_timeout"`

	// WriteTimeout bounds writing one response.
	// Default: 30s
	WriteTimeout string `yaml:"write_timeout"`
}

// StorageConfig configures the databases.
type StorageConfig struct {
	// MetadataPoolSize and ContentPoolSize bound the number of open
	// connections, and so the number of concurrent transactions, per
	// database.
	MetadataPoolSize int `yaml:"metadata_pool_size"`
	ContentPoolSize  int `yaml:"content_pool_size"`

	// BusyTimeout is how long a writer waits for the database lock.
	// Default: 5s
	BusyTimeout string `yaml:"busy_timeout"`

	// Compression selects the blob codec: auto, none, lz4, or zstd.
	// Default: auto (development), zstd (production)
	Compression string `yaml:"compression"`

	// SealIdentityFile is an age identity file. When set, stored map
	// content is encrypted to that identity.
	SealIdentityFile string `yaml:"seal_identity_file"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is text or json.
	// Default: text (development), json (production)
	Format string `yaml:"format"`
}

// UserConfig is one account. The token itself never appears in
// configuration, only its BLAKE3 hex digest.
type UserConfig struct {
	Name        string   `yaml:"name"`
	TokenBlake3 string   `yaml:"token_blake3"`
	Roles       []string `yaml:"roles"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "mapforge")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root:       defaultRoot,
			MetadataDB: "${MAPFORGE_ROOT}/metadata.db",
			ContentDB:  "${MAPFORGE_ROOT}/content.db",
		},
		Server: ServerConfig{
			Network:      "unix",
			Address:      "${MAPFORGE_ROOT}/mapforge.sock",
			MaxFrameSize: "64 MiB",
			IdleTimeout:  "5m",
			WriteTimeout: "30s",
		},
		Storage: StorageConfig{
			MetadataPoolSize: 8,
			ContentPoolSize:  8,
			BusyTimeout:      "5s",
			Compression:      "auto",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from MAPFORGE_CONFIG environment variable.
//
// There are no fallbacks or defaults - if MAPFORGE_CONFIG is not set,
// this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("MAPFORGE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("MAPFORGE_CONFIG environment variable not set; " +
			"set it to the path of your mapforge.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar variables inside path fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: always compress, machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Storage: &StorageConfig{Compression: "zstd"},
				Log:     &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Paths != nil {
		override(&c.Paths.Root, overrides.Paths.Root)
		override(&c.Paths.MetadataDB, overrides.Paths.MetadataDB)
		override(&c.Paths.ContentDB, overrides.Paths.ContentDB)
	}

	if overrides.Server != nil {
		override(&c.Server.Network, overrides.Server.Network)
		override(&c.Server.Address, overrides.Server.Address)
		override(&c.Server.MaxFrameSize, overrides.Server.MaxFrameSize)
		override(&c.Server.IdleTimeout, overrides.Server.IdleTimeout)
		override(&c.Server.WriteTimeout, overrides.Server.WriteTimeout)
	}

	if overrides.Storage != nil {
		if overrides.Storage.MetadataPoolSize > 0 {
			c.Storage.MetadataPoolSize = overrides.Storage.MetadataPoolSize
		}
		if overrides.Storage.ContentPoolSize > 0 {
			c.Storage.ContentPoolSize = overrides.Storage.ContentPoolSize
		}
		override(&c.Storage.BusyTimeout, overrides.Storage.BusyTimeout)
		override(&c.Storage.Compression, overrides.Storage.Compression)
		override(&c.Storage.SealIdentityFile, overrides.Storage.SealIdentityFile)
	}

	if overrides.Log != nil {
		override(&c.Log.Level, overrides.Log.Level)
		override(&c.Log.Format, overrides.Log.Format)
	}
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"MAPFORGE_ROOT": c.Paths.Root,
		"HOME":          os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["MAPFORGE_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.MetadataDB = expandVars(c.Paths.MetadataDB, vars)
	c.Paths.ContentDB = expandVars(c.Paths.ContentDB, vars)
	if c.Server.Network == "unix" {
		c.Server.Address = expandVars(c.Server.Address, vars)
	}
	c.Storage.SealIdentityFile = expandVars(c.Storage.SealIdentityFile, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	compressionValues = []string{"auto", "none", "lz4", "zstd"}
	logLevelValues    = []string{"debug", "info", "warn", "error"}
	logFormatValues   = []string{"text", "json"}
	roleValues        = []string{"student", "teacher", "admin"}
)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Paths.Root == "" {
		errs = append(errs, errors.New("paths.root is required"))
	}
	if c.Paths.MetadataDB == "" {
		errs = append(errs, errors.New("paths.metadata_db is required"))
	}
	if c.Paths.ContentDB == "" {
		errs = append(errs, errors.New("paths.content_db is required"))
	}
	if c.Paths.MetadataDB != "" && c.Paths.MetadataDB == c.Paths.ContentDB {
		errs = append(errs, errors.New("paths.metadata_db and paths.content_db must be different files"))
	}

	if c.Server.Network != "unix" && c.Server.Network != "tcp" {
		errs = append(errs, fmt.Errorf("server.network must be unix or tcp, got %q", c.Server.Network))
	}
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address is required"))
	}
	if _, err := c.Server.FrameLimit(); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("server.idle_timeout", c.Server.IdleTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseDuration("server.write_timeout", c.Server.WriteTimeout); err != nil {
		errs = append(errs, err)
	}

	if c.Storage.MetadataPoolSize <= 0 {
		errs = append(errs, errors.New("storage.metadata_pool_size must be positive"))
	}
	if c.Storage.ContentPoolSize <= 0 {
		errs = append(errs, errors.New("storage.content_pool_size must be positive"))
	}
	if _, err := parseDuration("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(compressionValues, c.Storage.Compression) {
		errs = append(errs, fmt.Errorf("storage.compression must be one of: %v", compressionValues))
	}

	if !slices.Contains(logLevelValues, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevelValues))
	}
	if !slices.Contains(logFormatValues, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", logFormatValues))
	}

	seen := make(map[string]bool, len(c.Users))
	for index, user := range c.Users {
		if user.Name == "" {
			errs = append(errs, fmt.Errorf("users[%d].name is required", index))
		} else if seen[user.Name] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate user %q", index, user.Name))
		}
		seen[user.Name] = true
		if !isHexDigest(user.TokenBlake3) {
			errs = append(errs, fmt.Errorf("users[%d].token_blake3 must be 64 lowercase hex characters", index))
		}
		if len(user.Roles) == 0 {
			errs = append(errs, fmt.Errorf("users[%d].roles must not be empty", index))
		}
		for _, role := range user.Roles {
			if !slices.Contains(roleValues, role) {
				errs = append(errs, fmt.Errorf("users[%d]: unknown role %q (want one of %v)", index, role, roleValues))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	return strings.Trim(s, "0123456789abcdef") == ""
}

func parseDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}

// FrameLimit returns MaxFrameSize in bytes.
func (s ServerConfig) FrameLimit() (int, error) {
	size, err := humanize.ParseBytes(s.MaxFrameSize)
	if err != nil {
		return 0, fmt.Errorf("server.max_frame_size: %w", err)
	}
	if size == 0 || size > 1<<32-1 {
		return 0, fmt.Errorf("server.max_frame_size must be between 1 byte and 4 GiB, got %q", s.MaxFrameSize)
	}
	return int(size), nil
}

// Timeouts returns the parsed idle and write timeouts.
func (s ServerConfig) Timeouts() (idle, write time.Duration, err error) {
	if idle, err = parseDuration("server.idle_timeout", s.IdleTimeout); err != nil {
		return 0, 0, err
	}
	if write, err = parseDuration("server.write_timeout", s.WriteTimeout); err != nil {
		return 0, 0, err
	}
	return idle, write, nil
}

// BusyTimeoutMillis returns BusyTimeout in milliseconds.
func (s StorageConfig) BusyTimeoutMillis() (int, error) {
	duration, err := parseDuration("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return 0, err
	}
	return int(duration.Milliseconds()), nil
}

// EnsurePaths creates the directories holding the databases and the
// socket.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		filepath.Dir(c.Paths.MetadataDB),
		filepath.Dir(c.Paths.ContentDB),
	}
	if c.Server.Network == "unix" {
		paths = append(paths, filepath.Dir(c.Server.Address))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}

// NewLogger builds the process logger from the Log section and sets
// it as the slog default.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch c.Log.Format {
	case "json":
		handler = slog.NewJSONHandler(w, options)
	case "text":
		handler = slog.NewTextHandler(w, options)
	default:
		return nil, fmt.Errorf("log.format must be one of: %v", logFormatValues)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
