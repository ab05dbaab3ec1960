// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/mapforge/lib/blobcodec"
	"github.com/bureau-foundation/mapforge/lib/client"
	"github.com/bureau-foundation/mapforge/lib/config"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/session"
	"github.com/bureau-foundation/mapforge/lib/testutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.Root = root
	cfg.Paths.MetadataDB = filepath.Join(root, "metadata.db")
	cfg.Paths.ContentDB = filepath.Join(root, "content.db")
	cfg.Server.Address = testutil.SocketPath(t, "mapforge.sock")
	cfg.Users = []config.UserConfig{
		{Name: "alice", TokenBlake3: session.DigestToken("alice-token"), Roles: []string{"teacher"}},
		{Name: "sam", TokenBlake3: session.DigestToken("sam-token"), Roles: []string{"student"}},
	}
	return cfg
}

func runInstance(t *testing.T, cfg *config.Config) {
	t.Helper()
	instance, err := start(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- instance.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
		if err := instance.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func login(t *testing.T, cfg *config.Config, username string) *client.Client {
	t.Helper()
	ctx := context.Background()
	c, err := client.Dial(ctx, cfg.Server.Network, cfg.Server.Address)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if _, err := c.Login(ctx, username, username+"-token"); err != nil {
		t.Fatalf("Login %s: %v", username, err)
	}
	return c
}

func TestServerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	runInstance(t, cfg)
	ctx := context.Background()

	alice := login(t, cfg, "alice")
	created, err := alice.Call(ctx, "teacher", "createMap", map[string]any{"name": "L1"}, nil)
	if err != nil {
		t.Fatalf("createMap: %v", err)
	}
	id := created.Payload["id"].(int64)
	identifier := created.Payload["identifier"].(string)
	if created.Payload["version"] != int64(1) {
		t.Errorf("created version = %v, want 1", created.Payload["version"])
	}

	content := []byte(`{"missions": [{"identifier": "m2"}, {"identifier": "m1"}], "tiles": "` + strings.Repeat("grass ", 200) + `"}`)
	updated, err := alice.Call(ctx, "teacher", "updateMapContent", map[string]any{"id": id}, content)
	if err != nil {
		t.Fatalf("updateMapContent: %v", err)
	}
	if updated.Payload["version"] != int64(2) || updated.Payload["mission_count"] != int64(2) {
		t.Errorf("update result = %v", updated.Payload)
	}

	sam := login(t, cfg, "sam")
	fetched, err := sam.Call(ctx, "student", "getMapContent", map[string]any{"identifier": identifier}, nil)
	if err != nil {
		t.Fatalf("getMapContent: %v", err)
	}
	if !bytes.Equal(fetched.Binary, content) {
		t.Errorf("fetched content differs from uploaded content")
	}

	found, err := sam.Call(ctx, "student", "findMission", map[string]any{"mission": "m1"}, nil)
	if err != nil {
		t.Fatalf("findMission: %v", err)
	}
	if maps, _ := found.Payload["maps"].([]any); len(maps) != 1 {
		t.Errorf("findMission m1 = %v", found.Payload)
	}

	if _, err := sam.Call(ctx, "teacher", "createMap", map[string]any{"name": "nope"}, nil); envelope.CodeOf(err) != envelope.CodePermissionDenied {
		t.Errorf("student createMap: %v, want PermissionDenied", err)
	}

	removed, err := alice.Call(ctx, "teacher", "removeMap", map[string]any{"id": id}, nil)
	if err != nil {
		t.Fatalf("removeMap: %v", err)
	}
	if ids, _ := removed.Payload["removed"].([]any); len(ids) != 1 || ids[0] != id {
		t.Errorf("removed = %v", removed.Payload)
	}
	if _, err := sam.Call(ctx, "student", "getMapContent", map[string]any{"identifier": identifier}, nil); envelope.CodeOf(err) != envelope.CodeNotFound {
		t.Errorf("getMapContent after removal: %v, want NotFound", err)
	}
}

func TestServerSealsContent(t *testing.T) {
	cfg := testConfig(t)
	identity, _, err := blobcodec.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	cfg.Storage.SealIdentityFile = filepath.Join(cfg.Paths.Root, "identity.age")
	if err := os.WriteFile(cfg.Storage.SealIdentityFile, []byte(identity+"\n"), 0o600); err != nil {
		t.Fatalf("writing identity: %v", err)
	}
	runInstance(t, cfg)
	ctx := context.Background()

	secret := []byte(`{"missions": [{"identifier": "hidden-mission-marker"}]}`)
	alice := login(t, cfg, "alice")
	created, err := alice.Call(ctx, "teacher", "createMap", map[string]any{"name": "sealed"}, nil)
	if err != nil {
		t.Fatalf("createMap: %v", err)
	}
	if _, err := alice.Call(ctx, "teacher", "updateMapContent", map[string]any{"id": created.Payload["id"]}, secret); err != nil {
		t.Fatalf("updateMapContent: %v", err)
	}
	fetched, err := alice.Call(ctx, "teacher", "getMap", map[string]any{"id": created.Payload["id"]}, nil)
	if err != nil {
		t.Fatalf("getMap: %v", err)
	}
	if !bytes.Equal(fetched.Binary, secret) {
		t.Errorf("getMap content = %q", fetched.Binary)
	}

	for _, path := range []string{cfg.Paths.ContentDB, cfg.Paths.ContentDB + "-wal"} {
		raw, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		if bytes.Contains(raw, []byte("hidden-mission-marker")) {
			t.Errorf("%s holds plaintext map content", filepath.Base(path))
		}
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Compression = "gzip"
	if _, err := start(cfg, slog.New(slog.DiscardHandler)); err == nil || !strings.Contains(err.Error(), "storage.compression") {
		t.Fatalf("start = %v, want compression error", err)
	}
}

func TestStartRejectsMissingIdentity(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.SealIdentityFile = filepath.Join(cfg.Paths.Root, "absent.age")
	if _, err := start(cfg, slog.New(slog.DiscardHandler)); err == nil {
		t.Fatal("start succeeded without the identity file")
	}
	// Nothing was opened, so the socket is not bound.
	if _, err := os.Stat(cfg.Server.Address); !os.IsNotExist(err) {
		t.Errorf("socket exists after failed start: %v", err)
	}
}

func TestCredentialsFromConfig(t *testing.T) {
	credentials, err := credentialsFromConfig([]config.UserConfig{
		{Name: "root", TokenBlake3: session.DigestToken("x"), Roles: []string{"admin", "teacher"}},
	})
	if err != nil {
		t.Fatalf("credentialsFromConfig: %v", err)
	}
	if len(credentials) != 1 || credentials[0].Roles != session.RoleAdmin|session.RoleTeacher {
		t.Errorf("credentials = %+v", credentials)
	}

	if _, err := credentialsFromConfig([]config.UserConfig{{Name: "x", Roles: []string{"janitor"}}}); err == nil {
		t.Error("unknown role accepted")
	}
}
