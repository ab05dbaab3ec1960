// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package maphandler is the server's protocol surface: the classes,
// their permissions, and one handler per (class, function).
//
// Handlers translate payloads to mapstore.Manager calls and records
// back to payloads. They never touch a repository directly. Ownership
// comes from the session, never from the payload: a teacher can only
// act on maps created under their own username.
package maphandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/mapforge/lib/clock"
	"github.com/bureau-foundation/mapforge/lib/dispatch"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/mapstore"
	"github.com/bureau-foundation/mapforge/lib/session"
	"github.com/bureau-foundation/mapforge/lib/version"
)

// Class names.
const (
	ClassSession = "session"
	ClassServer  = "server"
	ClassTeacher = "teacher"
	ClassStudent = "student"
	ClassAdmin   = "admin"
)

// RequiredKeys lists every operation the server must expose. Passed to
// dispatch.Registry.Validate at startup.
var RequiredKeys = []dispatch.Key{
	{Class: ClassSession, Function: "login"},
	{Class: ClassSession, Function: "whoami"},
	{Class: ClassServer, Function: "status"},
	{Class: ClassTeacher, Function: "createMap"},
	{Class: ClassTeacher, Function: "updateMapContent"},
	{Class: ClassTeacher, Function: "removeMap"},
	{Class: ClassTeacher, Function: "renameMap"},
	{Class: ClassTeacher, Function: "getAllMap"},
	{Class: ClassTeacher, Function: "getMap"},
	{Class: ClassStudent, Function: "getMapContent"},
	{Class: ClassStudent, Function: "findMission"},
	{Class: ClassAdmin, Function: "getAllMap"},
	{Class: ClassAdmin, Function: "verify"},
}

// Config holds the parameters for creating Handlers.
type Config struct {
	Manager       *mapstore.Manager
	Authenticator session.Authenticator

	// Clock measures uptime for server/status. Defaults to the real
	// clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Handlers implements the protocol surface.
type Handlers struct {
	manager       *mapstore.Manager
	authenticator session.Authenticator
	clock         clock.Clock
	logger        *slog.Logger
	startedAt     time.Time
}

// New creates Handlers.
func New(cfg Config) (*Handlers, error) {
	if cfg.Manager == nil {
		return nil, errors.New("maphandler: Manager is required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("maphandler: Authenticator is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		manager:       cfg.Manager,
		authenticator: cfg.Authenticator,
		clock:         clk,
		logger:        logger,
		startedAt:     clk.Now(),
	}, nil
}

// Register declares every class and registers every handler.
func (h *Handlers) Register(registry *dispatch.Registry) {
	registry.Class(ClassSession, dispatch.Anyone)
	registry.Class(ClassServer, dispatch.Anyone)
	registry.Class(ClassTeacher, dispatch.RequireRole(session.RoleTeacher))
	registry.Class(ClassStudent, dispatch.AnyRole(session.RoleStudent, session.RoleTeacher))
	registry.Class(ClassAdmin, dispatch.RequireRole(session.RoleAdmin))

	registry.Handle(ClassSession, "login", h.login)
	registry.Handle(ClassSession, "whoami", h.whoami)

	registry.Handle(ClassServer, "status", h.status)

	registry.Handle(ClassTeacher, "createMap", h.createMap)
	registry.Handle(ClassTeacher, "updateMapContent", h.updateMapContent)
	registry.Handle(ClassTeacher, "removeMap", h.removeMap)
	registry.Handle(ClassTeacher, "renameMap", h.renameMap)
	registry.Handle(ClassTeacher, "getAllMap", h.listOwnMaps)
	registry.Handle(ClassTeacher, "getMap", h.getOwnMap)

	registry.Handle(ClassStudent, "getMapContent", h.getMapContent)
	registry.Handle(ClassStudent, "findMission", h.findMission)

	registry.Handle(ClassAdmin, "getAllMap", h.listAllMaps)
	registry.Handle(ClassAdmin, "verify", h.verify)
}

func (h *Handlers) login(ctx context.Context, caller *session.Session, request dispatch.Request) (dispatch.Result, error) {
	username, err := dispatch.String(request.Payload, "username")
	if err != nil {
		return dispatch.Result{}, err
	}
	token, err := dispatch.String(request.Payload, "token")
	if err != nil {
		return dispatch.Result{}, err
	}

	roles, err := h.authenticator.Authenticate(ctx, username, token)
	if err != nil {
		caller.Clear()
		h.logger.Info("login rejected",
			"username", username,
			"connection_id", caller.ConnectionID,
			"remote", caller.RemoteAddr,
		)
		if errors.Is(err, session.ErrBadCredentials) {
			return dispatch.Result{}, envelope.Errorf(envelope.CodeUnauthenticated, "%v", err)
		}
		return dispatch.Result{}, fmt.Errorf("authenticating %s: %w", username, err)
	}

	caller.SetIdentity(username, roles)
	h.logger.Info("login",
		"username", username,
		"roles", roles.String(),
		"connection_id", caller.ConnectionID,
		"remote", caller.RemoteAddr,
	)
	return dispatch.Result{Payload: identityPayload(caller)}, nil
}

func (h *Handlers) whoami(_ context.Context, caller *session.Session, _ dispatch.Request) (dispatch.Result, error) {
	return dispatch.Result{Payload: identityPayload(caller)}, nil
}

func (h *Handlers) status(ctx context.Context, _ *session.Session, _ dispatch.Request) (dispatch.Result, error) {
	stats, err := h.manager.Stats(ctx)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{
		"version":        version.Info(),
		"uptime_seconds": int64(clock.Since(h.clock, h.startedAt) / time.Second),
		"maps":           stats.Maps,
		"mission_links":  stats.MissionLinks,
		"content_bytes":  stats.ContentBytes,
		"stored_bytes":   stats.StoredBytes,
	}}, nil
}

func (h *Handlers) createMap(ctx context.Context, caller *session.Session, request dispatch.Request) (dispatch.Result, error) {
	name, err := dispatch.String(request.Payload, "name")
	if err != nil {
		return dispatch.Result{}, err
	}
	record, err := h.manager.CreateMap(ctx, caller.Username, name)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{
		"id":         record.ID,
		"identifier": record.Identifier,
		"version":    record.Version,
	}}, nil
}

func (h *Handlers) updateMapContent(ctx context.Context, caller *session.Session, request dispatch.Request) (dispatch.Result, error) {
	id, err := dispatch.Int64(request.Payload, "id")
	if err != nil {
		return dispatch.Result{}, err
	}
	record, err := h.manager.UpdateMapContent(ctx, id, caller.Username, request.Binary)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{
		"id":            record.ID,
		"version":       record.Version,
		"content_hash":  record.ContentHash,
		"mission_count": int64(record.MissionCount),
		"size":          record.Size,
	}}, nil
}

// removeMap accepts either "id" or "ids".
func (h *Handlers) removeMap(ctx context.Context, caller *session.Session, request dispatch.Request) (dispatch.Result, error) {
	var ids []int64
	if _, batch := request.Payload["ids"]; batch {
		var err error
		if ids, err = dispatch.Int64s(request.Payload, "ids"); err != nil {
			return dispatch.Result{}, err
		}
	} else {
		id, err := dispatch.Int64(request.Payload, "id")
		if err != nil {
			return dispatch.Result{}, err
		}
		ids = []int64{id}
	}

	result, err := h.manager.RemoveMaps(ctx, ids, caller.Username)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{"removed": result.Removed}}, nil
}

func (h *Handlers) renameMap(ctx context.Context, caller *session.Session, request dispatch.Request) (dispatch.Result, error) {
	id, err := dispatch.Int64(request.Payload, "id")
	if err != nil {
		return dispatch.Result{}, err
	}
	name, err := dispatch.String(request.Payload, "name")
	if err != nil {
		return dispatch.Result{}, err
	}
	record, err := h.manager.RenameMap(ctx, id, caller.Username, name)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{"id": record.ID, "name": record.Name}}, nil
}

func (h *Handlers) listOwnMaps(ctx context.Context, caller *session.Session, _ dispatch.Request) (dispatch.Result, error) {
	return h.listMaps(ctx, caller.Username)
}

func (h *Handlers) listAllMaps(ctx context.Context, _ *session.Session, _ dispatch.Request) (dispatch.Result, error) {
	return h.listMaps(ctx, "")
}

func (h *Handlers) listMaps(ctx context.Context, owner string) (dispatch.Result, error) {
	records, err := h.manager.ListMaps(ctx, owner)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{"maps": recordsPayload(records)}}, nil
}

// getOwnMap returns a map by id, with its content, to its owner. Maps
// owned by others are reported as not found.
func (h *Handlers) getOwnMap(ctx context.Context, caller *session.Session, request dispatch.Request) (dispatch.Result, error) {
	id, err := dispatch.Int64(request.Payload, "id")
	if err != nil {
		return dispatch.Result{}, err
	}
	record, err := h.manager.GetMap(ctx, id)
	if err != nil {
		return dispatch.Result{}, err
	}
	if record.Owner != caller.Username {
		return dispatch.Result{}, envelope.Errorf(envelope.CodeNotFound, "map %d not found", id)
	}
	record, data, err := h.manager.GetMapContent(ctx, record.Identifier)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{"map": recordPayload(record)}, Binary: data}, nil
}

func (h *Handlers) getMapContent(ctx context.Context, _ *session.Session, request dispatch.Request) (dispatch.Result, error) {
	identifier, err := dispatch.String(request.Payload, "identifier")
	if err != nil {
		return dispatch.Result{}, err
	}
	record, data, err := h.manager.GetMapContent(ctx, identifier)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{"map": recordPayload(record)}, Binary: data}, nil
}

func (h *Handlers) findMission(ctx context.Context, _ *session.Session, request dispatch.Request) (dispatch.Result, error) {
	mission, err := dispatch.String(request.Payload, "mission")
	if err != nil {
		return dispatch.Result{}, err
	}
	records, err := h.manager.FindMission(ctx, mission)
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{Payload: map[string]any{"maps": recordsPayload(records)}}, nil
}

func (h *Handlers) verify(ctx context.Context, caller *session.Session, _ dispatch.Request) (dispatch.Result, error) {
	found, err := h.manager.Verify(ctx)
	if err != nil {
		return dispatch.Result{}, err
	}
	h.logger.Info("verify requested", "username", caller.Username, "inconsistencies", len(found))

	inconsistencies := make([]any, 0, len(found))
	for _, inconsistency := range found {
		inconsistencies = append(inconsistencies, map[string]any{
			"kind":          string(inconsistency.Kind),
			"identifier":    inconsistency.Identifier,
			"id":            inconsistency.MapID,
			"metadata_hash": inconsistency.MetadataHash,
			"content_hash":  inconsistency.ContentHash,
		})
	}
	return dispatch.Result{Payload: map[string]any{
		"consistent":      len(found) == 0,
		"inconsistencies": inconsistencies,
	}}, nil
}
