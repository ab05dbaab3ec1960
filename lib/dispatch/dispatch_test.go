// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/session"
)

type partialError struct{}

func (partialError) Error() string                 { return "partial" }
func (partialError) ErrorCode() envelope.ErrorCode { return envelope.CodeRemoveFailed }
func (partialError) ErrorPayload() map[string]any  { return map[string]any{"removed": []int64{1}} }

func newTestRegistry(t *testing.T) (*Registry, *int) {
	t.Helper()
	calls := new(int)
	registry := NewRegistry(Config{})
	registry.Class("teacher", RequireRole(session.RoleTeacher))
	registry.Class("server", Anyone)

	registry.Handle("teacher", "echo", func(_ context.Context, caller *session.Session, request Request) (Result, error) {
		*calls++
		return Result{
			Payload: map[string]any{"caller": caller.Username, "echo": request.Payload["value"]},
			Binary:  request.Binary,
		}, nil
	})
	registry.Handle("teacher", "missing", func(context.Context, *session.Session, Request) (Result, error) {
		*calls++
		return Result{}, envelope.Errorf(envelope.CodeNotFound, "no such map")
	})
	registry.Handle("teacher", "broken", func(context.Context, *session.Session, Request) (Result, error) {
		*calls++
		return Result{}, fmt.Errorf("wrapped: %w", errors.New("disk on fire"))
	})
	registry.Handle("teacher", "panics", func(context.Context, *session.Session, Request) (Result, error) {
		*calls++
		panic("handler bug")
	})
	registry.Handle("teacher", "partial", func(context.Context, *session.Session, Request) (Result, error) {
		*calls++
		return Result{}, fmt.Errorf("batch: %w", partialError{})
	})
	registry.Handle("server", "status", func(context.Context, *session.Session, Request) (Result, error) {
		*calls++
		return Result{Payload: map[string]any{"ok": true}}, nil
	})
	return registry, calls
}

func teacherSession() *session.Session {
	caller := session.New(1, "test")
	caller.SetIdentity("alice", session.RoleTeacher)
	return caller
}

func request(class, function string) *envelope.Envelope {
	return &envelope.Envelope{Class: class, Function: function, CorrelationID: 42}
}

func TestDispatchSuccess(t *testing.T) {
	registry, calls := newTestRegistry(t)
	req := request("teacher", "echo")
	req.Payload = map[string]any{"value": int64(7)}
	req.Binary = []byte{0, 1, 2}

	response := registry.Dispatch(context.Background(), teacherSession(), req)
	if response.ErrorCode != envelope.CodeOK {
		t.Fatalf("ErrorCode = %s (%s)", response.ErrorCode, response.ErrorDetail)
	}
	if response.Class != "teacher" || response.Function != "echo" || response.CorrelationID != 42 {
		t.Errorf("response header = %s/%s #%d", response.Class, response.Function, response.CorrelationID)
	}
	if response.Payload["caller"] != "alice" || response.Payload["echo"] != int64(7) {
		t.Errorf("payload = %v", response.Payload)
	}
	if !slices.Equal(response.Binary, []byte{0, 1, 2}) {
		t.Errorf("binary = %v", response.Binary)
	}
	if *calls != 1 {
		t.Errorf("handler called %d times", *calls)
	}
}

func TestDispatchUnknownFunction(t *testing.T) {
	registry, calls := newTestRegistry(t)
	for _, req := range []*envelope.Envelope{request("teacher", "fly"), request("pilot", "echo")} {
		response := registry.Dispatch(context.Background(), teacherSession(), req)
		if response.ErrorCode != envelope.CodeUnknownFunction {
			t.Errorf("%s/%s: ErrorCode = %s", req.Class, req.Function, response.ErrorCode)
		}
		if response.CorrelationID != 42 {
			t.Errorf("correlation id not echoed")
		}
	}
	if *calls != 0 {
		t.Errorf("handlers called %d times", *calls)
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	registry, calls := newTestRegistry(t)
	student := session.New(2, "test")
	student.SetIdentity("sam", session.RoleStudent)

	for _, caller := range []*session.Session{student, session.New(3, "test"), nil} {
		response := registry.Dispatch(context.Background(), caller, request("teacher", "echo"))
		if response.ErrorCode != envelope.CodePermissionDenied {
			t.Errorf("ErrorCode = %s, want PermissionDenied", response.ErrorCode)
		}
		if len(response.Payload) != 0 || len(response.Binary) != 0 {
			t.Errorf("denied response carries data: %v %v", response.Payload, response.Binary)
		}
	}
	if *calls != 0 {
		t.Errorf("handler ran %d times for denied requests", *calls)
	}

	response := registry.Dispatch(context.Background(), nil, request("server", "status"))
	if response.ErrorCode != envelope.CodeOK {
		t.Errorf("server/status from anonymous session: %s", response.ErrorCode)
	}
}

func TestDispatchErrors(t *testing.T) {
	registry, _ := newTestRegistry(t)
	tests := []struct {
		function string
		want     envelope.ErrorCode
		detail   string
	}{
		{"missing", envelope.CodeNotFound, "no such map"},
		{"broken", envelope.CodeInternalError, "disk on fire"},
		{"panics", envelope.CodeInternalError, "handler bug"},
		{"partial", envelope.CodeRemoveFailed, "partial"},
	}
	for _, test := range tests {
		t.Run(test.function, func(t *testing.T) {
			response := registry.Dispatch(context.Background(), teacherSession(), request("teacher", test.function))
			if response.ErrorCode != test.want {
				t.Errorf("ErrorCode = %s, want %s", response.ErrorCode, test.want)
			}
			if !strings.Contains(response.ErrorDetail, test.detail) {
				t.Errorf("ErrorDetail = %q, want it to mention %q", response.ErrorDetail, test.detail)
			}
			if response.Class != "teacher" || response.CorrelationID != 42 {
				t.Errorf("error response header = %s #%d", response.Class, response.CorrelationID)
			}
		})
	}

	response := registry.Dispatch(context.Background(), teacherSession(), request("teacher", "partial"))
	if removed, ok := response.Payload["removed"].([]int64); !ok || !slices.Equal(removed, []int64{1}) {
		t.Errorf("partial failure payload = %v", response.Payload)
	}
	response = registry.Dispatch(context.Background(), teacherSession(), request("teacher", "missing"))
	if response.Payload != nil {
		t.Errorf("plain error response carries payload %v", response.Payload)
	}
}

func TestRegistrationPanics(t *testing.T) {
	tests := []struct {
		name     string
		register func(*Registry)
	}{
		{"duplicate class", func(r *Registry) { r.Class("server", Anyone) }},
		{"undeclared class", func(r *Registry) { r.Handle("pilot", "fly", noop) }},
		{"duplicate handler", func(r *Registry) { r.Handle("server", "status", noop) }},
		{"nil handler", func(r *Registry) { r.Handle("server", "uptime", nil) }},
		{"nil permission", func(r *Registry) { r.Class("admin", nil) }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			registry, _ := newTestRegistry(t)
			defer func() {
				if recover() == nil {
					t.Error("registration did not panic")
				}
			}()
			test.register(registry)
		})
	}
}

func noop(context.Context, *session.Session, Request) (Result, error) { return Result{}, nil }

func TestValidate(t *testing.T) {
	registry, _ := newTestRegistry(t)
	if err := registry.Validate(Key{"teacher", "echo"}, Key{"server", "status"}); err != nil {
		t.Errorf("Validate: %v", err)
	}

	registry.Class("admin", RequireRole(session.RoleAdmin))
	err := registry.Validate(Key{"student", "findMission"})
	if err == nil {
		t.Fatal("Validate accepted an incomplete registry")
	}
	for _, want := range []string{`class "admin" has no handlers`, "no handler for student/findMission"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error %q does not mention %q", err, want)
		}
	}
}

func TestKeys(t *testing.T) {
	registry, _ := newTestRegistry(t)
	keys := registry.Keys()
	if len(keys) != 6 || keys[0] != (Key{"server", "status"}) || keys[1] != (Key{"teacher", "broken"}) {
		t.Errorf("Keys = %v", keys)
	}
}

func TestPermissionPredicates(t *testing.T) {
	both := session.New(1, "test")
	both.SetIdentity("tina", session.RoleTeacher|session.RoleStudent)
	admin := session.New(2, "test")
	admin.SetIdentity("root", session.RoleAdmin)
	anonymous := session.New(3, "test")

	studentOrTeacher := AnyRole(session.RoleStudent, session.RoleTeacher)
	tests := []struct {
		name       string
		permission PermissionFunc
		caller     *session.Session
		want       bool
	}{
		{"teacher role held", RequireRole(session.RoleTeacher), both, true},
		{"teacher role missing", RequireRole(session.RoleTeacher), admin, false},
		{"any role held", studentOrTeacher, both, true},
		{"any role missing", studentOrTeacher, admin, false},
		{"anonymous", studentOrTeacher, anonymous, false},
		{"nil session", studentOrTeacher, nil, false},
		{"anyone", Anyone, anonymous, true},
	}
	for _, test := range tests {
		if got := test.permission(test.caller); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}
