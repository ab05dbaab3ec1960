// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes request envelopes to handlers.
//
// Handlers are grouped into classes. Each class has one permission
// predicate, evaluated against the caller's session before any handler
// in the class runs. The registration table is built once at startup:
// declare classes with [Registry.Class], register handlers with
// [Registry.Handle], and check completeness with [Registry.Validate].
// Registration mistakes panic, so they surface on the first start
// rather than on the first request.
//
// [Registry.Dispatch] never fails: every outcome, including handler
// panics, becomes a response envelope.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/bureau-foundation/mapforge/lib/clock"
	"github.com/bureau-foundation/mapforge/lib/envelope"
	"github.com/bureau-foundation/mapforge/lib/session"
)

// Key names one operation.
type Key struct {
	Class    string
	Function string
}

func (k Key) String() string { return k.Class + "/" + k.Function }

// Request is the part of a request envelope a handler sees.
type Request struct {
	Payload       map[string]any
	Binary        []byte
	CorrelationID int64
}

// Result is what a successful handler returns. Both fields may be nil.
type Result struct {
	Payload map[string]any
	Binary  []byte
}

// HandlerFunc handles one (class, function). The session is the
// caller's; handlers that change identity (login) mutate it. Errors
// implementing envelope.Coded choose the response code; any other
// error is reported as InternalError.
type HandlerFunc func(ctx context.Context, caller *session.Session, request Request) (Result, error)

// PermissionFunc decides whether a session may call a class.
type PermissionFunc func(caller *session.Session) bool

// Anyone permits every session, authenticated or not.
func Anyone(*session.Session) bool { return true }

// RequireRole permits sessions holding role.
func RequireRole(role session.Role) PermissionFunc {
	return func(caller *session.Session) bool {
		return caller.HasRole(role)
	}
}

// AnyRole permits sessions holding at least one of roles.
func AnyRole(roles ...session.Role) PermissionFunc {
	var mask session.Role
	for _, role := range roles {
		mask |= role
	}
	return func(caller *session.Session) bool {
		return caller != nil && caller.Roles&mask != 0
	}
}

// payloadError is implemented by errors that attach a payload to their
// error response.
type payloadError interface {
	ErrorPayload() map[string]any
}

// Config holds the parameters for creating a Registry.
type Config struct {
	// Logger receives one line per dispatch. Nil discards.
	Logger *slog.Logger

	// Clock times handler execution. Defaults to the real clock.
	Clock clock.Clock
}

// Registry holds the handler table. Registration is not safe for
// concurrent use and must finish before the first Dispatch; Dispatch
// is safe for concurrent use.
type Registry struct {
	classes  map[string]PermissionFunc
	handlers map[Key]HandlerFunc
	logger   *slog.Logger
	clock    clock.Clock
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		classes:  make(map[string]PermissionFunc),
		handlers: make(map[Key]HandlerFunc),
		logger:   logger,
		clock:    clk,
	}
}

// Class declares a class and its permission predicate. Panics if the
// class is already declared.
func (r *Registry) Class(name string, permission PermissionFunc) {
	if name == "" || permission == nil {
		panic("dispatch.Registry: class needs a name and a permission")
	}
	if _, exists := r.classes[name]; exists {
		panic(fmt.Sprintf("dispatch.Registry: duplicate class %q", name))
	}
	r.classes[name] = permission
}

// Handle registers handler for (class, function). Panics if the class
// is undeclared or the key is already registered.
func (r *Registry) Handle(class, function string, handler HandlerFunc) {
	if _, exists := r.classes[class]; !exists {
		panic(fmt.Sprintf("dispatch.Registry: handler for undeclared class %q", class))
	}
	if function == "" || handler == nil {
		panic(fmt.Sprintf("dispatch.Registry: class %q: handler needs a function name and a func", class))
	}
	key := Key{Class: class, Function: function}
	if _, exists := r.handlers[key]; exists {
		panic(fmt.Sprintf("dispatch.Registry: duplicate handler for %s", key))
	}
	r.handlers[key] = handler
}

// Keys returns every registered key, sorted.
func (r *Registry) Keys() []Key {
	keys := make([]Key, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b Key) int {
		if c := strings.Compare(a.Class, b.Class); c != 0 {
			return c
		}
		return strings.Compare(a.Function, b.Function)
	})
	return keys
}

// Validate reports every declared class without handlers and every
// required key that is not registered.
func (r *Registry) Validate(required ...Key) error {
	var errs []error
	handled := make(map[string]bool, len(r.classes))
	for key := range r.handlers {
		handled[key.Class] = true
	}
	classes := make([]string, 0, len(r.classes))
	for class := range r.classes {
		classes = append(classes, class)
	}
	slices.Sort(classes)
	for _, class := range classes {
		if !handled[class] {
			errs = append(errs, fmt.Errorf("class %q has no handlers", class))
		}
	}
	for _, key := range required {
		if _, exists := r.handlers[key]; !exists {
			errs = append(errs, fmt.Errorf("no handler for %s", key))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("dispatch: incomplete registry: %w", err)
	}
	return nil
}

// Dispatch runs the handler for request and returns the response. The
// permission check always precedes the handler; a denied request never
// reaches it.
func (r *Registry) Dispatch(ctx context.Context, caller *session.Session, request *envelope.Envelope) *envelope.Envelope {
	key := Key{Class: request.Class, Function: request.Function}
	start := r.clock.Now()
	attrs := []any{
		"class", key.Class,
		"function", key.Function,
		"correlation_id", request.CorrelationID,
		"username", username(caller),
	}

	handler, exists := r.handlers[key]
	if !exists {
		r.logger.Info("unknown function", attrs...)
		return envelope.ErrorResponse(request, envelope.CodeUnknownFunction, fmt.Sprintf("unknown function %s", key))
	}

	if !r.classes[key.Class](caller) {
		r.logger.Info("permission denied", attrs...)
		return envelope.ErrorResponse(request, envelope.CodePermissionDenied, fmt.Sprintf("%s requires a different role", key))
	}

	result, err := r.invoke(ctx, handler, caller, Request{
		Payload:       request.Payload,
		Binary:        request.Binary,
		CorrelationID: request.CorrelationID,
	})
	attrs = append(attrs, "duration", clock.Since(r.clock, start))

	if err != nil {
		code := envelope.CodeOf(err)
		if code == envelope.CodeOK {
			code = envelope.CodeInternalError
		}
		attrs = append(attrs, "code", code.String(), "error", err)
		if code == envelope.CodeInternalError {
			r.logger.Warn("request failed", attrs...)
		} else {
			r.logger.Info("request failed", attrs...)
		}

		response := envelope.ErrorResponse(request, code, err.Error())
		var withPayload payloadError
		if errors.As(err, &withPayload) {
			response.Payload = withPayload.ErrorPayload()
		}
		return response
	}

	r.logger.Debug("request handled", attrs...)
	return envelope.Response(request, result.Payload, result.Binary)
}

func (r *Registry) invoke(ctx context.Context, handler HandlerFunc, caller *session.Session, request Request) (result Result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("handler panicked",
				"panic", fmt.Sprint(recovered),
				"stack", string(debug.Stack()),
			)
			result = Result{}
			err = envelope.Errorf(envelope.CodeInternalError, "handler panic: %v", recovered)
		}
	}()
	return handler(ctx, caller, request)
}

func username(caller *session.Session) string {
	if caller == nil {
		return ""
	}
	return caller.Username
}
