// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mapstore

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/mapforge/lib/envelope"
)

var (
	// ErrNotFound: the map does not exist, or the caller does not own
	// it where ownership is part of the lookup.
	ErrNotFound = errors.New("map not found")

	// ErrPermissionDenied: the map exists but belongs to someone else.
	ErrPermissionDenied = errors.New("map owned by another user")

	// ErrInvalidArgument: the request was rejected before any
	// repository was touched.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error is returned by every Manager operation. Code is the protocol
// error code the dispatcher reports; Err is the cause.
type Error struct {
	Code       envelope.ErrorCode
	Op         string
	MapID      int64
	Identifier string
	Err        error
}

func (e *Error) Error() string {
	var subject string
	switch {
	case e.MapID != 0:
		subject = fmt.Sprintf(" map %d", e.MapID)
	case e.Identifier != "":
		subject = fmt.Sprintf(" map %s", e.Identifier)
	}
	return fmt.Sprintf("mapstore: %s%s: %v", e.Op, subject, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCode() envelope.ErrorCode { return e.Code }

// RemoveError reports a RemoveMaps batch that stopped at Failed. The
// maps in Removed were deleted and stay deleted. Removed is empty when
// the batch was rejected up front.
//
// FailedIdentifier is set only when the batch stopped partway, on a
// map the caller owns. A rejected batch never names the identifier of
// a map the caller cannot see.
type RemoveError struct {
	Code             envelope.ErrorCode
	Removed          []int64
	Failed           int64
	FailedIdentifier string
	Err              error
}

func (e *RemoveError) Error() string {
	subject := fmt.Sprintf("map %d", e.Failed)
	if e.FailedIdentifier != "" {
		subject = fmt.Sprintf("map %d (%s)", e.Failed, e.FailedIdentifier)
	}
	return fmt.Sprintf("mapstore: remove %s (after removing %d): %v", subject, len(e.Removed), e.Err)
}

func (e *RemoveError) Unwrap() error { return e.Err }

func (e *RemoveError) ErrorCode() envelope.ErrorCode { return e.Code }

// ErrorPayload is attached to the error response so the caller can
// reconcile a partial batch.
func (e *RemoveError) ErrorPayload() map[string]any {
	removed := e.Removed
	if removed == nil {
		removed = []int64{}
	}
	payload := map[string]any{
		"removed": removed,
		"failed":  e.Failed,
	}
	if e.FailedIdentifier != "" {
		payload["failed_identifier"] = e.FailedIdentifier
	}
	return payload
}

// codeFor maps a cause to a protocol code, falling back to the
// operation's failure code for repository faults.
func codeFor(err error, fallback envelope.ErrorCode) envelope.ErrorCode {
	switch {
	case errors.Is(err, ErrNotFound):
		return envelope.CodeNotFound
	case errors.Is(err, ErrPermissionDenied):
		return envelope.CodePermissionDenied
	case errors.Is(err, ErrInvalidArgument):
		return envelope.CodeInvalidArgument
	default:
		return fallback
	}
}
