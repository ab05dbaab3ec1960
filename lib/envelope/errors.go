// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"errors"
	"fmt"
)

// ErrorCode is the outcome carried in a response envelope. Zero is
// success. The numeric values are part of the wire protocol.
type ErrorCode int

const (
	CodeOK               ErrorCode = 0
	CodeDecodeError      ErrorCode = 1
	CodeUnknownFunction  ErrorCode = 2
	CodePermissionDenied ErrorCode = 3
	CodeNotFound         ErrorCode = 4
	CodeCreateFailed     ErrorCode = 5
	CodeUpdateFailed     ErrorCode = 6
	CodeRemoveFailed     ErrorCode = 7
	CodeInternalError    ErrorCode = 8
	CodeInvalidArgument  ErrorCode = 9
	CodeUnauthenticated  ErrorCode = 10
)

var codeNames = map[ErrorCode]string{
	CodeOK:               "OK",
	CodeDecodeError:      "DecodeError",
	CodeUnknownFunction:  "UnknownFunction",
	CodePermissionDenied: "PermissionDenied",
	CodeNotFound:         "NotFound",
	CodeCreateFailed:     "CreateFailed",
	CodeUpdateFailed:     "UpdateFailed",
	CodeRemoveFailed:     "RemoveFailed",
	CodeInternalError:    "InternalError",
	CodeInvalidArgument:  "InvalidArgument",
	CodeUnauthenticated:  "Unauthenticated",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Coded is implemented by errors that carry a protocol error code.
// The dispatcher uses it to choose the response code; errors that do
// not implement it are reported as [CodeInternalError].
type Coded interface {
	error
	ErrorCode() ErrorCode
}

// CodeOf returns the protocol code carried by err or anything it
// wraps, or CodeInternalError when none is found. A nil err is CodeOK.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var coded Coded
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeInternalError
}

// Error is a plain coded error. Handlers return it for argument
// validation failures; clients receive it from [Envelope.Err].
type Error struct {
	Code    ErrorCode
	Message string
}

// Errorf builds an *Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Message
}

func (e *Error) ErrorCode() ErrorCode { return e.Code }
