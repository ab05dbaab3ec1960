// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"errors"
	"fmt"
	"io"

	"github.com/bureau-foundation/mapforge/lib/codec"
)

// Envelope is one request or response.
//
// CorrelationID is opaque to the server: it is copied from a request
// to its response and never interpreted.
//
// An empty Payload and an empty Binary are omitted on the wire, so
// they decode as nil. Callers test len(Payload), never Payload != nil,
// for "no payload".
type Envelope struct {
	Class         string         `cbor:"class"`
	Function      string         `cbor:"function"`
	Payload       map[string]any `cbor:"payload,omitempty"`
	Binary        []byte         `cbor:"binary,omitempty"`
	CorrelationID int64          `cbor:"correlation_id"`
	ErrorCode     ErrorCode      `cbor:"error_code,omitempty"`
	ErrorDetail   string         `cbor:"error_detail,omitempty"`
}

// DecodeError reports an envelope that could not be decoded. It is
// fatal to that one message only; the connection carrying it stays
// usable when framing is intact.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope: %s: %v", e.Reason, e.Err)
	}
	return "envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrorCode returns [DecodeError], so a DecodeError can be reported
// through the same path as handler errors.
func (e *DecodeError) ErrorCode() ErrorCode { return CodeDecodeError }

// Encode serializes e.
func Encode(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, errors.New("envelope: encode nil envelope")
	}
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("envelope: encode %s/%s: %w", e.Class, e.Function, err)
	}
	return data, nil
}

var errShortBody = errors.New("envelope ends mid-value")

// Decode parses one envelope from data. Truncated input, trailing
// bytes, a payload that is not a string-keyed map, and a missing class
// or function all produce a *DecodeError.
func Decode(data []byte) (*Envelope, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Reason: "empty input"}
	}
	var e Envelope
	if err := codec.Unmarshal(data, &e); err != nil {
		// A short body inside an intact frame must not read as a
		// broken stream.
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = errShortBody
		}
		return nil, &DecodeError{Reason: "malformed envelope", Err: err}
	}
	if e.Class == "" {
		return nil, &DecodeError{Reason: "missing class"}
	}
	if e.Function == "" {
		return nil, &DecodeError{Reason: "missing function"}
	}
	return &e, nil
}

// Response returns a success response for request: same class,
// function, and correlation id, with the given payload and binary.
func Response(request *Envelope, payload map[string]any, binary []byte) *Envelope {
	return &Envelope{
		Class:         request.Class,
		Function:      request.Function,
		CorrelationID: request.CorrelationID,
		Payload:       payload,
		Binary:        binary,
	}
}

// ErrorResponse returns an error response for request. It carries no
// payload.
func ErrorResponse(request *Envelope, code ErrorCode, detail string) *Envelope {
	return &Envelope{
		Class:         request.Class,
		Function:      request.Function,
		CorrelationID: request.CorrelationID,
		ErrorCode:     code,
		ErrorDetail:   detail,
	}
}

// Class and function of the response to a request that could not be
// decoded. Such a response carries correlation id 0, since the
// request's id is unknown.
const (
	DecodeFailureClass    = "server"
	DecodeFailureFunction = "decode"
)

// DecodeFailure returns the response to an undecodable request.
func DecodeFailure(err error) *Envelope {
	return &Envelope{
		Class:       DecodeFailureClass,
		Function:    DecodeFailureFunction,
		ErrorCode:   CodeDecodeError,
		ErrorDetail: err.Error(),
	}
}

// IsDecodeFailure reports whether e is a DecodeFailure response.
func (e *Envelope) IsDecodeFailure() bool {
	return e.Class == DecodeFailureClass && e.Function == DecodeFailureFunction && e.ErrorCode == CodeDecodeError
}

// Err returns nil for a successful envelope and an *Error describing
// the failure otherwise.
func (e *Envelope) Err() error {
	if e.ErrorCode == CodeOK {
		return nil
	}
	return &Error{Code: e.ErrorCode, Message: e.ErrorDetail}
}
