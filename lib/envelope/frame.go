// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// frameHeaderSize is the length of the big-endian uint32 prefix.
const frameHeaderSize = 4

// DefaultMaxFrameSize caps a single framed envelope. Compiled maps are
// the largest thing a client sends.
const DefaultMaxFrameSize = 64 << 20

// ErrFrameTooLarge is wrapped by the *DecodeError ReadFrame returns
// for a frame over the size limit.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// WriteFrame encodes e and writes it to w with its length prefix.
func WriteFrame(w io.Writer, e *Envelope) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	if uint64(len(data)) > uint64(^uint32(0)) {
		return fmt.Errorf("envelope: %d byte frame does not fit a uint32 length", len(data))
	}
	frame := make([]byte, frameHeaderSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[frameHeaderSize:], data)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("envelope: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed envelope from r.
//
// A clean end of stream before any header byte returns io.EOF. A frame
// cut short returns a *DecodeError wrapping io.ErrUnexpectedEOF; the
// stream is unusable afterwards. A frame longer than maxSize is read
// and discarded, then reported as a *DecodeError wrapping
// ErrFrameTooLarge, leaving the stream positioned at the next frame.
// A frame whose body does not decode also leaves the stream usable.
// Other read errors are returned unwrapped.
func ReadFrame(r io.Reader, maxSize int) (*Envelope, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &DecodeError{Reason: "truncated frame header", Err: err}
		}
		return nil, err
	}

	length := int64(binary.BigEndian.Uint32(header[:]))
	if maxSize > 0 && length > int64(maxSize) {
		if _, err := io.CopyN(io.Discard, r, length); err != nil {
			return nil, truncated("truncated oversized frame", err)
		}
		return nil, &DecodeError{
			Reason: fmt.Sprintf("%d byte frame (limit %d)", length, maxSize),
			Err:    ErrFrameTooLarge,
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, truncated("truncated frame", err)
	}
	return Decode(body)
}

// IsStreamBroken reports whether err from ReadFrame leaves the stream
// out of sync, so the connection must be closed rather than answered.
func IsStreamBroken(err error) bool {
	if err == nil {
		return false
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// truncated reports a read that stopped inside a frame. End of stream
// becomes a *DecodeError; any other read error (a deadline, a reset)
// is returned as is.
func truncated(reason string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &DecodeError{Reason: reason, Err: io.ErrUnexpectedEOF}
	}
	return err
}
