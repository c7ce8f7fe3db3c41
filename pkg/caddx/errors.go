// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBadStart           = errors.New("caddx: invalid or missing start byte")
	ErrTruncated          = errors.New("caddx: truncated frame")
	ErrBadEscape          = errors.New("caddx: invalid escape sequence")
	ErrLengthMismatch     = errors.New("caddx: length mismatch")
	ErrChecksumMismatch   = errors.New("caddx: checksum mismatch")
	ErrUnknownMessageType = errors.New("caddx: unknown message type")
	ErrWrongMessageType   = errors.New("caddx: wrong message type")
	ErrCapability         = errors.New("caddx: required panel capability disabled")
	ErrInvalidArgument    = errors.New("caddx: invalid argument")
)

// FramingErrorKind classifies a frame decoding failure
type FramingErrorKind int

const (
	BadStart FramingErrorKind = iota
	Truncated
	BadEscape
	LengthMismatch
	ChecksumMismatch
)

// String returns a short name for the kind, suitable for metric labels
func (k FramingErrorKind) String() string {
	switch k {
	case BadStart:
		return "bad_start"
	case Truncated:
		return "truncated"
	case BadEscape:
		return "bad_escape"
	case LengthMismatch:
		return "length_mismatch"
	case ChecksumMismatch:
		return "checksum_mismatch"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// FramingError describes why an inbound frame was rejected.
type FramingError struct {
	Kind FramingErrorKind

	// Byte is the offending byte for BadStart and BadEscape
	Byte byte

	// Missing is set when BadStart was caused by no byte arriving at all
	Missing bool

	// Length is the frame length byte, when it was read
	Length int

	// Got is the number of message bytes collected (LengthMismatch, Truncated)
	Got int

	// Offered and Calculated hold the checksums for ChecksumMismatch
	Offered    uint16
	Calculated uint16
}

func (e *FramingError) Error() string {
	switch e.Kind {
	case BadStart:
		if e.Missing {
			return "missing start byte"
		}
		return fmt.Sprintf("invalid start byte 0x%02X (expected 0x%02X)", e.Byte, StartByte)
	case Truncated:
		return fmt.Sprintf("truncated frame: length %d, got %d of %d bytes", e.Length, e.Got, e.Length+2)
	case BadEscape:
		return fmt.Sprintf("invalid escape sequence 0x%02X 0x%02X", EscByte, e.Byte)
	case LengthMismatch:
		return fmt.Sprintf("frame length mismatch: length byte %d, collected %d bytes", e.Length, e.Got)
	case ChecksumMismatch:
		return fmt.Sprintf("checksum mismatch: offered 0x%04X, calculated 0x%04X", e.Offered, e.Calculated)
	default:
		return "framing error"
	}
}

// Unwrap maps the kind to its sentinel so callers can use errors.Is.
func (e *FramingError) Unwrap() error {
	switch e.Kind {
	case BadStart:
		return ErrBadStart
	case Truncated:
		return ErrTruncated
	case BadEscape:
		return ErrBadEscape
	case LengthMismatch:
		return ErrLengthMismatch
	case ChecksumMismatch:
		return ErrChecksumMismatch
	}
	return nil
}

// NeedsResync reports whether the byte stream may have lost alignment with
// frame boundaries, in which case buffered input must be discarded. A
// checksum mismatch consumed exactly one frame, so alignment is intact.
func (e *FramingError) NeedsResync() bool {
	return e.Kind != ChecksumMismatch
}

// LengthError is returned when a message does not carry the catalog length
// for its type.
type LengthError struct {
	Type     MessageType
	Expected int
	Got      int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("invalid message length for %s: expected %d, got %d", e.Type, e.Expected, e.Got)
}

func (e *LengthError) Unwrap() error {
	return ErrLengthMismatch
}

// CapabilityError lists every required capability flag the panel reported
// as disabled.
type CapabilityError struct {
	Missing []Flag
}

func (e *CapabilityError) Error() string {
	names := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		names[i] = f.Description
	}
	return fmt.Sprintf("required messages not enabled in panel configuration: %s", strings.Join(names, ", "))
}

func (e *CapabilityError) Unwrap() error {
	return ErrCapability
}
