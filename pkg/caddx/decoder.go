// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"errors"
	"fmt"
	"io"
)

// Decode reads exactly one frame from r and returns the validated message.
//
// End of input before the start byte is a BadStart error with Missing set;
// end of input anywhere later is Truncated. Any other read error is
// returned wrapped. A raw start byte inside a frame is taken as data.
func Decode(r io.ByteReader) (*Message, error) {
	b, err := r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FramingError{Kind: BadStart, Missing: true}
		}
		return nil, fmt.Errorf("caddx: read start byte: %w", err)
	}
	if b != StartByte {
		return nil, &FramingError{Kind: BadStart, Byte: b}
	}

	length, err := r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &FramingError{Kind: Truncated}
		}
		return nil, fmt.Errorf("caddx: read length byte: %w", err)
	}
	if length == 0 || length > MaxMessageLength {
		return nil, &FramingError{Kind: LengthMismatch, Length: int(length)}
	}

	// message bytes followed by the two checksum bytes, unescaped
	want := int(length) + 2
	body := make([]byte, 0, want)

	for len(body) < want {
		b, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &FramingError{Kind: Truncated, Length: int(length), Got: len(body)}
			}
			return nil, fmt.Errorf("caddx: read frame: %w", err)
		}

		if b == EscByte {
			next, err := r.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, &FramingError{Kind: Truncated, Length: int(length), Got: len(body)}
				}
				return nil, fmt.Errorf("caddx: read frame: %w", err)
			}
			if b, err = unescape(next); err != nil {
				return nil, err
			}
		}

		body = append(body, b)
	}

	if len(body) != want {
		return nil, &FramingError{Kind: LengthMismatch, Length: int(length), Got: len(body)}
	}

	return verify(length, body)
}

// verify checks the trailing checksum of an unescaped frame body and
// returns the message it carries.
func verify(length byte, body []byte) (*Message, error) {
	n := int(length)
	msg := body[:n]
	offered := uint16(body[n]) | uint16(body[n+1])<<8

	covered := make([]byte, 0, n+1)
	covered = append(covered, length)
	covered = append(covered, msg...)
	calculated := Fletcher16(covered)

	if offered != calculated {
		return nil, &FramingError{
			Kind:       ChecksumMismatch,
			Length:     n,
			Got:        n + 2,
			Offered:    offered,
			Calculated: calculated,
		}
	}

	raw := make([]byte, n)
	copy(raw, msg)
	return NewMessage(raw), nil
}

// Decoder state machine states
const (
	stateIdle = iota
	stateLength
	stateBody
)

// Decoder is a byte-at-a-time frame decoder for continuous streams such as
// a passive capture, where no request/response timing is available.
// Bytes outside a frame are skipped until the next start byte.
type Decoder struct {
	state      int
	length     byte
	body       []byte
	escapeNext bool
	rawBuffer  []byte
	skipped    uint64
}

// NewDecoder creates a new stream decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:     stateIdle,
		body:      make([]byte, 0, MaxMessageLength+2),
		rawBuffer: make([]byte, 0, (MaxMessageLength+4)*2),
	}
}

// Reset returns the decoder to idle, dropping any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.length = 0
	d.body = d.body[:0]
	d.escapeNext = false
	d.rawBuffer = d.rawBuffer[:0]
}

// RawBytes returns the wire bytes of the frame in progress, or of the frame
// just completed until the next byte is fed.
func (d *Decoder) RawBytes() []byte {
	return d.rawBuffer
}

// Skipped returns the number of bytes discarded while hunting for a start byte
func (d *Decoder) Skipped() uint64 {
	return d.skipped
}

// DecodeByte feeds one byte to the decoder. It returns a message when the
// byte completes a valid frame, or an error when it makes the current frame
// invalid. The decoder is ready for the next frame after either.
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	if d.state == stateIdle {
		if b != StartByte {
			d.skipped++
			return nil, nil
		}
		d.Reset()
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = stateLength
		return nil, nil
	}

	d.rawBuffer = append(d.rawBuffer, b)

	switch d.state {
	case stateLength:
		if b == StartByte {
			// repeated start byte, stay aligned on the latest one
			d.rawBuffer = append(d.rawBuffer[:0], b)
			return nil, nil
		}
		if b == 0 || b > MaxMessageLength {
			d.Reset()
			return nil, &FramingError{Kind: LengthMismatch, Length: int(b)}
		}
		d.length = b
		d.state = stateBody
		return nil, nil

	case stateBody:
		if d.escapeNext {
			d.escapeNext = false
			v, err := unescape(b)
			if err != nil {
				if b == StartByte {
					// the escaped byte was a new frame starting
					d.Reset()
					d.rawBuffer = append(d.rawBuffer, b)
					d.state = stateLength
				} else {
					d.Reset()
				}
				return nil, err
			}
			b = v
		} else if b == EscByte {
			d.escapeNext = true
			return nil, nil
		}

		d.body = append(d.body, b)
		if len(d.body) < int(d.length)+2 {
			return nil, nil
		}

		msg, err := verify(d.length, d.body)
		d.state = stateIdle
		d.body = d.body[:0]
		return msg, err

	default:
		d.Reset()
		return nil, fmt.Errorf("caddx: invalid decoder state %d", d.state)
	}
}
