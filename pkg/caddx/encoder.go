// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import "fmt"

// ValidateLength checks that a message of type t with the given data has
// the catalog length.
func ValidateLength(t MessageType, data []byte) error {
	expected, ok := ValidLength(t)
	if !ok {
		return fmt.Errorf("%w: 0x%02X", ErrUnknownMessageType, uint8(t))
	}
	if got := 1 + len(data); got != expected {
		return &LengthError{Type: t, Expected: expected, Got: got}
	}
	return nil
}

// Encode builds the wire form of a message: start byte, length byte, then
// the byte-stuffed message and little-endian Fletcher-16 checksum.
// The length byte is covered by the checksum but never stuffed.
func Encode(t MessageType, data []byte) ([]byte, error) {
	if err := ValidateLength(t, data); err != nil {
		return nil, err
	}

	raw := make([]byte, 0, 1+len(data))
	raw = append(raw, byte(t))
	raw = append(raw, data...)

	return Frame(raw), nil
}

// Frame wraps raw message bytes, type byte first and flag bits included,
// without consulting the catalog. Use Encode for outbound requests.
func Frame(raw []byte) []byte {
	// Unescaped body: length + message, then checksum
	body := make([]byte, 0, 1+len(raw)+2)
	body = append(body, byte(len(raw)))
	body = append(body, raw...)

	sum := Fletcher16(body)
	body = append(body, byte(sum), byte(sum>>8))

	stuffed := stuffBytes(body[1:])

	frame := make([]byte, 0, 2+len(stuffed))
	frame = append(frame, StartByte, body[0])
	frame = append(frame, stuffed...)

	return frame
}

// MustEncode is Encode for messages built from the command builders, whose
// lengths are correct by construction. It panics on error.
func MustEncode(r Request) []byte {
	frame, err := Encode(r.Type, r.Data)
	if err != nil {
		panic(fmt.Sprintf("caddx: encode error: %v", err))
	}
	return frame
}

// stuffBytes escapes the start and escape bytes.
func stuffBytes(data []byte) []byte {
	result := make([]byte, 0, len(data)*2)

	for _, b := range data {
		switch b {
		case StartByte:
			result = append(result, EscByte, EscStart)
		case EscByte:
			result = append(result, EscByte, EscEsc)
		default:
			result = append(result, b)
		}
	}

	return result
}

// UnstuffBytes reverses stuffBytes.
func UnstuffBytes(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))
	escapeNext := false

	for _, b := range data {
		if escapeNext {
			v, err := unescape(b)
			if err != nil {
				return nil, err
			}
			result = append(result, v)
			escapeNext = false
		} else if b == EscByte {
			escapeNext = true
		} else {
			result = append(result, b)
		}
	}

	if escapeNext {
		return nil, &FramingError{Kind: Truncated, Got: len(result)}
	}

	return result, nil
}

// unescape maps the byte following an escape byte to its literal value
func unescape(b byte) (byte, error) {
	switch b {
	case EscStart:
		return StartByte, nil
	case EscEsc:
		return EscByte, nil
	default:
		return 0, &FramingError{Kind: BadEscape, Byte: b}
	}
}
