// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import "time"

// Message is a decoded message: the type byte, flag bits included, followed
// by the message data. Framing, length byte and checksum are already
// stripped and validated.
type Message struct {
	raw       []byte
	timestamp time.Time
}

// NewMessage wraps raw message bytes (type byte first). The slice is not copied.
func NewMessage(raw []byte) *Message {
	return NewMessageAt(raw, time.Now())
}

// NewMessageAt is NewMessage with an explicit timestamp, for replayed traffic
func NewMessageAt(raw []byte, ts time.Time) *Message {
	return &Message{
		raw:       raw,
		timestamp: ts,
	}
}

// RawType returns the first message byte including the flag bits
func (m *Message) RawType() byte {
	if len(m.raw) == 0 {
		return 0
	}
	return m.raw[0]
}

// Type returns the message number with both the ack-request bit and the
// reserved bit cleared.
func (m *Message) Type() MessageType {
	return MessageType(m.RawType() &^ TypeFlagMask)
}

// AckRequested reports whether the sender asked for an ACK
func (m *Message) AckRequested() bool {
	return m.RawType()&AckRequestBit != 0
}

// Data returns the bytes following the type byte
func (m *Message) Data() []byte {
	if len(m.raw) < 2 {
		return nil
	}
	return m.raw[1:]
}

// Bytes returns the full message, type byte first
func (m *Message) Bytes() []byte {
	return m.raw
}

// Len returns the message length (type byte plus data), the value the
// frame length byte carried
func (m *Message) Len() int {
	return len(m.raw)
}

// Timestamp returns when the message was decoded
func (m *Message) Timestamp() time.Time {
	return m.timestamp
}
