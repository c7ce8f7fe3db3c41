// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"fmt"
	"time"
)

// Request is an outbound message ready for encoding: a request type and its
// data, type byte excluded.
//
// The builders below produce requests whose length matches the catalog.
// Zone, partition and user numbers are the 0-based values carried on the
// wire; partition masks have bit 0 for partition 1.
type Request struct {
	Type MessageType
	Data []byte
}

// Encode returns the wire form of the request
func (r Request) Encode() ([]byte, error) {
	return Encode(r.Type, r.Data)
}

func (r Request) String() string {
	return fmt.Sprintf("%s % X", r.Type, r.Data)
}

// NewRequest builds a request from raw data, checking the type and length.
func NewRequest(t MessageType, data []byte) (Request, error) {
	if !IsRequest(t) {
		return Request{}, fmt.Errorf("%w: %s is not a request type", ErrInvalidArgument, t)
	}
	if err := ValidateLength(t, data); err != nil {
		return Request{}, err
	}
	return Request{Type: t, Data: data}, nil
}

// PINLength is the number of bytes a PIN occupies on the wire
const PINLength = 3

// EncodePIN packs a 4 or 6 digit PIN as BCD, two digits per byte with the
// first digit of each pair in the low nibble. A 4 digit PIN leaves the last
// byte zero.
func EncodePIN(pin string) ([PINLength]byte, error) {
	var out [PINLength]byte
	if len(pin) != 4 && len(pin) != 6 {
		return out, fmt.Errorf("%w: PIN must be 4 or 6 digits, got %d", ErrInvalidArgument, len(pin))
	}
	for i := 0; i < len(pin); i++ {
		c := pin[i]
		if c < '0' || c > '9' {
			return out, fmt.Errorf("%w: PIN contains non-digit %q", ErrInvalidArgument, c)
		}
		d := c - '0'
		if i%2 == 0 {
			out[i/2] |= d
		} else {
			out[i/2] |= d << 4
		}
	}
	return out, nil
}

// NewIntConfigRequest requests the interface configuration (0x21)
func NewIntConfigRequest() Request {
	return Request{Type: MsgIntConfigReq}
}

// NewZoneNameRequest requests the 16 character name of a zone (0x23)
func NewZoneNameRequest(zone uint8) Request {
	return Request{Type: MsgZoneNameReq, Data: []byte{zone}}
}

// NewZoneStatusRequest requests the status of a zone (0x24)
func NewZoneStatusRequest(zone uint8) Request {
	return Request{Type: MsgZoneStatusReq, Data: []byte{zone}}
}

// NewZonesSnapshotRequest requests a snapshot of 16 zones starting at
// block offset*16 (0x25)
func NewZonesSnapshotRequest(offset uint8) Request {
	return Request{Type: MsgZonesSnapshotReq, Data: []byte{offset}}
}

// NewPartitionStatusRequest requests the status of a partition (0x26)
func NewPartitionStatusRequest(partition uint8) Request {
	return Request{Type: MsgPartitionStatusReq, Data: []byte{partition}}
}

// NewPartitionSnapshotRequest requests a snapshot of all partitions (0x27)
func NewPartitionSnapshotRequest() Request {
	return Request{Type: MsgPartitionSnapshotReq}
}

// NewSystemStatusRequest requests the system status (0x28)
func NewSystemStatusRequest() Request {
	return Request{Type: MsgSystemStatusReq}
}

// NewX10MessageRequest sends an X-10 command (0x29)
func NewX10MessageRequest(house, unit, function uint8) Request {
	return Request{Type: MsgX10MessageReq, Data: []byte{house, unit, function}}
}

// NewLogEventRequest requests one event from the panel log (0x2A)
func NewLogEventRequest(event uint8) Request {
	return Request{Type: MsgLogEventReq, Data: []byte{event}}
}

// KeypadTextLength is the number of characters in a keypad text message
const KeypadTextLength = 8

// NewKeypadTextMessageRequest writes up to 8 ASCII characters to a keypad
// display location (0x2B). Shorter text is padded with spaces.
func NewKeypadTextMessageRequest(keypad, keypadType, location uint8, text string) (Request, error) {
	if len(text) > KeypadTextLength {
		return Request{}, fmt.Errorf("%w: keypad text longer than %d characters", ErrInvalidArgument, KeypadTextLength)
	}
	data := []byte{keypad, keypadType, location, ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	for i := 0; i < len(text); i++ {
		if text[i] < 0x20 || text[i] > 0x7E {
			return Request{}, fmt.Errorf("%w: keypad text contains non-printable byte 0x%02X", ErrInvalidArgument, text[i])
		}
		data[3+i] = text[i]
	}
	return Request{Type: MsgKeypadTextMsgReq, Data: data}, nil
}

// NewKeypadTerminalModeRequest puts a keypad in terminal mode for the given
// number of seconds (0x2C)
func NewKeypadTerminalModeRequest(keypad, seconds uint8) Request {
	return Request{Type: MsgKeypadTerminalModeReq, Data: []byte{keypad, seconds}}
}

// NewProgramDataRequest reads one program location from a bus device (0x30)
func NewProgramDataRequest(device uint8, location uint16) Request {
	return Request{Type: MsgProgramDataReq, Data: []byte{device, byte(location >> 8), byte(location)}}
}

// ProgramDataLength is the number of data bytes in a program data command
const ProgramDataLength = 8

// NewProgramDataCommand writes one program location on a bus device (0x31).
// dataType carries the segment size and data type bits as the panel expects.
func NewProgramDataCommand(device uint8, location uint16, dataType uint8, data [ProgramDataLength]byte) Request {
	out := make([]byte, 0, 4+ProgramDataLength)
	out = append(out, device, byte(location>>8), byte(location), dataType)
	out = append(out, data[:]...)
	return Request{Type: MsgProgramDataCmd, Data: out}
}

// NewUserInfoRequestPin requests user information, authorised by PIN (0x32)
func NewUserInfoRequestPin(pin string, user uint8) (Request, error) {
	p, err := EncodePIN(pin)
	if err != nil {
		return Request{}, err
	}
	return Request{Type: MsgUserInfoReqPin, Data: []byte{p[0], p[1], p[2], user}}, nil
}

// NewUserInfoRequest requests user information without a PIN (0x33)
func NewUserInfoRequest(user uint8) Request {
	return Request{Type: MsgUserInfoReqNoPin, Data: []byte{user}}
}

// NewSetUserCodePin changes a user's code, authorised by PIN (0x34)
func NewSetUserCodePin(pin string, user uint8, newPIN string) (Request, error) {
	p, err := EncodePIN(pin)
	if err != nil {
		return Request{}, err
	}
	n, err := EncodePIN(newPIN)
	if err != nil {
		return Request{}, err
	}
	return Request{Type: MsgSetUserCodePin, Data: []byte{p[0], p[1], p[2], user, n[0], n[1], n[2]}}, nil
}

// NewSetUserCode changes a user's code without a PIN (0x35)
func NewSetUserCode(user uint8, newPIN string) (Request, error) {
	n, err := EncodePIN(newPIN)
	if err != nil {
		return Request{}, err
	}
	return Request{Type: MsgSetUserCodeNoPin, Data: []byte{user, n[0], n[1], n[2]}}, nil
}

// NewSetUserAuthorityPin sets a user's authority flags and partitions,
// authorised by PIN (0x36)
func NewSetUserAuthorityPin(pin string, user, authority, partitions uint8) (Request, error) {
	p, err := EncodePIN(pin)
	if err != nil {
		return Request{}, err
	}
	return Request{Type: MsgSetUserAuthorityPin, Data: []byte{p[0], p[1], p[2], user, authority, partitions}}, nil
}

// NewSetUserAuthority sets a user's authority flags and partitions without
// a PIN (0x37)
func NewSetUserAuthority(user, authority, partitions uint8) Request {
	return Request{Type: MsgSetUserAuthorityNoPin, Data: []byte{user, authority, partitions}}
}

// NewSetClockCalendar sets the panel clock (0x3B). The panel stores a two
// digit year and numbers weekdays from 1 (Sunday).
func NewSetClockCalendar(t time.Time) Request {
	return Request{
		Type: MsgSetClockCalendar,
		Data: []byte{
			byte(t.Year() % 100),
			byte(t.Month()),
			byte(t.Day()),
			byte(t.Hour()),
			byte(t.Minute()),
			byte(t.Weekday()) + 1,
		},
	}
}

// NewPrimaryKeypadFunctionPin performs a primary keypad function such as
// arm or disarm on the masked partitions, authorised by PIN (0x3C)
func NewPrimaryKeypadFunctionPin(pin string, fn PrimaryKeypadFunction, partitions uint8) (Request, error) {
	p, err := EncodePIN(pin)
	if err != nil {
		return Request{}, err
	}
	return Request{Type: MsgPrimaryKeypadFuncPin, Data: []byte{p[0], p[1], p[2], byte(fn), partitions}}, nil
}

// NewPrimaryKeypadFunction performs a primary keypad function on behalf of
// a user without a PIN (0x3D)
func NewPrimaryKeypadFunction(fn PrimaryKeypadFunction, partitions, user uint8) Request {
	return Request{Type: MsgPrimaryKeypadFuncNoPin, Data: []byte{byte(fn), partitions, user}}
}

// NewSecondaryKeypadFunction performs a secondary keypad function (0x3E)
func NewSecondaryKeypadFunction(fn SecondaryKeypadFunction, partitions uint8) Request {
	return Request{Type: MsgSecondaryKeypadFunc, Data: []byte{byte(fn), partitions}}
}

// NewZoneBypassToggle toggles the bypass state of a zone (0x3F)
func NewZoneBypassToggle(zone uint8) Request {
	return Request{Type: MsgZoneBypassToggle, Data: []byte{zone}}
}
