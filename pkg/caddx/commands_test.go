// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestEncodePIN(t *testing.T) {
	tests := []struct {
		pin     string
		want    [3]byte
		wantErr bool
	}{
		{"1234", [3]byte{0x21, 0x43, 0x00}, false},
		{"123456", [3]byte{0x21, 0x43, 0x65}, false},
		{"0000", [3]byte{0x00, 0x00, 0x00}, false},
		{"123", [3]byte{}, true},
		{"12345", [3]byte{}, true},
		{"12a4", [3]byte{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.pin, func(t *testing.T) {
			got, err := EncodePIN(tt.pin)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Errorf("expected ErrInvalidArgument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected % X, got % X", tt.want, got)
			}
		})
	}
}

func TestBuilders_MatchCatalog(t *testing.T) {
	must := func(r Request, err error) Request {
		if err != nil {
			t.Fatalf("builder failed: %v", err)
		}
		return r
	}

	requests := []Request{
		NewIntConfigRequest(),
		NewZoneNameRequest(0),
		NewZoneStatusRequest(7),
		NewZonesSnapshotRequest(1),
		NewPartitionStatusRequest(0),
		NewPartitionSnapshotRequest(),
		NewSystemStatusRequest(),
		NewX10MessageRequest(1, 2, 3),
		NewLogEventRequest(10),
		must(NewKeypadTextMessageRequest(0xC0, 0, 0, "HELLO")),
		NewKeypadTerminalModeRequest(0xC0, 30),
		NewProgramDataRequest(0, 0x0102),
		NewProgramDataCommand(0, 0x0102, 0x01, [8]byte{}),
		must(NewUserInfoRequestPin("1234", 1)),
		NewUserInfoRequest(1),
		must(NewSetUserCodePin("1234", 2, "5678")),
		must(NewSetUserCode(2, "5678")),
		must(NewSetUserAuthorityPin("1234", 2, 0x80, 0x01)),
		NewSetUserAuthority(2, 0x80, 0x01),
		NewSetClockCalendar(time.Date(2025, 3, 9, 14, 5, 0, 0, time.UTC)),
		must(NewPrimaryKeypadFunctionPin("1234", KeypadArmAway, 0x01)),
		NewPrimaryKeypadFunction(KeypadDisarm, 0x01, 0),
		NewSecondaryKeypadFunction(KeypadChime, 0x01),
		NewZoneBypassToggle(3),
	}

	covered := make(map[MessageType]bool)
	for _, r := range requests {
		if err := ValidateLength(r.Type, r.Data); err != nil {
			t.Errorf("%s: %v", r.Type, err)
		}
		if _, err := r.Encode(); err != nil {
			t.Errorf("%s: encode failed: %v", r.Type, err)
		}
		covered[r.Type] = true
	}

	for _, mt := range MessageTypes() {
		if IsRequest(mt) && !covered[mt] {
			t.Errorf("no builder covers %s", mt)
		}
	}
}

func TestNewSetClockCalendar(t *testing.T) {
	// 9 March 2025 was a Sunday
	r := NewSetClockCalendar(time.Date(2025, 3, 9, 14, 5, 59, 0, time.UTC))
	expected := []byte{25, 3, 9, 14, 5, 1}
	if !bytes.Equal(r.Data, expected) {
		t.Errorf("expected % X, got % X", expected, r.Data)
	}
}

func TestNewKeypadTextMessageRequest(t *testing.T) {
	r, err := NewKeypadTextMessageRequest(0xC0, 0, 1, "ARMED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []byte{0xC0, 0x00, 0x01, 'A', 'R', 'M', 'E', 'D', ' ', ' ', ' '}
	if !bytes.Equal(r.Data, expected) {
		t.Errorf("expected % X, got % X", expected, r.Data)
	}

	if _, err := NewKeypadTextMessageRequest(0xC0, 0, 1, "TOO LONG!"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for long text, got %v", err)
	}
	if _, err := NewKeypadTextMessageRequest(0xC0, 0, 1, "A\tB"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for control byte, got %v", err)
	}
}

func TestNewProgramDataRequest_LocationBigEndian(t *testing.T) {
	r := NewProgramDataRequest(0x05, 0x0123)
	if !bytes.Equal(r.Data, []byte{0x05, 0x01, 0x23}) {
		t.Errorf("unexpected data % X", r.Data)
	}
}

func TestNewPrimaryKeypadFunctionPin(t *testing.T) {
	r, err := NewPrimaryKeypadFunctionPin("123456", KeypadArmStay, 0x03)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []byte{0x21, 0x43, 0x65, 0x03, 0x03}
	if !bytes.Equal(r.Data, expected) {
		t.Errorf("expected % X, got % X", expected, r.Data)
	}

	if _, err := NewPrimaryKeypadFunctionPin("12", KeypadArmStay, 0x03); err == nil {
		t.Error("expected error for short PIN")
	}
}

func TestNewRequest(t *testing.T) {
	r, err := NewRequest(MsgZoneStatusReq, []byte{0x02})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.String() != "ZoneStatusReq 02" {
		t.Errorf("unexpected String %q", r.String())
	}

	if _, err := NewRequest(MsgZoneStatusRsp, make([]byte, 7)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("responses are not requests, got %v", err)
	}
	if _, err := NewRequest(MsgZoneStatusReq, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected length mismatch, got %v", err)
	}
}
