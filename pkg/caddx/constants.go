// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package caddx implements the link layer of the Caddx NX-584 serial
// interface protocol.
//
// Messages travel as frames: a start byte, a length byte, the byte-stuffed
// message (type byte plus data) and a little-endian Fletcher-16 checksum.
// This package provides the message catalog, frame encoding and decoding,
// the capability flag tables reported by the Interface Configuration
// message, and request builders for every host-initiated message.
package caddx

import "fmt"

// Protocol framing bytes
const (
	StartByte = 0x7E
	EscByte   = 0x7D

	// Second byte of an escape sequence
	EscStart = 0x5E // 0x7D 0x5E -> 0x7E
	EscEsc   = 0x5D // 0x7D 0x5D -> 0x7D
)

// Type byte flag bits. The panel sets AckRequestBit when it wants an ACK;
// bit 6 is reserved and is never part of the message number.
const (
	AckRequestBit = 0x80
	ReservedBit   = 0x40
	TypeFlagMask  = AckRequestBit | ReservedBit
)

// MaxMessageLength bounds the length byte of an inbound frame. The longest
// catalog message is 18 bytes; anything far beyond that means we lost
// alignment with the byte stream.
const MaxMessageLength = 64

// MessageType is the message number carried in the low six bits of the
// first message byte.
type MessageType uint8

// Message types - Responses and indications (Panel → Host) 0x01-0x1F
const (
	MsgIntConfigRsp         MessageType = 0x01
	MsgZoneNameRsp          MessageType = 0x03
	MsgZoneStatusRsp        MessageType = 0x04
	MsgZonesSnapshotRsp     MessageType = 0x05
	MsgPartitionStatusRsp   MessageType = 0x06
	MsgPartitionSnapshotRsp MessageType = 0x07
	MsgSystemStatusRsp      MessageType = 0x08
	MsgX10MessageInd        MessageType = 0x09
	MsgLogEventInd          MessageType = 0x0A
	MsgKeypadButtonInd      MessageType = 0x0B
	MsgProgramDataRsp       MessageType = 0x10
	MsgUserInfoRsp          MessageType = 0x12
	MsgFailedRequest        MessageType = 0x1C
	MsgACK                  MessageType = 0x1D
	MsgNACK                 MessageType = 0x1E
	MsgRejected             MessageType = 0x1F
)

// Message types - Requests (Host → Panel) 0x21-0x3F
const (
	MsgIntConfigReq           MessageType = 0x21
	MsgZoneNameReq            MessageType = 0x23
	MsgZoneStatusReq          MessageType = 0x24
	MsgZonesSnapshotReq       MessageType = 0x25
	MsgPartitionStatusReq     MessageType = 0x26
	MsgPartitionSnapshotReq   MessageType = 0x27
	MsgSystemStatusReq        MessageType = 0x28
	MsgX10MessageReq          MessageType = 0x29
	MsgLogEventReq            MessageType = 0x2A
	MsgKeypadTextMsgReq       MessageType = 0x2B
	MsgKeypadTerminalModeReq  MessageType = 0x2C
	MsgProgramDataReq         MessageType = 0x30
	MsgProgramDataCmd         MessageType = 0x31
	MsgUserInfoReqPin         MessageType = 0x32
	MsgUserInfoReqNoPin       MessageType = 0x33
	MsgSetUserCodePin         MessageType = 0x34
	MsgSetUserCodeNoPin       MessageType = 0x35
	MsgSetUserAuthorityPin    MessageType = 0x36
	MsgSetUserAuthorityNoPin  MessageType = 0x37
	MsgSetClockCalendar       MessageType = 0x3B
	MsgPrimaryKeypadFuncPin   MessageType = 0x3C
	MsgPrimaryKeypadFuncNoPin MessageType = 0x3D
	MsgSecondaryKeypadFunc    MessageType = 0x3E
	MsgZoneBypassToggle       MessageType = 0x3F
)

// String returns the message type name, or its hex value when unknown
func (t MessageType) String() string {
	if e, ok := catalog[t]; ok {
		return e.name
	}
	return fmt.Sprintf("Unknown(0x%02X)", uint8(t))
}

// PrimaryKeypadFunction selects the action of a Primary Keypad Function request
type PrimaryKeypadFunction uint8

// Primary keypad function values
const (
	KeypadTurnOffSounder PrimaryKeypadFunction = 0x00
	KeypadDisarm         PrimaryKeypadFunction = 0x01
	KeypadArmAway        PrimaryKeypadFunction = 0x02
	KeypadArmStay        PrimaryKeypadFunction = 0x03
	KeypadCancel         PrimaryKeypadFunction = 0x04
	KeypadAutoArm        PrimaryKeypadFunction = 0x05
	KeypadStartWalkTest  PrimaryKeypadFunction = 0x06
	KeypadStopWalkTest   PrimaryKeypadFunction = 0x07
)

// SecondaryKeypadFunction selects the action of a Secondary Keypad Function request
type SecondaryKeypadFunction uint8

// Secondary keypad function values
const (
	KeypadStay                 SecondaryKeypadFunction = 0x00
	KeypadChime                SecondaryKeypadFunction = 0x01
	KeypadExit                 SecondaryKeypadFunction = 0x02
	KeypadBypassInteriors      SecondaryKeypadFunction = 0x03
	KeypadFirePanic            SecondaryKeypadFunction = 0x04
	KeypadMedicalPanic         SecondaryKeypadFunction = 0x05
	KeypadPolicePanic          SecondaryKeypadFunction = 0x06
	KeypadSmokeDetectorReset   SecondaryKeypadFunction = 0x07
	KeypadAutoCallbackDownload SecondaryKeypadFunction = 0x08
	KeypadManualPickupDownload SecondaryKeypadFunction = 0x09
	KeypadEnableSilentExit     SecondaryKeypadFunction = 0x0A
	KeypadPerformTest          SecondaryKeypadFunction = 0x0B
	KeypadGroupBypass          SecondaryKeypadFunction = 0x0C
	KeypadAuxFunction1         SecondaryKeypadFunction = 0x0D
	KeypadAuxFunction2         SecondaryKeypadFunction = 0x0E
	KeypadStartSounder         SecondaryKeypadFunction = 0x0F
)
