// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// catalogEntry describes one message type of the protocol. length is the
// value the frame length byte must carry: the type byte plus its data,
// excluding the length byte itself and the checksum.
type catalogEntry struct {
	name      string
	length    int
	responses []MessageType
}

// catalog is fixed by the panel firmware and never mutated.
var catalog = map[MessageType]catalogEntry{
	MsgIntConfigRsp:         {name: "IntConfigRsp", length: 11},
	MsgZoneNameRsp:          {name: "ZoneNameRsp", length: 18},
	MsgZoneStatusRsp:        {name: "ZoneStatusRsp", length: 8},
	MsgZonesSnapshotRsp:     {name: "ZonesSnapshotRsp", length: 10},
	MsgPartitionStatusRsp:   {name: "PartitionStatusRsp", length: 9},
	MsgPartitionSnapshotRsp: {name: "PartitionSnapshotRsp", length: 9},
	MsgSystemStatusRsp:      {name: "SystemStatusRsp", length: 12},
	MsgX10MessageInd:        {name: "X10MessageInd", length: 4},
	MsgLogEventInd:          {name: "LogEventInd", length: 10},
	MsgKeypadButtonInd:      {name: "KeypadButtonInd", length: 3},
	MsgProgramDataRsp:       {name: "ProgramDataRsp", length: 13},
	MsgUserInfoRsp:          {name: "UserInfoRsp", length: 17},
	MsgFailedRequest:        {name: "FailedRequest", length: 1},
	MsgACK:                  {name: "ACK", length: 1},
	MsgNACK:                 {name: "NACK", length: 1},
	MsgRejected:             {name: "Rejected", length: 1},

	MsgIntConfigReq:           {name: "IntConfigReq", length: 1, responses: []MessageType{MsgIntConfigRsp}},
	MsgZoneNameReq:            {name: "ZoneNameReq", length: 2, responses: []MessageType{MsgZoneNameRsp}},
	MsgZoneStatusReq:          {name: "ZoneStatusReq", length: 2, responses: []MessageType{MsgZoneStatusRsp}},
	MsgZonesSnapshotReq:       {name: "ZonesSnapshotReq", length: 2, responses: []MessageType{MsgZonesSnapshotRsp}},
	MsgPartitionStatusReq:     {name: "PartitionStatusReq", length: 2, responses: []MessageType{MsgPartitionStatusRsp}},
	MsgPartitionSnapshotReq:   {name: "PartitionSnapshotReq", length: 1, responses: []MessageType{MsgPartitionSnapshotRsp}},
	MsgSystemStatusReq:        {name: "SystemStatusReq", length: 1, responses: []MessageType{MsgSystemStatusRsp}},
	MsgX10MessageReq:          {name: "X10MessageReq", length: 4, responses: []MessageType{MsgACK}},
	MsgLogEventReq:            {name: "LogEventReq", length: 2, responses: []MessageType{MsgLogEventInd}},
	MsgKeypadTextMsgReq:       {name: "KeypadTextMsgReq", length: 12, responses: []MessageType{MsgACK}},
	MsgKeypadTerminalModeReq:  {name: "KeypadTerminalModeReq", length: 3, responses: []MessageType{MsgACK, MsgKeypadButtonInd}},
	MsgProgramDataReq:         {name: "ProgramDataReq", length: 4, responses: []MessageType{MsgProgramDataRsp}},
	MsgProgramDataCmd:         {name: "ProgramDataCmd", length: 13, responses: []MessageType{MsgACK}},
	MsgUserInfoReqPin:         {name: "UserInfoReqPin", length: 5, responses: []MessageType{MsgUserInfoRsp}},
	MsgUserInfoReqNoPin:       {name: "UserInfoReqNoPin", length: 2, responses: []MessageType{MsgUserInfoRsp}},
	MsgSetUserCodePin:         {name: "SetUserCodePin", length: 8, responses: []MessageType{MsgACK}},
	MsgSetUserCodeNoPin:       {name: "SetUserCodeNoPin", length: 5, responses: []MessageType{MsgACK}},
	MsgSetUserAuthorityPin:    {name: "SetUserAuthorityPin", length: 7, responses: []MessageType{MsgACK}},
	MsgSetUserAuthorityNoPin:  {name: "SetUserAuthorityNoPin", length: 4, responses: []MessageType{MsgACK}},
	MsgSetClockCalendar:       {name: "SetClockCalendar", length: 7, responses: []MessageType{MsgACK}},
	MsgPrimaryKeypadFuncPin:   {name: "PrimaryKeypadFuncPin", length: 6, responses: []MessageType{MsgACK}},
	MsgPrimaryKeypadFuncNoPin: {name: "PrimaryKeypadFuncNoPin", length: 4, responses: []MessageType{MsgACK}},
	MsgSecondaryKeypadFunc:    {name: "SecondaryKeypadFunc", length: 3, responses: []MessageType{MsgACK}},
	MsgZoneBypassToggle:       {name: "ZoneBypassToggle", length: 2, responses: []MessageType{MsgACK}},
}

// ValidLength returns the length byte value required for message type t.
func ValidLength(t MessageType) (int, bool) {
	e, ok := catalog[t]
	if !ok {
		return 0, false
	}
	return e.length, true
}

// Known reports whether t has a catalog entry.
func Known(t MessageType) bool {
	_, ok := catalog[t]
	return ok
}

// IsRequest reports whether t is a host-initiated request. Requests occupy
// 0x21-0x3F, so bit 5 is always set; responses and indications never set it.
func IsRequest(t MessageType) bool {
	return Known(t) && t&0x20 != 0
}

// ValidResponses returns the message types that complete request t.
// NACK, Rejected and FailedRequest are not listed; see IsNegativeResponse.
func ValidResponses(t MessageType) []MessageType {
	e, ok := catalog[t]
	if !ok || len(e.responses) == 0 {
		return nil
	}
	out := make([]MessageType, len(e.responses))
	copy(out, e.responses)
	return out
}

// IsValidResponse reports whether rsp completes request req.
func IsValidResponse(req, rsp MessageType) bool {
	for _, t := range catalog[req].responses {
		if t == rsp {
			return true
		}
	}
	return false
}

// IsNegativeResponse reports whether t is a panel refusal of the last request.
func IsNegativeResponse(t MessageType) bool {
	switch t {
	case MsgNACK, MsgRejected, MsgFailedRequest:
		return true
	}
	return false
}

// MessageTypes returns every catalog message type in ascending order.
func MessageTypes() []MessageType {
	types := make([]MessageType, 0, len(catalog))
	for t := range catalog {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ParseMessageType resolves a catalog name ("ZoneStatusReq", case-insensitive)
// or a numeric message number ("0x24", "36").
func ParseMessageType(s string) (MessageType, error) {
	s = strings.TrimSpace(s)
	for t, e := range catalog {
		if strings.EqualFold(e.name, s) {
			return t, nil
		}
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMessageType, s)
	}
	t := MessageType(n)
	if !Known(t) {
		return 0, fmt.Errorf("%w: 0x%02X", ErrUnknownMessageType, n)
	}
	return t, nil
}
