// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"fmt"
	"strings"
)

// FlagGroup identifies one of the six capability-flag bytes carried by an
// interface configuration response.
type FlagGroup int

const (
	TransitionFlags1 FlagGroup = iota
	TransitionFlags2
	RequestFlags1
	RequestFlags2
	RequestFlags3
	RequestFlags4

	numFlagGroups = 6
)

var flagGroupNames = [numFlagGroups]string{
	"TransitionMessageFlags1",
	"TransitionMessageFlags2",
	"RequestCommandFlags1",
	"RequestCommandFlags2",
	"RequestCommandFlags3",
	"RequestCommandFlags4",
}

func (g FlagGroup) String() string {
	if g < 0 || int(g) >= numFlagGroups {
		return fmt.Sprintf("FlagGroup(%d)", int(g))
	}
	return flagGroupNames[g]
}

// Transition reports whether the group gates panel broadcasts rather than
// host requests.
func (g FlagGroup) Transition() bool {
	return g == TransitionFlags1 || g == TransitionFlags2
}

// Flag is one capability bit: a broadcast the panel may send on a state
// transition, or a request the panel will accept.
type Flag struct {
	Group       FlagGroup
	Mask        uint8
	Name        string
	Description string

	// Message is the message type this bit gates
	Message MessageType
}

// Flags lists every capability bit, grouped in wire order.
var Flags = []Flag{
	{TransitionFlags1, 0x02, "InterfaceConfig", "Interface Config Message", MsgIntConfigRsp},
	{TransitionFlags1, 0x10, "ZoneStatus", "Zone Status Message", MsgZoneStatusRsp},
	{TransitionFlags1, 0x20, "ZoneSnapshot", "Zone Snapshot Message", MsgZonesSnapshotRsp},
	{TransitionFlags1, 0x40, "PartitionStatus", "Partition Status Message", MsgPartitionStatusRsp},
	{TransitionFlags1, 0x80, "PartitionSnapshot", "Partition Snapshot Message", MsgPartitionSnapshotRsp},

	{TransitionFlags2, 0x01, "SystemStatus", "System Status Message", MsgSystemStatusRsp},
	{TransitionFlags2, 0x02, "X10Message", "X10 Message Indication", MsgX10MessageInd},
	{TransitionFlags2, 0x04, "LogEvent", "Log Event Message", MsgLogEventInd},
	{TransitionFlags2, 0x08, "KeypadButton", "Keypad Button Message", MsgKeypadButtonInd},

	{RequestFlags1, 0x02, "InterfaceConfig", "Interface Config Request", MsgIntConfigReq},
	{RequestFlags1, 0x08, "ZoneName", "Zone Name Request", MsgZoneNameReq},
	{RequestFlags1, 0x10, "ZoneStatus", "Zone Status Request", MsgZoneStatusReq},
	{RequestFlags1, 0x20, "ZoneSnapshot", "Zone Snapshot Request", MsgZonesSnapshotReq},
	{RequestFlags1, 0x40, "PartitionStatus", "Partition Status Request", MsgPartitionStatusReq},
	{RequestFlags1, 0x80, "PartitionSnapshot", "Partition Snapshot Request", MsgPartitionSnapshotReq},

	{RequestFlags2, 0x01, "SystemStatus", "System Status Request", MsgSystemStatusReq},
	{RequestFlags2, 0x02, "X10Message", "X10 Message Request", MsgX10MessageReq},
	{RequestFlags2, 0x04, "LogEvent", "Log Event Request", MsgLogEventReq},
	{RequestFlags2, 0x08, "KeypadTextMessage", "Keypad Text Message Request", MsgKeypadTextMsgReq},
	{RequestFlags2, 0x10, "KeypadTerminalMode", "Keypad Terminal Mode Request", MsgKeypadTerminalModeReq},

	{RequestFlags3, 0x01, "ProgramData", "Program Data Request", MsgProgramDataReq},
	{RequestFlags3, 0x02, "ProgramDataCommand", "Program Data Command", MsgProgramDataCmd},
	{RequestFlags3, 0x04, "UserInfoPin", "User Info With Pin Request", MsgUserInfoReqPin},
	{RequestFlags3, 0x08, "UserInfoNoPin", "User Info No Pin Request", MsgUserInfoReqNoPin},
	{RequestFlags3, 0x10, "SetUserCodePin", "Set User Code With Pin Request", MsgSetUserCodePin},
	{RequestFlags3, 0x20, "SetUserCodeNoPin", "Set User Code No Pin Request", MsgSetUserCodeNoPin},
	{RequestFlags3, 0x40, "SetUserAuthorityPin", "Set User Authority With Pin Request", MsgSetUserAuthorityPin},
	{RequestFlags3, 0x80, "SetUserAuthorityNoPin", "Set User Authority No Pin Request", MsgSetUserAuthorityNoPin},

	{RequestFlags4, 0x08, "SetClockCalendar", "Set Clock/Calendar Request", MsgSetClockCalendar},
	{RequestFlags4, 0x10, "PrimaryKeypadPin", "Primary Keypad With Pin Request", MsgPrimaryKeypadFuncPin},
	{RequestFlags4, 0x20, "PrimaryKeypadNoPin", "Primary Keypad No Pin Request", MsgPrimaryKeypadFuncNoPin},
	{RequestFlags4, 0x40, "SecondaryKeypad", "Secondary Keypad Request", MsgSecondaryKeypadFunc},
	{RequestFlags4, 0x80, "ZoneBypassToggle", "Zone Bypass Toggle Request", MsgZoneBypassToggle},
}

// RequiredFlags is the subset of capabilities a session cannot operate
// without, in the order violations are reported.
var RequiredFlags = []Flag{
	mustFlag(TransitionFlags1, "InterfaceConfig"),
	mustFlag(TransitionFlags1, "ZoneStatus"),
	mustFlag(TransitionFlags1, "PartitionStatus"),
	mustFlag(TransitionFlags1, "PartitionSnapshot"),
	mustFlag(TransitionFlags2, "SystemStatus"),
	mustFlag(RequestFlags1, "InterfaceConfig"),
	mustFlag(RequestFlags1, "ZoneName"),
	mustFlag(RequestFlags1, "ZoneStatus"),
	mustFlag(RequestFlags1, "ZoneSnapshot"),
	mustFlag(RequestFlags1, "PartitionStatus"),
	mustFlag(RequestFlags1, "PartitionSnapshot"),
	mustFlag(RequestFlags2, "SystemStatus"),
	mustFlag(RequestFlags4, "SetClockCalendar"),
	mustFlag(RequestFlags4, "PrimaryKeypadNoPin"),
}

func mustFlag(g FlagGroup, name string) Flag {
	for _, f := range Flags {
		if f.Group == g && f.Name == name {
			return f
		}
	}
	panic(fmt.Sprintf("caddx: no flag %s in %s", name, g))
}

// FlagsInGroup returns the flags of one group in bit order
func FlagsInGroup(g FlagGroup) []Flag {
	var out []Flag
	for _, f := range Flags {
		if f.Group == g {
			out = append(out, f)
		}
	}
	return out
}

// FlagFor returns the capability flag gating message type t, if any.
func FlagFor(t MessageType) (Flag, bool) {
	for _, f := range Flags {
		if f.Message == t {
			return f, true
		}
	}
	return Flag{}, false
}

// Offsets into an IntConfigRsp message, counted from the type byte
const (
	firmwareOffset = 1
	firmwareLength = 5
	flagsOffset    = 5
)

// Capabilities is the decoded content of an interface configuration response.
type Capabilities struct {
	Firmware string
	Flags    [numFlagGroups]uint8
}

// ParseInterfaceConfig decodes an IntConfigRsp message.
//
// The firmware identifier occupies message bytes 1..5 and the flag bytes
// 5..10, so the last identifier position shares its byte with the first
// flag group. The identifier is cut at the first non-printable byte.
func ParseInterfaceConfig(m *Message) (*Capabilities, error) {
	if m.Type() != MsgIntConfigRsp {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrWrongMessageType, MsgIntConfigRsp, m.Type())
	}
	raw := m.Bytes()
	expected, _ := ValidLength(MsgIntConfigRsp)
	if len(raw) < expected {
		return nil, &LengthError{Type: MsgIntConfigRsp, Expected: expected, Got: len(raw)}
	}

	c := &Capabilities{
		Firmware: printablePrefix(raw[firmwareOffset : firmwareOffset+firmwareLength]),
	}
	copy(c.Flags[:], raw[flagsOffset:flagsOffset+numFlagGroups])

	return c, nil
}

func printablePrefix(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			break
		}
		sb.WriteByte(c)
	}
	return strings.TrimSpace(sb.String())
}

// Enabled reports whether flag f is set
func (c *Capabilities) Enabled(f Flag) bool {
	return c.Flags[f.Group]&f.Mask != 0
}

// Missing returns every required flag that is not set.
func (c *Capabilities) Missing() []Flag {
	var missing []Flag
	for _, f := range RequiredFlags {
		if !c.Enabled(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Check returns a *CapabilityError naming every missing required flag, or nil.
func (c *Capabilities) Check() error {
	if missing := c.Missing(); len(missing) > 0 {
		return &CapabilityError{Missing: missing}
	}
	return nil
}

// Accepts reports whether the panel will accept request t. Requests with no
// gating flag are always accepted.
func (c *Capabilities) Accepts(t MessageType) bool {
	f, ok := FlagFor(t)
	if !ok || f.Group.Transition() {
		return true
	}
	return c.Enabled(f)
}

// Broadcasts reports whether the panel will send message t on a state
// transition. Types with no transition flag are never broadcast.
func (c *Capabilities) Broadcasts(t MessageType) bool {
	for _, f := range Flags {
		if f.Message == t && f.Group.Transition() {
			return c.Enabled(f)
		}
	}
	return false
}
