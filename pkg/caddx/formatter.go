// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"fmt"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	timestamp := m.Timestamp().Format("15:04:05.000")

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (0x%02X) len=%d", timestamp, FormatMessageType(m.Type()), uint8(m.Type()), m.Len())
	if m.AckRequested() {
		b.WriteString(" ack")
	}
	b.WriteString("\n")

	switch m.Type() {
	case MsgIntConfigRsp:
		if c, err := ParseInterfaceConfig(m); err == nil {
			b.WriteString(FormatCapabilities(c))
			return b.String()
		}
	case MsgZoneNameRsp:
		if d := m.Data(); len(d) >= 2 {
			fmt.Fprintf(&b, "  Zone: %d\n  Name: %q\n", int(d[0])+1, strings.TrimRight(string(d[1:]), " \x00"))
			return b.String()
		}
	case MsgKeypadButtonInd:
		if d := m.Data(); len(d) >= 2 {
			fmt.Fprintf(&b, "  Keypad: %d\n  Key: 0x%02X\n", d[0], d[1])
			return b.String()
		}
	}

	if len(m.Data()) > 0 {
		fmt.Fprintf(&b, "  Data: % X\n", m.Data())
	}
	return b.String()
}

// FormatMessageType returns the catalog name for a message type, or
// UNKNOWN for types outside the catalog
func FormatMessageType(t MessageType) string {
	if e, ok := catalog[t]; ok {
		return e.name
	}
	return "UNKNOWN"
}

// FormatCapabilities lists the firmware identifier and every capability
// flag with its state, marking required flags that are disabled.
func FormatCapabilities(c *Capabilities) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  Firmware: %s\n", c.Firmware)

	required := make(map[Flag]bool, len(RequiredFlags))
	for _, f := range RequiredFlags {
		required[f] = true
	}

	for g := FlagGroup(0); g < numFlagGroups; g++ {
		fmt.Fprintf(&b, "  %s (0x%02X):\n", g, c.Flags[g])
		for _, f := range FlagsInGroup(g) {
			state := "off"
			if c.Enabled(f) {
				state = "on"
			}
			line := fmt.Sprintf("    - %s: %s", f.Name, state)
			if required[f] && !c.Enabled(f) {
				line += " (REQUIRED)"
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

// FormatFrame renders wire bytes as space separated hex
func FormatFrame(frame []byte) string {
	return fmt.Sprintf("% X", frame)
}
