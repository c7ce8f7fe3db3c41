// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/spf13/cobra"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid NX-584 frame",
	Long: `Wait for a valid frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
NX-584 frame. It ignores invalid bytes and waits for a complete frame with a
correct checksum. Panels broadcast status changes on their own, so an armed
or active system usually answers within a few seconds.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("caddx - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid NX-584 frame...\n\n")

	decoder := caddx.NewDecoder()
	deadline := time.Now().Add(time.Duration(packetTestTimeout) * time.Second)
	rejected := 0

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
			os.Exit(1)
		}

		b, ok, err := conn.ReadByte(remaining)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(2)
		}
		if !ok {
			continue
		}

		m, decodeErr := decoder.DecodeByte(b)
		if decodeErr != nil {
			rejected++
			continue
		}
		if m == nil {
			continue
		}

		if skipped := decoder.Skipped(); skipped > 0 || rejected > 0 {
			fmt.Printf("(skipped %d bytes, %d rejected frames before sync)\n", skipped, rejected)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (0x%02X)\n", caddx.FormatMessageType(m.Type()), uint8(m.Type()))
		fmt.Printf("  Length: %d bytes\n", m.Len())
		fmt.Printf("  ACK requested: %v\n", m.AckRequested())
		os.Exit(0)
	}
}
