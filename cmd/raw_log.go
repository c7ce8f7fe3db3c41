// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/caddx/internal/transport"
	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw message log in human-readable format",
	Long: `Continuously decode and display NX-584 messages as they arrive.

Passive: nothing is sent to the panel, so ACK requests go unanswered and the
panel will repeat those messages. Useful alongside another host on the line.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("caddx - Raw Message Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := caddx.NewDecoder()
	for {
		b, ok, err := conn.ReadByte(time.Second)
		if err != nil {
			// A closed WebSocket will not come back
			if errors.Is(err, transport.ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			return err
		}
		if !ok {
			continue
		}

		m, err := decoder.DecodeByte(b)
		if err != nil {
			fmt.Printf("[ERROR] %v\n", err)
			logger.Debug("rejected frame", zap.String("raw", caddx.FormatFrame(decoder.RawBytes())))
			continue
		}
		if m != nil {
			fmt.Print(caddx.FormatMessage(m))
		}
	}
}
