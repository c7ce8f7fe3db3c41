// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/caddx/internal/capture"
	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/Thermoquad/caddx/pkg/engine"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture file>",
	Short: "Decode a capture recorded with run --capture",
	Long: `Decode every frame of a capture file offline.

Inbound frames go through the same dispatch as a live session, so the
interface configuration is checked and discarded messages are reported.
A statistics summary is printed at the end.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	stats := caddx.NewStatistics()
	negotiator := engine.NewNegotiator(logger, engine.NewMemorySettings(), nil, func(c *caddx.Capabilities) {
		fmt.Print(caddx.FormatCapabilities(c))
	})
	dispatcher := engine.NewDispatcher(logger, nil, negotiator, func(m *caddx.Message) {
		fmt.Print(caddx.FormatMessage(m))
	}, func() error { return nil })

	err = capture.Replay(f, func(rec capture.Record, m *caddx.Message, derr error) error {
		if rec.Direction == engine.Outbound {
			if derr != nil {
				fmt.Printf("[tx] undecodable frame: %v\n", derr)
				return nil
			}
			fmt.Print("[tx] ", caddx.FormatMessage(m))
			return nil
		}

		stats.Update(m, derr)
		if derr != nil {
			fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", rec.Time().Format("15:04:05.000"), derr)
			fmt.Printf("  %s\n", caddx.FormatFrame(rec.Wire))
			return nil
		}
		if err := dispatcher.Dispatch(m); err != nil {
			fmt.Printf("  dispatch: %v\n", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Print(stats.String())
	return nil
}
