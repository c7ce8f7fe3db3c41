// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/Thermoquad/caddx/pkg/engine"
	"github.com/spf13/cobra"
)

var configRequestCmd = &cobra.Command{
	Use:   "config_request",
	Short: "Request the interface configuration and check it",
	Long: `Send an Interface Configuration Request and report the panel's answer.

Prints the firmware version and every capability flag, marks the flags the
link requires, and saves them to the preferences file.

Exit codes:
  0 - Panel is configured correctly
  1 - Required messages are disabled
  2 - Connection error or no response`,
	RunE: runConfigRequest,
}

func init() {
	rootCmd.AddCommand(configRequestCmd)
}

func runConfigRequest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("caddx - Interface Configuration\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	e, err := newEngine(ctx, conn)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := conn.ResetInputBuffer(); err != nil {
		return err
	}

	_, err = e.Negotiate(ctx)
	savePreferences()

	var capErr *caddx.CapabilityError
	switch {
	case err == nil:
		fmt.Print(caddx.FormatCapabilities(e.Capabilities()))
		fmt.Printf("\nOK: panel configuration supports the link\n")
		return nil

	case errors.As(err, &capErr):
		// The report is rebuilt from what the negotiation saved
		fmt.Print(caddx.FormatCapabilities(savedCapabilities()))
		fmt.Fprintf(os.Stderr, "\nFAILED: %v\n", capErr)
		os.Exit(1)

	default:
		fmt.Fprintf(os.Stderr, "FAILED: %v\n", err)
		os.Exit(2)
	}
	return nil
}

// savedCapabilities reads the firmware and flags back from the preferences
func savedCapabilities() *caddx.Capabilities {
	c := &caddx.Capabilities{}
	if v, ok := store.Get(engine.KeyPanelFirmware); ok {
		c.Firmware, _ = v.(string)
	}
	for g, key := range engine.FlagKeys {
		if v, ok := store.Get(key); ok {
			c.Flags[g], _ = v.(uint8)
		}
	}
	return c
}
