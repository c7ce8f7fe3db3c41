// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/spf13/cobra"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <type> [hex data]",
	Short: "Send one request through a link session",
	Long: `Negotiate with the panel, send a single request and print the answer.

The type is a catalog name (e.g. ZoneStatusReq) or a number (e.g. 0x24).
The data bytes follow the type byte, as hex with optional spaces:

  caddx send ZoneStatusReq 04
  caddx send 0x3D "02 01 01"

Run with no arguments to list the request types.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 15*time.Second, "Give up if no answer arrives within this time")
}

func runSend(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		listRequestTypes()
		return nil
	}

	req, err := parseRequest(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, sendWait)
	defer cancel()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Request: %s\n\n", req)

	e, err := newEngine(ctx, conn)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx) }()

	rsp, err := e.Do(ctx, req)
	cancel()
	if rerr := <-runErr; rerr != nil && err == nil {
		err = rerr
	}
	savePreferences()
	if err != nil {
		return fmt.Errorf("%s: %w", req.Type, err)
	}

	fmt.Print(caddx.FormatMessage(rsp))
	return nil
}

// parseRequest builds a request from a type name or number and hex data
func parseRequest(args []string) (caddx.Request, error) {
	t, err := caddx.ParseMessageType(args[0])
	if err != nil {
		return caddx.Request{}, err
	}

	var data []byte
	if len(args) > 1 {
		digits := strings.Join(strings.Fields(strings.Join(args[1:], " ")), "")
		data, err = hex.DecodeString(digits)
		if err != nil {
			return caddx.Request{}, fmt.Errorf("invalid hex data: %w", err)
		}
	}

	return caddx.NewRequest(t, data)
}

func listRequestTypes() {
	fmt.Println("Request types:")
	for _, t := range caddx.MessageTypes() {
		if !caddx.IsRequest(t) {
			continue
		}
		length, _ := caddx.ValidLength(t)
		fmt.Printf("  0x%02X  %-26s data bytes: %d\n", uint8(t), t, length-1)
	}
}
