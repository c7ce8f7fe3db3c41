// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed frames",
	Long: `Track framing errors and malformed messages with statistics.

This command passively decodes the line and detects:
  - Checksum mismatches and bad escape sequences
  - Truncated frames and out of range lengths
  - Unknown message types and messages shorter than the catalog length

By default, only errors are displayed. Use --show-all to display valid
messages too. Statistics are printed at the configured interval.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all messages (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("caddx - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All messages\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := caddx.NewDecoder()
	stats := caddx.NewStatistics()

	// Ignore decode errors until the first valid frame
	synchronized := false

	interval := time.Duration(statsInterval) * time.Second
	nextStats := time.Now().Add(interval)

	for ctx.Err() == nil {
		if time.Now().After(nextStats) {
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
			nextStats = time.Now().Add(interval)
		}

		b, ok, err := conn.ReadByte(250 * time.Millisecond)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		m, decodeErr := decoder.DecodeByte(b)
		if decodeErr != nil {
			if synchronized {
				stats.Update(nil, decodeErr)
				printDecodeError(decodeErr, decoder.RawBytes())
			}
			continue
		}
		if m == nil {
			continue
		}

		if !synchronized {
			synchronized = true
			if skipped := decoder.Skipped(); skipped > 0 {
				fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", skipped)
			} else {
				fmt.Printf("[SYNC] Synchronized\n\n")
			}
		}

		stats.Update(m, nil)
		if issue := validateMessage(m); issue != nil {
			printValidationError(m, issue)
		} else if showAll {
			fmt.Print(caddx.FormatMessage(m))
		}
	}

	fmt.Println()
	fmt.Print(stats.String())
	return nil
}

// validateMessage checks a well framed message against the catalog
func validateMessage(m *caddx.Message) error {
	if !caddx.Known(m.Type()) {
		return fmt.Errorf("%w: 0x%02X", caddx.ErrUnknownMessageType, uint8(m.Type()))
	}
	want, _ := caddx.ValidLength(m.Type())
	if m.Len() < want {
		return &caddx.LengthError{Type: m.Type(), Expected: want, Got: m.Len()}
	}
	return nil
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error, raw []byte) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)

	var fe *caddx.FramingError
	if errors.As(err, &fe) && fe.Kind == caddx.ChecksumMismatch {
		fmt.Printf("  Checksum: offered=0x%04X calculated=0x%04X\n", fe.Offered, fe.Calculated)
	}
	if len(raw) > 0 {
		fmt.Printf("  Raw: %s\n", caddx.FormatFrame(raw))
	}
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// printValidationError prints a catalog violation for a decoded message
func printValidationError(m *caddx.Message, issue error) {
	timestamp := m.Timestamp().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp,
		caddx.FormatMessageType(m.Type()), uint8(m.Type()))
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")
	fmt.Printf("  Issue: \033[1;31m%v\033[0m\n", issue)
	fmt.Printf("  Data: % X\n", m.Data())
	fmt.Printf("  >>> MESSAGE DISCARDED <<<\n\n")
}
