// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/caddx/internal/capture"
	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/Thermoquad/caddx/pkg/engine"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	capturePath     string
	runRetries      int
	runTimeout      time.Duration
	runNakChecksum  bool
	runInitialState bool
	runSetClock     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full link session with the panel",
	Long: `Open the link, negotiate panel capabilities and keep the session running.

The interface configuration is requested first. If the panel is missing any
message the link depends on, every missing setting is reported and the
session ends. Otherwise every message from the panel is printed, ACKs are
sent when requested, and the initial system, partition and zone state is
requested.

Use --capture to record all traffic for later replay.`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&capturePath, "capture", "", "Record every frame to this file")
	runCmd.Flags().IntVar(&runRetries, "retries", 3, "Retransmissions per command before it is dropped")
	runCmd.Flags().DurationVar(&runTimeout, "response-timeout", 2*time.Second, "Time to wait for a response to a command")
	runCmd.Flags().BoolVar(&runNakChecksum, "nak-on-checksum", false, "Send NACK when a frame fails its checksum")
	runCmd.Flags().BoolVar(&runInitialState, "initial-state", true, "Request system, partition and zone state once negotiated")
	runCmd.Flags().BoolVar(&runSetClock, "set-clock", false, "Set the panel clock once negotiated")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("caddx - Link Session\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	opts := []engine.Option{
		engine.WithRetries(runRetries),
		engine.WithResponseTimeout(runTimeout),
		engine.WithNakOnChecksumError(runNakChecksum),
		engine.WithMessageHandler(func(m *caddx.Message) {
			fmt.Print(caddx.FormatMessage(m))
		}),
		engine.WithCompletionHandler(func(req caddx.Request, rsp *caddx.Message, err error) {
			if err != nil {
				fmt.Printf("[FAILED] %s: %v\n", req, err)
			}
		}),
	}

	if capturePath != "" {
		f, err := os.Create(capturePath)
		if err != nil {
			return fmt.Errorf("failed to create capture file: %w", err)
		}
		defer f.Close()
		w := capture.NewWriter(f, nil)
		defer func() {
			if err := w.Err(); err != nil {
				logger.Error("capture incomplete", zap.Error(err))
			}
		}()
		opts = append(opts, engine.WithFrameObserver(w.Observe))
		logger.Info("capturing traffic", zap.String("file", capturePath))
	}

	var e *engine.Engine
	opts = append(opts, engine.WithCapabilityHandler(func(c *caddx.Capabilities) {
		fmt.Print(caddx.FormatCapabilities(c))
		fmt.Println()
		for _, req := range initialRequests(time.Now()) {
			if err := e.Enqueue(req); err != nil {
				logger.Warn("initial request refused", zap.Stringer("request", req), zap.Error(err))
			}
		}
	}))

	e, err = newEngine(ctx, conn, opts...)
	if err != nil {
		return err
	}

	err = e.Run(ctx)
	savePreferences()
	return err
}

// initialRequests are queued once the panel's capabilities are known
func initialRequests(now time.Time) []caddx.Request {
	var reqs []caddx.Request
	if runSetClock {
		reqs = append(reqs, caddx.NewSetClockCalendar(now))
	}
	if runInitialState {
		reqs = append(reqs,
			caddx.NewSystemStatusRequest(),
			caddx.NewPartitionSnapshotRequest(),
			caddx.NewZonesSnapshotRequest(0),
		)
	}
	return reqs
}
