// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/Thermoquad/caddx/internal/config"
	"github.com/Thermoquad/caddx/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Session flags
	configPath  string
	logLevel    string
	metricsAddr string

	logger *zap.Logger
	store  *config.Store
)

var rootCmd = &cobra.Command{
	Use:   "caddx",
	Short: "Caddx NX-584 serial link tool",
	Long: `caddx - A CLI tool for talking to Caddx/NetworX alarm panels through the
NX-584 home automation interface.

Provides a full link session (capability negotiation, command queue, ACK
handling) as well as passive monitoring, one-shot requests and capture replay.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Port and baud rate fall back to the saved preferences when not given. The
panel firmware and capability flags are saved there after each negotiation.

For WebSocket authentication, the password is read from the CADDX_PASSWORD
environment variable, or prompted interactively if not set.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only, default 9600)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Preferences file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (env "+logging.LogLevelEnvVar+")")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9584)")
}

// setup loads preferences and builds the logger before any command runs
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	var err error
	store, err = config.Load(path)
	if err != nil {
		return err
	}

	logger, err = logging.New(logging.ResolveLevel(logLevel, store.Preferences().DebugMode))
	if err != nil {
		return err
	}
	logger.Debug("preferences loaded", zap.String("path", store.Path()))
	return nil
}

// savePreferences persists what the session learned, logging failures
func savePreferences() {
	if err := store.Save(); err != nil {
		logger.Warn("failed to save preferences", zap.Error(err))
	}
}

// Execute runs the root command
func Execute() error {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	return rootCmd.Execute()
}
