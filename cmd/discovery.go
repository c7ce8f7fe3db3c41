// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/caddx/internal/transport"
	"github.com/Thermoquad/caddx/pkg/engine"
	"github.com/spf13/cobra"
)

var (
	discoveryTimeout time.Duration
	discoveryBauds   []int
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Find the serial port and baud rate the panel answers on",
	Long: `Probe serial ports for an NX-584 interface.

Each port (all ports on the system, or only --port) is opened at each baud
rate in turn and sent an Interface Configuration Request. The first answer
is reported and saved as the default port and baud rate.

Examples:
  caddx discovery
  caddx discovery --port /dev/ttyUSB0 --bauds 9600,38400

Exit codes:
  0 - Panel found
  1 - No port answered
  2 - No serial ports available`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "timeout", time.Second, "Time to wait for an answer at each setting")
	discoveryCmd.Flags().IntSliceVar(&discoveryBauds, "bauds", []int{9600, 19200, 38400, 2400, 4800}, "Baud rates to try")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ports := []string{portName}
	if portName == "" {
		var err error
		ports, err = transport.ListPorts()
		if err != nil || len(ports) == 0 {
			fmt.Fprintf(os.Stderr, "No serial ports found: %v\n", err)
			os.Exit(2)
		}
	}

	fmt.Printf("caddx - Panel Discovery\n")
	fmt.Printf("Ports: %v\n", ports)
	fmt.Printf("Baud rates: %v\n\n", discoveryBauds)

	for _, port := range ports {
		for _, baud := range discoveryBauds {
			fmt.Printf("  %s @ %d ... ", port, baud)
			firmware, err := probe(port, baud)
			if err != nil {
				fmt.Printf("%v\n", err)
				continue
			}

			fmt.Printf("FOUND (firmware %s)\n\n", firmware)
			store.Set(engine.KeySerialPort, port)
			store.Set(engine.KeySerialBaudRate, baud)
			savePreferences()
			fmt.Printf("Saved %s @ %d baud to %s\n", port, baud, store.Path())
			return nil
		}
	}

	fmt.Fprintf(os.Stderr, "\nNo panel answered\n")
	os.Exit(1)
	return nil
}

// probe asks one port setting for the interface configuration. Any answer
// counts, including one that fails the capability check.
func probe(port string, baud int) (string, error) {
	conn, err := transport.OpenSerial(port, baud)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	settings := engine.NewMemorySettings()
	e := engine.New(conn, settings,
		engine.WithResponseTimeout(discoveryTimeout),
		engine.WithRetries(0))
	defer e.Close()

	if err := conn.ResetInputBuffer(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*discoveryTimeout+time.Second)
	defer cancel()

	caps, err := e.Negotiate(ctx)
	if caps != nil {
		return caps.Firmware, nil
	}
	if v, ok := settings.Get(engine.KeyPanelFirmware); ok {
		return fmt.Sprint(v), nil
	}
	return "", err
}
