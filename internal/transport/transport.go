// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport connects the link engine to a panel, either over a
// local serial port or through a WebSocket serial bridge.
package transport

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/caddx/pkg/engine"
	"golang.org/x/term"
)

// PasswordEnvVar supplies the WebSocket password without prompting
const PasswordEnvVar = "CADDX_PASSWORD"

// ErrNoEndpoint is returned by Open when neither a port nor a URL is set
var ErrNoEndpoint = errors.New("no serial port configured")

// Conn is an engine transport that can be closed.
type Conn interface {
	engine.Transport
	Close() error
}

// Options selects and configures the transport.
type Options struct {
	Port          string
	BaudRate      int
	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Open opens a WebSocket bridge when a URL is set, otherwise the serial
// port. It returns a description of the endpoint for logging.
func Open(opts Options) (Conn, string, error) {
	if opts.URL != "" {
		password := opts.Password
		if opts.Username != "" && password == "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := DialWebSocket(opts.URL, opts.Username, password, opts.SkipSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", opts.URL), nil
	}

	if opts.Port != "" {
		conn, err := OpenSerial(opts.Port, opts.BaudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", opts.Port, opts.BaudRate), nil
	}

	return nil, "", ErrNoEndpoint
}

// GetPassword retrieves the password from the environment or prompts for it
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnvVar); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
