// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

var (
	ErrQueueClosed       = errors.New("engine: command queue closed")
	ErrRequestDisabled   = errors.New("engine: request disabled in panel configuration")
	ErrNotRequest        = errors.New("engine: not a request message type")
	ErrNoInterfaceConfig = errors.New("engine: no interface configuration response")
	ErrCommandFailed     = errors.New("engine: command failed")
)

// Reasons a command is dropped
const (
	ReasonTimeout  = "timeout"
	ReasonNACK     = "nack"
	ReasonRejected = "rejected"
	ReasonFailed   = "failed_request"
	ReasonEncode   = "encode"
	ReasonClosed   = "closed"
)

// CommandError reports a request that was dropped without a valid response.
type CommandError struct {
	Type     caddx.MessageType
	Attempts int
	Reason   string

	// Err is the underlying cause, when there is one
	Err error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s dropped after %d attempt(s): %s", e.Type, e.Attempts, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCommandFailed, e.Err}
	}
	return []error{ErrCommandFailed}
}
