// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"context"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Link states
const (
	StateIdle             = "idle"
	StateAwaitingResponse = "awaiting_response"
	StateClosed           = "closed"
)

// Link events
const (
	eventSend    = "send"
	eventResolve = "resolve"
	eventClose   = "close"
)

// newLinkState builds the half-duplex link state machine: one request may
// be outstanding at a time and a closed link never reopens.
func newLinkState(logger *zap.Logger) *fsm.FSM {
	return fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: eventSend, Src: []string{StateIdle}, Dst: StateAwaitingResponse},
			{Name: eventResolve, Src: []string{StateAwaitingResponse}, Dst: StateIdle},
			{Name: eventClose, Src: []string{StateIdle, StateAwaitingResponse}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("link state", zap.String("from", e.Src), zap.String("to", e.Dst))
			},
		},
	)
}
