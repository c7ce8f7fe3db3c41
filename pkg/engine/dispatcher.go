// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

// maxHexDump bounds byte dumps in log entries
const maxHexDump = 256

func hexField(key string, b []byte) zap.Field {
	if len(b) > maxHexDump {
		return zap.String(key, fmt.Sprintf("% X ...(%d bytes)", b[:maxHexDump], len(b)))
	}
	return zap.String(key, fmt.Sprintf("% X", b))
}

func typeField(t caddx.MessageType) zap.Field {
	return zap.String("type", fmt.Sprintf("%s (0x%02X)", t, uint8(t)))
}

// Discard reasons reported to the Recorder
const (
	DiscardUnknownType = "unknown_type"
	DiscardUndersized  = "undersized"
)

// Dispatcher validates decoded messages against the catalog, routes them
// and acknowledges them when asked.
type Dispatcher struct {
	logger     *zap.Logger
	recorder   Recorder
	negotiator *Negotiator
	handler    MessageHandler
	sendAck    func() error
}

// NewDispatcher creates a dispatcher. sendAck transmits one ACK frame.
func NewDispatcher(logger *zap.Logger, recorder Recorder, negotiator *Negotiator, handler MessageHandler, sendAck func() error) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Dispatcher{
		logger:     logger,
		recorder:   recorder,
		negotiator: negotiator,
		handler:    handler,
		sendAck:    sendAck,
	}
}

// Dispatch handles one decoded message. Unknown and undersized messages are
// logged and dropped. Any message with the ack-request bit set is
// acknowledged, recognised or not.
//
// The returned error is a *caddx.CapabilityError when an interface
// configuration response lacks required flags, or an ACK transmit failure.
func (d *Dispatcher) Dispatch(m *caddx.Message) error {
	var routeErr error

	t := m.Type()
	expected, known := caddx.ValidLength(t)
	switch {
	case !known:
		d.logger.Warn("discarding message of unknown type",
			zap.String("type", fmt.Sprintf("0x%02X", uint8(t))),
			zap.Int("length", m.Len()),
			hexField("hex", m.Bytes()))
		d.recorder.MessageDiscarded(DiscardUnknownType)

	case m.Len() < expected:
		d.logger.Warn("discarding undersized message",
			typeField(t),
			zap.Int("length", m.Len()),
			zap.Int("expected", expected),
			hexField("hex", m.Bytes()))
		d.recorder.MessageDiscarded(DiscardUndersized)

	default:
		d.recorder.FrameReceived(t)
		d.logger.Debug("received", typeField(t), zap.Bool("ack", m.AckRequested()), hexField("hex", m.Bytes()))
		routeErr = d.route(m)
	}

	if !m.AckRequested() {
		return routeErr
	}
	if err := d.sendAck(); err != nil {
		return errors.Join(routeErr, fmt.Errorf("send ACK: %w", err))
	}
	d.recorder.AckSent()
	return routeErr
}

func (d *Dispatcher) route(m *caddx.Message) error {
	var err error
	if m.Type() == caddx.MsgIntConfigRsp && d.negotiator != nil {
		_, err = d.negotiator.Process(m)
	}
	if d.handler != nil {
		d.handler(m)
	}
	return err
}
