// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package engine runs a Caddx NX-584 session over a half-duplex link: it
// dispatches inbound messages, negotiates panel capabilities and keeps at
// most one request in flight.
package engine

import (
	"sync"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

// Transport is the byte link to the panel.
type Transport interface {
	// ReadByte waits up to timeout for one byte. ok is false when the
	// timeout expired with nothing received.
	ReadByte(timeout time.Duration) (b byte, ok bool, err error)

	// BytesAvailable reports whether a ReadByte would return immediately.
	BytesAvailable() (bool, error)

	Write(p []byte) error

	// ResetInputBuffer discards everything received but not yet read.
	ResetInputBuffer() error
}

// Settings is the persistent key/value store the session reads its
// connection settings from and records negotiated panel state into.
type Settings interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// Settings keys
const (
	KeySerialPort              = "serialPort"
	KeySerialBaudRate          = "serialBaudRate"
	KeyDebugMode               = "debugMode"
	KeyPanelFirmware           = "panelFirmware"
	KeyTransitionMessageFlags1 = "transitionMessageFlags1"
	KeyTransitionMessageFlags2 = "transitionMessageFlags2"
	KeyRequestCommandFlags1    = "requestCommandFlags1"
	KeyRequestCommandFlags2    = "requestCommandFlags2"
	KeyRequestCommandFlags3    = "requestCommandFlags3"
	KeyRequestCommandFlags4    = "requestCommandFlags4"
)

// FlagKeys maps each capability flag group to its settings key
var FlagKeys = map[caddx.FlagGroup]string{
	caddx.TransitionFlags1: KeyTransitionMessageFlags1,
	caddx.TransitionFlags2: KeyTransitionMessageFlags2,
	caddx.RequestFlags1:    KeyRequestCommandFlags1,
	caddx.RequestFlags2:    KeyRequestCommandFlags2,
	caddx.RequestFlags3:    KeyRequestCommandFlags3,
	caddx.RequestFlags4:    KeyRequestCommandFlags4,
}

// MemorySettings is an in-memory Settings.
type MemorySettings struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewMemorySettings creates an empty in-memory store
func NewMemorySettings() *MemorySettings {
	return &MemorySettings{values: make(map[string]any)}
}

func (s *MemorySettings) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemorySettings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Direction of a frame on the link
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "tx"
	}
	return "rx"
}

// FrameObserver sees every wire frame, valid or not, as it crosses the link.
type FrameObserver func(dir Direction, wire []byte)

// MessageHandler receives every valid, catalog-length inbound message.
type MessageHandler func(m *caddx.Message)

// CompletionHandler is called once per command with the completing response
// or the reason it failed.
type CompletionHandler func(req caddx.Request, rsp *caddx.Message, err error)

// CapabilityHandler receives the panel capabilities once negotiation succeeds.
type CapabilityHandler func(c *caddx.Capabilities)

// Recorder receives engine events for instrumentation.
type Recorder interface {
	FrameReceived(t caddx.MessageType)
	FramingError(kind caddx.FramingErrorKind)
	MessageDiscarded(reason string)
	AckSent()
	NakSent()
	CommandSent(t caddx.MessageType, attempt int)
	CommandCompleted(t caddx.MessageType, elapsed time.Duration)
	CommandDropped(t caddx.MessageType, reason string)
	QueueDepth(n int)
	Negotiated(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) FrameReceived(caddx.MessageType) {}
func (nopRecorder) FramingError(caddx.FramingErrorKind) {}
func (nopRecorder) MessageDiscarded(string) {}
func (nopRecorder) AckSent() {}
func (nopRecorder) NakSent() {}
func (nopRecorder) CommandSent(caddx.MessageType, int) {}
func (nopRecorder) CommandCompleted(caddx.MessageType, time.Duration) {}
func (nopRecorder) CommandDropped(caddx.MessageType, string) {}
func (nopRecorder) QueueDepth(int) {}
func (nopRecorder) Negotiated(bool) {}
