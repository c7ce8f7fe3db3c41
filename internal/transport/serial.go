// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// port is the part of serial.Port the transport uses
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// Serial is a panel connection over a local serial port.
type Serial struct {
	mu      sync.Mutex
	port    port
	timeout time.Duration
	peeked  []byte
}

// OpenSerial opens portName at 8N1.
func OpenSerial(portName string, baudRate int) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return newSerial(p), nil
}

func newSerial(p port) *Serial {
	return &Serial{port: p, timeout: -1}
}

// ListPorts returns the serial ports present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// ReadByte implements engine.Transport.
func (s *Serial) ReadByte(timeout time.Duration) (byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.peeked) > 0 {
		b := s.peeked[0]
		s.peeked = s.peeked[1:]
		return b, true, nil
	}
	return s.readOne(timeout)
}

// BytesAvailable implements engine.Transport. The port cannot report its
// input queue, so a byte is read without waiting and held for ReadByte.
func (s *Serial) BytesAvailable() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.peeked) > 0 {
		return true, nil
	}
	b, ok, err := s.readOne(0)
	if err != nil || !ok {
		return false, err
	}
	s.peeked = append(s.peeked, b)
	return true, nil
}

func (s *Serial) readOne(timeout time.Duration) (byte, bool, error) {
	if timeout != s.timeout {
		if err := s.port.SetReadTimeout(timeout); err != nil {
			return 0, false, fmt.Errorf("set read timeout: %w", err)
		}
		s.timeout = timeout
	}

	var buf [1]byte
	n, err := s.port.Read(buf[:])
	if err != nil {
		return 0, false, fmt.Errorf("serial read: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}
	return buf[0], true, nil
}

// Write implements engine.Transport.
func (s *Serial) Write(p []byte) error {
	for len(p) > 0 {
		n, err := s.port.Write(p)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		p = p[n:]
	}
	return nil
}

// ResetInputBuffer implements engine.Transport.
func (s *Serial) ResetInputBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peeked = nil
	return s.port.ResetInputBuffer()
}

func (s *Serial) Close() error {
	return s.port.Close()
}
