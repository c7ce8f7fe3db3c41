// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"sync"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeTransport is a scripted panel link. A read on empty input advances
// the clock by the timeout, as a real read would block for it.
type fakeTransport struct {
	mu       sync.Mutex
	clock    *fakeClock
	in       []byte
	written  [][]byte
	resets   int
	writeErr error
	readErr  error

	// respond returns the bytes the panel sends back for a written frame
	respond func(frame []byte) []byte
}

func (t *fakeTransport) ReadByte(timeout time.Duration) (byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return 0, false, t.readErr
	}
	if len(t.in) == 0 {
		if t.clock != nil {
			t.clock.Advance(timeout)
		}
		return 0, false, nil
	}
	b := t.in[0]
	t.in = t.in[1:]
	return b, true, nil
}

func (t *fakeTransport) BytesAvailable() (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return false, t.readErr
	}
	return len(t.in) > 0, nil
}

func (t *fakeTransport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return t.writeErr
	}
	t.written = append(t.written, append([]byte{}, p...))
	if t.respond != nil {
		t.in = append(t.in, t.respond(p)...)
	}
	return nil
}

func (t *fakeTransport) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resets++
	t.in = nil
	return nil
}

func (t *fakeTransport) feed(b ...byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.in = append(t.in, b...)
}

func (t *fakeTransport) writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte{}, t.written...)
}

// requiredFlags has exactly the required capability bits set
var requiredFlags = [6]uint8{0xD2, 0x01, 0xFA, 0x01, 0x00, 0x28}

func intConfigFrame(flags [6]uint8) []byte {
	raw := []byte{byte(caddx.MsgIntConfigRsp), '1', '.', '0', '0'}
	return caddx.Frame(append(raw, flags[:]...))
}

func zoneStatusFrame(zone byte) []byte {
	return caddx.Frame([]byte{byte(caddx.MsgZoneStatusRsp), zone, 0, 0, 0, 0, 0, 0})
}

func partitionStatusFrame(ack bool) []byte {
	t := byte(caddx.MsgPartitionStatusRsp)
	if ack {
		t |= caddx.AckRequestBit
	}
	return caddx.Frame([]byte{t, 0, 0, 0, 0, 0, 0, 0, 0})
}

func frameOf(mt caddx.MessageType) []byte {
	return caddx.Frame([]byte{byte(mt)})
}

// panelResponder answers IntConfigReq with the given flags and
// ZoneStatusReq with a zone status for the requested zone
func panelResponder(flags [6]uint8) func([]byte) []byte {
	icr, _ := caddx.Encode(caddx.MsgIntConfigReq, nil)
	return func(frame []byte) []byte {
		if string(frame) == string(icr) {
			return intConfigFrame(flags)
		}
		if len(frame) >= 4 && frame[2] == byte(caddx.MsgZoneStatusReq) {
			return zoneStatusFrame(frame[3])
		}
		return nil
	}
}

type completion struct {
	req caddx.Request
	rsp *caddx.Message
	err error
}

type completions struct {
	mu  sync.Mutex
	all []completion
}

func (c *completions) handler(req caddx.Request, rsp *caddx.Message, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.all = append(c.all, completion{req, rsp, err})
}

func (c *completions) list() []completion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]completion{}, c.all...)
}
