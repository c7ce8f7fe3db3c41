// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

func newTestEngine(t *testing.T, tr *fakeTransport, opts ...Option) (*Engine, *completions) {
	t.Helper()
	if tr.clock == nil {
		tr.clock = newFakeClock()
	}
	done := &completions{}
	base := []Option{
		WithClock(tr.clock.Now),
		WithCompletionHandler(done.handler),
	}
	return New(tr, NewMemorySettings(), append(base, opts...)...), done
}

func mustEncode(t *testing.T, r caddx.Request) []byte {
	t.Helper()
	frame, err := r.Encode()
	if err != nil {
		t.Fatalf("encode %s: %v", r.Type, err)
	}
	return frame
}

// ============================================================
// Negotiation
// ============================================================

func TestNegotiate_Success(t *testing.T) {
	tr := &fakeTransport{respond: panelResponder(requiredFlags)}
	settings := NewMemorySettings()
	var got *caddx.Capabilities
	e := New(tr, settings,
		WithClock(newFakeClock().Now),
		WithCapabilityHandler(func(c *caddx.Capabilities) { got = c }))

	caps, err := e.Negotiate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caps.Firmware != "1.00" || caps.Flags != requiredFlags {
		t.Errorf("unexpected capabilities %+v", caps)
	}
	if got != caps {
		t.Error("capability handler not called with the negotiated capabilities")
	}
	if !e.Ready() || e.State() != StateIdle {
		t.Errorf("expected ready and idle, got ready=%v state=%s", e.Ready(), e.State())
	}

	writes := tr.writes()
	if len(writes) != 1 || !bytes.Equal(writes[0], []byte{0x7E, 0x01, 0x21, 0x22, 0x23}) {
		t.Errorf("expected one IntConfigReq, got % X", writes)
	}

	if v, _ := settings.Get(KeyPanelFirmware); v != "1.00" {
		t.Errorf("firmware not persisted: %v", v)
	}
	if v, _ := settings.Get(KeyRequestCommandFlags4); v != uint8(0x28) {
		t.Errorf("request flags 4 not persisted: %v", v)
	}
}

func TestNegotiate_RetriesThenFails(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, tr, WithRetries(2))

	_, err := e.Negotiate(context.Background())
	if !errors.Is(err, ErrNoInterfaceConfig) {
		t.Fatalf("expected ErrNoInterfaceConfig, got %v", err)
	}
	if n := len(tr.writes()); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if e.State() != StateIdle {
		t.Errorf("expected idle after failure, got %s", e.State())
	}
}

func TestNegotiate_RetriesAfterNACK(t *testing.T) {
	calls := 0
	tr := &fakeTransport{respond: func([]byte) []byte {
		calls++
		if calls == 1 {
			return frameOf(caddx.MsgNACK)
		}
		return intConfigFrame(requiredFlags)
	}}
	e, _ := newTestEngine(t, tr)

	if _, err := e.Negotiate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
}

func TestNegotiate_Rejected(t *testing.T) {
	tr := &fakeTransport{respond: func([]byte) []byte { return frameOf(caddx.MsgRejected) }}
	e, _ := newTestEngine(t, tr)

	_, err := e.Negotiate(context.Background())
	var ce *CommandError
	if !errors.As(err, &ce) || ce.Reason != ReasonRejected {
		t.Fatalf("expected rejected CommandError, got %v", err)
	}
	if !errors.Is(err, ErrNoInterfaceConfig) {
		t.Error("expected errors.Is ErrNoInterfaceConfig")
	}
}

func TestNegotiate_MissingCapability(t *testing.T) {
	flags := requiredFlags
	flags[caddx.RequestFlags4] &^= 0x08    // SetClockCalendar
	flags[caddx.TransitionFlags1] &^= 0x40 // PartitionStatus

	core, logs := observer.New(zap.DebugLevel)
	tr := &fakeTransport{respond: panelResponder(flags)}
	e, _ := newTestEngine(t, tr, WithLogger(zap.New(core)))

	_, err := e.Negotiate(context.Background())
	var capErr *caddx.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if len(capErr.Missing) != 2 {
		t.Errorf("expected 2 missing flags, got %+v", capErr.Missing)
	}
	if e.Ready() {
		t.Error("session must not be ready")
	}

	missing := logs.FilterMessageSnippet("is not enabled").FilterLevelExact(zap.ErrorLevel)
	if missing.Len() != 2 {
		t.Errorf("expected 2 missing flag errors logged, got %d", missing.Len())
	}
	if logs.FilterMessage("Set Clock/Calendar Request is not enabled. This is required for proper operation.").Len() != 1 {
		t.Error("missing Set Clock/Calendar error entry")
	}
	if logs.FilterMessage("  - ZoneBypassToggle").Len() != 1 {
		t.Error("every flag should be logged at debug level")
	}
}

func TestNegotiate_DispatchesInterleavedBroadcast(t *testing.T) {
	var seen []caddx.MessageType
	tr := &fakeTransport{respond: func([]byte) []byte {
		return append(partitionStatusFrame(true), intConfigFrame(requiredFlags)...)
	}}
	e, _ := newTestEngine(t, tr, WithMessageHandler(func(m *caddx.Message) {
		seen = append(seen, m.Type())
	}))

	if _, err := e.Negotiate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != caddx.MsgPartitionStatusRsp || seen[1] != caddx.MsgIntConfigRsp {
		t.Errorf("unexpected dispatch order %v", seen)
	}
	writes := tr.writes()
	if len(writes) != 2 || !bytes.Equal(writes[1], ackFrame) {
		t.Errorf("expected request then ACK, got % X", writes)
	}
}

func TestNegotiate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, _ := newTestEngine(t, &fakeTransport{})
	if _, err := e.Negotiate(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// ============================================================
// Command queue
// ============================================================

func TestStep_OneRequestInFlight(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, tr)

	for zone := byte(0); zone < 2; zone++ {
		if err := e.Enqueue(caddx.NewZoneStatusRequest(zone)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	if err := e.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if e.State() != StateAwaitingResponse {
		t.Errorf("expected awaiting_response, got %s", e.State())
	}
	if err := e.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}
	if n := len(tr.writes()); n != 1 {
		t.Errorf("second request sent while first in flight: %d writes", n)
	}
	if e.Pending() != 2 {
		t.Errorf("expected 2 pending, got %d", e.Pending())
	}
}

func TestStep_ResponseCompletesRequest(t *testing.T) {
	tr := &fakeTransport{}
	e, done := newTestEngine(t, tr)

	_ = e.Enqueue(caddx.NewZoneStatusRequest(3))
	_ = e.Enqueue(caddx.NewZoneStatusRequest(4))
	_ = e.Step()

	tr.feed(zoneStatusFrame(3)...)
	if err := e.Step(); err != nil {
		t.Fatalf("step: %v", err)
	}

	got := done.list()
	if len(got) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(got))
	}
	if got[0].err != nil || got[0].rsp == nil || got[0].rsp.Type() != caddx.MsgZoneStatusRsp {
		t.Errorf("unexpected completion %+v", got[0])
	}

	// the same iteration sends the next request once idle
	writes := tr.writes()
	if len(writes) != 2 || !bytes.Equal(writes[1], mustEncode(t, caddx.NewZoneStatusRequest(4))) {
		t.Errorf("expected second request sent, got % X", writes)
	}
}

func TestStep_BroadcastDoesNotResolveRequest(t *testing.T) {
	tr := &fakeTransport{}
	var seen []caddx.MessageType
	e, done := newTestEngine(t, tr, WithMessageHandler(func(m *caddx.Message) {
		seen = append(seen, m.Type())
	}))

	_ = e.Enqueue(caddx.NewZoneStatusRequest(1))
	_ = e.Step()

	tr.feed(partitionStatusFrame(false)...)
	_ = e.Step()

	if e.State() != StateAwaitingResponse {
		t.Errorf("broadcast must not resolve the request, state %s", e.State())
	}
	if len(done.list()) != 0 {
		t.Error("request completed by an unrelated broadcast")
	}
	if len(seen) != 1 || seen[0] != caddx.MsgPartitionStatusRsp {
		t.Errorf("broadcast not dispatched: %v", seen)
	}
}

func TestStep_TimeoutRetriesThenDrops(t *testing.T) {
	tr := &fakeTransport{}
	e, done := newTestEngine(t, tr, WithRetries(1), WithResponseTimeout(time.Second))
	req := caddx.NewSystemStatusRequest()
	_ = e.Enqueue(req)

	_ = e.Step() // attempt 1
	tr.clock.Advance(time.Second)
	_ = e.Step() // timeout, requeued
	if e.State() != StateIdle || e.Pending() != 1 {
		t.Fatalf("expected requeued request, state %s pending %d", e.State(), e.Pending())
	}
	_ = e.Step() // attempt 2
	tr.clock.Advance(time.Second)
	_ = e.Step() // timeout, dropped

	if n := len(tr.writes()); n != 2 {
		t.Errorf("expected 2 transmissions, got %d", n)
	}
	got := done.list()
	if len(got) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(got))
	}
	var ce *CommandError
	if !errors.As(got[0].err, &ce) {
		t.Fatalf("expected CommandError, got %v", got[0].err)
	}
	if ce.Attempts != 2 || ce.Reason != ReasonTimeout || ce.Type != caddx.MsgSystemStatusReq {
		t.Errorf("unexpected command error %+v", ce)
	}
	if e.Pending() != 0 || e.State() != StateIdle {
		t.Errorf("expected empty idle engine, pending %d state %s", e.Pending(), e.State())
	}
}

func TestStep_RetryGoesAheadOfQueue(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, tr, WithResponseTimeout(time.Second))
	first := caddx.NewZoneStatusRequest(1)
	second := caddx.NewZoneStatusRequest(2)
	_ = e.Enqueue(first)
	_ = e.Enqueue(second)

	_ = e.Step()
	tr.clock.Advance(time.Second)
	_ = e.Step()
	_ = e.Step()

	writes := tr.writes()
	if len(writes) != 2 || !bytes.Equal(writes[1], mustEncode(t, first)) {
		t.Errorf("expected the timed out request retransmitted first, got % X", writes)
	}
}

func TestStep_NACKRetries(t *testing.T) {
	tr := &fakeTransport{}
	e, done := newTestEngine(t, tr, WithRetries(0))
	_ = e.Enqueue(caddx.NewSetClockCalendar(time.Now()))

	_ = e.Step()
	tr.feed(frameOf(caddx.MsgNACK)...)
	_ = e.Step()

	got := done.list()
	if len(got) != 1 {
		t.Fatalf("expected drop after NACK with no retries, got %d completions", len(got))
	}
	var ce *CommandError
	if !errors.As(got[0].err, &ce) || ce.Reason != ReasonNACK {
		t.Errorf("expected NACK CommandError, got %v", got[0].err)
	}
}

func TestStep_NACKRequeues(t *testing.T) {
	tr := &fakeTransport{}
	e, done := newTestEngine(t, tr, WithRetries(1))
	_ = e.Enqueue(caddx.NewSystemStatusRequest())

	_ = e.Step()
	tr.feed(frameOf(caddx.MsgNACK)...)
	_ = e.Step()
	_ = e.Step()

	if n := len(tr.writes()); n != 2 {
		t.Errorf("expected retransmission after NACK, got %d writes", n)
	}
	if len(done.list()) != 0 {
		t.Error("request should still be in flight")
	}
}

func TestStep_RejectedDropsImmediately(t *testing.T) {
	for _, mt := range []caddx.MessageType{caddx.MsgRejected, caddx.MsgFailedRequest} {
		t.Run(mt.String(), func(t *testing.T) {
			tr := &fakeTransport{}
			e, done := newTestEngine(t, tr, WithRetries(3))
			_ = e.Enqueue(caddx.NewZoneBypassToggle(1))

			_ = e.Step()
			tr.feed(frameOf(mt)...)
			_ = e.Step()

			got := done.list()
			if len(got) != 1 || !errors.Is(got[0].err, ErrCommandFailed) {
				t.Fatalf("expected dropped request, got %+v", got)
			}
			if n := len(tr.writes()); n != 1 {
				t.Errorf("negative answer must not be retried, got %d writes", n)
			}
		})
	}
}

func TestStep_KeypadTerminalModeAcceptsEitherResponse(t *testing.T) {
	for _, frame := range [][]byte{
		frameOf(caddx.MsgACK),
		caddx.Frame([]byte{byte(caddx.MsgKeypadButtonInd), 0xC0, 0x05}),
	} {
		tr := &fakeTransport{}
		e, done := newTestEngine(t, tr)
		_ = e.Enqueue(caddx.NewKeypadTerminalModeRequest(0xC0, 10))
		_ = e.Step()
		tr.feed(frame...)
		_ = e.Step()

		if got := done.list(); len(got) != 1 || got[0].err != nil {
			t.Errorf("frame % X: expected completion, got %+v", frame, got)
		}
	}
}

// ============================================================
// Inbound framing and dispatch
// ============================================================

func TestStep_AckRequestAlwaysAcknowledged(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"known", []byte{0x84, 1, 0, 0, 0, 0, 0, 0}},
		{"unknown type", []byte{0x82, 0xAA}},
		{"undersized", []byte{0x84, 0x01}},
		{"reserved bit set", []byte{0xC4, 1, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			e, _ := newTestEngine(t, tr)
			tr.feed(caddx.Frame(tt.raw)...)

			if err := e.Step(); err != nil {
				t.Fatalf("step: %v", err)
			}
			writes := tr.writes()
			if len(writes) != 1 || !bytes.Equal(writes[0], ackFrame) {
				t.Errorf("expected exactly one ACK, got % X", writes)
			}
		})
	}
}

func TestStep_NoAckWhenNotRequested(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, tr)
	tr.feed(zoneStatusFrame(1)...)
	_ = e.Step()
	if n := len(tr.writes()); n != 0 {
		t.Errorf("expected no writes, got %d", n)
	}
}

func TestStep_UndersizedNotRouted(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tr := &fakeTransport{}
	called := false
	e, _ := newTestEngine(t, tr,
		WithLogger(zap.New(core)),
		WithMessageHandler(func(*caddx.Message) { called = true }))

	tr.feed(caddx.Frame([]byte{0x01, '1', '.'})...)
	if err := e.Step(); err != nil {
		t.Fatalf("undersized message must not be fatal: %v", err)
	}
	if called {
		t.Error("undersized message reached the handler")
	}
	if e.Ready() {
		t.Error("undersized IntConfigRsp must not negotiate")
	}
	if logs.FilterMessage("discarding undersized message").Len() != 1 {
		t.Error("expected undersized discard to be logged")
	}
}

func TestStep_FramingErrorResynchronises(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"bad start", []byte{0x01, 0x02, 0x03}},
		{"truncated", []byte{0x7E, 0x02}},
		{"bad escape", []byte{0x7E, 0x02, 0x24, 0x7D, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			e, _ := newTestEngine(t, tr)
			tr.feed(tt.input...)

			if err := e.Step(); err != nil {
				t.Fatalf("framing errors must not be fatal: %v", err)
			}
			if tr.resets != 1 {
				t.Errorf("expected one input reset, got %d", tr.resets)
			}
			if avail, _ := tr.BytesAvailable(); avail {
				t.Error("input should be flushed")
			}
		})
	}
}

func TestStep_ChecksumErrorKeepsAlignment(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, tr)
	tr.feed(0x7E, 0x01, 0x1D, 0x1E, 0x20)
	tr.feed(zoneStatusFrame(1)...)

	_ = e.Step()
	if tr.resets != 0 {
		t.Error("checksum mismatch must not flush input")
	}
	if avail, _ := tr.BytesAvailable(); !avail {
		t.Error("following frame should still be buffered")
	}
	if n := len(tr.writes()); n != 0 {
		t.Errorf("no NACK expected by default, got %d writes", n)
	}
}

func TestStep_NakOnChecksumError(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, tr, WithNakOnChecksumError(true))
	tr.feed(0x7E, 0x01, 0x1D, 0x1E, 0x20)

	_ = e.Step()
	writes := tr.writes()
	if len(writes) != 1 || !bytes.Equal(writes[0], nakFrame) {
		t.Errorf("expected NACK, got % X", writes)
	}
}

func TestStep_TransportReadError(t *testing.T) {
	tr := &fakeTransport{readErr: io.ErrUnexpectedEOF}
	e, _ := newTestEngine(t, tr)
	if err := e.Step(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestFrameObserver_SeesBothDirections(t *testing.T) {
	type seen struct {
		dir  Direction
		wire []byte
	}
	var frames []seen
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, tr, WithFrameObserver(func(dir Direction, wire []byte) {
		frames = append(frames, seen{dir, append([]byte{}, wire...)})
	}))

	in := partitionStatusFrame(true)
	tr.feed(in...)
	_ = e.Step()

	if len(frames) != 2 {
		t.Fatalf("expected 2 observed frames, got %d", len(frames))
	}
	if frames[0].dir != Inbound || !bytes.Equal(frames[0].wire, in) {
		t.Errorf("unexpected inbound frame %v", frames[0])
	}
	if frames[1].dir != Outbound || !bytes.Equal(frames[1].wire, ackFrame) {
		t.Errorf("unexpected outbound frame %v", frames[1])
	}
}

// ============================================================
// Enqueue, lifecycle
// ============================================================

func TestEnqueue_Validation(t *testing.T) {
	tr := &fakeTransport{respond: panelResponder(requiredFlags)}
	e, _ := newTestEngine(t, tr)

	if err := e.Enqueue(caddx.Request{Type: caddx.MsgZoneStatusRsp}); !errors.Is(err, ErrNotRequest) {
		t.Errorf("expected ErrNotRequest, got %v", err)
	}
	if err := e.Enqueue(caddx.Request{Type: caddx.MsgZoneStatusReq}); !errors.Is(err, caddx.ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	// accepted before negotiation
	if err := e.Enqueue(caddx.NewZoneBypassToggle(1)); err != nil {
		t.Errorf("unexpected error before negotiation: %v", err)
	}

	if _, err := e.Negotiate(context.Background()); err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if err := e.Enqueue(caddx.NewZoneBypassToggle(1)); !errors.Is(err, ErrRequestDisabled) {
		t.Errorf("expected ErrRequestDisabled, got %v", err)
	}
	if err := e.Enqueue(caddx.NewZoneNameRequest(1)); err != nil {
		t.Errorf("enabled request refused: %v", err)
	}
}

func TestClose_DrainsQueue(t *testing.T) {
	tr := &fakeTransport{}
	e, done := newTestEngine(t, tr)
	_ = e.Enqueue(caddx.NewZoneStatusRequest(1))
	_ = e.Enqueue(caddx.NewZoneStatusRequest(2))
	_ = e.Step()

	e.Close()

	got := done.list()
	if len(got) != 2 {
		t.Fatalf("expected 2 discarded requests, got %d", len(got))
	}
	for _, c := range got {
		if !errors.Is(c.err, ErrQueueClosed) {
			t.Errorf("expected ErrQueueClosed, got %v", c.err)
		}
	}
	if e.State() != StateClosed {
		t.Errorf("expected closed, got %s", e.State())
	}
	if err := e.Enqueue(caddx.NewSystemStatusRequest()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed on enqueue, got %v", err)
	}
	if err := e.Step(); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed on step, got %v", err)
	}

	e.Close() // idempotent
	if len(done.list()) != 2 {
		t.Error("second Close reported requests again")
	}
}

func TestRun_ServesRequestsUntilCancelled(t *testing.T) {
	tr := &fakeTransport{respond: panelResponder(requiredFlags)}
	e := New(tr, NewMemorySettings(), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	rsp, err := e.Do(reqCtx, caddx.NewZoneStatusRequest(7))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if rsp.Type() != caddx.MsgZoneStatusRsp || rsp.Data()[0] != 7 {
		t.Errorf("unexpected response % X", rsp.Bytes())
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	if e.State() != StateClosed {
		t.Errorf("expected closed, got %s", e.State())
	}
	if tr.resets < 1 {
		t.Error("Run should reset input before negotiating")
	}
}

func TestRun_CapabilityFailureEndsSession(t *testing.T) {
	flags := requiredFlags
	flags[caddx.RequestFlags1] = 0
	tr := &fakeTransport{respond: panelResponder(flags)}
	e := New(tr, NewMemorySettings(), WithPollInterval(time.Millisecond))

	err := e.Run(context.Background())
	if !errors.Is(err, caddx.ErrCapability) {
		t.Fatalf("expected capability error, got %v", err)
	}
	if e.State() != StateClosed {
		t.Errorf("expected closed, got %s", e.State())
	}
}

func TestRun_WriteErrorEndsSession(t *testing.T) {
	tr := &fakeTransport{writeErr: io.ErrClosedPipe}
	e := New(tr, NewMemorySettings())

	if err := e.Run(context.Background()); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("expected write error, got %v", err)
	}
}
