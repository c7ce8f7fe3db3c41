// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

var (
	ackFrame, _ = caddx.Encode(caddx.MsgACK, nil)
	nakFrame, _ = caddx.Encode(caddx.MsgNACK, nil)
)

// Engine is a protocol session with one panel.
//
// Run owns the link: inbound dispatch, the request queue and the link
// state are only touched from the goroutine running Run (or calling Step).
// Enqueue and Do may be called from any goroutine.
type Engine struct {
	transport Transport
	settings  Settings
	cfg       Config
	logger    *zap.Logger

	state      *fsm.FSM
	queue      queue
	pending    *command
	negotiator *Negotiator
	dispatcher *Dispatcher
}

// New creates an engine on transport t, persisting negotiated panel state
// into s.
func New(t Transport, s Settings, opts ...Option) *Engine {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		transport: t,
		settings:  s,
		cfg:       cfg,
		logger:    cfg.Logger,
		state:     newLinkState(cfg.Logger),
	}
	e.negotiator = NewNegotiator(cfg.Logger, s, cfg.Recorder, cfg.CapabilityHandler)
	e.dispatcher = NewDispatcher(cfg.Logger, cfg.Recorder, e.negotiator, cfg.MessageHandler, e.sendAck)
	return e
}

// Run negotiates capabilities, then polls the link until ctx is cancelled
// or a fatal error occurs. A cancelled context is a clean stop and returns
// nil. On return the queue is drained and the engine is closed; the caller
// still owns and closes the transport.
func (e *Engine) Run(ctx context.Context) error {
	defer e.Close()

	if err := e.transport.ResetInputBuffer(); err != nil {
		return fmt.Errorf("engine: reset input: %w", err)
	}

	if _, err := e.Negotiate(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := e.Step(); err != nil {
			return err
		}
	}
}

// Negotiate sends an interface configuration request and blocks until the
// response arrives, retrying on timeout or NACK. Frames that arrive in the
// meantime are dispatched normally. It must be called while the link is idle.
func (e *Engine) Negotiate(ctx context.Context) (*caddx.Capabilities, error) {
	req := caddx.NewIntConfigRequest()
	c := &command{req: req, internal: true}

	for c.attempts <= e.cfg.Retries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.send(c); err != nil {
			return nil, err
		}

		caps, done, err := e.awaitInterfaceConfig(ctx, c)
		e.pending = nil
		e.resolve()
		if done {
			return caps, err
		}

		e.logger.Warn("no interface configuration response",
			zap.Int("attempt", c.attempts),
			zap.Int("retries", e.cfg.Retries))
	}

	e.cfg.Recorder.CommandDropped(req.Type, ReasonTimeout)
	e.cfg.Recorder.Negotiated(false)
	return nil, ErrNoInterfaceConfig
}

// awaitInterfaceConfig reads frames until c is answered or its deadline
// passes. done is false when the request should be retried.
func (e *Engine) awaitInterfaceConfig(ctx context.Context, c *command) (caps *caddx.Capabilities, done bool, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, true, err
		}
		remaining := c.deadline.Sub(e.cfg.Now())
		if remaining <= 0 {
			return nil, false, nil
		}

		msg, raw, err := e.readFrame(remaining)
		if err != nil {
			var fe *caddx.FramingError
			if errors.As(err, &fe) && fe.Kind == caddx.BadStart && fe.Missing {
				continue
			}
			if err := e.handleReadError(err, raw); err != nil {
				return nil, true, err
			}
			continue
		}

		t := msg.Type()
		if !wellFormed(msg) {
			if err := e.dispatcher.Dispatch(msg); err != nil {
				return nil, true, err
			}
			continue
		}

		switch {
		case t == caddx.MsgIntConfigRsp:
			if err := e.dispatcher.Dispatch(msg); err != nil {
				return nil, true, err
			}
			e.cfg.Recorder.CommandCompleted(c.req.Type, e.cfg.Now().Sub(c.sentAt))
			return e.negotiator.Capabilities(), true, nil

		case t == caddx.MsgNACK:
			return nil, false, e.dispatcher.Dispatch(msg)

		case t == caddx.MsgRejected || t == caddx.MsgFailedRequest:
			if err := e.dispatcher.Dispatch(msg); err != nil {
				return nil, true, err
			}
			return nil, true, &CommandError{Type: c.req.Type, Attempts: c.attempts, Reason: negativeReason(t), Err: ErrNoInterfaceConfig}

		default:
			if err := e.dispatcher.Dispatch(msg); err != nil {
				return nil, true, err
			}
		}
	}
}

// Step runs one loop iteration: receive and dispatch at most one inbound
// frame, then advance the request queue by at most one step.
func (e *Engine) Step() error {
	if e.state.Is(StateClosed) {
		return ErrQueueClosed
	}
	if err := e.receive(); err != nil {
		return err
	}
	return e.service()
}

func (e *Engine) receive() error {
	available, err := e.transport.BytesAvailable()
	if err != nil {
		return fmt.Errorf("engine: poll input: %w", err)
	}
	if !available {
		return nil
	}

	msg, raw, err := e.readFrame(e.cfg.ByteTimeout)
	if err != nil {
		return e.handleReadError(err, raw)
	}
	return e.handleMessage(msg)
}

// handleMessage matches msg against the request in flight, then dispatches it.
func (e *Engine) handleMessage(msg *caddx.Message) error {
	p := e.pending
	if p == nil || !wellFormed(msg) {
		return e.dispatcher.Dispatch(msg)
	}

	t := msg.Type()
	switch {
	case caddx.IsValidResponse(p.req.Type, t):
		e.pending = nil
		e.resolve()
		err := e.dispatcher.Dispatch(msg)
		e.cfg.Recorder.CommandCompleted(p.req.Type, e.cfg.Now().Sub(p.sentAt))
		e.finish(p, msg, nil)
		return err

	case t == caddx.MsgNACK:
		e.pending = nil
		e.resolve()
		e.logger.Warn("request NACKed", typeField(p.req.Type), zap.Int("attempt", p.attempts))
		e.retry(p, ReasonNACK)
		return e.dispatcher.Dispatch(msg)

	case t == caddx.MsgRejected || t == caddx.MsgFailedRequest:
		e.pending = nil
		e.resolve()
		e.drop(p, negativeReason(t))
		return e.dispatcher.Dispatch(msg)
	}

	// unrelated traffic, the request stays in flight
	return e.dispatcher.Dispatch(msg)
}

// service times out the request in flight, or sends the next queued one.
func (e *Engine) service() error {
	if p := e.pending; p != nil {
		if e.cfg.Now().Before(p.deadline) {
			return nil
		}
		e.pending = nil
		e.resolve()
		e.logger.Warn("response timeout",
			typeField(p.req.Type),
			zap.Int("attempt", p.attempts),
			zap.Duration("timeout", e.cfg.ResponseTimeout))
		e.retry(p, ReasonTimeout)
		return nil
	}

	c := e.queue.pop()
	if c == nil {
		return nil
	}
	e.cfg.Recorder.QueueDepth(e.queue.len())
	return e.send(c)
}

// send transmits c and marks it in flight. A request that cannot be
// encoded is dropped without touching the link.
func (e *Engine) send(c *command) error {
	c.attempts++

	frame, err := c.req.Encode()
	if err != nil {
		e.logger.Error("refusing to send request", typeField(c.req.Type), hexField("data", c.req.Data), zap.Error(err))
		e.cfg.Recorder.CommandDropped(c.req.Type, ReasonEncode)
		e.finish(c, nil, &CommandError{Type: c.req.Type, Attempts: c.attempts - 1, Reason: ReasonEncode, Err: err})
		return nil
	}

	if err := e.state.Event(context.Background(), eventSend); err != nil {
		return fmt.Errorf("engine: send %s: %w", c.req.Type, err)
	}

	if err := e.write(frame); err != nil {
		e.resolve()
		e.finish(c, nil, err)
		return fmt.Errorf("engine: write %s: %w", c.req.Type, err)
	}

	now := e.cfg.Now()
	c.sentAt = now
	c.deadline = now.Add(e.cfg.ResponseTimeout)
	e.pending = c

	e.logger.Debug("sent", typeField(c.req.Type), zap.Int("attempt", c.attempts), hexField("hex", frame))
	e.cfg.Recorder.CommandSent(c.req.Type, c.attempts)
	return nil
}

// retry requeues c at the head of the queue, or drops it once its
// retransmissions are used up.
func (e *Engine) retry(c *command, reason string) {
	if c.attempts > e.cfg.Retries {
		e.drop(c, reason)
		return
	}
	if err := e.queue.pushFront(c); err != nil {
		e.finish(c, nil, err)
		return
	}
	e.cfg.Recorder.QueueDepth(e.queue.len())
}

func (e *Engine) drop(c *command, reason string) {
	e.logger.Error("dropping request",
		typeField(c.req.Type),
		zap.Int("attempts", c.attempts),
		zap.String("reason", reason))
	e.cfg.Recorder.CommandDropped(c.req.Type, reason)
	e.finish(c, nil, &CommandError{Type: c.req.Type, Attempts: c.attempts, Reason: reason})
}

func (e *Engine) finish(c *command, rsp *caddx.Message, err error) {
	if c.done != nil {
		c.done(rsp, err)
	}
	if e.cfg.CompletionHandler != nil && !c.internal {
		e.cfg.CompletionHandler(c.req, rsp, err)
	}
}

func (e *Engine) resolve() {
	if e.state.Is(StateAwaitingResponse) {
		_ = e.state.Event(context.Background(), eventResolve)
	}
}

// readFrame decodes one frame. The first byte may take up to first; each
// following byte up to the byte timeout. raw holds the wire bytes consumed.
func (e *Engine) readFrame(first time.Duration) (msg *caddx.Message, raw []byte, err error) {
	fr := &frameReader{transport: e.transport, first: first, next: e.cfg.ByteTimeout}
	msg, err = caddx.Decode(fr)
	if len(fr.raw) > 0 && e.cfg.FrameObserver != nil {
		e.cfg.FrameObserver(Inbound, fr.raw)
	}
	return msg, fr.raw, err
}

// handleReadError logs and counts a framing error and resynchronises the
// input when frame alignment may be lost. Other errors are returned.
func (e *Engine) handleReadError(err error, raw []byte) error {
	var fe *caddx.FramingError
	if !errors.As(err, &fe) {
		return fmt.Errorf("engine: read: %w", err)
	}

	e.cfg.Recorder.FramingError(fe.Kind)
	e.logger.Warn("discarding frame",
		zap.String("kind", fe.Kind.String()),
		zap.Error(err),
		hexField("hex", raw))

	if fe.NeedsResync() {
		if err := e.transport.ResetInputBuffer(); err != nil {
			return fmt.Errorf("engine: reset input: %w", err)
		}
	}

	if fe.Kind == caddx.ChecksumMismatch && e.cfg.NakOnChecksumError {
		if err := e.write(nakFrame); err != nil {
			return fmt.Errorf("engine: send NACK: %w", err)
		}
		e.cfg.Recorder.NakSent()
	}
	return nil
}

func (e *Engine) sendAck() error {
	return e.write(ackFrame)
}

func (e *Engine) write(frame []byte) error {
	if err := e.transport.Write(frame); err != nil {
		return err
	}
	if e.cfg.FrameObserver != nil {
		e.cfg.FrameObserver(Outbound, frame)
	}
	return nil
}

// Enqueue validates req and appends it to the request queue. After a
// successful negotiation, requests the panel has disabled are refused with
// ErrRequestDisabled.
func (e *Engine) Enqueue(req caddx.Request) error {
	return e.enqueue(req, nil)
}

// Do enqueues req and waits for its response. Cancelling ctx stops the wait
// but leaves the request queued.
func (e *Engine) Do(ctx context.Context, req caddx.Request) (*caddx.Message, error) {
	type result struct {
		msg *caddx.Message
		err error
	}
	ch := make(chan result, 1)

	err := e.enqueue(req, func(m *caddx.Message, err error) {
		ch <- result{m, err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) enqueue(req caddx.Request, done func(*caddx.Message, error)) error {
	if !caddx.IsRequest(req.Type) {
		return fmt.Errorf("%w: %s", ErrNotRequest, req.Type)
	}
	if err := caddx.ValidateLength(req.Type, req.Data); err != nil {
		return err
	}
	if caps := e.negotiator.Capabilities(); caps != nil && !caps.Accepts(req.Type) {
		return fmt.Errorf("%w: %s", ErrRequestDisabled, req.Type)
	}

	if err := e.queue.push(&command{req: req, done: done}); err != nil {
		return err
	}
	e.cfg.Recorder.QueueDepth(e.queue.len())
	return nil
}

// Close drains the queue, failing every queued and in-flight request with
// ErrQueueClosed, and closes the link state. It does not close the transport.
func (e *Engine) Close() {
	discarded := 0
	if p := e.pending; p != nil {
		e.pending = nil
		e.finish(p, nil, ErrQueueClosed)
		discarded++
	}
	for _, c := range e.queue.close() {
		e.finish(c, nil, ErrQueueClosed)
		discarded++
	}
	e.cfg.Recorder.QueueDepth(0)

	if e.state.Can(eventClose) {
		_ = e.state.Event(context.Background(), eventClose)
		e.logger.Info("session closed", zap.Int("discarded", discarded))
	}
}

// State returns the link state: idle, awaiting_response or closed
func (e *Engine) State() string {
	return e.state.Current()
}

// Ready reports whether capabilities have been negotiated successfully
func (e *Engine) Ready() bool {
	return e.negotiator.Capabilities() != nil
}

// Capabilities returns the negotiated panel capabilities, or nil
func (e *Engine) Capabilities() *caddx.Capabilities {
	return e.negotiator.Capabilities()
}

// Pending returns the number of queued requests, including one in flight
func (e *Engine) Pending() int {
	n := e.queue.len()
	if e.pending != nil {
		n++
	}
	return n
}

// wellFormed reports whether msg is a catalog type carrying at least its
// catalog length
func wellFormed(msg *caddx.Message) bool {
	expected, ok := caddx.ValidLength(msg.Type())
	return ok && msg.Len() >= expected
}

func negativeReason(t caddx.MessageType) string {
	if t == caddx.MsgRejected {
		return ReasonRejected
	}
	return ReasonFailed
}

// frameReader adapts Transport to io.ByteReader for caddx.Decode. A read
// timeout surfaces as io.EOF.
type frameReader struct {
	transport Transport
	first     time.Duration
	next      time.Duration
	raw       []byte
}

func (r *frameReader) ReadByte() (byte, error) {
	timeout := r.next
	if len(r.raw) == 0 {
		timeout = r.first
	}
	b, ok, err := r.transport.ReadByte(timeout)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, io.EOF
	}
	r.raw = append(r.raw, b)
	return b, nil
}
