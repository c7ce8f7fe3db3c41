// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records link traffic to disk and plays it back.
//
// A capture file is a CBOR sequence of records, one per wire frame:
// [unix_nanos, direction, wire_bytes]
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
	"github.com/Thermoquad/caddx/pkg/engine"
	"github.com/fxamacker/cbor/v2"
)

// Record is one captured frame.
type Record struct {
	_         struct{} `cbor:",toarray"`
	UnixNano  int64
	Direction engine.Direction
	Wire      []byte
}

// Time returns the capture timestamp.
func (r Record) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// Writer appends records to a capture stream.
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	now func() time.Time
	err error
}

// NewWriter creates a Writer. A nil clock means time.Now.
func NewWriter(w io.Writer, now func() time.Time) *Writer {
	if now == nil {
		now = time.Now
	}
	return &Writer{enc: cbor.NewEncoder(w), now: now}
}

// Write records one frame.
func (w *Writer) Write(dir engine.Direction, wire []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rec := Record{
		UnixNano:  w.now().UnixNano(),
		Direction: dir,
		Wire:      append([]byte(nil), wire...),
	}
	if err := w.enc.Encode(rec); err != nil {
		w.err = fmt.Errorf("capture write: %w", err)
		return w.err
	}
	return nil
}

// Observe matches engine.FrameObserver. Write errors are kept and reported
// by Err.
func (w *Writer) Observe(dir engine.Direction, wire []byte) {
	_ = w.Write(dir, wire)
}

// Err returns the last write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Reader reads records from a capture stream.
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture read: %w", err)
	}
	return rec, nil
}

// ReplayFunc receives each record with its decoded message or framing error.
type ReplayFunc func(rec Record, m *caddx.Message, err error) error

// Replay decodes every record in r and passes it to fn. Decoding errors go
// to fn; an error returned by fn stops the replay.
func Replay(r io.Reader, fn ReplayFunc) error {
	rd := NewReader(r)
	for {
		rec, err := rd.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		m, derr := caddx.Decode(bytes.NewReader(rec.Wire))
		if m != nil {
			m = caddx.NewMessageAt(m.Bytes(), rec.Time())
		}
		if err := fn(rec, m, derr); err != nil {
			return err
		}
	}
}
