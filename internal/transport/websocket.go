// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned after the WebSocket connection has failed
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocket is a panel connection through a serial-over-WebSocket bridge.
// Each binary message carries raw serial bytes.
type WebSocket struct {
	conn *websocket.Conn

	chunks chan []byte
	done   chan struct{}
	quit   chan struct{}

	mu  sync.Mutex
	buf []byte
	err error

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWebSocket connects to a ws:// or wss:// bridge with HTTP Basic auth.
func DialWebSocket(wsURL, username, password string, skipSSLVerify bool) (*WebSocket, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocket(conn), nil
}

func newWebSocket(conn *websocket.Conn) *WebSocket {
	w := &WebSocket{
		conn:   conn,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
		quit:   make(chan struct{}),
	}
	go w.readLoop()
	return w
}

// readLoop moves binary messages into chunks until the connection fails
func (w *WebSocket) readLoop() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			w.mu.Unlock()
			return
		}
		if messageType != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		select {
		case w.chunks <- data:
		case <-w.quit:
			return
		}
	}
}

// ReadByte implements engine.Transport.
func (w *WebSocket) ReadByte(timeout time.Duration) (byte, bool, error) {
	w.mu.Lock()
	if len(w.buf) > 0 {
		b := w.buf[0]
		w.buf = w.buf[1:]
		w.mu.Unlock()
		return b, true, nil
	}
	w.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk := <-w.chunks:
		return w.take(chunk), true, nil
	case <-w.done:
		// Drain anything queued before the failure
		select {
		case chunk := <-w.chunks:
			return w.take(chunk), true, nil
		default:
		}
		return 0, false, w.closedErr()
	case <-timer.C:
		return 0, false, nil
	}
}

func (w *WebSocket) take(chunk []byte) byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, chunk[1:]...)
	return chunk[0]
}

func (w *WebSocket) closedErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	return ErrConnectionClosed
}

// BytesAvailable implements engine.Transport.
func (w *WebSocket) BytesAvailable() (bool, error) {
	w.mu.Lock()
	n := len(w.buf)
	w.mu.Unlock()
	if n > 0 || len(w.chunks) > 0 {
		return true, nil
	}
	select {
	case <-w.done:
		return false, w.closedErr()
	default:
		return false, nil
	}
}

// Write implements engine.Transport.
func (w *WebSocket) Write(p []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// ResetInputBuffer implements engine.Transport.
func (w *WebSocket) ResetInputBuffer() error {
	w.mu.Lock()
	w.buf = nil
	w.mu.Unlock()
	for {
		select {
		case <-w.chunks:
		default:
			return nil
		}
	}
}

func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.quit)
		w.writeMu.Lock()
		_ = w.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}
