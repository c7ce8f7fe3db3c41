// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"sync"
	"time"

	"github.com/Thermoquad/caddx/pkg/caddx"
)

// command is a queued request and its delivery bookkeeping
type command struct {
	req      caddx.Request
	attempts int
	sentAt   time.Time
	deadline time.Time
	done     func(*caddx.Message, error)

	// internal commands are not reported to the completion handler
	internal bool
}

// queue is the FIFO of pending commands. It is the only engine state other
// goroutines touch.
type queue struct {
	mu     sync.Mutex
	items  []*command
	closed bool
}

func (q *queue) push(c *command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, c)
	return nil
}

// pushFront requeues a command for retransmission ahead of everything else
func (q *queue) pushFront(c *command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append([]*command{c}, q.items...)
	return nil
}

func (q *queue) pop() *command {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return c
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close refuses further pushes and returns whatever was still queued
func (q *queue) close() []*command {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	drained := q.items
	q.items = nil
	return drained
}
