// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package engine

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the engine configuration.
type Config struct {
	// PollInterval is the pause between loop iterations
	PollInterval time.Duration

	// ResponseTimeout bounds the wait for the response to a request
	ResponseTimeout time.Duration

	// ByteTimeout bounds the wait for each byte once a frame has started
	ByteTimeout time.Duration

	// Retries is the number of retransmissions after the first attempt
	Retries int

	// NakOnChecksumError answers a frame with a bad checksum with a NACK
	NakOnChecksumError bool

	// Now returns the current time; replaced in tests
	Now func() time.Time

	Logger            *zap.Logger
	Recorder          Recorder
	MessageHandler    MessageHandler
	CompletionHandler CompletionHandler
	FrameObserver     FrameObserver
	CapabilityHandler CapabilityHandler
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		PollInterval:    50 * time.Millisecond,
		ResponseTimeout: 2 * time.Second,
		ByteTimeout:     250 * time.Millisecond,
		Retries:         3,
		Now:             time.Now,
		Logger:          zap.NewNop(),
		Recorder:        nopRecorder{},
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*Config)

// WithPollInterval sets the pause between loop iterations.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollInterval = d
		}
	}
}

// WithResponseTimeout sets how long a request waits for its response.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ResponseTimeout = d
		}
	}
}

// WithByteTimeout sets the inter-byte timeout within a frame.
func WithByteTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ByteTimeout = d
		}
	}
}

// WithRetries sets the number of retransmissions of a request that timed
// out or was NACKed.
//
// Example:
//
//	eng := engine.New(port, prefs, engine.WithRetries(5))
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithNakOnChecksumError makes the engine answer corrupted frames with NACK
// so the panel retransmits.
func WithNakOnChecksumError(enabled bool) Option {
	return func(c *Config) {
		c.NakOnChecksumError = enabled
	}
}

// WithClock replaces the time source used for deadlines.
func WithClock(now func() time.Time) Option {
	return func(c *Config) {
		if now != nil {
			c.Now = now
		}
	}
}

// WithLogger sets the logger. The engine never configures the sink.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithRecorder sets the instrumentation recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Config) {
		if r != nil {
			c.Recorder = r
		}
	}
}

// WithMessageHandler sets a callback for every valid inbound message.
//
// Example:
//
//	eng := engine.New(port, prefs,
//	    engine.WithMessageHandler(func(m *caddx.Message) {
//	        fmt.Print(caddx.FormatMessage(m))
//	    }),
//	)
func WithMessageHandler(h MessageHandler) Option {
	return func(c *Config) {
		c.MessageHandler = h
	}
}

// WithCompletionHandler sets a callback invoked once per queued command.
func WithCompletionHandler(h CompletionHandler) Option {
	return func(c *Config) {
		c.CompletionHandler = h
	}
}

// WithFrameObserver sets a callback that sees raw wire frames in both directions.
func WithFrameObserver(o FrameObserver) Option {
	return func(c *Config) {
		c.FrameObserver = o
	}
}

// WithCapabilityHandler sets a callback for successful negotiations.
func WithCapabilityHandler(h CapabilityHandler) Option {
	return func(c *Config) {
		c.CapabilityHandler = h
	}
}
