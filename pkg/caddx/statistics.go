// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames      uint64
	ValidFrames      uint64
	ChecksumErrors   uint64
	FramingErrors    uint64
	BadStarts        uint64
	Truncations      uint64
	BadEscapes       uint64
	LengthMismatches uint64
	UnknownTypes     uint64
	Undersized       uint64
	AckRequests      uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decode attempt: a message, or the error that
// prevented one.
func (s *Statistics) Update(m *Message, decodeErr error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	if decodeErr != nil {
		var fe *FramingError
		if !errors.As(decodeErr, &fe) {
			s.FramingErrors++
			return
		}
		if fe.Kind == ChecksumMismatch {
			s.ChecksumErrors++
			return
		}
		s.FramingErrors++
		switch fe.Kind {
		case BadStart:
			s.BadStarts++
		case Truncated:
			s.Truncations++
		case BadEscape:
			s.BadEscapes++
		case LengthMismatch:
			s.LengthMismatches++
		}
		return
	}

	if m.AckRequested() {
		s.AckRequests++
	}

	expected, ok := ValidLength(m.Type())
	switch {
	case !ok:
		s.UnknownTypes++
	case m.Len() < expected:
		s.Undersized++
	default:
		s.ValidFrames++
	}
}

// Errors returns the total of all error counters
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.FramingErrors + s.UnknownTypes + s.Undersized
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, percent(s.ValidFrames))

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d (%.1f%%)\n", s.FramingErrors, percent(s.FramingErrors))
		if s.BadStarts > 0 {
			result += fmt.Sprintf("  Bad Start:        %5d\n", s.BadStarts)
		}
		if s.Truncations > 0 {
			result += fmt.Sprintf("  Truncated:        %5d\n", s.Truncations)
		}
		if s.BadEscapes > 0 {
			result += fmt.Sprintf("  Bad Escape:       %5d\n", s.BadEscapes)
		}
		if s.LengthMismatches > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", s.LengthMismatches)
		}
	}
	if s.UnknownTypes > 0 {
		result += fmt.Sprintf("Unknown Types:   %8d (%.1f%%)\n", s.UnknownTypes, percent(s.UnknownTypes))
	}
	if s.Undersized > 0 {
		result += fmt.Sprintf("Undersized:      %8d (%.1f%%)\n", s.Undersized, percent(s.Undersized))
	}
	if s.AckRequests > 0 {
		result += fmt.Sprintf("ACK Requests:    %8d\n", s.AckRequests)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
