// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomMessage picks a catalog type and fills its data, biased towards
// the framing bytes so escaping is exercised
func randomMessage(rng *rand.Rand) (MessageType, []byte) {
	types := MessageTypes()
	mt := types[rng.Intn(len(types))]
	n, _ := ValidLength(mt)

	data := make([]byte, n-1)
	for i := range data {
		switch rng.Intn(4) {
		case 0:
			data[i] = StartByte
		case 1:
			data[i] = EscByte
		default:
			data[i] = byte(rng.Intn(256))
		}
	}
	return mt, data
}

func TestFuzz_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		mt, data := randomMessage(rng)

		frame, err := Encode(mt, data)
		if err != nil {
			t.Fatalf("round %d: encode %s failed: %v", i, mt, err)
		}

		m, err := Decode(bytes.NewReader(frame))
		if err != nil {
			t.Fatalf("round %d: decode % X failed: %v", i, frame, err)
		}
		if m.Type() != mt || !bytes.Equal(m.Bytes()[1:], data) {
			t.Fatalf("round %d: round trip mismatch: % X", i, frame)
		}
	}
}

func TestFuzz_StreamDecoderMatchesBlockDecoder(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	var stream []byte
	var expected [][]byte
	for i := 0; i < rounds; i++ {
		// inter-frame noise never contains a start byte
		for n := rng.Intn(3); n > 0; n-- {
			stream = append(stream, byte(rng.Intn(0x7E)))
		}
		mt, data := randomMessage(rng)
		stream = append(stream, MustEncode(Request{Type: mt, Data: data})...)
		expected = append(expected, append([]byte{byte(mt)}, data...))
	}

	d := NewDecoder()
	var got [][]byte
	for _, b := range stream {
		m, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if m != nil {
			got = append(got, m.Bytes())
		}
	}

	if len(got) != len(expected) {
		t.Fatalf("expected %d messages, got %d", len(expected), len(got))
	}
	for i := range got {
		if !bytes.Equal(got[i], expected[i]) {
			t.Fatalf("message %d: expected % X, got % X", i, expected[i], got[i])
		}
	}
}

func TestFuzz_RandomBytesNeverPanic(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		buf := make([]byte, rng.Intn(40))
		rng.Read(buf)
		if len(buf) > 0 && rng.Intn(2) == 0 {
			buf[0] = StartByte
		}

		_, _ = Decode(bytes.NewReader(buf))

		d := NewDecoder()
		for _, b := range buf {
			_, _ = d.DecodeByte(b)
		}
	}
}
