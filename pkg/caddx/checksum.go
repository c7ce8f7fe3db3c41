// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package caddx

// Fletcher16 computes the frame checksum over the unescaped length byte and
// message bytes. The low byte is sum1 and the high byte is sum2; frames
// carry it little-endian, so sum1 goes on the wire first.
func Fletcher16(data []byte) uint16 {
	var sum1, sum2 uint16
	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}
	return sum2<<8 | sum1
}
