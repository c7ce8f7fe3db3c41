// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// caddx - Caddx NX-584 serial link tool

package main

import (
	"os"

	"github.com/Thermoquad/caddx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
