// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command cogcore runs the cognitive graph core directly: an HTTP server
// for the desktop shell, a terminal chat loop for development, and a
// topology dump for debugging the contract state machine.
package main

import (
	"os"

	"github.com/awnumar/memguard"
)

func main() {
	// Wipe guarded credential memory on SIGINT/SIGTERM.
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
