// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"os"
)

// ExitFunc terminates the process with a status code. Components that
// exit take one so tests can observe the exit instead of dying.
type ExitFunc func(code int)

// Exit is the production ExitFunc.
func Exit(code int) { os.Exit(code) }

// Fatal writes "ticketbridge: err" to stderr and exits with code 1. Use
// it in main for errors from run, where the logger may not be set up.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "ticketbridge: %v\n", err)
	os.Exit(1)
}
