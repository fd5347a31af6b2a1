// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the two places ticketbridge writes to stderr
// and exits without going through the structured logger: a fatal
// error from main before the logger exists, and the supervisor's
// deliberate exit after a crash.
package process
