// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit provides admission control for outbound platform
// calls.
//
// Every call the bridge makes to the staff or customer platform first
// acquires a token. Buckets exist per [Category] and optionally per
// resource (a channel or customer session), and every non-global
// acquisition also draws from the [Global] bucket, so a burst on one
// channel cannot starve the process-wide budget.
//
// Tokens refill continuously. A caller that finds the bucket empty, or
// finds anyone already queued, joins the bucket's FIFO. One clock timer
// per bucket wakes when the head of the queue can be served and drains
// as many waiters as the refilled tokens allow. Waiting is bounded by
// Config.Timeout (30s by default); a waiter that gives up, whether by
// timeout or context cancellation, never holds a token.
package ratelimit
