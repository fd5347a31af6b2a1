// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package connpool keeps a small set of reusable send handles per staff
// channel.
//
// Acquire hands out the least recently used healthy idle handle for a
// channel, dials a new one while the channel is below its limit, and
// otherwise waits for a Release. Release records the outcome of the
// call: success resets the handle's failure count, a retryable failure
// increments it, and a handle that reaches the failure threshold is
// closed on the spot. Errors about the request itself leave the count
// alone. Sweep closes idle handles past their idle timeout.
package connpool
