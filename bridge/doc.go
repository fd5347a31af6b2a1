// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge relays conversation turns and status notices between
// the staff platform and the customer platform.
//
// Every outbound call goes through the rate limiter first: the
// call's own category bucket (keyed by channel or session where that
// matters) and then the global bucket. Staff-side sends then borrow a
// pooled send handle for the ticket's channel.
//
// Message content is a [Payload], a closed set of shapes. [Normalize]
// turns a Payload into the platform-neutral message the adapters send,
// substituting [Placeholder] wherever the shape would otherwise carry
// nothing, since neither platform accepts an empty message.
//
// Failures classified as transient by [platform.Classify] are retried
// with exponential backoff up to RetryPolicy.MaxAttempts. Permission,
// not-found, and rate-limit timeouts are returned at once. Concurrent
// sends to one channel are not ordered relative to each other.
//
// Start runs a background maintenance loop that sweeps idle pool
// handles and prunes idle rate-limit buckets. Stop ends it.
package bridge
