// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the CBOR configuration for state ticketbridge keeps
// for itself: customer session state in SQLite or Redis.
//
// JSON is for external interfaces (the Matrix and Telegram APIs, the
// event feed, crash reports). CBOR is for internal state. Types that
// are only ever CBOR use `cbor` struct tags; types that are also JSON
// use `json` tags, which fxamacker/cbor reads as a fallback. Never put
// both on one field.
package codec
