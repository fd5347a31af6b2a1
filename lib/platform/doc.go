// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package platform defines the two chat platforms ticketbridge sits
// between and the error taxonomy their adapters report in.
//
// The staff side is a [ChannelPlatform]: one channel per ticket, sends
// through pooled [SendHandle]s. The customer side is a
// [CustomerPlatform]: a direct conversation per customer plus a small
// piece of session state. Adapters live elsewhere (messaging for
// Matrix, lib/telegram for Telegram); this package only holds the
// contracts so the bridge and workflow can be tested against fakes.
//
// Adapters wrap every failure in an [*Error] with a [Kind]. The bridge
// retries [KindTransient] and surfaces everything else.
package platform
