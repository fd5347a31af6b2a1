// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package events publishes ticket transitions and ledger writes for
// consumers outside the bridge, such as the administrative dashboard.
//
// Publication is best-effort. The workflow has already committed the
// change an event describes before publishing it, so a failed publish
// is logged and dropped rather than retried or surfaced to the staff
// member who caused it.
//
// [AMQP] publishes JSON bodies to a durable topic exchange with
// publisher confirms, using the event kind as the routing key.
// [Memory] records events in process for tests and for deployments
// without a broker.
package events
