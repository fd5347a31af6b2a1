// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store is ticketbridge's SQLite persistence layer.
//
// One database holds tickets, their relayed messages, customers,
// categories, customer session state, archived transcripts, and the
// earnings ledger tables. The ledger package owns the ledger tables'
// queries; this package owns the schema for all of them and hands the
// shared pool to the ledger through [Store.Pool].
//
// Ticket rows are updated with a compare-and-set on status, so two
// concurrent transitions of the same ticket cannot both win. Ledger
// rows carry ticket_id without a foreign key and survive ticket
// deletion.
//
// Timestamps are stored as Unix milliseconds.
package store
