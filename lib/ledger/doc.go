// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger records what staff workers earn from tickets.
//
// Every payment is a row in ledger_entries. A worker's running totals
// live in worker_summaries, which is a materialized view of that
// worker's confirmed ticket_payment entries: each ledger mutation
// adjusts it by a delta inside the same SQLite transaction, and
// [Ledger.Reconcile] can always rebuild it from the entries.
//
// [Ledger.RecordPayment] is idempotent per (ticket, worker). Recording
// the same amount again changes nothing; recording a different amount
// rewrites the entry and moves the summary by the difference. Writes
// for one worker are serialized in-process, and a partial unique index
// makes a second confirmed payment for the same pair impossible even
// across processes.
//
// Manual adjustments are kept as separate pending or confirmed entries
// and never feed the summary.
//
// Period queries use half-open ranges on confirmed_at. "week" and
// "month" are the trailing 7 and 30 days, "all" has no lower bound, and
// a custom date range includes the whole of its end day.
package ledger
