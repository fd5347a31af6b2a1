// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow runs the ticket lifecycle across the store, the
// earnings ledger, and the message bridge.
//
// Every status change goes through [Service.Transition], which applies
// the state machine's plan in a fixed order:
//
//  1. The ledger records the worker's payment when the plan asks for
//     one. A failure here leaves the ticket untouched.
//  2. The ticket row is written with a compare-and-set on the status
//     the plan started from.
//  3. Notifications, session cleanup, transcript archiving, and
//     locking the staff channel run best-effort. Their failures are
//     logged and never undo the transition.
//
// Mutations of one ticket are serialized in process; mutations across
// processes are resolved by the compare-and-set, and the ledger write
// is idempotent so a losing writer leaves no duplicate payment.
//
// The service also owns the two conversational surfaces: customer
// intake and relay ([Service.HandleCustomer]) and staff commands and
// replies in ticket channels ([Service.HandleStaff]).
package workflow
