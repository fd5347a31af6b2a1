// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ticket is the support ticket state machine.
//
// Statuses move forward only:
//
//	open ──► claimed ──► paid ──► completed | closed | transcript | deleted
//	  │         │
//	  │         └──► open (unclaim), closed, deleted
//	  └──► closed, deleted
//
// Terminal statuses (completed, closed, transcript, deleted) are final.
//
// Everything here is pure. [Plan] evaluates a requested transition and
// returns the new ticket value together with the effects the caller must
// carry out (ledger write, customer notice, session reset, transcript
// archive). The workflow package executes those effects in order; this
// package never performs I/O.
package ticket
