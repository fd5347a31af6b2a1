// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"errors"
	"fmt"
	"time"
)

// Ticket is one customer support request.
type Ticket struct {
	ID         int64
	CategoryID string

	// UserID is the customer's platform identity.
	UserID string

	Status Status

	// Amount is the agreed price in whole currency units. Positive
	// only once a worker has claimed the ticket.
	Amount int64

	// ClaimedBy is the staff worker handling the ticket, empty while
	// unclaimed.
	ClaimedBy string

	// ChannelRef is the staff platform channel mirroring this ticket.
	ChannelRef string

	// SessionRef is the customer platform conversation this ticket
	// belongs to.
	SessionRef string

	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("ticket: invalid transition")

// TransitionError reports a rejected status change.
type TransitionError struct {
	TicketID int64
	From     Status
	To       Status
	Reason   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ticket %d: cannot move %s -> %s: %s", e.TicketID, e.From, e.To, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// GuardResult is the outcome of a guard evaluation.
type GuardResult struct {
	Allowed bool
	Reason  string
}

// Error returns nil when the guard allowed the operation.
func (r GuardResult) Error() error {
	if r.Allowed {
		return nil
	}
	return errors.New(r.Reason)
}

func allow() GuardResult { return GuardResult{Allowed: true} }

func deny(format string, args ...any) GuardResult {
	return GuardResult{Reason: fmt.Sprintf(format, args...)}
}

// successors lists the statuses reachable in one step.
var successors = map[Status][]Status{
	StatusOpen:    {StatusClaimed, StatusClosed, StatusDeleted},
	StatusClaimed: {StatusPaid, StatusOpen, StatusClosed, StatusDeleted},
	StatusPaid:    {StatusCompleted, StatusClosed, StatusTranscript, StatusDeleted},
}

// Successors returns the statuses reachable from s in one step.
func Successors(s Status) []Status {
	return append([]Status(nil), successors[s]...)
}

// TransitionContext is the input to CanTransition.
type TransitionContext struct {
	Ticket Ticket
	Target Status

	// Worker is the staff member performing the change. Required for
	// claimed and paid.
	Worker string
}

// CanTransition evaluates whether ctx.Ticket may move to ctx.Target.
// Rules:
//   - terminal tickets never move
//   - the target must be a listed successor of the current status
//   - claimed and paid need an acting worker
//   - paid needs a positive amount
//   - unclaiming is refused once an amount is set
func CanTransition(ctx TransitionContext) GuardResult {
	from, to := ctx.Ticket.Status, ctx.Target
	if !to.Valid() {
		return deny("unknown status %q", to)
	}
	if from.IsTerminal() {
		return deny("ticket is %s", from)
	}
	reachable := false
	for _, next := range successors[from] {
		if next == to {
			reachable = true
			break
		}
	}
	if !reachable {
		return deny("%s is not reachable from %s", to, from)
	}

	switch to {
	case StatusClaimed:
		if ctx.Worker == "" {
			return deny("claiming requires a worker")
		}
	case StatusPaid:
		if ctx.Worker == "" {
			return deny("marking paid requires a worker")
		}
		if ctx.Ticket.Amount <= 0 {
			return deny("marking paid requires a positive amount (have %d)", ctx.Ticket.Amount)
		}
	case StatusOpen:
		if ctx.Ticket.Amount > 0 {
			return deny("cannot unclaim a ticket with amount %d set", ctx.Ticket.Amount)
		}
	}
	return allow()
}

// CanSetAmount evaluates whether t's amount may become amount.
// Rules:
//   - amount is never negative
//   - terminal tickets are frozen
//   - a positive amount needs a claiming worker
func CanSetAmount(t Ticket, amount int64) GuardResult {
	if amount < 0 {
		return deny("amount must not be negative (got %d)", amount)
	}
	if t.Status.IsTerminal() {
		return deny("ticket is %s", t.Status)
	}
	if amount > 0 && t.ClaimedBy == "" {
		return deny("ticket must be claimed before an amount is set")
	}
	return allow()
}

// Effects are the side effects a transition obliges the caller to
// perform, in this order: payment, persistence, then the rest.
type Effects struct {
	// RecordPayment is set when the ticket enters a terminal status
	// with a positive amount and a claiming worker. The ledger write
	// must succeed before the new status is persisted.
	RecordPayment bool

	// NotifyCustomer, ClearSession run best-effort after persistence.
	NotifyCustomer bool
	ClearSession   bool

	// ArchiveTranscript is set for the transcript status.
	ArchiveTranscript bool
}

// TransitionPlan is the evaluated result of a status change.
type TransitionPlan struct {
	Previous Status
	Ticket   Ticket
	Effects  Effects
}

// Plan validates moving t to target on behalf of worker at now. On
// success the returned plan carries the updated ticket value. A
// rejected transition returns a *TransitionError.
func Plan(t Ticket, target Status, worker string, now time.Time) (TransitionPlan, error) {
	guard := CanTransition(TransitionContext{Ticket: t, Target: target, Worker: worker})
	if !guard.Allowed {
		return TransitionPlan{}, &TransitionError{
			TicketID: t.ID,
			From:     t.Status,
			To:       target,
			Reason:   guard.Reason,
		}
	}

	next := t
	next.Status = target
	next.UpdatedAt = now
	switch target {
	case StatusClaimed:
		next.ClaimedBy = worker
	case StatusOpen:
		next.ClaimedBy = ""
	}

	var effects Effects
	if target.IsTerminal() {
		completedAt := now
		next.CompletedAt = &completedAt
		effects.RecordPayment = next.Amount > 0 && next.ClaimedBy != ""
		effects.NotifyCustomer = true
		effects.ClearSession = true
		effects.ArchiveTranscript = target == StatusTranscript
	}

	return TransitionPlan{Previous: t.Status, Ticket: next, Effects: effects}, nil
}
