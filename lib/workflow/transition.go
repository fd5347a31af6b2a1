// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/ticketbridge/bridge"
	"github.com/bureau-foundation/ticketbridge/lib/events"
	"github.com/bureau-foundation/ticketbridge/lib/ledger"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// Transition moves a ticket to target on behalf of worker. Rejected
// transitions return an error matching ticket.ErrInvalidTransition and
// leave every system untouched.
func (s *Service) Transition(ctx context.Context, ticketID int64, target ticket.Status, worker string) (ticket.Ticket, error) {
	unlock := s.tickets.Lock(ticketID)
	defer unlock()
	return s.transition(ctx, ticketID, target, worker)
}

// Claim assigns an open ticket to worker.
func (s *Service) Claim(ctx context.Context, ticketID int64, worker string) (ticket.Ticket, error) {
	return s.Transition(ctx, ticketID, ticket.StatusClaimed, worker)
}

// Unclaim returns a claimed ticket without an amount to the queue.
func (s *Service) Unclaim(ctx context.Context, ticketID int64, worker string) (ticket.Ticket, error) {
	return s.Transition(ctx, ticketID, ticket.StatusOpen, worker)
}

func (s *Service) transition(ctx context.Context, ticketID int64, target ticket.Status, worker string) (ticket.Ticket, error) {
	current, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: transition ticket %d: %w", ticketID, err)
	}
	plan, err := ticket.Plan(current, target, worker, s.clock.Now().UTC())
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: %w", err)
	}
	next := plan.Ticket

	if plan.Effects.RecordPayment {
		result, err := s.ledger.RecordPayment(ctx, ledger.PaymentRequest{
			TicketID:    next.ID,
			WorkerID:    next.ClaimedBy,
			Amount:      next.Amount,
			CategoryID:  next.CategoryID,
			Reason:      "ticket " + string(target),
			ConfirmedBy: worker,
		})
		if err != nil {
			return ticket.Ticket{}, fmt.Errorf("workflow: ticket %d stays %s: %w", ticketID, current.Status, err)
		}
		s.publish(ctx, events.Event{
			Kind:       events.KindPaymentRecorded,
			TicketID:   next.ID,
			CategoryID: next.CategoryID,
			WorkerID:   next.ClaimedBy,
			Amount:     next.Amount,
			Outcome:    result.Outcome.String(),
		})
	}

	if err := s.store.UpdateTicket(ctx, next, plan.Previous); err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: transition ticket %d to %s: %w", ticketID, target, err)
	}
	s.logger.Info("ticket transitioned",
		"ticket_id", next.ID,
		"from", string(plan.Previous),
		"to", string(target),
		"worker", worker,
		"amount", next.Amount,
	)
	s.publish(ctx, events.Event{
		Kind:       events.KindTicketTransition,
		TicketID:   next.ID,
		CategoryID: next.CategoryID,
		WorkerID:   worker,
		From:       plan.Previous,
		To:         target,
		Amount:     next.Amount,
	})

	s.applyEffects(ctx, plan)
	return next, nil
}

// applyEffects runs the best-effort tail of a committed transition.
func (s *Service) applyEffects(ctx context.Context, plan ticket.TransitionPlan) {
	t := plan.Ticket
	if plan.Effects.NotifyCustomer {
		// NotifyStatus logs its own failures.
		_ = s.bridge.NotifyStatus(ctx, t, t.Status)
	} else if t.ChannelRef != "" {
		notice := bridge.StructuredNotice{Notice: bridge.StaffNotice(t, t.Status)}
		if _, err := s.bridge.Send(ctx, t.ChannelRef, notice); err != nil {
			s.logger.Warn("posting status notice failed", "ticket_id", t.ID, "error", err)
		}
	}

	if plan.Effects.ClearSession {
		s.clearSession(ctx, t)
	}

	if plan.Effects.ArchiveTranscript {
		if _, err := s.archiver.Archive(ctx, t); err != nil {
			s.logger.Error("archiving transcript failed", "ticket_id", t.ID, "error", err)
		} else {
			s.publish(ctx, events.Event{
				Kind:       events.KindTranscriptArchived,
				TicketID:   t.ID,
				CategoryID: t.CategoryID,
			})
		}
	}

	if t.Status.IsTerminal() && t.ChannelRef != "" {
		readOnly := true
		if err := s.bridge.EditChannel(ctx, t.ChannelRef, platform.ChannelOptions{ReadOnly: &readOnly}); err != nil {
			s.logger.Warn("locking ticket channel failed", "ticket_id", t.ID, "channel_ref", t.ChannelRef, "error", err)
		}
	}
}

// clearSession detaches t from its customer session if the session
// still points at it.
func (s *Service) clearSession(ctx context.Context, t ticket.Ticket) {
	if t.SessionRef == "" {
		return
	}
	state, err := s.sessions.GetSessionState(ctx, t.SessionRef)
	if err != nil {
		s.logger.Warn("reading session for cleanup failed", "ticket_id", t.ID, "session_ref", t.SessionRef, "error", err)
		return
	}
	if state.ActiveTicketID != t.ID {
		return
	}
	if err := s.sessions.SetSessionState(ctx, t.SessionRef, platform.SessionState{}); err != nil {
		s.logger.Warn("clearing session failed", "ticket_id", t.ID, "session_ref", t.SessionRef, "error", err)
	}
}

// SetAmount sets the agreed price of a ticket. Only the claiming
// worker may set it.
func (s *Service) SetAmount(ctx context.Context, ticketID, amount int64, worker string) (ticket.Ticket, error) {
	unlock := s.tickets.Lock(ticketID)
	defer unlock()

	current, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: set amount of ticket %d: %w", ticketID, err)
	}
	if guard := ticket.CanSetAmount(current, amount); !guard.Allowed {
		return ticket.Ticket{}, fmt.Errorf("workflow: set amount of ticket %d: %w: %s", ticketID, ErrAmountRejected, guard.Reason)
	}
	if current.ClaimedBy != "" && current.ClaimedBy != worker {
		return ticket.Ticket{}, fmt.Errorf("workflow: set amount of ticket %d: %w", ticketID, ErrNotClaimer)
	}
	if current.Amount == amount {
		return current, nil
	}

	next := current
	next.Amount = amount
	next.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.UpdateTicket(ctx, next, current.Status); err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: set amount of ticket %d: %w", ticketID, err)
	}
	s.logger.Info("ticket amount set", "ticket_id", ticketID, "amount", amount, "previous", current.Amount, "worker", worker)
	s.publish(ctx, events.Event{
		Kind:       events.KindTicketAmount,
		TicketID:   ticketID,
		CategoryID: next.CategoryID,
		WorkerID:   worker,
		Amount:     amount,
	})
	if next.ChannelRef != "" {
		text := fmt.Sprintf("Amount for ticket #%d set to %d.", ticketID, amount)
		if _, err := s.bridge.Send(ctx, next.ChannelRef, bridge.TextOnly{Text: text}); err != nil {
			s.logger.Warn("posting amount notice failed", "ticket_id", ticketID, "error", err)
		}
	}
	return next, nil
}

// Delete removes a ticket. A ticket still in progress first moves to
// the deleted status, which records any payment owed; then the row and
// its messages are removed. Ledger entries are kept.
func (s *Service) Delete(ctx context.Context, ticketID int64, worker string) error {
	unlock := s.tickets.Lock(ticketID)
	defer unlock()

	current, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("workflow: delete ticket %d: %w", ticketID, err)
	}
	if !current.Status.IsTerminal() {
		if _, err := s.transition(ctx, ticketID, ticket.StatusDeleted, worker); err != nil {
			return err
		}
	}
	if err := s.store.DeleteTicket(ctx, ticketID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("workflow: %w", err)
	}
	s.logger.Info("ticket deleted", "ticket_id", ticketID, "worker", worker)
	s.publish(ctx, events.Event{Kind: events.KindTicketDeleted, TicketID: ticketID, CategoryID: current.CategoryID, WorkerID: worker})
	return nil
}
