// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/ticketbridge/bridge"
	"github.com/bureau-foundation/ticketbridge/lib/catalog"
	"github.com/bureau-foundation/ticketbridge/lib/events"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// OpenRequest is a customer's completed intake.
type OpenRequest struct {
	SessionRef  string
	UserID      string
	DisplayName string
	CategoryID  string

	// Answers maps question IDs to the customer's answers.
	Answers map[string]string
}

// OpenTicket creates a ticket and its staff channel, posts the intake
// summary there, and attaches the customer session to the ticket. If
// the staff channel cannot be created the ticket is removed again and
// the error returned.
func (s *Service) OpenTicket(ctx context.Context, req OpenRequest) (ticket.Ticket, error) {
	unlock := s.conversation.Lock(req.SessionRef)
	defer unlock()
	return s.openTicket(ctx, req)
}

func (s *Service) openTicket(ctx context.Context, req OpenRequest) (ticket.Ticket, error) {
	category, ok := s.catalog.Lookup(req.CategoryID)
	if !ok {
		return ticket.Ticket{}, fmt.Errorf("workflow: open ticket in %q: %w", req.CategoryID, ErrUnknownCategory)
	}
	if req.SessionRef == "" || req.UserID == "" {
		return ticket.Ticket{}, errors.New("workflow: open ticket: session and user are required")
	}
	existing, err := s.store.ActiveTicketBySession(ctx, req.SessionRef)
	switch {
	case err == nil:
		return existing, fmt.Errorf("workflow: ticket %d: %w", existing.ID, ErrAlreadyOpen)
	case !errors.Is(err, store.ErrNotFound):
		return ticket.Ticket{}, fmt.Errorf("workflow: open ticket: %w", err)
	}

	if err := s.store.UpsertUser(ctx, store.User{ID: req.UserID, DisplayName: req.DisplayName}); err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: open ticket: %w", err)
	}
	created, err := s.store.CreateTicket(ctx, ticket.Ticket{
		CategoryID: category.ID,
		UserID:     req.UserID,
		SessionRef: req.SessionRef,
	})
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: open ticket: %w", err)
	}

	channelRef, err := s.bridge.CreateChannel(ctx, platform.ChannelSpec{
		Name:   fmt.Sprintf("ticket-%d-%s", created.ID, category.ID),
		Topic:  fmt.Sprintf("%s for %s", category.Name, customerName(req)),
		Parent: s.staffSpace,
		Invite: s.staffInvite,
	})
	if err != nil {
		if deleteErr := s.store.DeleteTicket(ctx, created.ID); deleteErr != nil {
			s.logger.Error("removing ticket without channel failed", "ticket_id", created.ID, "error", deleteErr)
		}
		return ticket.Ticket{}, fmt.Errorf("workflow: creating channel for ticket %d: %w", created.ID, err)
	}
	withChannel := created
	withChannel.ChannelRef = channelRef
	if err := s.store.UpdateTicket(ctx, withChannel, ticket.StatusOpen); err != nil {
		return ticket.Ticket{}, fmt.Errorf("workflow: open ticket %d: %w", created.ID, err)
	}

	s.logger.Info("ticket opened",
		"ticket_id", withChannel.ID,
		"category", category.ID,
		"user_id", req.UserID,
		"channel_ref", channelRef,
	)
	s.publish(ctx, events.Event{Kind: events.KindTicketOpened, TicketID: withChannel.ID, CategoryID: category.ID, To: ticket.StatusOpen})

	intake := bridge.StructuredNotice{Notice: intakeNotice(withChannel, category, req)}
	if _, err := s.bridge.Send(ctx, channelRef, intake); err != nil {
		s.logger.Warn("posting intake summary failed", "ticket_id", withChannel.ID, "error", err)
	}

	state := platform.SessionState{ActiveTicketID: withChannel.ID, Step: stepRelay, CategoryID: category.ID}
	if err := s.sessions.SetSessionState(ctx, req.SessionRef, state); err != nil {
		s.logger.Warn("attaching session to ticket failed", "ticket_id", withChannel.ID, "session_ref", req.SessionRef, "error", err)
	}

	confirmation := fmt.Sprintf("Thanks! Ticket #%d is open. A specialist will reply here shortly.", withChannel.ID)
	if _, err := s.bridge.SendCustomer(ctx, req.SessionRef, bridge.TextOnly{Text: confirmation}); err != nil {
		s.logger.Warn("confirming ticket to customer failed", "ticket_id", withChannel.ID, "error", err)
	}
	return withChannel, nil
}

func customerName(req OpenRequest) string {
	if req.DisplayName != "" {
		return req.DisplayName
	}
	return req.UserID
}

// intakeNotice summarizes a new ticket for staff, answers in question
// order.
func intakeNotice(t ticket.Ticket, category catalog.Category, req OpenRequest) platform.Notice {
	notice := platform.Notice{
		Title: fmt.Sprintf("New ticket #%d", t.ID),
		Body:  "Claim it with !claim.",
		Fields: []platform.NoticeField{
			{Name: "Category", Value: category.Name},
			{Name: "Customer", Value: customerName(req)},
		},
	}
	for _, question := range category.Questions {
		if answer, ok := req.Answers[question.ID]; ok {
			notice.Fields = append(notice.Fields, platform.NoticeField{Name: question.Prompt, Value: answer})
		}
	}
	return notice
}
