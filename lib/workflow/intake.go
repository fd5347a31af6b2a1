// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bureau-foundation/ticketbridge/bridge"
	"github.com/bureau-foundation/ticketbridge/lib/catalog"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// Session steps stored in platform.SessionState.Step.
const (
	stepCategory = "category"
	stepQuestion = "question"
	stepRelay    = "relay"
)

// Customer commands.
const (
	commandStart  = "/start"
	commandCancel = "/cancel"
)

// HandleCustomer processes one message from a customer session: intake
// commands and answers while no ticket is active, relay to staff once
// one is.
func (s *Service) HandleCustomer(ctx context.Context, msg CustomerMessage) error {
	unlock := s.conversation.Lock(msg.SessionRef)
	defer unlock()

	state, err := s.sessions.GetSessionState(ctx, msg.SessionRef)
	if err != nil {
		return fmt.Errorf("workflow: session %s: %w", msg.SessionRef, err)
	}

	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case commandStart:
		if state.ActiveTicketID != 0 {
			s.replyCustomer(ctx, msg.SessionRef, fmt.Sprintf("Ticket #%d is still in progress. Just write here to reach your specialist.", state.ActiveTicketID))
			return nil
		}
		return s.beginIntake(ctx, msg.SessionRef, "")
	case commandCancel:
		return s.cancel(ctx, msg, state)
	}

	if state.ActiveTicketID != 0 {
		err := s.relayInbound(ctx, msg, state)
		if !errors.Is(err, ErrNoActiveTicket) {
			return err
		}
		state = platform.SessionState{}
	}

	switch state.Step {
	case stepCategory:
		return s.chooseCategory(ctx, msg)
	case stepQuestion:
		return s.answerQuestion(ctx, msg, state)
	}
	return s.beginIntake(ctx, msg.SessionRef, "")
}

// beginIntake shows the category menu, prefixed by note if set.
func (s *Service) beginIntake(ctx context.Context, sessionRef, note string) error {
	if err := s.sessions.SetSessionState(ctx, sessionRef, platform.SessionState{Step: stepCategory, UpdatedAt: s.clock.Now().UTC()}); err != nil {
		return fmt.Errorf("workflow: session %s: %w", sessionRef, err)
	}
	menu := s.catalog.Menu()
	if note != "" {
		menu = note + "\n\n" + menu
	}
	s.replyCustomer(ctx, sessionRef, menu)
	return nil
}

func (s *Service) chooseCategory(ctx context.Context, msg CustomerMessage) error {
	category, ok := s.catalog.Match(msg.Text)
	if !ok {
		return s.beginIntake(ctx, msg.SessionRef, "Sorry, that is not one of the options.")
	}
	return s.advance(ctx, msg, platform.SessionState{
		Step:       stepQuestion,
		CategoryID: category.ID,
		Answers:    map[string]string{},
	}, category)
}

func (s *Service) answerQuestion(ctx context.Context, msg CustomerMessage, state platform.SessionState) error {
	category, ok := s.catalog.Lookup(state.CategoryID)
	if !ok {
		// The catalog changed under an intake in progress.
		return s.beginIntake(ctx, msg.SessionRef, "That category is no longer available.")
	}
	question, pending := category.NextQuestion(state.Answers)
	if pending {
		answer, accepted := question.Accept(msg.Text)
		if !accepted {
			s.replyCustomer(ctx, msg.SessionRef, "Sorry, I need an answer to continue.\n"+prompt(question))
			return nil
		}
		answers := make(map[string]string, len(state.Answers)+1)
		for id, value := range state.Answers {
			answers[id] = value
		}
		answers[question.ID] = answer
		state.Answers = answers
	}
	return s.advance(ctx, msg, state, category)
}

// advance asks the next unanswered question, or opens the ticket once
// every question is answered.
func (s *Service) advance(ctx context.Context, msg CustomerMessage, state platform.SessionState, category catalog.Category) error {
	if question, pending := category.NextQuestion(state.Answers); pending {
		state.UpdatedAt = s.clock.Now().UTC()
		if err := s.sessions.SetSessionState(ctx, msg.SessionRef, state); err != nil {
			return fmt.Errorf("workflow: session %s: %w", msg.SessionRef, err)
		}
		s.replyCustomer(ctx, msg.SessionRef, prompt(question))
		return nil
	}

	_, err := s.openTicket(ctx, OpenRequest{
		SessionRef:  msg.SessionRef,
		UserID:      msg.UserID,
		DisplayName: msg.DisplayName,
		CategoryID:  category.ID,
		Answers:     state.Answers,
	})
	if err != nil {
		s.logger.Error("opening ticket failed", "session_ref", msg.SessionRef, "category", category.ID, "error", err)
		if resetErr := s.sessions.SetSessionState(ctx, msg.SessionRef, platform.SessionState{}); resetErr != nil {
			s.logger.Warn("resetting session failed", "session_ref", msg.SessionRef, "error", resetErr)
		}
		s.replyCustomer(ctx, msg.SessionRef, "Sorry, we could not open your ticket. Please send /start to try again.")
		return err
	}
	return nil
}

// cancel abandons an intake, or closes a ticket nobody has claimed yet.
func (s *Service) cancel(ctx context.Context, msg CustomerMessage, state platform.SessionState) error {
	if state.ActiveTicketID == 0 {
		if err := s.sessions.SetSessionState(ctx, msg.SessionRef, platform.SessionState{}); err != nil {
			return fmt.Errorf("workflow: session %s: %w", msg.SessionRef, err)
		}
		s.replyCustomer(ctx, msg.SessionRef, "Cancelled. Send /start whenever you need us.")
		return nil
	}

	unlock := s.tickets.Lock(state.ActiveTicketID)
	defer unlock()
	t, err := s.store.GetTicket(ctx, state.ActiveTicketID)
	if err != nil {
		return fmt.Errorf("workflow: cancel ticket %d: %w", state.ActiveTicketID, err)
	}
	if t.Status != ticket.StatusOpen {
		s.replyCustomer(ctx, msg.SessionRef, fmt.Sprintf("Ticket #%d is already being handled, so it can't be cancelled here. Please ask your specialist.", t.ID))
		return nil
	}
	if _, err := s.transition(ctx, t.ID, ticket.StatusClosed, ""); err != nil {
		return err
	}
	return nil
}

func prompt(question catalog.Question) string {
	if len(question.Options) == 0 {
		return question.Prompt
	}
	return question.Prompt + " (" + strings.Join(question.Options, " / ") + ")"
}

func (s *Service) replyCustomer(ctx context.Context, sessionRef, text string) {
	if _, err := s.bridge.SendCustomer(ctx, sessionRef, bridge.TextOnly{Text: text}); err != nil {
		s.logger.Warn("replying to customer failed", "session_ref", sessionRef, "error", err)
	}
}
