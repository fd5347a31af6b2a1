// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/bureau-foundation/ticketbridge/bridge"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// CustomerMessage is a message from a customer session.
type CustomerMessage struct {
	SessionRef  string
	UserID      string
	DisplayName string

	// MessageID is the customer platform's ID, used to drop
	// redelivered messages.
	MessageID string

	Text       string
	Attachment *platform.Attachment
}

// StaffMessage is a message posted in a ticket's staff channel.
type StaffMessage struct {
	ChannelRef string
	Sender     string

	// EventID is the staff platform's ID, used to drop redelivered
	// messages.
	EventID string

	Text       string
	Attachment *platform.Attachment
}

// payloadFor picks the payload variant for a message's content.
func payloadFor(text string, attachment *platform.Attachment) bridge.Payload {
	switch {
	case attachment != nil && text != "":
		return bridge.TextWithAttachment{Text: text, Attachment: *attachment}
	case attachment != nil:
		return bridge.AttachmentOnly{Attachment: *attachment}
	}
	return bridge.TextOnly{Text: text}
}

func attachmentURL(attachment *platform.Attachment) string {
	if attachment == nil {
		return ""
	}
	return attachment.URL
}

// RelayInbound records a customer's message on their active ticket and
// posts it in the staff channel. A message already relayed is dropped
// without error.
func (s *Service) RelayInbound(ctx context.Context, msg CustomerMessage) error {
	unlock := s.conversation.Lock(msg.SessionRef)
	defer unlock()

	state, err := s.sessions.GetSessionState(ctx, msg.SessionRef)
	if err != nil {
		return fmt.Errorf("workflow: relay from session %s: %w", msg.SessionRef, err)
	}
	return s.relayInbound(ctx, msg, state)
}

func (s *Service) relayInbound(ctx context.Context, msg CustomerMessage, state platform.SessionState) error {
	if state.ActiveTicketID == 0 {
		return fmt.Errorf("workflow: relay from session %s: %w", msg.SessionRef, ErrNoActiveTicket)
	}
	t, err := s.store.GetTicket(ctx, state.ActiveTicketID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && t.Status.IsTerminal()) {
		// The pointer outlived its ticket; reset so the next message
		// starts a new intake.
		if err := s.sessions.SetSessionState(ctx, msg.SessionRef, platform.SessionState{}); err != nil {
			s.logger.Warn("clearing stale session failed", "session_ref", msg.SessionRef, "error", err)
		}
		return fmt.Errorf("workflow: relay from session %s: %w", msg.SessionRef, ErrNoActiveTicket)
	}
	if err != nil {
		return fmt.Errorf("workflow: relay from session %s: %w", msg.SessionRef, err)
	}

	fresh, err := s.store.AppendMessage(ctx, store.Message{
		TicketID:      t.ID,
		Direction:     store.Inbound,
		Author:        msg.UserID,
		Body:          msg.Text,
		AttachmentURL: attachmentURL(msg.Attachment),
		SourceID:      msg.MessageID,
	})
	if err != nil {
		return fmt.Errorf("workflow: relay to ticket %d: %w", t.ID, err)
	}
	if !fresh {
		s.logger.Debug("dropping redelivered customer message", "ticket_id", t.ID, "message_id", msg.MessageID)
		return nil
	}

	if _, err := s.bridge.RelayToStaff(ctx, t, payloadFor(msg.Text, msg.Attachment)); err != nil {
		s.logger.Warn("relaying customer message failed", "ticket_id", t.ID, "message_id", msg.MessageID, "error", err)
		return fmt.Errorf("workflow: relay to ticket %d: %w", t.ID, err)
	}
	return nil
}

// RelayOutbound records a worker's reply in a ticket channel and sends
// it to the customer. A message already relayed is dropped without
// error.
func (s *Service) RelayOutbound(ctx context.Context, msg StaffMessage) error {
	t, err := s.store.TicketByChannel(ctx, msg.ChannelRef)
	if err != nil {
		return fmt.Errorf("workflow: relay from channel %s: %w", msg.ChannelRef, err)
	}
	return s.relayOutbound(ctx, t, msg)
}

func (s *Service) relayOutbound(ctx context.Context, t ticket.Ticket, msg StaffMessage) error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("workflow: relay from ticket %d: %w", t.ID, ErrTicketClosed)
	}
	fresh, err := s.store.AppendMessage(ctx, store.Message{
		TicketID:      t.ID,
		Direction:     store.Outbound,
		Author:        msg.Sender,
		Body:          msg.Text,
		AttachmentURL: attachmentURL(msg.Attachment),
		SourceID:      msg.EventID,
	})
	if err != nil {
		return fmt.Errorf("workflow: relay from ticket %d: %w", t.ID, err)
	}
	if !fresh {
		s.logger.Debug("dropping redelivered staff message", "ticket_id", t.ID, "event_id", msg.EventID)
		return nil
	}

	if _, err := s.bridge.RelayToCustomer(ctx, t, payloadFor(msg.Text, msg.Attachment)); err != nil {
		s.logger.Warn("relaying staff reply failed", "ticket_id", t.ID, "event_id", msg.EventID, "error", err)
		return fmt.Errorf("workflow: relay from ticket %d: %w", t.ID, err)
	}
	return nil
}
