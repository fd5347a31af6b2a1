// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bureau-foundation/ticketbridge/bridge"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// CommandPrefix marks a staff message as a command rather than a reply
// to the customer.
const CommandPrefix = "!"

const staffHelp = `Commands:
!claim            take this ticket
!unclaim          return it to the queue (only before an amount is set)
!amount N         set the agreed price
!paid             confirm payment and credit the worker
!complete         finish the ticket
!close            close without completing
!transcript       close and archive the conversation
!delete           remove the ticket (earnings are kept)
!status           show the ticket
Anything else is sent to the customer.`

// HandleStaff processes one message posted in a ticket channel.
// Commands act on the ticket; anything else is relayed to the customer.
// Rejections are answered in the channel and are not returned as
// errors.
func (s *Service) HandleStaff(ctx context.Context, msg StaffMessage) error {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, CommandPrefix) || msg.Attachment != nil {
		err := s.RelayOutbound(ctx, msg)
		if errors.Is(err, ErrTicketClosed) {
			s.replyStaff(ctx, msg.ChannelRef, "This ticket is closed; the customer will not see new messages.")
			return nil
		}
		return err
	}

	t, err := s.store.TicketByChannel(ctx, msg.ChannelRef)
	if err != nil {
		return fmt.Errorf("workflow: command in %s: %w", msg.ChannelRef, err)
	}

	fields := strings.Fields(strings.TrimPrefix(text, CommandPrefix))
	if len(fields) == 0 {
		s.replyStaff(ctx, msg.ChannelRef, staffHelp)
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var target ticket.Status
	switch name {
	case "claim":
		target = ticket.StatusClaimed
	case "unclaim":
		target = ticket.StatusOpen
	case "paid":
		target = ticket.StatusPaid
	case "complete":
		target = ticket.StatusCompleted
	case "close":
		target = ticket.StatusClosed
	case "transcript":
		target = ticket.StatusTranscript
	case "amount":
		return s.amountCommand(ctx, msg, t, args)
	case "delete":
		return s.rejectable(ctx, msg.ChannelRef, s.Delete(ctx, t.ID, msg.Sender))
	case "status":
		s.replyStaff(ctx, msg.ChannelRef, bridge.StaffNotice(t, t.Status).Plain())
		return nil
	case "help":
		s.replyStaff(ctx, msg.ChannelRef, staffHelp)
		return nil
	default:
		s.replyStaff(ctx, msg.ChannelRef, fmt.Sprintf("Unknown command %q. Try !help.", name))
		return nil
	}

	_, err = s.Transition(ctx, t.ID, target, msg.Sender)
	return s.rejectable(ctx, msg.ChannelRef, err)
}

func (s *Service) amountCommand(ctx context.Context, msg StaffMessage, t ticket.Ticket, args []string) error {
	if len(args) != 1 {
		s.replyStaff(ctx, msg.ChannelRef, "Usage: !amount N")
		return nil
	}
	amount, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		s.replyStaff(ctx, msg.ChannelRef, fmt.Sprintf("%q is not a whole number.", args[0]))
		return nil
	}
	if guard := ticket.CanSetAmount(t, amount); !guard.Allowed {
		s.replyStaff(ctx, msg.ChannelRef, "Not allowed: "+guard.Reason+".")
		return nil
	}
	_, err = s.SetAmount(ctx, t.ID, amount, msg.Sender)
	return s.rejectable(ctx, msg.ChannelRef, err)
}

// rejectable answers rule violations in the channel and passes other
// errors through.
func (s *Service) rejectable(ctx context.Context, channelRef string, err error) error {
	var transitionErr *ticket.TransitionError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &transitionErr):
		s.replyStaff(ctx, channelRef, "Not allowed: "+transitionErr.Reason+".")
		return nil
	case errors.Is(err, ErrNotClaimer):
		s.replyStaff(ctx, channelRef, "Not allowed: only the worker who claimed this ticket can do that.")
		return nil
	case errors.Is(err, ErrAmountRejected):
		s.replyStaff(ctx, channelRef, "Not allowed: the amount can no longer be changed.")
		return nil
	}
	s.replyStaff(ctx, channelRef, "That failed; nothing was changed. Try again in a moment.")
	return err
}

func (s *Service) replyStaff(ctx context.Context, channelRef, text string) {
	if _, err := s.bridge.Send(ctx, channelRef, bridge.TextOnly{Text: text}); err != nil {
		s.logger.Warn("replying in staff channel failed", "channel_ref", channelRef, "error", err)
	}
}
