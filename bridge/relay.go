// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bureau-foundation/ticketbridge/lib/platform"
	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// customerLabel attributes customer turns in the staff channel.
// Worker turns reach the customer unattributed.
const customerLabel = "Customer"

// RelayToStaff posts a customer's turn into the ticket's staff channel.
func (b *Bridge) RelayToStaff(ctx context.Context, t ticket.Ticket, payload Payload) (string, error) {
	if t.ChannelRef == "" {
		return "", fmt.Errorf("bridge: relay ticket %d to staff: %w", t.ID, ErrNoChannel)
	}
	return b.Send(ctx, t.ChannelRef, attribute(payload, customerLabel))
}

// RelayToCustomer posts a worker's turn into the customer's
// conversation.
func (b *Bridge) RelayToCustomer(ctx context.Context, t ticket.Ticket, payload Payload) (string, error) {
	if t.SessionRef == "" {
		return "", fmt.Errorf("bridge: relay ticket %d to customer: %w", t.ID, ErrNoChannel)
	}
	return b.SendCustomer(ctx, t.SessionRef, payload)
}

var customerMessages = map[ticket.Status]string{
	ticket.StatusOpen:       "Your request is back in the queue. Someone will pick it up shortly.",
	ticket.StatusClaimed:    "A specialist has picked up your request.",
	ticket.StatusPaid:       "Your payment has been confirmed. Thank you!",
	ticket.StatusCompleted:  "Your request is complete. Thank you for using our service!",
	ticket.StatusClosed:     "This ticket has been closed.",
	ticket.StatusTranscript: "This ticket has been closed and archived.",
	ticket.StatusDeleted:    "This ticket has been removed.",
}

// StaffNotice is the notice posted in a ticket's staff channel when it
// moves to status.
func StaffNotice(t ticket.Ticket, status ticket.Status) platform.Notice {
	notice := platform.Notice{
		Title: fmt.Sprintf("Ticket #%d is now %s", t.ID, status),
		Fields: []platform.NoticeField{
			{Name: "Category", Value: t.CategoryID},
		},
	}
	if t.ClaimedBy != "" {
		notice.Fields = append(notice.Fields, platform.NoticeField{Name: "Worker", Value: t.ClaimedBy})
	}
	if t.Amount > 0 {
		notice.Fields = append(notice.Fields, platform.NoticeField{Name: "Amount", Value: strconv.FormatInt(t.Amount, 10)})
	}
	return notice
}

// CustomerNotice is the notice sent to the customer when their ticket
// moves to status. It never names the worker.
func CustomerNotice(t ticket.Ticket, status ticket.Status) platform.Notice {
	return platform.Notice{
		Title: fmt.Sprintf("Ticket #%d", t.ID),
		Body:  customerMessages[status],
	}
}

// NotifyStatus tells both sides that t moved to status. Each side is
// attempted independently; the returned error joins whatever failed.
func (b *Bridge) NotifyStatus(ctx context.Context, t ticket.Ticket, status ticket.Status) error {
	var errs []error
	if t.ChannelRef != "" {
		if _, err := b.Send(ctx, t.ChannelRef, StructuredNotice{Notice: StaffNotice(t, status)}); err != nil {
			errs = append(errs, err)
		}
	}
	if t.SessionRef != "" {
		if _, err := b.SendCustomer(ctx, t.SessionRef, StructuredNotice{Notice: CustomerNotice(t, status)}); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		b.logger.Warn("status notification failed",
			"ticket_id", t.ID,
			"status", string(status),
			"error", err,
		)
		return err
	}
	return nil
}
