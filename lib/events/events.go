// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"sync"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/ticket"
)

// Kind is the routing key of an event.
type Kind string

const (
	KindTicketOpened       Kind = "ticket.opened"
	KindTicketTransition   Kind = "ticket.transitioned"
	KindTicketAmount       Kind = "ticket.amount_set"
	KindTicketDeleted      Kind = "ticket.deleted"
	KindPaymentRecorded    Kind = "ledger.payment_recorded"
	KindTranscriptArchived Kind = "ticket.transcript_archived"
)

// Event is one published fact. Fields that do not apply to a Kind are
// left zero and omitted from the encoding.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`

	TicketID   int64         `json:"ticket_id"`
	CategoryID string        `json:"category_id,omitempty"`
	WorkerID   string        `json:"worker_id,omitempty"`
	From       ticket.Status `json:"from,omitempty"`
	To         ticket.Status `json:"to,omitempty"`
	Amount     int64         `json:"amount,omitempty"`

	// Outcome is the ledger outcome for payment events.
	Outcome string `json:"outcome,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

// Memory keeps published events in order. It is safe for concurrent
// use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Kinds returns the kinds of everything published so far.
func (m *Memory) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]Kind, len(m.events))
	for i, event := range m.events {
		kinds[i] = event.Kind
	}
	return kinds
}
