// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/ticketbridge/bridge"
	"github.com/bureau-foundation/ticketbridge/lib/catalog"
	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/events"
	"github.com/bureau-foundation/ticketbridge/lib/keylock"
	"github.com/bureau-foundation/ticketbridge/lib/ledger"
	"github.com/bureau-foundation/ticketbridge/lib/sessionstore"
	"github.com/bureau-foundation/ticketbridge/lib/store"
	"github.com/bureau-foundation/ticketbridge/lib/transcript"
)

var (
	// ErrNoActiveTicket is returned when a customer message or command
	// needs a ticket the session does not have.
	ErrNoActiveTicket = errors.New("workflow: no active ticket")

	// ErrTicketClosed is returned when relaying into a ticket that has
	// reached a terminal status.
	ErrTicketClosed = errors.New("workflow: ticket is closed")

	// ErrAlreadyOpen is returned by OpenTicket when the session already
	// has a ticket in progress.
	ErrAlreadyOpen = errors.New("workflow: session already has an open ticket")

	// ErrNotClaimer is returned when a worker other than the claimer
	// changes a claimed ticket's amount.
	ErrNotClaimer = errors.New("workflow: ticket is claimed by another worker")

	// ErrAmountRejected is returned when a ticket's amount may not be
	// changed to the requested value.
	ErrAmountRejected = errors.New("workflow: amount rejected")

	// ErrUnknownCategory is returned for categories missing from the
	// catalog.
	ErrUnknownCategory = errors.New("workflow: unknown category")
)

// Config holds the parameters for New.
type Config struct {
	Store    *store.Store
	Ledger   *ledger.Ledger
	Bridge   *bridge.Bridge
	Sessions sessionstore.Store
	Catalog  *catalog.Catalog

	// Archiver stores transcripts. Defaults to an archiver over Store.
	Archiver *transcript.Archiver

	// Events receives lifecycle events. Defaults to events.Discard.
	Events events.Publisher

	// StaffSpace is the parent of new ticket channels. Optional.
	StaffSpace string

	// StaffInvite lists staff invited to every new ticket channel.
	StaffInvite []string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Service applies ticket operations.
type Service struct {
	store    *store.Store
	ledger   *ledger.Ledger
	bridge   *bridge.Bridge
	sessions sessionstore.Store
	catalog  *catalog.Catalog
	archiver *transcript.Archiver
	events   events.Publisher

	staffSpace  string
	staffInvite []string

	clock  clock.Clock
	logger *slog.Logger

	tickets      keylock.Map[int64]
	conversation keylock.Map[string]
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	var missing []error
	if cfg.Store == nil {
		missing = append(missing, errors.New("Store is required"))
	}
	if cfg.Ledger == nil {
		missing = append(missing, errors.New("Ledger is required"))
	}
	if cfg.Bridge == nil {
		missing = append(missing, errors.New("Bridge is required"))
	}
	if cfg.Sessions == nil {
		missing = append(missing, errors.New("Sessions is required"))
	}
	if cfg.Catalog == nil {
		missing = append(missing, errors.New("Catalog is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("workflow: %w", err)
	}

	s := &Service{
		store:       cfg.Store,
		ledger:      cfg.Ledger,
		bridge:      cfg.Bridge,
		sessions:    cfg.Sessions,
		catalog:     cfg.Catalog,
		archiver:    cfg.Archiver,
		events:      cfg.Events,
		staffSpace:  cfg.StaffSpace,
		staffInvite: cfg.StaffInvite,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.archiver == nil {
		s.archiver = transcript.NewArchiver(cfg.Store, s.logger)
	}
	if s.events == nil {
		s.events = events.Discard{}
	}
	return s, nil
}

// publish stamps and sends event, logging failures.
func (s *Service) publish(ctx context.Context, event events.Event) {
	event.ID = uuid.NewString()
	event.OccurredAt = s.clock.Now().UTC()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publishing event failed",
			"kind", string(event.Kind),
			"ticket_id", event.TicketID,
			"error", err,
		)
	}
}
