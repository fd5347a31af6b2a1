// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ticket

import (
	"fmt"
	"strings"
)

// Status is the canonical ticket status stored in the database and
// carried on events.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClaimed    Status = "claimed"
	StatusPaid       Status = "paid"
	StatusCompleted  Status = "completed"
	StatusClosed     Status = "closed"
	StatusTranscript Status = "transcript"
	StatusDeleted    Status = "deleted"
)

// Statuses lists every canonical status in lifecycle order.
var Statuses = []Status{
	StatusOpen,
	StatusClaimed,
	StatusPaid,
	StatusCompleted,
	StatusClosed,
	StatusTranscript,
	StatusDeleted,
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusClosed, StatusTranscript, StatusDeleted:
		return true
	}
	return false
}

// Valid reports whether s is a canonical status.
func (s Status) Valid() bool {
	for _, status := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// legacyStatuses maps status strings written by older deployments to
// their canonical value.
var legacyStatuses = map[string]Status{
	"archived":  StatusTranscript,
	"archive":   StatusTranscript,
	"done":      StatusCompleted,
	"resolved":  StatusCompleted,
	"cancelled": StatusClosed,
	"canceled":  StatusClosed,
	"removed":   StatusDeleted,
	"taken":     StatusClaimed,
}

// ParseStatus returns the canonical status for value, accepting legacy
// spellings. Matching is case-insensitive.
func ParseStatus(value string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if status := Status(normalized); status.Valid() {
		return status, nil
	}
	if status, ok := legacyStatuses[normalized]; ok {
		return status, nil
	}
	return "", fmt.Errorf("ticket: unknown status %q", value)
}
