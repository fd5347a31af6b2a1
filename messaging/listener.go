// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

// Inbound is a message posted in a room the bot has joined.
type Inbound struct {
	RoomID     string
	Sender     string
	EventID    string
	Text       string
	Attachment *platform.Attachment
	SentAt     time.Time
}

// Handler processes one inbound message. Its error is logged; the
// listener moves on.
type Handler func(ctx context.Context, msg Inbound) error

// syncFilter limits /sync to room messages: no state, presence,
// receipts, or account data.
const syncFilter = `{"room":{"timeline":{"types":["m.room.message"]},"state":{"types":[]},"ephemeral":{"types":[]},"account_data":{"types":[]}},"presence":{"types":[]},"account_data":{"types":[]}}`

const (
	minSyncBackoff = time.Second
	maxSyncBackoff = 30 * time.Second
)

// Listen long-polls /sync and calls handler for every new message from
// someone other than the bot, oldest first within each room. History
// from before the call is skipped. Listen returns when ctx is done.
func (s *Staff) Listen(ctx context.Context, handler Handler) error {
	since, err := s.syncPosition(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("matrix listener started", "user_id", s.session.UserID())

	backoff := minSyncBackoff
	for {
		response, err := s.session.Sync(ctx, SyncOptions{
			Since:      since,
			SetTimeout: true,
			Timeout:    int(s.syncTimeout / time.Millisecond),
			Filter:     syncFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A reset connection often poisons the pool; start fresh.
			s.session.CloseIdleConnections()
			s.logger.Warn("matrix sync failed, backing off", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.clock.After(backoff):
			}
			backoff = min(backoff*2, maxSyncBackoff)
			continue
		}
		backoff = minSyncBackoff
		since = response.NextBatch
		s.dispatch(ctx, response, handler)
	}
}

// syncPosition performs an immediate sync to anchor the stream at now.
func (s *Staff) syncPosition(ctx context.Context) (string, error) {
	response, err := s.session.Sync(ctx, SyncOptions{SetTimeout: true, Timeout: 0, Filter: syncFilter})
	if err != nil {
		return "", fmt.Errorf("messaging: initial sync: %w", translate("sync", err))
	}
	return response.NextBatch, nil
}

func (s *Staff) dispatch(ctx context.Context, response *SyncResponse, handler Handler) {
	roomIDs := make([]string, 0, len(response.Rooms.Join))
	for roomID := range response.Rooms.Join {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Strings(roomIDs)

	for _, roomID := range roomIDs {
		for _, event := range response.Rooms.Join[roomID].Timeline.Events {
			if event.Type != EventTypeMessage || event.Sender == s.session.UserID() {
				continue
			}
			text, attachment := parseContent(event)
			msg := Inbound{
				RoomID:     roomID,
				Sender:     event.Sender,
				EventID:    event.EventID,
				Text:       text,
				Attachment: attachment,
				SentAt:     time.UnixMilli(event.OriginServerTS).UTC(),
			}
			if err := handler(ctx, msg); err != nil {
				s.logger.Warn("handling staff message failed",
					"room_id", roomID,
					"event_id", event.EventID,
					"sender", event.Sender,
					"error", err,
				)
			}
		}
	}
}
