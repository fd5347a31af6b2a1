// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/ticketbridge/lib/clock"
	"github.com/bureau-foundation/ticketbridge/lib/platform"
)

// Power levels the bridge relies on. A locked ticket room requires
// LevelModerator to post; the bot is the room creator at LevelAdmin.
const (
	LevelAdmin     = 100
	LevelModerator = 50
)

// Roles reported by LookupMembersAndRoles.
const (
	RoleAdmin     = "admin"
	RoleModerator = "moderator"
	RoleMember    = "member"
)

// StaffConfig holds the parameters for NewStaff.
type StaffConfig struct {
	// Session is the bot's authenticated session. Required.
	Session *Session

	// SyncTimeout is the /sync long-poll hold. Defaults to 30s.
	SyncTimeout time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Staff implements platform.ChannelPlatform over Matrix rooms.
type Staff struct {
	session     *Session
	syncTimeout time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

var _ platform.ChannelPlatform = (*Staff)(nil)

// NewStaff creates a Staff adapter.
func NewStaff(cfg StaffConfig) (*Staff, error) {
	if cfg.Session == nil {
		return nil, fmt.Errorf("messaging: Session is required")
	}
	s := &Staff{
		session:     cfg.Session,
		syncTimeout: cfg.SyncTimeout,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if s.syncTimeout <= 0 {
		s.syncTimeout = 30 * time.Second
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// CreateConnection checks that the bot can see roomID and returns a
// send handle bound to it.
func (s *Staff) CreateConnection(ctx context.Context, roomID string) (platform.SendHandle, error) {
	if _, err := s.session.GetStateEvent(ctx, roomID, EventTypeCreate, ""); err != nil {
		return nil, translate("dial", err)
	}
	return &roomHandle{session: s.session, roomID: roomID}, nil
}

// CreateChannel creates a private room for a ticket. When spec.Parent
// names a space the room is linked into it both ways; a failure to
// link the space side is logged and does not fail the call.
func (s *Staff) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (string, error) {
	request := CreateRoomRequest{
		Name:       spec.Name,
		Topic:      spec.Topic,
		Visibility: "private",
		Preset:     "private_chat",
		Invite:     spec.Invite,
	}
	via := []string{serverName(s.session.UserID())}
	if spec.Parent != "" {
		request.InitialState = append(request.InitialState, StateEvent{
			Type:     EventTypeSpaceParent,
			StateKey: spec.Parent,
			Content:  map[string]any{"via": via, "canonical": true},
		})
	}

	response, err := s.session.CreateRoom(ctx, request)
	if err != nil {
		return "", translate("create_channel", err)
	}

	if spec.Parent != "" {
		_, err := s.session.SendStateEvent(ctx, spec.Parent, EventTypeSpaceChild, response.RoomID, map[string]any{"via": via})
		if err != nil {
			s.logger.Warn("linking ticket room into space failed",
				"room_id", response.RoomID,
				"space", spec.Parent,
				"error", err,
			)
		}
	}
	return response.RoomID, nil
}

// EditChannel applies the set fields of options.
func (s *Staff) EditChannel(ctx context.Context, roomID string, options platform.ChannelOptions) error {
	if options.Name != "" {
		if _, err := s.session.SendStateEvent(ctx, roomID, EventTypeName, "", map[string]string{"name": options.Name}); err != nil {
			return translate("edit_channel", err)
		}
	}
	if options.Topic != "" {
		if _, err := s.session.SendStateEvent(ctx, roomID, EventTypeTopic, "", map[string]string{"topic": options.Topic}); err != nil {
			return translate("edit_channel", err)
		}
	}
	if options.ReadOnly != nil {
		if err := s.setReadOnly(ctx, roomID, *options.ReadOnly); err != nil {
			return translate("edit_channel", err)
		}
	}
	return nil
}

// setReadOnly rewrites events_default in the room's power levels,
// keeping every other field as the server returned it.
func (s *Staff) setReadOnly(ctx context.Context, roomID string, readOnly bool) error {
	raw, err := s.session.GetStateEvent(ctx, roomID, EventTypePowerLevels, "")
	if err != nil {
		return err
	}
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil {
		return fmt.Errorf("messaging: parsing power levels of %s: %w", roomID, err)
	}
	if content == nil {
		content = make(map[string]any)
	}
	level := 0
	if readOnly {
		level = LevelModerator
	}
	content["events_default"] = level
	_, err = s.session.SendStateEvent(ctx, roomID, EventTypePowerLevels, "", content)
	return err
}

// FetchRecent returns up to limit recent messages, newest first.
func (s *Staff) FetchRecent(ctx context.Context, roomID string, limit int) ([]platform.FetchedMessage, error) {
	response, err := s.session.RoomMessages(ctx, roomID, RoomMessagesOptions{
		Direction: "b",
		Limit:     limit,
		Filter:    `{"types":["m.room.message"]}`,
	})
	if err != nil {
		return nil, translate("fetch", err)
	}
	fetched := make([]platform.FetchedMessage, 0, len(response.Chunk))
	for _, event := range response.Chunk {
		if event.Type != EventTypeMessage {
			continue
		}
		text, attachment := parseContent(event)
		message := platform.FetchedMessage{
			ID:     event.EventID,
			Author: event.Sender,
			Body:   text,
			SentAt: time.UnixMilli(event.OriginServerTS).UTC(),
		}
		if attachment != nil {
			message.AttachmentURL = attachment.URL
		}
		fetched = append(fetched, message)
	}
	return fetched, nil
}

// LookupMembersAndRoles lists the joined members of a room or space
// with roles derived from their power levels.
func (s *Staff) LookupMembersAndRoles(ctx context.Context, roomID string) ([]platform.Member, error) {
	members, err := s.session.GetRoomMembers(ctx, roomID)
	if err != nil {
		return nil, translate("lookup_members", err)
	}
	raw, err := s.session.GetStateEvent(ctx, roomID, EventTypePowerLevels, "")
	if err != nil {
		return nil, translate("lookup_members", err)
	}
	var levels PowerLevels
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil, fmt.Errorf("messaging: parsing power levels of %s: %w", roomID, err)
	}

	var result []platform.Member
	for _, member := range members {
		if member.Membership != "join" {
			continue
		}
		result = append(result, platform.Member{
			ID:          member.UserID,
			DisplayName: member.DisplayName,
			Roles:       rolesFor(levels.Level(member.UserID)),
		})
	}
	return result, nil
}

func rolesFor(level int) []string {
	switch {
	case level >= LevelAdmin:
		return []string{RoleAdmin, RoleModerator, RoleMember}
	case level >= LevelModerator:
		return []string{RoleModerator, RoleMember}
	}
	return []string{RoleMember}
}

// serverName returns the homeserver part of a user ID.
func serverName(userID string) string {
	if _, server, ok := strings.Cut(userID, ":"); ok {
		return server
	}
	return ""
}

type roomHandle struct {
	session *Session
	roomID  string
}

func (h *roomHandle) Send(ctx context.Context, msg platform.OutboundMessage) (string, error) {
	eventID, err := h.session.SendMessage(ctx, h.roomID, messageContent(msg))
	if err != nil {
		return "", translate("send", err)
	}
	return eventID, nil
}

// Close is a no-op: sends share the session's HTTP transport.
func (h *roomHandle) Close() error { return nil }
