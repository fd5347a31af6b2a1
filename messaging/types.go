// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

// Event types used by the bridge.
const (
	EventTypeMessage     = "m.room.message"
	EventTypeName        = "m.room.name"
	EventTypeTopic       = "m.room.topic"
	EventTypePowerLevels = "m.room.power_levels"
	EventTypeCreate      = "m.room.create"
	EventTypeSpaceChild  = "m.space.child"
	EventTypeSpaceParent = "m.space.parent"
)

// Message types.
const (
	MsgTypeText   = "m.text"
	MsgTypeNotice = "m.notice"
	MsgTypeFile   = "m.file"
	MsgTypeImage  = "m.image"
)

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Type                     string `json:"type"`
	User                     string `json:"user"`
	Password                 string `json:"password"`
	InitialDeviceDisplayName string `json:"initial_device_display_name,omitempty"`
}

// CreateRoomRequest holds parameters for creating a Matrix room.
type CreateRoomRequest struct {
	Name                      string         `json:"name,omitempty"`
	Topic                     string         `json:"topic,omitempty"`
	Visibility                string         `json:"visibility,omitempty"` // "public" or "private"
	Preset                    string         `json:"preset,omitempty"`     // "private_chat", "public_chat", "trusted_private_chat"
	Invite                    []string       `json:"invite,omitempty"`
	InitialState              []StateEvent   `json:"initial_state,omitempty"`
	PowerLevelContentOverride map[string]any `json:"power_level_content_override,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

// StateEvent represents a Matrix state event for room creation.
type StateEvent struct {
	Type     string `json:"type"`
	StateKey string `json:"state_key"`
	Content  any    `json:"content"`
}

// MessageContent is the content body of an m.room.message event.
// FormattedBody carries HTML when Format is "org.matrix.custom.html".
// URL is an mxc:// content URI for file and image messages.
type MessageContent struct {
	MsgType       string    `json:"msgtype"`
	Body          string    `json:"body"`
	Format        string    `json:"format,omitempty"`
	FormattedBody string    `json:"formatted_body,omitempty"`
	URL           string    `json:"url,omitempty"`
	FileName      string    `json:"filename,omitempty"`
	Info          *FileInfo `json:"info,omitempty"`
}

// FileInfo describes an attached file.
type FileInfo struct {
	MimeType string `json:"mimetype,omitempty"`
}

// PowerLevels is the content of m.room.power_levels. Fields the bridge
// does not touch are carried through Extra so a read-modify-write keeps
// them.
type PowerLevels struct {
	Users         map[string]int `json:"users,omitempty"`
	UsersDefault  int            `json:"users_default"`
	EventsDefault int            `json:"events_default"`
	StateDefault  int            `json:"state_default"`
	Events        map[string]int `json:"events,omitempty"`
	Invite        *int           `json:"invite,omitempty"`
	Kick          *int           `json:"kick,omitempty"`
	Ban           *int           `json:"ban,omitempty"`
	Redact        *int           `json:"redact,omitempty"`
}

// Level returns userID's power level.
func (p PowerLevels) Level(userID string) int {
	if level, ok := p.Users[userID]; ok {
		return level
	}
	return p.UsersDefault
}

// Event represents a Matrix event from the server.
type Event struct {
	EventID        string         `json:"event_id"`
	Type           string         `json:"type"`
	Sender         string         `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         string         `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// contentString returns a string field of the event content.
func (e Event) contentString(key string) string {
	value, _ := e.Content[key].(string)
	return value
}

// RoomMessagesOptions controls pagination for room message fetching.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means "from now"
	Direction string // "b" (backward/older) or "f" (forward/newer)
	Limit     int    // max events to return; 0 uses server default
	Filter    string // inline JSON RoomEventFilter
}

// RoomMessagesResponse is returned by RoomMessages.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions controls the behavior of the /sync endpoint.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds; 0 for immediate return
	SetTimeout bool   // if true, send the timeout parameter (needed to distinguish "not set" from "0")
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the top-level response from /sync.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data grouped by membership state.
type RoomsSection struct {
	Join   map[string]JoinedRoom  `json:"join,omitempty"`
	Invite map[string]InvitedRoom `json:"invite,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// InvitedRoom contains sync data for a room the user was invited to.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// TimelineSection contains timeline events from a sync response.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection contains state events from a sync response.
type StateSection struct {
	Events []Event `json:"events"`
}

// InviteRequest holds the user ID to invite to a room.
type InviteRequest struct {
	UserID string `json:"user_id"`
}

// SendEventResponse is returned by SendEvent and SendStateEvent.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// RoomMember represents a member of a Matrix room.
type RoomMember struct {
	UserID      string
	DisplayName string
	Membership  string
}

// RoomMembersResponse is returned by the /members endpoint.
type RoomMembersResponse struct {
	Chunk []RoomMemberEvent `json:"chunk"`
}

// RoomMemberEvent is a member state event from the /members endpoint.
type RoomMemberEvent struct {
	Type     string            `json:"type"`
	StateKey string            `json:"state_key"`
	Sender   string            `json:"sender"`
	Content  RoomMemberContent `json:"content"`
}

// RoomMemberContent is the content of a m.room.member state event.
type RoomMemberContent struct {
	Membership  string `json:"membership"`
	DisplayName string `json:"displayname,omitempty"`
}
