package models

import "time"

// Event names broadcast through room connections.
const (
	EventMemberJoined    = "room:member_joined"
	EventMemberLeft      = "room:member_left"
	EventRoomDeleted     = "room:deleted"
	EventSettingsUpdated = "room:settings_updated"
	EventMessage         = "message:new"
	EventTypingStart     = "typing:start"
	EventTypingStop      = "typing:stop"
	EventPresenceOnline  = "presence:online"
	EventPresenceOffline = "presence:offline"
	EventModeration      = "moderation:action"
)

// Event is the envelope written to websocket connections.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	RoomID    string    `json:"room_id,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}
