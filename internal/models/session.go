package models

import "time"

// Role is an actor's global role, assigned by the upstream identity layer.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Identity is the verified actor description handed over by the upstream
// authentication step. The core trusts it as-is.
type Identity struct {
	ActorID string   `json:"actor_id"`
	Role    Role     `json:"role"`
	RoomIDs []string `json:"room_ids,omitempty"`
	Addr    string   `json:"addr,omitempty"`
	Client  string   `json:"client,omitempty"`
}

// SessionSnapshot is the cache/export view of one live connection handle.
type SessionSnapshot struct {
	HandleID     string    `json:"handle_id"`
	ActorID      string    `json:"actor_id"`
	Role         Role      `json:"role"`
	RoomIDs      []string  `json:"room_ids,omitempty"`
	Addr         string    `json:"addr,omitempty"`
	Client       string    `json:"client,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
}
