package models

import "time"

// RoomType classifies what a room backs.
type RoomType string

const (
	RoomTypeClass  RoomType = "class"
	RoomTypeDirect RoomType = "direct"
	RoomTypeGroup  RoomType = "group"
	RoomTypeSystem RoomType = "system"
)

// Visibility controls whether non-members may join without an invite.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// RoomRole is an actor's rank within a single room.
type RoomRole string

const (
	RoomRoleOwner     RoomRole = "owner"
	RoomRoleModerator RoomRole = "moderator"
	RoomRoleMember    RoomRole = "member"
)

// RoomSettings holds per-room feature toggles and policies.
type RoomSettings struct {
	AllowMessages    bool   `db:"allow_messages" json:"allow_messages"`
	AllowFileSharing bool   `db:"allow_file_sharing" json:"allow_file_sharing"`
	AllowVoice       bool   `db:"allow_voice" json:"allow_voice"`
	AllowVideo       bool   `db:"allow_video" json:"allow_video"`
	ModerationLevel  string `db:"moderation_level" json:"moderation_level"`
	RetentionDays    int    `db:"retention_days" json:"retention_days"`
}

// RoomSettingsPatch carries a partial settings update; nil fields are left as-is.
type RoomSettingsPatch struct {
	AllowMessages    *bool   `json:"allow_messages,omitempty"`
	AllowFileSharing *bool   `json:"allow_file_sharing,omitempty"`
	AllowVoice       *bool   `json:"allow_voice,omitempty"`
	AllowVideo       *bool   `json:"allow_video,omitempty"`
	ModerationLevel  *string `json:"moderation_level,omitempty"`
	RetentionDays    *int    `json:"retention_days,omitempty"`
}

// RoomMetadata is bookkeeping the registry maintains as the room is used.
type RoomMetadata struct {
	MessageCount int64    `json:"message_count"`
	PeakMembers  int      `json:"peak_members"`
	Tags         []string `json:"tags,omitempty"`
	Archived     bool     `json:"archived"`
}

// Room is an addressable real-time channel, typically backing a class.
type Room struct {
	ID           string       `db:"id" json:"id"`
	Type         RoomType     `db:"type" json:"type"`
	Name         string       `db:"name" json:"name"`
	Description  string       `db:"description" json:"description,omitempty"`
	OwnerID      string       `db:"owner_id" json:"owner_id"`
	Visibility   Visibility   `db:"visibility" json:"visibility"`
	MaxMembers   int          `db:"max_members" json:"max_members"`
	Settings     RoomSettings `json:"settings"`
	Metadata     RoomMetadata `json:"metadata"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	LastActivity time.Time    `db:"last_activity" json:"last_activity"`
}

// Membership is an actor's standing in one room. It outlives the actor's
// sessions: a disconnected actor keeps their memberships.
type Membership struct {
	RoomID       string    `db:"room_id" json:"room_id"`
	ActorID      string    `db:"actor_id" json:"actor_id"`
	Role         RoomRole  `db:"role" json:"role"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Muted        bool      `json:"muted"`
	Banned       bool      `json:"banned"`
}

// RoomDescriptor is the caller-supplied shape of a room to create.
type RoomDescriptor struct {
	Type        RoomType     `json:"type"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Visibility  Visibility   `json:"visibility"`
	MaxMembers  int          `json:"max_members"`
	Settings    RoomSettings `json:"settings"`
	Tags        []string     `json:"tags,omitempty"`
}

// DefaultRoomSettings returns the settings applied when a descriptor leaves
// them zero-valued.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		AllowMessages:    true,
		AllowFileSharing: true,
		AllowVoice:       false,
		AllowVideo:       false,
		ModerationLevel:  "standard",
		RetentionDays:    30,
	}
}
