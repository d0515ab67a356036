package models

import "time"

// ModerationType enumerates the actions a privileged actor can apply.
type ModerationType string

const (
	ModerationMute    ModerationType = "mute"
	ModerationUnmute  ModerationType = "unmute"
	ModerationBan     ModerationType = "ban"
	ModerationUnban   ModerationType = "unban"
	ModerationWarn    ModerationType = "warn"
	ModerationTimeout ModerationType = "timeout"
	ModerationKick    ModerationType = "kick"
)

// ModerationRequest describes one action against a target in a room.
type ModerationRequest struct {
	Type            ModerationType `json:"type"`
	RoomID          string         `json:"room_id"`
	TargetID        string         `json:"target_id"`
	Reason          string         `json:"reason,omitempty"`
	DurationMinutes int            `json:"duration_minutes,omitempty"`
}

// ModerationOutcome reports what a moderation request actually did,
// including any auto-escalation side effect.
type ModerationOutcome struct {
	Type        ModerationType `json:"type"`
	RoomID      string         `json:"room_id"`
	TargetID    string         `json:"target_id"`
	ModeratorID string         `json:"moderator_id"`
	Reason      string         `json:"reason,omitempty"`
	Message     string         `json:"message"`
	Escalated   bool           `json:"escalated"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	AppliedAt   time.Time      `json:"applied_at"`
}

// ModerationStatus is the lazily-expired restriction view for one actor in
// one room. An expiry in the past never appears here.
type ModerationStatus struct {
	IsMuted    bool       `json:"is_muted"`
	MuteExpiry *time.Time `json:"mute_expiry,omitempty"`
	IsBanned   bool       `json:"is_banned"`
	BanExpiry  *time.Time `json:"ban_expiry,omitempty"`
	Warnings   int        `json:"warnings"`
	InCooldown bool       `json:"in_cooldown"`
}

// MessageVerdict is the result of pre-send message screening.
type MessageVerdict struct {
	Allowed    bool               `json:"allowed"`
	Reason     string             `json:"reason,omitempty"`
	AutoAction *ModerationOutcome `json:"auto_action,omitempty"`
}
