package permissions

// Action is the closed set of permission-checked operations. Keeping it a
// compile-time enumeration means a new action cannot be added without
// extending the evaluator's switches.
type Action int

const (
	ActionSendMessage Action = iota
	ActionUploadFile
	ActionAddReaction
	ActionStartTyping
	ActionJoinVoice
	ActionJoinVideo
	ActionJoinRoom
	ActionLeaveRoom
	ActionInviteMember
	ActionMute
	ActionUnmute
	ActionWarn
	ActionKick
	ActionBan
	ActionUnban
	ActionPromote
	ActionDemote
	ActionUpdateSettings
	ActionDeleteRoom
	ActionViewAnalytics
)

func (a Action) String() string {
	switch a {
	case ActionSendMessage:
		return "message:send"
	case ActionUploadFile:
		return "file:upload"
	case ActionAddReaction:
		return "reaction:add"
	case ActionStartTyping:
		return "typing:start"
	case ActionJoinVoice:
		return "voice:join"
	case ActionJoinVideo:
		return "video:join"
	case ActionJoinRoom:
		return "room:join"
	case ActionLeaveRoom:
		return "room:leave"
	case ActionInviteMember:
		return "room:invite"
	case ActionMute:
		return "moderation:mute"
	case ActionUnmute:
		return "moderation:unmute"
	case ActionWarn:
		return "moderation:warn"
	case ActionKick:
		return "moderation:kick"
	case ActionBan:
		return "moderation:ban"
	case ActionUnban:
		return "moderation:unban"
	case ActionPromote:
		return "moderation:promote"
	case ActionDemote:
		return "moderation:demote"
	case ActionUpdateSettings:
		return "room:update_settings"
	case ActionDeleteRoom:
		return "room:delete"
	case ActionViewAnalytics:
		return "room:analytics"
	default:
		return "unknown"
	}
}

// muteSensitive lists the actions a muted actor loses.
func (a Action) muteSensitive() bool {
	switch a {
	case ActionSendMessage, ActionUploadFile, ActionJoinVoice, ActionJoinVideo:
		return true
	default:
		return false
	}
}

// moderation reports whether the action targets another actor's standing.
func (a Action) moderation() bool {
	switch a {
	case ActionMute, ActionUnmute, ActionWarn, ActionKick, ActionBan, ActionUnban, ActionPromote, ActionDemote:
		return true
	default:
		return false
	}
}

// management reports whether room rank can stand in for a missing global
// role grant.
func (a Action) management() bool {
	switch a {
	case ActionInviteMember, ActionMute, ActionUnmute, ActionWarn, ActionKick,
		ActionBan, ActionUnban, ActionPromote, ActionDemote,
		ActionUpdateSettings, ActionDeleteRoom, ActionViewAnalytics:
		return true
	default:
		return false
	}
}
