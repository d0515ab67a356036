package permissions

import (
	"github.com/lvdund/agent-english-teacher/internal/models"
)

// Subject is an actor as the evaluator sees them: global role plus rank in
// the room under evaluation.
type Subject struct {
	ID       string
	Role     models.Role
	RoomRole models.RoomRole
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func Allow() Decision {
	return Decision{Allowed: true}
}

func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// StatusSource supplies lazily-expired moderation state.
type StatusSource interface {
	StatusOf(roomID, actorID string) models.ModerationStatus
}

// Evaluator decides (actor, room, action, target) -> allow/deny. It holds
// no mutable state of its own; every decision derives from role, room rank
// and the moderation store.
type Evaluator struct {
	status StatusSource
}

func NewEvaluator(status StatusSource) *Evaluator {
	return &Evaluator{status: status}
}

// Decide applies the decision ladder: ban, mute, global role table with
// room-rank overrides, rank comparison for moderation targets, and the
// owner/admin gate on settings and deletion.
func (e *Evaluator) Decide(roomID string, actor Subject, action Action, target *Subject) Decision {
	status := models.ModerationStatus{}
	if e.status != nil {
		status = e.status.StatusOf(roomID, actor.ID)
	}

	// A banned actor may only leave.
	if status.IsBanned && action != ActionLeaveRoom {
		return Deny("banned")
	}

	if status.IsMuted && action.muteSensitive() {
		return Deny("muted")
	}

	if !roleAllowed(action, actor.Role) {
		if !(action.management() && e.hasRoomAuthority(actor)) {
			return Deny("insufficient role")
		}
	}

	if action.moderation() {
		if decision := e.checkModeration(actor, action, target); !decision.Allowed {
			return decision
		}
	}

	switch action {
	case ActionUpdateSettings, ActionDeleteRoom:
		if actor.Role != models.RoleAdmin && actor.RoomRole != models.RoomRoleOwner {
			return Deny("owner or admin required")
		}
	}

	return Allow()
}

func (e *Evaluator) checkModeration(actor Subject, action Action, target *Subject) Decision {
	if !e.hasRoomAuthority(actor) {
		return Deny("insufficient privileges")
	}
	if target == nil {
		return Allow()
	}
	if target.ID == actor.ID {
		// Includes unmute/unban: nobody lifts their own restriction.
		return Deny("cannot target yourself")
	}

	if actor.Role == models.RoleAdmin || actor.RoomRole == models.RoomRoleOwner {
		return Allow()
	}

	// Rank comparison always favors the higher rank; equal rank
	// (moderator vs moderator) is denied for non-owners.
	if rankOf(target.RoomRole) >= rankOf(actor.RoomRole) {
		return Deny("target outranks actor")
	}
	return Allow()
}

func (e *Evaluator) hasRoomAuthority(actor Subject) bool {
	return actor.Role == models.RoleAdmin ||
		actor.RoomRole == models.RoomRoleOwner ||
		actor.RoomRole == models.RoomRoleModerator
}

func rankOf(role models.RoomRole) int {
	switch role {
	case models.RoomRoleOwner:
		return 3
	case models.RoomRoleModerator:
		return 2
	default:
		return 1
	}
}

// roleAllowed is the global action -> allowed-roles table, expressed as an
// exhaustive switch rather than a string-keyed map so the compiler keeps it
// in sync with the Action enumeration.
func roleAllowed(action Action, role models.Role) bool {
	switch action {
	case ActionSendMessage, ActionAddReaction, ActionStartTyping,
		ActionUploadFile, ActionJoinVoice, ActionJoinVideo,
		ActionJoinRoom, ActionLeaveRoom:
		return role == models.RoleStudent || role == models.RoleTeacher || role == models.RoleAdmin
	case ActionInviteMember, ActionMute, ActionUnmute, ActionWarn,
		ActionKick, ActionBan, ActionUnban, ActionPromote, ActionDemote,
		ActionUpdateSettings, ActionDeleteRoom, ActionViewAnalytics:
		return role == models.RoleTeacher || role == models.RoleAdmin
	default:
		return false
	}
}
