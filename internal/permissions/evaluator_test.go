package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lvdund/agent-english-teacher/internal/models"
)

type statusStub struct {
	statuses map[string]models.ModerationStatus
}

func (s *statusStub) StatusOf(roomID, actorID string) models.ModerationStatus {
	return s.statuses[roomID+"/"+actorID]
}

func evaluatorWith(statuses map[string]models.ModerationStatus) *Evaluator {
	return NewEvaluator(&statusStub{statuses: statuses})
}

func TestBannedActorMayOnlyLeave(t *testing.T) {
	eval := evaluatorWith(map[string]models.ModerationStatus{
		"r1/u1": {IsBanned: true},
	})
	actor := Subject{ID: "u1", Role: models.RoleStudent, RoomRole: models.RoomRoleMember}

	assert.False(t, eval.Decide("r1", actor, ActionSendMessage, nil).Allowed)
	assert.False(t, eval.Decide("r1", actor, ActionJoinRoom, nil).Allowed)
	assert.False(t, eval.Decide("r1", actor, ActionStartTyping, nil).Allowed)
	assert.True(t, eval.Decide("r1", actor, ActionLeaveRoom, nil).Allowed)
}

func TestMutedActorLosesOnlyMuteSensitiveActions(t *testing.T) {
	eval := evaluatorWith(map[string]models.ModerationStatus{
		"r1/u1": {IsMuted: true},
	})
	actor := Subject{ID: "u1", Role: models.RoleStudent, RoomRole: models.RoomRoleMember}

	decision := eval.Decide("r1", actor, ActionSendMessage, nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "muted", decision.Reason)
	assert.False(t, eval.Decide("r1", actor, ActionUploadFile, nil).Allowed)
	assert.False(t, eval.Decide("r1", actor, ActionJoinVoice, nil).Allowed)

	assert.True(t, eval.Decide("r1", actor, ActionAddReaction, nil).Allowed)
	assert.True(t, eval.Decide("r1", actor, ActionStartTyping, nil).Allowed)
	assert.True(t, eval.Decide("r1", actor, ActionLeaveRoom, nil).Allowed)
}

func TestStudentCannotModerate(t *testing.T) {
	eval := evaluatorWith(nil)
	student := Subject{ID: "u1", Role: models.RoleStudent, RoomRole: models.RoomRoleMember}
	target := &Subject{ID: "u2", RoomRole: models.RoomRoleMember}

	assert.False(t, eval.Decide("r1", student, ActionMute, target).Allowed)
	assert.False(t, eval.Decide("r1", student, ActionKick, target).Allowed)
	assert.False(t, eval.Decide("r1", student, ActionViewAnalytics, nil).Allowed)
}

func TestRoomRankSubstitutesForGlobalRole(t *testing.T) {
	eval := evaluatorWith(nil)
	// A student promoted to room moderator gains the management actions in
	// that room.
	studentMod := Subject{ID: "u1", Role: models.RoleStudent, RoomRole: models.RoomRoleModerator}
	target := &Subject{ID: "u2", RoomRole: models.RoomRoleMember}

	assert.True(t, eval.Decide("r1", studentMod, ActionMute, target).Allowed)
	assert.True(t, eval.Decide("r1", studentMod, ActionWarn, target).Allowed)
	assert.True(t, eval.Decide("r1", studentMod, ActionViewAnalytics, nil).Allowed)

	// Rank never substitutes for basic actions or non-management ones.
	assert.False(t, eval.Decide("r1", Subject{ID: "u3", Role: "unknown"}, ActionSendMessage, nil).Allowed)
}

func TestRankComparison(t *testing.T) {
	eval := evaluatorWith(nil)
	moderator := Subject{ID: "m1", Role: models.RoleTeacher, RoomRole: models.RoomRoleModerator}
	owner := Subject{ID: "o1", Role: models.RoleTeacher, RoomRole: models.RoomRoleOwner}
	admin := Subject{ID: "a1", Role: models.RoleAdmin, RoomRole: models.RoomRoleMember}

	peerMod := &Subject{ID: "m2", RoomRole: models.RoomRoleModerator}
	member := &Subject{ID: "u2", RoomRole: models.RoomRoleMember}
	roomOwner := &Subject{ID: "o1", RoomRole: models.RoomRoleOwner}

	decision := eval.Decide("r1", moderator, ActionMute, peerMod)
	assert.False(t, decision.Allowed, "equal rank is denied for non-owners")
	assert.Equal(t, "target outranks actor", decision.Reason)
	assert.False(t, eval.Decide("r1", moderator, ActionKick, roomOwner).Allowed)
	assert.True(t, eval.Decide("r1", moderator, ActionMute, member).Allowed)

	assert.True(t, eval.Decide("r1", owner, ActionMute, peerMod).Allowed)
	assert.True(t, eval.Decide("r1", admin, ActionBan, peerMod).Allowed)
}

func TestSelfTargetDenied(t *testing.T) {
	eval := evaluatorWith(nil)
	owner := Subject{ID: "o1", Role: models.RoleTeacher, RoomRole: models.RoomRoleOwner}

	decision := eval.Decide("r1", owner, ActionUnmute, &Subject{ID: "o1", RoomRole: models.RoomRoleOwner})
	assert.False(t, decision.Allowed)
	assert.Equal(t, "cannot target yourself", decision.Reason)
}

func TestSettingsAndDeleteRequireOwnerOrAdmin(t *testing.T) {
	eval := evaluatorWith(nil)
	teacherMod := Subject{ID: "t1", Role: models.RoleTeacher, RoomRole: models.RoomRoleModerator}
	owner := Subject{ID: "o1", Role: models.RoleTeacher, RoomRole: models.RoomRoleOwner}
	admin := Subject{ID: "a1", Role: models.RoleAdmin}

	decision := eval.Decide("r1", teacherMod, ActionUpdateSettings, nil)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "owner or admin required", decision.Reason)
	assert.False(t, eval.Decide("r1", teacherMod, ActionDeleteRoom, nil).Allowed)

	assert.True(t, eval.Decide("r1", owner, ActionUpdateSettings, nil).Allowed)
	assert.True(t, eval.Decide("r1", admin, ActionDeleteRoom, nil).Allowed)
}

func TestActionStrings(t *testing.T) {
	assert.Equal(t, "message:send", ActionSendMessage.String())
	assert.Equal(t, "moderation:kick", ActionKick.String())
	assert.Equal(t, "unknown", Action(99).String())
}
