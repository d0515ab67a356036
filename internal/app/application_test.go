package app

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/models"
	"github.com/lvdund/agent-english-teacher/internal/room"
)

type connStub struct {
	mu     sync.Mutex
	id     string
	events []models.Event
}

func (c *connStub) ID() string { return c.id }

func (c *connStub) Send(event models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *connStub) Close() error { return nil }

func (c *connStub) named(name string) []models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Event
	for _, e := range c.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func newTestApp(t *testing.T) *Application {
	t.Helper()
	application := New(config.Default(), zerolog.Nop(), Options{})
	t.Cleanup(func() { application.Destroy(context.Background()) })
	return application
}

// TestClassroomLifecycle walks the whole coordination path: connect, create,
// invite, join, chat, moderate, kick, reconfigure, delete.
func TestClassroomLifecycle(t *testing.T) {
	application := newTestApp(t)

	teacherConn := &connStub{id: "ct"}
	teacher, err := application.Connect(models.Identity{ActorID: "t1", Role: models.RoleTeacher}, teacherConn)
	require.NoError(t, err)

	studentConn := &connStub{id: "cs"}
	student, err := application.Connect(models.Identity{ActorID: "s1", Role: models.RoleStudent}, studentConn)
	require.NoError(t, err)

	created, err := application.CreateRoom(teacher.ID, models.RoomDescriptor{Name: "algebra", Type: models.RoomTypeClass})
	require.NoError(t, err)

	// Private room: the student needs an invite first.
	_, err = application.JoinRoom(student.ID, created.ID)
	require.ErrorIs(t, err, room.ErrAccessDenied)

	require.NoError(t, application.InviteMember(teacher.ID, created.ID, "s1"))
	joined, err := application.JoinRoom(student.ID, created.ID)
	require.NoError(t, err)
	assert.False(t, joined.AlreadyMember)
	assert.Len(t, teacherConn.named(models.EventMemberJoined), 1)

	// A student cannot invite.
	err = application.InviteMember(student.ID, created.ID, "s2")
	require.ErrorIs(t, err, ErrForbidden)

	// Chat: the sender gets no echo, the rest of the room does.
	require.NoError(t, application.SendMessage(student.ID, created.ID, "hello"))
	assert.Len(t, teacherConn.named(models.EventMessage), 1)
	assert.Empty(t, studentConn.named(models.EventMessage))

	// Mute silences sends but leaves the membership intact.
	_, err = application.Moderate(teacher.ID, models.ModerationRequest{
		Type:     models.ModerationMute,
		RoomID:   created.ID,
		TargetID: "s1",
		Reason:   "off topic",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, studentConn.named(models.EventModeration))

	err = application.SendMessage(student.ID, created.ID, "still here?")
	require.ErrorIs(t, err, ErrForbidden)
	role, isMember := application.Rooms().RoomRoleOf(created.ID, "s1")
	assert.True(t, isMember)
	assert.Equal(t, models.RoomRoleMember, role)

	_, err = application.Moderate(teacher.ID, models.ModerationRequest{
		Type:     models.ModerationUnmute,
		RoomID:   created.ID,
		TargetID: "s1",
	})
	require.NoError(t, err)
	assert.False(t, application.Moderation().StatusOf(created.ID, "s1").IsMuted)

	// Three warnings escalate to an automatic mute.
	var outcome models.ModerationOutcome
	for i := 0; i < 3; i++ {
		outcome, err = application.Moderate(teacher.ID, models.ModerationRequest{
			Type:     models.ModerationWarn,
			RoomID:   created.ID,
			TargetID: "s1",
		})
		require.NoError(t, err)
	}
	assert.True(t, outcome.Escalated)
	assert.True(t, application.Moderation().StatusOf(created.ID, "s1").IsMuted)

	// Kick evicts the membership.
	_, err = application.Moderate(teacher.ID, models.ModerationRequest{
		Type:     models.ModerationKick,
		RoomID:   created.ID,
		TargetID: "s1",
	})
	require.NoError(t, err)
	_, isMember = application.Rooms().RoomRoleOf(created.ID, "s1")
	assert.False(t, isMember)

	// Analytics are gated on role.
	metrics, err := application.RoomMetrics(teacher.ID, created.ID)
	require.NoError(t, err)
	require.NotNil(t, metrics)
	_, err = application.RoomMetrics(student.ID, created.ID)
	require.ErrorIs(t, err, ErrForbidden)

	// The owner can switch messaging off.
	off := false
	require.NoError(t, application.UpdateRoomSettings(teacher.ID, created.ID, models.RoomSettingsPatch{AllowMessages: &off}))
	err = application.SendMessage(teacher.ID, created.ID, "anyone?")
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, application.DeleteRoom(teacher.ID, created.ID, "course over"))
	_, err = application.Rooms().GetInfo(created.ID)
	require.ErrorIs(t, err, room.ErrRoomNotFound)

	require.NoError(t, application.Disconnect(student.ID, "client close"))
	require.NoError(t, application.Disconnect(teacher.ID, "client close"))

	snapshot := application.AdminSnapshot()
	assert.Zero(t, snapshot.Sessions.Handles)
	assert.Zero(t, snapshot.Hub.Connections)
	assert.NotEmpty(t, snapshot.Recent, "moderation history survives the room")
}

func TestOperationsRequireLiveSession(t *testing.T) {
	application := newTestApp(t)

	_, err := application.JoinRoom("ghost", "r1")
	require.ErrorIs(t, err, ErrNotConnected)
	err = application.SendMessage("ghost", "r1", "hi")
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, application.Disconnect("ghost", "bye"), ErrNotConnected)
}

func TestSendMessageRequiresMembership(t *testing.T) {
	application := newTestApp(t)

	teacher, err := application.Connect(models.Identity{ActorID: "t1", Role: models.RoleTeacher}, nil)
	require.NoError(t, err)
	outsider, err := application.Connect(models.Identity{ActorID: "s1", Role: models.RoleStudent}, nil)
	require.NoError(t, err)

	created, err := application.CreateRoom(teacher.ID, models.RoomDescriptor{Name: "physics"})
	require.NoError(t, err)

	err = application.SendMessage(outsider.ID, created.ID, "let me in")
	require.ErrorIs(t, err, ErrNotMember)
}

func TestModerateRequiresTargetMembership(t *testing.T) {
	application := newTestApp(t)

	teacher, err := application.Connect(models.Identity{ActorID: "t1", Role: models.RoleTeacher}, nil)
	require.NoError(t, err)
	created, err := application.CreateRoom(teacher.ID, models.RoomDescriptor{Name: "geometry"})
	require.NoError(t, err)

	_, err = application.Moderate(teacher.ID, models.ModerationRequest{
		Type:     models.ModerationMute,
		RoomID:   created.ID,
		TargetID: "drive-by",
	})
	require.ErrorIs(t, err, ErrNotMember)
	assert.Empty(t, application.Moderation().History(created.ID, 0), "no outcome recorded for a non-member")
}

func TestCooldownRejectsRapidRepeat(t *testing.T) {
	application := newTestApp(t)

	teacher, err := application.Connect(models.Identity{ActorID: "t1", Role: models.RoleTeacher}, nil)
	require.NoError(t, err)
	created, err := application.CreateRoom(teacher.ID, models.RoomDescriptor{
		Name:       "open floor",
		Visibility: models.VisibilityPublic,
	})
	require.NoError(t, err)

	student, err := application.Connect(models.Identity{ActorID: "s1", Role: models.RoleStudent}, nil)
	require.NoError(t, err)
	_, err = application.JoinRoom(student.ID, created.ID)
	require.NoError(t, err)

	err = application.SendMessage(student.ID, created.ID, "same thing")
	require.NoError(t, err)
	err = application.SendMessage(student.ID, created.ID, "same thing")
	require.ErrorIs(t, err, ErrMessageDenied, "cooldown rejects the immediate repeat")
}

func TestDeleteRoomForgetsActivity(t *testing.T) {
	application := newTestApp(t)

	teacher, err := application.Connect(models.Identity{ActorID: "t1", Role: models.RoleTeacher}, nil)
	require.NoError(t, err)
	created, err := application.CreateRoom(teacher.ID, models.RoomDescriptor{Name: "history"})
	require.NoError(t, err)
	require.NoError(t, application.SendMessage(teacher.ID, created.ID, "welcome"))

	require.NoError(t, application.DeleteRoom(teacher.ID, created.ID, "done"))
	assert.Zero(t, application.Activity().Stats().Rooms)
}
