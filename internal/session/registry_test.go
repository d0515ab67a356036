package session

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/models"
)

type notifierStub struct {
	mu      sync.Mutex
	online  []string
	offline []string
	rooms   map[string][]string
}

func (n *notifierStub) ActorOnline(actorID string, roomIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.online = append(n.online, actorID)
}

func (n *notifierStub) ActorOffline(actorID string, roomIDs []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = append(n.offline, actorID)
	if n.rooms == nil {
		n.rooms = make(map[string][]string)
	}
	n.rooms[actorID] = roomIDs
}

func newTestRegistry(t *testing.T) (*Registry, *notifierStub) {
	t.Helper()
	notifier := &notifierStub{}
	registry := NewRegistry(config.Default().Session, notifier, nil, zerolog.Nop())
	return registry, notifier
}

func TestOpenValidatesIdentity(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Open(models.Identity{Role: models.RoleStudent})
	require.ErrorIs(t, err, ErrEmptyActorID)

	_, err = registry.Open(models.Identity{ActorID: "u1", Role: "superuser"})
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestOpenAllowsDuplicateSessions(t *testing.T) {
	registry, notifier := newTestRegistry(t)

	h1, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	h2, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)

	assert.NotEqual(t, h1.ID, h2.ID)
	assert.Equal(t, 2, registry.HandleCount("u1"))
	assert.Equal(t, []string{"u1"}, notifier.online, "online fires only for the first handle")
}

func TestOfflineFiresOncePerTransition(t *testing.T) {
	registry, notifier := newTestRegistry(t)

	h1, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleStudent, RoomIDs: []string{"r1"}})
	require.NoError(t, err)
	h2, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleStudent, RoomIDs: []string{"r1"}})
	require.NoError(t, err)

	require.NoError(t, registry.Close(h1.ID, "client close"))
	assert.Empty(t, notifier.offline, "actor still has a live handle")
	assert.True(t, registry.IsOnline("u1"))

	require.NoError(t, registry.Close(h2.ID, "client close"))
	assert.Equal(t, []string{"u1"}, notifier.offline)
	assert.Equal(t, []string{"r1"}, notifier.rooms["u1"])
	assert.False(t, registry.IsOnline("u1"))
}

func TestCloseUnknownHandle(t *testing.T) {
	registry, _ := newTestRegistry(t)
	require.ErrorIs(t, registry.Close("missing", "whatever"), ErrHandleNotFound)
}

func TestTrackAndUntrackRoom(t *testing.T) {
	registry, _ := newTestRegistry(t)

	handle, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleTeacher})
	require.NoError(t, err)

	registry.TrackRoom(handle.ID, "r1")
	got, ok := registry.Get(handle.ID)
	require.True(t, ok)
	assert.Contains(t, got.RoomIDs, "r1")

	registry.UntrackRoom(handle.ID, "r1")
	got, _ = registry.Get(handle.ID)
	assert.NotContains(t, got.RoomIDs, "r1")
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	registry, _ := newTestRegistry(t)

	handle, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleStudent, RoomIDs: []string{"r1"}})
	require.NoError(t, err)

	before, ok := registry.Get(handle.ID)
	require.True(t, ok)
	registry.TrackRoom(handle.ID, "r2")

	assert.ElementsMatch(t, []string{"r1"}, before.RoomIDs, "earlier view keeps its room list")
	after, _ := registry.Get(handle.ID)
	assert.ElementsMatch(t, []string{"r1", "r2"}, after.RoomIDs)

	_, ok = registry.Get("missing")
	assert.False(t, ok)
}

func TestReapIdle(t *testing.T) {
	registry, notifier := newTestRegistry(t)

	_, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)

	assert.Zero(t, registry.ReapIdle(time.Now()), "fresh handle survives")

	reaped := registry.ReapIdle(time.Now().Add(2 * registry.cfg.IdleGrace))
	assert.Equal(t, 1, reaped)
	assert.False(t, registry.IsOnline("u1"))
	assert.Equal(t, []string{"u1"}, notifier.offline)
}

func TestStats(t *testing.T) {
	registry, _ := newTestRegistry(t)

	_, err := registry.Open(models.Identity{ActorID: "u1", Role: models.RoleStudent})
	require.NoError(t, err)
	_, err = registry.Open(models.Identity{ActorID: "u2", Role: models.RoleTeacher})
	require.NoError(t, err)

	stats := registry.Stats()
	assert.Equal(t, 2, stats.Handles)
	assert.Equal(t, 2, stats.UniqueActors)
	assert.Equal(t, 1, stats.ByRole["teacher"])
}
