package ws

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdund/agent-english-teacher/internal/models"
)

type senderStub struct {
	mu     sync.Mutex
	id     string
	events []models.Event
	fail   bool
	closed bool
}

func (s *senderStub) ID() string { return s.id }

func (s *senderStub) Send(event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken pipe")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *senderStub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *senderStub) received() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

func TestEmitReachesJoinedConnectionsOnly(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	in := &senderStub{id: "c1"}
	out := &senderStub{id: "c2"}
	hub.Add(in, "u1")
	hub.Add(out, "u2")
	hub.JoinRoom("c1", "r1")

	hub.Emit("r1", models.EventMessage, map[string]any{"content": "hi"}, "")

	require.Len(t, in.received(), 1)
	assert.Equal(t, models.EventMessage, in.received()[0].Name)
	assert.Equal(t, "r1", in.received()[0].RoomID)
	assert.NotEmpty(t, in.received()[0].ID)
	assert.Empty(t, out.received())
}

func TestEmitExcludesOriginatingConnection(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sender := &senderStub{id: "c1"}
	other := &senderStub{id: "c2"}
	hub.Add(sender, "u1")
	hub.Add(other, "u2")
	hub.JoinRoom("c1", "r1")
	hub.JoinRoom("c2", "r1")

	hub.Emit("r1", models.EventMessage, nil, "c1")

	assert.Empty(t, sender.received(), "no echo to the sender")
	assert.Len(t, other.received(), 1)
}

func TestEmitEvictsOnWriteError(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	broken := &senderStub{id: "c1", fail: true}
	hub.Add(broken, "u1")
	hub.JoinRoom("c1", "r1")

	hub.Emit("r1", models.EventMessage, nil, "")

	assert.True(t, broken.closed)
	assert.Zero(t, hub.Stats().Connections)
	assert.Zero(t, hub.ConnectionsIn("r1"))
}

func TestEmitToActorHitsEveryDevice(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	phone := &senderStub{id: "c1"}
	laptop := &senderStub{id: "c2"}
	other := &senderStub{id: "c3"}
	hub.Add(phone, "u1")
	hub.Add(laptop, "u1")
	hub.Add(other, "u2")

	hub.EmitToActor("u1", models.EventModeration, nil)

	assert.Len(t, phone.received(), 1)
	assert.Len(t, laptop.received(), 1)
	assert.Empty(t, other.received())
}

func TestRemoveClearsSubscriptions(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := &senderStub{id: "c1"}
	hub.Add(conn, "u1")
	hub.JoinRoom("c1", "r1")
	hub.JoinRoom("c1", "r2")

	hub.Remove("c1")

	assert.True(t, conn.closed)
	stats := hub.Stats()
	assert.Zero(t, stats.Connections)
	assert.Zero(t, stats.Actors)
	assert.Zero(t, stats.Rooms)

	// Removing twice is harmless.
	hub.Remove("c1")
}

func TestDropRoomKeepsConnections(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := &senderStub{id: "c1"}
	hub.Add(conn, "u1")
	hub.JoinRoom("c1", "r1")

	hub.DropRoom("r1")

	assert.Zero(t, hub.ConnectionsIn("r1"))
	assert.Equal(t, 1, hub.Stats().Connections)

	hub.Emit("r1", models.EventMessage, nil, "")
	assert.Empty(t, conn.received())
}

func TestJoinRoomUnknownConnection(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.JoinRoom("ghost", "r1")
	assert.Zero(t, hub.ConnectionsIn("r1"))
}
