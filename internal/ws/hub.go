package ws

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/models"
	"github.com/lvdund/agent-english-teacher/internal/observability"
)

// Sender is one attached connection. The hub only needs to enqueue events
// and drop the connection when its transport dies.
type Sender interface {
	ID() string
	Send(event models.Event) error
	Close() error
}

// Hub maintains active connections and their room subscriptions, and fans
// room events out to them. Delivery is at-most-once per currently-joined
// connection: a connection joining after Emit returns sees nothing.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]Sender
	connActor map[string]string
	roomConns map[string]map[string]struct{}
	actorConn map[string]map[string]struct{}
	log       zerolog.Logger
	now       func() time.Time
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		conns:     make(map[string]Sender),
		connActor: make(map[string]string),
		roomConns: make(map[string]map[string]struct{}),
		actorConn: make(map[string]map[string]struct{}),
		log:       log.With().Str("component", "hub").Logger(),
		now:       time.Now,
	}
}

// Add attaches a connection for an actor.
func (h *Hub) Add(conn Sender, actorID string) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.connActor[conn.ID()] = actorID
	conns, ok := h.actorConn[actorID]
	if !ok {
		conns = make(map[string]struct{})
		h.actorConn[actorID] = conns
	}
	conns[conn.ID()] = struct{}{}
	h.mu.Unlock()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
}

// Remove detaches a connection from every room it joined.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	conn, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)

	actorID := h.connActor[connID]
	delete(h.connActor, connID)
	if conns, ok := h.actorConn[actorID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.actorConn, actorID)
		}
	}
	for roomID, members := range h.roomConns {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.roomConns, roomID)
		}
	}
	h.mu.Unlock()

	_ = conn.Close()
	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
}

// JoinRoom subscribes a connection to a room's event stream.
func (h *Hub) JoinRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return
	}
	members, ok := h.roomConns[roomID]
	if !ok {
		members = make(map[string]struct{})
		h.roomConns[roomID] = members
	}
	members[connID] = struct{}{}
}

// LeaveRoom unsubscribes a connection from a room's event stream.
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.roomConns[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.roomConns, roomID)
		}
	}
}

// Emit fans an event out to every connection currently joined to the room.
// excludeConnID suppresses the echo to the originating connection, whose
// caller already got a synchronous acknowledgment. Write failures close and
// remove the connection.
func (h *Hub) Emit(roomID, eventName string, payload any, excludeConnID string) {
	event := models.Event{
		ID:        ulid.Make().String(),
		Name:      eventName,
		RoomID:    roomID,
		Payload:   payload,
		EmittedAt: h.now(),
	}

	h.mu.RLock()
	targets := make([]Sender, 0, len(h.roomConns[roomID]))
	for connID := range h.roomConns[roomID] {
		if connID == excludeConnID {
			continue
		}
		if conn, ok := h.conns[connID]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(event); err != nil {
			h.log.Warn().Err(err).Str("conn_id", conn.ID()).Str("event", eventName).Msg("websocket write error")
			h.Remove(conn.ID())
			observability.IncWSEvent("ws_error")
		}
	}
	observability.IncBroadcast(eventName, len(targets))
}

// EmitToActor delivers an event to every connection of one actor.
func (h *Hub) EmitToActor(actorID, eventName string, payload any) {
	event := models.Event{
		ID:        ulid.Make().String(),
		Name:      eventName,
		Payload:   payload,
		EmittedAt: h.now(),
	}

	h.mu.RLock()
	targets := make([]Sender, 0, len(h.actorConn[actorID]))
	for connID := range h.actorConn[actorID] {
		if conn, ok := h.conns[connID]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Send(event); err != nil {
			h.log.Warn().Err(err).Str("conn_id", conn.ID()).Str("event", eventName).Msg("websocket write error")
			h.Remove(conn.ID())
			observability.IncWSEvent("ws_error")
		}
	}
}

// DropRoom clears every subscription to a room, e.g. after deletion. The
// connections themselves stay attached.
func (h *Hub) DropRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.roomConns, roomID)
}

// ConnectionsIn reports how many connections are joined to a room.
func (h *Hub) ConnectionsIn(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roomConns[roomID])
}

// Stats is the read-only projection for the admin surface.
type Stats struct {
	Connections int `json:"connections"`
	Actors      int `json:"actors"`
	Rooms       int `json:"rooms"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		Connections: len(h.conns),
		Actors:      len(h.actorConn),
		Rooms:       len(h.roomConns),
	}
}
