package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/lvdund/agent-english-teacher/internal/cache"
	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/models"
)

// PresenceNotifier receives actor online/offline transitions. Offline fires
// exactly once per transition, not once per closed handle.
type PresenceNotifier interface {
	ActorOnline(actorID string, roomIDs []string)
	ActorOffline(actorID string, roomIDs []string)
}

// Handle is one live connection for an actor. An actor may hold several
// concurrent handles (multi-device).
type Handle struct {
	ID           string
	ActorID      string
	Role         models.Role
	Rooms        map[string]struct{}
	Addr         string
	Client       string
	ConnectedAt  time.Time
	LastActivity time.Time
}

func (h *Handle) snapshot() models.SessionSnapshot {
	rooms := make([]string, 0, len(h.Rooms))
	for id := range h.Rooms {
		rooms = append(rooms, id)
	}
	return models.SessionSnapshot{
		HandleID:     h.ID,
		ActorID:      h.ActorID,
		Role:         h.Role,
		RoomIDs:      rooms,
		Addr:         h.Addr,
		Client:       h.Client,
		ConnectedAt:  h.ConnectedAt,
		LastActivity: h.LastActivity,
	}
}

// Registry is the source of truth for which actors are currently connected.
type Registry struct {
	mu       sync.RWMutex
	handles  map[string]*Handle
	byActor  map[string]map[string]*Handle
	presence PresenceNotifier
	warm     *cache.Warm
	cfg      config.SessionConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewRegistry(cfg config.SessionConfig, presence PresenceNotifier, warm *cache.Warm, log zerolog.Logger) *Registry {
	return &Registry{
		handles:  make(map[string]*Handle),
		byActor:  make(map[string]map[string]*Handle),
		presence: presence,
		warm:     warm,
		cfg:      cfg,
		log:      log.With().Str("component", "session").Logger(),
		now:      time.Now,
	}
}

// Open registers a new connection handle for a verified identity. Duplicate
// sessions per actor are always permitted; each device gets its own handle.
func (r *Registry) Open(identity models.Identity) (*Handle, error) {
	if identity.ActorID == "" {
		return nil, ErrEmptyActorID
	}
	switch identity.Role {
	case models.RoleStudent, models.RoleTeacher, models.RoleAdmin:
	default:
		return nil, ErrInvalidRole
	}

	now := r.now()
	handle := &Handle{
		ID:           ksuid.New().String(),
		ActorID:      identity.ActorID,
		Role:         identity.Role,
		Rooms:        make(map[string]struct{}, len(identity.RoomIDs)),
		Addr:         identity.Addr,
		Client:       identity.Client,
		ConnectedAt:  now,
		LastActivity: now,
	}
	for _, roomID := range identity.RoomIDs {
		handle.Rooms[roomID] = struct{}{}
	}

	r.mu.Lock()
	r.handles[handle.ID] = handle
	actorHandles, ok := r.byActor[identity.ActorID]
	if !ok {
		actorHandles = make(map[string]*Handle)
		r.byActor[identity.ActorID] = actorHandles
	}
	firstHandle := len(actorHandles) == 0
	actorHandles[handle.ID] = handle
	snap := handle.snapshot()
	r.mu.Unlock()

	go r.warm.StoreSession(context.Background(), snap)

	if firstHandle && r.presence != nil {
		r.presence.ActorOnline(identity.ActorID, identity.RoomIDs)
	}

	r.log.Debug().Str("actor_id", identity.ActorID).Str("handle_id", handle.ID).Msg("session opened")
	return handle, nil
}

// Touch refreshes the handle's last-activity timestamp. Unknown handles are
// ignored; a touch never fails.
func (r *Registry) Touch(handleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[handleID]; ok {
		handle.LastActivity = r.now()
	}
}

// TrackRoom records that the handle's connection joined a room.
func (r *Registry) TrackRoom(handleID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[handleID]; ok {
		handle.Rooms[roomID] = struct{}{}
		handle.LastActivity = r.now()
	}
}

// UntrackRoom records that the handle's connection left a room.
func (r *Registry) UntrackRoom(handleID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handle, ok := r.handles[handleID]; ok {
		delete(handle.Rooms, roomID)
		handle.LastActivity = r.now()
	}
}

// Close removes the handle. When it was the actor's last live handle, the
// actor transitions to offline and the presence notifier fires once.
func (r *Registry) Close(handleID, reason string) error {
	r.mu.Lock()
	handle, ok := r.handles[handleID]
	if !ok {
		r.mu.Unlock()
		return ErrHandleNotFound
	}
	delete(r.handles, handleID)

	actorHandles := r.byActor[handle.ActorID]
	delete(actorHandles, handleID)

	var offlineRooms []string
	wentOffline := false
	if len(actorHandles) == 0 {
		delete(r.byActor, handle.ActorID)
		wentOffline = true
		seen := make(map[string]struct{})
		for roomID := range handle.Rooms {
			if _, dup := seen[roomID]; !dup {
				seen[roomID] = struct{}{}
				offlineRooms = append(offlineRooms, roomID)
			}
		}
	}
	r.mu.Unlock()

	go r.warm.DropSession(context.Background(), handleID)

	if wentOffline && r.presence != nil {
		r.presence.ActorOffline(handle.ActorID, offlineRooms)
	}

	r.log.Debug().
		Str("actor_id", handle.ActorID).
		Str("handle_id", handleID).
		Str("reason", reason).
		Bool("went_offline", wentOffline).
		Msg("session closed")
	return nil
}

// Get returns a point-in-time copy of the handle. The live handle never
// leaves the registry's lock.
func (r *Registry) Get(handleID string) (models.SessionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[handleID]
	if !ok {
		return models.SessionSnapshot{}, false
	}
	return handle.snapshot(), true
}

func (r *Registry) IsOnline(actorID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byActor[actorID]) > 0
}

func (r *Registry) HandleCount(actorID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byActor[actorID])
}

// ReapIdle closes handles silent for longer than the idle grace period and
// returns how many were removed. Disconnect detection marks last-activity;
// removal only happens here, so brief network drops survive.
func (r *Registry) ReapIdle(now time.Time) int {
	r.mu.RLock()
	var stale []string
	for id, handle := range r.handles {
		if now.Sub(handle.LastActivity) > r.cfg.IdleGrace {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		_ = r.Close(id, "idle")
	}
	if len(stale) > 0 {
		r.log.Info().Int("reaped", len(stale)).Msg("idle sessions reaped")
	}
	return len(stale)
}

// Stats is the read-only projection for the admin surface.
type Stats struct {
	Handles      int            `json:"handles"`
	UniqueActors int            `json:"unique_actors"`
	ByRole       map[string]int `json:"by_role"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byRole := make(map[string]int)
	for _, handle := range r.handles {
		byRole[string(handle.Role)]++
	}
	return Stats{
		Handles:      len(r.handles),
		UniqueActors: len(r.byActor),
		ByRole:       byRole,
	}
}
