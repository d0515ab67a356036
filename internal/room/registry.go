package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/cache"
	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/models"
	"github.com/lvdund/agent-english-teacher/internal/observability"
)

// Broadcaster fans room events out to currently-joined connections.
type Broadcaster interface {
	Emit(roomID, event string, payload any, excludeConnID string)
}

// Recorder feeds the activity aggregator.
type Recorder interface {
	Record(roomID, actorID string, event models.ActivityType)
}

// Hydrator loads persisted rooms and memberships at startup.
type Hydrator interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListMemberships(ctx context.Context, roomID string) ([]models.Membership, error)
}

type roomState struct {
	room       models.Room
	members    map[string]*models.Membership
	moderators map[string]struct{}
	invites    map[string]struct{}
}

// Registry is the sole mutator of room existence and membership.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*roomState
	byActor     map[string]map[string]struct{}
	broadcaster Broadcaster
	recorder    Recorder
	warm        *cache.Warm
	cfg         config.RoomConfig
	log         zerolog.Logger
	now         func() time.Time
}

func NewRegistry(cfg config.RoomConfig, broadcaster Broadcaster, recorder Recorder, warm *cache.Warm, log zerolog.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]*roomState),
		byActor:     make(map[string]map[string]struct{}),
		broadcaster: broadcaster,
		recorder:    recorder,
		warm:        warm,
		cfg:         cfg,
		log:         log.With().Str("component", "room").Logger(),
		now:         time.Now,
	}
}

// Hydrate loads rooms and memberships from the backing store. A store
// failure is logged and treated as a cold start, never as a hard failure.
func (r *Registry) Hydrate(ctx context.Context, source Hydrator) {
	if source == nil {
		return
	}
	ctx, span := observability.Tracer().Start(ctx, "room.hydrate")
	defer span.End()

	rooms, err := source.ListRooms(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("room hydration failed, starting cold")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range rooms {
		state := &roomState{
			room:       room,
			members:    make(map[string]*models.Membership),
			moderators: make(map[string]struct{}),
			invites:    make(map[string]struct{}),
		}
		memberships, err := source.ListMemberships(ctx, room.ID)
		if err != nil {
			r.log.Warn().Err(err).Str("room_id", room.ID).Msg("membership hydration failed")
		}
		for i := range memberships {
			m := memberships[i]
			state.members[m.ActorID] = &m
			if m.Role == models.RoomRoleModerator || m.Role == models.RoomRoleOwner {
				state.moderators[m.ActorID] = struct{}{}
			}
			r.indexActorLocked(m.ActorID, room.ID)
		}
		r.rooms[room.ID] = state
		observability.SetRoomMembers(room.ID, len(state.members))
	}
	observability.SetRoomsActive(len(r.rooms))
	r.log.Info().Int("rooms", len(rooms)).Msg("rooms hydrated")
}

// Create registers a new room with the owner as sole initial member and
// moderator.
func (r *Registry) Create(ownerID string, desc models.RoomDescriptor) (models.Room, error) {
	if desc.Name == "" || ownerID == "" {
		return models.Room{}, ErrInvalidDescriptor
	}

	now := r.now()
	settings := desc.Settings
	if settings == (models.RoomSettings{}) {
		settings = models.DefaultRoomSettings()
	}
	roomType := desc.Type
	if roomType == "" {
		roomType = models.RoomTypeGroup
	}
	visibility := desc.Visibility
	if visibility == "" {
		visibility = models.VisibilityPrivate
	}
	maxMembers := desc.MaxMembers
	if maxMembers == 0 {
		maxMembers = r.cfg.DefaultMaxMembers
	}

	room := models.Room{
		ID:           uuid.New().String(),
		Type:         roomType,
		Name:         desc.Name,
		Description:  desc.Description,
		OwnerID:      ownerID,
		Visibility:   visibility,
		MaxMembers:   maxMembers,
		Settings:     settings,
		Metadata:     models.RoomMetadata{Tags: desc.Tags, PeakMembers: 1},
		CreatedAt:    now,
		LastActivity: now,
	}

	state := &roomState{
		room: room,
		members: map[string]*models.Membership{
			ownerID: {
				RoomID:       room.ID,
				ActorID:      ownerID,
				Role:         models.RoomRoleOwner,
				JoinedAt:     now,
				LastActivity: now,
			},
		},
		moderators: map[string]struct{}{ownerID: {}},
		invites:    make(map[string]struct{}),
	}

	r.mu.Lock()
	r.rooms[room.ID] = state
	r.indexActorLocked(ownerID, room.ID)
	total := len(r.rooms)
	r.mu.Unlock()

	observability.SetRoomMembers(room.ID, 1)
	observability.SetRoomsActive(total)
	go r.warm.StoreRoom(context.Background(), room)

	r.log.Info().Str("room_id", room.ID).Str("owner_id", ownerID).Str("name", room.Name).Msg("room created")
	return room, nil
}

// JoinOptions tunes a join request.
type JoinOptions struct {
	// ActorRole is the joining actor's global role; admins bypass
	// capacity and access checks.
	ActorRole models.Role
	// DesiredRole is honored only when SkipAccessCheck is set by a
	// privileged caller.
	DesiredRole models.RoomRole
	// SkipAccessCheck bypasses the visibility/invite gate.
	SkipAccessCheck bool
	// ConnID, when set, is excluded from the join broadcast so the
	// joining connection does not receive its own echo.
	ConnID string
}

// JoinResult reports the resulting membership state.
type JoinResult struct {
	Room          models.Room
	Membership    models.Membership
	AlreadyMember bool
}

// Join adds the actor to the room. Capacity is checked strictly before any
// mutation; the room owner, its moderators and global admins may join a
// full room. Joining a room the actor already belongs to is a no-op that
// produces no second broadcast.
func (r *Registry) Join(actorID, roomID string, opts JoinOptions) (JoinResult, error) {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return JoinResult{}, ErrRoomNotFound
	}

	if existing, ok := state.members[actorID]; ok {
		result := JoinResult{Room: state.room, Membership: *existing, AlreadyMember: true}
		r.mu.Unlock()
		return result, nil
	}

	privileged := actorID == state.room.OwnerID || opts.ActorRole == models.RoleAdmin
	if _, isMod := state.moderators[actorID]; isMod {
		privileged = true
	}

	if state.room.MaxMembers > 0 && len(state.members) >= state.room.MaxMembers && !privileged {
		r.mu.Unlock()
		return JoinResult{}, ErrCapacityExceeded
	}

	if !opts.SkipAccessCheck && !privileged && state.room.Visibility != models.VisibilityPublic {
		if _, invited := state.invites[actorID]; !invited {
			r.mu.Unlock()
			return JoinResult{}, ErrAccessDenied
		}
	}
	delete(state.invites, actorID)

	now := r.now()
	role := models.RoomRoleMember
	if opts.SkipAccessCheck && opts.DesiredRole != "" {
		role = opts.DesiredRole
	}
	if actorID == state.room.OwnerID {
		role = models.RoomRoleOwner
	}
	membership := &models.Membership{
		RoomID:       roomID,
		ActorID:      actorID,
		Role:         role,
		JoinedAt:     now,
		LastActivity: now,
	}
	state.members[actorID] = membership
	if role == models.RoomRoleModerator || role == models.RoomRoleOwner {
		state.moderators[actorID] = struct{}{}
	}
	if len(state.members) > state.room.Metadata.PeakMembers {
		state.room.Metadata.PeakMembers = len(state.members)
	}
	state.room.LastActivity = now
	r.indexActorLocked(actorID, roomID)
	memberCount := len(state.members)
	result := JoinResult{Room: state.room, Membership: *membership}
	r.mu.Unlock()

	observability.SetRoomMembers(roomID, memberCount)
	if r.recorder != nil {
		r.recorder.Record(roomID, actorID, models.ActivityJoin)
	}
	if r.broadcaster != nil {
		r.broadcaster.Emit(roomID, models.EventMemberJoined, map[string]any{
			"actor_id": actorID,
			"role":     string(role),
			"members":  memberCount,
		}, opts.ConnID)
	}

	r.log.Debug().Str("room_id", roomID).Str("actor_id", actorID).Msg("member joined")
	return result, nil
}

// LeaveResult distinguishes a real departure from an idempotent no-op.
type LeaveResult struct {
	WasMember bool
}

// Leave removes the actor's membership. Leaving a room the actor is not in
// reports success with no-op semantics.
func (r *Registry) Leave(actorID, roomID, reason string) (LeaveResult, error) {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return LeaveResult{}, ErrRoomNotFound
	}
	if _, ok := state.members[actorID]; !ok {
		r.mu.Unlock()
		return LeaveResult{WasMember: false}, nil
	}

	delete(state.members, actorID)
	delete(state.moderators, actorID)
	state.room.LastActivity = r.now()
	r.unindexActorLocked(actorID, roomID)
	memberCount := len(state.members)
	r.mu.Unlock()

	observability.SetRoomMembers(roomID, memberCount)
	if r.recorder != nil {
		r.recorder.Record(roomID, actorID, models.ActivityLeave)
	}
	if r.broadcaster != nil {
		r.broadcaster.Emit(roomID, models.EventMemberLeft, map[string]any{
			"actor_id": actorID,
			"reason":   reason,
			"members":  memberCount,
		}, "")
	}

	r.log.Debug().Str("room_id", roomID).Str("actor_id", actorID).Str("reason", reason).Msg("member left")
	return LeaveResult{WasMember: true}, nil
}

// Invite grants a one-shot join permission for a private room.
func (r *Registry) Invite(roomID, actorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	state.invites[actorID] = struct{}{}
	return nil
}

// UpdateSettings merges a partial settings patch. Authorization is the
// caller's responsibility; this method only mutates.
func (r *Registry) UpdateSettings(roomID string, patch models.RoomSettingsPatch, byActorID string) (bool, error) {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return false, ErrRoomNotFound
	}

	settings := &state.room.Settings
	if patch.AllowMessages != nil {
		settings.AllowMessages = *patch.AllowMessages
	}
	if patch.AllowFileSharing != nil {
		settings.AllowFileSharing = *patch.AllowFileSharing
	}
	if patch.AllowVoice != nil {
		settings.AllowVoice = *patch.AllowVoice
	}
	if patch.AllowVideo != nil {
		settings.AllowVideo = *patch.AllowVideo
	}
	if patch.ModerationLevel != nil {
		settings.ModerationLevel = *patch.ModerationLevel
	}
	if patch.RetentionDays != nil {
		settings.RetentionDays = *patch.RetentionDays
	}
	state.room.LastActivity = r.now()
	room := state.room
	r.mu.Unlock()

	go r.warm.StoreRoom(context.Background(), room)
	if r.broadcaster != nil {
		r.broadcaster.Emit(roomID, models.EventSettingsUpdated, map[string]any{
			"by":       byActorID,
			"settings": room.Settings,
		}, "")
	}
	return true, nil
}

// SetRole changes an actor's room role. The owner's rank is immutable while
// the room exists.
func (r *Registry) SetRole(roomID, actorID string, role models.RoomRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	membership, ok := state.members[actorID]
	if !ok {
		return ErrActorNotMember
	}
	if actorID == state.room.OwnerID || role == models.RoomRoleOwner {
		return ErrOwnerImmutable
	}

	membership.Role = role
	if role == models.RoomRoleModerator {
		state.moderators[actorID] = struct{}{}
	} else {
		delete(state.moderators, actorID)
	}
	return nil
}

// SetRestrictionFlags mirrors moderation state onto the membership record
// so member listings show it without a second lookup.
func (r *Registry) SetRestrictionFlags(roomID, actorID string, muted, banned bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.rooms[roomID]; ok {
		if membership, ok := state.members[actorID]; ok {
			membership.Muted = muted
			membership.Banned = banned
		}
	}
}

// NoteMessage bumps the room's message bookkeeping after an accepted send.
func (r *Registry) NoteMessage(roomID, actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.rooms[roomID]; ok {
		state.room.Metadata.MessageCount++
		state.room.LastActivity = r.now()
		if membership, ok := state.members[actorID]; ok {
			membership.LastActivity = r.now()
		}
	}
}

// GetInfo returns the room's current state.
func (r *Registry) GetInfo(roomID string) (models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return models.Room{}, ErrRoomNotFound
	}
	return state.room, nil
}

// RoomRoleOf reports the actor's rank within the room. Non-members of an
// existing room rank as plain members for permission purposes.
func (r *Registry) RoomRoleOf(roomID, actorID string) (models.RoomRole, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	if membership, ok := state.members[actorID]; ok {
		return membership.Role, true
	}
	if _, ok := state.moderators[actorID]; ok {
		return models.RoomRoleModerator, true
	}
	return models.RoomRoleMember, false
}

// MembersOf lists current memberships.
func (r *Registry) MembersOf(roomID string) ([]models.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	members := make([]models.Membership, 0, len(state.members))
	for _, m := range state.members {
		members = append(members, *m)
	}
	return members, nil
}

// RoomsOf lists the rooms an actor currently belongs to.
func (r *Registry) RoomsOf(actorID string) []models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomIDs := r.byActor[actorID]
	rooms := make([]models.Room, 0, len(roomIDs))
	for roomID := range roomIDs {
		if state, ok := r.rooms[roomID]; ok {
			rooms = append(rooms, state.room)
		}
	}
	return rooms
}

// Delete notifies current members, clears membership state and removes the
// room. Deleting an absent room is a no-op.
func (r *Registry) Delete(roomID, reason string) {
	r.mu.Lock()
	state, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	memberIDs := make([]string, 0, len(state.members))
	for actorID := range state.members {
		memberIDs = append(memberIDs, actorID)
	}
	r.mu.Unlock()

	// Members hear about the eviction before their subscriptions vanish.
	if r.broadcaster != nil {
		r.broadcaster.Emit(roomID, models.EventRoomDeleted, map[string]any{
			"reason": reason,
		}, "")
	}

	r.mu.Lock()
	for _, actorID := range memberIDs {
		r.unindexActorLocked(actorID, roomID)
	}
	delete(r.rooms, roomID)
	total := len(r.rooms)
	r.mu.Unlock()

	observability.DropRoomMembers(roomID)
	observability.SetRoomsActive(total)
	go r.warm.DropRoom(context.Background(), roomID)

	r.log.Info().Str("room_id", roomID).Str("reason", reason).Msg("room deleted")
}

// CleanupIdle deletes rooms that have been empty and inactive beyond the
// configured idle TTL. Returns the number of rooms removed.
func (r *Registry) CleanupIdle(now time.Time) int {
	r.mu.RLock()
	var idle []string
	for roomID, state := range r.rooms {
		if len(state.members) == 0 && now.Sub(state.room.LastActivity) > r.cfg.IdleTTL {
			idle = append(idle, roomID)
		}
	}
	r.mu.RUnlock()

	for _, roomID := range idle {
		r.Delete(roomID, "idle cleanup")
	}
	return len(idle)
}

// Stats is the read-only projection for the admin surface.
type Stats struct {
	Rooms        int            `json:"rooms"`
	ByType       map[string]int `json:"by_type"`
	TotalMembers int            `json:"total_members"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := make(map[string]int)
	total := 0
	for _, state := range r.rooms {
		byType[string(state.room.Type)]++
		total += len(state.members)
	}
	return Stats{Rooms: len(r.rooms), ByType: byType, TotalMembers: total}
}

func (r *Registry) indexActorLocked(actorID, roomID string) {
	rooms, ok := r.byActor[actorID]
	if !ok {
		rooms = make(map[string]struct{})
		r.byActor[actorID] = rooms
	}
	rooms[roomID] = struct{}{}
}

func (r *Registry) unindexActorLocked(actorID, roomID string) {
	if rooms, ok := r.byActor[actorID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.byActor, actorID)
		}
	}
}
