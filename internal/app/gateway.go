package app

import (
	"context"
	"fmt"
	"time"

	"github.com/lvdund/agent-english-teacher/internal/models"
	"github.com/lvdund/agent-english-teacher/internal/moderation"
	"github.com/lvdund/agent-english-teacher/internal/observability"
	"github.com/lvdund/agent-english-teacher/internal/permissions"
	"github.com/lvdund/agent-english-teacher/internal/room"
	"github.com/lvdund/agent-english-teacher/internal/session"
	"github.com/lvdund/agent-english-teacher/internal/ws"
)

// This file is the ingress for real-time events. Every operation follows
// the same path: resolve the session handle, evaluate permissions against
// room and moderation state, mutate the owning registry, feed the activity
// aggregator, then fan the result out through the hub. In-memory mutation
// always completes before any durable-store write is enqueued.

// Connect opens a session for a verified identity and, when a transport
// connection is supplied, attaches it to the hub and subscribes it to the
// identity's rooms.
func (a *Application) Connect(identity models.Identity, conn ws.Sender) (*session.Handle, error) {
	handle, err := a.sessions.Open(identity)
	if err != nil {
		return nil, err
	}

	if conn != nil {
		a.hub.Add(conn, identity.ActorID)
		a.bindConn(handle.ID, conn.ID())
		for _, roomID := range identity.RoomIDs {
			a.hub.JoinRoom(conn.ID(), roomID)
		}

		_ = observability.PublishEvent(context.Background(), observability.RoutingWSEvents, observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_connect",
			Payload: observability.ConnPayload{
				ConnID:  conn.ID(),
				ActorID: identity.ActorID,
				Role:    string(identity.Role),
				IP:      identity.Addr,
				Client:  identity.Client,
			},
		})
	}

	return handle, nil
}

// Disconnect detaches the handle's connection and closes the session. The
// session registry decides whether this was the actor's offline transition.
func (a *Application) Disconnect(handleID, reason string) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	connID := a.unbindConn(handleID)
	if connID != "" {
		a.hub.Remove(connID)
		_ = observability.PublishEvent(context.Background(), observability.RoutingWSEvents, observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload: observability.ConnPayload{
				ConnID:     connID,
				ActorID:    handle.ActorID,
				Role:       string(handle.Role),
				DurationMS: time.Since(handle.ConnectedAt).Milliseconds(),
				Reason:     reason,
			},
		})
	}

	return a.sessions.Close(handleID, reason)
}

// CreateRoom creates a room owned by the handle's actor and subscribes the
// creating connection to it.
func (a *Application) CreateRoom(handleID string, desc models.RoomDescriptor) (models.Room, error) {
	handle, err := a.resolve(handleID)
	if err != nil {
		return models.Room{}, err
	}

	created, err := a.rooms.Create(handle.ActorID, desc)
	if err != nil {
		return models.Room{}, err
	}

	a.sessions.TrackRoom(handleID, created.ID)
	if connID := a.connFor(handleID); connID != "" {
		a.hub.JoinRoom(connID, created.ID)
	}

	a.persistRoom(created.ID)
	a.persistMembership(created.ID, handle.ActorID)
	return created, nil
}

// JoinRoom runs the full join path: permission gate, registry mutation,
// hub subscription, durable write.
func (a *Application) JoinRoom(handleID, roomID string) (room.JoinResult, error) {
	handle, err := a.resolve(handleID)
	if err != nil {
		return room.JoinResult{}, err
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionJoinRoom, nil); !decision.Allowed {
		return room.JoinResult{}, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	result, err := a.rooms.Join(handle.ActorID, roomID, room.JoinOptions{
		ActorRole: handle.Role,
		ConnID:    a.connFor(handleID),
	})
	if err != nil {
		return room.JoinResult{}, err
	}

	a.sessions.TrackRoom(handleID, roomID)
	if connID := a.connFor(handleID); connID != "" {
		a.hub.JoinRoom(connID, roomID)
	}
	if !result.AlreadyMember {
		a.persistMembership(roomID, handle.ActorID)
	}
	return result, nil
}

// LeaveRoom removes the membership; leaving a room the actor is not in is
// a reported no-op, not an error.
func (a *Application) LeaveRoom(handleID, roomID, reason string) (room.LeaveResult, error) {
	handle, err := a.resolve(handleID)
	if err != nil {
		return room.LeaveResult{}, err
	}

	result, err := a.rooms.Leave(handle.ActorID, roomID, reason)
	if err != nil {
		return room.LeaveResult{}, err
	}

	a.sessions.UntrackRoom(handleID, roomID)
	if connID := a.connFor(handleID); connID != "" {
		a.hub.LeaveRoom(connID, roomID)
	}
	if result.WasMember && a.repo != nil {
		actorID := handle.ActorID
		a.persist.Enqueue(func(ctx context.Context) error {
			return a.repo.DeleteMembership(ctx, roomID, actorID)
		})
	}
	return result, nil
}

// SendMessage screens and broadcasts one chat message. The caller's own
// connection is excluded from the fan-out; a nil return is the synchronous
// acknowledgment.
func (a *Application) SendMessage(handleID, roomID, content string) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	info, err := a.rooms.GetInfo(roomID)
	if err != nil {
		return err
	}
	if _, isMember := a.rooms.RoomRoleOf(roomID, handle.ActorID); !isMember {
		return ErrNotMember
	}
	if !info.Settings.AllowMessages {
		return fmt.Errorf("%w: messaging is disabled in this room", ErrForbidden)
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionSendMessage, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	verdict := a.mods.CheckMessageAllowed(roomID, handle.ActorID, content)
	if !verdict.Allowed {
		if verdict.AutoAction != nil {
			a.applyRestrictionFlags(roomID, handle.ActorID)
			a.hub.Emit(roomID, models.EventModeration, verdict.AutoAction, "")
		}
		return fmt.Errorf("%w: %s", ErrMessageDenied, verdict.Reason)
	}

	a.rooms.NoteMessage(roomID, handle.ActorID)
	a.metrics.Record(roomID, handle.ActorID, models.ActivityMessage)
	a.hub.Emit(roomID, models.EventMessage, map[string]any{
		"actor_id": handle.ActorID,
		"content":  content,
	}, a.connFor(handleID))
	return nil
}

// ShareFile announces a file upload to the room.
func (a *Application) ShareFile(handleID, roomID, fileName string) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	info, err := a.rooms.GetInfo(roomID)
	if err != nil {
		return err
	}
	if !info.Settings.AllowFileSharing {
		return fmt.Errorf("%w: file sharing is disabled in this room", ErrForbidden)
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionUploadFile, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	a.metrics.Record(roomID, handle.ActorID, models.ActivityFileUpload)
	a.hub.Emit(roomID, "file:shared", map[string]any{
		"actor_id": handle.ActorID,
		"name":     fileName,
	}, a.connFor(handleID))
	return nil
}

// React broadcasts a reaction to an earlier message.
func (a *Application) React(handleID, roomID, messageID, reaction string) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionAddReaction, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	a.metrics.Record(roomID, handle.ActorID, models.ActivityReaction)
	a.hub.Emit(roomID, "reaction:add", map[string]any{
		"actor_id":   handle.ActorID,
		"message_id": messageID,
		"reaction":   reaction,
	}, a.connFor(handleID))
	return nil
}

// Typing broadcasts a typing indicator; no state is kept.
func (a *Application) Typing(handleID, roomID string, active bool) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionStartTyping, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	event := models.EventTypingStart
	if !active {
		event = models.EventTypingStop
	}
	a.hub.Emit(roomID, event, map[string]any{"actor_id": handle.ActorID}, a.connFor(handleID))
	return nil
}

// Moderate applies one moderation action on behalf of the handle's actor.
// The target must currently be a member of the room. Kicks are forwarded to
// the room registry; restriction flags are mirrored onto the membership, and
// both the room and the target hear about it.
func (a *Application) Moderate(handleID string, req models.ModerationRequest) (models.ModerationOutcome, error) {
	handle, err := a.resolve(handleID)
	if err != nil {
		return models.ModerationOutcome{}, err
	}
	if _, err := a.rooms.GetInfo(req.RoomID); err != nil {
		return models.ModerationOutcome{}, err
	}

	action, ok := actionFor(req.Type)
	if !ok {
		return models.ModerationOutcome{}, fmt.Errorf("%w: %q", moderation.ErrUnknownAction, req.Type)
	}

	targetRole, isMember := a.rooms.RoomRoleOf(req.RoomID, req.TargetID)
	if !isMember {
		return models.ModerationOutcome{}, ErrNotMember
	}
	target := &permissions.Subject{ID: req.TargetID, RoomRole: targetRole}
	if decision := a.perms.Decide(req.RoomID, a.subject(handle, req.RoomID), action, target); !decision.Allowed {
		return models.ModerationOutcome{}, fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	outcome, err := a.mods.Apply(handle.ActorID, req)
	if err != nil {
		return models.ModerationOutcome{}, err
	}

	if req.Type == models.ModerationKick {
		_, _ = a.rooms.Leave(req.TargetID, req.RoomID, "kicked")
	} else {
		a.applyRestrictionFlags(req.RoomID, req.TargetID)
	}

	a.hub.Emit(req.RoomID, models.EventModeration, outcome, "")
	a.hub.EmitToActor(req.TargetID, models.EventModeration, outcome)
	return outcome, nil
}

// SetMemberRole promotes or demotes a member within a room.
func (a *Application) SetMemberRole(handleID, roomID, targetID string, roomRole models.RoomRole) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	action := permissions.ActionDemote
	if roomRole == models.RoomRoleModerator {
		action = permissions.ActionPromote
	}
	targetRole, _ := a.rooms.RoomRoleOf(roomID, targetID)
	target := &permissions.Subject{ID: targetID, RoomRole: targetRole}
	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), action, target); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	if err := a.rooms.SetRole(roomID, targetID, roomRole); err != nil {
		return err
	}
	a.persistMembership(roomID, targetID)
	return nil
}

// InviteMember grants a one-shot join permission for a private room.
func (a *Application) InviteMember(handleID, roomID, targetID string) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionInviteMember, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}
	return a.rooms.Invite(roomID, targetID)
}

// UpdateRoomSettings merges a settings patch after the owner/admin gate.
func (a *Application) UpdateRoomSettings(handleID, roomID string, patch models.RoomSettingsPatch) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionUpdateSettings, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	if _, err := a.rooms.UpdateSettings(roomID, patch, handle.ActorID); err != nil {
		return err
	}
	a.persistRoom(roomID)
	return nil
}

// DeleteRoom notifies members, tears the room down everywhere and removes
// the durable copy.
func (a *Application) DeleteRoom(handleID, roomID, reason string) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}

	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionDeleteRoom, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}

	a.rooms.Delete(roomID, reason)
	a.hub.DropRoom(roomID)
	a.metrics.Forget(roomID)
	if a.repo != nil {
		a.persist.Enqueue(func(ctx context.Context) error {
			return a.repo.DeleteRoom(ctx, roomID)
		})
	}
	return nil
}

// RoomMetrics returns the current activity snapshot for a room.
func (a *Application) RoomMetrics(handleID, roomID string) (*models.RoomMetrics, error) {
	if err := a.requireAnalytics(handleID, roomID); err != nil {
		return nil, err
	}
	return a.metrics.Snapshot(roomID), nil
}

// RoomInsights aggregates activity over the requested period.
func (a *Application) RoomInsights(handleID, roomID string, period models.InsightPeriod) (*models.RoomInsights, error) {
	if err := a.requireAnalytics(handleID, roomID); err != nil {
		return nil, err
	}
	return a.metrics.Insights(roomID, period), nil
}

// RoomHealth derives the categorical health view.
func (a *Application) RoomHealth(handleID, roomID string) (*models.RoomHealth, error) {
	if err := a.requireAnalytics(handleID, roomID); err != nil {
		return nil, err
	}
	return a.metrics.Health(roomID), nil
}

func (a *Application) requireAnalytics(handleID, roomID string) error {
	handle, err := a.resolve(handleID)
	if err != nil {
		return err
	}
	if decision := a.perms.Decide(roomID, a.subject(handle, roomID), permissions.ActionViewAnalytics, nil); !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrForbidden, decision.Reason)
	}
	return nil
}

// resolve looks the handle up and refreshes its last-activity stamp; every
// inbound event counts as liveness.
func (a *Application) resolve(handleID string) (models.SessionSnapshot, error) {
	handle, ok := a.sessions.Get(handleID)
	if !ok {
		return models.SessionSnapshot{}, ErrNotConnected
	}
	a.sessions.Touch(handleID)
	return handle, nil
}

func (a *Application) subject(handle models.SessionSnapshot, roomID string) permissions.Subject {
	roomRole, _ := a.rooms.RoomRoleOf(roomID, handle.ActorID)
	return permissions.Subject{ID: handle.ActorID, Role: handle.Role, RoomRole: roomRole}
}

func (a *Application) applyRestrictionFlags(roomID, actorID string) {
	status := a.mods.StatusOf(roomID, actorID)
	a.rooms.SetRestrictionFlags(roomID, actorID, status.IsMuted, status.IsBanned)
}

func (a *Application) persistRoom(roomID string) {
	if a.repo == nil {
		return
	}
	info, err := a.rooms.GetInfo(roomID)
	if err != nil {
		return
	}
	a.persist.Enqueue(func(ctx context.Context) error {
		return a.repo.UpsertRoom(ctx, info)
	})
}

func (a *Application) persistMembership(roomID, actorID string) {
	if a.repo == nil {
		return
	}
	members, err := a.rooms.MembersOf(roomID)
	if err != nil {
		return
	}
	for _, membership := range members {
		if membership.ActorID != actorID {
			continue
		}
		m := membership
		a.persist.Enqueue(func(ctx context.Context) error {
			return a.repo.UpsertMembership(ctx, m)
		})
		return
	}
}

func actionFor(modType models.ModerationType) (permissions.Action, bool) {
	switch modType {
	case models.ModerationMute, models.ModerationTimeout:
		return permissions.ActionMute, true
	case models.ModerationUnmute:
		return permissions.ActionUnmute, true
	case models.ModerationBan:
		return permissions.ActionBan, true
	case models.ModerationUnban:
		return permissions.ActionUnban, true
	case models.ModerationWarn:
		return permissions.ActionWarn, true
	case models.ModerationKick:
		return permissions.ActionKick, true
	default:
		return 0, false
	}
}
