package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/lvdund/agent-english-teacher/internal/models"
	"github.com/lvdund/agent-english-teacher/internal/observability"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts durable room state. The in-memory registry is
// authoritative at runtime; this store only hydrates at startup and keeps a
// warm copy for recovery.
type RoomRepository interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	ListMemberships(ctx context.Context, roomID string) ([]models.Membership, error)
	UpsertRoom(ctx context.Context, room models.Room) error
	UpsertMembership(ctx context.Context, membership models.Membership) error
	DeleteRoom(ctx context.Context, roomID string) error
	DeleteMembership(ctx context.Context, roomID, actorID string) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

type roomRow struct {
	ID               string       `db:"id"`
	Type             string       `db:"type"`
	Name             string       `db:"name"`
	Description      string       `db:"description"`
	OwnerID          string       `db:"owner_id"`
	Visibility       string       `db:"visibility"`
	MaxMembers       int          `db:"max_members"`
	AllowMessages    bool         `db:"allow_messages"`
	AllowFileSharing bool         `db:"allow_file_sharing"`
	AllowVoice       bool         `db:"allow_voice"`
	AllowVideo       bool         `db:"allow_video"`
	ModerationLevel  string       `db:"moderation_level"`
	RetentionDays    int          `db:"retention_days"`
	CreatedAt        sql.NullTime `db:"created_at"`
	LastActivity     sql.NullTime `db:"last_activity"`
}

func (r roomRow) toModel() models.Room {
	room := models.Room{
		ID:          r.ID,
		Type:        models.RoomType(r.Type),
		Name:        r.Name,
		Description: r.Description,
		OwnerID:     r.OwnerID,
		Visibility:  models.Visibility(r.Visibility),
		MaxMembers:  r.MaxMembers,
		Settings: models.RoomSettings{
			AllowMessages:    r.AllowMessages,
			AllowFileSharing: r.AllowFileSharing,
			AllowVoice:       r.AllowVoice,
			AllowVideo:       r.AllowVideo,
			ModerationLevel:  r.ModerationLevel,
			RetentionDays:    r.RetentionDays,
		},
	}
	if r.CreatedAt.Valid {
		room.CreatedAt = r.CreatedAt.Time
	}
	if r.LastActivity.Valid {
		room.LastActivity = r.LastActivity.Time
	}
	return room
}

// ListRooms returns all persisted rooms for startup hydration.
func (r *RoomRepo) ListRooms(ctx context.Context) ([]models.Room, error) {
	ctx, span := observability.Tracer().Start(ctx, "repo.list_rooms")
	defer span.End()

	var rows []roomRow
	err := r.db.SelectContext(ctx, &rows, `SELECT id, type, name, description, owner_id, visibility, max_members,
        allow_messages, allow_file_sharing, allow_voice, allow_video, moderation_level, retention_days,
        created_at, last_activity FROM rooms ORDER BY created_at`)
	if err != nil {
		return nil, err
	}

	rooms := make([]models.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, row.toModel())
	}
	return rooms, nil
}

// ListMemberships returns memberships for one room.
func (r *RoomRepo) ListMemberships(ctx context.Context, roomID string) ([]models.Membership, error) {
	var memberships []models.Membership
	err := r.db.SelectContext(ctx, &memberships, `SELECT room_id, actor_id, role, joined_at, last_activity
        FROM room_members WHERE room_id=$1 ORDER BY joined_at`, roomID)
	return memberships, err
}

// UpsertRoom writes the room's durable fields.
func (r *RoomRepo) UpsertRoom(ctx context.Context, room models.Room) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO rooms
        (id, type, name, description, owner_id, visibility, max_members,
         allow_messages, allow_file_sharing, allow_voice, allow_video, moderation_level, retention_days,
         created_at, last_activity)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (id) DO UPDATE SET
         name=EXCLUDED.name, description=EXCLUDED.description, visibility=EXCLUDED.visibility,
         max_members=EXCLUDED.max_members, allow_messages=EXCLUDED.allow_messages,
         allow_file_sharing=EXCLUDED.allow_file_sharing, allow_voice=EXCLUDED.allow_voice,
         allow_video=EXCLUDED.allow_video, moderation_level=EXCLUDED.moderation_level,
         retention_days=EXCLUDED.retention_days, last_activity=EXCLUDED.last_activity`,
		room.ID, room.Type, room.Name, room.Description, room.OwnerID, room.Visibility, room.MaxMembers,
		room.Settings.AllowMessages, room.Settings.AllowFileSharing, room.Settings.AllowVoice,
		room.Settings.AllowVideo, room.Settings.ModerationLevel, room.Settings.RetentionDays,
		room.CreatedAt, room.LastActivity)
	return err
}

// UpsertMembership writes one membership row.
func (r *RoomRepo) UpsertMembership(ctx context.Context, membership models.Membership) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO room_members (room_id, actor_id, role, joined_at, last_activity)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (room_id, actor_id) DO UPDATE SET role=EXCLUDED.role, last_activity=EXCLUDED.last_activity`,
		membership.RoomID, membership.ActorID, membership.Role, membership.JoinedAt, membership.LastActivity)
	return err
}

// DeleteRoom removes the room and, via cascade, its memberships.
func (r *RoomRepo) DeleteRoom(ctx context.Context, roomID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id=$1`, roomID)
	if err != nil {
		return err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// DeleteMembership removes one membership row.
func (r *RoomRepo) DeleteMembership(ctx context.Context, roomID, actorID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM room_members WHERE room_id=$1 AND actor_id=$2`, roomID, actorID)
	return err
}
