package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/models"
)

// NewRedisClient dials redis with a bounded ping. Callers treat a nil client
// as "cache disabled".
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// Warm is the best-effort warm cache for session and room state. In-memory
// state stays authoritative; every method here degrades to a no-op on a nil
// receiver and logs instead of failing when redis is unreachable.
type Warm struct {
	client     *redis.Client
	sessionTTL time.Duration
	roomTTL    time.Duration
	log        zerolog.Logger
}

func NewWarm(client *redis.Client, sessionTTL, roomTTL time.Duration, log zerolog.Logger) *Warm {
	if client == nil {
		return nil
	}
	return &Warm{client: client, sessionTTL: sessionTTL, roomTTL: roomTTL, log: log}
}

func (w *Warm) StoreSession(ctx context.Context, snap models.SessionSnapshot) {
	if w == nil {
		return
	}
	w.set(ctx, "session:"+snap.HandleID, snap, w.sessionTTL)
}

func (w *Warm) DropSession(ctx context.Context, handleID string) {
	if w == nil {
		return
	}
	if err := w.client.Del(ctx, "session:"+handleID).Err(); err != nil {
		w.log.Debug().Err(err).Str("handle_id", handleID).Msg("warm cache drop failed")
	}
}

func (w *Warm) StoreRoom(ctx context.Context, room models.Room) {
	if w == nil {
		return
	}
	w.set(ctx, "room:"+room.ID, room, w.roomTTL)
}

func (w *Warm) DropRoom(ctx context.Context, roomID string) {
	if w == nil {
		return
	}
	if err := w.client.Del(ctx, "room:"+roomID).Err(); err != nil {
		w.log.Debug().Err(err).Str("room_id", roomID).Msg("warm cache drop failed")
	}
}

func (w *Warm) set(ctx context.Context, key string, value any, ttl time.Duration) {
	body, err := json.Marshal(value)
	if err != nil {
		w.log.Debug().Err(err).Str("key", key).Msg("warm cache marshal failed")
		return
	}
	if err := w.client.Set(ctx, key, body, ttl).Err(); err != nil {
		w.log.Debug().Err(err).Str("key", key).Msg("warm cache write failed")
	}
}
