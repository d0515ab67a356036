package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/config"
	"github.com/lvdund/agent-english-teacher/internal/models"
	"github.com/lvdund/agent-english-teacher/internal/observability"
	"github.com/lvdund/agent-english-teacher/internal/telemetry"
)

type record struct {
	muteExpiry  *time.Time
	banExpiry   *time.Time
	warnings    int
	lastMessage time.Time
}

func (r *record) empty() bool {
	return r.muteExpiry == nil && r.banExpiry == nil && r.warnings == 0
}

// Store is the sole mutator of per-room, per-actor restriction state. It is
// agnostic to room existence; callers validate rooms and targets first.
type Store struct {
	mu       sync.Mutex
	records  map[string]map[string]*record
	history  []models.ModerationOutcome
	detector SpamDetector
	audit    *telemetry.AuditEmitter
	cfg      config.ModerationConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewStore(cfg config.ModerationConfig, detector SpamDetector, audit *telemetry.AuditEmitter, log zerolog.Logger) *Store {
	return &Store{
		records:  make(map[string]map[string]*record),
		detector: detector,
		audit:    audit,
		cfg:      cfg,
		log:      log.With().Str("component", "moderation").Logger(),
		now:      time.Now,
	}
}

// Apply executes one moderation action and returns the outcome, including
// any warning auto-escalation.
func (s *Store) Apply(moderatorID string, req models.ModerationRequest) (models.ModerationOutcome, error) {
	if req.TargetID == "" {
		return models.ModerationOutcome{}, ErrEmptyTarget
	}

	now := s.now()
	outcome := models.ModerationOutcome{
		Type:        req.Type,
		RoomID:      req.RoomID,
		TargetID:    req.TargetID,
		ModeratorID: moderatorID,
		Reason:      req.Reason,
		AppliedAt:   now,
	}

	s.mu.Lock()
	rec := s.recordFor(req.RoomID, req.TargetID)
	s.purgeExpiredLocked(rec, now)

	switch req.Type {
	case models.ModerationMute:
		expiry := now.Add(s.duration(req.DurationMinutes, s.cfg.DefaultMute))
		rec.muteExpiry = &expiry
		outcome.ExpiresAt = &expiry
		outcome.Message = fmt.Sprintf("muted until %s", expiry.Format(time.RFC3339))

	case models.ModerationTimeout:
		// Same mechanics as a mute; kept as its own type so the audit
		// stream can tell them apart.
		expiry := now.Add(s.duration(req.DurationMinutes, s.cfg.DefaultTimeout))
		rec.muteExpiry = &expiry
		outcome.ExpiresAt = &expiry
		outcome.Message = fmt.Sprintf("timed out until %s", expiry.Format(time.RFC3339))

	case models.ModerationUnmute:
		rec.muteExpiry = nil
		outcome.Message = "mute lifted"

	case models.ModerationBan:
		expiry := now.Add(s.duration(req.DurationMinutes, s.cfg.DefaultBan))
		rec.banExpiry = &expiry
		outcome.ExpiresAt = &expiry
		outcome.Message = fmt.Sprintf("banned until %s", expiry.Format(time.RFC3339))

	case models.ModerationUnban:
		rec.banExpiry = nil
		outcome.Message = "ban lifted"

	case models.ModerationWarn:
		rec.warnings++
		outcome.Message = fmt.Sprintf("warning %d of %d", rec.warnings, s.cfg.WarnThreshold)
		if rec.warnings >= s.cfg.WarnThreshold {
			expiry := now.Add(s.cfg.EscalationMute)
			rec.muteExpiry = &expiry
			rec.warnings = 0
			outcome.Escalated = true
			outcome.ExpiresAt = &expiry
			outcome.Message = fmt.Sprintf("warning threshold reached, auto-muted until %s", expiry.Format(time.RFC3339))
		}

	case models.ModerationKick:
		// A kick forces a one-time room leave and persists nothing
		// here; the room registry performs the eviction.
		outcome.Message = "kicked from room"

	default:
		s.mu.Unlock()
		return models.ModerationOutcome{}, fmt.Errorf("%w: %q", ErrUnknownAction, req.Type)
	}

	if rec.empty() && now.Sub(rec.lastMessage) > s.cfg.Cooldown {
		s.dropRecordLocked(req.RoomID, req.TargetID)
	}
	s.appendHistoryLocked(outcome)
	s.mu.Unlock()

	observability.IncModerationAction(string(req.Type))
	s.audit.EmitModeration(context.Background(), outcome)
	s.log.Info().
		Str("room_id", req.RoomID).
		Str("target_id", req.TargetID).
		Str("moderator_id", moderatorID).
		Str("type", string(req.Type)).
		Bool("escalated", outcome.Escalated).
		Msg("moderation applied")
	return outcome, nil
}

// CheckMessageAllowed screens a message before acceptance: length limit,
// per-actor cooldown, then the spam detector. An accepted message updates
// the cooldown timestamp; a spam hit synthesizes an automatic mute.
func (s *Store) CheckMessageAllowed(roomID, actorID, content string) models.MessageVerdict {
	if s.cfg.MaxMessageLength > 0 && len(content) > s.cfg.MaxMessageLength {
		return models.MessageVerdict{
			Allowed: false,
			Reason:  fmt.Sprintf("message exceeds %d characters", s.cfg.MaxMessageLength),
		}
	}

	now := s.now()

	s.mu.Lock()
	rec := s.recordFor(roomID, actorID)
	if !rec.lastMessage.IsZero() && now.Sub(rec.lastMessage) < s.cfg.Cooldown {
		s.mu.Unlock()
		return models.MessageVerdict{Allowed: false, Reason: "sending too fast"}
	}
	s.mu.Unlock()

	if s.detector != nil && s.detector.Flag(roomID, actorID, content) {
		minutes := int(s.cfg.SpamMute / time.Minute)
		auto, err := s.Apply("system", models.ModerationRequest{
			Type:            models.ModerationMute,
			RoomID:          roomID,
			TargetID:        actorID,
			Reason:          "spam detected",
			DurationMinutes: minutes,
		})
		verdict := models.MessageVerdict{Allowed: false, Reason: "spam detected"}
		if err == nil {
			verdict.AutoAction = &auto
		}
		return verdict
	}

	s.mu.Lock()
	s.recordFor(roomID, actorID).lastMessage = now
	s.mu.Unlock()
	return models.MessageVerdict{Allowed: true}
}

// StatusOf reports the actor's current restrictions. Expiries are checked
// lazily: anything past its expiry reads as absent and is purged in place.
func (s *Store) StatusOf(roomID, actorID string) models.ModerationStatus {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	actors, ok := s.records[roomID]
	if !ok {
		return models.ModerationStatus{}
	}
	rec, ok := actors[actorID]
	if !ok {
		return models.ModerationStatus{}
	}
	s.purgeExpiredLocked(rec, now)

	status := models.ModerationStatus{
		Warnings:   rec.warnings,
		InCooldown: !rec.lastMessage.IsZero() && now.Sub(rec.lastMessage) < s.cfg.Cooldown,
	}
	if rec.muteExpiry != nil {
		status.IsMuted = true
		expiry := *rec.muteExpiry
		status.MuteExpiry = &expiry
	}
	if rec.banExpiry != nil {
		status.IsBanned = true
		expiry := *rec.banExpiry
		status.BanExpiry = &expiry
	}
	if rec.empty() && now.Sub(rec.lastMessage) > s.cfg.Cooldown {
		s.dropRecordLocked(roomID, actorID)
	}
	return status
}

// Sweep purges expired restrictions across all rooms. Lazy checks already
// guarantee correctness; this pass only bounds memory. Returns the number
// of records dropped.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for roomID, actors := range s.records {
		for actorID, rec := range actors {
			s.purgeExpiredLocked(rec, now)
			if rec.empty() && now.Sub(rec.lastMessage) > s.cfg.Cooldown {
				delete(actors, actorID)
				dropped++
			}
		}
		if len(actors) == 0 {
			delete(s.records, roomID)
		}
	}
	if dropped > 0 {
		s.log.Debug().Int("dropped", dropped).Msg("moderation sweep")
	}
	return dropped
}

// History returns recent outcomes, newest first. Empty roomID means all
// rooms.
func (s *Store) History(roomID string, limit int) []models.ModerationOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ModerationOutcome, 0, limit)
	for i := len(s.history) - 1; i >= 0; i-- {
		if roomID != "" && s.history[i].RoomID != roomID {
			continue
		}
		out = append(out, s.history[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Stats is the read-only projection for the admin surface.
type Stats struct {
	TrackedActors int `json:"tracked_actors"`
	HistorySize   int `json:"history_size"`
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	tracked := 0
	for _, actors := range s.records {
		tracked += len(actors)
	}
	return Stats{TrackedActors: tracked, HistorySize: len(s.history)}
}

func (s *Store) recordFor(roomID, actorID string) *record {
	actors, ok := s.records[roomID]
	if !ok {
		actors = make(map[string]*record)
		s.records[roomID] = actors
	}
	rec, ok := actors[actorID]
	if !ok {
		rec = &record{}
		actors[actorID] = rec
	}
	return rec
}

func (s *Store) dropRecordLocked(roomID, actorID string) {
	if actors, ok := s.records[roomID]; ok {
		delete(actors, actorID)
		if len(actors) == 0 {
			delete(s.records, roomID)
		}
	}
}

func (s *Store) purgeExpiredLocked(rec *record, now time.Time) {
	if rec.muteExpiry != nil && !rec.muteExpiry.After(now) {
		rec.muteExpiry = nil
	}
	if rec.banExpiry != nil && !rec.banExpiry.After(now) {
		rec.banExpiry = nil
	}
}

func (s *Store) duration(minutes int, fallback time.Duration) time.Duration {
	if minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return fallback
}

func (s *Store) appendHistoryLocked(outcome models.ModerationOutcome) {
	s.history = append(s.history, outcome)
	if limit := s.cfg.HistoryLimit; limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}
