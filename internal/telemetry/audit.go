package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvdund/agent-english-teacher/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter publishes moderation actions to the audit stream. The audit
// trail is what keeps `timeout` distinguishable from a plain mute after the
// fact, so every applied outcome goes through here.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         zerolog.Logger
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RoomID        string       `json:"room_id"`
	ModeratorID   string       `json:"moderator_id"`
	TargetID      string       `json:"target_id"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Escalated bool   `json:"escalated"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log,
	}
}

// EmitModeration records one applied moderation outcome. Nil-safe so
// managers can run without an audit sink in tests.
func (e *AuditEmitter) EmitModeration(ctx context.Context, outcome models.ModerationOutcome) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "moderation_action",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RoomID:        outcome.RoomID,
		ModeratorID:   outcome.ModeratorID,
		TargetID:      outcome.TargetID,
		Payload: AuditPayload{
			Action:    string(outcome.Type),
			Reason:    outcome.Reason,
			Message:   outcome.Message,
			Escalated: outcome.Escalated,
		},
	}
	if outcome.ExpiresAt != nil {
		envelope.Payload.ExpiresAt = outcome.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn().Err(err).Str("action", string(outcome.Type)).Msg("audit publish failed")
	}
}
