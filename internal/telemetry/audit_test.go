package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lvdund/agent-english-teacher/internal/mocks"
	"github.com/lvdund/agent-english-teacher/internal/models"
)

func TestEmitModerationPublishesEnvelope(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	var captured AuditEnvelope
	publisher.On("Publish", mock.Anything, "moderation.actions", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(AuditEnvelope)
		}).
		Return(nil)

	emitter := NewAuditEmitter(publisher, "moderation.actions", "classroom-core", "test", zerolog.Nop())
	expires := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	emitter.EmitModeration(context.Background(), models.ModerationOutcome{
		Type:        models.ModerationTimeout,
		RoomID:      "r1",
		TargetID:    "s1",
		ModeratorID: "t1",
		Reason:      "off topic",
		Message:     "timed out for 5m",
		ExpiresAt:   &expires,
	})

	publisher.AssertExpectations(t)
	assert.Equal(t, 1, captured.SchemaVersion)
	assert.Equal(t, "moderation_action", captured.EventType)
	assert.Equal(t, "classroom-core", captured.Service)
	assert.Equal(t, "test", captured.Environment)
	assert.Equal(t, "r1", captured.RoomID)
	assert.Equal(t, "t1", captured.ModeratorID)
	assert.Equal(t, "s1", captured.TargetID)
	assert.Equal(t, string(models.ModerationTimeout), captured.Payload.Action)
	assert.Equal(t, "off topic", captured.Payload.Reason)
	assert.Equal(t, expires.Format(time.RFC3339Nano), captured.Payload.ExpiresAt)

	occurred, err := time.Parse(time.RFC3339Nano, captured.OccurredAt)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), occurred, time.Minute)
}

func TestEmitModerationSurvivesPublishFailure(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker gone"))

	emitter := NewAuditEmitter(publisher, "moderation.actions", "classroom-core", "test", zerolog.Nop())
	emitter.EmitModeration(context.Background(), models.ModerationOutcome{Type: models.ModerationWarn})

	publisher.AssertExpectations(t)
}

func TestEmitModerationNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.EmitModeration(context.Background(), models.ModerationOutcome{})

	emitter = NewAuditEmitter(nil, "moderation.actions", "classroom-core", "test", zerolog.Nop())
	emitter.EmitModeration(context.Background(), models.ModerationOutcome{})
}
