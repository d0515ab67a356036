package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/lvdund/agent-english-teacher/internal/mocks"
	"github.com/lvdund/agent-english-teacher/internal/models"
)

func TestPersistQueueExecutesTasks(t *testing.T) {
	queue := NewPersistQueue(4, 0, time.Millisecond, zerolog.Nop())

	var ran atomic.Int32
	for i := 0; i < 3; i++ {
		queue.Enqueue(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	queue.Close()

	assert.Equal(t, int32(3), ran.Load())
}

func TestPersistQueueRetriesUntilSuccess(t *testing.T) {
	queue := NewPersistQueue(1, 3, time.Millisecond, zerolog.Nop())

	var attempts atomic.Int32
	queue.Enqueue(func(ctx context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	queue.Close()

	assert.Equal(t, int32(3), attempts.Load())
}

func TestPersistQueueGivesUpAfterRetries(t *testing.T) {
	queue := NewPersistQueue(1, 2, time.Millisecond, zerolog.Nop())

	var attempts atomic.Int32
	queue.Enqueue(func(ctx context.Context) error {
		attempts.Add(1)
		return errors.New("permanent")
	})
	queue.Close()

	assert.Equal(t, int32(3), attempts.Load(), "initial attempt plus two retries")
}

func TestPersistQueueRetriesRepositoryWrites(t *testing.T) {
	queue := NewPersistQueue(1, 2, time.Millisecond, zerolog.Nop())

	stored := models.Room{ID: "r1", Name: "algebra"}
	repo := &mocks.RoomRepositoryMock{}
	repo.On("UpsertRoom", mock.Anything, stored).Return(errors.New("connection reset")).Once()
	repo.On("UpsertRoom", mock.Anything, stored).Return(nil).Once()

	queue.Enqueue(func(ctx context.Context) error {
		return repo.UpsertRoom(ctx, stored)
	})
	queue.Close()

	repo.AssertExpectations(t)
}

func TestNilQueueIsSafe(t *testing.T) {
	var queue *PersistQueue
	queue.Enqueue(func(ctx context.Context) error { return nil })
	queue.Close()
}
