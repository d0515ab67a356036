package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lvdund/agent-english-teacher/internal/models"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) ListRooms(ctx context.Context) ([]models.Room, error) {
	args := m.Called(ctx)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) ListMemberships(ctx context.Context, roomID string) ([]models.Membership, error) {
	args := m.Called(ctx, roomID)
	var members []models.Membership
	if val := args.Get(0); val != nil {
		members = val.([]models.Membership)
	}
	return members, args.Error(1)
}

func (m *RoomRepositoryMock) UpsertRoom(ctx context.Context, room models.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepositoryMock) UpsertMembership(ctx context.Context, membership models.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *RoomRepositoryMock) DeleteRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) DeleteMembership(ctx context.Context, roomID, actorID string) error {
	args := m.Called(ctx, roomID, actorID)
	return args.Error(0)
}
