package database

import (
	"github.com/stretchr/testify/mock"

	"github.com/RemyAde/kopa-backend/internal/types"
)

type MockKopaRepository struct {
	mock.Mock
}

func (m *MockKopaRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockKopaRepository) EnsureRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockKopaRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	args := m.Called(params)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockKopaRepository) GetRoomById(id string) (Room, error) {
	args := m.Called(id)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockKopaRepository) GetRoomByName(name string) (Room, error) {
	args := m.Called(name)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockKopaRepository) ListRooms() ([]Room, error) {
	args := m.Called()
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockKopaRepository) SaveMembership(membership types.Membership) error {
	args := m.Called(membership)
	return args.Error(0)
}
func (m *MockKopaRepository) DeleteMembership(userId, roomId string) error {
	args := m.Called(userId, roomId)
	return args.Error(0)
}
func (m *MockKopaRepository) ListMemberships() ([]Membership, error) {
	args := m.Called()
	return args.Get(0).([]Membership), args.Error(1)
}
func (m *MockKopaRepository) SaveMessage(msg types.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}
func (m *MockKopaRepository) GetMessages(roomId string, limit int) ([]Message, error) {
	args := m.Called(roomId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
