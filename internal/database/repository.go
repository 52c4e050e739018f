package database

import (
	"github.com/RemyAde/kopa-backend/internal/types"
)

// KopaRepository is the durable-storage collaborator. The chat core only ever
// writes to it; reads back the catalog and message history for the API layer
// and startup warm-up, never for delivery correctness.
type KopaRepository interface {
	Ping() error
	EnsureRoom(params CreateRoomParams) (Room, error)
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoomById(id string) (Room, error)
	GetRoomByName(name string) (Room, error)
	ListRooms() ([]Room, error)
	SaveMembership(m types.Membership) error
	DeleteMembership(userId, roomId string) error
	ListMemberships() ([]Membership, error)
	SaveMessage(msg types.Message) error
	GetMessages(roomId string, limit int) ([]Message, error)
}
