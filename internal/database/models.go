package database

import (
	"time"

	"github.com/RemyAde/kopa-backend/internal/types"
)

type Room struct {
	Id        string
	Name      string
	Kind      types.RoomKind
	StateCode string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Membership struct {
	UserId   string
	RoomId   string
	JoinedAt time.Time
}

type Message struct {
	Id        string
	RoomId    string
	SenderId  string
	Body      string
	SeqId     int64
	CreatedAt time.Time
}

type CreateRoomParams struct {
	Id        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      types.RoomKind `json:"kind"`
	StateCode string         `json:"state_code,omitempty"`
}
