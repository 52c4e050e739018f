package types

import (
	"time"
)

type RoomKind string

const (
	RoomKindPlatoon RoomKind = "platoon"
	RoomKindAdhoc   RoomKind = "adhoc"
)

type User struct {
	Id        string `json:"id"`
	Username  string `json:"username,omitempty"`
	StateCode string `json:"state_code,omitempty"`
}

type Room struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      RoomKind  `json:"kind"`
	StateCode string    `json:"state_code,omitempty"`
	Members   []string  `json:"members,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type Membership struct {
	UserId   string    `json:"user_id"`
	RoomId   string    `json:"room_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type Message struct {
	Id        string    `json:"id"`
	RoomId    string    `json:"room_id"`
	SenderId  string    `json:"sender_id"`
	Body      string    `json:"body"`
	SeqId     int64     `json:"seq_id"`
	Timestamp time.Time `json:"timestamp"`
}
