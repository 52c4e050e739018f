package database

import (
	"fmt"
	"time"

	"github.com/RemyAde/kopa-backend/internal/types"
)

func (db *PgKopaRepository) EnsureRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (id, name, kind, state_code, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) "+
			"ON CONFLICT (id) DO UPDATE SET updated_at = EXCLUDED.updated_at "+
			"RETURNING id, name, kind, state_code, created_at, updated_at",
		params.Id,
		params.Name,
		params.Kind,
		params.StateCode,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.Name,
		&room.Kind,
		&room.StateCode,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgKopaRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	res := db.conn.QueryRow(
		"INSERT INTO rooms (id, name, kind, state_code, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) "+
			"RETURNING id, name, kind, state_code, created_at, updated_at",
		params.Id,
		params.Name,
		params.Kind,
		params.StateCode,
		time.Now().UTC(),
	)

	var room Room
	err := res.Scan(
		&room.Id,
		&room.Name,
		&room.Kind,
		&room.StateCode,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgKopaRepository) GetRoomById(id string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, kind, state_code, created_at, updated_at FROM rooms "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Kind,
		&room.StateCode,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgKopaRepository) GetRoomByName(name string) (Room, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, kind, state_code, created_at, updated_at FROM rooms "+
			"WHERE lower(name) = lower($1) LIMIT 1",
		name,
	)

	var room Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Kind,
		&room.StateCode,
		&room.CreatedAt,
		&room.UpdatedAt,
	)

	return room, err
}

func (db *PgKopaRepository) ListRooms() ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, kind, state_code, created_at, updated_at FROM rooms " +
			"ORDER BY created_at",
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(
			&room.Id,
			&room.Name,
			&room.Kind,
			&room.StateCode,
			&room.CreatedAt,
			&room.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rooms, nil
}

func (db *PgKopaRepository) SaveMembership(m types.Membership) error {
	_, err := db.conn.Exec(
		"INSERT INTO memberships (user_id, room_id, joined_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (user_id, room_id) DO NOTHING",
		m.UserId,
		m.RoomId,
		m.JoinedAt,
	)

	return err
}

func (db *PgKopaRepository) DeleteMembership(userId, roomId string) error {
	_, err := db.conn.Exec(
		"DELETE FROM memberships WHERE user_id = $1 AND room_id = $2",
		userId,
		roomId,
	)

	return err
}

func (db *PgKopaRepository) ListMemberships() ([]Membership, error) {
	rows, err := db.conn.Query(
		"SELECT user_id, room_id, joined_at FROM memberships",
	)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.UserId, &m.RoomId, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		memberships = append(memberships, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return memberships, nil
}

func (db *PgKopaRepository) SaveMessage(msg types.Message) error {
	_, err := db.conn.Exec(
		"INSERT INTO messages (id, room_id, sender_id, body, seq_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6)",
		msg.Id,
		msg.RoomId,
		msg.SenderId,
		msg.Body,
		msg.SeqId,
		msg.Timestamp,
	)

	return err
}

// GetMessages returns the most recent messages for a room in ascending
// sequence order, limited to limit rows when limit is positive.
func (db *PgKopaRepository) GetMessages(roomId string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, room_id, sender_id, body, seq_id, created_at FROM ("+
			"SELECT id, room_id, sender_id, body, seq_id, created_at FROM messages "+
			"WHERE room_id = $1 ORDER BY seq_id DESC LIMIT $2"+
			") recent ORDER BY seq_id",
		roomId,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.Id,
			&msg.RoomId,
			&msg.SenderId,
			&msg.Body,
			&msg.SeqId,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}
