package statecode

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownStateCode   = errors.New("unknown state code")
	ErrDuplicateStateCode = errors.New("duplicate state code")
)

// Mapping binds a single state code to its platoon room.
type Mapping struct {
	Code   string
	RoomId string
}

// Registry is the state-code to platoon-room lookup table. It is built once
// at startup and never mutated, so concurrent reads need no locking.
type Registry struct {
	rooms map[string]string
}

func NewRegistry(mappings []Mapping) (*Registry, error) {
	rooms := make(map[string]string, len(mappings))
	for _, m := range mappings {
		if m.Code == "" || m.RoomId == "" {
			return nil, fmt.Errorf("invalid mapping %q=%q", m.Code, m.RoomId)
		}

		if _, ok := rooms[m.Code]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateStateCode, m.Code)
		}
		rooms[m.Code] = m.RoomId
	}

	return &Registry{rooms: rooms}, nil
}

func (r *Registry) Resolve(stateCode string) (string, error) {
	roomId, ok := r.rooms[stateCode]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStateCode, stateCode)
	}

	return roomId, nil
}

func (r *Registry) Mappings() []Mapping {
	mappings := make([]Mapping, 0, len(r.rooms))
	for code, roomId := range r.rooms {
		mappings = append(mappings, Mapping{Code: code, RoomId: roomId})
	}

	return mappings
}

// ParseMappings converts "CODE=room-id" pairs, as supplied by configuration,
// into mapping entries. Duplicates are preserved so NewRegistry can reject them.
func ParseMappings(pairs []string) ([]Mapping, error) {
	var mappings []Mapping
	for _, pair := range pairs {
		code, roomId, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed state code mapping %q", pair)
		}

		mappings = append(mappings, Mapping{
			Code:   strings.TrimSpace(code),
			RoomId: strings.TrimSpace(roomId),
		})
	}

	return mappings, nil
}
