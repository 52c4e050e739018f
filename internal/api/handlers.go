package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/RemyAde/kopa-backend/internal/database"
	"github.com/RemyAde/kopa-backend/internal/eligibility"
	"github.com/RemyAde/kopa-backend/internal/membership"
	"github.com/RemyAde/kopa-backend/internal/platoon"
	"github.com/RemyAde/kopa-backend/internal/server"
	"github.com/RemyAde/kopa-backend/internal/statecode"
	"github.com/RemyAde/kopa-backend/internal/types"
)

type JoinPlatoonRequest struct {
	StateCode string `json:"state_code" validate:"required,statecode"`
}

type CreateChatroomRequest struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}

type JoinChatroomRequest struct {
	RoomId string `json:"room_id" validate:"required"`
}

type ChatroomResponse struct {
	Id        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      types.RoomKind `json:"kind"`
	StateCode string         `json:"state_code,omitempty"`
	Members   []string       `json:"members,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

type JoinPlatoonResponse struct {
	RoomId  string   `json:"room_id"`
	Members []string `json:"members"`
}

func (s *KopaApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *KopaApp) health(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statePrefix reduces a full call-up number ("NY/23A/1234") to the two letter
// state code used as the registry key.
func statePrefix(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) > 2 {
		return code[:2]
	}

	return code
}

func (s *KopaApp) chatroomResponse(room database.Room) ChatroomResponse {
	return ChatroomResponse{
		Id:        room.Id,
		Name:      room.Name,
		Kind:      room.Kind,
		StateCode: room.StateCode,
		Members:   s.memberships.ListMembersForRoom(room.Id),
		CreatedAt: room.CreatedAt,
		UpdatedAt: room.UpdatedAt,
	}
}

func denyError(err *platoon.JoinRejectedError) *ApiError {
	switch err.Reason {
	case eligibility.ReasonRoomFull:
		return NewConflictError(err.Detail)
	default:
		return NewForbiddenError(err.Detail)
	}
}

func (s *KopaApp) joinPlatoon(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req := JoinPlatoonRequest{StateCode: r.URL.Query().Get("state_code")}
	if req.StateCode == "" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	req.StateCode = strings.ToUpper(strings.TrimSpace(req.StateCode))
	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId, err := s.assigner.JoinPlatoon(ident.UserId, statePrefix(req.StateCode), ident.Signals())
	if err != nil {
		var errResp *ApiError
		var rejected *platoon.JoinRejectedError
		switch {
		case errors.Is(err, statecode.ErrUnknownStateCode):
			errResp = NewNotFoundError()
		case errors.As(err, &rejected):
			errResp = denyError(rejected)
		default:
			s.log.Println("join platoon:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, JoinPlatoonResponse{
		RoomId:  roomId,
		Members: s.memberships.ListMembersForRoom(roomId),
	})
}

func (s *KopaApp) listChatrooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.db.ListRooms()
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := lo.Map(rooms, func(room database.Room, _ int) ChatroomResponse {
		return s.chatroomResponse(room)
	})

	s.writeJson(w, http.StatusOK, resp)
}

func (s *KopaApp) myChatrooms(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomIds := s.memberships.ListRoomsForUser(ident.UserId)

	rooms, err := s.db.ListRooms()
	if err != nil {
		s.log.Println("list rooms:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	mine := lo.Filter(rooms, func(room database.Room, _ int) bool {
		return lo.Contains(roomIds, room.Id)
	})
	resp := lo.Map(mine, func(room database.Room, _ int) ChatroomResponse {
		return s.chatroomResponse(room)
	})

	s.writeJson(w, http.StatusOK, resp)
}

func (s *KopaApp) createChatroom(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateChatroomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetRoomByName(req.Name); err == nil {
		errResp := NewConflictError("chatroom name already taken")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.log.Println("get room by name:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sid, err := s.generateShortId()
	if err != nil {
		s.log.Print("generateShortId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.CreateRoom(database.CreateRoomParams{
		Id:   sid,
		Name: req.Name,
		Kind: types.RoomKindAdhoc,
	})
	if err != nil {
		s.log.Println("create room:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// creator joins their own chatroom
	if _, err := s.memberships.Add(ident.UserId, room.Id); err != nil {
		s.log.Println("add membership:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, s.chatroomResponse(room))
}

func (s *KopaApp) joinChatroom(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req JoinChatroomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.validate.Struct(req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	room, err := s.db.GetRoomById(req.RoomId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if d := s.checker.Check(ident.UserId, room.Id, ident.Signals()); !d.Allowed {
		errResp := denyError(&platoon.JoinRejectedError{Reason: d.Reason, Detail: d.Detail})
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.memberships.Add(ident.UserId, room.Id); err != nil && !errors.Is(err, membership.ErrAlreadyMember) {
		s.log.Println("add membership:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, s.chatroomResponse(room))
}

func (s *KopaApp) leaveChatroom(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId := r.URL.Query().Get("room_id")
	if roomId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.memberships.Remove(ident.UserId, roomId); err != nil {
		var errResp *ApiError
		if errors.Is(err, membership.ErrNotMember) {
			errResp = NewNotFoundError()
		} else {
			s.log.Println("remove membership:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

func (s *KopaApp) serveWs(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	connection := s.hub.Connect(ident.UserId, uuid.NewString())

	client := server.NewClient(types.User{
		Id:        ident.UserId,
		Username:  ident.Username,
		StateCode: ident.StateCode,
	}, conn, connection, s.hub, s.router, s.log)

	// replay recent history for each joined room before live delivery starts
	for _, roomId := range s.memberships.ListRoomsForUser(ident.UserId) {
		msgs, err := s.db.GetMessages(roomId, s.historyLimit)
		if err != nil {
			s.log.Printf("get messages for room %q: %v", roomId, err)
			continue
		}

		client.SendHistory(lo.Map(msgs, func(msg database.Message, _ int) types.Message {
			return types.Message{
				Id:        msg.Id,
				RoomId:    msg.RoomId,
				SenderId:  msg.SenderId,
				Body:      msg.Body,
				SeqId:     msg.SeqId,
				Timestamp: msg.CreatedAt,
			}
		}))
	}

	go client.Write()
	go client.Read()
}
