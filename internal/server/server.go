package server

import (
	"context"
	"log"
	"sync"

	"github.com/RemyAde/kopa-backend/internal/stats"
	"github.com/RemyAde/kopa-backend/internal/types"
)

// RoomLister supplies the rooms a user belongs to at connect time.
type RoomLister interface {
	ListRoomsForUser(userId string) []string
}

// Hub tracks live connections per user and per room and fans messages out to
// every connection subscribed to a room.
//
// Subscriptions are computed from membership at connect time. Membership
// changes after connect are deliberately not reflected until the client
// reconnects or issues a resubscribe.
type Hub struct {
	log         *log.Logger
	memberships RoomLister
	stats       stats.StatsProvider

	mu     sync.Mutex
	rooms  map[string]*roomDispatcher
	conns  map[string]map[string]*Connection
	closed bool
}

func NewHub(logger *log.Logger, memberships RoomLister, su stats.StatsProvider) *Hub {
	su.RegisterMetric("NumConnections")
	su.RegisterMetric("NumActiveRooms")
	su.RegisterMetric("NumMessagesDelivered")
	su.RegisterMetric("NumMessagesDropped")

	return &Hub{
		log:         logger,
		memberships: memberships,
		stats:       su,
		rooms:       make(map[string]*roomDispatcher),
		conns:       make(map[string]map[string]*Connection),
	}
}

// Connect registers a connection and subscribes it to every room the user
// currently belongs to.
func (h *Hub) Connect(userId, connId string) *Connection {
	conn := newConnection(userId, connId)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.close()
		return conn
	}

	if h.conns[userId] == nil {
		h.conns[userId] = make(map[string]*Connection)
	}
	h.conns[userId][connId] = conn

	roomIds := h.memberships.ListRoomsForUser(userId)
	dispatchers := make([]*roomDispatcher, 0, len(roomIds))
	for _, roomId := range roomIds {
		dispatchers = append(dispatchers, h.dispatcherLocked(roomId))
		conn.addRoom(roomId)
	}
	h.mu.Unlock()

	for _, d := range dispatchers {
		d.sub(conn)
	}

	h.stats.Incr("NumConnections")
	h.log.Printf("connection %q for user %q subscribed to %d room(s)", connId, userId, len(roomIds))

	return conn
}

// Disconnect removes a connection from the live set. Removing an unknown
// connection is a no-op; an in-flight delivery to the connection is discarded.
func (h *Hub) Disconnect(userId, connId string) {
	h.mu.Lock()
	conn := h.conns[userId][connId]
	if conn == nil {
		h.mu.Unlock()
		return
	}

	delete(h.conns[userId], connId)
	if len(h.conns[userId]) == 0 {
		delete(h.conns, userId)
	}

	var dispatchers []*roomDispatcher
	for _, roomId := range conn.roomIds() {
		if d, ok := h.rooms[roomId]; ok {
			dispatchers = append(dispatchers, d)
		}
	}
	h.mu.Unlock()

	conn.close()
	for _, d := range dispatchers {
		d.unsub(conn)
	}

	h.stats.Decr("NumConnections")
	h.log.Printf("removed connection %q for user %q", connId, userId)
}

// Resubscribe recomputes a connection's room subscriptions from the current
// membership state.
func (h *Hub) Resubscribe(userId, connId string) {
	h.mu.Lock()
	conn := h.conns[userId][connId]
	if conn == nil {
		h.mu.Unlock()
		return
	}

	current := make(map[string]struct{})
	for _, roomId := range conn.roomIds() {
		current[roomId] = struct{}{}
	}

	var added, removed []*roomDispatcher
	for _, roomId := range h.memberships.ListRoomsForUser(userId) {
		if _, ok := current[roomId]; ok {
			delete(current, roomId)
			continue
		}
		added = append(added, h.dispatcherLocked(roomId))
		conn.addRoom(roomId)
	}
	for roomId := range current {
		if d, ok := h.rooms[roomId]; ok {
			removed = append(removed, d)
		}
		conn.delRoom(roomId)
	}
	h.mu.Unlock()

	for _, d := range added {
		d.sub(conn)
	}
	for _, d := range removed {
		d.unsub(conn)
	}
}

// Deliver sends msg to every connection subscribed to roomId. Delivery order
// per room matches call order; a slow or dead connection never blocks the
// others. Failures are recorded in the report, not retried.
func (h *Hub) Deliver(roomId string, msg *types.Message) DeliveryReport {
	h.mu.Lock()
	d := h.rooms[roomId]
	h.mu.Unlock()

	if d == nil {
		return DeliveryReport{RoomId: roomId, SeqId: msg.SeqId}
	}

	return d.deliver(msg)
}

// dispatcherLocked returns the room's dispatcher, creating it on first use.
// Callers must hold h.mu.
func (h *Hub) dispatcherLocked(roomId string) *roomDispatcher {
	if d, ok := h.rooms[roomId]; ok {
		return d
	}

	d := newRoomDispatcher(roomId, h.log, h.stats)
	h.rooms[roomId] = d
	go d.run()

	h.stats.Incr("NumActiveRooms")
	return d
}

func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	dispatchers := make([]*roomDispatcher, 0, len(h.rooms))
	for _, d := range h.rooms {
		dispatchers = append(dispatchers, d)
	}
	var conns []*Connection
	for _, userConns := range h.conns {
		for _, conn := range userConns {
			conns = append(conns, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}

	for _, d := range dispatchers {
		close(d.exit)
		select {
		case <-d.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	h.log.Println("hub shutdown complete")
	return nil
}
