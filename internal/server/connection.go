package server

import (
	"sync"
)

// sendQueueSize bounds per-connection outbound buffering; a full queue drops
// the message rather than block the room's dispatch path.
const sendQueueSize = 256

// Connection is one live real-time session for a user. The transport layer
// drains Outbox and stops on Closed.
type Connection struct {
	userId string
	id     string
	send   chan *ServerMessage
	closed chan struct{}
	once   sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConnection(userId, connId string) *Connection {
	return &Connection{
		userId: userId,
		id:     connId,
		send:   make(chan *ServerMessage, sendQueueSize),
		closed: make(chan struct{}),
		rooms:  make(map[string]struct{}),
	}
}

func (c *Connection) UserId() string { return c.userId }

func (c *Connection) Id() string { return c.id }

func (c *Connection) Outbox() <-chan *ServerMessage { return c.send }

func (c *Connection) Closed() <-chan struct{} { return c.closed }

// Queue enqueues a message without blocking. It reports false when the
// connection is closed or its queue is full; such sends are simply discarded.
func (c *Connection) Queue(msg *ServerMessage) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Connection) close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

func (c *Connection) addRoom(roomId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomId] = struct{}{}
}

func (c *Connection) delRoom(roomId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomId)
}

func (c *Connection) roomIds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}

	return ids
}

func (c *Connection) inRoom(roomId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomId]

	return ok
}
