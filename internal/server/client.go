package server

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/RemyAde/kopa-backend/internal/membership"
	"github.com/RemyAde/kopa-backend/internal/types"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

// Client bridges one websocket session to the hub and router: the read pump
// feeds inbound publishes to the router, the write pump drains the hub
// connection's outbox onto the wire.
type Client struct {
	conn       *websocket.Conn
	hub        *Hub
	router     *Router
	log        *log.Logger
	user       types.User
	connection *Connection
	stop       chan struct{}
}

func NewClient(user types.User, conn *websocket.Conn, connection *Connection, hub *Hub, router *Router, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		hub:        hub,
		router:     router,
		log:        l,
		user:       user,
		connection: connection,
		stop:       make(chan struct{}),
	}
}

// SendHistory queues previously stored room messages to the session, oldest
// first, before live traffic is observed.
func (c *Client) SendHistory(msgs []types.Message) {
	for i := range msgs {
		msg := msgs[i]
		c.connection.Queue(&ServerMessage{
			BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
			Message:     &msg,
		})
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg := <-c.connection.Outbox():
			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.connection.Closed():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.connection.Queue(ErrInvalidMessage(-1))
			continue
		}

		switch {
		case msg.Publish != nil:
			c.handlePublish(&msg)
		case msg.Resubscribe != nil:
			c.hub.Resubscribe(c.user.Id, c.connection.Id())
			c.connection.Queue(NoErrOK(msg.Id, nil))
		default:
			c.connection.Queue(ErrInvalidMessage(msg.Id))
		}
	}
}

func (c *Client) handlePublish(msg *ClientMessage) {
	if msg.Publish.RoomId == "" || msg.Publish.Body == "" {
		c.connection.Queue(ErrInvalidMessage(msg.Id))
		return
	}

	routed, err := c.router.Send(c.user.Id, msg.Publish.RoomId, msg.Publish.Body)
	if err != nil {
		if errors.Is(err, membership.ErrNotMember) {
			c.connection.Queue(ErrNotAMember(msg.Id))
		} else {
			c.log.Printf("send to room %q: %v", msg.Publish.RoomId, err)
			c.connection.Queue(ErrInternalError(msg.Id))
		}
		return
	}

	c.connection.Queue(NoErrAccepted(msg.Id))
	c.log.Printf("routed message seq %d to room %q", routed.SeqId, routed.RoomId)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) cleanup() {
	c.hub.Disconnect(c.user.Id, c.connection.Id())
	close(c.stop)
}
