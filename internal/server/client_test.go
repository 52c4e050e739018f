package server

import (
	"net/http"
	"testing"

	"github.com/RemyAde/kopa-backend/internal/testutil"
	"github.com/RemyAde/kopa-backend/internal/types"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T, h *Hub, rt *Router, userId, connId string) *Client {
	conn := h.Connect(userId, connId)
	return NewClient(types.User{Id: userId}, nil, conn, h, rt, testutil.TestLogger(t))
}

func Test_handlePublish(t *testing.T) {
	t.Run("accepted publish", func(t *testing.T) {
		h := newTestHub(t, fakeRoomLister{"user-1": {"room-a"}})
		rt := newTestRouter(t, fakeMemberChecker{"room-a": {"user-1": true}}, &fakeDeliverer{}, nil)
		c := newTestClient(t, h, rt, "user-1", "conn-1")

		c.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Publish:     &Publish{RoomId: "room-a", Body: "hi"},
		})

		select {
		case msg := <-c.connection.Outbox():
			assert.NotNil(t, msg.Response, "expected a response to be queued")
			assert.Equal(t, 1, msg.Id, "expected response id to match")
			assert.Equal(t, http.StatusAccepted, msg.Response.ResponseCode, "expected response code to be 202")
		default:
			t.Error("expected a response to be queued, but none was")
		}
	})

	t.Run("publish from non-member", func(t *testing.T) {
		h := newTestHub(t, fakeRoomLister{})
		rt := newTestRouter(t, fakeMemberChecker{}, &fakeDeliverer{}, nil)
		c := newTestClient(t, h, rt, "user-1", "conn-1")

		c.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 2, Timestamp: Now()},
			Publish:     &Publish{RoomId: "room-a", Body: "hi"},
		})

		select {
		case msg := <-c.connection.Outbox():
			assert.NotNil(t, msg.Response, "expected a response to be queued")
			assert.Equal(t, 2, msg.Id, "expected response id to match")
			assert.Equal(t, http.StatusForbidden, msg.Response.ResponseCode, "expected response code to be 403")
		default:
			t.Error("expected a response to be queued, but none was")
		}
	})

	t.Run("publish with missing fields", func(t *testing.T) {
		h := newTestHub(t, fakeRoomLister{})
		rt := newTestRouter(t, fakeMemberChecker{}, &fakeDeliverer{}, nil)
		c := newTestClient(t, h, rt, "user-1", "conn-1")

		c.handlePublish(&ClientMessage{
			BaseMessage: BaseMessage{Id: 3, Timestamp: Now()},
			Publish:     &Publish{RoomId: "room-a"},
		})

		select {
		case msg := <-c.connection.Outbox():
			assert.NotNil(t, msg.Response, "expected a response to be queued")
			assert.Equal(t, http.StatusBadRequest, msg.Response.ResponseCode, "expected response code to be 400")
		default:
			t.Error("expected a response to be queued, but none was")
		}
	})
}

func Test_SendHistory(t *testing.T) {
	h := newTestHub(t, fakeRoomLister{"user-1": {"room-a"}})
	rt := newTestRouter(t, fakeMemberChecker{}, &fakeDeliverer{}, nil)
	c := newTestClient(t, h, rt, "user-1", "conn-1")

	history := []types.Message{
		{Id: "m1", RoomId: "room-a", SeqId: 1, Body: "first"},
		{Id: "m2", RoomId: "room-a", SeqId: 2, Body: "second"},
	}
	c.SendHistory(history)

	for i, expected := range history {
		select {
		case msg := <-c.connection.Outbox():
			assert.NotNil(t, msg.Message, "expected a chat message")
			assert.Equal(t, expected.Id, msg.Message.Id, "expected history message %d to be queued in order", i)
		default:
			t.Fatalf("expected history message %d to be queued", i)
		}
	}
}

func Test_cleanup(t *testing.T) {
	h := newTestHub(t, fakeRoomLister{"user-1": {"room-a"}})
	rt := newTestRouter(t, fakeMemberChecker{}, &fakeDeliverer{}, nil)
	c := newTestClient(t, h, rt, "user-1", "conn-1")

	c.cleanup()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}

	select {
	case <-c.connection.Closed():
	default:
		t.Error("expected hub connection to be closed")
	}

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1})
	assert.Empty(t, report.Delivered, "expected no deliveries after cleanup")
}

func TestConnectionQueue(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		conn := newConnection("user-1", "conn-1")

		res := conn.Queue(&ServerMessage{})
		assert.True(t, res, "expected Queue to return true when the queue has space")

		select {
		case msg := <-conn.Outbox():
			assert.NotNil(t, msg, "expected a message in the outbox")
		default:
			t.Error("expected a message in the outbox, but none was queued")
		}
	})

	t.Run("queue full", func(t *testing.T) {
		conn := newConnection("user-1", "conn-1")
		for i := 0; i < sendQueueSize; i++ {
			conn.Queue(&ServerMessage{})
		}

		res := conn.Queue(&ServerMessage{})
		assert.False(t, res, "expected Queue to return false when the queue is full")
	})

	t.Run("queue after close", func(t *testing.T) {
		conn := newConnection("user-1", "conn-1")
		conn.close()

		res := conn.Queue(&ServerMessage{})
		assert.False(t, res, "expected Queue to return false after close")
	})
}
