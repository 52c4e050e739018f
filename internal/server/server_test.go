package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RemyAde/kopa-backend/internal/stats"
	"github.com/RemyAde/kopa-backend/internal/testutil"
	"github.com/RemyAde/kopa-backend/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type fakeRoomLister map[string][]string

func (f fakeRoomLister) ListRoomsForUser(userId string) []string {
	return f[userId]
}

// newTestHub creates a Hub with a permissive stats mock for testing purposes.
func newTestHub(t *testing.T, memberships RoomLister) *Hub {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	return NewHub(testutil.TestLogger(t), memberships, su)
}

func TestNewHub(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	defer su.AssertExpectations(t)
	su.On("RegisterMetric", "NumConnections").Once()
	su.On("RegisterMetric", "NumActiveRooms").Once()
	su.On("RegisterMetric", "NumMessagesDelivered").Once()
	su.On("RegisterMetric", "NumMessagesDropped").Once()

	h := NewHub(testutil.TestLogger(t), fakeRoomLister{}, su)
	assert.NotNil(t, h, "expected hub to be non-nil")
	assert.NotNil(t, h.rooms, "expected rooms map to be initialized")
	assert.NotNil(t, h.conns, "expected conns map to be initialized")
}

func TestConnectSubscribesToMemberRooms(t *testing.T) {
	h := newTestHub(t, fakeRoomLister{"user-1": {"room-a", "room-b"}})

	conn := h.Connect("user-1", "conn-1")
	assert.Equal(t, "user-1", conn.UserId(), "expected connection user id to match")
	assert.ElementsMatch(t, []string{"room-a", "room-b"}, conn.roomIds(), "expected connection subscribed to member rooms")

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1, Body: "hi"})
	assert.Equal(t, []string{"conn-1"}, report.Delivered, "expected delivery to the connected session")
}

func TestDeliverOrderPreservedPerRoom(t *testing.T) {
	lister := fakeRoomLister{
		"user-x": {"room-a"},
		"user-y": {"room-a"},
		"user-z": {"room-a"},
	}
	h := newTestHub(t, lister)

	conns := []*Connection{
		h.Connect("user-x", "conn-x"),
		h.Connect("user-y", "conn-y"),
		h.Connect("user-z", "conn-z"),
	}

	const numMessages = 50
	for i := 1; i <= numMessages; i++ {
		report := h.Deliver("room-a", &types.Message{
			Id:     fmt.Sprintf("msg-%d", i),
			RoomId: "room-a",
			SeqId:  int64(i),
		})
		assert.Len(t, report.Delivered, 3, "expected message %d delivered to all connections", i)
		assert.Empty(t, report.Failed, "expected no failures for message %d", i)
	}

	for _, conn := range conns {
		for i := 1; i <= numMessages; i++ {
			select {
			case msg := <-conn.Outbox():
				assert.Equal(t, int64(i), msg.Message.SeqId,
					"expected connection %q to observe messages in delivery order", conn.Id())
			default:
				t.Fatalf("connection %q missing message %d", conn.Id(), i)
			}
		}
	}
}

func TestDeliverToUnknownRoom(t *testing.T) {
	h := newTestHub(t, fakeRoomLister{})

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 7})
	assert.Equal(t, "room-a", report.RoomId, "expected report room id to match")
	assert.Equal(t, int64(7), report.SeqId, "expected report seq id to match")
	assert.Empty(t, report.Delivered, "expected no deliveries for a room with no connections")
	assert.Empty(t, report.Failed, "expected no failures for a room with no connections")
}

func TestDeliverSkipsClosedConnection(t *testing.T) {
	lister := fakeRoomLister{
		"user-x": {"room-a"},
		"user-y": {"room-a"},
		"user-z": {"room-a"},
	}
	h := newTestHub(t, lister)

	connX := h.Connect("user-x", "conn-x")
	connY := h.Connect("user-y", "conn-y")
	connZ := h.Connect("user-z", "conn-z")

	// Simulate a disconnect racing an in-flight delivery: the connection is
	// closed but its unsubscribe has not yet been processed.
	connY.close()

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1})
	assert.ElementsMatch(t, []string{"conn-x", "conn-z"}, report.Delivered, "expected the live connections to receive the message")
	assert.Equal(t, []string{"conn-y"}, report.Failed, "expected the closed connection to be recorded as failed")

	for _, conn := range []*Connection{connX, connZ} {
		select {
		case msg := <-conn.Outbox():
			assert.Equal(t, int64(1), msg.Message.SeqId, "expected connection %q to receive the message", conn.Id())
		default:
			t.Errorf("connection %q did not receive the message", conn.Id())
		}
	}
}

func TestDeliverPrunesClosedConnection(t *testing.T) {
	lister := fakeRoomLister{
		"user-x": {"room-a"},
		"user-y": {"room-a"},
	}
	h := newTestHub(t, lister)

	h.Connect("user-x", "conn-x")
	connY := h.Connect("user-y", "conn-y")
	connY.close()

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1})
	assert.Equal(t, []string{"conn-y"}, report.Failed, "expected the closed connection to be recorded as failed once")

	// The closed connection is dropped from the room on the first delivery,
	// so it must not be reported again.
	report = h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 2})
	assert.Equal(t, []string{"conn-x"}, report.Delivered, "expected only the live connection in the room")
	assert.Empty(t, report.Failed, "expected no failures once the closed connection is pruned")
}

func TestDeliverRecordsFullQueueAsFailed(t *testing.T) {
	h := newTestHub(t, fakeRoomLister{"user-x": {"room-a"}})

	conn := h.Connect("user-x", "conn-x")
	for i := 0; i < sendQueueSize; i++ {
		assert.True(t, conn.Queue(&ServerMessage{}), "expected queue to accept message %d", i)
	}

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1})
	assert.Equal(t, []string{"conn-x"}, report.Failed, "expected overflowing connection to be recorded as failed")
}

func TestDisconnect(t *testing.T) {
	h := newTestHub(t, fakeRoomLister{"user-x": {"room-a"}})

	conn := h.Connect("user-x", "conn-x")
	h.Disconnect("user-x", "conn-x")

	select {
	case <-conn.Closed():
	default:
		t.Error("expected connection to be closed after disconnect")
	}

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1})
	assert.Empty(t, report.Delivered, "expected no deliveries after disconnect")
	assert.Empty(t, report.Failed, "expected connection to be fully unsubscribed after disconnect")

	// removing an already-removed connection is a no-op
	h.Disconnect("user-x", "conn-x")
	h.Disconnect("unknown", "conn-1")
}

func TestDisconnectConcurrentWithDeliver(t *testing.T) {
	lister := fakeRoomLister{
		"user-x": {"room-a"},
		"user-y": {"room-a"},
	}
	h := newTestHub(t, lister)

	h.Connect("user-x", "conn-x")
	h.Connect("user-y", "conn-y")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 100; i++ {
			h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: int64(i)})
		}
	}()
	go func() {
		defer wg.Done()
		h.Disconnect("user-y", "conn-y")
	}()
	wg.Wait()

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 101})
	assert.Equal(t, []string{"conn-x"}, report.Delivered, "expected only the remaining connection to receive messages")
}

func TestResubscribe(t *testing.T) {
	lister := fakeRoomLister{"user-x": {}}
	h := newTestHub(t, lister)

	conn := h.Connect("user-x", "conn-x")

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1})
	assert.Empty(t, report.Delivered, "expected no delivery before membership is granted")

	// membership changes after connect are not retroactive until resubscribe
	lister["user-x"] = []string{"room-a"}
	h.Resubscribe("user-x", "conn-x")

	report = h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 2})
	assert.Equal(t, []string{"conn-x"}, report.Delivered, "expected delivery after resubscribe")
	assert.Equal(t, []string{"room-a"}, conn.roomIds(), "expected connection room set to be refreshed")

	lister["user-x"] = nil
	h.Resubscribe("user-x", "conn-x")
	assert.Empty(t, conn.roomIds(), "expected revoked rooms to be unsubscribed on resubscribe")
}

func TestHubShutdown(t *testing.T) {
	h := newTestHub(t, fakeRoomLister{"user-x": {"room-a"}})
	conn := h.Connect("user-x", "conn-x")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := h.Shutdown(ctx)
	assert.NoError(t, err, "expected clean shutdown")

	select {
	case <-conn.Closed():
	default:
		t.Error("expected connections to be closed on shutdown")
	}

	report := h.Deliver("room-a", &types.Message{RoomId: "room-a", SeqId: 1})
	assert.Empty(t, report.Delivered, "expected no deliveries after shutdown")

	post := h.Connect("user-x", "conn-2")
	select {
	case <-post.Closed():
	default:
		t.Error("expected connections made after shutdown to be closed immediately")
	}
}
