package server

import (
	"log"
	"sync"

	"github.com/RemyAde/kopa-backend/internal/membership"
	"github.com/RemyAde/kopa-backend/internal/types"
	"github.com/google/uuid"
)

type Deliverer interface {
	Deliver(roomId string, msg *types.Message) DeliveryReport
}

type MemberChecker interface {
	IsMember(userId, roomId string) bool
}

// MessageRecorder receives every routed message for durable storage; routing
// correctness never depends on it.
type MessageRecorder interface {
	SaveMessage(msg types.Message) error
}

// Router validates inbound messages against membership, assigns per-room
// sequence numbers, and hands fully formed messages to the hub for fan-out.
type Router struct {
	log         *log.Logger
	memberships MemberChecker
	hub         Deliverer
	rec         MessageRecorder

	mu   sync.Mutex
	seqs map[string]*roomSeq
}

type roomSeq struct {
	mu sync.Mutex
	n  int64
}

func NewRouter(logger *log.Logger, memberships MemberChecker, hub Deliverer, rec MessageRecorder) *Router {
	return &Router{
		log:         logger,
		memberships: memberships,
		hub:         hub,
		rec:         rec,
		seqs:        make(map[string]*roomSeq),
	}
}

// Send routes body from userId into roomId. Non-members are rejected with
// membership.ErrNotMember before any sequence number is consumed.
func (rt *Router) Send(userId, roomId, body string) (*types.Message, error) {
	if !rt.memberships.IsMember(userId, roomId) {
		return nil, membership.ErrNotMember
	}

	msg := &types.Message{
		Id:        uuid.NewString(),
		RoomId:    roomId,
		SenderId:  userId,
		Body:      body,
		SeqId:     rt.nextSeq(roomId),
		Timestamp: Now(),
	}

	if rt.rec != nil {
		if err := rt.rec.SaveMessage(*msg); err != nil {
			rt.log.Printf("save message %q: %v", msg.Id, err)
		}
	}

	report := rt.hub.Deliver(roomId, msg)
	if len(report.Failed) > 0 {
		rt.log.Printf("dropped message seq %d for %d connection(s) in room %q",
			report.SeqId, len(report.Failed), roomId)
	}

	return msg, nil
}

// Advance raises roomId's sequence counter to at least n. Called at startup
// so numbering continues after previously persisted messages.
func (rt *Router) Advance(roomId string, n int64) {
	rt.mu.Lock()
	seq := rt.seqs[roomId]
	if seq == nil {
		seq = &roomSeq{}
		rt.seqs[roomId] = seq
	}
	rt.mu.Unlock()

	seq.mu.Lock()
	if seq.n < n {
		seq.n = n
	}
	seq.mu.Unlock()
}

// nextSeq hands out monotonically increasing sequence numbers per room. The
// per-room lock is the linearization point; no two messages in one room ever
// share a number.
func (rt *Router) nextSeq(roomId string) int64 {
	rt.mu.Lock()
	seq := rt.seqs[roomId]
	if seq == nil {
		seq = &roomSeq{}
		rt.seqs[roomId] = seq
	}
	rt.mu.Unlock()

	seq.mu.Lock()
	defer seq.mu.Unlock()
	seq.n++

	return seq.n
}
