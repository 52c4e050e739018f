package server

import (
	"log"
	"sort"

	"github.com/RemyAde/kopa-backend/internal/stats"
	"github.com/RemyAde/kopa-backend/internal/types"
)

const dispatchQueueSize = 256

// DeliveryReport records the per-connection outcome of one fan-out, for
// observability only.
type DeliveryReport struct {
	RoomId    string   `json:"room_id"`
	SeqId     int64    `json:"seq_id"`
	Delivered []string `json:"delivered,omitempty"`
	Failed    []string `json:"failed,omitempty"`
}

type deliverJob struct {
	msg    *ServerMessage
	report chan DeliveryReport
}

type subReq struct {
	conn *Connection
	done chan struct{}
}

// roomDispatcher serializes all delivery for one room on a single goroutine,
// so every recipient observes messages in the same relative order. Enqueueing
// to a connection never blocks, so one slow consumer cannot stall the room.
type roomDispatcher struct {
	roomId string
	log    *log.Logger
	stats  stats.StatsProvider

	jobs        chan deliverJob
	subscribe   chan subReq
	unsubscribe chan subReq
	exit        chan struct{}
	done        chan struct{}

	conns map[string]*Connection
}

func newRoomDispatcher(roomId string, logger *log.Logger, su stats.StatsProvider) *roomDispatcher {
	return &roomDispatcher{
		roomId:      roomId,
		log:         logger,
		stats:       su,
		jobs:        make(chan deliverJob, dispatchQueueSize),
		subscribe:   make(chan subReq),
		unsubscribe: make(chan subReq),
		exit:        make(chan struct{}),
		done:        make(chan struct{}),
		conns:       make(map[string]*Connection),
	}
}

func (d *roomDispatcher) run() {
	defer close(d.done)

	for {
		select {
		case req := <-d.subscribe:
			d.conns[req.conn.id] = req.conn
			close(req.done)
		case req := <-d.unsubscribe:
			delete(d.conns, req.conn.id)
			close(req.done)
		case job := <-d.jobs:
			job.report <- d.fanOut(job.msg)
		case <-d.exit:
			d.log.Printf("dispatcher for room %q exiting", d.roomId)
			return
		}
	}
}

func (d *roomDispatcher) fanOut(msg *ServerMessage) DeliveryReport {
	report := DeliveryReport{RoomId: d.roomId}
	if msg.Message != nil {
		report.SeqId = msg.Message.SeqId
	}

	for id, conn := range d.conns {
		select {
		case <-conn.Closed():
			// A connection can close between its unsubscribe being
			// requested and processed. Drop it here so it does not
			// stay subscribed and fail every delivery.
			delete(d.conns, id)
			report.Failed = append(report.Failed, id)
			d.stats.Incr("NumMessagesDropped")
			continue
		default:
		}
		if conn.Queue(msg) {
			report.Delivered = append(report.Delivered, id)
			d.stats.Incr("NumMessagesDelivered")
		} else {
			report.Failed = append(report.Failed, id)
			d.stats.Incr("NumMessagesDropped")
		}
	}

	sort.Strings(report.Delivered)
	sort.Strings(report.Failed)

	return report
}

func (d *roomDispatcher) deliver(msg *types.Message) DeliveryReport {
	job := deliverJob{
		msg: &ServerMessage{
			BaseMessage: BaseMessage{Timestamp: msg.Timestamp},
			Message:     msg,
		},
		report: make(chan DeliveryReport, 1),
	}

	select {
	case d.jobs <- job:
	case <-d.done:
		return DeliveryReport{RoomId: d.roomId, SeqId: msg.SeqId}
	}

	select {
	case report := <-job.report:
		return report
	case <-d.done:
		return DeliveryReport{RoomId: d.roomId, SeqId: msg.SeqId}
	}
}

func (d *roomDispatcher) sub(conn *Connection) {
	req := subReq{conn: conn, done: make(chan struct{})}
	select {
	case d.subscribe <- req:
		<-req.done
	case <-d.done:
	}
}

func (d *roomDispatcher) unsub(conn *Connection) {
	req := subReq{conn: conn, done: make(chan struct{})}
	select {
	case d.unsubscribe <- req:
		<-req.done
	case <-d.done:
	}
}
