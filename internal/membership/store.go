package membership

import (
	"errors"
	"hash/fnv"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/RemyAde/kopa-backend/internal/types"
)

var (
	ErrAlreadyMember = errors.New("user is already a member of room")
	ErrNotMember     = errors.New("user is not a member of room")
)

// numShards bounds lock contention without serializing unrelated users/rooms.
const numShards = 32

// Recorder receives every membership change for durable storage. The store
// never reads back from it; a recorder failure is logged and does not undo
// the in-memory change.
type Recorder interface {
	SaveMembership(m types.Membership) error
	DeleteMembership(userId, roomId string) error
}

type userShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]types.Membership // userId -> roomId -> membership
}

type roomShard struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // roomId -> userId set
}

// Store is the authoritative membership record. A (userId, roomId) pair lives
// in exactly one user shard, so uniqueness of concurrent adds is decided under
// that shard's lock; the room index is maintained alongside for member
// queries.
type Store struct {
	log        *log.Logger
	rec        Recorder
	userShards [numShards]userShard
	roomShards [numShards]roomShard
}

func NewStore(logger *log.Logger, rec Recorder) *Store {
	s := &Store{
		log: logger,
		rec: rec,
	}
	for i := range s.userShards {
		s.userShards[i].rooms = make(map[string]map[string]types.Membership)
	}
	for i := range s.roomShards {
		s.roomShards[i].members = make(map[string]map[string]struct{})
	}

	return s
}

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % numShards)
}

func (s *Store) Add(userId, roomId string) (types.Membership, error) {
	m := types.Membership{
		UserId:   userId,
		RoomId:   roomId,
		JoinedAt: time.Now().UTC(),
	}

	if err := s.insert(m); err != nil {
		return types.Membership{}, err
	}

	if s.rec != nil {
		if err := s.rec.SaveMembership(m); err != nil {
			s.log.Printf("save membership (%s, %s): %v", userId, roomId, err)
		}
	}

	return m, nil
}

// Restore replays a previously persisted membership into the store without
// writing it back to the recorder. Used at startup.
func (s *Store) Restore(m types.Membership) error {
	return s.insert(m)
}

// insert updates both indexes while holding the user shard lock, so no
// concurrent Add or Remove for the same pair can ever leave one index
// reflecting the change without the other. Lock order is always user shard
// then room shard; readers take a single lock, so the nesting cannot
// deadlock.
func (s *Store) insert(m types.Membership) error {
	us := &s.userShards[shardIndex(m.UserId)]

	us.mu.Lock()
	defer us.mu.Unlock()

	if _, ok := us.rooms[m.UserId][m.RoomId]; ok {
		return ErrAlreadyMember
	}

	if us.rooms[m.UserId] == nil {
		us.rooms[m.UserId] = make(map[string]types.Membership)
	}
	us.rooms[m.UserId][m.RoomId] = m

	rs := &s.roomShards[shardIndex(m.RoomId)]
	rs.mu.Lock()
	if rs.members[m.RoomId] == nil {
		rs.members[m.RoomId] = make(map[string]struct{})
	}
	rs.members[m.RoomId][m.UserId] = struct{}{}
	rs.mu.Unlock()

	return nil
}

func (s *Store) Remove(userId, roomId string) error {
	us := &s.userShards[shardIndex(userId)]

	us.mu.Lock()
	if _, ok := us.rooms[userId][roomId]; !ok {
		us.mu.Unlock()
		return ErrNotMember
	}

	delete(us.rooms[userId], roomId)
	if len(us.rooms[userId]) == 0 {
		delete(us.rooms, userId)
	}

	rs := &s.roomShards[shardIndex(roomId)]
	rs.mu.Lock()
	delete(rs.members[roomId], userId)
	if len(rs.members[roomId]) == 0 {
		delete(rs.members, roomId)
	}
	rs.mu.Unlock()
	us.mu.Unlock()

	if s.rec != nil {
		if err := s.rec.DeleteMembership(userId, roomId); err != nil {
			s.log.Printf("delete membership (%s, %s): %v", userId, roomId, err)
		}
	}

	return nil
}

func (s *Store) IsMember(userId, roomId string) bool {
	us := &s.userShards[shardIndex(userId)]

	us.mu.RLock()
	defer us.mu.RUnlock()
	_, ok := us.rooms[userId][roomId]

	return ok
}

func (s *Store) ListRoomsForUser(userId string) []string {
	us := &s.userShards[shardIndex(userId)]

	us.mu.RLock()
	rooms := make([]string, 0, len(us.rooms[userId]))
	for roomId := range us.rooms[userId] {
		rooms = append(rooms, roomId)
	}
	us.mu.RUnlock()

	sort.Strings(rooms)
	return rooms
}

func (s *Store) ListMembersForRoom(roomId string) []string {
	rs := &s.roomShards[shardIndex(roomId)]

	rs.mu.RLock()
	members := make([]string, 0, len(rs.members[roomId]))
	for userId := range rs.members[roomId] {
		members = append(members, userId)
	}
	rs.mu.RUnlock()

	sort.Strings(members)
	return members
}

// MemberCount backs room-capacity eligibility checks.
func (s *Store) MemberCount(roomId string) int {
	rs := &s.roomShards[shardIndex(roomId)]

	rs.mu.RLock()
	defer rs.mu.RUnlock()

	return len(rs.members[roomId])
}
