package services

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/praptisiva25/WorkBud/metrics"
	"github.com/praptisiva25/WorkBud/models"
)

// Session is a connected client as seen by the Dispatcher. Send must not
// block and must not call back into the Dispatcher.
type Session interface {
	ID() string
	UserID() string
	Send(payload []byte) error
	Close()
}

type room struct {
	// mu serializes fan-out so every member sees broadcasts in one order.
	mu      sync.Mutex
	members map[string]Session
}

// Dispatcher keeps one ephemeral room per thread and fans events out to the
// sessions joined to it. Empty rooms are dropped.
type Dispatcher struct {
	mu       sync.RWMutex
	sessions map[string]Session
	rooms    map[string]*room
	joined   map[string]map[string]struct{} // session id -> thread ids

	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sessions: map[string]Session{},
		rooms:    map[string]*room{},
		joined:   map[string]map[string]struct{}{},
		log:      log,
		metrics:  m,
	}
}

// Register tracks a newly connected session.
func (d *Dispatcher) Register(s Session) {
	d.mu.Lock()
	if _, ok := d.sessions[s.ID()]; !ok {
		d.sessions[s.ID()] = s
		d.joined[s.ID()] = map[string]struct{}{}
		d.metrics.SessionOpened()
	}
	d.mu.Unlock()
}

// Join adds s to the room of threadID. Joining twice is a no-op. The caller
// is responsible for checking thread membership first.
func (d *Dispatcher) Join(s Session, threadID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[s.ID()]; !ok {
		d.sessions[s.ID()] = s
		d.joined[s.ID()] = map[string]struct{}{}
		d.metrics.SessionOpened()
	}
	r := d.rooms[threadID]
	if r == nil {
		r = &room{members: map[string]Session{}}
		d.rooms[threadID] = r
		d.metrics.SetRooms(len(d.rooms))
	}
	r.mu.Lock()
	r.members[s.ID()] = s
	r.mu.Unlock()
	d.joined[s.ID()][threadID] = struct{}{}
	d.log.Debug("session joined",
		zap.String("room", models.RoomName(threadID)),
		zap.String("session_id", s.ID()),
		zap.String("user_id", s.UserID()))
}

func (d *Dispatcher) Leave(s Session, threadID string) {
	d.mu.Lock()
	d.leaveLocked(s.ID(), threadID)
	d.mu.Unlock()
}

// Disconnect removes s from every room it joined and forgets it. It is safe
// to call more than once.
func (d *Dispatcher) Disconnect(s Session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[s.ID()]; !ok {
		return
	}
	for threadID := range d.joined[s.ID()] {
		d.leaveLocked(s.ID(), threadID)
	}
	delete(d.joined, s.ID())
	delete(d.sessions, s.ID())
	d.metrics.SessionClosed()
}

// Broadcast delivers msg as a message:new event to every session in the
// thread's room, the sender's own sessions included. Delivery is best
// effort; it returns the number of sessions the event was enqueued to.
func (d *Dispatcher) Broadcast(threadID string, msg models.Message) int {
	payload, err := json.Marshal(models.Outbound{Type: models.EventMessageNew, ThreadID: threadID, Message: &msg})
	if err != nil {
		d.log.Error("failed to encode broadcast", zap.String("thread_id", threadID), zap.Error(err))
		return 0
	}
	return d.BroadcastRaw(threadID, payload)
}

// BroadcastRaw fans an already encoded frame out to the room.
func (d *Dispatcher) BroadcastRaw(threadID string, payload []byte) int {
	r := d.lockRoom(threadID)
	if r == nil {
		return 0
	}
	defer r.mu.Unlock()

	delivered, dropped := 0, 0
	for _, s := range r.members {
		if err := s.Send(payload); err != nil {
			dropped++
			d.log.Debug("dropped realtime event",
				zap.String("room", models.RoomName(threadID)),
				zap.String("session_id", s.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	d.metrics.Delivered(delivered)
	d.metrics.Drop(dropped)
	return delivered
}

// RoomSize reports how many sessions are joined to threadID.
func (d *Dispatcher) RoomSize(threadID string) int {
	r := d.lockRoom(threadID)
	if r == nil {
		return 0
	}
	defer r.mu.Unlock()
	return len(r.members)
}

// lockRoom returns the room of threadID with its mutex held. d.mu is kept
// until then, so a room emptied and dropped by Leave is never the one used.
func (d *Dispatcher) lockRoom(threadID string) *room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r := d.rooms[threadID]
	if r != nil {
		r.mu.Lock()
	}
	return r
}

// Rooms returns the ids of threads whose room is active.
func (d *Dispatcher) Rooms() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.rooms))
	for id := range d.rooms {
		out = append(out, id)
	}
	return out
}

// Close closes every tracked session and clears all rooms.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	sessions := make([]Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		sessions = append(sessions, s)
		d.metrics.SessionClosed()
	}
	d.sessions = map[string]Session{}
	d.rooms = map[string]*room{}
	d.joined = map[string]map[string]struct{}{}
	d.metrics.SetRooms(0)
	d.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (d *Dispatcher) leaveLocked(sessionID, threadID string) {
	if rooms, ok := d.joined[sessionID]; ok {
		delete(rooms, threadID)
	}
	r := d.rooms[threadID]
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.members, sessionID)
	empty := len(r.members) == 0
	r.mu.Unlock()
	if empty {
		delete(d.rooms, threadID)
		d.metrics.SetRooms(len(d.rooms))
	}
}
