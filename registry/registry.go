// Package registry tracks which connections are joined to which room and fans
// messages out to them.
//
// Membership of each room is guarded by its own lock; the registry-wide lock
// only protects the room index and is never held while a room lock is taken.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/Animeshkr9044/pair-programming-prototype/metrics"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQueueSize    = 256
	DefaultWriteTimeout = 10 * time.Second
)

type Options struct {
	// QueueSize bounds the number of undelivered messages per member.
	QueueSize int
	// WriteTimeout bounds a single send to a member's channel.
	WriteTimeout time.Duration
}

type Registry struct {
	opts Options

	mu      sync.RWMutex
	rooms   map[string]*room
	members map[core.Conn]*Member
}

type room struct {
	id      string
	mu      sync.RWMutex
	members map[core.Conn]*Member
	// closed is set under mu once the last member leaves; a closed room is
	// replaced rather than reused.
	closed atomic.Bool
}

func New(opts Options) *Registry {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Registry{
		opts:    opts,
		rooms:   make(map[string]*room),
		members: make(map[core.Conn]*Member),
	}
}

// Join registers conn under roomID and returns its membership. Joining the
// same room twice returns the existing membership; joining a different room
// moves the connection.
//
// Broadcasts are queued for the member from the moment Join returns but are
// only written once Start is called.
func (r *Registry) Join(roomID string, conn core.Conn) *Member {
	for {
		r.mu.Lock()
		if existing, ok := r.members[conn]; ok {
			r.mu.Unlock()
			if existing.roomID == roomID {
				return existing
			}
			r.leaveMember(existing)
			continue
		}

		rm := r.rooms[roomID]
		if rm == nil || rm.closed.Load() {
			rm = &room{id: roomID, members: make(map[core.Conn]*Member)}
			r.rooms[roomID] = rm
			metrics.RoomOpened()
		}
		m := newMember(r, roomID, conn)
		r.members[conn] = m
		r.mu.Unlock()

		rm.mu.Lock()
		if rm.closed.Load() {
			rm.mu.Unlock()
			r.mu.Lock()
			if r.members[conn] == m {
				delete(r.members, conn)
			}
			r.mu.Unlock()
			continue
		}
		rm.members[conn] = m
		count := len(rm.members)
		rm.mu.Unlock()

		metrics.ConnectionJoined()
		m.log.WithField("users", count).Info("Client joined room")
		return m
	}
}

// Leave removes conn from roomID. It is a no-op when conn is not a member of
// that room.
func (r *Registry) Leave(roomID string, conn core.Conn) {
	r.mu.RLock()
	m, ok := r.members[conn]
	r.mu.RUnlock()
	if !ok || m.roomID != roomID {
		return
	}
	r.leaveMember(m)
}

func (r *Registry) leaveMember(m *Member) {
	r.mu.Lock()
	if r.members[m.conn] != m {
		r.mu.Unlock()
		return
	}
	delete(r.members, m.conn)
	rm := r.rooms[m.roomID]
	r.mu.Unlock()

	m.stop()
	metrics.ConnectionLeft()
	if rm == nil {
		return
	}

	rm.mu.Lock()
	delete(rm.members, m.conn)
	remaining := len(rm.members)
	if remaining == 0 {
		rm.closed.Store(true)
	}
	rm.mu.Unlock()

	if remaining > 0 {
		m.log.WithField("remaining", remaining).Info("Client left room")
		return
	}

	r.mu.Lock()
	if r.rooms[m.roomID] == rm {
		delete(r.rooms, m.roomID)
	}
	r.mu.Unlock()
	metrics.RoomClosed()
	m.log.Info("Room closed (empty)")
}

// Broadcast queues message for every member of roomID except exclude and
// returns how many members it was queued for. Members whose queue is full
// are evicted; the rest of the fan-out is unaffected.
func (r *Registry) Broadcast(roomID, message string, exclude core.Conn) int {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm == nil {
		return 0
	}

	var (
		queued int
		slow   []*Member
	)
	rm.mu.RLock()
	for conn, m := range rm.members {
		if conn == exclude {
			continue
		}
		switch m.enqueue(message) {
		case enqueued:
			queued++
		case queueFull:
			slow = append(slow, m)
		}
	}
	rm.mu.RUnlock()

	for _, m := range slow {
		m.evict("queue_full")
	}
	metrics.MessageRelayed(queued)
	return queued
}

// Members returns the number of connections joined to roomID.
func (r *Registry) Members(roomID string) int {
	r.mu.RLock()
	rm := r.rooms[roomID]
	r.mu.RUnlock()
	if rm == nil {
		return 0
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.members)
}

// HasRoom reports whether roomID currently has a membership entry.
func (r *Registry) HasRoom(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Rooms lists active rooms, busiest first.
func (r *Registry) Rooms() []core.ActiveRoom {
	r.mu.RLock()
	snapshot := make([]*room, 0, len(r.rooms))
	for _, rm := range r.rooms {
		snapshot = append(snapshot, rm)
	}
	r.mu.RUnlock()

	active := make([]core.ActiveRoom, 0, len(snapshot))
	for _, rm := range snapshot {
		rm.mu.RLock()
		users := len(rm.members)
		rm.mu.RUnlock()
		if users > 0 {
			active = append(active, core.ActiveRoom{ID: rm.id, Users: users})
		}
	}

	sort.Slice(active, func(i, j int) bool {
		if active[i].Users == active[j].Users {
			return active[i].ID < active[j].ID
		}
		return active[i].Users > active[j].Users
	})
	return active
}

// Shutdown closes every member's channel. Their receive loops observe the
// closure and leave through the normal path.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	all := make([]*Member, 0, len(r.members))
	for _, m := range r.members {
		all = append(all, m)
	}
	r.mu.RUnlock()

	for _, m := range all {
		if err := m.conn.Close(); err != nil {
			m.log.WithError(err).Debug("Failed to close connection during shutdown")
		}
	}
	logrus.WithField("connections", len(all)).Info("Registry shut down")
}
