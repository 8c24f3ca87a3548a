package registry

import (
	"context"
	"sync"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/Animeshkr9044/pair-programming-prototype/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

type enqueueResult int

const (
	enqueued enqueueResult = iota
	queueFull
	stopped
)

// Member is one connection's membership in a room. Its outbound queue is
// drained by a dedicated writer so a slow channel only delays itself.
type Member struct {
	id     string
	roomID string
	conn   core.Conn
	reg    *Registry
	log    *logrus.Entry

	out  chan string
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	evictOnce sync.Once
}

func newMember(reg *Registry, roomID string, conn core.Conn) *Member {
	id := ulid.Make().String()
	return &Member{
		id:     id,
		roomID: roomID,
		conn:   conn,
		reg:    reg,
		log:    logrus.WithFields(logrus.Fields{"room_id": roomID, "conn_id": id}),
		out:    make(chan string, reg.opts.QueueSize),
		done:   make(chan struct{}),
	}
}

func (m *Member) ID() string { return m.id }

func (m *Member) RoomID() string { return m.roomID }

func (m *Member) Conn() core.Conn { return m.conn }

// Start begins delivery. A non-empty initial message is written before any
// queued broadcast.
func (m *Member) Start(initial string) {
	m.startOnce.Do(func() {
		go m.writeLoop(initial)
	})
}

// Done is closed once the member has left its room.
func (m *Member) Done() <-chan struct{} { return m.done }

func (m *Member) enqueue(message string) enqueueResult {
	select {
	case <-m.done:
		return stopped
	default:
	}

	select {
	case m.out <- message:
		return enqueued
	case <-m.done:
		return stopped
	default:
		return queueFull
	}
}

func (m *Member) stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

// evict drops a member that cannot be delivered to. Closing the channel ends
// its receive loop, which then runs the usual cleanup.
func (m *Member) evict(reason string) {
	m.evictOnce.Do(func() {
		m.log.WithField("reason", reason).Warn("Evicting peer")
		metrics.PeerEvicted(reason)
		m.reg.leaveMember(m)
		if err := m.conn.Close(); err != nil {
			m.log.WithError(err).Debug("Failed to close evicted connection")
		}
	})
}

func (m *Member) send(message string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), m.reg.opts.WriteTimeout)
	defer cancel()

	if err := m.conn.Send(ctx, message); err != nil {
		select {
		case <-m.done:
			// Already left; the channel was closed under us.
		default:
			m.log.WithError(err).Debug("Send failed")
			m.evict("write_failed")
		}
		return false
	}
	return true
}

func (m *Member) writeLoop(initial string) {
	if initial != "" && !m.send(initial) {
		return
	}

	for {
		select {
		case <-m.done:
			return
		case message := <-m.out:
			select {
			case <-m.done:
				return
			default:
			}
			if !m.send(message) {
				return
			}
		}
	}
}
