package session

import (
	"context"
	"sync"
	"time"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/Animeshkr9044/pair-programming-prototype/metrics"
	"github.com/sirupsen/logrus"
)

const autosaveWriteTimeout = 10 * time.Second

// autosaver writes relayed buffers back to the store. The first unsaved
// update of a room arms a timer; whatever content is latest when it fires is
// written, so a room is written at most once per delay.
type autosaver struct {
	store core.RoomStore
	delay time.Duration

	// writeMu serializes store writes so a later snapshot is never
	// overwritten by an earlier one.
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]string
	timers  map[string]*time.Timer
	closed  bool
}

func newAutosaver(store core.RoomStore, delay time.Duration) *autosaver {
	return &autosaver{
		store:   store,
		delay:   delay,
		pending: make(map[string]string),
		timers:  make(map[string]*time.Timer),
	}
}

func (a *autosaver) schedule(roomID, content string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	a.pending[roomID] = content
	if _, armed := a.timers[roomID]; armed {
		return
	}
	a.timers[roomID] = time.AfterFunc(a.delay, func() { a.fire(roomID) })
}

// discard drops any unsaved update for roomID.
func (a *autosaver) discard(roomID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, roomID)
	if t, ok := a.timers[roomID]; ok {
		t.Stop()
		delete(a.timers, roomID)
	}
}

// save writes content for roomID once any in-flight write-back has landed and
// drops the room's pending one.
func (a *autosaver) save(ctx context.Context, roomID, content string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.discard(roomID)
	return a.store.SetContent(ctx, roomID, content)
}

func (a *autosaver) fire(roomID string) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	content, ok := a.pending[roomID]
	delete(a.pending, roomID)
	delete(a.timers, roomID)
	a.mu.Unlock()

	if ok {
		a.write(roomID, content)
	}
}

// Close stops the timers and writes everything still pending.
func (a *autosaver) Close() {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.closed = true
	for _, t := range a.timers {
		t.Stop()
	}
	pending := a.pending
	a.pending = make(map[string]string)
	a.timers = make(map[string]*time.Timer)
	a.mu.Unlock()

	for roomID, content := range pending {
		a.write(roomID, content)
	}
	if len(pending) > 0 {
		logrus.WithField("rooms", len(pending)).Info("Flushed pending room content")
	}
}

func (a *autosaver) write(roomID, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), autosaveWriteTimeout)
	defer cancel()

	if err := a.store.SetContent(ctx, roomID, content); err != nil {
		metrics.StoreError("autosave")
		logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"error":   err,
		}).Warn("Failed to persist relayed content")
		return
	}
	logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"data_length": len(content),
	}).Debug("Persisted relayed content")
}
