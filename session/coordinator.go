// Package session runs one client's participation in a room: join with the
// stored content pushed first, relay of every inbound message to the other
// members, and leave when the channel goes away.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/Animeshkr9044/pair-programming-prototype/metrics"
	"github.com/Animeshkr9044/pair-programming-prototype/registry"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// AutoPersist writes relayed messages back to the store as the room's
	// content. Without it content only changes through Save.
	AutoPersist      bool
	AutoPersistDelay time.Duration
}

type Coordinator struct {
	store    core.RoomStore
	rooms    *registry.Registry
	autosave *autosaver

	mu       sync.Mutex
	draining bool
	running  sync.WaitGroup
}

func New(store core.RoomStore, rooms *registry.Registry, opts Options) *Coordinator {
	c := &Coordinator{store: store, rooms: rooms}
	if opts.AutoPersist {
		delay := opts.AutoPersistDelay
		if delay <= 0 {
			delay = 500 * time.Millisecond
		}
		c.autosave = newAutosaver(store, delay)
	}
	return c
}

// Serve joins conn to roomID and relays its messages until the channel is
// closed or ctx is done. It always leaves the room before returning. A
// closed channel is a normal end and returns nil.
func (c *Coordinator) Serve(ctx context.Context, roomID string, conn core.Conn) error {
	if !c.begin() {
		_ = conn.Close()
		return nil
	}
	defer c.running.Done()

	member := c.rooms.Join(roomID, conn)
	defer c.rooms.Leave(roomID, conn)

	log := logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"conn_id": member.ID(),
	})

	content, err := c.store.GetContent(ctx, roomID)
	if err != nil {
		metrics.StoreError("get_content")
		log.WithError(err).Warn("Could not load room content, skipping initial sync")
		content = ""
	}
	member.Start(content)

	for {
		message, err := conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, core.ErrClosed) || ctx.Err() != nil {
				log.Debug("Channel closed")
				return nil
			}
			return fmt.Errorf("receive from %s: %w", member.ID(), err)
		}

		select {
		case <-member.Done():
			// Evicted or moved to another room; the channel is no longer ours.
			return nil
		default:
		}

		n := c.rooms.Broadcast(roomID, message, conn)
		log.WithFields(logrus.Fields{
			"recipients":  n,
			"data_length": len(message),
		}).Debug("Relayed update")

		if c.autosave != nil {
			c.autosave.schedule(roomID, message)
		}
	}
}

func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draining {
		return false
	}
	c.running.Add(1)
	return true
}

// Drain refuses new sessions and waits for running ones to return. Callers
// close the members' channels first, usually with Registry.Shutdown.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.mu.Lock()
	c.draining = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Save overwrites the stored content of roomID. Nothing is broadcast.
func (c *Coordinator) Save(ctx context.Context, roomID, content string) error {
	var err error
	if c.autosave != nil {
		err = c.autosave.save(ctx, roomID, content)
	} else {
		err = c.store.SetContent(ctx, roomID, content)
	}
	if err != nil {
		metrics.StoreError("set_content")
		return fmt.Errorf("save room %s: %w", roomID, err)
	}
	return nil
}

// Content returns the stored content of roomID, "" for unknown rooms.
func (c *Coordinator) Content(ctx context.Context, roomID string) (string, error) {
	content, err := c.store.GetContent(ctx, roomID)
	if err != nil {
		metrics.StoreError("get_content")
		return "", fmt.Errorf("load room %s: %w", roomID, err)
	}
	return content, nil
}

func (c *Coordinator) CreateRoom(ctx context.Context) (string, error) {
	id, err := c.store.CreateRoom(ctx)
	if err != nil {
		metrics.StoreError("create_room")
		return "", fmt.Errorf("create room: %w", err)
	}
	return id, nil
}

// ActiveRooms lists rooms with live members.
func (c *Coordinator) ActiveRooms() []core.ActiveRoom {
	return c.rooms.Rooms()
}

// Close writes any pending relayed content. Connections are not touched.
func (c *Coordinator) Close() {
	if c.autosave != nil {
		c.autosave.Close()
	}
}
