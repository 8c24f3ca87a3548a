package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/sirupsen/logrus"
)

type roomStore struct {
	mu    sync.RWMutex
	rooms map[string]string
	newID func() string
}

func NewRoomStore() core.RoomStore {
	return newRoomStore(core.NewRoomID)
}

func newRoomStore(newID func() string) *roomStore {
	return &roomStore{
		rooms: make(map[string]string),
		newID: newID,
	}
}

func (s *roomStore) CreateRoom(ctx context.Context) (string, error) {
	id := s.newID()

	s.mu.Lock()
	if _, exists := s.rooms[id]; exists {
		s.mu.Unlock()
		logrus.WithField("room_id", id).Error("Generated room id already exists")
		return "", fmt.Errorf("create room %s: %w", id, core.ErrRoomIDCollision)
	}
	s.rooms[id] = ""
	s.mu.Unlock()

	logrus.WithField("room_id", id).Info("Room created successfully")
	return id, nil
}

func (s *roomStore) GetContent(ctx context.Context, roomID string) (string, error) {
	s.mu.RLock()
	content, ok := s.rooms[roomID]
	s.mu.RUnlock()

	if !ok {
		logrus.WithField("room_id", roomID).Debug("Room not found, returning empty content")
	}
	return content, nil
}

func (s *roomStore) SetContent(ctx context.Context, roomID, content string) error {
	log := logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"data_length": len(content),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		log.Debug("Room not found, ignoring save")
		return nil
	}
	s.rooms[roomID] = content
	log.Debug("Room content saved")
	return nil
}

func (s *roomStore) Close() error { return nil }
