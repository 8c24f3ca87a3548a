package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/sirupsen/logrus"
)

type roomStore struct {
	basePath string
	newID    func() string
}

// NewRoomStore keeps one file per room under basePath.
func NewRoomStore(basePath string) (core.RoomStore, error) {
	return newRoomStore(basePath, core.NewRoomID)
}

func newRoomStore(basePath string, newID func() string) (*roomStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}
	return &roomStore{basePath: basePath, newID: newID}, nil
}

// roomPath returns false for ids that are not a plain file name.
func (s *roomStore) roomPath(roomID string) (string, bool) {
	if roomID == "" || strings.HasPrefix(roomID, ".") || filepath.Base(roomID) != roomID {
		return "", false
	}
	return filepath.Join(s.basePath, roomID), true
}

func (s *roomStore) CreateRoom(ctx context.Context) (string, error) {
	id := s.newID()
	filePath, ok := s.roomPath(id)
	if !ok {
		return "", fmt.Errorf("create room: invalid generated id %q", id)
	}
	log := logrus.WithFields(logrus.Fields{
		"room_id":   id,
		"file_path": filePath,
	})

	f, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			log.Error("Generated room id already exists")
			return "", fmt.Errorf("create room %s: %w", id, core.ErrRoomIDCollision)
		}
		log.WithError(err).Error("Failed to create room")
		return "", fmt.Errorf("create room: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}

	log.Info("Room created successfully")
	return id, nil
}

func (s *roomStore) GetContent(ctx context.Context, roomID string) (string, error) {
	filePath, ok := s.roomPath(roomID)
	if !ok {
		return "", nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logrus.WithField("room_id", roomID).Debug("Room not found, returning empty content")
			return "", nil
		}
		logrus.WithField("room_id", roomID).WithError(err).Error("Failed to read room content")
		return "", fmt.Errorf("get content: %w", err)
	}
	return string(data), nil
}

// SetContent replaces the room file through a rename so readers never see a
// partial write.
func (s *roomStore) SetContent(ctx context.Context, roomID, content string) error {
	filePath, ok := s.roomPath(roomID)
	if !ok {
		return nil
	}
	log := logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"data_length": len(content),
	})

	if _, err := os.Stat(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug("Room not found, ignoring save")
			return nil
		}
		return fmt.Errorf("set content: %w", err)
	}

	tmp, err := os.CreateTemp(s.basePath, ".tmp-"+roomID+"-*")
	if err != nil {
		log.WithError(err).Error("Failed to create temp file")
		return fmt.Errorf("set content: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("set content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("set content: %w", err)
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		log.WithError(err).Error("Failed to replace room file")
		return fmt.Errorf("set content: %w", err)
	}

	log.Debug("Room content saved")
	return nil
}

func (s *roomStore) Close() error { return nil }
