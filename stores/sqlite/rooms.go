package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS rooms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id TEXT NOT NULL UNIQUE,
	code_content TEXT NOT NULL DEFAULT ''
);`

type roomStore struct {
	db    *sql.DB
	newID func() string
}

// NewRoomStore opens (creating if needed) the database at dataSourceName.
func NewRoomStore(dataSourceName string) (core.RoomStore, error) {
	return newRoomStore(dataSourceName, core.NewRoomID)
}

func newRoomStore(dataSourceName string, newID func() string) (*roomStore, error) {
	if dir := filepath.Dir(dataSourceName); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer at a time; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create rooms table: %w", err)
	}

	return &roomStore{db: db, newID: newID}, nil
}

func (s *roomStore) CreateRoom(ctx context.Context) (string, error) {
	id := s.newID()
	log := logrus.WithField("room_id", id)

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (room_id, code_content) VALUES (?, '') ON CONFLICT(room_id) DO NOTHING", id)
	if err != nil {
		log.WithError(err).Error("Failed to create room")
		return "", fmt.Errorf("create room: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	if rows == 0 {
		log.Error("Generated room id already exists")
		return "", fmt.Errorf("create room %s: %w", id, core.ErrRoomIDCollision)
	}

	log.Info("Room created successfully")
	return id, nil
}

func (s *roomStore) GetContent(ctx context.Context, roomID string) (string, error) {
	log := logrus.WithField("room_id", roomID)

	var content string
	err := s.db.QueryRowContext(ctx, "SELECT code_content FROM rooms WHERE room_id = ?", roomID).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("Room not found, returning empty content")
			return "", nil
		}
		log.WithError(err).Error("Failed to read room content")
		return "", fmt.Errorf("get content: %w", err)
	}
	return content, nil
}

func (s *roomStore) SetContent(ctx context.Context, roomID, content string) error {
	log := logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"data_length": len(content),
	})

	result, err := s.db.ExecContext(ctx, "UPDATE rooms SET code_content = ? WHERE room_id = ?", content, roomID)
	if err != nil {
		log.WithError(err).Error("Failed to save room content")
		return fmt.Errorf("set content: %w", err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		log.Debug("Room not found, ignoring save")
		return nil
	}

	log.Debug("Room content saved")
	return nil
}

func (s *roomStore) Close() error {
	return s.db.Close()
}
