package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// RoomIDLength is the length of identifiers handed out by NewRoomID.
const RoomIDLength = 8

var (
	// ErrClosed is returned by Conn.Receive and Conn.Send once the channel is gone.
	ErrClosed = errors.New("connection closed")

	// ErrRoomIDCollision is returned by CreateRoom when the generated id is already taken.
	ErrRoomIDCollision = errors.New("room id collision")

	// ErrStoreUnavailable is returned by every call on a store that could not be opened.
	ErrStoreUnavailable = errors.New("room store unavailable")
)

type (
	// Room is the persisted record of a shared buffer.
	Room struct {
		ID      string `json:"room_id"`
		Content string `json:"code"`
	}

	// RoomStore persists the current buffer of every room.
	//
	// GetContent returns "" without error for unknown rooms and SetContent is a
	// no-op for them.
	RoomStore interface {
		CreateRoom(ctx context.Context) (string, error)
		GetContent(ctx context.Context, roomID string) (string, error)
		SetContent(ctx context.Context, roomID, content string) error
		Close() error
	}

	// Conn is one client's duplex text channel. Receive blocks until a message
	// arrives and reports ErrClosed (possibly wrapped) when the peer goes away.
	// Send may be called concurrently with Receive but not with itself.
	Conn interface {
		Send(ctx context.Context, message string) error
		Receive(ctx context.Context) (string, error)
		Close() error
	}

	// ActiveRoom describes a room with live members.
	ActiveRoom struct {
		ID    string `json:"id"`
		Users int    `json:"users"`
	}
)

// NewRoomID returns a short random room identifier.
func NewRoomID() string {
	return uuid.NewString()[:RoomIDLength]
}
