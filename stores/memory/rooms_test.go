package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
)

func TestNewRoomStore(t *testing.T) {
	store := NewRoomStore()
	if store == nil {
		t.Fatal("NewRoomStore() returned nil")
	}
}

func TestCreateRoom_Success(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	id, err := store.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}

	if len(id) != core.RoomIDLength {
		t.Errorf("CreateRoom() returned invalid ID length: got %d, want %d", len(id), core.RoomIDLength)
	}

	content, err := store.GetContent(ctx, id)
	if err != nil {
		t.Fatalf("GetContent() failed: %v", err)
	}
	if content != "" {
		t.Errorf("new room should be empty, got %q", content)
	}
}

func TestCreateRoom_Collision(t *testing.T) {
	store := newRoomStore(func() string { return "samesame" })
	ctx := context.Background()

	if _, err := store.CreateRoom(ctx); err != nil {
		t.Fatalf("first CreateRoom() failed: %v", err)
	}

	_, err := store.CreateRoom(ctx)
	if !errors.Is(err, core.ErrRoomIDCollision) {
		t.Fatalf("expected ErrRoomIDCollision, got %v", err)
	}
}

func TestSetContent_RoundTrip(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	id, _ := store.CreateRoom(ctx)
	if err := store.SetContent(ctx, id, "print(1)"); err != nil {
		t.Fatalf("SetContent() failed: %v", err)
	}

	content, err := store.GetContent(ctx, id)
	if err != nil {
		t.Fatalf("GetContent() failed: %v", err)
	}
	if content != "print(1)" {
		t.Errorf("GetContent() mismatch: got %q, want %q", content, "print(1)")
	}

	if err := store.SetContent(ctx, id, "print(2)"); err != nil {
		t.Fatalf("SetContent() overwrite failed: %v", err)
	}
	content, _ = store.GetContent(ctx, id)
	if content != "print(2)" {
		t.Errorf("SetContent() should overwrite, got %q", content)
	}
}

func TestGetContent_UnknownRoom(t *testing.T) {
	store := NewRoomStore()

	content, err := store.GetContent(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetContent() on unknown room should not fail: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty content, got %q", content)
	}
}

func TestSetContent_UnknownRoomIsNoop(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	if err := store.SetContent(ctx, "missing", "data"); err != nil {
		t.Fatalf("SetContent() on unknown room should not fail: %v", err)
	}

	content, _ := store.GetContent(ctx, "missing")
	if content != "" {
		t.Errorf("SetContent() must not create rooms, got %q", content)
	}
}

func TestSetContent_LargeBuffer(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()

	id, _ := store.CreateRoom(ctx)
	large := strings.Repeat("x", 1024*1024)
	if err := store.SetContent(ctx, id, large); err != nil {
		t.Fatalf("SetContent() failed: %v", err)
	}

	content, _ := store.GetContent(ctx, id)
	if len(content) != len(large) {
		t.Errorf("content size mismatch: got %d, want %d", len(content), len(large))
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewRoomStore()
	ctx := context.Background()
	id, _ := store.CreateRoom(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := store.SetContent(ctx, id, "content"); err != nil {
				t.Errorf("SetContent() failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := store.GetContent(ctx, id); err != nil {
				t.Errorf("GetContent() failed: %v", err)
			}
		}()
	}
	wg.Wait()
}
