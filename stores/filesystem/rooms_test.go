package filesystem

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
)

func TestNewRoomStore_CreatesDirectory(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested", "path", "test")
	store, err := NewRoomStore(tempDir)
	if err != nil {
		t.Fatalf("NewRoomStore() failed: %v", err)
	}
	if store == nil {
		t.Fatal("NewRoomStore() returned nil")
	}

	if _, err := os.Stat(tempDir); os.IsNotExist(err) {
		t.Error("NewRoomStore() did not create nested directory structure")
	}
}

func TestCreateRoom_Success(t *testing.T) {
	tempDir := t.TempDir()
	store, _ := NewRoomStore(tempDir)
	ctx := context.Background()

	id, err := store.CreateRoom(ctx)
	if err != nil {
		t.Fatalf("CreateRoom() failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(tempDir, id))
	if err != nil {
		t.Fatalf("CreateRoom() did not create file on disk: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("new room file should be empty, got %d bytes", info.Size())
	}
}

func TestCreateRoom_Collision(t *testing.T) {
	store, err := newRoomStore(t.TempDir(), func() string { return "abcd1234" })
	if err != nil {
		t.Fatalf("newRoomStore() failed: %v", err)
	}
	ctx := context.Background()

	if _, err := store.CreateRoom(ctx); err != nil {
		t.Fatalf("first CreateRoom() failed: %v", err)
	}
	if _, err := store.CreateRoom(ctx); !errors.Is(err, core.ErrRoomIDCollision) {
		t.Fatalf("expected ErrRoomIDCollision, got %v", err)
	}
}

func TestSetContent_RoundTrip(t *testing.T) {
	store, _ := NewRoomStore(t.TempDir())
	ctx := context.Background()

	id, _ := store.CreateRoom(ctx)
	large := strings.Repeat("x", 5*1024*1024)
	if err := store.SetContent(ctx, id, large); err != nil {
		t.Fatalf("SetContent() failed: %v", err)
	}

	content, err := store.GetContent(ctx, id)
	if err != nil {
		t.Fatalf("GetContent() failed: %v", err)
	}
	if len(content) != len(large) {
		t.Errorf("size mismatch: got %d, want %d", len(content), len(large))
	}
}

func TestSetContent_UnknownRoomIsNoop(t *testing.T) {
	tempDir := t.TempDir()
	store, _ := NewRoomStore(tempDir)

	if err := store.SetContent(context.Background(), "missing", "data"); err != nil {
		t.Fatalf("SetContent() should not fail for unknown room: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "missing")); !os.IsNotExist(err) {
		t.Error("SetContent() must not create room files")
	}
}

func TestGetContent_UnknownRoom(t *testing.T) {
	store, _ := NewRoomStore(t.TempDir())

	content, err := store.GetContent(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetContent() should not fail for unknown room: %v", err)
	}
	if content != "" {
		t.Errorf("expected empty content, got %q", content)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	base := filepath.Join(t.TempDir(), "rooms")
	store, _ := NewRoomStore(base)
	ctx := context.Background()

	outside := filepath.Join(filepath.Dir(base), "secret")
	if err := os.WriteFile(outside, []byte("secret"), 0644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	for _, id := range []string{"../secret", "..", ".", "a/b", ""} {
		content, err := store.GetContent(ctx, id)
		if err != nil || content != "" {
			t.Errorf("GetContent(%q) = %q, %v; want empty", id, content, err)
		}
		if err := store.SetContent(ctx, id, "overwritten"); err != nil {
			t.Errorf("SetContent(%q) failed: %v", id, err)
		}
	}

	data, _ := os.ReadFile(outside)
	if string(data) != "secret" {
		t.Errorf("file outside base path was modified: %q", data)
	}
}

func TestConcurrentSaves(t *testing.T) {
	store, _ := NewRoomStore(t.TempDir())
	ctx := context.Background()
	id, _ := store.CreateRoom(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.SetContent(ctx, id, "same content"); err != nil {
				t.Errorf("SetContent() failed: %v", err)
			}
		}()
	}
	wg.Wait()

	content, _ := store.GetContent(ctx, id)
	if content != "same content" {
		t.Errorf("unexpected content after concurrent saves: %q", content)
	}
}
