package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Animeshkr9044/pair-programming-prototype/core/coretest"
)

func joinStarted(r *Registry, roomID string, conn *coretest.Conn) *Member {
	m := r.Join(roomID, conn)
	m.Start("")
	return m
}

func TestBroadcastExcludesSender(t *testing.T) {
	r := New(Options{})
	a, b, c := coretest.NewConn(), coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", a)
	joinStarted(r, "room", b)
	joinStarted(r, "room", c)

	if n := r.Broadcast("room", "hello", a); n != 2 {
		t.Fatalf("Broadcast() queued for %d members, want 2", n)
	}

	if got := b.Next(t); got != "hello" {
		t.Errorf("b received %q", got)
	}
	if got := c.Next(t); got != "hello" {
		t.Errorf("c received %q", got)
	}
	a.Quiet(t, 50*time.Millisecond)
}

func TestBroadcastWithoutExclusion(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", a)
	joinStarted(r, "room", b)

	if n := r.Broadcast("room", "all", nil); n != 2 {
		t.Fatalf("Broadcast() queued for %d members, want 2", n)
	}
	a.Next(t)
	b.Next(t)
}

func TestRoomsAreIsolated(t *testing.T) {
	r := New(Options{})
	alpha1, alpha2, beta := coretest.NewConn(), coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "alpha", alpha1)
	joinStarted(r, "alpha", alpha2)
	joinStarted(r, "beta", beta)

	r.Broadcast("alpha", "for alpha", alpha1)

	if got := alpha2.Next(t); got != "for alpha" {
		t.Errorf("alpha2 received %q", got)
	}
	beta.Quiet(t, 50*time.Millisecond)
}

func TestBroadcastUnknownRoomIsNoop(t *testing.T) {
	r := New(Options{})
	if n := r.Broadcast("nobody", "msg", nil); n != 0 {
		t.Fatalf("Broadcast() to unknown room queued %d", n)
	}
	if r.HasRoom("nobody") {
		t.Fatal("Broadcast() must not create rooms")
	}
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	r := New(Options{})
	a := coretest.NewConn()
	m := joinStarted(r, "room", a)

	if !r.HasRoom("room") {
		t.Fatal("expected room entry after join")
	}

	r.Leave("room", a)

	if r.HasRoom("room") {
		t.Fatal("expected room entry to be removed after last member left")
	}
	select {
	case <-m.Done():
	default:
		t.Fatal("member should be done after leave")
	}

	b := coretest.NewConn()
	joinStarted(r, "room", b)
	if got := r.Members("room"); got != 1 {
		t.Fatalf("rejoined room should start fresh, got %d members", got)
	}
}

func TestLeaveIsNoopWhenAbsent(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", a)

	r.Leave("room", b)
	r.Leave("other", a)

	if got := r.Members("room"); got != 1 {
		t.Fatalf("Leave() of absent pair changed membership: %d", got)
	}
}

func TestNoDeliveryAfterLeave(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", a)
	joinStarted(r, "room", b)

	r.Leave("room", b)
	r.Broadcast("room", "after leave", nil)

	if got := a.Next(t); got != "after leave" {
		t.Errorf("a received %q", got)
	}
	b.Quiet(t, 50*time.Millisecond)
}

func TestDuplicateJoinDoesNotDuplicateDelivery(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	first := joinStarted(r, "room", a)
	second := joinStarted(r, "room", a)
	joinStarted(r, "room", b)

	if first != second {
		t.Fatal("expected the same membership on duplicate join")
	}
	if got := r.Members("room"); got != 2 {
		t.Fatalf("expected 2 members, got %d", got)
	}

	r.Broadcast("room", "once", b)
	a.Next(t)
	a.Quiet(t, 50*time.Millisecond)
}

func TestJoinOtherRoomMovesConnection(t *testing.T) {
	r := New(Options{})
	a := coretest.NewConn()
	joinStarted(r, "first", a)
	joinStarted(r, "second", a)

	if r.HasRoom("first") {
		t.Fatal("connection should have left its previous room")
	}
	if got := r.Members("second"); got != 1 {
		t.Fatalf("expected 1 member in second room, got %d", got)
	}
}

func TestOrderingPerSender(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", a)
	joinStarted(r, "room", b)

	for i := 0; i < 100; i++ {
		r.Broadcast("room", fmt.Sprintf("msg-%d", i), a)
	}

	for i := 0; i < 100; i++ {
		want := fmt.Sprintf("msg-%d", i)
		if got := b.Next(t); got != want {
			t.Fatalf("message %d out of order: got %q want %q", i, got, want)
		}
	}
}

func TestInitialMessageIsDeliveredFirst(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", a)
	m := r.Join("room", b)

	// Queued while b is joined but not started.
	r.Broadcast("room", "edit", a)
	m.Start("print(1)")

	if got := b.Next(t); got != "print(1)" {
		t.Fatalf("first message = %q, want initial content", got)
	}
	if got := b.Next(t); got != "edit" {
		t.Fatalf("second message = %q, want queued edit", got)
	}
}

func TestSlowPeerIsEvictedWithoutBlockingOthers(t *testing.T) {
	r := New(Options{QueueSize: 2, WriteTimeout: time.Second})
	sender, slow, fast := coretest.NewConn(), coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", sender)
	joinStarted(r, "room", slow)
	joinStarted(r, "room", fast)
	slow.Stall()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			r.Broadcast("room", fmt.Sprintf("m%d", i), sender)
			// Paced so the healthy peer drains its small queue.
			time.Sleep(5 * time.Millisecond)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a stalled peer")
	}

	for i := 0; i < 10; i++ {
		if got := fast.Next(t); got != fmt.Sprintf("m%d", i) {
			t.Fatalf("fast peer got %q at %d", got, i)
		}
	}

	select {
	case <-slow.Closed():
	case <-time.After(time.Second):
		t.Fatal("stalled peer was not evicted")
	}
	if got := r.Members("room"); got != 2 {
		t.Fatalf("expected evicted peer to leave, %d members remain", got)
	}
}

func TestFailedSendEvictsPeer(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "room", a)
	joinStarted(r, "room", b)
	b.FailSends(errors.New("broken pipe"))

	r.Broadcast("room", "x", a)

	select {
	case <-b.Closed():
	case <-time.After(time.Second):
		t.Fatal("peer with failing channel was not closed")
	}

	deadline := time.Now().Add(time.Second)
	for r.Members("room") != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := r.Members("room"); got != 1 {
		t.Fatalf("expected 1 member after eviction, got %d", got)
	}

	r.Broadcast("room", "still works", b)
	if got := a.Next(t); got != "still works" {
		t.Errorf("remaining member received %q", got)
	}
}

func TestRoomsListing(t *testing.T) {
	r := New(Options{})
	joinStarted(r, "quiet", coretest.NewConn())
	joinStarted(r, "busy", coretest.NewConn())
	joinStarted(r, "busy", coretest.NewConn())

	rooms := r.Rooms()
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].ID != "busy" || rooms[0].Users != 2 {
		t.Errorf("unexpected first room: %+v", rooms[0])
	}
	if rooms[1].ID != "quiet" || rooms[1].Users != 1 {
		t.Errorf("unexpected second room: %+v", rooms[1])
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	r := New(Options{})
	a, b := coretest.NewConn(), coretest.NewConn()
	joinStarted(r, "one", a)
	joinStarted(r, "two", b)

	r.Shutdown()

	for _, c := range []*coretest.Conn{a, b} {
		select {
		case <-c.Closed():
		default:
			t.Fatal("expected connection to be closed")
		}
	}
}

func TestConcurrentJoinLeaveBroadcast(t *testing.T) {
	r := New(Options{QueueSize: 1024})
	stable := coretest.NewConn()
	joinStarted(r, "room", stable)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := coretest.NewConn()
			joinStarted(r, "room", c)
			r.Broadcast("room", "churn", c)
			r.Leave("room", c)
		}()
		go func(i int) {
			defer wg.Done()
			roomID := fmt.Sprintf("other-%d", i%5)
			c := coretest.NewConn()
			joinStarted(r, roomID, c)
			r.Leave(roomID, c)
		}(i)
	}
	wg.Wait()

	if got := r.Members("room"); got != 1 {
		t.Fatalf("expected only the stable member, got %d", got)
	}
	for i := 0; i < 5; i++ {
		if r.HasRoom(fmt.Sprintf("other-%d", i)) {
			t.Errorf("room other-%d should have been removed", i)
		}
	}
}
