// Package coretest provides an in-memory core.Conn for tests.
package coretest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
)

// Conn is a core.Conn whose inbound side is fed by Push and whose outbound
// side is observed with Next.
type Conn struct {
	inbox  chan string
	outbox chan string

	mu      sync.Mutex
	sent    []string
	stall   chan struct{}
	sendErr error

	closed    chan struct{}
	closeOnce sync.Once
}

func NewConn() *Conn {
	return &Conn{
		inbox:  make(chan string, 64),
		outbox: make(chan string, 1024),
		closed: make(chan struct{}),
	}
}

func (c *Conn) Send(ctx context.Context, message string) error {
	select {
	case <-c.closed:
		return core.ErrClosed
	default:
	}

	c.mu.Lock()
	stall, sendErr := c.stall, c.sendErr
	c.mu.Unlock()

	if sendErr != nil {
		return sendErr
	}
	if stall != nil {
		select {
		case <-stall:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return core.ErrClosed
		}
	}

	c.mu.Lock()
	c.sent = append(c.sent, message)
	c.mu.Unlock()
	c.outbox <- message
	return nil
}

func (c *Conn) Receive(ctx context.Context) (string, error) {
	select {
	case message := <-c.inbox:
		return message, nil
	case <-c.closed:
		return "", core.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// Closed is closed once Close has been called.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// Push delivers message as if the client had sent it.
func (c *Conn) Push(message string) { c.inbox <- message }

// Stall makes every Send block until Unstall or the send deadline.
func (c *Conn) Stall() {
	c.mu.Lock()
	c.stall = make(chan struct{})
	c.mu.Unlock()
}

func (c *Conn) Unstall() {
	c.mu.Lock()
	if c.stall != nil {
		close(c.stall)
		c.stall = nil
	}
	c.mu.Unlock()
}

// FailSends makes every Send return err.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Sent returns every message written so far.
func (c *Conn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	copy(out, c.sent)
	return out
}

// Next waits for the next written message.
func (c *Conn) Next(t testing.TB) string {
	t.Helper()
	select {
	case message := <-c.outbox:
		return message
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

// Quiet fails the test if anything is written within d.
func (c *Conn) Quiet(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case message := <-c.outbox:
		t.Fatalf("unexpected message %q", message)
	case <-time.After(d):
	}
}
