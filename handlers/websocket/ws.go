package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/go-chi/chi/v5"
	gws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RoomServer runs a connection's participation in a room until the
// connection goes away.
type RoomServer interface {
	Serve(ctx context.Context, roomID string, conn core.Conn) error
}

type Options struct {
	PongWait          time.Duration
	WriteWait         time.Duration
	MaxMessageSize    int64
	MessagesPerSecond float64
	MessageBurst      int
	// MaxRateViolations is how many over-limit messages are dropped before
	// the client is disconnected.
	MaxRateViolations int
	AllowedOrigins    []string
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1024 * 1024
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = 100
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 200
	}
	if o.MaxRateViolations <= 0 {
		o.MaxRateViolations = 1000
	}
	return o
}

var errRateLimited = errors.New("rate limit exceeded")

// HandleRoom upgrades /ws/{roomId} and hands the connection to rooms.
func HandleRoom(rooms RoomServer, opts Options) http.HandlerFunc {
	opts = opts.withDefaults()
	upgrader := gws.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomId")
		if roomID == "" {
			http.Error(w, "room id is required", http.StatusBadRequest)
			return
		}

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Websocket upgrade failed")
			return
		}

		conn := newWSConn(c, roomID, opts)
		defer conn.Close()

		if err := rooms.Serve(r.Context(), roomID, conn); err != nil {
			conn.log.WithError(err).Warn("Websocket session ended with error")
		}
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// wsConn adapts a gorilla connection to core.Conn. Pings are written by a
// ticker; a missing pong lets the read deadline expire and ends Receive.
type wsConn struct {
	conn *gws.Conn
	opts Options
	log  *logrus.Entry

	writeMu sync.Mutex

	limiter    *rate.Limiter
	violations int

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *gws.Conn, roomID string, opts Options) *wsConn {
	c := &wsConn{
		conn:    conn,
		opts:    opts,
		log:     logrus.WithFields(logrus.Fields{"room_id": roomID, "remote": conn.RemoteAddr().String()}),
		limiter: rate.NewLimiter(rate.Limit(opts.MessagesPerSecond), opts.MessageBurst),
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go c.pingLoop()
	return c
}

func (c *wsConn) pingLoop() {
	ticker := time.NewTicker(c.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteWait)
			if err := c.conn.WriteControl(gws.PingMessage, nil, deadline); err != nil {
				c.log.WithError(err).Debug("Ping failed")
				c.Close()
				return
			}
		}
	}
}

func (c *wsConn) Receive(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseNormalClosure, gws.CloseNoStatusReceived) {
				c.log.WithError(err).Debug("Websocket read failed")
			}
			return "", fmt.Errorf("%w: %v", core.ErrClosed, err)
		}

		if !c.limiter.Allow() {
			c.violations++
			if c.violations%100 == 1 {
				c.log.WithField("violations", c.violations).Warn("Rate limit exceeded, dropping message")
			}
			if c.violations > c.opts.MaxRateViolations {
				return "", errRateLimited
			}
			continue
		}
		return string(data), nil
	}
}

func (c *wsConn) Send(ctx context.Context, message string) error {
	select {
	case <-c.done:
		return core.ErrClosed
	default:
	}

	deadline := time.Now().Add(c.opts.WriteWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := c.conn.WriteMessage(gws.TextMessage, []byte(message)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}
