package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/Animeshkr9044/pair-programming-prototype/core"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type ackInvoker func(err error, payload map[string]any)

const socketInboxSize = 256

// SetupSocketIO serves the room protocol over Socket.IO:
//
//	join-room <roomId>                 -> join-room-ack, then client-broadcast <content>
//	server-broadcast <roomId> <buffer> -> client-broadcast <buffer> to the other members
func SetupSocketIO(rooms RoomServer, allowedOrigins []string) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(5000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)

	origins := make([]any, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins = append(origins, origin)
	}
	opts.SetCors(&types.Cors{
		Origin:      origins,
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		newSocketSession(srv, socket, rooms).bind()
	})

	return srv
}

// socketSession tracks the room a single Socket.IO client is currently in.
type socketSession struct {
	srv    *socketio.Server
	socket *socketio.Socket
	rooms  RoomServer
	log    *logrus.Entry

	mu      sync.Mutex
	current *socketConn
}

func newSocketSession(srv *socketio.Server, socket *socketio.Socket, rooms RoomServer) *socketSession {
	return &socketSession{
		srv:    srv,
		socket: socket,
		rooms:  rooms,
		log:    logrus.WithField("socket_id", socket.Id()),
	}
}

func (s *socketSession) bind() {
	me := s.socket.Id()
	_ = s.srv.To(socketio.Room(me)).Emit("init-room")
	s.log.Debug("Socket connected")

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	s.socket.On("join-room", func(datas ...any) {
		s.handleJoin(datas)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	s.socket.On("server-broadcast", func(datas ...any) {
		s.handleBroadcast(datas)
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	s.socket.On("disconnecting", func(...any) {
		for _, currentRoom := range s.socket.Rooms().Keys() {
			if currentRoom == socketio.Room(me) {
				continue
			}
			s.announceLeave(currentRoom)
		}
	})

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	s.socket.On("disconnect", func(...any) {
		s.mu.Lock()
		current := s.current
		s.current = nil
		s.mu.Unlock()
		if current != nil {
			current.detach()
		}
		s.socket.RemoveAllListeners("")
		s.log.Debug("Socket disconnected")
	})
}

func (s *socketSession) handleJoin(datas []any) {
	ack, args := extractAck(datas)
	if len(args) == 0 {
		err := fmt.Errorf("room id is required")
		respondWithAck(s.socket, ack, "join-room-ack", errorAckPayload(err), err)
		return
	}

	roomID, ok := args[0].(string)
	if !ok || roomID == "" {
		err := fmt.Errorf("invalid room id")
		respondWithAck(s.socket, ack, "join-room-ack", errorAckPayload(err), err)
		return
	}

	s.mu.Lock()
	previous := s.current
	if previous != nil && previous.roomID == roomID && !previous.closed() {
		s.mu.Unlock()
		respondWithAck(s.socket, ack, "join-room-ack", map[string]any{"status": "ok", "room_id": roomID}, nil)
		return
	}
	conn := newSocketConn(roomID, s.socket.Emit, func() { s.socket.Disconnect(true) })
	s.current = conn
	s.mu.Unlock()

	if previous != nil {
		previous.detach()
		s.socket.Leave(socketio.Room(previous.roomID))
		s.announceLeave(socketio.Room(previous.roomID))
	}

	go func() {
		if err := s.rooms.Serve(context.Background(), roomID, conn); err != nil {
			s.log.WithError(err).WithField("room_id", roomID).Warn("Socket session ended with error")
		}
	}()

	room := socketio.Room(roomID)
	s.socket.Join(room)
	s.log.WithField("room_id", roomID).Info("Socket joined room")

	s.srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, fetchErr error) {
		if fetchErr != nil {
			respondWithAck(s.socket, ack, "join-room-ack", errorAckPayload(fetchErr), fetchErr)
			return
		}

		if len(users) <= 1 {
			_ = s.srv.To(socketio.Room(s.socket.Id())).Emit("first-in-room")
		} else {
			_ = s.socket.Broadcast().To(room).Emit("new-user", s.socket.Id())
		}

		ids := make([]socketio.SocketId, 0, len(users))
		for _, user := range users {
			ids = append(ids, user.Id())
		}
		_ = s.srv.In(room).Emit("room-user-change", ids)

		respondWithAck(s.socket, ack, "join-room-ack", map[string]any{
			"status":     "ok",
			"room_id":    roomID,
			"user_count": len(users),
		}, nil)
	})
}

func (s *socketSession) handleBroadcast(datas []any) {
	roomID, payload, ack := parseBroadcastArgs(datas)
	if roomID == "" {
		err := fmt.Errorf("missing room id")
		respondWithAck(s.socket, ack, "broadcast-ack", errorAckPayload(err), err)
		return
	}

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil || current.roomID != roomID {
		err := fmt.Errorf("not joined to room %s", roomID)
		respondWithAck(s.socket, ack, "broadcast-ack", errorAckPayload(err), err)
		return
	}

	message, err := payloadText(payload)
	if err != nil {
		respondWithAck(s.socket, ack, "broadcast-ack", errorAckPayload(err), err)
		return
	}

	if err := current.push(message); err != nil {
		respondWithAck(s.socket, ack, "broadcast-ack", errorAckPayload(err), err)
		return
	}
	respondWithAck(s.socket, ack, "broadcast-ack", map[string]any{"status": "ok"}, nil)
}

// announceLeave tells the rest of room who is left once this socket goes.
func (s *socketSession) announceLeave(room socketio.Room) {
	me := s.socket.Id()
	s.srv.In(room).FetchSockets()(func(users []*socketio.RemoteSocket, _ error) {
		others := make([]socketio.SocketId, 0, len(users))
		for _, user := range users {
			if user.Id() != me {
				others = append(others, user.Id())
			}
		}
		if len(others) > 0 {
			_ = s.srv.In(room).Emit("room-user-change", others)
		}
	})
}

// socketConn adapts one room membership of a Socket.IO client to core.Conn.
// Inbound broadcasts are pushed by the event handler; Receive drains them.
type socketConn struct {
	roomID     string
	emit       func(event string, args ...any) error
	disconnect func()

	inbox chan string
	done  chan struct{}
	once  sync.Once
}

func newSocketConn(roomID string, emit func(string, ...any) error, disconnect func()) *socketConn {
	return &socketConn{
		roomID:     roomID,
		emit:       emit,
		disconnect: disconnect,
		inbox:      make(chan string, socketInboxSize),
		done:       make(chan struct{}),
	}
}

func (c *socketConn) push(message string) error {
	select {
	case <-c.done:
		return core.ErrClosed
	default:
	}
	select {
	case c.inbox <- message:
		return nil
	case <-c.done:
		return core.ErrClosed
	}
}

func (c *socketConn) Receive(ctx context.Context) (string, error) {
	select {
	case message := <-c.inbox:
		return message, nil
	case <-c.done:
		return "", core.ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *socketConn) Send(ctx context.Context, message string) error {
	select {
	case <-c.done:
		return core.ErrClosed
	default:
	}
	if err := c.emit("client-broadcast", message); err != nil {
		return fmt.Errorf("emit client-broadcast: %w", err)
	}
	return nil
}

// Close ends the membership and drops the client, which resyncs when it
// reconnects.
func (c *socketConn) Close() error {
	if c.stop() && c.disconnect != nil {
		c.disconnect()
	}
	return nil
}

func (c *socketConn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// detach ends the membership but keeps the client connected.
func (c *socketConn) detach() { c.stop() }

func (c *socketConn) stop() bool {
	stopped := false
	c.once.Do(func() {
		close(c.done)
		stopped = true
	})
	return stopped
}

func payloadText(payload any) (string, error) {
	switch v := payload.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("missing payload")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode payload: %w", err)
		}
		return string(b), nil
	}
}

func errorAckPayload(err error) map[string]any {
	return map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	return func(err error, payload map[string]any) {
		value.Call(buildAckArgs(typ, err, payload))
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		var argValue any
		switch {
		case numIn == 1:
			if err != nil {
				argValue = err
			} else {
				argValue = payload
			}
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		}
		args[i] = coerceValue(argValue, typ.In(i))
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(targetType) {
		return rv
	}
	if rv.Type().ConvertibleTo(targetType) {
		return rv.Convert(targetType)
	}
	if targetType.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}
	return reflect.Zero(targetType)
}

func respondWithAck(socket *socketio.Socket, ack ackInvoker, event string, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}

	if event != "" && payload != nil {
		_ = socket.Emit(event, payload)
	}
}

func parseBroadcastArgs(datas []any) (roomID string, payload any, ack ackInvoker) {
	ack, args := extractAck(datas)
	if len(args) < 2 {
		return "", nil, ack
	}

	roomID, _ = args[0].(string)
	return roomID, args[1], ack
}
