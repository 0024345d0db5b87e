package server

import (
	"chat-core/domain/chat"
	"chat-core/errors"
	"chat-core/protocol"
	"chat-core/runtime"
	"chat-core/services"
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// session is one websocket connection. It may hold any number of
// subscriptions; all of them are closed when the connection ends.
type session struct {
	log  *slog.Logger
	chat services.IChatService
	user chat.User
	conn *websocket.Conn
	send chan protocol.Frame

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	subscriptions map[string]*runtime.Subscription
}

func (s *Server) serveWebSocket(c *gin.Context) {
	u := user(c)
	closeSession, err := s.chat.OpenSession(u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		closeSession()
		s.log.Warn("Websocket upgrade failed", "user", u.ID, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		log:           s.log.With("user", u.ID),
		chat:          s.chat,
		user:          u,
		conn:          conn,
		send:          make(chan protocol.Frame, s.options.SessionBufferSize),
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]*runtime.Subscription),
	}
	sess.log.Debug("Websocket session opened")
	go sess.writePump()
	go func() {
		sess.readPump()
		sess.closeAll()
		closeSession()
		sess.log.Debug("Websocket session closed")
	}()
}

func (s *session) readPump() {
	defer func() {
		s.cancel()
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame protocol.Frame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Websocket read failed", "error", err)
			}
			return
		}
		s.handle(frame)
	}
}

func (s *session) handle(frame protocol.Frame) {
	switch frame.Type {
	case protocol.FrameSubscribe:
		s.subscribe(frame)
	case protocol.FrameUnsubscribe:
		_ = s.chat.Unsubscribe(s.user.ID, frame.Subscription)
	default:
		s.enqueue(protocol.ErrorFrame(frame.Ref, http.StatusBadRequest, "unknown frame type "+string(frame.Type)))
	}
}

func (s *session) subscribe(frame protocol.Frame) {
	sub, err := s.chat.Subscribe(s.ctx, s.user.ID, frame.Topic, frame.Limit)
	if err != nil {
		s.enqueue(protocol.ErrorFrame(frame.Ref, errors.MapToHTTPStatus(err), err.Error()))
		return
	}
	s.mu.Lock()
	s.subscriptions[sub.ID] = sub
	s.mu.Unlock()

	// The snapshot is queued before the forwarder starts, so it always comes first.
	s.enqueue(protocol.SubscribedFrame(frame.Ref, sub.ID, protocol.FromSnapshot(sub.Snapshot)))
	go s.forward(sub)
}

// forward copies the deltas of one subscription to the connection until it closes.
func (s *session) forward(sub *runtime.Subscription) {
	defer func() {
		s.mu.Lock()
		delete(s.subscriptions, sub.ID)
		s.mu.Unlock()
	}()
	for d, err := range sub.Deltas(s.ctx) {
		if err != nil {
			if stderrors.Is(err, context.Canceled) {
				return
			}
			s.enqueue(protocol.ClosedFrame(sub.ID, err.Error()))
			return
		}
		s.enqueue(protocol.DeltaFrame(sub.ID, protocol.FromDelta(d)))
	}
}

// enqueue waits for room in the send queue. A slow connection therefore
// backs up into the subscription queues, which close as lagging.
func (s *session) enqueue(frame protocol.Frame) {
	select {
	case s.send <- frame:
	case <-s.ctx.Done():
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.cancel()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				s.log.Debug("Websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *session) closeAll() {
	s.mu.Lock()
	subscriptions := make([]*runtime.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subscriptions = append(subscriptions, sub)
	}
	s.mu.Unlock()
	for _, sub := range subscriptions {
		sub.Close()
	}
}
