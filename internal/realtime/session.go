package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/marketplace/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 << 10

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the bearer token authenticates the session, browsers on any origin may connect
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Frame 客户端与服务端之间的消息帧
type Frame struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message,omitempty"`
}

type inboundMessage struct {
	ToUser struct {
		ID uint `json:"id"`
	} `json:"to_user"`
}

// Session 单个 WebSocket 连接
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uint
	groups []string

	send      chan []byte
	closeOnce sync.Once
}

// ServeWS upgrades the request and runs the session for an authenticated user.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	s := &Session{
		hub:    hub,
		conn:   conn,
		userID: userID,
		groups: []string{UserGroup(userID)},
		send:   make(chan []byte, sendBuffer),
	}
	for _, g := range s.groups {
		hub.Join(g, s)
	}

	go s.writePump()
	go s.readPump()
}

func (s *Session) enqueue(payload []byte) (ok bool) {
	defer func() {
		// send on a session that was already dropped
		if recover() != nil {
			ok = true
		}
	}()
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) closeSend() {
	s.closeOnce.Do(func() { close(s.send) })
}

// readPump handles inbound frames one at a time.
func (s *Session) readPump() {
	defer func() {
		s.hub.drop(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read failed", zap.Uint("user_id", s.userID), zap.Error(err))
			}
			return
		}
		s.handleFrame(data)
	}
}

// handleFrame relays a client message frame to the sender and the addressed recipient.
// from_user is always the authenticated session user.
func (s *Session) handleFrame(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || len(f.Message) == 0 {
		s.sendError("invalid frame")
		return
	}
	var in inboundMessage
	if err := json.Unmarshal(f.Message, &in); err != nil || in.ToUser.ID == 0 {
		s.sendError("message.to_user.id is required")
		return
	}
	msg, err := stampSender(f.Message, s.userID)
	if err != nil {
		s.sendError("message must be an object")
		return
	}

	out := Frame{Type: "message", Message: msg}
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	for _, g := range []string{UserGroup(s.userID), UserGroup(in.ToUser.ID)} {
		if err := s.hub.Broadcast(ctx, g, out); err != nil {
			logger.Error("relay websocket frame failed", zap.String("group", g), zap.Error(err))
		}
	}
}

func stampSender(raw json.RawMessage, userID uint) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	from, err := json.Marshal(map[string]uint{"id": userID})
	if err != nil {
		return nil, err
	}
	fields["from_user"] = from
	return json.Marshal(fields)
}

func (s *Session) sendError(msg string) {
	payload, _ := json.Marshal(map[string]string{"type": "error", "detail": msg})
	if !s.enqueue(payload) {
		s.hub.drop(s)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
