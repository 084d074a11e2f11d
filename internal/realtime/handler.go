package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// SessionSource 连接与用户会话之间的桥
type SessionSource interface {
	// Attach 连接建立时调用，返回初始事件与释放函数
	Attach(ctx context.Context, userID string) ([]Event, func(), error)
	// Command 处理客户端指令（refresh / reconnect）
	Command(ctx context.Context, userID, action string) error
}

// Handler GET /ws
type Handler struct {
	hub      *Hub
	sessions SessionSource
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHandler(hub *Hub, sessions SessionSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		hub:      hub,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// UserID 浏览器无法给 websocket 设置 header，允许 ?user_id=
func UserID(r *http.Request) string {
	if v := r.Header.Get("X-User-ID"); v != "" {
		return v
	}
	return r.URL.Query().Get("user_id")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r)
	if userID == "" {
		http.Error(w, "user id is required", http.StatusUnauthorized)
		return
	}

	initial, release, err := h.sessions.Attach(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to attach session", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		release()
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:    uuid.NewString(),
		Topic: userID,
		Send:  make(chan []byte, sendBuffer),
	}
	h.hub.Register(client)
	for _, ev := range initial {
		h.hub.SendTo(client, ev)
	}

	h.logger.Info("Websocket client connected",
		zap.String("client_id", client.ID),
		zap.String("user_id", userID),
	)

	go h.writePump(client, ws)
	go h.readPump(client, ws, release)
}

func (h *Handler) readPump(client *Client, ws *websocket.Conn, release func()) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
		release()
		h.logger.Info("Websocket client disconnected", zap.String("client_id", client.ID))
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Action == "" {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = h.sessions.Command(ctx, client.Topic, msg.Action)
		cancel()
		if err != nil {
			if ev, evErr := NewEvent(EventError, client.Topic, map[string]string{
				"action":  msg.Action,
				"message": err.Error(),
			}); evErr == nil {
				h.hub.SendTo(client, ev)
			}
		}
	}
}

func (h *Handler) writePump(client *Client, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
