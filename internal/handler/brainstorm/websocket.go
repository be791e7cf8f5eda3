package brainstorm

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Markizx/neural-chat-sub000/internal/model/brainstorm"
)

// Inbound frame types.
const (
	frameJoin  = "join"
	frameLeave = "leave"
	framePing  = "ping"
)

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsClient is one websocket connection. It may be joined to any number of
// session topics; all writes go through mu.
type wsClient struct {
	id        string
	conn      *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

func (c *wsClient) Deliver(evt brainstorm.Event) error {
	return c.write(evt)
}

func (c *wsClient) write(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// handleWebSocket 处理实时事件的WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := &wsClient{
		id:        "ws-" + uuid.NewString(),
		conn:      conn,
		writeWait: h.writeWait,
	}
	defer func() {
		left := h.hub.LeaveAll(client.id)
		log.Printf("[websocket] connection closed id=%s topics=%d", client.id, left)
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readTimeout := 2 * h.pingInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, client)

	log.Printf("[websocket] new connection id=%s", client.id)
	h.sendControl(client, "connected", "", map[string]any{"subscriberId": client.id})

	if sessionID := strings.TrimSpace(r.URL.Query().Get("sessionId")); sessionID != "" {
		h.join(ctx, client, sessionID)
	}

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error id=%s: %v", client.id, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msg.Type {
		case frameJoin:
			h.join(ctx, client, msg.SessionID)
		case frameLeave:
			h.hub.Leave(msg.SessionID, client.id)
			h.sendControl(client, "left", msg.SessionID, nil)
		case framePing:
			h.sendControl(client, "pong", "", nil)
		default:
			h.sendError(client, msg.SessionID, "unknown message type: "+msg.Type)
		}
	}
}

func (h *Handler) join(ctx context.Context, client *wsClient, sessionID string) {
	if strings.TrimSpace(sessionID) == "" {
		h.sendError(client, "", "sessionId is required")
		return
	}

	session, err := h.svc.Get(ctx, sessionID)
	if err != nil {
		h.sendError(client, sessionID, err.Error())
		return
	}

	h.hub.Join(sessionID, client.id, client)
	h.sendControl(client, "joined", sessionID, map[string]any{"status": session.Status})
}

func (h *Handler) sendControl(client *wsClient, msgType, sessionID string, data interface{}) {
	msg := outgoingMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := client.write(msg); err != nil {
		log.Printf("[websocket] write %s failed id=%s: %v", msgType, client.id, err)
	}
}

func (h *Handler) sendError(client *wsClient, sessionID, message string) {
	h.sendControl(client, "error", sessionID, map[string]string{"message": message})
}

// pingLoop 定期发送ping消息
func (h *Handler) pingLoop(ctx context.Context, client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(h.writeWait)
			if err := client.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
