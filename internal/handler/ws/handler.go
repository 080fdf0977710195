package ws

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/memchat/backend/internal/middleware"
	chatService "github.com/zhouzirui/memchat/backend/internal/service/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/orchestrator"
	"github.com/zhouzirui/memchat/backend/pkg/utils"
)

const writeWait = 10 * time.Second

// Handler WebSocket对话处理器
type Handler struct {
	sessions *chatService.Service
	turns    *orchestrator.Orchestrator
	limiter  *middleware.TurnLimiter
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器。limiter 可为空。
func New(sessions *chatService.Service, turns *orchestrator.Orchestrator, limiter *middleware.TurnLimiter, allowedOrigins []string) *Handler {
	return &Handler{
		sessions: sessions,
		turns:    turns,
		limiter:  limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(origin, allowedOrigins)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.GetSession(r.Context(), sessionID); err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed session=%s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] connected session=%s", sessionID)
	h.write(conn, outgoingMessage{Type: "ready", SessionID: sessionID})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read failed session=%s: %v", sessionID, err)
			}
			log.Printf("[ws] disconnected session=%s", sessionID)
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.write(conn, outgoingMessage{Type: "error", SessionID: sessionID, Error: "invalid message"})
			continue
		}

		switch msg.Type {
		case "ping":
			h.write(conn, outgoingMessage{Type: "pong", SessionID: sessionID})
		case "turn":
			if !h.handleTurn(r, conn, sessionID, msg.Message) {
				return
			}
		default:
			h.write(conn, outgoingMessage{Type: "error", SessionID: sessionID, Error: "unsupported message type: " + msg.Type})
		}
	}
}

// handleTurn 运行一轮对话。会话已结束或过期时返回 false，连接随之关闭。
func (h *Handler) handleTurn(r *http.Request, conn *websocket.Conn, sessionID, message string) bool {
	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		log.Printf("[ws] session gone, closing session=%s", sessionID)
		h.write(conn, outgoingMessage{Type: "error", SessionID: sessionID, Error: err.Error()})
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended"),
			time.Now().Add(writeWait))
		return false
	}

	if h.limiter != nil && !h.limiter.Allow(session.ID) {
		h.write(conn, outgoingMessage{Type: "error", SessionID: session.ID, Error: "rate limit exceeded"})
		return true
	}

	unlock, ok := session.TryLockTurn()
	if !ok {
		h.write(conn, outgoingMessage{Type: "error", SessionID: session.ID, Error: "a turn is already in progress for this session"})
		return true
	}
	defer unlock()

	result, err := h.turns.HandleTurn(r.Context(), session, message, func(e orchestrator.Event) {
		h.write(conn, outgoingMessage{Type: string(e.Type), SessionID: session.ID, Data: e})
	})
	if err != nil {
		if !errors.Is(err, orchestrator.ErrEmptyInput) {
			log.Printf("[ws] turn failed session=%s: %v", session.ID, err)
		}
		h.write(conn, outgoingMessage{Type: "error", SessionID: session.ID, Error: err.Error()})
		return true
	}

	h.write(conn, outgoingMessage{Type: "message", SessionID: session.ID, Data: result})
	return true
}

func (h *Handler) write(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] write %s failed: %v", msg.Type, err)
	}
}
