package stream

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/memchat/backend/internal/middleware"
	chatService "github.com/zhouzirui/memchat/backend/internal/service/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/orchestrator"
	"github.com/zhouzirui/memchat/backend/pkg/utils"
)

// Handler runs a turn and reports its stages via Server-Sent Events.
type Handler struct {
	sessions *chatService.Service
	turns    *orchestrator.Orchestrator
	limiter  *middleware.TurnLimiter
}

// New creates a new stream handler. limiter may be nil.
func New(sessions *chatService.Service, turns *orchestrator.Orchestrator, limiter *middleware.TurnLimiter) *Handler {
	return &Handler{
		sessions: sessions,
		turns:    turns,
		limiter:  limiter,
	}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event     string                   `json:"event"`
	SessionID string                   `json:"sessionId,omitempty"`
	Content   string                   `json:"content,omitempty"`
	Stage     *orchestrator.Event      `json:"stage,omitempty"`
	Result    *orchestrator.TurnResult `json:"result,omitempty"`
	Finished  bool                     `json:"finished,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// RegisterRoutes 注册 SSE 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	if h.limiter != nil {
		r.With(h.limiter.Guard(h.sessions.Exists)).Get("/stream/{sessionID}", h.handleStream)
		return
	}
	r.Get("/stream/{sessionID}", h.handleStream)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := r.URL.Query().Get("message")

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	unlock, ok := session.TryLockTurn()
	if !ok {
		utils.RespondError(w, http.StatusConflict, "a turn is already in progress for this session")
		return
	}
	defer unlock()

	stream, err := utils.NewSSEStream(w)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.send(stream, StreamResponse{Event: "start", SessionID: sessionID})

	result, err := h.turns.HandleTurn(r.Context(), session, message, func(e orchestrator.Event) {
		stage := e
		h.send(stream, StreamResponse{Event: string(e.Type), SessionID: sessionID, Stage: &stage})
	})
	if err != nil {
		if !errors.Is(err, orchestrator.ErrEmptyInput) {
			log.Printf("[sse] turn failed session=%s: %v", sessionID, err)
		}
		h.send(stream, StreamResponse{Event: "error", SessionID: sessionID, Error: err.Error()})
		return
	}

	h.send(stream, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   result.Assistant.Content,
		Result:    &result,
	})
	h.send(stream, StreamResponse{Event: "end", SessionID: sessionID, Finished: true})

	log.Printf("[sse] completed turn session=%s status=%s", sessionID, result.Assistant.Status)
}

func (h *Handler) send(stream *utils.SSEStream, resp StreamResponse) {
	if err := stream.Event(resp.Event, resp); err != nil {
		log.Printf("[sse] %v", err)
	}
}
