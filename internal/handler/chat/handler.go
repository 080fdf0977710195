package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/zhouzirui/memchat/backend/internal/middleware"
	"github.com/zhouzirui/memchat/backend/internal/observability"
	chatService "github.com/zhouzirui/memchat/backend/internal/service/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/memory"
	"github.com/zhouzirui/memchat/backend/internal/service/orchestrator"
	"github.com/zhouzirui/memchat/backend/internal/service/tokens"
	"github.com/zhouzirui/memchat/backend/pkg/utils"
)

const exportFilename = "chat_history.json"

// Handler 聊天服务的HTTP处理器
type Handler struct {
	sessions *chatService.Service
	turns    *orchestrator.Orchestrator
	memories memory.Gateway
	tokens   *tokens.Estimator
	metrics  *observability.Metrics
	limiter  *middleware.TurnLimiter
	validate *validator.Validate
}

// Deps 聚合处理器依赖，Metrics 与 Limiter 可为空。
type Deps struct {
	Sessions *chatService.Service
	Turns    *orchestrator.Orchestrator
	Memories memory.Gateway
	Tokens   *tokens.Estimator
	Metrics  *observability.Metrics
	Limiter  *middleware.TurnLimiter
}

// New 创建聊天处理器
func New(deps Deps) *Handler {
	return &Handler{
		sessions: deps.Sessions,
		turns:    deps.Turns,
		memories: deps.Memories,
		tokens:   deps.Tokens,
		metrics:  deps.Metrics,
		limiter:  deps.Limiter,
		validate: validator.New(),
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleEndSession)

		if h.limiter != nil {
			r.With(h.limiter.Guard(h.sessions.Exists)).Post("/turns", h.handleTurn)
		} else {
			r.Post("/turns", h.handleTurn)
		}

		r.Get("/messages", h.handleListMessages)
		r.Delete("/messages", h.handleClearMessages)
		r.Post("/feedback", h.handleAddFeedback)
		r.Get("/feedback", h.handleListFeedback)
		r.Get("/export", h.handleExport)
		r.Get("/memories", h.handleListMemories)
		r.Get("/tokens", h.handleTokens)
	})
}

type turnRequest struct {
	Message string `json:"message" validate:"required,max=8000"`
}

type feedbackRequest struct {
	MessageIndex *int  `json:"messageIndex" validate:"required,gte=0"`
	IsPositive   *bool `json:"isPositive" validate:"required"`
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.metrics.SetActiveSessions(h.sessions.ActiveCount())
	log.Printf("[session] created session=%s", session.ID)
	utils.RespondJSON(w, http.StatusCreated, session.Info())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Info())
}

func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.EndSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	if h.limiter != nil {
		h.limiter.Forget(sessionID)
	}
	h.metrics.SetActiveSessions(h.sessions.ActiveCount())
	log.Printf("[session] ended session=%s", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handleTurn 处理一次用户输入并返回助手回复
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload turnRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	unlock, ok := session.TryLockTurn()
	if !ok {
		utils.RespondError(w, http.StatusConflict, "a turn is already in progress for this session")
		return
	}
	defer unlock()

	result, err := h.turns.HandleTurn(r.Context(), session, payload.Message, nil)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages": session.Transcript().All(),
	})
}

// handleClearMessages 清空对话与反馈记录
func (h *Handler) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	unlock := session.LockTurn()
	session.Transcript().Clear()
	unlock()

	log.Printf("[session] cleared transcript session=%s", session.ID)
	w.WriteHeader(http.StatusNoContent)
}

// handleAddFeedback 记录对助手消息的点赞/点踩
func (h *Handler) handleAddFeedback(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var payload feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "messageIndex and isPositive are required")
		return
	}

	entry, turn, err := session.Transcript().AddAssistantFeedback(*payload.MessageIndex, *payload.IsPositive)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	h.metrics.ObserveFeedback(entry.IsPositive)
	log.Printf("[feedback] session=%s index=%d positive=%t content=%q", session.ID, entry.MessageIndex, entry.IsPositive, turn.Content)

	utils.RespondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"feedback": session.Transcript().AllFeedback(),
	})
}

// handleExport 导出 chat_history.json
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	data, err := session.Transcript().ExportJSON()
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondAttachment(w, exportFilename, "application/json", data)
}

// handleListMemories 列出当前身份下存储的全部记忆
func (h *Handler) handleListMemories(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	records, err := h.memories.ListAll(r.Context(), session.UserID())
	if err != nil {
		log.Printf("[memory] list failed session=%s: %v", session.ID, err)
		h.metrics.ObserveRemoteError(err)
		utils.RespondError(w, http.StatusBadGateway, "Error retrieving memories: "+err.Error())
		return
	}
	if records == nil {
		records = []memory.Record{}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"memories": records,
	})
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int{
		"totalTokens": h.tokens.Total(session.Transcript().All()),
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*chatService.Session, bool) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondServiceError(w, err)
		return nil, false
	}
	session.Touch()
	return session, true
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrEmptyInput):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrMessageIndexOutOfRange):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrFeedbackTarget):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
