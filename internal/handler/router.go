package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/memchat/backend/internal/handler/chat"
	"github.com/zhouzirui/memchat/backend/internal/handler/stream"
	"github.com/zhouzirui/memchat/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/memchat/backend/internal/middleware"
	"github.com/zhouzirui/memchat/backend/internal/observability"
	chatService "github.com/zhouzirui/memchat/backend/internal/service/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/memory"
	"github.com/zhouzirui/memchat/backend/internal/service/orchestrator"
	"github.com/zhouzirui/memchat/backend/internal/service/tokens"
	"github.com/zhouzirui/memchat/backend/pkg/utils"
)

// Services 汇总路由所需的核心服务。
type Services struct {
	Sessions       *chatService.Service
	Turns          *orchestrator.Orchestrator
	Memories       memory.Gateway
	Tokens         *tokens.Estimator
	Metrics        *observability.Metrics
	Limiter        *middlewarePkg.TurnLimiter
	AllowedOrigins []string
	MetricsHandler http.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(svc.AllowedOrigins))

	chatHandler := chat.New(chat.Deps{
		Sessions: svc.Sessions,
		Turns:    svc.Turns,
		Memories: svc.Memories,
		Tokens:   svc.Tokens,
		Metrics:  svc.Metrics,
		Limiter:  svc.Limiter,
	})
	streamHandler := stream.New(svc.Sessions, svc.Turns, svc.Limiter)
	wsHandler := ws.New(svc.Sessions, svc.Turns, svc.Limiter, svc.AllowedOrigins)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"activeSessions": svc.Sessions.ActiveCount(),
		})
	})

	metricsHandler := svc.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = observability.MetricsHandler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
