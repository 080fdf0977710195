package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/memchat/backend/internal/config"
	"github.com/zhouzirui/memchat/backend/internal/handler"
	"github.com/zhouzirui/memchat/backend/internal/middleware"
	"github.com/zhouzirui/memchat/backend/internal/observability"
	"github.com/zhouzirui/memchat/backend/internal/service/ai"
	"github.com/zhouzirui/memchat/backend/internal/service/chat"
	"github.com/zhouzirui/memchat/backend/internal/service/memory"
	"github.com/zhouzirui/memchat/backend/internal/service/orchestrator"
	"github.com/zhouzirui/memchat/backend/internal/service/tokens"
)

var version = "dev"

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("memchat"),
		kong.Description("Memory-augmented chat backend."),
	)
	if cli.Version {
		fmt.Println(version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(cli.EnvFile); err != nil {
		log.Printf("warning: failed to load %s: %v", cli.EnvFile, err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load(cli.Config, cli.overrides())
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	for _, warning := range cfg.Warnings() {
		log.Printf("warning: %s", warning)
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Observability, version)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("warning: %v", err)
		}
	}()

	metrics := observability.NewMetrics(cfg.Observability.MetricsNamespace)

	memories, err := memory.NewGateway(ctx, cfg.Memory)
	if err != nil {
		log.Fatalf("failed to initialize memory backend: %v", err)
	}
	defer memories.Close()
	log.Printf("memory backend: %s", cfg.Memory.Backend)

	completions, err := ai.NewGateway(ctx, cfg.AI)
	if err != nil {
		log.Fatalf("failed to initialize completion backend: %v", err)
	}
	log.Printf("completion backend: %s model=%s", cfg.AI.Provider, cfg.AI.Model)

	turns := orchestrator.New(memories, completions, ai.NewPromptBuilder(cfg.Chat.SystemPrompt),
		orchestrator.WithLimits(orchestrator.Limits{
			RecallLimit: cfg.Memory.RecallLimit,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
		}),
		orchestrator.WithMetrics(metrics),
	)

	limiter := middleware.NewTurnLimiter(cfg.Server.TurnsPerMinute, cfg.Server.TurnBurst)

	sessions := chat.NewService(chat.Config{
		IdentitySource:    cfg.Chat.IdentitySource,
		InactivityTimeout: cfg.Chat.SessionTimeout,
	})
	sessions.SetExpireHook(func(s *chat.Session) {
		limiter.Forget(s.ID)
		metrics.SetActiveSessions(sessions.ActiveCount())
	})
	sessions.StartJanitor(ctx, cfg.Chat.JanitorInterval)

	router := handler.NewRouter(handler.Services{
		Sessions:       sessions,
		Turns:          turns,
		Memories:       memories,
		Tokens:         tokens.NewEstimator(tokens.DefaultModel),
		Metrics:        metrics,
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      serverCfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("memchat backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
