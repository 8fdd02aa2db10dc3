package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pitchloop/sales-trainer/internal/config"
	"github.com/pitchloop/sales-trainer/internal/handler"
	conversationService "github.com/pitchloop/sales-trainer/internal/service/conversation"
	"github.com/pitchloop/sales-trainer/internal/service/memory"
	"github.com/pitchloop/sales-trainer/internal/service/reply"
	"github.com/pitchloop/sales-trainer/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Pick the conversation-memory backend. Without provider credentials
	// threads live in process memory and are lost on restart.
	var memoryClient memory.Client
	if cfg.Memory.Enabled() {
		memoryClient = memory.NewProvider(memory.ProviderConfig{
			BaseURL: cfg.Memory.BaseURL,
			APIKey:  cfg.Memory.APIKey,
			Timeout: cfg.Memory.Timeout,
		})
		log.Println("Conversation memory provider configured")
	} else {
		memoryClient = memory.NewInMemory()
		log.Println("MEMORY_BASE_URL not set, using in-process conversation memory")
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to initialize chat model: %v", err)
	}

	generator, err := reply.NewGenerator(ctx, chatModel, memoryClient)
	if err != nil {
		log.Fatalf("failed to initialize reply generator: %v", err)
	}

	registry := session.NewRegistry(memoryClient, session.Config{
		IdleTimeout:   cfg.Session.IdleTimeout,
		SweepInterval: cfg.Session.SweepInterval,
	})
	registry.Start()
	defer registry.Stop()

	conversations := conversationService.NewService(registry, generator)

	router := handler.NewRouter(conversations, registry, generator)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Sales trainer backend listening on %s", addr)
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
