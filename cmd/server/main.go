package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pixell07/codeagent-rag/internal/agent"
	"github.com/pixell07/codeagent-rag/internal/api"
	"github.com/pixell07/codeagent-rag/internal/auth"
	"github.com/pixell07/codeagent-rag/internal/chunker"
	"github.com/pixell07/codeagent-rag/internal/config"
	"github.com/pixell07/codeagent-rag/internal/embedding"
	"github.com/pixell07/codeagent-rag/internal/ingestion"
	"github.com/pixell07/codeagent-rag/internal/llmadapter"
	"github.com/pixell07/codeagent-rag/internal/llmadapter/jsonembedded"
	"github.com/pixell07/codeagent-rag/internal/llmadapter/openaicompat"
	"github.com/pixell07/codeagent-rag/internal/retrieval"
	"github.com/pixell07/codeagent-rag/internal/store"
	"github.com/pixell07/codeagent-rag/internal/tools"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()
	ctx := context.Background()

	pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	if err := pgStore.Migrate(ctx, cfg.EmbeddingDim); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	convStore, err := store.NewConversationStore(ctx, cfg.RedisURL, store.DefaultConversationTTL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer convStore.Close()
	slog.Info("connected to redis")

	// A second pool for the api_clients table: separate from pgStore's
	// internal pool since auth is a distinct bounded context, not part of
	// the chunk/repository schema.
	clientPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open api client pool", "error", err)
		os.Exit(1)
	}
	defer clientPool.Close()
	clientStore := auth.NewClientStore(clientPool)
	if err := clientStore.Migrate(ctx); err != nil {
		slog.Error("failed to migrate api_clients", "error", err)
		os.Exit(1)
	}

	compatClient, err := openaicompat.New(cfg.ProviderEndpoint, cfg.ProviderKey, cfg.ChatModel, cfg.EmbeddingModel)
	if err != nil {
		slog.Error("failed to create provider client", "error", err)
		os.Exit(1)
	}

	var adapter llmadapter.Adapter = compatClient
	if cfg.ToolCallMode == "embedded" {
		adapter = jsonembedded.New(compatClient)
	}

	embedSvc := embedding.New(adapter, cfg.EmbeddingModel)
	retrievalSvc := retrieval.New(pgStore, embedSvc)
	chunkerSvc := chunker.New(cfg.Chunking)
	ingestionSvc := ingestion.New(pgStore, chunkerSvc, embedSvc)

	catalog, err := tools.NewCatalog(
		tools.NewCodeSearch(retrievalSvc),
		tools.NewReadFile(pgStore),
		tools.NewFindReferences(pgStore),
		tools.NewExplainCode(adapter),
	)
	if err != nil {
		slog.Error("failed to build tool catalog", "error", err)
		os.Exit(1)
	}

	orchestrator := agent.New(adapter, catalog, convStore)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	authSvc := auth.NewService(clientStore, jwtManager)

	router := api.NewRouter(api.RouterDeps{
		Orchestrator:  orchestrator,
		Ingestion:     ingestionSvc,
		Conversations: convStore,
		Repositories:  pgStore,
		JWTManager:    jwtManager,
		AuthService:   authSvc,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // long enough for SSE streaming
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slog.Info("shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
