package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"eval-orchestrator/internal/adapter/embedding"
	"eval-orchestrator/internal/adapter/evalhttp"
	"eval-orchestrator/internal/adapter/provider"
	"eval-orchestrator/internal/adapter/repository"
	"eval-orchestrator/internal/adapter/textfile"
	"eval-orchestrator/internal/adapter/tokenizer"
	"eval-orchestrator/internal/adapter/vectorstore"
	"eval-orchestrator/internal/domain"
	"eval-orchestrator/internal/infra"
	"eval-orchestrator/internal/infra/config"
	"eval-orchestrator/internal/infra/httpclient"
	"eval-orchestrator/internal/infra/logger"
	"eval-orchestrator/internal/usecase"
	"eval-orchestrator/internal/worker"
)

func main() {
	// 1. Load Config
	cfg := config.Load()

	// 2. Initialize Logger
	log := logger.New()
	slog.SetDefault(log)

	// 3. Initialize Storage
	var (
		runRepo    domain.RunRepository
		resultRepo domain.ResultRepository
		store      domain.VectorStore
		pinger     evalhttp.Pinger
	)
	switch cfg.Storage {
	case "postgres":
		pool, err := infra.NewPostgresPool(context.Background(), cfg.DB.DSN(), infra.PoolConfig{
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			log.Error("failed to connect to db", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		runRepo = repository.NewPostgresRunRepository(pool)
		resultRepo = repository.NewPostgresResultRepository(pool)
		store = vectorstore.NewPgvectorStore(pool)
		pinger = pool
	case "memory":
		mem := repository.NewMemoryStore()
		runRepo = mem
		resultRepo = mem
		store = vectorstore.NewMemoryStore()
	default:
		log.Error("unknown storage backend", slog.String("storage", cfg.Storage))
		os.Exit(1)
	}

	// 4. Initialize Adapters
	httpClient := httpclient.NewPooledClient(120 * time.Second)

	providers := provider.NewFactory(provider.Config{
		OpenAIAPIKey:      cfg.Providers.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.Providers.OpenAIBaseURL,
		AnthropicAPIKey:   cfg.Providers.AnthropicAPIKey,
		OllamaBaseURL:     cfg.Providers.OllamaURL,
		RequestsPerSecond: cfg.Providers.RequestsPerSecond,
		HTTPClient:        httpClient,
	})

	embedder, err := embedding.New(embedding.Config{
		Provider:        cfg.Embedding.Provider,
		Model:           cfg.Embedding.Model,
		OpenAIAPIKey:    cfg.Providers.OpenAIAPIKey,
		OllamaBaseURL:   cfg.Providers.OllamaURL,
		OllamaDimension: cfg.Embedding.Dimension,
		HTTPClient:      httpClient,
	})
	if err != nil {
		log.Error("failed to build embedder", slog.String("error", err.Error()))
		os.Exit(1)
	}

	tok, err := tokenizer.New(cfg.Chunking.Encoding)
	if err != nil {
		log.Error("failed to load tokenizer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	chunker, err := domain.NewTokenChunker(tok, cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		log.Error("invalid chunking config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 5. Initialize Usecases
	indexes := usecase.NewIndexManager(embedder, store, log)
	indexer := usecase.NewIndexDocumentUsecase(chunker, indexes, log)
	runner := usecase.NewRunEvaluationUsecase(runRepo, resultRepo, indexes, providers, log)

	synthProvider, err := providers.Provider(cfg.Eval.SyntheticProvider, cfg.Eval.SyntheticModel)
	if err != nil {
		log.Error("failed to build synthetic generator", slog.String("error", err.Error()))
		os.Exit(1)
	}
	synth := usecase.NewSyntheticGenerator(synthProvider, log)

	// 6. Initialize & Start Worker
	runWorker := worker.NewRunWorker(runner, log)
	defer func() {
		log.Info("stopping worker")
		runWorker.Stop()
	}()

	// 7. Initialize Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("http_request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status))
			return nil
		},
	}))

	// 8. Register Handlers
	var texts domain.DocumentTextProvider
	if cfg.Eval.DocumentsRoot != "" {
		texts = textfile.New(cfg.Eval.DocumentsRoot)
	}
	handler := evalhttp.NewHandler(runner, runRepo, runWorker, indexer, synth, chunker, texts, pinger)
	handler.RegisterRoutes(e)

	// 9. Start Server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Info("starting server", slog.String("addr", addr))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	// 10. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}
