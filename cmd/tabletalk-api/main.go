package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabletalk/tabletalk/internal/api"
	"github.com/tabletalk/tabletalk/internal/auth"
	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/database"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/nl2sql"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/router"
	"github.com/tabletalk/tabletalk/internal/schema"
)

func main() {
	cfg, err := config.LoadFromEnv("tabletalk-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := database.Open(context.Background(), database.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	introspector := schema.NewPostgresIntrospector(db, cfg.Schema.PgSchema)
	provider := schema.NewProvider(introspector, logger)
	if err := provider.Refresh(ctx); err != nil {
		logger.Error("initial schema introspection failed", slog.Any("error", err))
		os.Exit(1)
	}
	go provider.Run(ctx, cfg.Schema.RefreshInterval)

	llmClient, err := llm.NewHTTPClient(llm.HTTPConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}

	classifier := router.NewLLMClassifier(llmClient, logger, router.ClassifierConfig{
		Temperature: cfg.LLM.ClassifierTemperature,
	})
	nl2sqlHandler := router.NewNL2SQLHandler(
		nl2sql.NewGenerator(llmClient, nl2sql.GeneratorConfig{Temperature: cfg.LLM.GeneratorTemperature}),
		nl2sql.NewGuard(nl2sql.GuardConfig{MaxStatementLength: cfg.Guard.MaxStatementLength}),
		nl2sql.NewExecutor(db, nl2sql.ExecutorConfig{
			MaxRows:      cfg.Executor.MaxRows,
			QueryTimeout: cfg.Executor.QueryTimeout,
		}),
		nl2sql.NewFormatter(cfg.Executor.MaxRows),
		provider,
	)
	chatHandler := router.NewChatHandler(llmClient, router.ChatConfig{Temperature: cfg.LLM.ChatTemperature})
	codeGenHandler := router.NewCodeGenHandler(llmClient, router.CodeGenConfig{Temperature: cfg.LLM.CodeGenTemperature})
	messageRouter := router.New(classifier, nl2sqlHandler, codeGenHandler, chatHandler, logger, router.Config{
		ConfidenceThreshold: cfg.Router.ConfidenceThreshold,
		HelpText:            cfg.Router.HelpText,
	})

	deps := api.Dependencies{
		Logger:  logger,
		Router:  messageRouter,
		Schemas: provider,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabaseDSN(cfg),
			api.CheckSchemaLoaded(provider),
			func(ctx context.Context) error { return db.PingContext(ctx) },
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
