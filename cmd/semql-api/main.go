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

	"github.com/semql/semql/internal/api"
	"github.com/semql/semql/internal/archive"
	s3store "github.com/semql/semql/internal/archive/s3"
	"github.com/semql/semql/internal/auth"
	"github.com/semql/semql/internal/cache"
	cachepostgres "github.com/semql/semql/internal/cache/postgres"
	"github.com/semql/semql/internal/config"
	"github.com/semql/semql/internal/nl2sql"
	"github.com/semql/semql/internal/observability"
	"github.com/semql/semql/internal/texttosql"
)

func main() {
	cfg, err := config.LoadFromEnv("semql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	var store cache.Store
	switch cfg.Cache.Backend {
	case config.CacheBackendPostgres:
		db, err := cachepostgres.Open(context.Background(), cachepostgres.DBConfig{
			DSN:             cfg.Cache.DSN,
			MaxOpenConns:    cfg.Cache.MaxOpenConns,
			MaxIdleConns:    cfg.Cache.MaxIdleConns,
			ConnMaxIdleTime: cfg.Cache.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Cache.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open cache db", slog.Any("error", err))
			os.Exit(1)
		}
		store = cachepostgres.NewStore(db)
	default:
		store = cache.NewMemoryStore()
	}
	defer func() { _ = store.Close() }()

	client, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		Model:          cfg.AI.Model,
		EmbeddingModel: cfg.AI.EmbeddingModel,
		Schema:         cfg.AI.Schema,
		Temperature:    cfg.AI.Temperature,
		Timeout:        cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize ai client", slog.Any("error", err))
		os.Exit(1)
	}

	service := texttosql.NewService(store, client, client, texttosql.Config{
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		EmbeddingDim:        cfg.AI.EmbeddingDim,
		CorrectionEnabled:   cfg.AI.CorrectionEnabled,
	}, logger)

	deps := api.Dependencies{
		Logger:  logger,
		Service: service,
		Readiness: api.CombineReadinessChecks(
			api.CheckCacheStore(store),
			api.CheckAIConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize archive store", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Archiver = archive.NewArchiver(store, objectStore, logger)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
