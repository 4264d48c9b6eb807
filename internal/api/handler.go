package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/semql/semql/internal/archive"
	"github.com/semql/semql/internal/auth"
	"github.com/semql/semql/internal/cache"
	"github.com/semql/semql/internal/config"
	"github.com/semql/semql/internal/observability"
	"github.com/semql/semql/internal/sqlcheck"
	"github.com/semql/semql/internal/texttosql"
)

type ReadinessCheck func(ctx context.Context) error

type TextToSQLService interface {
	ProcessQuestion(ctx context.Context, question string, readonly bool) (texttosql.Result, error)
	ValidateSQL(raw string, readonly bool) sqlcheck.Result
	ValidateAndCorrectSQL(ctx context.Context, question, raw string, readonly bool) (texttosql.CorrectionOutcome, error)
	ExplainSQL(ctx context.Context, sqlQuery string) (string, error)
	CacheStats(ctx context.Context) (cache.Stats, error)
	ClearCache(ctx context.Context) (int64, error)
}

type CacheArchiver interface {
	Export(ctx context.Context, key string) (archive.ExportResult, error)
	Restore(ctx context.Context, key string, replace bool) (archive.RestoreResult, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Service           TextToSQLService
	Archiver          CacheArchiver
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/text-to-sql", func(w http.ResponseWriter, r *http.Request) {
		handleTextToSQL(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sql/validate", func(w http.ResponseWriter, r *http.Request) {
		handleValidateSQL(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sql/correct", func(w http.ResponseWriter, r *http.Request) {
		handleCorrectSQL(deps, w, r)
	})
	protected.HandleFunc("POST /v1/sql/explain", func(w http.ResponseWriter, r *http.Request) {
		handleExplainSQL(deps, w, r)
	})
	protected.HandleFunc("GET /v1/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		handleCacheStats(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		handleCacheClear(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/export", func(w http.ResponseWriter, r *http.Request) {
		handleCacheExport(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/restore", func(w http.ResponseWriter, r *http.Request) {
		handleCacheRestore(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/text-to-sql", protectedHandler)
	mux.Handle("POST /v1/sql/validate", protectedHandler)
	mux.Handle("POST /v1/sql/correct", protectedHandler)
	mux.Handle("POST /v1/sql/explain", protectedHandler)
	mux.Handle("GET /v1/cache/stats", protectedHandler)
	mux.Handle("POST /v1/cache/clear", protectedHandler)
	mux.Handle("POST /v1/cache/export", protectedHandler)
	mux.Handle("POST /v1/cache/restore", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCacheStore(store cache.Store) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("cache store is not configured")
		}
		return store.HealthCheck(ctx)
	}
}

func CheckAIConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.BaseURL == "" {
			return errors.New("ai base url is not configured")
		}
		if cfg.AI.APIKey == "" {
			return errors.New("ai api key is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
