package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const readinessTimeout = 2 * time.Second

// Pinger は依存先の疎通確認を提供します。
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewOpsRouter は死活監視とメトリクスを公開する HTTP ルーターを構築します。
// pinger が nil の場合、/readyz は常に成功します。
func NewOpsRouter(logger *slog.Logger, pinger Pinger, metrics http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()
			if err := pinger.Ping(ctx); err != nil {
				logger.WarnContext(r.Context(), "readiness check failed", slog.Any("error", err))
				http.Error(w, "storage not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if metrics != nil {
		router.Method(http.MethodGet, "/metrics", metrics)
	}

	return router
}
