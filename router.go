package socialcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Seann-Moser/socialcast/oauth"
	"github.com/Seann-Moser/socialcast/posts"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Router mounts every HTTP surface of the App.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware, accessLog(a.logger), middleware.Recoverer)

	r.Get("/healthz", a.health)
	r.Route("/auth", func(r chi.Router) {
		r.Use(a.Sessions.Optional)
		oauth.NewHandler(a.Linker, a.cfg.FrontendURL, a.logger).Routes(r)
	})
	r.Route("/posts", func(r chi.Router) {
		r.Use(a.Sessions.Require)
		posts.NewHandler(a.Posts, a.logger).Routes(r)
	})
	r.Route("/users", a.Users.Routes)
	return r
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status, code := "ok", http.StatusOK
	if err := a.db.Client().Ping(ctx, nil); err != nil {
		a.logger.Error("health check: mongo ping failed", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID)))
	})
}

// RequestID returns the id assigned to the current request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
				"request_id", RequestID(r.Context()),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
