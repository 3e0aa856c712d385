package oauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/Seann-Moser/socialcast/oauth/oclient"
	"github.com/Seann-Moser/socialcast/oauth/ostate"
	"github.com/Seann-Moser/socialcast/oauth/platform"
	"github.com/Seann-Moser/socialcast/session"
	"github.com/Seann-Moser/socialcast/utils"
)

// Handler exposes the Linker over HTTP.
type Handler struct {
	linker      *Linker
	frontendURL string
	logger      *slog.Logger
}

// NewHandler returns a Handler redirecting finished authorizations to
// frontendURL + "/dashboard".
func NewHandler(linker *Linker, frontendURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{linker: linker, frontendURL: frontendURL, logger: logger}
}

// Routes mounts the handlers on r. The session middleware is expected to run before them.
// Initiate accepts user_id when no session is present; connections require a session.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/initiate/{platform}", h.Initiate)
	r.Get("/callback/{platform}", h.Callback)
	r.Get("/{platform}/callback", h.CallbackAlias)
	r.Get("/platforms", h.Platforms)
	r.Get("/connections", h.Connections)
	r.Delete("/connections/{platform}", h.Unlink)
}

// Initiate handles GET /auth/initiate/{platform}.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	userID := requestUser(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	authURL, err := h.linker.Initiate(r.Context(), userID, chi.URLParam(r, "platform"))
	if err != nil {
		h.fail(w, "initiate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// Callback handles GET /auth/callback/{platform}.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := chi.URLParam(r, "platform")

	if providerErr := q.Get("error"); providerErr != "" {
		h.linker.Abandon(r.Context(), q.Get("state"))
		reason := q.Get("error_description")
		if reason == "" {
			reason = providerErr
		}
		h.logger.Info("provider denied authorization", "platform", name, "error", providerErr)
		h.redirect(w, r, name, false, reason)
		return
	}
	if q.Get("code") == "" || q.Get("state") == "" {
		writeError(w, http.StatusBadRequest, "code and state are required")
		return
	}
	linked, err := h.linker.Complete(r.Context(), name, q.Get("code"), q.Get("state"))
	if err != nil {
		h.fail(w, "callback", err)
		return
	}
	h.redirect(w, r, string(linked.Platform), true, "")
}

// CallbackAlias forwards /auth/{platform}/callback, the redirect URI some apps were
// registered with, to the canonical callback.
func (h *Handler) CallbackAlias(w http.ResponseWriter, r *http.Request) {
	target := "/auth/callback/" + url.PathEscape(chi.URLParam(r, "platform"))
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

type platformInfo struct {
	Platform    platform.Platform `json:"platform"`
	DisplayName string            `json:"display_name"`
}

// Platforms handles GET /auth/platforms.
func (h *Handler) Platforms(w http.ResponseWriter, r *http.Request) {
	out := []platformInfo{}
	for _, p := range h.linker.Available() {
		out = append(out, platformInfo{Platform: p, DisplayName: p.DisplayName()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"platforms": out})
}

// Connections handles GET /auth/connections.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	conns, err := h.linker.Connections(r.Context(), userID)
	if err != nil {
		h.fail(w, "connections", err)
		return
	}
	if conns == nil {
		conns = []oclient.Connection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

// Unlink handles DELETE /auth/connections/{platform}.
func (h *Handler) Unlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := sessionUser(w, r)
	if !ok {
		return
	}
	if err := h.linker.Unlink(r.Context(), userID, chi.URLParam(r, "platform")); err != nil {
		h.fail(w, "unlink", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, p string, connected bool, reason string) {
	v := url.Values{"platform": {p}}
	if connected {
		v.Set("connected", "true")
	} else {
		v.Set("connected", "false")
		v.Set("error", reason)
	}
	target, err := utils.WithQuery(h.frontendURL+"/dashboard", v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalid frontend url")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("oauth request failed", "operation", op, "error", err)
	}
	writeError(w, status, err.Error())
}

// requestUser prefers the signed-in session and falls back to the user_id query parameter.
func requestUser(r *http.Request) string {
	if s, err := session.GetSession(r.Context()); err == nil && s.SignedIn {
		return s.UserID
	}
	return r.URL.Query().Get("user_id")
}

// sessionUser returns the signed-in user. Reading or removing linked accounts never
// trusts a user_id parameter.
func sessionUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	s, err := session.GetSession(r.Context())
	if err != nil || !s.SignedIn || s.UserID == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return s.UserID, true
}

func statusFor(err error) int {
	var (
		exchangeErr    *platform.TokenExchangeError
		unavailableErr *platform.ProviderUnavailableError
	)
	switch {
	case errors.Is(err, platform.ErrUnknownPlatform),
		errors.Is(err, ostate.ErrInvalidState),
		errors.Is(err, ErrPlatformMismatch),
		errors.Is(err, platform.ErrNoPages),
		errors.Is(err, platform.ErrNoBusinessAccount),
		errors.As(err, &exchangeErr):
		return http.StatusBadRequest
	case errors.Is(err, platform.ErrNotConfigured):
		return http.StatusNotImplemented
	case errors.Is(err, oclient.ErrNotLinked):
		return http.StatusNotFound
	case errors.As(err, &unavailableErr):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
