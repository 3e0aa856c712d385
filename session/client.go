package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Seann-Moser/rbac"

	"github.com/Seann-Moser/socialcast/utils"
)

// RoleLoader looks up the roles granted to a user.
type RoleLoader interface {
	ListRolesForUser(ctx context.Context, userID string) ([]string, error)
}

var _ RoleLoader = (*rbac.Manager)(nil)

// Client issues and verifies signed sessions and loads roles.
type Client struct {
	ttl    time.Duration
	secret []byte
	roles  RoleLoader
	logger *slog.Logger
}

// NewClient constructs a Client. roles may be nil, in which case sessions keep the roles
// passed to Issue.
func NewClient(secret []byte, sessionTTL time.Duration, roles RoleLoader) *Client {
	return &Client{
		ttl:    sessionTTL,
		secret: secret,
		roles:  roles,
		logger: slog.Default(),
	}
}

// Issue creates a signed-in session for userID, sets the cookie and returns the token so
// API clients can send it as a bearer token instead.
func (c *Client) Issue(w http.ResponseWriter, r *http.Request, userID, username string, roles []string) (*UserSessionData, string, error) {
	u := &UserSessionData{
		UserID:    userID,
		Username:  username,
		Roles:     roles,
		SignedIn:  true,
		ExpiresAt: time.Now().Add(c.ttl).Unix(),
		Domain:    utils.GetDomain(r),
	}
	if c.roles != nil {
		loaded, err := c.roles.ListRolesForUser(r.Context(), userID)
		if err != nil {
			c.logger.Warn("load roles failed", "user_id", userID, "error", err)
		} else if len(loaded) > 0 {
			u.Roles = loaded
		}
	}
	token, err := Encode(u, c.secret)
	if err != nil {
		return nil, "", err
	}
	if err := SetSessionCookie(w, u, c.secret); err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// Authenticate reads the session from the cookie, falling back to an
// "Authorization: Bearer" header carrying the same signed value.
func (c *Client) Authenticate(r *http.Request) (*UserSessionData, error) {
	u, err := GetSessionFromCookie(r, c.secret)
	if err == nil {
		return u, nil
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return Decode(strings.TrimSpace(authHeader[7:]), c.secret)
	}
	return nil, err
}

// Require rejects requests without a valid signed-in session and puts the session in the
// request context for the next handler.
func (c *Client) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := c.Authenticate(r)
		if err != nil || !u.SignedIn {
			if errors.Is(err, ErrInvalidSession) {
				ClearSessionCookie(w)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(u.WithContext(r.Context())))
	})
}

// Optional attaches the session to the context when one is present and lets every
// request through.
func (c *Client) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, err := c.Authenticate(r); err == nil && u.SignedIn {
			r = r.WithContext(u.WithContext(r.Context()))
		}
		next.ServeHTTP(w, r)
	})
}
