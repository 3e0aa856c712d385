// Package oauth connects users' social accounts: it starts the provider authorization
// flow and completes it when the provider redirects back.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Seann-Moser/socialcast/oauth/oclient"
	"github.com/Seann-Moser/socialcast/oauth/ostate"
	"github.com/Seann-Moser/socialcast/oauth/platform"
)

// ErrPlatformMismatch means a state issued for one platform came back on another
// platform's callback.
var ErrPlatformMismatch = errors.New("oauth state was issued for a different platform")

// AdapterSource resolves adapters by platform name. *platform.Registry implements it.
type AdapterSource interface {
	Lookup(name string) (platform.Adapter, error)
	Platforms() []platform.Platform
}

// CredentialManager stores grants and reports linked platforms. *oclient.Manager
// implements it.
type CredentialManager interface {
	Link(ctx context.Context, userID string, p platform.Platform, tok *platform.Tokens) error
	Connected(ctx context.Context, userID string) ([]oclient.Connection, error)
	Unlink(ctx context.Context, userID string, p platform.Platform) error
}

var _ CredentialManager = &oclient.Manager{}

// Linker drives the authorization code flow for every platform.
type Linker struct {
	adapters AdapterSource
	states   *ostate.Tracker
	creds    CredentialManager
	logger   *slog.Logger
}

func NewLinker(adapters AdapterSource, states *ostate.Tracker, creds CredentialManager, logger *slog.Logger) *Linker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Linker{adapters: adapters, states: states, creds: creds, logger: logger}
}

// Initiate returns the provider authorization URL for userID. PKCE platforms get a fresh
// verifier that is stored with the state and never leaves the server.
func (l *Linker) Initiate(ctx context.Context, userID, platformName string) (string, error) {
	adapter, err := l.adapters.Lookup(platformName)
	if err != nil {
		return "", err
	}
	var verifier string
	if adapter.UsesPKCE() {
		verifier = platform.GenerateCodeVerifier()
	}
	state, err := l.states.Create(ctx, userID, string(adapter.Platform()), verifier)
	if err != nil {
		return "", err
	}
	return adapter.AuthCodeURL(state, verifier), nil
}

// Linked is the outcome of a completed authorization.
type Linked struct {
	UserID   string
	Platform platform.Platform
	MemberID string
}

// Complete redeems state, exchanges code and stores the resulting grant.
func (l *Linker) Complete(ctx context.Context, platformName, code, state string) (*Linked, error) {
	adapter, err := l.adapters.Lookup(platformName)
	if err != nil {
		return nil, err
	}
	rec, err := l.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	p := adapter.Platform()
	if rec.Platform != string(p) {
		l.logger.Warn("oauth state platform mismatch", "user_id", rec.UserID, "issued_for", rec.Platform, "callback", p)
		return nil, ErrPlatformMismatch
	}
	tok, err := adapter.Exchange(ctx, code, rec.CodeVerifier)
	if err != nil {
		l.logger.Error("oauth code exchange failed", "user_id", rec.UserID, "platform", p, "error", err)
		return nil, err
	}
	if err := l.creds.Link(ctx, rec.UserID, p, tok); err != nil {
		return nil, fmt.Errorf("link %s: %w", p, err)
	}
	return &Linked{UserID: rec.UserID, Platform: p, MemberID: tok.MemberID}, nil
}

// Connections lists the user's linked platforms.
func (l *Linker) Connections(ctx context.Context, userID string) ([]oclient.Connection, error) {
	return l.creds.Connected(ctx, userID)
}

// Unlink removes the user's grant for platformName.
func (l *Linker) Unlink(ctx context.Context, userID, platformName string) error {
	p, err := platform.Parse(platformName)
	if err != nil {
		return err
	}
	return l.creds.Unlink(ctx, userID, p)
}

// Available lists the platforms that have a configured adapter.
func (l *Linker) Available() []platform.Platform {
	return l.adapters.Platforms()
}

// Abandon invalidates state after the provider reported an error, so the value cannot be
// replayed against a later callback.
func (l *Linker) Abandon(ctx context.Context, state string) {
	if state == "" {
		return
	}
	if _, err := l.states.Consume(ctx, state); err != nil && !errors.Is(err, ostate.ErrInvalidState) {
		l.logger.Warn("discard oauth state failed", "error", err)
	}
}
