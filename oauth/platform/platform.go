package platform

import (
	"context"
	"time"
)

// Platform names a social network backend.
type Platform string

const (
	Twitter   Platform = "twitter"
	LinkedIn  Platform = "linkedin"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
)

// All lists every supported platform in display order.
var All = []Platform{Twitter, LinkedIn, Facebook, Instagram}

func (p Platform) String() string { return string(p) }

// DisplayName is the human readable label used in API responses.
func (p Platform) DisplayName() string {
	switch p {
	case Twitter:
		return "X (Twitter)"
	case LinkedIn:
		return "LinkedIn"
	case Facebook:
		return "Facebook"
	case Instagram:
		return "Instagram"
	}
	return string(p)
}

// Tokens is the normalized result of a code exchange or refresh. All values are plaintext
// and must be encrypted before they are persisted.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is nil for tokens that do not expire.
	ExpiresAt *time.Time
	// MemberID is the provider side account the token acts as: the LinkedIn person id,
	// the Facebook page id or the Instagram business account id.
	MemberID string
	Scope    string
}

// Adapter hides the provider specific parts of the authorization code flow.
type Adapter interface {
	Platform() Platform
	// UsesPKCE reports whether AuthCodeURL and Exchange expect a code verifier.
	UsesPKCE() bool
	AuthCodeURL(state, codeVerifier string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// ClientOverrider is implemented by adapters that can run with per-user app credentials
// instead of the process wide client.
type ClientOverrider interface {
	WithClient(clientID, clientSecret string) Adapter
}

func expiryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
