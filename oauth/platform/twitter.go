package platform

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// twitterDefaultTTL applies when the token response carries no expires_in.
const twitterDefaultTTL = 2 * time.Hour

var (
	_ Adapter         = &TwitterAdapter{}
	_ ClientOverrider = &TwitterAdapter{}
)

// TwitterAdapter implements OAuth 2.0 with PKCE for X.
type TwitterAdapter struct {
	grant *grant
}

// NewTwitter builds the X adapter. Client credentials are sent with HTTP Basic when a
// secret is configured, otherwise the client acts as a public PKCE client.
func NewTwitter(d Descriptor, opts ...Option) *TwitterAdapter {
	return &TwitterAdapter{grant: newGrant(d, twitterAuthStyle(d.ClientSecret), NewCaller(Twitter, opts...))}
}

func twitterAuthStyle(secret string) oauth2.AuthStyle {
	if secret != "" {
		return oauth2.AuthStyleInHeader
	}
	return oauth2.AuthStyleInParams
}

func (a *TwitterAdapter) WithClient(clientID, clientSecret string) Adapter {
	return &TwitterAdapter{grant: a.grant.withClient(clientID, clientSecret, twitterAuthStyle(clientSecret))}
}

func (a *TwitterAdapter) Platform() Platform { return Twitter }

func (a *TwitterAdapter) UsesPKCE() bool { return true }

func (a *TwitterAdapter) AuthCodeURL(state, codeVerifier string) string {
	return a.grant.authCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))
}

func (a *TwitterAdapter) Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	if codeVerifier == "" {
		return nil, &TokenExchangeError{Platform: Twitter, Body: "missing pkce code verifier"}
	}
	if !ValidateCodeVerifier(codeVerifier) {
		return nil, &TokenExchangeError{Platform: Twitter, Body: "malformed pkce code verifier"}
	}
	tok, err := a.grant.exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, err
	}
	return tokensFrom(tok, twitterDefaultTTL), nil
}

// Refresh redeems a refresh token. X rotates refresh tokens; the previous one is kept
// when the response does not carry a new one.
func (a *TwitterAdapter) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	tok, err := a.grant.refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	out := tokensFrom(tok, twitterDefaultTTL)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}
