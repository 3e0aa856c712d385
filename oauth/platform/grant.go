package platform

import (
	"context"
	"errors"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// grant runs the authorization code and refresh grants through x/oauth2 and maps its
// errors onto this package's taxonomy.
type grant struct {
	cfg  *oauth2.Config
	call *Caller
}

func newGrant(d Descriptor, style oauth2.AuthStyle, call *Caller) *grant {
	return &grant{
		cfg: &oauth2.Config{
			ClientID:     d.ClientID,
			ClientSecret: d.ClientSecret,
			RedirectURL:  d.RedirectURL,
			Scopes:       d.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   d.AuthURL,
				TokenURL:  d.TokenURL,
				AuthStyle: style,
			},
		},
		call: call,
	}
}

// withClient returns a copy of g using other client credentials.
func (g *grant) withClient(clientID, clientSecret string, style oauth2.AuthStyle) *grant {
	cfg := *g.cfg
	cfg.ClientID = clientID
	cfg.ClientSecret = clientSecret
	cfg.Endpoint.AuthStyle = style
	return &grant{cfg: &cfg, call: g.call}
}

func (g *grant) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.call.HTTPClient())
}

func (g *grant) authCodeURL(state string, opts ...oauth2.AuthCodeOption) string {
	return g.cfg.AuthCodeURL(state, opts...)
}

func (g *grant) exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if code == "" {
		return nil, &TokenExchangeError{Platform: g.call.Platform(), Body: "missing authorization code"}
	}
	return retry(ctx, g.call, func() (*oauth2.Token, error) {
		tok, err := g.cfg.Exchange(g.httpContext(ctx), code, opts...)
		if err != nil {
			return nil, g.classify(err, false)
		}
		return tok, nil
	})
}

func (g *grant) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, &RefreshError{Platform: g.call.Platform(), Body: "no refresh token stored"}
	}
	return retry(ctx, g.call, func() (*oauth2.Token, error) {
		// An empty access token forces the source to hit the token endpoint.
		tok, err := g.cfg.TokenSource(g.httpContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return nil, g.classify(err, true)
		}
		return tok, nil
	})
}

func (g *grant) classify(err error, refreshing bool) error {
	p := g.call.Platform()
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if transientStatus(status) {
			return &ProviderUnavailableError{Platform: p, StatusCode: status, Err: err}
		}
		body := string(re.Body)
		if body == "" {
			body = re.Error()
		}
		if refreshing {
			return &RefreshError{Platform: p, StatusCode: status, Body: body}
		}
		return &TokenExchangeError{Platform: p, StatusCode: status, Body: body}
	}
	var ue *url.Error
	if errors.As(err, &ue) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ProviderUnavailableError{Platform: p, Err: err}
	}
	if refreshing {
		return &RefreshError{Platform: p, Body: err.Error()}
	}
	return &TokenExchangeError{Platform: p, Err: err}
}

// tokensFrom normalizes an oauth2 token. defaultTTL is applied when the provider omits
// expires_in; zero leaves such tokens non-expiring.
func tokensFrom(tok *oauth2.Token, defaultTTL time.Duration) *Tokens {
	out := &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiryPtr(tok.Expiry),
	}
	if out.ExpiresAt == nil && defaultTTL > 0 {
		out.ExpiresAt = expiryPtr(time.Now().Add(defaultTTL))
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		out.Scope = scope
	}
	return out
}
