package platform

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

var (
	_ Adapter         = &LinkedInAdapter{}
	_ ClientOverrider = &LinkedInAdapter{}
)

// LinkedInAdapter implements the confidential client flow and resolves the member id
// needed to author posts.
type LinkedInAdapter struct {
	grant   *grant
	apiBase string
}

func NewLinkedIn(d Descriptor, opts ...Option) *LinkedInAdapter {
	return &LinkedInAdapter{
		grant:   newGrant(d, oauth2.AuthStyleInParams, NewCaller(LinkedIn, opts...)),
		apiBase: trimBase(d.APIBaseURL),
	}
}

func (a *LinkedInAdapter) WithClient(clientID, clientSecret string) Adapter {
	return &LinkedInAdapter{
		grant:   a.grant.withClient(clientID, clientSecret, oauth2.AuthStyleInParams),
		apiBase: a.apiBase,
	}
}

func (a *LinkedInAdapter) Platform() Platform { return LinkedIn }

func (a *LinkedInAdapter) UsesPKCE() bool { return false }

func (a *LinkedInAdapter) AuthCodeURL(state, _ string) string {
	return a.grant.authCodeURL(state)
}

func (a *LinkedInAdapter) Exchange(ctx context.Context, code, _ string) (*Tokens, error) {
	tok, err := a.grant.exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	out := tokensFrom(tok, 0)
	memberID, err := a.memberID(ctx, out.AccessToken)
	if err != nil {
		return nil, err
	}
	out.MemberID = memberID
	return out, nil
}

func (a *LinkedInAdapter) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	tok, err := a.grant.refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	out := tokensFrom(tok, 0)
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	return out, nil
}

// memberID reads the authenticated person id from /v2/me.
func (a *LinkedInAdapter) memberID(ctx context.Context, accessToken string) (string, error) {
	var me struct {
		ID string `json:"id"`
	}
	err := a.grant.call.Do(ctx, NewGetRequest(a.apiBase+"/v2/me", nil, accessToken), &me)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", &TokenExchangeError{Platform: LinkedIn, StatusCode: apiErr.StatusCode, Body: apiErr.Body}
		}
		return "", err
	}
	if me.ID == "" {
		return "", &TokenExchangeError{Platform: LinkedIn, Body: "profile response has no id"}
	}
	return me.ID, nil
}
