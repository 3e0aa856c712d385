package platform

import (
	"context"
	"errors"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// graphFlow is the Meta login sequence shared by Facebook and Instagram: code for a short
// lived user token, fb_exchange_token for a long lived one, then /me/accounts.
type graphFlow struct {
	grant *grant
	desc  Descriptor
	graph string
}

func newGraphFlow(p Platform, d Descriptor, opts []Option) graphFlow {
	return graphFlow{
		grant: newGrant(d, oauth2.AuthStyleInParams, NewCaller(p, opts...)),
		desc:  d,
		graph: trimBase(d.GraphBaseURL),
	}
}

type graphPage struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	AccessToken     string `json:"access_token"`
	BusinessAccount *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"instagram_business_account"`
}

type longLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (f graphFlow) withClient(clientID, clientSecret string) graphFlow {
	d := f.desc
	d.ClientID, d.ClientSecret = clientID, clientSecret
	return graphFlow{
		grant: f.grant.withClient(clientID, clientSecret, oauth2.AuthStyleInParams),
		desc:  d,
		graph: f.graph,
	}
}

func (f graphFlow) platform() Platform { return f.grant.call.Platform() }

// userToken runs the code exchange followed by the long lived token exchange.
func (f graphFlow) userToken(ctx context.Context, code string) (*longLivedToken, error) {
	short, err := f.grant.exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	q := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {f.desc.ClientID},
		"client_secret":     {f.desc.ClientSecret},
		"fb_exchange_token": {short.AccessToken},
	}
	var long longLivedToken
	if err := f.grant.call.Do(ctx, NewGetRequest(f.desc.TokenURL, q, ""), &long); err != nil {
		return nil, f.exchangeErr(err)
	}
	if long.AccessToken == "" {
		return nil, &TokenExchangeError{Platform: f.platform(), Body: "long-lived token response has no access_token"}
	}
	return &long, nil
}

func (f graphFlow) pages(ctx context.Context, userToken, fields string) ([]graphPage, error) {
	q := url.Values{"access_token": {userToken}, "fields": {fields}}
	var resp struct {
		Data []graphPage `json:"data"`
	}
	if err := f.grant.call.Do(ctx, NewGetRequest(f.graph+"/me/accounts", q, ""), &resp); err != nil {
		return nil, f.exchangeErr(err)
	}
	return resp.Data, nil
}

func (f graphFlow) exchangeErr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &TokenExchangeError{Platform: f.platform(), StatusCode: apiErr.StatusCode, Body: apiErr.Body}
	}
	return err
}

func (f graphFlow) noRefresh() error {
	return &RefreshError{Platform: f.platform(), Body: "graph tokens cannot be refreshed; reconnect the account"}
}

var (
	_ Adapter         = &FacebookAdapter{}
	_ ClientOverrider = &FacebookAdapter{}
)

// FacebookAdapter links the user's first managed page. The page token is what gets stored;
// it does not expire and has no refresh token.
type FacebookAdapter struct {
	flow graphFlow
}

func NewFacebook(d Descriptor, opts ...Option) *FacebookAdapter {
	return &FacebookAdapter{flow: newGraphFlow(Facebook, d, opts)}
}

func (a *FacebookAdapter) WithClient(clientID, clientSecret string) Adapter {
	return &FacebookAdapter{flow: a.flow.withClient(clientID, clientSecret)}
}

func (a *FacebookAdapter) Platform() Platform { return Facebook }

func (a *FacebookAdapter) UsesPKCE() bool { return false }

func (a *FacebookAdapter) AuthCodeURL(state, _ string) string {
	return a.flow.grant.authCodeURL(state)
}

func (a *FacebookAdapter) Exchange(ctx context.Context, code, _ string) (*Tokens, error) {
	long, err := a.flow.userToken(ctx, code)
	if err != nil {
		return nil, err
	}
	pages, err := a.flow.pages(ctx, long.AccessToken, "id,name,access_token")
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if p.ID != "" && p.AccessToken != "" {
			return &Tokens{AccessToken: p.AccessToken, MemberID: p.ID}, nil
		}
	}
	return nil, ErrNoPages
}

func (a *FacebookAdapter) Refresh(context.Context, string) (*Tokens, error) {
	return nil, a.flow.noRefresh()
}

var (
	_ Adapter         = &InstagramAdapter{}
	_ ClientOverrider = &InstagramAdapter{}
)

// InstagramAdapter links the first page carrying an Instagram business or creator
// account. The long lived user token is stored and the business account id becomes the
// member id.
type InstagramAdapter struct {
	flow graphFlow
}

func NewInstagram(d Descriptor, opts ...Option) *InstagramAdapter {
	return &InstagramAdapter{flow: newGraphFlow(Instagram, d, opts)}
}

func (a *InstagramAdapter) WithClient(clientID, clientSecret string) Adapter {
	return &InstagramAdapter{flow: a.flow.withClient(clientID, clientSecret)}
}

func (a *InstagramAdapter) Platform() Platform { return Instagram }

func (a *InstagramAdapter) UsesPKCE() bool { return false }

func (a *InstagramAdapter) AuthCodeURL(state, _ string) string {
	return a.flow.grant.authCodeURL(state)
}

func (a *InstagramAdapter) Exchange(ctx context.Context, code, _ string) (*Tokens, error) {
	long, err := a.flow.userToken(ctx, code)
	if err != nil {
		return nil, err
	}
	pages, err := a.flow.pages(ctx, long.AccessToken, "id,name,instagram_business_account")
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		if p.BusinessAccount == nil || p.BusinessAccount.ID == "" {
			continue
		}
		out := &Tokens{AccessToken: long.AccessToken, MemberID: p.BusinessAccount.ID}
		if long.ExpiresIn > 0 {
			out.ExpiresAt = expiryPtr(time.Now().Add(time.Duration(long.ExpiresIn) * time.Second))
		}
		return out, nil
	}
	return nil, ErrNoBusinessAccount
}

func (a *InstagramAdapter) Refresh(context.Context, string) (*Tokens, error) {
	return nil, a.flow.noRefresh()
}
