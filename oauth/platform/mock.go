package platform

import "context"

// MockAdapter provides customizable hooks for testing code that drives an Adapter.
type MockAdapter struct {
	Name         Platform
	PKCE         bool
	AuthURLFunc  func(state, codeVerifier string) string
	ExchangeFunc func(ctx context.Context, code, codeVerifier string) (*Tokens, error)
	RefreshFunc  func(ctx context.Context, refreshToken string) (*Tokens, error)
}

var _ Adapter = (*MockAdapter)(nil)

func (m *MockAdapter) Platform() Platform { return m.Name }

func (m *MockAdapter) UsesPKCE() bool { return m.PKCE }

// AuthCodeURL calls AuthURLFunc if set, otherwise returns a fixed URL carrying the state.
func (m *MockAdapter) AuthCodeURL(state, codeVerifier string) string {
	if m.AuthURLFunc != nil {
		return m.AuthURLFunc(state, codeVerifier)
	}
	return "https://provider.example/authorize?state=" + state
}

// Exchange calls ExchangeFunc if set, otherwise returns a static token.
func (m *MockAdapter) Exchange(ctx context.Context, code, codeVerifier string) (*Tokens, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code, codeVerifier)
	}
	return &Tokens{AccessToken: "access-" + code}, nil
}

// Refresh calls RefreshFunc if set, otherwise fails with RefreshError.
func (m *MockAdapter) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	return nil, &RefreshError{Platform: m.Name, Body: "refresh not supported"}
}
