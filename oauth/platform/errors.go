package platform

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPlatform is returned by Parse and Registry.Lookup for unsupported names.
	ErrUnknownPlatform = errors.New("unsupported platform")
	// ErrNotConfigured is returned when a platform has no client credentials.
	ErrNotConfigured = errors.New("platform oauth client is not configured")
	// ErrNoPages means the Facebook user manages no pages.
	ErrNoPages = errors.New("no Facebook pages found for this account")
	// ErrNoBusinessAccount means none of the user's pages is linked to an Instagram
	// business or creator account.
	ErrNoBusinessAccount = errors.New("no linked Instagram Business or Creator account found; convert the account to Business or Creator and link it to a Facebook Page")
)

// TokenExchangeError is a rejected authorization code exchange.
type TokenExchangeError struct {
	Platform   Platform
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s token exchange failed: %v", e.Platform, e.Err)
	}
	return fmt.Sprintf("%s token exchange failed (%d): %s", e.Platform, e.StatusCode, e.Body)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// RefreshError is a rejected refresh, including the case where no refresh token exists.
// The caller has to send the user through the authorization flow again.
type RefreshError struct {
	Platform   Platform
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s token refresh failed: %s", e.Platform, e.Body)
	}
	return fmt.Sprintf("%s token refresh failed (%d): %s", e.Platform, e.StatusCode, e.Body)
}

// ProviderUnavailableError is a transport failure, timeout or 5xx from the provider.
// Unlike the other errors it may succeed when retried later.
type ProviderUnavailableError struct {
	Platform   Platform
	StatusCode int
	Err        error
}

func (e *ProviderUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s unavailable (%d): %v", e.Platform, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Platform, e.Err)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Err }

// APIError is a non-2xx provider API response that is not worth retrying.
type APIError struct {
	Platform   Platform
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (%d): %s", e.Platform, e.StatusCode, e.Body)
}
