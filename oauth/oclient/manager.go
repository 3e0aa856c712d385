package oclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Seann-Moser/socialcast/oauth/platform"
	"github.com/Seann-Moser/socialcast/tokencrypt"
)

const (
	// DefaultRefreshBuffer is how close to expiry a token gets refreshed.
	DefaultRefreshBuffer = 5 * time.Minute

	refreshTimeout = 30 * time.Second
)

var (
	// ErrNotLinked means the user never connected the platform or unlinked it.
	ErrNotLinked = errors.New("platform account is not linked")
	// ErrReauthRequired means the stored grant can no longer be refreshed.
	ErrReauthRequired = errors.New("platform authorization expired; reconnect the account")
	// ErrShortLivedToken means a refresh produced a token that already falls inside the
	// refresh buffer. It is reported as a ProviderUnavailableError so callers retry later.
	ErrShortLivedToken = errors.New("refreshed token expires within the refresh buffer")
)

// ReauthError wraps the provider rejection behind ErrReauthRequired.
type ReauthError struct {
	Platform platform.Platform
	Cause    *platform.RefreshError
}

func (e *ReauthError) Error() string {
	return fmt.Sprintf("%s: %v", ErrReauthRequired.Error(), e.Cause)
}

func (e *ReauthError) Is(target error) bool { return target == ErrReauthRequired }

func (e *ReauthError) Unwrap() error { return e.Cause }

// AdapterSource resolves platform adapters. *platform.Registry implements it.
type AdapterSource interface {
	Lookup(name string) (platform.Adapter, error)
}

// Manager is the only component that turns stored ciphertext into usable tokens.
type Manager struct {
	store    Store
	cipher   tokencrypt.Cipher
	adapters AdapterSource
	locker   Locker
	buffer   time.Duration
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLocker sets the cross-process refresh lock. Defaults to a LocalLocker.
func WithLocker(l Locker) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.locker = l
		}
	}
}

// WithRefreshBuffer sets how early tokens are refreshed.
func WithRefreshBuffer(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.buffer = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func NewManager(store Store, cipher tokencrypt.Cipher, adapters AdapterSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		cipher:   cipher,
		adapters: adapters,
		locker:   NewLocalLocker(),
		buffer:   DefaultRefreshBuffer,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidToken returns a plaintext access token that is valid for at least the refresh
// buffer, refreshing it first when needed.
func (m *Manager) GetValidToken(ctx context.Context, userID string, p platform.Platform) (string, error) {
	l, err := m.Lease(ctx, userID, p)
	if err != nil {
		return "", err
	}
	return l.AccessToken, nil
}

// Lease is GetValidToken plus the provider account id stored with the grant.
func (m *Manager) Lease(ctx context.Context, userID string, p platform.Platform) (*Lease, error) {
	c, err := m.load(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if m.stale(c) {
		if c, err = m.refresh(ctx, userID, p); err != nil {
			return nil, err
		}
		if m.stale(c) {
			m.logger.Warn("refreshed token still inside buffer", "user_id", userID, "platform", p, "expires_at", c.ExpiresAt)
			return nil, &platform.ProviderUnavailableError{Platform: p, Err: ErrShortLivedToken}
		}
	}
	token, err := m.cipher.Decrypt(c.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s access token: %w", p, err)
	}
	return &Lease{AccessToken: token, MemberID: c.MemberID, ExpiresAt: c.ExpiresAt}, nil
}

// Link encrypts and stores a freshly exchanged grant, replacing any previous one.
func (m *Manager) Link(ctx context.Context, userID string, p platform.Platform, tok *platform.Tokens) error {
	if tok == nil || tok.AccessToken == "" {
		return errors.New("oclient: cannot link an empty access token")
	}
	c := &Credential{UserID: userID, Platform: p}
	if err := m.seal(c, tok); err != nil {
		return err
	}
	if err := m.store.Upsert(ctx, c); err != nil {
		return fmt.Errorf("store %s credential: %w", p, err)
	}
	m.logger.Info("platform linked", "user_id", userID, "platform", p, "member_id", tok.MemberID)
	return nil
}

// SetClientOverride makes future refreshes for the user use their own app credentials.
func (m *Manager) SetClientOverride(ctx context.Context, userID string, p platform.Platform, clientID, clientSecret string) error {
	c, err := m.load(ctx, userID, p)
	if err != nil {
		return err
	}
	secret, err := m.cipher.Encrypt(clientSecret)
	if err != nil {
		return err
	}
	c.ClientID, c.ClientSecret = clientID, secret
	return m.store.Upsert(ctx, c)
}

// Connected lists the platforms the user has a usable grant for.
func (m *Manager) Connected(ctx context.Context, userID string) ([]Connection, error) {
	creds, err := m.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	byPlatform := make(map[platform.Platform]Credential, len(creds))
	for _, c := range creds {
		if c.AccessToken != "" {
			byPlatform[c.Platform] = c
		}
	}
	out := make([]Connection, 0, len(byPlatform))
	for _, p := range platform.All {
		c, ok := byPlatform[p]
		if !ok {
			continue
		}
		out = append(out, Connection{
			Platform:    p,
			DisplayName: p.DisplayName(),
			MemberID:    c.MemberID,
			ExpiresAt:   c.ExpiresAt,
			ConnectedAt: c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return out, nil
}

// Unlink forgets the user's grant for a platform.
func (m *Manager) Unlink(ctx context.Context, userID string, p platform.Platform) error {
	err := m.store.Delete(ctx, userID, p)
	if errors.Is(err, ErrNotFound) {
		return ErrNotLinked
	}
	if err == nil {
		m.logger.Info("platform unlinked", "user_id", userID, "platform", p)
	}
	return err
}

func (m *Manager) load(ctx context.Context, userID string, p platform.Platform) (*Credential, error) {
	c, err := m.store.Get(ctx, userID, p)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotLinked
		}
		return nil, err
	}
	if c.AccessToken == "" {
		return nil, ErrNotLinked
	}
	return c, nil
}

// stale reports whether less than the refresh buffer is left before expiry.
func (m *Manager) stale(c *Credential) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Sub(m.now().UTC()) < m.buffer
}

// refresh collapses concurrent refreshes of one key in this process and serializes them
// across processes through the locker.
func (m *Manager) refresh(ctx context.Context, userID string, p platform.Platform) (*Credential, error) {
	key := userID + "|" + string(p)
	ch := m.group.DoChan(key, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refreshLocked(rctx, key, userID, p)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	}
}

func (m *Manager) refreshLocked(ctx context.Context, key, userID string, p platform.Platform) (*Credential, error) {
	unlock, err := m.locker.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire refresh lock: %w", err)
	}
	defer unlock()

	// Another instance may have refreshed while we waited.
	c, err := m.load(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if !m.stale(c) {
		return c, nil
	}

	adapter, err := m.adapterFor(c)
	if err != nil {
		return nil, err
	}
	refreshToken, err := m.cipher.Decrypt(c.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt %s refresh token: %w", p, err)
	}
	tok, err := adapter.Refresh(ctx, refreshToken)
	if err != nil {
		var rerr *platform.RefreshError
		if errors.As(err, &rerr) {
			m.logger.Warn("token refresh rejected", "user_id", userID, "platform", p, "status", rerr.StatusCode)
			return nil, &ReauthError{Platform: p, Cause: rerr}
		}
		m.logger.Error("token refresh failed", "user_id", userID, "platform", p, "error", err)
		return nil, err
	}
	if tok.MemberID == "" {
		tok.MemberID = c.MemberID
	}
	updated := &Credential{
		UserID:    userID,
		Platform:  p,
		CreatedAt: c.CreatedAt,
	}
	if err := m.seal(updated, tok); err != nil {
		return nil, err
	}
	if err := m.store.Upsert(ctx, updated); err != nil {
		return nil, fmt.Errorf("store refreshed %s credential: %w", p, err)
	}
	updated.ClientID, updated.ClientSecret = c.ClientID, c.ClientSecret
	m.logger.Info("token refreshed", "user_id", userID, "platform", p)
	return updated, nil
}

func (m *Manager) adapterFor(c *Credential) (platform.Adapter, error) {
	a, err := m.adapters.Lookup(string(c.Platform))
	if err != nil {
		return nil, err
	}
	if c.ClientID == "" {
		return a, nil
	}
	o, ok := a.(platform.ClientOverrider)
	if !ok {
		return a, nil
	}
	secret, err := m.cipher.Decrypt(c.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("decrypt client secret: %w", err)
	}
	return o.WithClient(c.ClientID, secret), nil
}

// seal copies tok into c with both tokens encrypted.
func (m *Manager) seal(c *Credential, tok *platform.Tokens) error {
	access, err := m.cipher.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	refresh, err := m.cipher.Encrypt(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}
	c.AccessToken = access
	c.RefreshToken = refresh
	c.MemberID = tok.MemberID
	c.ExpiresAt = nil
	if tok.ExpiresAt != nil {
		e := tok.ExpiresAt.UTC()
		c.ExpiresAt = &e
	}
	return nil
}
