package ostate

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// DefaultTTL is how long an authorization attempt stays redeemable.
const DefaultTTL = 10 * time.Minute

// ErrInvalidState is returned for unknown, already consumed or expired state values.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// State correlates a provider redirect with the user that started it.
type State struct {
	State        string    `bson:"_id" json:"state"`
	UserID       string    `bson:"user_id" json:"user_id"`
	Platform     string    `bson:"platform" json:"platform"`
	CodeVerifier string    `bson:"code_verifier,omitempty" json:"code_verifier,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	ExpiresAt    time.Time `bson:"expires_at" json:"expires_at"`
}

// Expired reports whether the record is no longer redeemable at now.
func (s *State) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists pending authorization attempts.
type Store interface {
	// Save stores a new record.
	Save(ctx context.Context, s *State) error
	// Take atomically removes and returns the record, or ErrInvalidState when absent.
	Take(ctx context.Context, state string) (*State, error)
}

// Tracker issues and redeems opaque single-use state values.
type Tracker struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewTracker returns a Tracker writing to store. A non-positive ttl falls back to DefaultTTL.
func NewTracker(store Store, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the lifetime given to new state values.
func (t *Tracker) TTL() time.Duration { return t.ttl }

// Create records a new attempt for userID on platform and returns its state value.
func (t *Tracker) Create(ctx context.Context, userID, platform, codeVerifier string) (string, error) {
	if userID == "" {
		return "", errors.New("ostate: user id is required")
	}
	value, err := newStateValue()
	if err != nil {
		return "", err
	}
	now := t.now().UTC()
	rec := &State{
		State:        value,
		UserID:       userID,
		Platform:     platform,
		CodeVerifier: codeVerifier,
		CreatedAt:    now,
		ExpiresAt:    now.Add(t.ttl),
	}
	if err := t.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("ostate: save state: %w", err)
	}
	return value, nil
}

// Consume redeems a state value. The record is removed before expiry is checked, so a
// value can never be redeemed twice.
func (t *Tracker) Consume(ctx context.Context, state string) (*State, error) {
	if state == "" {
		return nil, ErrInvalidState
	}
	rec, err := t.store.Take(ctx, state)
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("ostate: take state: %w", err)
	}
	if rec.Expired(t.now().UTC()) {
		return nil, ErrInvalidState
	}
	return rec, nil
}

// newStateValue returns 256 bits of randomness encoded as base64url.
func newStateValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("ostate: generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
