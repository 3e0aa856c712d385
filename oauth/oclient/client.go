package oclient

import (
	"context"
	"errors"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

// ErrNotFound is returned by a Store when no credential exists for the key.
var ErrNotFound = errors.New("credential not found")

// Store persists credentials keyed by (user id, platform).
type Store interface {
	// Get returns the credential, or ErrNotFound.
	Get(ctx context.Context, userID string, p platform.Platform) (*Credential, error)

	// Upsert creates or overwrites the credential for its key.
	Upsert(ctx context.Context, c *Credential) error

	// Delete removes the credential, or returns ErrNotFound.
	Delete(ctx context.Context, userID string, p platform.Platform) error

	// List returns every credential of a user.
	List(ctx context.Context, userID string) ([]Credential, error)
}
