package oclient

import (
	"time"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

// Credential is the stored grant for one user on one platform. Token fields hold
// ciphertext produced by tokencrypt.
type Credential struct {
	UserID       string            `bson:"user_id"`
	Platform     platform.Platform `bson:"platform"`
	AccessToken  string            `bson:"access_token"`
	RefreshToken string            `bson:"refresh_token,omitempty"`
	// ExpiresAt is nil for tokens that never expire (Facebook page tokens).
	ExpiresAt *time.Time `bson:"expires_at,omitempty"`
	MemberID  string     `bson:"member_id,omitempty"`
	// ClientID and ClientSecret override the process wide app credentials for this
	// user. ClientSecret is ciphertext.
	ClientID     string    `bson:"client_id,omitempty"`
	ClientSecret string    `bson:"client_secret,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// Lease is a usable plaintext access token plus the provider account it acts as.
type Lease struct {
	AccessToken string
	MemberID    string
	ExpiresAt   *time.Time
}

// Connection summarizes a linked platform without exposing any token material.
type Connection struct {
	Platform    platform.Platform `json:"platform"`
	DisplayName string            `json:"display_name"`
	MemberID    string            `json:"member_id,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	ConnectedAt time.Time         `json:"connected_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
