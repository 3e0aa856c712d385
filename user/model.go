package user

import (
	"time"
)

// User is a login account. Name and Preferences are passed to the content generation
// workflow as the author profile.
type User struct {
	ID           string    `bson:"_id" json:"id"`
	Username     string    `bson:"username" json:"username"`
	Name         string    `bson:"name,omitempty" json:"name,omitempty"`
	Preferences  []string  `bson:"preferences,omitempty" json:"preferences,omitempty"`
	PasswordHash []byte    `bson:"password_hash,omitempty" json:"-"`
	Roles        []string  `bson:"roles" json:"roles"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Username    string   `json:"username"`
	Password    string   `json:"password"`
	Name        string   `json:"name"`
	Preferences []string `json:"preferences"`
}

// LoginRequest represents the request body for password login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileUpdateRequest changes the caller's own profile. Nil fields are left alone.
type ProfileUpdateRequest struct {
	Name        *string   `json:"name,omitempty"`
	Preferences *[]string `json:"preferences,omitempty"`
	NewPassword *string   `json:"new_password,omitempty"`
}
