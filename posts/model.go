package posts

import (
	"time"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

// Summary is the AI written summary of a topic that platform posts are derived from.
type Summary struct {
	ID        string    `bson:"_id" json:"id"`
	UserID    string    `bson:"user_id" json:"user_id"`
	Topic     string    `bson:"topic" json:"topic"`
	Text      string    `bson:"summary_text" json:"summary_text"`
	Approved  bool      `bson:"summary_approved" json:"summary_approved"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// PlatformPost is the text generated for one platform from a summary, plus its
// publishing outcome.
type PlatformPost struct {
	ID              string            `bson:"_id" json:"id"`
	SummaryID       string            `bson:"summary_id" json:"summary_id"`
	UserID          string            `bson:"user_id" json:"user_id"`
	Platform        platform.Platform `bson:"platform_name" json:"platform_name"`
	Text            string            `bson:"post_text" json:"post_text"`
	ImageURL        string            `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Approved        bool              `bson:"approved" json:"approved"`
	Published       bool              `bson:"published" json:"published"`
	PublishedAt     *time.Time        `bson:"published_at,omitempty" json:"published_at,omitempty"`
	ErrorMessage    string            `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ExternalPostID  string            `bson:"external_post_id,omitempty" json:"external_post_id,omitempty"`
	ExternalPostURL string            `bson:"external_post_url,omitempty" json:"external_post_url,omitempty"`
	CreatedAt       time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `bson:"updated_at" json:"updated_at"`
}

// Thread is a summary with every platform post generated from it.
type Thread struct {
	Summary   Summary        `json:"summary"`
	Platforms []PlatformPost `json:"platforms"`
}

const (
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Outcome is the per-post result of a publish request.
type Outcome struct {
	PlatformPostID string            `json:"platform_id"`
	Platform       platform.Platform `json:"platform_name,omitempty"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	PostID         string            `json:"post_id,omitempty"`
	URL            string            `json:"url,omitempty"`
}
