package publish

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Seann-Moser/socialcast/oauth/oclient"
	"github.com/Seann-Moser/socialcast/oauth/platform"
)

// Content is what gets posted.
type Content struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// Result describes a published post.
type Result struct {
	Success  bool              `json:"success"`
	PostID   string            `json:"post_id"`
	Platform platform.Platform `json:"platform"`
	URL      string            `json:"url"`
}

// Publisher posts content on behalf of a user.
type Publisher interface {
	Platform() platform.Platform
	Publish(ctx context.Context, userID string, c Content) (*Result, error)
}

// TokenSource hands out valid tokens. *oclient.Manager implements it.
type TokenSource interface {
	Lease(ctx context.Context, userID string, p platform.Platform) (*oclient.Lease, error)
}

var (
	// ErrInvalidContent is matched by every ValidationError.
	ErrInvalidContent = errors.New("invalid content")
	// ErrUnsupported is returned when no publisher is registered for a platform.
	ErrUnsupported = errors.New("publishing is not supported for this platform")
)

// PublishError is a provider rejection of a post.
type PublishError struct {
	Platform   platform.Platform
	StatusCode int
	Body       string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s publish failed (%d): %s", e.Platform, e.StatusCode, e.Body)
}

// ValidationError explains why content cannot be posted to a platform.
type ValidationError struct {
	Platform platform.Platform
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Platform, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidContent }

// Limits holds the maximum text length per platform in characters.
var Limits = map[platform.Platform]int{
	platform.Twitter:   280,
	platform.LinkedIn:  3000,
	platform.Facebook:  63206,
	platform.Instagram: 2200,
}

// Validate checks c against the rules of p.
func Validate(p platform.Platform, c Content) error {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		return &ValidationError{Platform: p, Reason: "text is empty"}
	}
	if limit, ok := Limits[p]; ok {
		if n := utf8.RuneCountInString(text); n > limit {
			return &ValidationError{Platform: p, Reason: fmt.Sprintf("text is %d characters, limit is %d", n, limit)}
		}
	}
	if c.ImageURL != "" && !ValidImageURL(c.ImageURL) {
		return &ValidationError{Platform: p, Reason: "image url must be an absolute http(s) url"}
	}
	if p == platform.Instagram && c.ImageURL == "" {
		return &ValidationError{Platform: p, Reason: "instagram requires an image"}
	}
	return nil
}

// ValidImageURL reports whether raw is an absolute http(s) url.
func ValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Service routes publish requests to the publisher of each platform.
type Service struct {
	publishers map[platform.Platform]Publisher
}

func NewService(publishers ...Publisher) *Service {
	s := &Service{publishers: make(map[platform.Platform]Publisher, len(publishers))}
	for _, p := range publishers {
		s.publishers[p.Platform()] = p
	}
	return s
}

// Publish validates c and posts it to p.
func (s *Service) Publish(ctx context.Context, userID string, p platform.Platform, c Content) (*Result, error) {
	pub, ok := s.publishers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, p)
	}
	if err := Validate(p, c); err != nil {
		return nil, err
	}
	return pub.Publish(ctx, userID, c)
}

// asPublishError converts a non-retryable API response into a PublishError. Other errors
// pass through unchanged.
func asPublishError(err error) error {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		return &PublishError{Platform: apiErr.Platform, StatusCode: apiErr.StatusCode, Body: apiErr.Body}
	}
	return err
}

// single disables retries: posting is not idempotent.
func single(opts []platform.Option) []platform.Option {
	return append(append([]platform.Option{}, opts...), platform.WithMaxTries(1))
}
