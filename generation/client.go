// Package generation calls the external content generation workflow (n8n webhooks).
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

// DefaultTimeout bounds every workflow call.
const DefaultTimeout = 60 * time.Second

// ErrEmptyResult means the workflow answered 200 without the expected content.
var ErrEmptyResult = errors.New("generation returned no content")

// Error is a non-200 answer or transport failure from the workflow engine.
type Error struct {
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s generation failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s generation failed (%d): %s", e.Operation, e.StatusCode, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// Author describes the user content is written for.
type Author struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"user_name"`
	Preferences []string `json:"user_preferences"`
}

// Config locates the workflow webhooks.
type Config struct {
	BaseURL     string
	SummaryPath string
	PostsPath   string
	Timeout     time.Duration
}

// Client talks to the workflow engine.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type summaryRequest struct {
	Author
	Topic string `json:"topic"`
}

// Summary asks the workflow for a summary of topic.
func (c *Client) Summary(ctx context.Context, a Author, topic string) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := c.post(ctx, "summary", c.cfg.SummaryPath, summaryRequest{Author: a, Topic: topic}, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return "", ErrEmptyResult
	}
	return resp.Summary, nil
}

// PostsRequest asks for per-platform posts derived from an approved summary.
type PostsRequest struct {
	Author
	SummaryID   string              `json:"summary_id"`
	Topic       string              `json:"topic"`
	SummaryText string              `json:"summary_text"`
	Platforms   []platform.Platform `json:"platforms"`
}

// GeneratedPost is the text written for one platform.
type GeneratedPost struct {
	Platform platform.Platform
	Text     string
}

// Posts is the workflow answer to PostsRequest. ImageURL is shared by every post.
type Posts struct {
	Items    []GeneratedPost
	ImageURL string
}

// contentKeys are the response fields the workflow writes each platform's text to.
var contentKeys = map[platform.Platform]string{
	platform.Twitter:   "X Post",
	platform.LinkedIn:  "LinkedIn Post",
	platform.Facebook:  "facebook Caption",
	platform.Instagram: "Instagram Caption",
}

// Posts generates platform posts. Platforms named by the workflow that this service does
// not support are skipped.
func (c *Client) Posts(ctx context.Context, req PostsRequest) (*Posts, error) {
	var raw map[string]json.RawMessage
	if err := c.post(ctx, "posts", c.cfg.PostsPath, req, &raw); err != nil {
		return nil, err
	}
	var names []string
	if v, ok := raw["Platforms"]; ok {
		if err := json.Unmarshal(v, &names); err != nil {
			return nil, &Error{Operation: "posts", StatusCode: http.StatusOK, Err: fmt.Errorf("decode Platforms: %w", err)}
		}
	}
	if len(names) == 0 {
		for _, p := range req.Platforms {
			names = append(names, string(p))
		}
	}
	out := &Posts{ImageURL: stringField(raw, "image url")}
	seen := make(map[platform.Platform]bool, len(names))
	for _, name := range names {
		p, err := platform.Parse(name)
		if err != nil {
			c.logger.Warn("generation returned unsupported platform", "platform", name)
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out.Items = append(out.Items, GeneratedPost{Platform: p, Text: stringField(raw, contentKeys[p])})
	}
	if len(out.Items) == 0 {
		return nil, ErrEmptyResult
	}
	return out, nil
}

// RegenerateRequest asks for a rewrite of existing text following the user's suggestions.
type RegenerateRequest struct {
	Author
	SummaryID       string            `json:"summary_id"`
	PlatformPostID  string            `json:"platform_id,omitempty"`
	ContentType     string            `json:"content_type"`
	ExistingContent string            `json:"existing_content"`
	Suggestions     string            `json:"user_suggestions"`
	Context         string            `json:"context"`
	Platform        platform.Platform `json:"platform_name,omitempty"`
}

// Regenerate rewrites a summary (ContentType "summary") or a platform post ("post").
func (c *Client) Regenerate(ctx context.Context, req RegenerateRequest) (string, error) {
	path, field := c.cfg.SummaryPath, "summary"
	if req.ContentType == "post" {
		path, field = c.cfg.PostsPath, "regenerated_content"
	}
	var raw map[string]json.RawMessage
	if err := c.post(ctx, "regenerate", path, req, &raw); err != nil {
		return "", err
	}
	text := stringField(raw, field)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyResult
	}
	return text, nil
}

// ImageRequest asks for a new image for a summary and the posts derived from it.
type ImageRequest struct {
	Author
	SummaryID        string   `json:"summary_id"`
	Topic            string   `json:"topic"`
	SummaryContent   string   `json:"summary_content"`
	AllContent       string   `json:"all_content"`
	PlatformContents []string `json:"platform_contents"`
	Suggestions      string   `json:"user_suggestions"`
}

type imagePayload struct {
	ImageRequest
	RegenerateType string `json:"regenerate_type"`
}

// RegenerateImage asks the posts workflow for a new image and returns its url.
func (c *Client) RegenerateImage(ctx context.Context, req ImageRequest) (string, error) {
	if req.PlatformContents == nil {
		req.PlatformContents = []string{}
	}
	var raw map[string]json.RawMessage
	if err := c.post(ctx, "image", c.cfg.PostsPath, imagePayload{ImageRequest: req, RegenerateType: "image"}, &raw); err != nil {
		return "", err
	}
	imageURL := strings.TrimSpace(stringField(raw, "regenerated_image_url"))
	if imageURL == "" {
		return "", ErrEmptyResult
	}
	return imageURL, nil
}

func (c *Client) post(ctx context.Context, op, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("generation request failed", "operation", op, "error", err)
		return &Error{Operation: op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return &Error{Operation: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Debug("generation response", "operation", op, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	if resp.StatusCode != http.StatusOK {
		return &Error{Operation: op, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Operation: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func stringField(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
