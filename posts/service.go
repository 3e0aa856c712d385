// Package posts runs the content workflow: generate a summary, approve it, generate
// platform posts, approve them and publish.
package posts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Seann-Moser/socialcast/generation"
	"github.com/Seann-Moser/socialcast/oauth/oclient"
	"github.com/Seann-Moser/socialcast/oauth/platform"
	"github.com/Seann-Moser/socialcast/publish"
)

// DefaultPublishConcurrency bounds how many platforms a batch publishes to at once.
const DefaultPublishConcurrency = 4

var (
	ErrEmptyTopic         = errors.New("topic is required")
	ErrNoSummaryText      = errors.New("no summary text available")
	ErrSummaryNotApproved = errors.New("summary not approved yet")
	ErrNoPlatforms        = errors.New("platforms list cannot be empty")
	ErrNotApproved        = errors.New("post not approved")
	ErrNoPostText         = errors.New("no post content generated yet")
	ErrInvalidContentType = errors.New("content_type must be either 'summary' or 'post'")
	ErrInvalidImageURL    = errors.New("image_url must be an absolute http(s) url")
	ErrNoPlatformPosts    = fmt.Errorf("no platforms found for this summary: %w", ErrNotFound)
)

// Generator produces text through the external workflow. *generation.Client implements it.
type Generator interface {
	Summary(ctx context.Context, a generation.Author, topic string) (string, error)
	Posts(ctx context.Context, req generation.PostsRequest) (*generation.Posts, error)
	Regenerate(ctx context.Context, req generation.RegenerateRequest) (string, error)
	RegenerateImage(ctx context.Context, req generation.ImageRequest) (string, error)
}

// Publisher posts content. *publish.Service implements it.
type Publisher interface {
	Publish(ctx context.Context, userID string, p platform.Platform, c publish.Content) (*publish.Result, error)
}

// ProfileSource supplies the author details sent to the generation workflow.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (name string, preferences []string, err error)
}

var (
	_ Generator = &generation.Client{}
	_ Publisher = &publish.Service{}
)

// Service implements the post workflow.
type Service struct {
	store       Store
	gen         Generator
	pub         Publisher
	profiles    ProfileSource
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithProfiles sets where author names and preferences come from.
func WithProfiles(p ProfileSource) Option {
	return func(s *Service) { s.profiles = p }
}

// WithPublishConcurrency bounds parallel publishing in PublishMultiple.
func WithPublishConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(store Store, gen Generator, pub Publisher, opts ...Option) *Service {
	s := &Service{
		store:       store,
		gen:         gen,
		pub:         pub,
		concurrency: DefaultPublishConcurrency,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) author(ctx context.Context, userID string) generation.Author {
	a := generation.Author{UserID: userID, Preferences: []string{}}
	if s.profiles == nil {
		return a
	}
	name, prefs, err := s.profiles.Profile(ctx, userID)
	if err != nil {
		s.logger.Warn("load author profile failed", "user_id", userID, "error", err)
		return a
	}
	a.Name = name
	if prefs != nil {
		a.Preferences = prefs
	}
	return a
}

// GenerateSummary asks the workflow for a summary of topic and stores it unapproved.
func (s *Service) GenerateSummary(ctx context.Context, userID, topic string) (*Summary, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	text, err := s.gen.Summary(ctx, s.author(ctx, userID), topic)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sum := &Summary{
		ID:        uuid.NewString(),
		UserID:    userID,
		Topic:     topic,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSummary(ctx, sum); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	return sum, nil
}

// ApproveSummary marks a summary approved, optionally replacing its text with an edited
// version first.
func (s *Service) ApproveSummary(ctx context.Context, userID, summaryID string, editedText *string) (*Summary, error) {
	sum, err := s.store.GetSummary(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	if editedText != nil {
		sum.Text = *editedText
	}
	if strings.TrimSpace(sum.Text) == "" {
		return nil, ErrNoSummaryText
	}
	sum.Approved = true
	sum.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateSummary(ctx, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

// GenerateContent creates one platform post per requested platform from an approved
// summary.
func (s *Service) GenerateContent(ctx context.Context, userID, summaryID string, platformNames []string) ([]PlatformPost, error) {
	if len(platformNames) == 0 {
		return nil, ErrNoPlatforms
	}
	targets := make([]platform.Platform, 0, len(platformNames))
	for _, name := range platformNames {
		p, err := platform.Parse(name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, p)
	}
	sum, err := s.store.GetSummary(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	if !sum.Approved {
		return nil, ErrSummaryNotApproved
	}
	if strings.TrimSpace(sum.Text) == "" {
		return nil, ErrNoSummaryText
	}

	generated, err := s.gen.Posts(ctx, generation.PostsRequest{
		Author:      s.author(ctx, userID),
		SummaryID:   sum.ID,
		Topic:       sum.Topic,
		SummaryText: sum.Text,
		Platforms:   targets,
	})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := make([]PlatformPost, 0, len(generated.Items))
	for _, item := range generated.Items {
		out = append(out, PlatformPost{
			ID:        uuid.NewString(),
			SummaryID: sum.ID,
			UserID:    userID,
			Platform:  item.Platform,
			Text:      item.Text,
			ImageURL:  generated.ImageURL,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := s.store.CreatePlatformPosts(ctx, out); err != nil {
		return nil, fmt.Errorf("save platform posts: %w", err)
	}
	return out, nil
}

// Edit carries optional replacements for a platform post.
type Edit struct {
	Text     *string
	ImageURL *string
}

func (e Edit) apply(p *PlatformPost) {
	if e.Text != nil {
		p.Text = *e.Text
	}
	if e.ImageURL != nil {
		p.ImageURL = *e.ImageURL
	}
}

// ApproveContent applies edit, checks the result against the platform's rules and marks
// the post approved.
func (s *Service) ApproveContent(ctx context.Context, userID, postID string, edit Edit) (*PlatformPost, error) {
	p, err := s.store.GetPlatformPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	edit.apply(p)
	if err := publish.Validate(p.Platform, publish.Content{Text: p.Text, ImageURL: p.ImageURL}); err != nil {
		return nil, err
	}
	p.Approved = true
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePlatformPost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateContent edits a post. Changing an approved post withdraws its approval.
func (s *Service) UpdateContent(ctx context.Context, userID, postID string, edit Edit) (*PlatformPost, error) {
	p, err := s.store.GetPlatformPost(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	before := *p
	edit.apply(p)
	if p.Text != before.Text || p.ImageURL != before.ImageURL {
		p.Approved = false
	}
	p.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePlatformPost(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RegenerateInput describes a rewrite request.
type RegenerateInput struct {
	SummaryID      string
	PlatformPostID string
	ContentType    string
	Suggestions    string
}

// Regenerate asks the workflow to rewrite a summary or a platform post. The stored text
// is left unchanged; the caller approves or updates with the returned text.
func (s *Service) Regenerate(ctx context.Context, userID string, in RegenerateInput) (string, error) {
	sum, err := s.store.GetSummary(ctx, userID, in.SummaryID)
	if err != nil {
		return "", err
	}
	req := generation.RegenerateRequest{
		Author:      s.author(ctx, userID),
		SummaryID:   sum.ID,
		ContentType: in.ContentType,
		Suggestions: in.Suggestions,
	}
	switch in.ContentType {
	case "summary":
		if strings.TrimSpace(sum.Text) == "" {
			return "", ErrNoSummaryText
		}
		req.ExistingContent = sum.Text
		req.Context = fmt.Sprintf("Topic: %s\nCurrent summary: %s", sum.Topic, sum.Text)
	case "post":
		p, err := s.store.GetPlatformPost(ctx, userID, in.PlatformPostID)
		if err != nil {
			return "", err
		}
		if p.SummaryID != sum.ID {
			return "", ErrNotFound
		}
		if strings.TrimSpace(p.Text) == "" {
			return "", ErrNoPostText
		}
		req.PlatformPostID = p.ID
		req.Platform = p.Platform
		req.ExistingContent = p.Text
		req.Context = fmt.Sprintf("Platform: %s\nSummary: %s\nCurrent post: %s", p.Platform, sum.Text, p.Text)
	default:
		return "", ErrInvalidContentType
	}
	return s.gen.Regenerate(ctx, req)
}

// ImageUpdate is the image now shared by the posts of a summary.
type ImageUpdate struct {
	SummaryID string         `json:"summary_id"`
	ImageURL  string         `json:"image_url"`
	Platforms []PlatformPost `json:"updated_platforms"`
}

// RegenerateImage asks the workflow for a new image using the summary and every post
// written from it, then applies the image to those posts.
func (s *Service) RegenerateImage(ctx context.Context, userID, summaryID, suggestions string) (*ImageUpdate, error) {
	sum, err := s.store.GetSummary(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(sum.Text) == "" {
		return nil, ErrNoSummaryText
	}
	plats, err := s.store.ListPlatformPosts(ctx, userID, sum.ID)
	if err != nil {
		return nil, err
	}
	contents := []string{}
	for _, p := range plats {
		if p.Text != "" {
			contents = append(contents, fmt.Sprintf("%s: %s", p.Platform, p.Text))
		}
	}
	all := fmt.Sprintf("Topic: %s\nSummary: %s", sum.Topic, sum.Text)
	if len(contents) > 0 {
		all += "\n\nPlatform Content:\n" + strings.Join(contents, "\n")
	}
	imageURL, err := s.gen.RegenerateImage(ctx, generation.ImageRequest{
		Author:           s.author(ctx, userID),
		SummaryID:        sum.ID,
		Topic:            sum.Topic,
		SummaryContent:   sum.Text,
		AllContent:       all,
		PlatformContents: contents,
		Suggestions:      suggestions,
	})
	if err != nil {
		return nil, err
	}
	if !publish.ValidImageURL(imageURL) {
		return nil, &generation.Error{Operation: "image", StatusCode: http.StatusOK, Body: "invalid image url " + imageURL}
	}
	updated, err := s.setImage(ctx, plats, imageURL)
	if err != nil {
		return nil, err
	}
	return &ImageUpdate{SummaryID: sum.ID, ImageURL: imageURL, Platforms: updated}, nil
}

// UpdateImage replaces the image of every unpublished post of a summary.
func (s *Service) UpdateImage(ctx context.Context, userID, summaryID, imageURL string) (*ImageUpdate, error) {
	if !publish.ValidImageURL(imageURL) {
		return nil, ErrInvalidImageURL
	}
	sum, err := s.store.GetSummary(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	plats, err := s.store.ListPlatformPosts(ctx, userID, sum.ID)
	if err != nil {
		return nil, err
	}
	if len(plats) == 0 {
		return nil, ErrNoPlatformPosts
	}
	updated, err := s.setImage(ctx, plats, imageURL)
	if err != nil {
		return nil, err
	}
	return &ImageUpdate{SummaryID: sum.ID, ImageURL: imageURL, Platforms: updated}, nil
}

// setImage stores imageURL on each unpublished post. A changed image withdraws approval.
func (s *Service) setImage(ctx context.Context, plats []PlatformPost, imageURL string) ([]PlatformPost, error) {
	now := s.now().UTC()
	updated := make([]PlatformPost, 0, len(plats))
	for i := range plats {
		p := &plats[i]
		if p.Published {
			continue
		}
		if p.ImageURL != imageURL {
			p.ImageURL = imageURL
			p.Approved = false
		}
		p.UpdatedAt = now
		if err := s.store.UpdatePlatformPost(ctx, p); err != nil {
			return nil, err
		}
		updated = append(updated, *p)
	}
	return updated, nil
}

// RecordRequest names a platform to prepare an empty post for.
type RecordRequest struct {
	SummaryID string `json:"summary_id"`
	Platform  string `json:"platform_name"`
}

// CreatePlatformRecords creates empty posts for approved summaries of the user, for
// clients that write post text themselves. Entries naming an unknown summary or platform
// are skipped.
func (s *Service) CreatePlatformRecords(ctx context.Context, userID string, reqs []RecordRequest) ([]PlatformPost, error) {
	if len(reqs) == 0 {
		return nil, ErrNoPlatforms
	}
	now := s.now().UTC()
	out := []PlatformPost{}
	for _, req := range reqs {
		p, err := platform.Parse(req.Platform)
		if err != nil {
			s.logger.Warn("skip platform record", "summary_id", req.SummaryID, "platform", req.Platform, "error", err)
			continue
		}
		sum, err := s.store.GetSummary(ctx, userID, req.SummaryID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !sum.Approved {
			s.logger.Warn("skip platform record for unapproved summary", "summary_id", sum.ID, "platform", p)
			continue
		}
		out = append(out, PlatformPost{
			ID:        uuid.NewString(),
			SummaryID: sum.ID,
			UserID:    userID,
			Platform:  p,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if len(out) == 0 {
		return out, nil
	}
	if err := s.store.CreatePlatformPosts(ctx, out); err != nil {
		return nil, fmt.Errorf("save platform posts: %w", err)
	}
	return out, nil
}

// Publish posts one approved platform post. Provider failures are recorded on the post
// and reported in the outcome; only lookup and precondition failures return an error.
func (s *Service) Publish(ctx context.Context, userID, postID string) (*Outcome, error) {
	p, err := s.publishable(ctx, userID, postID)
	if err != nil {
		return nil, err
	}
	o := s.publish(ctx, userID, p)
	return &o, nil
}

// PublishMultiple publishes every post independently. The outcomes keep the order of ids
// and a failure on one post never stops the others.
func (s *Service) PublishMultiple(ctx context.Context, userID string, ids []string) ([]Outcome, error) {
	if len(ids) == 0 {
		return nil, ErrNoPlatforms
	}
	out := make([]Outcome, len(ids))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			p, err := s.publishable(ctx, userID, id)
			if err != nil {
				out[i] = Outcome{PlatformPostID: id, Status: StatusFailed, Error: err.Error()}
				if p != nil {
					out[i].Platform = p.Platform
				}
				return nil
			}
			out[i] = s.publish(ctx, userID, p)
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// publishable loads a post and checks it may be published. The post is returned along
// with precondition errors so callers can report its platform.
func (s *Service) publishable(ctx context.Context, userID, postID string) (*PlatformPost, error) {
	p, err := s.store.GetPlatformPost(ctx, userID, postID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("platform post %s: %w", postID, ErrNotFound)
		}
		return nil, err
	}
	if !p.Approved {
		return p, fmt.Errorf("%w for %s", ErrNotApproved, p.Platform)
	}
	if strings.TrimSpace(p.Text) == "" {
		return p, ErrNoPostText
	}
	return p, nil
}

func (s *Service) publish(ctx context.Context, userID string, p *PlatformPost) Outcome {
	o := Outcome{PlatformPostID: p.ID, Platform: p.Platform}
	res, err := s.pub.Publish(ctx, userID, p.Platform, publish.Content{Text: p.Text, ImageURL: p.ImageURL})
	now := s.now().UTC()
	if err != nil {
		o.Status = StatusFailed
		o.Error = failureMessage(p.Platform, err)
		s.logger.Warn("publish failed", "user_id", userID, "platform", p.Platform, "platform_post_id", p.ID, "error", err)
		if merr := s.store.MarkFailed(ctx, p.ID, o.Error, now); merr != nil {
			s.logger.Error("record publish failure", "platform_post_id", p.ID, "error", merr)
		}
		return o
	}
	o.Status = StatusPublished
	o.PostID = res.PostID
	o.URL = res.URL
	if merr := s.store.MarkPublished(ctx, p.ID, res.PostID, res.URL, now); merr != nil {
		s.logger.Error("record publish success", "platform_post_id", p.ID, "error", merr)
	}
	s.logger.Info("post published", "user_id", userID, "platform", p.Platform, "post_id", res.PostID)
	return o
}

// failureMessage turns a publishing error into text that is stored on the post and shown
// to the user.
func failureMessage(p platform.Platform, err error) string {
	var (
		pubErr         *publish.PublishError
		unavailableErr *platform.ProviderUnavailableError
	)
	name := p.DisplayName()
	switch {
	case errors.Is(err, oclient.ErrNotLinked):
		return name + " account is not connected; connect it before publishing"
	case errors.Is(err, oclient.ErrReauthRequired):
		return name + " authorization expired; reconnect the account"
	case errors.As(err, &pubErr):
		return fmt.Sprintf("%s rejected the post (%d): %s", name, pubErr.StatusCode, pubErr.Body)
	case errors.As(err, &unavailableErr):
		return name + " is temporarily unavailable; try again later"
	}
	return err.Error()
}

// History returns every summary of the user with its platform posts, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]Thread, error) {
	sums, err := s.store.ListSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(sums) == 0 {
		return []Thread{}, nil
	}
	ids := make([]string, len(sums))
	for i, sum := range sums {
		ids[i] = sum.ID
	}
	plats, err := s.store.ListPlatformPosts(ctx, userID, ids...)
	if err != nil {
		return nil, err
	}
	bySummary := make(map[string][]PlatformPost, len(sums))
	for _, p := range plats {
		bySummary[p.SummaryID] = append(bySummary[p.SummaryID], p)
	}
	out := make([]Thread, len(sums))
	for i, sum := range sums {
		out[i] = Thread{Summary: sum, Platforms: bySummary[sum.ID]}
		if out[i].Platforms == nil {
			out[i].Platforms = []PlatformPost{}
		}
	}
	return out, nil
}

// Thread returns one summary with its platform posts.
func (s *Service) Thread(ctx context.Context, userID, summaryID string) (*Thread, error) {
	sum, err := s.store.GetSummary(ctx, userID, summaryID)
	if err != nil {
		return nil, err
	}
	plats, err := s.store.ListPlatformPosts(ctx, userID, sum.ID)
	if err != nil {
		return nil, err
	}
	if plats == nil {
		plats = []PlatformPost{}
	}
	return &Thread{Summary: *sum, Platforms: plats}, nil
}
