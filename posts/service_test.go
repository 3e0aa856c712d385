package posts

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/socialcast/generation"
	"github.com/Seann-Moser/socialcast/oauth/oclient"
	"github.com/Seann-Moser/socialcast/oauth/platform"
	"github.com/Seann-Moser/socialcast/publish"
)

type memStore struct {
	mu        sync.Mutex
	summaries map[string]Summary
	posts     map[string]PlatformPost
}

func newMemStore() *memStore {
	return &memStore{summaries: map[string]Summary{}, posts: map[string]PlatformPost{}}
}

func (m *memStore) CreateSummary(_ context.Context, s *Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[s.ID] = *s
	return nil
}

func (m *memStore) GetSummary(_ context.Context, userID, id string) (*Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memStore) UpdateSummary(ctx context.Context, s *Summary) error {
	if _, err := m.GetSummary(ctx, s.UserID, s.ID); err != nil {
		return err
	}
	return m.CreateSummary(ctx, s)
}

func (m *memStore) ListSummaries(_ context.Context, userID string) ([]Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Summary
	for _, s := range m.summaries {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) CreatePlatformPosts(_ context.Context, posts []PlatformPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range posts {
		m.posts[p.ID] = p
	}
	return nil
}

func (m *memStore) GetPlatformPost(_ context.Context, userID, id string) (*PlatformPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.UserID != userID {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *memStore) ListPlatformPosts(_ context.Context, userID string, summaryIDs ...string) ([]PlatformPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range summaryIDs {
		want[id] = true
	}
	var out []PlatformPost
	for _, p := range m.posts {
		if p.UserID == userID && (len(want) == 0 || want[p.SummaryID]) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdatePlatformPost(ctx context.Context, p *PlatformPost) error {
	if _, err := m.GetPlatformPost(ctx, p.UserID, p.ID); err != nil {
		return err
	}
	return m.CreatePlatformPosts(ctx, []PlatformPost{*p})
}

func (m *memStore) MarkPublished(_ context.Context, id, externalID, externalURL string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	p.Published, p.PublishedAt = true, &at
	p.ExternalPostID, p.ExternalPostURL, p.ErrorMessage = externalID, externalURL, ""
	m.posts[id] = p
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id, message string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	p.ErrorMessage, p.UpdatedAt = message, at
	m.posts[id] = p
	return nil
}

type fakeGenerator struct {
	summary     string
	posts       *generation.Posts
	err         error
	lastAuthor  generation.Author
	lastRegen   generation.RegenerateRequest
	regenerated string
	imageURL    string
	lastImage   generation.ImageRequest
}

func (f *fakeGenerator) Summary(_ context.Context, a generation.Author, topic string) (string, error) {
	f.lastAuthor = a
	return f.summary, f.err
}

func (f *fakeGenerator) Posts(_ context.Context, req generation.PostsRequest) (*generation.Posts, error) {
	f.lastAuthor = req.Author
	return f.posts, f.err
}

func (f *fakeGenerator) Regenerate(_ context.Context, req generation.RegenerateRequest) (string, error) {
	f.lastRegen = req
	return f.regenerated, f.err
}

func (f *fakeGenerator) RegenerateImage(_ context.Context, req generation.ImageRequest) (string, error) {
	f.lastImage = req
	return f.imageURL, f.err
}

type fakePublisher struct {
	mu    sync.Mutex
	errs  map[platform.Platform]error
	calls []platform.Platform
}

func (f *fakePublisher) Publish(_ context.Context, _ string, p platform.Platform, c publish.Content) (*publish.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, p)
	f.mu.Unlock()
	if err := f.errs[p]; err != nil {
		return nil, err
	}
	return &publish.Result{Success: true, PostID: string(p) + "-1", Platform: p, URL: "https://social.example/" + string(p)}, nil
}

type staticProfiles struct{}

func (staticProfiles) Profile(context.Context, string) (string, []string, error) {
	return "Ada", []string{"technology"}, nil
}

func newTestService(store Store, gen Generator, pub Publisher) *Service {
	s := NewService(store, gen, pub, WithProfiles(staticProfiles{}))
	s.now = func() time.Time { return time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC) }
	return s
}

func strPtr(s string) *string { return &s }

func TestService_SummaryFlow(t *testing.T) {
	store := newMemStore()
	gen := &fakeGenerator{summary: "A short summary."}
	svc := newTestService(store, gen, &fakePublisher{})
	ctx := context.Background()

	_, err := svc.GenerateSummary(ctx, "u1", "  ")
	assert.ErrorIs(t, err, ErrEmptyTopic)

	sum, err := svc.GenerateSummary(ctx, "u1", "go generics")
	require.NoError(t, err)
	assert.False(t, sum.Approved)
	assert.Equal(t, "Ada", gen.lastAuthor.Name)

	_, err = svc.GenerateContent(ctx, "u1", sum.ID, []string{"twitter"})
	assert.ErrorIs(t, err, ErrSummaryNotApproved)

	_, err = svc.ApproveSummary(ctx, "u2", sum.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ApproveSummary(ctx, "u1", sum.ID, strPtr(" "))
	assert.ErrorIs(t, err, ErrNoSummaryText)

	approved, err := svc.ApproveSummary(ctx, "u1", sum.ID, strPtr("Edited summary."))
	require.NoError(t, err)
	assert.True(t, approved.Approved)
	assert.Equal(t, "Edited summary.", approved.Text)
}

func TestService_GenerateContent(t *testing.T) {
	store := newMemStore()
	gen := &fakeGenerator{posts: &generation.Posts{
		ImageURL: "https://cdn.example/a.png",
		Items: []generation.GeneratedPost{
			{Platform: platform.Twitter, Text: "tweet"},
			{Platform: platform.LinkedIn, Text: "post"},
		},
	}}
	svc := newTestService(store, gen, &fakePublisher{})
	ctx := context.Background()
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "s1", UserID: "u1", Text: "summary", Approved: true}))

	_, err := svc.GenerateContent(ctx, "u1", "s1", nil)
	assert.ErrorIs(t, err, ErrNoPlatforms)
	_, err = svc.GenerateContent(ctx, "u1", "s1", []string{"myspace"})
	assert.ErrorIs(t, err, platform.ErrUnknownPlatform)

	created, err := svc.GenerateContent(ctx, "u1", "s1", []string{"x", "linkedin"})
	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, p := range created {
		assert.Equal(t, "s1", p.SummaryID)
		assert.Equal(t, "https://cdn.example/a.png", p.ImageURL)
		assert.False(t, p.Approved)
	}

	thread, err := svc.Thread(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Len(t, thread.Platforms, 2)
}

func TestService_ApproveAndUpdateContent(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeGenerator{}, &fakePublisher{})
	ctx := context.Background()
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{
		{ID: "tw", UserID: "u1", Platform: platform.Twitter, Text: "hello"},
		{ID: "ig", UserID: "u1", Platform: platform.Instagram, Text: "caption"},
	}))

	_, err := svc.ApproveContent(ctx, "u1", "tw", Edit{Text: strPtr(strings.Repeat("a", 281))})
	assert.ErrorIs(t, err, publish.ErrInvalidContent)

	_, err = svc.ApproveContent(ctx, "u1", "ig", Edit{})
	assert.ErrorIs(t, err, publish.ErrInvalidContent)

	p, err := svc.ApproveContent(ctx, "u1", "tw", Edit{Text: strPtr("hello world")})
	require.NoError(t, err)
	assert.True(t, p.Approved)

	p, err = svc.UpdateContent(ctx, "u1", "tw", Edit{Text: strPtr("hello world")})
	require.NoError(t, err)
	assert.True(t, p.Approved, "unchanged text keeps approval")

	p, err = svc.UpdateContent(ctx, "u1", "tw", Edit{Text: strPtr("changed")})
	require.NoError(t, err)
	assert.False(t, p.Approved)
}

func TestService_PublishMultiplePartialBatch(t *testing.T) {
	store := newMemStore()
	pub := &fakePublisher{errs: map[platform.Platform]error{
		platform.LinkedIn: oclient.ErrNotLinked,
	}}
	svc := newTestService(store, &fakeGenerator{}, pub)
	ctx := context.Background()
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{
		{ID: "fb", UserID: "u1", Platform: platform.Facebook, Text: "not approved"},
		{ID: "li", UserID: "u1", Platform: platform.LinkedIn, Text: "no account", Approved: true},
		{ID: "tw", UserID: "u1", Platform: platform.Twitter, Text: "ready", Approved: true},
	}))

	results, err := svc.PublishMultiple(ctx, "u1", []string{"fb", "li", "tw"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	published := 0
	for _, r := range results {
		if r.Status == StatusPublished {
			published++
		}
	}
	assert.Equal(t, 1, published)

	assert.Equal(t, "fb", results[0].PlatformPostID)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Error, "not approved")

	assert.Equal(t, StatusFailed, results[1].Status)
	assert.Contains(t, results[1].Error, "not connected")

	assert.Equal(t, StatusPublished, results[2].Status)
	assert.Equal(t, "twitter-1", results[2].PostID)

	li, _ := store.GetPlatformPost(ctx, "u1", "li")
	assert.False(t, li.Published)
	assert.Contains(t, li.ErrorMessage, "not connected")

	tw, _ := store.GetPlatformPost(ctx, "u1", "tw")
	assert.True(t, tw.Published)
	assert.NotNil(t, tw.PublishedAt)
	assert.Equal(t, "https://social.example/twitter", tw.ExternalPostURL)

	assert.ElementsMatch(t, []platform.Platform{platform.LinkedIn, platform.Twitter}, pub.calls)
}

func TestService_PublishMultipleUnknownID(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeGenerator{}, &fakePublisher{})
	results, err := svc.PublishMultiple(context.Background(), "u1", []string{"missing"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)

	_, err = svc.PublishMultiple(context.Background(), "u1", nil)
	assert.ErrorIs(t, err, ErrNoPlatforms)
}

func TestService_PublishRecordsFailure(t *testing.T) {
	store := newMemStore()
	pub := &fakePublisher{errs: map[platform.Platform]error{
		platform.Facebook: &publish.PublishError{Platform: platform.Facebook, StatusCode: 400, Body: "(#200) permissions error"},
	}}
	svc := newTestService(store, &fakeGenerator{}, pub)
	ctx := context.Background()
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{
		{ID: "fb", UserID: "u1", Platform: platform.Facebook, Text: "hi", Approved: true},
	}))

	o, err := svc.Publish(ctx, "u1", "fb")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, o.Status)
	assert.Contains(t, o.Error, "permissions error")

	p, _ := store.GetPlatformPost(ctx, "u1", "fb")
	assert.Equal(t, o.Error, p.ErrorMessage)

	_, err = svc.Publish(ctx, "u2", "fb")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"reauth", &oclient.ReauthError{Platform: platform.Twitter, Cause: &platform.RefreshError{Platform: platform.Twitter, StatusCode: 400, Body: "invalid_grant"}}, "reconnect"},
		{"unavailable", &platform.ProviderUnavailableError{Platform: platform.Twitter, Err: context.DeadlineExceeded}, "temporarily unavailable"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, failureMessage(platform.Twitter, tt.err), tt.want)
		})
	}
}

func TestService_Regenerate(t *testing.T) {
	store := newMemStore()
	gen := &fakeGenerator{regenerated: "rewritten"}
	svc := newTestService(store, gen, &fakePublisher{})
	ctx := context.Background()
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "s1", UserID: "u1", Topic: "go", Text: "summary"}))
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{
		{ID: "li", SummaryID: "s1", UserID: "u1", Platform: platform.LinkedIn, Text: "post"},
		{ID: "other", SummaryID: "s2", UserID: "u1", Platform: platform.LinkedIn, Text: "post"},
	}))

	text, err := svc.Regenerate(ctx, "u1", RegenerateInput{SummaryID: "s1", ContentType: "summary", Suggestions: "shorter"})
	require.NoError(t, err)
	assert.Equal(t, "rewritten", text)
	assert.Equal(t, "summary", gen.lastRegen.ExistingContent)

	_, err = svc.Regenerate(ctx, "u1", RegenerateInput{SummaryID: "s1", ContentType: "post", PlatformPostID: "li"})
	require.NoError(t, err)
	assert.Equal(t, platform.LinkedIn, gen.lastRegen.Platform)

	_, err = svc.Regenerate(ctx, "u1", RegenerateInput{SummaryID: "s1", ContentType: "post", PlatformPostID: "other"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Regenerate(ctx, "u1", RegenerateInput{SummaryID: "s1", ContentType: "image"})
	assert.ErrorIs(t, err, ErrInvalidContentType)
}

func TestService_History(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeGenerator{}, &fakePublisher{})
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "old", UserID: "u1", CreatedAt: base}))
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "new", UserID: "u1", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "theirs", UserID: "u2", CreatedAt: base}))
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{{ID: "p1", SummaryID: "old", UserID: "u1"}}))

	threads, err := svc.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "new", threads[0].Summary.ID)
	assert.Empty(t, threads[0].Platforms)
	assert.Len(t, threads[1].Platforms, 1)

	threads, err = svc.History(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, threads)
	assert.Empty(t, threads)
}

func TestService_RegenerateImage(t *testing.T) {
	store := newMemStore()
	gen := &fakeGenerator{imageURL: "https://cdn.example/new.png"}
	svc := newTestService(store, gen, &fakePublisher{})
	ctx := context.Background()
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "s1", UserID: "u1", Topic: "go", Text: "summary", Approved: true}))
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "empty", UserID: "u1", Topic: "go"}))
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{
		{ID: "li", SummaryID: "s1", UserID: "u1", Platform: platform.LinkedIn, Text: "long", ImageURL: "https://cdn.example/old.png", Approved: true},
		{ID: "tw", SummaryID: "s1", UserID: "u1", Platform: platform.Twitter, Text: "short", Published: true},
	}))

	_, err := svc.RegenerateImage(ctx, "u1", "empty", "")
	assert.ErrorIs(t, err, ErrNoSummaryText)
	_, err = svc.RegenerateImage(ctx, "u2", "s1", "")
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := svc.RegenerateImage(ctx, "u1", "s1", "brighter")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/new.png", u.ImageURL)
	require.Len(t, u.Platforms, 1, "published posts keep their image")
	assert.Equal(t, "li", u.Platforms[0].ID)
	assert.Equal(t, "brighter", gen.lastImage.Suggestions)
	assert.Equal(t, []string{"linkedin: long", "twitter: short"}, gen.lastImage.PlatformContents)
	assert.Contains(t, gen.lastImage.AllContent, "Platform Content:")
	assert.Equal(t, "Ada", gen.lastImage.Name)

	li, err := store.GetPlatformPost(ctx, "u1", "li")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/new.png", li.ImageURL)
	assert.False(t, li.Approved)
	tw, err := store.GetPlatformPost(ctx, "u1", "tw")
	require.NoError(t, err)
	assert.Empty(t, tw.ImageURL)

	gen.imageURL = "not a url"
	_, err = svc.RegenerateImage(ctx, "u1", "s1", "")
	var genErr *generation.Error
	assert.ErrorAs(t, err, &genErr)
}

func TestService_UpdateImage(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeGenerator{}, &fakePublisher{})
	ctx := context.Background()
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "s1", UserID: "u1", Text: "summary", Approved: true}))
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "bare", UserID: "u1", Text: "summary"}))
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{
		{ID: "fb", SummaryID: "s1", UserID: "u1", Platform: platform.Facebook, Text: "hi", ImageURL: "https://cdn.example/a.png", Approved: true},
		{ID: "ig", SummaryID: "s1", UserID: "u1", Platform: platform.Instagram, Text: "hi", ImageURL: "https://cdn.example/b.png", Approved: true},
	}))

	_, err := svc.UpdateImage(ctx, "u1", "s1", "/relative.png")
	assert.ErrorIs(t, err, ErrInvalidImageURL)
	_, err = svc.UpdateImage(ctx, "u1", "bare", "https://cdn.example/b.png")
	assert.ErrorIs(t, err, ErrNoPlatformPosts)
	assert.ErrorIs(t, err, ErrNotFound)

	u, err := svc.UpdateImage(ctx, "u1", "s1", "https://cdn.example/b.png")
	require.NoError(t, err)
	require.Len(t, u.Platforms, 2)
	for _, p := range u.Platforms {
		assert.Equal(t, "https://cdn.example/b.png", p.ImageURL)
	}
	assert.False(t, u.Platforms[0].Approved, "changed image withdraws approval")
	assert.True(t, u.Platforms[1].Approved, "same image keeps approval")
}

func TestService_CreatePlatformRecords(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeGenerator{}, &fakePublisher{})
	ctx := context.Background()
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "s1", UserID: "u1", Text: "summary", Approved: true}))
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "draft", UserID: "u1", Text: "summary"}))
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "theirs", UserID: "u2", Text: "summary", Approved: true}))

	_, err := svc.CreatePlatformRecords(ctx, "u1", nil)
	assert.ErrorIs(t, err, ErrNoPlatforms)

	created, err := svc.CreatePlatformRecords(ctx, "u1", []RecordRequest{
		{SummaryID: "s1", Platform: "X"},
		{SummaryID: "s1", Platform: "myspace"},
		{SummaryID: "draft", Platform: "linkedin"},
		{SummaryID: "theirs", Platform: "linkedin"},
		{SummaryID: "missing", Platform: "linkedin"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, platform.Twitter, created[0].Platform)
	assert.Empty(t, created[0].Text)
	assert.False(t, created[0].Approved)

	thread, err := svc.Thread(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Len(t, thread.Platforms, 1)
}
