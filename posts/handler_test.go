package posts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/socialcast/generation"
	"github.com/Seann-Moser/socialcast/oauth/platform"
	"github.com/Seann-Moser/socialcast/session"
)

func serve(t *testing.T, h http.Handler, method, target, body string, signedIn bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if signedIn {
		s := &session.UserSessionData{UserID: "u1", SignedIn: true}
		req = req.WithContext(s.WithContext(req.Context()))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func newTestRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/posts", NewHandler(svc, nil).Routes)
	return r
}

func TestHandler_RequiresSession(t *testing.T) {
	router := newTestRouter(newTestService(newMemStore(), &fakeGenerator{}, &fakePublisher{}))
	w := serve(t, router, http.MethodGet, "/posts/history", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_GenerateSummary(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(newTestService(store, &fakeGenerator{summary: "generated"}, &fakePublisher{}))

	w := serve(t, router, http.MethodPost, "/posts/generate-summary", `{"topic":"rust vs go"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "generated", resp["summary_text"])
	assert.Equal(t, false, resp["summary_approved"])

	w = serve(t, router, http.MethodPost, "/posts/generate-summary", `{"topic":""}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, router, http.MethodPost, "/posts/generate-summary", `not json`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_GenerationFailureIsBadGateway(t *testing.T) {
	gen := &fakeGenerator{err: &generation.Error{Operation: "summary", StatusCode: 500, Body: "down"}}
	router := newTestRouter(newTestService(newMemStore(), gen, &fakePublisher{}))
	w := serve(t, router, http.MethodPost, "/posts/generate-summary", `{"topic":"x"}`, true)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHandler_PublishMultiple(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.CreatePlatformPosts(context.Background(), []PlatformPost{
		{ID: "tw", UserID: "u1", Platform: platform.Twitter, Text: "ready", Approved: true},
		{ID: "fb", UserID: "u1", Platform: platform.Facebook, Text: "draft"},
	}))
	router := newTestRouter(newTestService(store, &fakeGenerator{}, &fakePublisher{}))

	w := serve(t, router, http.MethodPost, "/posts/publish-multiple", `{"platform_ids":["tw","fb"]}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Results []Outcome `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, StatusPublished, resp.Results[0].Status)
	assert.Equal(t, StatusFailed, resp.Results[1].Status)

	w = serve(t, router, http.MethodPost, "/posts/publish-multiple", `{"platform_ids":[]}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_PublishQueryParam(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.CreatePlatformPosts(context.Background(), []PlatformPost{
		{ID: "tw", UserID: "u1", Platform: platform.Twitter, Text: "ready", Approved: true},
		{ID: "fb", UserID: "u1", Platform: platform.Facebook, Text: "draft"},
	}))
	router := newTestRouter(newTestService(store, &fakeGenerator{}, &fakePublisher{}))

	w := serve(t, router, http.MethodPost, "/posts/publish?platform_id=tw", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"published"`)

	w = serve(t, router, http.MethodPost, "/posts/publish", `{"platform_id":"fb"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, router, http.MethodPost, "/posts/publish", `{"platform_id":"nope"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Summary(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.CreateSummary(context.Background(), &Summary{ID: "s1", UserID: "u1", Topic: "go"}))
	router := newTestRouter(newTestService(store, &fakeGenerator{}, &fakePublisher{}))

	w := serve(t, router, http.MethodGet, "/posts/summary/s1", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"platforms":[]`)

	w = serve(t, router, http.MethodGet, "/posts/summary/zzz", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_ImageRoutes(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	require.NoError(t, store.CreateSummary(ctx, &Summary{ID: "s1", UserID: "u1", Topic: "go", Text: "summary", Approved: true}))
	require.NoError(t, store.CreatePlatformPosts(ctx, []PlatformPost{
		{ID: "fb", SummaryID: "s1", UserID: "u1", Platform: platform.Facebook, Text: "hi", Approved: true},
	}))
	gen := &fakeGenerator{imageURL: "https://cdn.example/gen.png"}
	router := newTestRouter(newTestService(store, gen, &fakePublisher{}))

	w := serve(t, router, http.MethodPost, "/posts/regenerate-image", `{"summary_id":"s1","suggestions":"warmer"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://cdn.example/gen.png", resp["regenerated_image_url"])
	assert.EqualValues(t, 1, resp["updated_platforms"])

	w = serve(t, router, http.MethodPost, "/posts/regenerate-image", `{}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, router, http.MethodPost, "/posts/update-image", `{"summary_id":"s1","image_url":"https://cdn.example/mine.png"}`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"image_url":"https://cdn.example/mine.png"`)

	w = serve(t, router, http.MethodPost, "/posts/update-image", `{"summary_id":"s1"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(t, router, http.MethodPost, "/posts/update-image", `{"summary_id":"s1","image_url":"ftp://x/y.png"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(t, router, http.MethodPost, "/posts/update-image", `{"summary_id":"nope","image_url":"https://cdn.example/mine.png"}`, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_CreatePlatformRecords(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.CreateSummary(context.Background(), &Summary{ID: "s1", UserID: "u1", Text: "summary", Approved: true}))
	router := newTestRouter(newTestService(store, &fakeGenerator{}, &fakePublisher{}))

	w := serve(t, router, http.MethodPost, "/posts/create-platform-records",
		`[{"summary_id":"s1","platform_name":"linkedin"},{"summary_id":"other","platform_name":"x"}]`, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Records []PlatformPost `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, platform.LinkedIn, resp.Records[0].Platform)

	w = serve(t, router, http.MethodPost, "/posts/create-platform-records", `{"summary_id":"s1"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
