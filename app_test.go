package socialcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/Seann-Moser/socialcast/config"
	"github.com/Seann-Moser/socialcast/generation"
	"github.com/Seann-Moser/socialcast/oauth/platform"
)

func testConfig() config.Config {
	twitter := platform.Defaults(platform.Twitter)
	twitter.ClientID = "tw-id"
	twitter.ClientSecret = "tw-secret"
	twitter.RedirectURL = "https://api.example/auth/callback/twitter"
	return config.Config{
		FrontendURL:          "https://app.example",
		TokenEncryptionKey:   "encryption-key",
		TokenEncryptionKeyID: 1,
		TokenSigningSecret:   "0123456789abcdef0123456789abcdef",
		OAuthStateStore:      "memory",
		SessionTTL:           time.Hour,
		OAuthStateTTL:        10 * time.Minute,
		TokenRefreshBuffer:   5 * time.Minute,
		ProviderHTTPTimeout:  time.Second,
		PublishConcurrency:   2,
		Generation:           generation.Config{BaseURL: "http://127.0.0.1:1"},
		Platforms: map[platform.Platform]platform.Descriptor{
			platform.Twitter:   twitter,
			platform.LinkedIn:  platform.Defaults(platform.LinkedIn),
			platform.Facebook:  platform.Defaults(platform.Facebook),
			platform.Instagram: platform.Defaults(platform.Instagram),
		},
	}
}

func TestNew_RequiresDatabase(t *testing.T) {
	_, err := New(testConfig(), Deps{})
	assert.Error(t, err)
}

func TestNew_KeyRotation(t *testing.T) {
	old := testConfig()
	oldBox, err := newBox(old)
	require.NoError(t, err)
	sealed, err := oldBox.Encrypt("access-token")
	require.NoError(t, err)

	rotated := testConfig()
	rotated.TokenEncryptionKey = "next-key"
	rotated.TokenEncryptionKeyID = 2
	rotated.PreviousTokenEncryptionKey = old.TokenEncryptionKey
	rotated.PreviousTokenKeyID = 1
	box, err := newBox(rotated)
	require.NoError(t, err)
	plain, err := box.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "access-token", plain)
}

func TestRouter(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("routes", func(mt *mtest.T) {
		app, err := New(testConfig(), Deps{DB: mt.DB})
		require.NoError(mt, err)
		defer app.Close()
		router := app.Router()

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/platforms", nil))
		require.Equal(mt, http.StatusOK, w.Code)
		assert.NotEmpty(mt, w.Header().Get("X-Request-Id"))
		var resp struct {
			Platforms []struct {
				Platform string `json:"platform"`
			} `json:"platforms"`
		}
		require.NoError(mt, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(mt, resp.Platforms, 1)
		assert.Equal(mt, "twitter", resp.Platforms[0].Platform)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/initiate/twitter?user_id=u1", nil))
		require.Equal(mt, http.StatusOK, w.Code, w.Body.String())
		var initiate struct {
			AuthURL string `json:"auth_url"`
		}
		require.NoError(mt, json.Unmarshal(w.Body.Bytes(), &initiate))
		assert.True(mt, strings.HasPrefix(initiate.AuthURL, "https://twitter.com/i/oauth2/authorize"))
		assert.Contains(mt, initiate.AuthURL, "code_challenge_method=S256")

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/initiate/linkedin?user_id=u1", nil))
		assert.Equal(mt, http.StatusNotImplemented, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/posts/history", nil))
		assert.Equal(mt, http.StatusUnauthorized, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/connections?user_id=u1", nil))
		assert.Equal(mt, http.StatusUnauthorized, w.Code)

		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me", nil))
		assert.Equal(mt, http.StatusUnauthorized, w.Code)
	})

	mt.Run("healthz", func(mt *mtest.T) {
		app, err := New(testConfig(), Deps{DB: mt.DB})
		require.NoError(mt, err)
		defer app.Close()

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		w := httptest.NewRecorder()
		app.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(mt, http.StatusOK, w.Code)
		assert.JSONEq(mt, `{"status":"ok"}`, w.Body.String())
	})
}
