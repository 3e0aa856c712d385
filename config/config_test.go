package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seann-Moser/socialcast/oauth/platform"
)

const signingSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_RequiresSecrets(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", "")
	t.Setenv("TOKEN_SIGNING_SECRET", signingSecret)
	_, err := Load()
	assert.ErrorContains(t, err, "TOKEN_ENCRYPTION_KEY")

	t.Setenv("TOKEN_ENCRYPTION_KEY", "k")
	t.Setenv("TOKEN_SIGNING_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "TOKEN_SIGNING_SECRET")

	t.Setenv("TOKEN_SIGNING_SECRET", "short")
	_, err = Load()
	assert.ErrorContains(t, err, "at least 32 bytes")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", "k")
	t.Setenv("TOKEN_SIGNING_SECRET", signingSecret)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OAUTH_STATE_TTL", "not-a-duration")
	t.Setenv("FRONTEND_URL", "https://app.example/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.OAuthStateTTL)
	assert.Equal(t, 5*time.Minute, cfg.TokenRefreshBuffer)
	assert.Equal(t, "https://app.example", cfg.FrontendURL)
	assert.False(t, cfg.RedisEnabled())
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
}

func TestLoad_Platforms(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", "k")
	t.Setenv("TOKEN_SIGNING_SECRET", signingSecret)
	t.Setenv("TWITTER_CLIENT_ID", "tw-id")
	t.Setenv("TWITTER_CLIENT_SECRET", "tw-secret")
	t.Setenv("TWITTER_REDIRECT_URI", "https://api.example/auth/callback/twitter")
	t.Setenv("FACEBOOK_APP_ID", "fb-id")
	t.Setenv("FACEBOOK_APP_SECRET", "")
	t.Setenv("FACEBOOK_REDIRECT_URI", "")
	t.Setenv("PUBLISH_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)
	tw := cfg.Platforms[platform.Twitter]
	assert.True(t, tw.Configured())
	assert.Equal(t, "https://api.twitter.com/2/oauth2/token", tw.TokenURL)
	assert.False(t, cfg.Platforms[platform.Facebook].Configured())
	assert.Equal(t, 1, cfg.PublishConcurrency)
}

func TestLoad_StateStore(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", "k")
	t.Setenv("TOKEN_SIGNING_SECRET", signingSecret)

	t.Setenv("REDIS_ADDR", "")
	t.Setenv("OAUTH_STATE_STORE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mongo", cfg.StateStore())

	t.Setenv("REDIS_ADDR", "localhost:6379")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.StateStore())

	t.Setenv("OAUTH_STATE_STORE", "Memory")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StateStore())

	t.Setenv("OAUTH_STATE_STORE", "etcd")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("OAUTH_STATE_STORE", "redis")
	t.Setenv("REDIS_ADDR", "")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoad_KeyRotation(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", "new")
	t.Setenv("TOKEN_SIGNING_SECRET", signingSecret)
	t.Setenv("TOKEN_ENCRYPTION_KEY_ID", "2")
	t.Setenv("TOKEN_ENCRYPTION_KEY_PREVIOUS", "old")
	t.Setenv("TOKEN_ENCRYPTION_KEY_PREVIOUS_ID", "1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, byte(2), cfg.TokenEncryptionKeyID)
	assert.Equal(t, byte(1), cfg.PreviousTokenKeyID)

	t.Setenv("TOKEN_ENCRYPTION_KEY_PREVIOUS_ID", "2")
	_, err = Load()
	assert.Error(t, err)
}
