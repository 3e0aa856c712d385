package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Seann-Moser/socialcast/generation"
	"github.com/Seann-Moser/socialcast/oauth/platform"
)

// Config contains runtime configuration values.
type Config struct {
	HTTPAddr      string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	FrontendURL   string

	TokenEncryptionKey         string
	TokenEncryptionKeyID       byte
	PreviousTokenEncryptionKey string
	PreviousTokenKeyID         byte
	TokenSigningSecret         string

	// OAuthStateStore is "redis", "mongo" or "memory". Empty picks redis when REDIS_ADDR
	// is set and mongo otherwise.
	OAuthStateStore string

	SessionTTL          time.Duration
	OAuthStateTTL       time.Duration
	TokenRefreshBuffer  time.Duration
	ProviderHTTPTimeout time.Duration
	PublishConcurrency  int

	Generation generation.Config
	Platforms  map[platform.Platform]platform.Descriptor
}

// Load reads configuration from .env and the environment. TOKEN_ENCRYPTION_KEY and
// TOKEN_SIGNING_SECRET have no defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	encKey := strings.TrimSpace(os.Getenv("TOKEN_ENCRYPTION_KEY"))
	if encKey == "" {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_KEY is required")
	}
	signing := strings.TrimSpace(os.Getenv("TOKEN_SIGNING_SECRET"))
	if signing == "" {
		return Config{}, fmt.Errorf("TOKEN_SIGNING_SECRET is required")
	}
	if len(signing) < 32 {
		return Config{}, fmt.Errorf("TOKEN_SIGNING_SECRET must be at least 32 bytes")
	}

	cfg := Config{
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8000"),
		MongoURI:                   getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:              getEnv("MONGO_DATABASE", "socialcast"),
		RedisAddr:                  os.Getenv("REDIS_ADDR"),
		RedisPassword:              os.Getenv("REDIS_PASSWORD"),
		RedisDB:                    getInt("REDIS_DB", 0),
		FrontendURL:                strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		TokenEncryptionKey:         encKey,
		TokenEncryptionKeyID:       getByte("TOKEN_ENCRYPTION_KEY_ID", 1),
		PreviousTokenEncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY_PREVIOUS"),
		PreviousTokenKeyID:         getByte("TOKEN_ENCRYPTION_KEY_PREVIOUS_ID", 0),
		TokenSigningSecret:         signing,
		OAuthStateStore:            strings.ToLower(os.Getenv("OAUTH_STATE_STORE")),
		SessionTTL:                 getDuration("SESSION_TTL", 7*24*time.Hour),
		OAuthStateTTL:              getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		TokenRefreshBuffer:         getDuration("TOKEN_REFRESH_BUFFER", 5*time.Minute),
		ProviderHTTPTimeout:        getDuration("PROVIDER_HTTP_TIMEOUT", 15*time.Second),
		PublishConcurrency:         getInt("PUBLISH_CONCURRENCY", 4),
		Generation: generation.Config{
			BaseURL:     getEnv("N8N_BASE_URL", "http://localhost:5678"),
			SummaryPath: getEnv("N8N_SUMMARY_WEBHOOK", "/webhook/summary"),
			PostsPath:   getEnv("N8N_POSTGEN_WEBHOOK", "/webhook/generate-posts"),
			Timeout:     getDuration("N8N_TIMEOUT", generation.DefaultTimeout),
		},
		Platforms: map[platform.Platform]platform.Descriptor{
			platform.Twitter:   descriptor(platform.Twitter, "TWITTER_CLIENT_ID", "TWITTER_CLIENT_SECRET", "TWITTER_REDIRECT_URI"),
			platform.LinkedIn:  descriptor(platform.LinkedIn, "LINKEDIN_CLIENT_ID", "LINKEDIN_CLIENT_SECRET", "LINKEDIN_REDIRECT_URI"),
			platform.Facebook:  descriptor(platform.Facebook, "FACEBOOK_APP_ID", "FACEBOOK_APP_SECRET", "FACEBOOK_REDIRECT_URI"),
			platform.Instagram: descriptor(platform.Instagram, "INSTAGRAM_CLIENT_ID", "INSTAGRAM_CLIENT_SECRET", "INSTAGRAM_REDIRECT_URI"),
		},
	}
	switch cfg.OAuthStateStore {
	case "", "redis", "mongo", "memory":
	default:
		return Config{}, fmt.Errorf("OAUTH_STATE_STORE must be redis, mongo or memory")
	}
	if cfg.OAuthStateStore == "redis" && !cfg.RedisEnabled() {
		return Config{}, fmt.Errorf("OAUTH_STATE_STORE=redis requires REDIS_ADDR")
	}
	if cfg.PreviousTokenEncryptionKey != "" && cfg.PreviousTokenKeyID == cfg.TokenEncryptionKeyID {
		return Config{}, fmt.Errorf("TOKEN_ENCRYPTION_KEY_PREVIOUS_ID must differ from TOKEN_ENCRYPTION_KEY_ID")
	}
	if cfg.PublishConcurrency < 1 {
		cfg.PublishConcurrency = 1
	}
	return cfg, nil
}

// StateStore resolves which backend holds OAuth state records.
func (c Config) StateStore() string {
	if c.OAuthStateStore != "" {
		return c.OAuthStateStore
	}
	if c.RedisEnabled() {
		return "redis"
	}
	return "mongo"
}

// RedisEnabled reports whether a Redis address was configured.
func (c Config) RedisEnabled() bool { return c.RedisAddr != "" }

func descriptor(p platform.Platform, idKey, secretKey, redirectKey string) platform.Descriptor {
	d := platform.Defaults(p)
	d.ClientID = os.Getenv(idKey)
	d.ClientSecret = os.Getenv(secretKey)
	d.RedirectURL = os.Getenv(redirectKey)
	return d
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getByte(key string, def byte) byte {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.ParseUint(v, 10, 8)
		if err == nil {
			return byte(n)
		}
	}
	return def
}
