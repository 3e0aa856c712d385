package socialcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Seann-Moser/rbac"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Seann-Moser/socialcast/config"
	"github.com/Seann-Moser/socialcast/generation"
	"github.com/Seann-Moser/socialcast/oauth"
	"github.com/Seann-Moser/socialcast/oauth/oclient"
	"github.com/Seann-Moser/socialcast/oauth/ostate"
	"github.com/Seann-Moser/socialcast/oauth/platform"
	"github.com/Seann-Moser/socialcast/posts"
	"github.com/Seann-Moser/socialcast/publish"
	"github.com/Seann-Moser/socialcast/session"
	"github.com/Seann-Moser/socialcast/tokencrypt"
	"github.com/Seann-Moser/socialcast/user"
)

const usersCollection = "users"

// Deps are the connected backends the App is built on. Redis and RBAC are optional.
type Deps struct {
	DB     *mongo.Database
	Redis  redis.Cmdable
	// RBAC is supplied by embedders that manage roles. Without it users have no roles.
	RBAC   *rbac.Manager
	Logger *slog.Logger
	// ProviderClient overrides the HTTP client used for provider calls.
	ProviderClient *http.Client
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// App holds every service of the backend.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *mongo.Database
	Registry *platform.Registry
	Tokens   *oclient.Manager
	Linker   *oauth.Linker
	Posts    *posts.Service
	Users    *user.Server
	Sessions *session.Client

	indexes []indexer
	closers []func()
}

// New builds the App from cfg and already connected deps.
func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.DB == nil {
		return nil, errors.New("socialcast: mongo database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, logger: logger, db: deps.DB}

	box, err := newBox(cfg)
	if err != nil {
		return nil, err
	}

	providerClient := deps.ProviderClient
	if providerClient == nil {
		providerClient = &http.Client{Timeout: cfg.ProviderHTTPTimeout}
	}
	providerOpts := []platform.Option{
		platform.WithHTTPClient(providerClient),
		platform.WithLogger(logger),
	}
	a.Registry = platform.NewDefaultRegistry(cfg.Platforms, providerOpts...)

	states, err := a.stateStore(deps)
	if err != nil {
		return nil, err
	}
	tracker := ostate.NewTracker(states, cfg.OAuthStateTTL)

	creds := oclient.NewMongoStore(deps.DB)
	a.indexes = append(a.indexes, creds)
	var locker oclient.Locker = oclient.NewLocalLocker()
	if deps.Redis != nil {
		locker = oclient.NewRedisLocker(deps.Redis, 0)
	}
	a.Tokens = oclient.NewManager(creds, box, a.Registry,
		oclient.WithLocker(locker),
		oclient.WithRefreshBuffer(cfg.TokenRefreshBuffer),
		oclient.WithLogger(logger),
	)
	a.Linker = oauth.NewLinker(a.Registry, tracker, a.Tokens, logger)

	publishers := publish.NewService(
		publish.NewTwitter(a.Tokens, cfg.Platforms[platform.Twitter].APIBaseURL, providerOpts...),
		publish.NewLinkedIn(a.Tokens, cfg.Platforms[platform.LinkedIn].APIBaseURL, providerOpts...),
		publish.NewFacebook(a.Tokens, cfg.Platforms[platform.Facebook].GraphBaseURL, providerOpts...),
		publish.NewInstagram(a.Tokens, cfg.Platforms[platform.Instagram].GraphBaseURL, providerOpts...),
	)

	users := user.NewMongoDBStore(deps.DB, usersCollection)
	a.indexes = append(a.indexes, users)
	var roles session.RoleLoader
	if deps.RBAC != nil {
		roles = deps.RBAC
	}
	a.Sessions = session.NewClient([]byte(cfg.TokenSigningSecret), cfg.SessionTTL, roles)
	a.Users = user.NewServer(users, a.Sessions, deps.RBAC)

	postStore := posts.NewMongoStore(deps.DB)
	a.indexes = append(a.indexes, postStore)
	a.Posts = posts.NewService(postStore, generation.NewClient(cfg.Generation, logger), publishers,
		posts.WithProfiles(user.Profiles{Store: users}),
		posts.WithPublishConcurrency(cfg.PublishConcurrency),
		posts.WithLogger(logger),
	)
	return a, nil
}

func newBox(cfg config.Config) (*tokencrypt.Box, error) {
	opts := []tokencrypt.Option{tokencrypt.WithKeyID(cfg.TokenEncryptionKeyID)}
	if cfg.PreviousTokenEncryptionKey != "" {
		opts = append(opts, tokencrypt.WithPreviousSecret(cfg.PreviousTokenKeyID, cfg.PreviousTokenEncryptionKey))
	}
	box, err := tokencrypt.New(cfg.TokenEncryptionKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("socialcast: token encryption: %w", err)
	}
	return box, nil
}

func (a *App) stateStore(deps Deps) (ostate.Store, error) {
	switch a.cfg.StateStore() {
	case "redis":
		if deps.Redis == nil {
			return nil, errors.New("socialcast: redis state store selected but redis is not connected")
		}
		return ostate.NewRedisStore(deps.Redis), nil
	case "memory":
		a.logger.Warn("oauth state kept in memory; callbacks must reach this instance")
		m := ostate.NewMemoryStore(a.cfg.OAuthStateTTL)
		a.closers = append(a.closers, m.Close)
		return m, nil
	default:
		s := ostate.NewMongoStore(deps.DB)
		a.indexes = append(a.indexes, s)
		return s, nil
	}
}

// EnsureIndexes creates the unique and TTL indexes of every Mongo-backed store.
func (a *App) EnsureIndexes(ctx context.Context) error {
	for _, ix := range a.indexes {
		if err := ix.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("socialcast: ensure indexes: %w", err)
		}
	}
	return nil
}

// Close stops background work started by New.
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
}
