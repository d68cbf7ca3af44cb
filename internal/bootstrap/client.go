package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/fixdesk/fixdesk/config"
	"github.com/fixdesk/fixdesk/internal/data"
	"github.com/fixdesk/fixdesk/internal/observability/statsd"
	"github.com/fixdesk/fixdesk/internal/ports"
	"github.com/fixdesk/fixdesk/internal/service"
	"github.com/fixdesk/fixdesk/internal/service/directory"
	"github.com/fixdesk/fixdesk/internal/session"
)

// Services holds the client-facing components.
type Services struct {
	Sessions  *session.Store
	Accounts  *service.AccountService
	Directory *directory.Service
}

// ServiceDeps groups the ports the services are built on.
type ServiceDeps struct {
	Session   config.SessionConfig
	Identity  ports.IdentityProvider
	Documents ports.DocumentStore
	Cache     ports.LocalCache
	Limiter   ports.AttemptLimiter
	Metrics   session.Metrics
	Logger    *slog.Logger
}

// BuildServices wires the session store and the services that depend on it.
func BuildServices(deps ServiceDeps) (Services, error) {
	if deps.Identity == nil || deps.Documents == nil || deps.Cache == nil {
		return Services{}, errors.New("identity provider, document store and local cache are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessions := session.NewStore(session.StoreOptions{
		Identity:  deps.Identity,
		Documents: deps.Documents,
		Cache:     deps.Cache,
		Limiter:   deps.Limiter,
		Metrics:   deps.Metrics,
		Logger:    logger,
		Config: session.Config{
			RemoteTimeout:    deps.Session.RemoteTimeout,
			CacheTimeout:     deps.Session.CacheTimeout,
			RejectConcurrent: deps.Session.RejectConcurrent,
		},
	})

	catalog, err := directory.DefaultCatalog()
	if err != nil {
		return Services{}, fmt.Errorf("load directory catalog: %w", err)
	}

	return Services{
		Sessions: sessions,
		Accounts: service.NewAccountService(service.AccountServiceOptions{
			Identity:      deps.Identity,
			Documents:     deps.Documents,
			Sessions:      sessions,
			Logger:        logger,
			RemoteTimeout: deps.Session.RemoteTimeout,
		}),
		Directory: directory.NewService(directory.ServiceOptions{
			Documents:     deps.Documents,
			Sessions:      sessions,
			Catalog:       catalog,
			Logger:        logger,
			RemoteTimeout: deps.Session.RemoteTimeout,
		}),
	}, nil
}

// Client is the assembled application: infrastructure handles plus services.
type Client struct {
	Services

	Config      config.AppConfig
	DB          *sql.DB
	Redis       redis.UniversalClient
	Documents   *data.DocumentRepo
	Credentials *data.CredentialRepo // nil unless IDENTITY_MODE=local
	Metrics     *statsd.Client

	logger *slog.Logger
}

// NewClient connects to Postgres (and Redis when configured) and builds the services.
// The caller must Close the client.
func NewClient(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{Config: cfg, logger: logger}

	db, err := ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	c.DB = db

	if cfg.NeedsRedis() {
		rdb, redisErr := ConnectRedis(ctx, cfg.Redis, logger)
		if redisErr != nil {
			return nil, errors.Join(redisErr, c.Close())
		}
		c.Redis = rdb
	}

	if cfg.Postgres.RunMigrationsOnStart {
		if _, err := RunMigrations(ctx, db, logger); err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}

	if err := c.build(ctx); err != nil {
		return nil, errors.Join(err, c.Close())
	}
	return c, nil
}

func (c *Client) build(ctx context.Context) error {
	identity, err := NewIdentityProvider(ctx, IdentityDeps{
		Identity: c.Config.Identity,
		DB:       c.DB,
		IsDev:    c.Config.IsDev,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.Credentials = identity.Credentials
	c.Documents = data.NewDocumentRepo(c.DB)

	cache, err := NewLocalCache(c.Config.LocalCache, c.Redis)
	if err != nil {
		return fmt.Errorf("local cache: %w", err)
	}
	limiter, err := NewAttemptLimiter(c.Config.Session, cache, c.Redis)
	if err != nil {
		return fmt.Errorf("login limiter: %w", err)
	}

	metrics, err := statsd.NewClient(ctx, statsd.Config{
		Enabled:    c.Config.Metrics.Enabled,
		Address:    c.Config.Metrics.Address,
		Prefix:     c.Config.Metrics.Prefix,
		Logger:     c.logger,
		GlobalTags: map[string]string{"identity_mode": string(c.Config.Identity.Mode)},
	})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	c.Metrics = metrics

	svcs, err := BuildServices(ServiceDeps{
		Session:   c.Config.Session,
		Identity:  identity.Provider,
		Documents: c.Documents,
		Cache:     cache,
		Limiter:   limiter,
		Metrics:   metrics,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.Services = svcs
	return nil
}

// Close releases the metrics socket and the database and Redis connections.
func (c *Client) Close() error {
	var errs []error
	if err := c.Metrics.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metrics: %w", err))
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
