package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	// Register the pgx database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/fixdesk/fixdesk/config"
	"github.com/fixdesk/fixdesk/internal/migrate"
)

const connectTimeout = 5 * time.Second

// ConnectDB opens the document database and pings it.
func ConnectDB(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single client issues a handful of concurrent queries at most.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database connected", "host", cfg.Host, "port", cfg.Port, "database", cfg.Name)
	}
	return db, nil
}

// ConnectRedis builds a single, sentinel or cluster client from cfg and pings it.
//
//nolint:ireturn // the concrete client type depends on configuration.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if logger != nil {
		// Addresses only; credentials never reach the log.
		logger.InfoContext(ctx, "redis connected", "addrs", opts.Addrs, "master", opts.MasterName)
	}
	return client, nil
}

// RedisOptions translates cfg into go-redis universal options. Explicit Addrs
// win over URL; a URL's credentials, TLS and DB are kept unless cfg overrides them.
func RedisOptions(cfg config.RedisConfig) (*redis.UniversalOptions, error) {
	opts := &redis.UniversalOptions{
		MasterName: strings.TrimSpace(cfg.MasterName),
		Username:   cfg.Username,
		Password:   cfg.Password,
		DB:         cfg.DB,
	}

	for _, addr := range cfg.Addrs {
		if a := strings.TrimSpace(addr); a != "" {
			opts.Addrs = append(opts.Addrs, a)
		}
	}
	if len(opts.Addrs) > 0 {
		return opts, nil
	}
	if opts.MasterName != "" {
		return nil, errors.New("redis sentinel configuration requires REDIS_ADDRS")
	}

	raw := strings.TrimSpace(cfg.URL)
	switch {
	case raw == "":
		return nil, errors.New("redis configuration requires REDIS_URL or REDIS_ADDRS")
	case strings.HasPrefix(raw, "redis://"), strings.HasPrefix(raw, "rediss://"):
		parsed, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts.Addrs = []string{parsed.Addr}
		opts.TLSConfig = parsed.TLSConfig
		if opts.Username == "" {
			opts.Username = parsed.Username
		}
		if opts.Password == "" {
			opts.Password = parsed.Password
		}
		if opts.DB == 0 {
			opts.DB = parsed.DB
		}
	default:
		opts.Addrs = []string{raw}
	}
	return opts, nil
}

// RunMigrations applies pending migrations and returns the versions it applied.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) ([]string, error) {
	applied, err := migrate.Run(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed", "applied", applied)
	}

	return applied, nil
}
