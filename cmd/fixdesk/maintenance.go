package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fixdesk/fixdesk/config"
	"github.com/fixdesk/fixdesk/internal/bootstrap"
	"github.com/fixdesk/fixdesk/internal/data"
	"github.com/fixdesk/fixdesk/internal/devseed"
)

const defaultMigrationTimeout = 5 * time.Minute

type migrateOptions struct {
	Timeout time.Duration
}

type seedOptions struct {
	Timeout     time.Duration
	AllowRemote bool
	Fixtures    string
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(cmdCtx, args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		applied, err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
		if err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		if len(applied) == 0 {
			return writeln(cmdCtx.Stdout, "Database is up to date.")
		}
		for _, name := range applied {
			if err := writef(cmdCtx.Stdout, "applied %s\n", name); err != nil {
				return err
			}
		}
		return nil
	})
}

func runSeed(cmdCtx *commandContext, args []string) error {
	opts, err := parseSeedFlags(cmdCtx, args)
	if err != nil {
		return err
	}

	fixtures, err := loadFixtures(opts.Fixtures)
	if err != nil {
		return err
	}

	if err := guardRemoteHost(cmdCtx, opts.AllowRemote, "seed development data on the configured database"); err != nil {
		return err
	}

	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.InfoContext(ctx, "ensuring database migrations are current")
		if _, err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		svcs := devseed.Services{Documents: data.NewDocumentRepo(db)}
		if cmdCtx.Config.Identity.Mode == config.IdentityModeLocal {
			svcs.Credentials = data.NewCredentialRepo(db)
		} else {
			cmdCtx.Logger.InfoContext(ctx, "identity provider keeps its own accounts; skipping credentials",
				"identity_mode", string(cmdCtx.Config.Identity.Mode))
		}

		res, err := devseed.Run(ctx, svcs, fixtures, cmdCtx.Logger)
		if err != nil {
			return fmt.Errorf("seed data: %w", err)
		}
		return writef(cmdCtx.Stdout, "Seeded %d document(s) and %d credential(s); %d failure(s).\n",
			res.Documents, res.Credentials, res.Failures)
	})
}

func loadFixtures(path string) (devseed.Fixtures, error) {
	if path == "" {
		return devseed.DefaultFixtures()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return devseed.Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	return devseed.ParseFixtures(raw)
}

func parseMigrateFlags(cmdCtx *commandContext, args []string) (migrateOptions, error) {
	fs := newFlagSet(cmdCtx, "migrate")
	opts := migrateOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, fmt.Errorf("%w: --timeout must be greater than zero", errUsage)
	}
	return opts, nil
}

func parseSeedFlags(cmdCtx *commandContext, args []string) (seedOptions, error) {
	fs := newFlagSet(cmdCtx, "seed")
	opts := seedOptions{}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for seeding to complete",
	)
	fs.BoolVar(
		&opts.AllowRemote,
		"allow-remote",
		false,
		"Permit running against database hosts that do not look local",
	)
	fs.StringVar(
		&opts.Fixtures,
		"fixtures",
		"",
		"YAML fixtures file (defaults to the built-in data set)",
	)
	if err := fs.Parse(args); err != nil {
		return seedOptions{}, err
	}
	if opts.Timeout <= 0 {
		return seedOptions{}, fmt.Errorf("%w: --timeout must be greater than zero", errUsage)
	}
	return opts, nil
}

func withDatabase(
	cmdCtx *commandContext,
	timeout time.Duration,
	f func(context.Context, *sql.DB) error,
) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", cerr)
		}
	}()

	return f(ctx, db)
}

func guardRemoteHost(cmdCtx *commandContext, allow bool, action string) error {
	host := cmdCtx.Config.Postgres.Host
	if !isLikelyRemoteHost(host) {
		return nil
	}
	if !allow {
		return fmt.Errorf(
			"refusing to run against potentially remote database host %q; re-run with --allow-remote if this is intentional",
			host,
		)
	}
	return requireRemoteHostConfirmation(cmdCtx, action, host)
}

func isLikelyRemoteHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "" {
		return false
	}
	if h == "localhost" || h == "127.0.0.1" || h == "::1" {
		return false
	}
	if strings.HasSuffix(h, ".local") {
		return false
	}
	if ip := net.ParseIP(h); ip != nil {
		return !ip.IsLoopback()
	}
	return true
}

func requireRemoteHostConfirmation(cmdCtx *commandContext, action, host string) error {
	if err := writef(
		cmdCtx.Stderr,
		"\nWARNING: database host %q does not look like a local address.\n"+
			"This operation will %s.\n"+
			"Type %q to continue or press enter to abort: ",
		host,
		action,
		host,
	); err != nil {
		return fmt.Errorf("print remote host warning: %w", err)
	}
	resp, err := cmdCtx.Stdin.ReadString('\n')
	if err != nil && resp == "" {
		return errors.New("aborted by user")
	}
	if strings.TrimSpace(resp) != host {
		return errors.New("remote safeguard check failed; aborted by user")
	}
	return nil
}
