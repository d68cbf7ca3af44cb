// Command fixdesk is the terminal client for the help-desk backend: it logs in,
// keeps the session cached between invocations and serves the account and list views.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/fixdesk/fixdesk/config"
	"github.com/fixdesk/fixdesk/internal/bootstrap"
	apperrors "github.com/fixdesk/fixdesk/internal/errors"
)

type commandFn func(cmdCtx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Stdin  *bufio.Reader
	Stdout io.Writer
	Stderr io.Writer

	// openClient builds the session-aware client. Tests swap in in-memory services.
	openClient func(ctx context.Context, cmdCtx *commandContext) (*client, error)
}

// client is the part of bootstrap.Client the commands use.
type client struct {
	bootstrap.Services
	close func() error
}

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(context.Background(), os.Args[1:])) //nolint:forbidigo // exit status reports the command result to the shell
}

func run(ctx context.Context, args []string) int {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		if writeErr := writef(os.Stderr, "fixdesk: %v\n", err); writeErr != nil {
			slog.Error("print config error failed", "error", writeErr)
		}
		return 1
	}
	logger := bootstrap.InitLogger(cfg.Log, os.Stderr)

	cmdCtx := &commandContext{
		Ctx:        ctx,
		Logger:     logger,
		Config:     cfg,
		Stdin:      bufio.NewReader(os.Stdin),
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		openClient: openBootstrapClient,
	}
	return execute(cmdCtx, args)
}

// execute dispatches args to a command and maps the outcome to an exit status:
// 0 on success, 1 on failure and 2 on usage errors.
func execute(cmdCtx *commandContext, args []string) int {
	if len(args) == 0 {
		if err := printUsage(cmdCtx.Stdout); err != nil {
			cmdCtx.Logger.Error("print usage failed", "error", err)
		}
		return 2
	}

	cmd, ok := commands()[args[0]]
	if !ok {
		if err := writef(cmdCtx.Stderr, "unknown command %q\n\n", args[0]); err != nil {
			cmdCtx.Logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(cmdCtx.Stderr); err != nil {
			cmdCtx.Logger.Error("print usage failed", "error", err)
		}
		return 2
	}

	err := cmd.run(cmdCtx, args[1:])
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		if writeErr := writef(cmdCtx.Stderr, "fixdesk %s: %v\n", cmd.name, err); writeErr != nil {
			cmdCtx.Logger.Error("print usage error failed", "error", writeErr)
		}
		return 2
	}

	cmdCtx.Logger.DebugContext(cmdCtx.Ctx, "command failed", "command", cmd.name, "error", err)
	if writeErr := reportError(cmdCtx.Stderr, err); writeErr != nil {
		cmdCtx.Logger.Error("print command error failed", "error", writeErr)
	}
	return 1
}

// reportError prints the stable reason code ahead of the message so scripts can match on it.
func reportError(w io.Writer, err error) error {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	return writef(w, "error [%s]: %v\n", code, err)
}

func commands() map[string]command {
	return map[string]command{
		"login": {
			name:        "login",
			description: "Log in with e-mail and password (password read from stdin)",
			run:         runLogin,
		},
		"logout": {
			name:        "logout",
			description: "End the session and clear the cached profile",
			run:         runLogout,
		},
		"whoami": {
			name:        "whoami",
			description: "Show the logged-in profile",
			run:         runWhoami,
		},
		"refresh": {
			name:        "refresh",
			description: "Reload the logged-in profile from the document store",
			run:         runRefresh,
		},
		"passwd": {
			name:        "passwd",
			description: "Change the password of the logged-in user",
			run:         runPasswd,
		},
		"register": {
			name:        "register",
			description: "Create a user account",
			run:         runRegister,
		},
		"list": {
			name:        "list",
			description: "Show a list view (error, userByRoom, deviceByRoom, deviceByUser)",
			run:         runList,
		},
		"summary": {
			name:        "summary",
			description: "Count every list view for a label",
			run:         runSummary,
		},
		"ban": {
			name:        "ban",
			description: "Ban a user (admin only)",
			run:         runBan,
		},
		"unban": {
			name:        "unban",
			description: "Lift a ban (admin only)",
			run:         runUnban,
		},
		"delete-account": {
			name:        "delete-account",
			description: "Delete an account and its profile",
			run:         runDeleteAccount,
		},
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"seed": {
			name:        "seed",
			description: "Run migrations and seed development data",
			run:         runSeed,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: fixdesk <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

func openBootstrapClient(ctx context.Context, cmdCtx *commandContext) (*client, error) {
	c, err := bootstrap.NewClient(ctx, cmdCtx.Config, cmdCtx.Logger)
	if err != nil {
		return nil, err
	}
	return &client{Services: c.Services, close: c.Close}, nil
}

func newFlagSet(cmdCtx *commandContext, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Stderr)
	return fs
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
