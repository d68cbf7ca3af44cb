package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	apperrors "github.com/fixdesk/fixdesk/internal/errors"
)

// withSession opens the client, restores the cached session and runs f.
func withSession(cmdCtx *commandContext, f func(context.Context, *client) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := cmdCtx.openClient(ctx, cmdCtx)
	if err != nil {
		return fmt.Errorf("open client: %w", err)
	}
	defer func() {
		if c.close == nil {
			return
		}
		if cerr := c.close(); cerr != nil {
			cmdCtx.Logger.Warn("close client failed", "error", cerr)
		}
	}()

	if err := c.Sessions.Initialize(ctx); err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	return f(ctx, c)
}

// readSecret prompts on stderr and reads one line from stdin.
func readSecret(cmdCtx *commandContext, prompt string) (string, error) {
	if err := writef(cmdCtx.Stderr, "%s: ", prompt); err != nil {
		return "", fmt.Errorf("print prompt: %w", err)
	}
	line, err := cmdCtx.Stdin.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(prompt), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func emailArg(fs interface{ Arg(int) string }, flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return strings.TrimSpace(fs.Arg(0))
}

func runLogin(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "login")
	email := fs.String("email", "", "E-mail address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	addr := emailArg(fs, *email)
	if addr == "" {
		return fmt.Errorf("%w: --email is required", errUsage)
	}

	password, err := readSecret(cmdCtx, "Password")
	if err != nil {
		return err
	}

	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		if err := c.Sessions.Login(ctx, addr, password); err != nil {
			return err
		}
		sess := c.Sessions.Current()
		profile, _ := sess.Profile()
		return writef(cmdCtx.Stdout, "Logged in as %s (%s). Home: %s\n", profile.Email, profile.Role, sess.Home())
	})
}

func runLogout(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "logout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		email := c.Sessions.Current().Email()
		if err := c.Sessions.Logout(ctx); err != nil {
			return err
		}
		if email == "" {
			return writeln(cmdCtx.Stdout, "Not logged in.")
		}
		return writef(cmdCtx.Stdout, "Logged out %s.\n", email)
	})
}

func runWhoami(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "whoami")
	asJSON := fs.Bool("json", false, "Print the profile as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withSession(cmdCtx, func(_ context.Context, c *client) error {
		profile, ok := c.Sessions.Current().Profile()
		if !ok {
			return apperrors.NotAuthenticated("not logged in")
		}
		if *asJSON {
			return printProfileJSON(cmdCtx.Stdout, profile)
		}
		return printProfile(cmdCtx.Stdout, profile)
	})
}

func runRefresh(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "refresh")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		if err := c.Sessions.Refresh(ctx); err != nil {
			return err
		}
		profile, _ := c.Sessions.Current().Profile()
		return printProfile(cmdCtx.Stdout, profile)
	})
}

func runPasswd(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "passwd")
	if err := fs.Parse(args); err != nil {
		return err
	}

	current, err := readSecret(cmdCtx, "Current password")
	if err != nil {
		return err
	}
	next, err := readSecret(cmdCtx, "New password")
	if err != nil {
		return err
	}
	confirm, err := readSecret(cmdCtx, "Confirm new password")
	if err != nil {
		return err
	}

	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		if err := c.Accounts.ChangePassword(ctx, current, next, confirm); err != nil {
			return err
		}
		return writeln(cmdCtx.Stdout, "Password changed. Log in again with the new password.")
	})
}

func printProfile(w io.Writer, p domainauth.Profile) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Email", p.Email},
		{"Name", p.FullName},
		{"Role", string(p.Role)},
		{"Department", p.Department},
		{"Phone", p.Phone},
		{"Address", p.Address},
	}
	for _, r := range rows {
		v := r[1]
		if v == "" {
			v = "-"
		}
		if err := writef(tw, "%s:\t%s\n", r[0], v); err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush profile: %w", err)
	}
	return nil
}

func printProfileJSON(w io.Writer, p domainauth.Profile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return nil
}
