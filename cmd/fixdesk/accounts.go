package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
)

func runRegister(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "register")
	var reg domainauth.Registration
	fs.StringVar(&reg.FullName, "name", "", "Full name")
	fs.StringVar(&reg.Email, "email", "", "E-mail address")
	fs.StringVar(&reg.Phone, "phone", "", "Phone number")
	fs.StringVar(&reg.Address, "address", "", "Postal address")
	fs.StringVar(&reg.Department, "department", "", "Department")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(reg.Email) == "" {
		return fmt.Errorf("%w: --email is required", errUsage)
	}

	password, err := readSecret(cmdCtx, "Password")
	if err != nil {
		return err
	}
	confirm, err := readSecret(cmdCtx, "Confirm password")
	if err != nil {
		return err
	}
	if err := domainauth.ValidateNewPassword(password, confirm); err != nil {
		return err
	}
	reg.Password = password

	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		profile, err := c.Accounts.CreateAccount(ctx, reg)
		if err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "Account created for %s. Log in with: fixdesk login --email %s\n",
			profile.Email, profile.Email)
	})
}

func runBan(cmdCtx *commandContext, args []string) error {
	return runSetBanned(cmdCtx, "ban", args, true)
}

func runUnban(cmdCtx *commandContext, args []string) error {
	return runSetBanned(cmdCtx, "unban", args, false)
}

func runSetBanned(cmdCtx *commandContext, name string, args []string, banned bool) error {
	fs := newFlagSet(cmdCtx, name)
	email := fs.String("email", "", "E-mail address of the user")
	if err := fs.Parse(args); err != nil {
		return err
	}
	target := emailArg(fs, *email)
	if target == "" {
		return fmt.Errorf("%w: --email is required", errUsage)
	}

	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		if banned {
			if err := c.Accounts.Ban(ctx, target); err != nil {
				return err
			}
			return writef(cmdCtx.Stdout, "Banned %s.\n", domainauth.NormalizeEmail(target))
		}
		if err := c.Accounts.Unban(ctx, target); err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "Unbanned %s.\n", domainauth.NormalizeEmail(target))
	})
}

func runDeleteAccount(cmdCtx *commandContext, args []string) error {
	fs := newFlagSet(cmdCtx, "delete-account")
	email := fs.String("email", "", "E-mail address of the account (defaults to the logged-in user)")
	yes := fs.Bool("yes", false, "Skip confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withSession(cmdCtx, func(ctx context.Context, c *client) error {
		target := emailArg(fs, *email)
		if target == "" {
			target = c.Sessions.Current().Email()
		}
		if target == "" {
			return fmt.Errorf("%w: --email is required when not logged in", errUsage)
		}
		target = domainauth.NormalizeEmail(target)

		if !*yes {
			if err := confirm(cmdCtx, fmt.Sprintf("About to delete the account %s and its profile.", target)); err != nil {
				return err
			}
		}
		password, err := readSecret(cmdCtx, "Password of "+target)
		if err != nil {
			return err
		}

		if err := c.Accounts.DeleteAccount(ctx, target, password); err != nil {
			return err
		}
		return writef(cmdCtx.Stdout, "Deleted %s.\n", target)
	})
}

func confirm(cmdCtx *commandContext, message string) error {
	if err := writef(cmdCtx.Stderr, "%s\nContinue? [y/N]: ", message); err != nil {
		return fmt.Errorf("print confirmation prompt: %w", err)
	}
	resp, err := cmdCtx.Stdin.ReadString('\n')
	if err != nil && resp == "" {
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(strings.TrimSpace(resp))
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
