package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"github.com/fixdesk/fixdesk/internal/ids"
	"github.com/fixdesk/fixdesk/internal/ports"
	"github.com/fixdesk/fixdesk/internal/session"
)

// Clock supplies the current time for ban timestamps and audit records.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Audit actions recorded in the AUDIT collection.
const (
	AuditAccountCreated = "account_created"
	AuditAccountDeleted = "account_deleted"
	AuditPasswordChange = "password_changed"
	AuditBanned         = "banned"
	AuditUnbanned       = "unbanned"
)

// AccountServiceOptions groups dependencies for AccountService.
type AccountServiceOptions struct {
	Identity  ports.IdentityProvider
	Documents ports.DocumentStore
	Sessions  *session.Store
	Clock     Clock
	Logger    *slog.Logger
	// RemoteTimeout bounds every provider and document call; zero means 10s.
	RemoteTimeout time.Duration
}

// AccountService manages accounts on behalf of the active session: registration,
// password changes, account deletion and the admin ban switch.
type AccountService struct {
	idp      ports.IdentityProvider
	docs     ports.DocumentStore
	sessions *session.Store
	clock    Clock
	logger   *slog.Logger
	timeout  time.Duration
}

// NewAccountService constructs a new AccountService.
func NewAccountService(opts AccountServiceOptions) *AccountService {
	clock := opts.Clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RemoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AccountService{
		idp:      opts.Identity,
		docs:     opts.Documents,
		sessions: opts.Sessions,
		clock:    clock,
		logger:   logger.With("component", "account_service"),
		timeout:  timeout,
	}
}

// CreateAccount registers credentials with the identity provider and writes the
// profile document with the user role. The password never reaches the document store.
// The provider session opened by registration is signed out again; the new user
// logs in through the session store like anyone else.
func (s *AccountService) CreateAccount(ctx context.Context, reg domainauth.Registration) (domainauth.Profile, error) {
	if err := domainauth.ValidateRegistration(reg); err != nil {
		return domainauth.Profile{}, err
	}
	email := domainauth.NormalizeEmail(reg.Email)

	exists, err := s.profileExists(ctx, email)
	if err != nil {
		return domainauth.Profile{}, err
	}
	if exists {
		return domainauth.Profile{}, apperrors.AlreadyExistsf("an account for %s already exists", email)
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	tok, err := s.idp.CreateAccount(rctx, domainauth.Credentials{Email: email, Password: reg.Password})
	cancel()
	if err != nil {
		return domainauth.Profile{}, session.ClassifyRemote(ctx, err, "create account")
	}

	profile := domainauth.Profile{
		Email:      email,
		FullName:   reg.FullName,
		Role:       domainauth.RoleUser,
		Department: reg.Department,
		Phone:      reg.Phone,
		Address:    reg.Address,
	}
	if err := s.writeProfile(ctx, profile); err != nil {
		s.rollbackAccount(ctx, tok)
		return domainauth.Profile{}, err
	}
	s.signOut(ctx, tok)

	s.audit(ctx, AuditAccountCreated, email)
	s.logger.InfoContext(ctx, "account created", "email", email)
	return profile, nil
}

// ChangePassword re-verifies the current password, rotates it at the provider and
// ends the session so the user logs in again with the new password.
func (s *AccountService) ChangePassword(ctx context.Context, current, next, confirm string) error {
	sess := s.sessions.Current()
	if !sess.IsActive() {
		return apperrors.NotAuthenticated("log in before changing your password")
	}
	if current == "" {
		return apperrors.ValidationField("current", "current password is required")
	}
	if err := domainauth.ValidateNewPassword(next, confirm); err != nil {
		return err
	}
	if next == current {
		return apperrors.ValidationField("password", "new password must differ from the current one")
	}

	email := sess.Email()
	tok, _ := s.sessions.Token()

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	fresh, err := s.idp.Reauthenticate(rctx, tok, domainauth.Credentials{Email: email, Password: current})
	cancel()
	if err != nil {
		return session.ClassifyRemote(ctx, err, "verify current password")
	}

	rctx, cancel = context.WithTimeout(ctx, s.timeout)
	err = s.idp.UpdatePassword(rctx, fresh, next)
	cancel()
	if err != nil {
		return session.ClassifyRemote(ctx, err, "update password")
	}

	s.audit(ctx, AuditPasswordChange, email)
	s.logger.InfoContext(ctx, "password changed", "email", email)

	if fresh.Value != tok.Value {
		s.signOut(ctx, fresh)
	}
	if err := s.sessions.Logout(ctx); err != nil {
		return fmt.Errorf("logout after password change: %w", err)
	}
	return nil
}

// DeleteAccount removes the provider account and profile document of email.
// The caller must be logged in; only admins may delete accounts other than their own.
// Deleting the active user's account ends the session.
func (s *AccountService) DeleteAccount(ctx context.Context, email, password string) error {
	sess := s.sessions.Current()
	if !sess.IsActive() {
		return apperrors.NotAuthenticated("log in before deleting an account")
	}
	email = domainauth.NormalizeEmail(email)
	actor, _ := sess.Profile()
	if !actor.IsAdmin() && actor.Email != email {
		return apperrors.PermissionDenied("only administrators can delete other accounts")
	}
	if err := domainauth.ValidateLogin(domainauth.Credentials{Email: email, Password: password}); err != nil {
		return err
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	tok, err := s.idp.SignIn(rctx, domainauth.Credentials{Email: email, Password: password})
	cancel()
	if err != nil {
		return session.ClassifyRemote(ctx, err, "verify account")
	}

	rctx, cancel = context.WithTimeout(ctx, s.timeout)
	err = s.idp.DeleteAccount(rctx, tok)
	cancel()
	if err != nil {
		s.signOut(ctx, tok)
		return session.ClassifyRemote(ctx, err, "delete account")
	}

	rctx, cancel = context.WithTimeout(ctx, s.timeout)
	err = s.docs.Delete(rctx, ports.CollectionUsers, email)
	cancel()
	if err != nil {
		return session.ClassifyRemote(ctx, err, "delete profile")
	}

	s.audit(ctx, AuditAccountDeleted, email)
	s.logger.InfoContext(ctx, "account deleted", "email", email, "actor", actor.Email)

	if actor.Email == email {
		if err := s.sessions.Logout(ctx); err != nil {
			return fmt.Errorf("logout after account deletion: %w", err)
		}
	}
	return nil
}

// Ban marks the account as banned. Its holder is refused at the next login and
// logged out at the next refresh.
func (s *AccountService) Ban(ctx context.Context, email string) error {
	return s.setBanned(ctx, email, true)
}

// Unban clears the banned flag.
func (s *AccountService) Unban(ctx context.Context, email string) error {
	return s.setBanned(ctx, email, false)
}

func (s *AccountService) setBanned(ctx context.Context, email string, banned bool) error {
	admin, err := s.requireAdmin()
	if err != nil {
		return err
	}
	email = domainauth.NormalizeEmail(email)
	if email == admin.Email {
		return apperrors.ValidationField("email", "you cannot change the ban state of your own account")
	}

	now := s.clock.Now().UTC()
	patch := map[string]any{"banned": banned}
	action := AuditUnbanned
	if banned {
		patch["bannedAt"] = now.Format(time.RFC3339)
		action = AuditBanned
	} else {
		patch["unbannedAt"] = now.Format(time.RFC3339)
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.docs.Update(rctx, ports.CollectionUsers, email, patch)
	cancel()
	if errors.Is(err, ports.ErrNotFound) {
		return apperrors.AccountMissing(email)
	}
	if err != nil {
		return session.ClassifyRemote(ctx, err, "update ban state")
	}

	s.audit(ctx, action, email)
	s.logger.InfoContext(ctx, "ban state changed", "email", email, "banned", banned, "actor", admin.Email)
	return nil
}

func (s *AccountService) requireAdmin() (domainauth.Profile, error) {
	p, ok := s.sessions.Current().Profile()
	if !ok {
		return domainauth.Profile{}, apperrors.NotAuthenticated("log in as an administrator")
	}
	if !p.IsAdmin() {
		return domainauth.Profile{}, apperrors.PermissionDenied("administrator role required")
	}
	return p, nil
}

func (s *AccountService) profileExists(ctx context.Context, email string) (bool, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.docs.Get(rctx, ports.CollectionUsers, email)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ports.ErrNotFound):
		return false, nil
	default:
		return false, session.ClassifyRemote(ctx, err, "check existing profile")
	}
}

func (s *AccountService) writeProfile(ctx context.Context, p domainauth.Profile) error {
	doc, err := p.Document()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode profile")
	}

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.docs.Set(rctx, ports.CollectionUsers, p.Email, doc); err != nil {
		return session.ClassifyRemote(ctx, err, "write profile")
	}
	return nil
}

// rollbackAccount removes a provider account whose profile could not be written,
// so the e-mail is not stuck as authenticated-but-missing.
func (s *AccountService) rollbackAccount(ctx context.Context, tok domainauth.Token) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.idp.DeleteAccount(rctx, tok); err != nil {
		s.logger.ErrorContext(ctx, "roll back provider account", "email", tok.Email, "error", err)
	}
}

func (s *AccountService) signOut(ctx context.Context, tok domainauth.Token) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.idp.SignOut(rctx, tok); err != nil {
		s.logger.WarnContext(ctx, "identity provider sign out failed", "email", tok.Email, "error", err)
	}
}

// audit appends a record to the AUDIT collection. Failures are logged only.
func (s *AccountService) audit(ctx context.Context, action, target string) {
	now := s.clock.Now().UTC()
	record := map[string]any{
		"action": action,
		"target": target,
		"actor":  s.sessions.Current().Email(),
		"at":     now.Format(time.RFC3339),
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.docs.Set(rctx, ports.CollectionAudit, ids.NewAt(now), record); err != nil {
		s.logger.WarnContext(ctx, "write audit record", "action", action, "target", target, "error", err)
	}
}
