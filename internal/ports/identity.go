package ports

// Package ports defines interfaces (hexagonal ports) for the external services the client
// depends on. Implementations live in internal/adapters and internal/data; orchestration
// lives in internal/session and internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
)

// Sentinel errors adapters return so callers can classify failures without
// inspecting provider-specific errors. Anything else is treated as the service being unavailable.
var (
	// ErrInvalidCredentials is returned when the provider rejects an e-mail/password pair or token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountExists is returned when creating an account whose e-mail is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrUnsupported is returned when a provider cannot perform an operation.
	ErrUnsupported = errors.New("operation not supported by identity provider")
	// ErrNotFound is returned when a document or cache entry does not exist.
	ErrNotFound = errors.New("not found")
)

// IdentityProvider authenticates e-mail/password pairs and manages the provider-side account.
type IdentityProvider interface {
	// SignIn verifies the credentials and returns an issued token.
	SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error)

	// Reauthenticate re-verifies the current user's password before a sensitive change
	// and returns a fresh token.
	Reauthenticate(ctx context.Context, tok domainauth.Token, creds domainauth.Credentials) (domainauth.Token, error)

	// UpdatePassword rotates the password of the account the token belongs to.
	UpdatePassword(ctx context.Context, tok domainauth.Token, newPassword string) error

	// DeleteAccount removes the provider-side account the token belongs to.
	DeleteAccount(ctx context.Context, tok domainauth.Token) error

	// SignOut ends the provider session. Signing out a zero token is a no-op.
	SignOut(ctx context.Context, tok domainauth.Token) error

	// CreateAccount registers new credentials and signs the new user in.
	CreateAccount(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error)
}
