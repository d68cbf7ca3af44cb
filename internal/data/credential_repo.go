package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fixdesk/fixdesk/internal/data/pgxutil"
	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"github.com/fixdesk/fixdesk/internal/ports"
)

// ErrCredentialNotFound is returned when no credential row matches.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential is a password hash row of the built-in identity provider.
type Credential struct {
	Email        string
	Subject      string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RevokedToken identifies a signed-out token until it expires.
type RevokedToken struct {
	ID        string
	Subject   string
	ExpiresAt time.Time
}

const (
	credentialColumns      = `email, subject, password_hash, created_at, updated_at`
	credentialByEmailQuery = `SELECT ` + credentialColumns + ` FROM credentials WHERE email = $1`
	credentialBySubject    = `SELECT ` + credentialColumns + ` FROM credentials WHERE subject = $1`
	credentialInsertQuery  = `
		INSERT INTO credentials (email, subject, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)`
	credentialUpdateHash = `
		UPDATE credentials SET password_hash = $2, updated_at = $3 WHERE subject = $1`
	credentialDeleteQuery = `DELETE FROM credentials WHERE subject = $1`
	revokeTokenQuery      = `
		INSERT INTO revoked_tokens (token_id, subject, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING`
	tokenRevokedQuery = `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token_id = $1)`
	purgeRevokedQuery = `DELETE FROM revoked_tokens WHERE expires_at < $1`
)

// CredentialRepo stores password hashes and revoked token ids.
type CredentialRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCredentialRepo creates a new CredentialRepo with real time provider.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewCredentialRepoWithTimeProvider creates a new CredentialRepo with a custom time provider (useful for tests).
func NewCredentialRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *CredentialRepo {
	return &CredentialRepo{DB: db, timeProvider: tp}
}

// Create inserts a credential with a fresh subject id. A taken e-mail yields ports.ErrAccountExists.
func (r *CredentialRepo) Create(ctx context.Context, email, passwordHash string) (Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || passwordHash == "" {
		return Credential{}, apperrors.Validation("email and password hash are required")
	}

	now := r.timeProvider.Now().UTC()
	c := Credential{
		Email:        email,
		Subject:      uuid.NewString(),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.DB.ExecContext(ctx, credentialInsertQuery, c.Email, c.Subject, c.PasswordHash, now); err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsAlreadyExists(mapped) {
			return Credential{}, ports.ErrAccountExists
		}
		return Credential{}, fmt.Errorf("create credential: %w", mapped)
	}
	return c, nil
}

// GetByEmail returns the credential for email or ErrCredentialNotFound.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (Credential, error) {
	return r.getOne(ctx, credentialByEmailQuery, strings.ToLower(strings.TrimSpace(email)))
}

// GetBySubject returns the credential for a subject id or ErrCredentialNotFound.
func (r *CredentialRepo) GetBySubject(ctx context.Context, subject string) (Credential, error) {
	return r.getOne(ctx, credentialBySubject, subject)
}

func (r *CredentialRepo) getOne(ctx context.Context, query, arg string) (Credential, error) {
	var c Credential
	err := r.DB.QueryRowContext(ctx, query, arg).
		Scan(&c.Email, &c.Subject, &c.PasswordHash, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrCredentialNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("get credential: %w", apperrors.MapDBError(err))
	}
	return c, nil
}

// UpdatePasswordHash replaces the hash and bumps updated_at, which invalidates
// tokens issued earlier.
func (r *CredentialRepo) UpdatePasswordHash(ctx context.Context, subject, passwordHash string) (time.Time, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, credentialUpdateHash, subject, passwordHash, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("update credential: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("update credential: rows affected: %w", err)
	}
	if n == 0 {
		return time.Time{}, ErrCredentialNotFound
	}
	return now, nil
}

// Delete removes the credential and revokes the token used to authorize the
// deletion in one transaction.
func (r *CredentialRepo) Delete(ctx context.Context, subject string, tok RevokedToken) error {
	now := r.timeProvider.Now().UTC()
	return pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, credentialDeleteQuery, subject)
			if err != nil {
				return fmt.Errorf("delete credential: %w", apperrors.MapDBError(err))
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete credential: rows affected: %w", err)
			}
			if n == 0 {
				return ErrCredentialNotFound
			}
			if tok.ID == "" {
				return nil
			}
			if _, err := tx.ExecContext(ctx, revokeTokenQuery, tok.ID, tok.Subject, tok.ExpiresAt, now); err != nil {
				return fmt.Errorf("revoke token: %w", apperrors.MapDBError(err))
			}
			return nil
		},
	})
}

// Revoke records a signed-out token. Revoking twice is not an error.
func (r *CredentialRepo) Revoke(ctx context.Context, tok RevokedToken) error {
	if tok.ID == "" {
		return apperrors.ValidationField("token_id", "token id is required")
	}
	now := r.timeProvider.Now().UTC()
	if _, err := r.DB.ExecContext(ctx, revokeTokenQuery, tok.ID, tok.Subject, tok.ExpiresAt, now); err != nil {
		return fmt.Errorf("revoke token: %w", apperrors.MapDBError(err))
	}
	return nil
}

// IsRevoked reports whether the token id was signed out.
func (r *CredentialRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	if err := r.DB.QueryRowContext(ctx, tokenRevokedQuery, tokenID).Scan(&revoked); err != nil {
		return false, fmt.Errorf("check revoked token: %w", apperrors.MapDBError(err))
	}
	return revoked, nil
}

// PurgeExpiredRevocations drops revocations of tokens that have expired anyway.
func (r *CredentialRepo) PurgeExpiredRevocations(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, purgeRevokedQuery, r.timeProvider.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: rows affected: %w", err)
	}
	return n, nil
}
