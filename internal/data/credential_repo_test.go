package data

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixdesk/fixdesk/internal/ports"
)

func newCredentialRepoMock(t *testing.T) (*CredentialRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCredentialRepoWithTimeProvider(db, NewFixedTimeProvider(repoNow)), mock
}

func TestCredentialRepo_Create(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO credentials")).
		WithArgs("ann@example.com", sqlmock.AnyArg(), "$2a$hash", repoNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c, err := repo.Create(context.Background(), " Ann@Example.com ", "$2a$hash")

	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", c.Email)
	assert.Len(t, c.Subject, 36)
	assert.Equal(t, repoNow, c.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_Create_Duplicate(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	mock.ExpectExec("INSERT INTO credentials").
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (email)=(ann@example.com) already exists."})

	_, err := repo.Create(context.Background(), "ann@example.com", "$2a$hash")

	assert.ErrorIs(t, err, ports.ErrAccountExists)
}

func TestCredentialRepo_GetByEmail(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM credentials WHERE email = $1")).
		WithArgs("ann@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"email", "subject", "password_hash", "created_at", "updated_at"}).
			AddRow("ann@example.com", "9a4a1f0e-2f43-4f63-8a8e-4c1f2b6b7d10", "$2a$hash", repoNow, repoNow))

	c, err := repo.GetByEmail(context.Background(), "ANN@example.com")

	require.NoError(t, err)
	assert.Equal(t, "9a4a1f0e-2f43-4f63-8a8e-4c1f2b6b7d10", c.Subject)
	assert.Equal(t, "$2a$hash", c.PasswordHash)
}

func TestCredentialRepo_GetBySubject_NotFound(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	mock.ExpectQuery("FROM credentials WHERE subject").
		WillReturnRows(sqlmock.NewRows([]string{"email", "subject", "password_hash", "created_at", "updated_at"}))

	_, err := repo.GetBySubject(context.Background(), "missing")

	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestCredentialRepo_UpdatePasswordHash(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE credentials SET password_hash = $2")).
		WithArgs("sub-1", "$2a$new", repoNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE credentials").
		WillReturnResult(sqlmock.NewResult(0, 0))

	at, err := repo.UpdatePasswordHash(context.Background(), "sub-1", "$2a$new")
	require.NoError(t, err)
	assert.Equal(t, repoNow, at)

	_, err = repo.UpdatePasswordHash(context.Background(), "sub-2", "$2a$new")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestCredentialRepo_Delete_RevokesTokenInSameTx(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	exp := repoNow.Add(time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM credentials WHERE subject = $1")).
		WithArgs("sub-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO revoked_tokens")).
		WithArgs("jti-1", "sub-1", exp, repoNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), "sub-1", RevokedToken{ID: "jti-1", Subject: "sub-1", ExpiresAt: exp})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_Delete_MissingRollsBack(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM credentials").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), "sub-1", RevokedToken{ID: "jti-1"})

	assert.ErrorIs(t, err, ErrCredentialNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepo_RevokeAndCheck(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	exp := repoNow.Add(time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (token_id) DO NOTHING")).
		WithArgs("jti-1", "sub-1", exp, repoNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM revoked_tokens")).
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, repo.Revoke(context.Background(), RevokedToken{ID: "jti-1", Subject: "sub-1", ExpiresAt: exp}))
	revoked, err := repo.IsRevoked(context.Background(), "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.Error(t, repo.Revoke(context.Background(), RevokedToken{}))
}

func TestCredentialRepo_PurgeExpiredRevocations(t *testing.T) {
	repo, mock := newCredentialRepoMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM revoked_tokens WHERE expires_at < $1")).
		WithArgs(repoNow).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM revoked_tokens").
		WillReturnError(errors.New("boom"))

	n, err := repo.PurgeExpiredRevocations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = repo.PurgeExpiredRevocations(context.Background())
	require.Error(t, err)
}
