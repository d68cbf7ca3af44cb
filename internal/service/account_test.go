package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fixdesk/fixdesk/internal/data"
	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"github.com/fixdesk/fixdesk/internal/mocks"
	fakes "github.com/fixdesk/fixdesk/internal/mocks/auth"
	"github.com/fixdesk/fixdesk/internal/ports"
	"github.com/fixdesk/fixdesk/internal/session"
)

const (
	testAdmin = "admin@example.com"
	testUser  = "user@example.com"
	testPass  = "secret1"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type accountFixture struct {
	idp      *fakes.FakeIdentityProvider
	docs     *fakes.MemoryDocumentStore
	cache    *fakes.MemoryCache
	sessions *session.Store
	svc      *AccountService
}

func newAccountFixture(t *testing.T) *accountFixture {
	t.Helper()
	f := &accountFixture{
		idp: fakes.NewFakeIdentityProvider(map[string]string{
			testAdmin: testPass,
			testUser:  testPass,
		}),
		docs:  fakes.NewMemoryDocumentStore(),
		cache: fakes.NewMemoryCache(),
	}
	f.docs.Put(ports.CollectionUsers, testAdmin, map[string]any{
		"email": testAdmin, "fullname": "Admin", "role": "admin", "banned": false,
	})
	f.docs.Put(ports.CollectionUsers, testUser, map[string]any{
		"email": testUser, "fullname": "User", "role": "user", "banned": false,
	})
	f.sessions = session.NewStore(session.StoreOptions{
		Identity:  f.idp,
		Documents: f.docs,
		Cache:     f.cache,
	})
	f.svc = NewAccountService(AccountServiceOptions{
		Identity:  f.idp,
		Documents: f.docs,
		Sessions:  f.sessions,
		Clock:     data.NewFixedTimeProvider(fixedNow),
	})
	return f
}

func (f *accountFixture) login(t *testing.T, email string) {
	t.Helper()
	require.NoError(t, f.sessions.Login(context.Background(), email, testPass))
}

func validRegistration() domainauth.Registration {
	return domainauth.Registration{
		FullName:   "New Person",
		Email:      "New@Example.com",
		Password:   "hunter22",
		Phone:      "+1 555 123 4567",
		Address:    "1 Main St",
		Department: "Support",
	}
}

func TestAccountService_CreateAccount(t *testing.T) {
	f := newAccountFixture(t)

	profile, err := f.svc.CreateAccount(context.Background(), validRegistration())

	require.NoError(t, err)
	assert.Equal(t, "new@example.com", profile.Email)
	assert.Equal(t, domainauth.RoleUser, profile.Role)
	assert.False(t, profile.Banned)

	doc, err := f.docs.Get(context.Background(), ports.CollectionUsers, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, "New Person", doc.Data["fullname"])
	assert.Equal(t, "user", doc.Data["role"])
	assert.Equal(t, "", doc.Data["note"])
	assert.Equal(t, "", doc.Data["avatar"])
	assert.NotContains(t, doc.Data, "password")

	pw, ok := f.idp.Password("new@example.com")
	require.True(t, ok)
	assert.Equal(t, "hunter22", pw)

	assert.Equal(t, 1, f.docs.Count(ports.CollectionAudit))
	assert.False(t, f.sessions.Current().IsActive(), "registration does not log in")

	// The new account can log in immediately.
	require.NoError(t, f.sessions.Login(context.Background(), "new@example.com", "hunter22"))
}

func TestAccountService_CreateAccount_Duplicate(t *testing.T) {
	f := newAccountFixture(t)
	reg := validRegistration()
	reg.Email = testUser

	_, err := f.svc.CreateAccount(context.Background(), reg)

	assert.True(t, apperrors.IsAlreadyExists(err))
}

func TestAccountService_CreateAccount_ProviderAlreadyHasEmail(t *testing.T) {
	f := newAccountFixture(t)
	reg := validRegistration()
	reg.Email = "orphan@example.com"
	_, err := f.idp.CreateAccount(context.Background(), domainauth.Credentials{Email: reg.Email, Password: "x12345"})
	require.NoError(t, err)

	_, err = f.svc.CreateAccount(context.Background(), reg)

	assert.True(t, apperrors.IsAlreadyExists(err))
	assert.Equal(t, 0, f.docs.Count(ports.CollectionAudit))
}

func TestAccountService_CreateAccount_Validation(t *testing.T) {
	f := newAccountFixture(t)
	reg := validRegistration()
	reg.Email = "new@localhost"

	_, err := f.svc.CreateAccount(context.Background(), reg)

	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))
}

func TestAccountService_CreateAccount_RollsBackOnProfileWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	idp := mocks.NewMockIdentityProvider(ctrl)
	docs := mocks.NewMockDocumentStore(ctrl)

	tok := domainauth.Token{Subject: "u9", Email: "new@example.com", Value: "jwt"}
	docs.EXPECT().Get(gomock.Any(), ports.CollectionUsers, "new@example.com").Return(ports.Document{}, ports.ErrNotFound)
	idp.EXPECT().CreateAccount(gomock.Any(), gomock.Any()).Return(tok, nil)
	docs.EXPECT().Set(gomock.Any(), ports.CollectionUsers, "new@example.com", gomock.Any()).
		Return(errors.New("connection refused"))
	idp.EXPECT().DeleteAccount(gomock.Any(), tok).Return(nil)

	svc := NewAccountService(AccountServiceOptions{
		Identity:  idp,
		Documents: docs,
		Sessions:  session.NewStore(session.StoreOptions{Identity: idp, Documents: docs, Cache: fakes.NewMemoryCache()}),
	})

	_, err := svc.CreateAccount(context.Background(), validRegistration())
	assert.True(t, apperrors.IsServiceUnavailable(err))
}

func TestAccountService_ChangePassword(t *testing.T) {
	f := newAccountFixture(t)
	f.login(t, testUser)

	require.NoError(t, f.svc.ChangePassword(context.Background(), testPass, "n3w-pass", "n3w-pass"))

	pw, _ := f.idp.Password(testUser)
	assert.Equal(t, "n3w-pass", pw)
	assert.False(t, f.sessions.Current().IsActive())
	assert.False(t, f.cache.Has(session.CacheKey))

	err := f.sessions.Login(context.Background(), testUser, testPass)
	assert.True(t, apperrors.IsInvalidCredentials(err))
	require.NoError(t, f.sessions.Login(context.Background(), testUser, "n3w-pass"))
}

func TestAccountService_ChangePassword_Failures(t *testing.T) {
	tests := []struct {
		name     string
		loggedIn bool
		current  string
		next     string
		confirm  string
		wantCode apperrors.ErrorCode
		field    string
	}{
		{name: "no session", current: testPass, next: "abcdef", confirm: "abcdef", wantCode: apperrors.ErrCodeNotAuthenticated},
		{name: "missing current", loggedIn: true, next: "abcdef", confirm: "abcdef", wantCode: apperrors.ErrCodeValidation, field: "current"},
		{name: "too short", loggedIn: true, current: testPass, next: "abc", confirm: "abc", wantCode: apperrors.ErrCodeValidation, field: "password"},
		{name: "mismatch", loggedIn: true, current: testPass, next: "abcdef", confirm: "abcdeg", wantCode: apperrors.ErrCodeValidation, field: "confirm"},
		{name: "unchanged", loggedIn: true, current: testPass, next: testPass, confirm: testPass, wantCode: apperrors.ErrCodeValidation, field: "password"},
		{name: "wrong current", loggedIn: true, current: "nope123", next: "abcdef", confirm: "abcdef", wantCode: apperrors.ErrCodeInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAccountFixture(t)
			if tt.loggedIn {
				f.login(t, testUser)
			}

			err := f.svc.ChangePassword(context.Background(), tt.current, tt.next, tt.confirm)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
			pw, _ := f.idp.Password(testUser)
			assert.Equal(t, testPass, pw)
			assert.Equal(t, tt.loggedIn, f.sessions.Current().IsActive())
		})
	}
}

func TestAccountService_ChangePassword_AfterRestore(t *testing.T) {
	f := newAccountFixture(t)
	f.login(t, testUser)

	// A restarted client has the profile but no token.
	restarted := session.NewStore(session.StoreOptions{Identity: f.idp, Documents: f.docs, Cache: f.cache})
	require.NoError(t, restarted.Initialize(context.Background()))
	svc := NewAccountService(AccountServiceOptions{Identity: f.idp, Documents: f.docs, Sessions: restarted})

	require.NoError(t, svc.ChangePassword(context.Background(), testPass, "rotated1", "rotated1"))
	pw, _ := f.idp.Password(testUser)
	assert.Equal(t, "rotated1", pw)
}

func TestAccountService_DeleteAccount_Self(t *testing.T) {
	f := newAccountFixture(t)
	f.login(t, testUser)

	require.NoError(t, f.svc.DeleteAccount(context.Background(), testUser, testPass))

	_, ok := f.idp.Password(testUser)
	assert.False(t, ok)
	_, err := f.docs.Get(context.Background(), ports.CollectionUsers, testUser)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.False(t, f.sessions.Current().IsActive())
}

func TestAccountService_DeleteAccount_ByAdmin(t *testing.T) {
	f := newAccountFixture(t)
	f.login(t, testAdmin)

	require.NoError(t, f.svc.DeleteAccount(context.Background(), testUser, testPass))

	assert.Equal(t, testAdmin, f.sessions.Current().Email())
	assert.Equal(t, 1, f.docs.Count(ports.CollectionAudit))
}

func TestAccountService_DeleteAccount_Failures(t *testing.T) {
	t.Run("not logged in", func(t *testing.T) {
		f := newAccountFixture(t)
		err := f.svc.DeleteAccount(context.Background(), testUser, testPass)
		assert.True(t, apperrors.IsNotAuthenticated(err))
	})

	t.Run("user deleting someone else", func(t *testing.T) {
		f := newAccountFixture(t)
		f.login(t, testUser)
		err := f.svc.DeleteAccount(context.Background(), testAdmin, testPass)
		assert.True(t, apperrors.IsPermissionDenied(err))
		_, ok := f.idp.Password(testAdmin)
		assert.True(t, ok)
	})

	t.Run("wrong password", func(t *testing.T) {
		f := newAccountFixture(t)
		f.login(t, testUser)
		err := f.svc.DeleteAccount(context.Background(), testUser, "wrong-1")
		assert.True(t, apperrors.IsInvalidCredentials(err))
		assert.True(t, f.sessions.Current().IsActive())
		assert.Equal(t, 2, f.docs.Count(ports.CollectionUsers))
	})
}

func TestAccountService_BanUnban(t *testing.T) {
	f := newAccountFixture(t)
	f.login(t, testAdmin)
	ctx := context.Background()

	require.NoError(t, f.svc.Ban(ctx, "USER@example.com"))

	doc, err := f.docs.Get(ctx, ports.CollectionUsers, testUser)
	require.NoError(t, err)
	assert.Equal(t, true, doc.Data["banned"])
	assert.Equal(t, "2026-04-02T09:30:00Z", doc.Data["bannedAt"])

	err = f.sessions.Login(ctx, testUser, testPass)
	assert.True(t, apperrors.IsBanned(err))
	assert.Equal(t, testAdmin, f.sessions.Current().Email(), "failed login keeps the admin session")

	require.NoError(t, f.svc.Unban(ctx, testUser))
	doc, err = f.docs.Get(ctx, ports.CollectionUsers, testUser)
	require.NoError(t, err)
	assert.Equal(t, false, doc.Data["banned"])
	assert.Equal(t, "2026-04-02T09:30:00Z", doc.Data["unbannedAt"])

	assert.Equal(t, 2, f.docs.Count(ports.CollectionAudit))
}

func TestAccountService_Ban_Failures(t *testing.T) {
	t.Run("not logged in", func(t *testing.T) {
		f := newAccountFixture(t)
		assert.True(t, apperrors.IsNotAuthenticated(f.svc.Ban(context.Background(), testUser)))
	})

	t.Run("not an admin", func(t *testing.T) {
		f := newAccountFixture(t)
		f.login(t, testUser)
		assert.True(t, apperrors.IsPermissionDenied(f.svc.Ban(context.Background(), testAdmin)))
	})

	t.Run("self", func(t *testing.T) {
		f := newAccountFixture(t)
		f.login(t, testAdmin)
		assert.True(t, apperrors.IsValidation(f.svc.Ban(context.Background(), testAdmin)))
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newAccountFixture(t)
		f.login(t, testAdmin)
		assert.True(t, apperrors.IsAccountMissing(f.svc.Ban(context.Background(), "ghost@example.com")))
	})

	t.Run("store outage", func(t *testing.T) {
		f := newAccountFixture(t)
		f.login(t, testAdmin)
		f.docs.Err = errors.New("broken pipe")
		assert.True(t, apperrors.IsServiceUnavailable(f.svc.Ban(context.Background(), testUser)))
	})
}
