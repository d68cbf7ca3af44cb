package auth

import (
	"testing"
	"time"

	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_ZeroValueIsAbsent(t *testing.T) {
	var s Session
	assert.False(t, s.IsActive())
	_, ok := s.Profile()
	assert.False(t, ok)
	assert.Equal(t, "", s.Email())
	assert.Equal(t, DestinationLogin, s.Home())
	assert.Equal(t, "absent", s.String())
}

func TestSession_ActiveCopiesProfile(t *testing.T) {
	p := Profile{Email: "a@x.com", Role: RoleUser}
	s := Active(p)
	p.Role = RoleAdmin

	got, ok := s.Profile()
	require.True(t, ok)
	assert.Equal(t, RoleUser, got.Role)
	assert.Equal(t, DestinationUser, s.Home())
	assert.Equal(t, "active(a@x.com, user)", s.String())
}

func TestHome(t *testing.T) {
	assert.Equal(t, DestinationAdmin, Home(RoleAdmin))
	assert.Equal(t, DestinationUser, Home(RoleUser))
	assert.Equal(t, DestinationLogin, Home(Role("guest")))
}

func TestProfileFromDocument_DropsLegacyPassword(t *testing.T) {
	p, err := ProfileFromDocument(map[string]any{
		"email":      "a@x.com",
		"fullname":   "Ann",
		"role":       "user",
		"banned":     false,
		"department": "IT",
		"password":   "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", p.Email)
	assert.Equal(t, "Ann", p.FullName)
	assert.Equal(t, RoleUser, p.Role)
	assert.Equal(t, "IT", p.Department)

	doc, err := p.Document()
	require.NoError(t, err)
	assert.NotContains(t, doc, "password")
	assert.Equal(t, "a@x.com", doc["email"])
}

func TestProfileDocument_BanTimestamps(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := Profile{Email: "b@x.com", Banned: true, BannedAt: &ts}

	doc, err := p.Document()
	require.NoError(t, err)
	assert.Equal(t, true, doc["banned"])
	assert.Equal(t, "2026-03-01T10:00:00Z", doc["bannedAt"])
	assert.NotContains(t, doc, "unbannedAt")

	back, err := ProfileFromDocument(doc)
	require.NoError(t, err)
	require.NotNil(t, back.BannedAt)
	assert.True(t, back.BannedAt.Equal(ts))
}

func TestProfileFromDocument_WrongType(t *testing.T) {
	_, err := ProfileFromDocument(map[string]any{"banned": "yes"})
	require.Error(t, err)
}

func TestValidateLogin(t *testing.T) {
	require.NoError(t, ValidateLogin(Credentials{Email: "a@x.com", Password: "secret1"}))

	err := ValidateLogin(Credentials{Email: "ax.com", Password: "secret1"})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))

	err = ValidateLogin(Credentials{Email: "a@x.com", Password: "12345"})
	assert.Equal(t, "password", apperrors.GetField(err))
}

func TestValidateNewPassword(t *testing.T) {
	require.NoError(t, ValidateNewPassword("secret2", "secret2"))
	assert.Equal(t, "password", apperrors.GetField(ValidateNewPassword("abc", "abc")))
	assert.Equal(t, "confirm", apperrors.GetField(ValidateNewPassword("secret2", "secret3")))
}

func TestValidateRegistration(t *testing.T) {
	valid := Registration{
		FullName: "Ann Nguyen",
		Email:    "ann@example.com",
		Password: "secret1",
		Phone:    "+84 912-345-678",
	}
	require.NoError(t, ValidateRegistration(valid))

	tests := []struct {
		name  string
		edit  func(r *Registration)
		field string
	}{
		{name: "missing name", edit: func(r *Registration) { r.FullName = "  " }, field: "fullname"},
		{name: "no at sign", edit: func(r *Registration) { r.Email = "ann.example.com" }, field: "email"},
		{name: "bare tld domain", edit: func(r *Registration) { r.Email = "ann@com" }, field: "email"},
		{name: "short password", edit: func(r *Registration) { r.Password = "123" }, field: "password"},
		{name: "bad phone", edit: func(r *Registration) { r.Phone = "call me" }, field: "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.edit(&r)
			err := ValidateRegistration(r)
			require.Error(t, err)
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
}

func TestTokenIsZero(t *testing.T) {
	assert.True(t, Token{}.IsZero())
	assert.False(t, Token{Subject: "u1"}.IsZero())
}
