package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence in profile documents.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Destination names the screen a client navigates to after a session becomes active.
type Destination string

const (
	DestinationLogin Destination = "login"
	DestinationAdmin Destination = "admin"
	DestinationUser  Destination = "user"
)

// Home returns where a user with the given role lands after login.
// Unknown roles stay on the login screen.
func Home(role Role) Destination {
	switch role {
	case RoleAdmin:
		return DestinationAdmin
	case RoleUser:
		return DestinationUser
	default:
		return DestinationLogin
	}
}

// Profile is the user record held in the USERS collection, keyed by e-mail.
// The document store is the authority; sessions hold a cached copy.
// Field tags follow the stored document layout.
type Profile struct {
	Email      string     `json:"email"`
	FullName   string     `json:"fullname"`
	Role       Role       `json:"role"`
	Banned     bool       `json:"banned"`
	Department string     `json:"department"`
	Phone      string     `json:"phone"`
	Address    string     `json:"address"`
	Note       string     `json:"note"`
	Avatar     string     `json:"avatar"`
	BannedAt   *time.Time `json:"bannedAt,omitempty"`
	UnbannedAt *time.Time `json:"unbannedAt,omitempty"`
}

// IsAdmin reports whether the profile carries the admin role.
func (p Profile) IsAdmin() bool { return p.Role == RoleAdmin }

// ProfileFromDocument decodes profile fields from raw document data.
// Unknown fields (including the legacy plaintext password) are dropped.
func ProfileFromDocument(data map[string]any) (Profile, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Profile{}, fmt.Errorf("encode profile document: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile document: %w", err)
	}
	return p, nil
}

// Document returns the profile as document data suitable for the USERS collection.
func (p Profile) Document() (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return out, nil
}

// Credentials is the e-mail/password pair a user types in.
type Credentials struct {
	Email    string
	Password string
}

// Token is what an identity provider issues after a successful sign-in.
// Value is opaque to callers; Subject is the provider's stable user id.
type Token struct {
	ID        string
	Subject   string
	Email     string
	Value     string
	ExpiresAt time.Time
}

// IsZero reports whether no token has been issued.
func (t Token) IsZero() bool { return t.Value == "" && t.Subject == "" }

// Session is the in-memory record of who is logged in: either absent or active with a profile.
// The zero value is Absent.
type Session struct {
	profile *Profile
}

// Absent returns the empty session.
func Absent() Session { return Session{} }

// Active returns a session for the given profile.
func Active(p Profile) Session {
	cp := p
	return Session{profile: &cp}
}

// IsActive reports whether a user is logged in.
func (s Session) IsActive() bool { return s.profile != nil }

// Profile returns a copy of the active profile and whether the session is active.
func (s Session) Profile() (Profile, bool) {
	if s.profile == nil {
		return Profile{}, false
	}
	return *s.profile, true
}

// Email returns the active user's e-mail, or "" when absent.
func (s Session) Email() string {
	if s.profile == nil {
		return ""
	}
	return s.profile.Email
}

// Home returns the navigation destination for this session.
func (s Session) Home() Destination {
	if s.profile == nil {
		return DestinationLogin
	}
	return Home(s.profile.Role)
}

// String renders the session for logs without exposing contact details.
func (s Session) String() string {
	if s.profile == nil {
		return "absent"
	}
	return fmt.Sprintf("active(%s, %s)", s.profile.Email, s.profile.Role)
}
