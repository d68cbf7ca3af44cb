// Package localidp is the built-in identity provider: bcrypt password hashes in
// Postgres and HS256 signed tokens.
package localidp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fixdesk/fixdesk/internal/data"
	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	"github.com/fixdesk/fixdesk/internal/ports"
)

const defaultIssuer = "fixdesk"

// CredentialStore is the persistence the provider needs. *data.CredentialRepo implements it.
type CredentialStore interface {
	Create(ctx context.Context, email, passwordHash string) (data.Credential, error)
	GetByEmail(ctx context.Context, email string) (data.Credential, error)
	GetBySubject(ctx context.Context, subject string) (data.Credential, error)
	UpdatePasswordHash(ctx context.Context, subject, passwordHash string) (time.Time, error)
	Delete(ctx context.Context, subject string, tok data.RevokedToken) error
	Revoke(ctx context.Context, tok data.RevokedToken) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Config configures token issuance.
type Config struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost int
}

// ProviderOptions groups dependencies for Provider.
type ProviderOptions struct {
	Store  CredentialStore
	Config Config
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Claims are the registered JWT claims plus the e-mail the token was issued for
// and a stamp derived from the password hash current at issue time.
type Claims struct {
	Email string `json:"email"`
	Stamp string `json:"pst"`
	jwt.RegisteredClaims
}

// Provider implements ports.IdentityProvider.
type Provider struct {
	store  CredentialStore
	secret []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider validates the config and returns a provider.
func NewProvider(opts ProviderOptions) (*Provider, error) {
	if opts.Store == nil {
		return nil, errors.New("credential store is required")
	}
	cfg := opts.Config
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = defaultIssuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.Cost == 0 {
		cfg.Cost = bcrypt.DefaultCost
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		store:  opts.Store,
		secret: cfg.Secret,
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		cost:   cfg.Cost,
		now:    now,
	}, nil
}

// SignIn verifies the password and issues a token.
func (p *Provider) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	cred, err := p.store.GetByEmail(ctx, creds.Email)
	if errors.Is(err, data.ErrCredentialNotFound) {
		// Spend the same time as a real comparison so unknown e-mails are not distinguishable.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
		return domainauth.Token{}, ports.ErrInvalidCredentials
	}
	if err != nil {
		return domainauth.Token{}, fmt.Errorf("load credential: %w", err)
	}
	if err := VerifyPassword(cred.PasswordHash, creds.Password); err != nil {
		return domainauth.Token{}, ports.ErrInvalidCredentials
	}
	return p.issue(cred)
}

// Reauthenticate re-checks the password of the token's account. A zero token is
// accepted and the account is taken from creds.Email.
func (p *Provider) Reauthenticate(
	ctx context.Context,
	tok domainauth.Token,
	creds domainauth.Credentials,
) (domainauth.Token, error) {
	if !tok.IsZero() {
		claims, err := p.verify(ctx, tok)
		if err != nil {
			return domainauth.Token{}, err
		}
		if !strings.EqualFold(claims.Email, creds.Email) {
			return domainauth.Token{}, ports.ErrInvalidCredentials
		}
	}
	return p.SignIn(ctx, creds)
}

// UpdatePassword rotates the hash. Tokens issued before the change stop verifying.
func (p *Provider) UpdatePassword(ctx context.Context, tok domainauth.Token, newPassword string) error {
	claims, err := p.verify(ctx, tok)
	if err != nil {
		return err
	}
	hash, err := p.hash(newPassword)
	if err != nil {
		return err
	}
	if _, err := p.store.UpdatePasswordHash(ctx, claims.Subject, hash); err != nil {
		if errors.Is(err, data.ErrCredentialNotFound) {
			return ports.ErrInvalidCredentials
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DeleteAccount removes the credential and revokes the token.
func (p *Provider) DeleteAccount(ctx context.Context, tok domainauth.Token) error {
	claims, err := p.verify(ctx, tok)
	if err != nil {
		return err
	}
	err = p.store.Delete(ctx, claims.Subject, revocation(claims))
	if errors.Is(err, data.ErrCredentialNotFound) {
		return ports.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// SignOut revokes the token. Zero, expired and already invalid tokens are ignored.
func (p *Provider) SignOut(ctx context.Context, tok domainauth.Token) error {
	if tok.Value == "" {
		return nil
	}
	claims, err := p.parse(tok.Value)
	if err != nil {
		return nil
	}
	if err := p.store.Revoke(ctx, revocation(claims)); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// CreateAccount stores a new credential and signs the account in.
func (p *Provider) CreateAccount(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	hash, err := p.hash(creds.Password)
	if err != nil {
		return domainauth.Token{}, err
	}
	cred, err := p.store.Create(ctx, creds.Email, hash)
	if err != nil {
		if errors.Is(err, ports.ErrAccountExists) {
			return domainauth.Token{}, err
		}
		return domainauth.Token{}, fmt.Errorf("create account: %w", err)
	}
	return p.issue(cred)
}

func (p *Provider) issue(cred data.Credential) (domainauth.Token, error) {
	now := p.now().UTC()
	claims := Claims{
		Email: cred.Email,
		Stamp: p.stamp(cred.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   cred.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return domainauth.Token{}, fmt.Errorf("sign token: %w", err)
	}
	return domainauth.Token{
		ID:        claims.ID,
		Subject:   cred.Subject,
		Email:     cred.Email,
		Value:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *Provider) parse(value string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(value, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return p.secret, nil
	},
		jwt.WithIssuer(p.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return nil, ports.ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ports.ErrInvalidCredentials
	}
	return claims, nil
}

// verify parses the token and checks it was neither revoked nor issued for a
// password hash that has since been replaced.
func (p *Provider) verify(ctx context.Context, tok domainauth.Token) (*Claims, error) {
	claims, err := p.parse(tok.Value)
	if err != nil {
		return nil, err
	}
	revoked, err := p.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check token: %w", err)
	}
	if revoked {
		return nil, ports.ErrInvalidCredentials
	}
	cred, err := p.store.GetBySubject(ctx, claims.Subject)
	if errors.Is(err, data.ErrCredentialNotFound) {
		return nil, ports.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("check token: %w", err)
	}
	// iat has second precision, so a change within the issuing second is only
	// visible through the stamp.
	if !hmac.Equal([]byte(claims.Stamp), []byte(p.stamp(cred.PasswordHash))) {
		return nil, ports.ErrInvalidCredentials
	}
	return claims, nil
}

func (p *Provider) hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// stamp keys the hash with the token secret so the claim reveals nothing about it.
// bcrypt salts every hash, so each rotation yields a new stamp.
func (p *Provider) stamp(passwordHash string) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write([]byte(passwordHash))
	return hex.EncodeToString(mac.Sum(nil)[:12])
}

func revocation(c *Claims) data.RevokedToken {
	return data.RevokedToken{ID: c.ID, Subject: c.Subject, ExpiresAt: c.ExpiresAt.Time}
}
