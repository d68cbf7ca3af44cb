package devauth

// Package devauth provides a simple, config-driven IdentityProvider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	"github.com/fixdesk/fixdesk/internal/ports"
)

// Account is a development login.
type Account struct {
	Email    string
	Password string
}

// Config controls the dev identity provider behavior.
type Config struct {
	Accounts        []Account
	SessionDuration time.Duration // default 8h when zero
}

type account struct {
	subject  string
	password string
}

// Provider implements ports.IdentityProvider in memory. Accounts and tokens are
// lost when the process exits.
type Provider struct {
	mu              sync.Mutex
	accounts        map[string]account
	tokens          map[string]string // token value -> email
	sessionDuration time.Duration
	now             func() time.Time
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider constructs a dev identity provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if len(cfg.Accounts) == 0 {
		return nil, errors.New("dev auth: at least one account is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	p := &Provider{
		accounts:        make(map[string]account, len(cfg.Accounts)),
		tokens:          make(map[string]string),
		sessionDuration: dur,
		now:             time.Now,
	}
	for _, a := range cfg.Accounts {
		email := normalize(a.Email)
		if email == "" || a.Password == "" {
			return nil, errors.New("dev auth: account e-mail and password are required")
		}
		p.accounts[email] = account{subject: "dev-" + email, password: a.Password}
	}
	return p, nil
}

// ParseAccounts reads "email:password" pairs separated by commas.
func ParseAccounts(s string) ([]Account, error) {
	var out []Account
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, password, ok := strings.Cut(pair, ":")
		if !ok || email == "" || password == "" {
			return nil, fmt.Errorf("dev auth: malformed account %q", pair)
		}
		out = append(out, Account{Email: email, Password: password})
	}
	return out, nil
}

// SignIn checks the configured password and issues a random token.
func (p *Provider) SignIn(_ context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email := normalize(creds.Email)
	acct, ok := p.accounts[email]
	if !ok || acct.password != creds.Password {
		return domainauth.Token{}, ports.ErrInvalidCredentials
	}
	return p.issueLocked(email, acct)
}

// Reauthenticate re-checks the password of the token's account.
func (p *Provider) Reauthenticate(
	ctx context.Context,
	tok domainauth.Token,
	creds domainauth.Credentials,
) (domainauth.Token, error) {
	if !tok.IsZero() {
		email, err := p.owner(tok)
		if err != nil {
			return domainauth.Token{}, err
		}
		if email != normalize(creds.Email) {
			return domainauth.Token{}, ports.ErrInvalidCredentials
		}
	}
	return p.SignIn(ctx, creds)
}

// UpdatePassword replaces the password and drops every token of the account.
func (p *Provider) UpdatePassword(_ context.Context, tok domainauth.Token, newPassword string) error {
	email, err := p.owner(tok)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	acct := p.accounts[email]
	acct.password = newPassword
	p.accounts[email] = acct
	p.dropTokensLocked(email)
	return nil
}

// DeleteAccount removes the account and its tokens.
func (p *Provider) DeleteAccount(_ context.Context, tok domainauth.Token) error {
	email, err := p.owner(tok)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.accounts, email)
	p.dropTokensLocked(email)
	return nil
}

// SignOut forgets the token.
func (p *Provider) SignOut(_ context.Context, tok domainauth.Token) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tokens, tok.Value)
	return nil
}

// CreateAccount adds an account and signs it in.
func (p *Provider) CreateAccount(_ context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email := normalize(creds.Email)
	if _, ok := p.accounts[email]; ok {
		return domainauth.Token{}, ports.ErrAccountExists
	}
	acct := account{subject: "dev-" + email, password: creds.Password}
	p.accounts[email] = acct
	return p.issueLocked(email, acct)
}

func (p *Provider) owner(tok domainauth.Token) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	email, ok := p.tokens[tok.Value]
	if !ok {
		return "", ports.ErrInvalidCredentials
	}
	return email, nil
}

func (p *Provider) issueLocked(email string, acct account) (domainauth.Token, error) {
	value, err := randomString(32)
	if err != nil {
		return domainauth.Token{}, fmt.Errorf("generate token: %w", err)
	}
	p.tokens[value] = email
	return domainauth.Token{
		ID:        value[:12],
		Subject:   acct.subject,
		Email:     email,
		Value:     value,
		ExpiresAt: p.now().Add(p.sessionDuration),
	}, nil
}

func (p *Provider) dropTokensLocked(email string) {
	for v, e := range p.tokens {
		if e == email {
			delete(p.tokens, v)
		}
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	// Compute number of random bytes needed to produce at least n base64 URL chars
	bLen := (n*3 + 3) / 4
	b := make([]byte, bLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	return s[:n], nil
}
