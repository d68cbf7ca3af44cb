package oidc

// Package oidc signs users in against an external OpenID Connect provider using the
// resource owner password grant.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	"github.com/fixdesk/fixdesk/internal/ports"
)

// Provider implements ports.IdentityProvider on top of an OIDC issuer. Account
// management stays with the issuer, so mutations return ports.ErrUnsupported.
type Provider struct {
	config        *oauth2.Config
	httpClient    *http.Client
	revocationURL string

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var _ ports.IdentityProvider = (*Provider)(nil)

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a client with a 30s timeout
}

// DiscoveryDocument represents the fields of the OIDC discovery document the provider reads.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
}

// NewProvider fetches the discovery document and builds the provider.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	p := &Provider{httpClient: httpClient}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	var extra DiscoveryDocument
	if err := op.Claims(&extra); err != nil {
		return nil, fmt.Errorf("oidc discovery claims: %w", err)
	}
	p.revocationURL = extra.RevocationEndpoint

	scope := config.Scope
	if scope == "" {
		scope = "openid email"
	}
	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       strings.Fields(scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// SignIn exchanges the e-mail/password pair for tokens and identifies the user
// from the ID token, falling back to the userinfo endpoint.
func (p *Provider) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	tok, err := p.config.PasswordCredentialsToken(ctx, creds.Email, creds.Password)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && (re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_request") {
			return domainauth.Token{}, ports.ErrInvalidCredentials
		}
		return domainauth.Token{}, fmt.Errorf("password grant: %w", err)
	}

	fields, err := p.extractFromIDToken(ctx, tok)
	if err != nil {
		return domainauth.Token{}, fmt.Errorf("extract id_token: %w", err)
	}
	if fields.email == "" || fields.subject == "" {
		if fillErr := p.fillFromUserInfo(ctx, tok.AccessToken, &fields); fillErr != nil {
			return domainauth.Token{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.subject == "" {
		return domainauth.Token{}, errors.New("issuer returned no subject")
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = fields.expiresAt
	}
	email := fields.email
	if email == "" {
		email = creds.Email
	}
	return domainauth.Token{
		ID:        fields.tokenID,
		Subject:   fields.subject,
		Email:     strings.ToLower(email),
		Value:     tok.AccessToken,
		ExpiresAt: expiresAt,
	}, nil
}

// Reauthenticate repeats the password grant and checks it resolves to the same subject.
func (p *Provider) Reauthenticate(
	ctx context.Context,
	tok domainauth.Token,
	creds domainauth.Credentials,
) (domainauth.Token, error) {
	fresh, err := p.SignIn(ctx, creds)
	if err != nil {
		return domainauth.Token{}, err
	}
	if !tok.IsZero() && tok.Subject != "" && tok.Subject != fresh.Subject {
		_ = p.SignOut(ctx, fresh)
		return domainauth.Token{}, ports.ErrInvalidCredentials
	}
	return fresh, nil
}

// UpdatePassword is managed by the issuer.
func (p *Provider) UpdatePassword(context.Context, domainauth.Token, string) error {
	return ports.ErrUnsupported
}

// DeleteAccount is managed by the issuer.
func (p *Provider) DeleteAccount(context.Context, domainauth.Token) error {
	return ports.ErrUnsupported
}

// CreateAccount is managed by the issuer.
func (p *Provider) CreateAccount(context.Context, domainauth.Credentials) (domainauth.Token, error) {
	return domainauth.Token{}, ports.ErrUnsupported
}

// SignOut revokes the access token when the issuer advertises a revocation endpoint.
func (p *Provider) SignOut(ctx context.Context, tok domainauth.Token) error {
	if tok.Value == "" || p.revocationURL == "" {
		return nil
	}
	form := url.Values{
		"token":           {tok.Value},
		"token_type_hint": {"access_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.config.ClientID), url.QueryEscape(p.config.ClientSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// UserInfo represents the user information from the OIDC userinfo endpoint.
type UserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Mail    string `json:"mail"`
}

func (p *Provider) getUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return nil, fmt.Errorf("fetch user info: %w", err)
	}
	var userInfo UserInfo
	if claimsErr := ui.Claims(&userInfo); claimsErr != nil {
		return nil, fmt.Errorf("decode user info: %w", claimsErr)
	}
	return &userInfo, nil
}

type idFields struct {
	subject   string
	email     string
	tokenID   string
	expiresAt time.Time
}

func (p *Provider) extractFromIDToken(ctx context.Context, tok *oauth2.Token) (idFields, error) {
	var f idFields
	if !p.hasOpenIDScope() {
		return f, nil
	}
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return f, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return f, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return f, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	f = mapIDTokenClaims(claims)
	f.expiresAt = idTok.Expiry
	return f, nil
}

func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, f *idFields) error {
	ui, err := p.getUserInfo(ctx, accessToken)
	if err != nil {
		return err
	}
	fillFromUserInfoClaims(f, *ui)
	return nil
}

// idTokenClaims covers the standard claims plus the AD/ADFS "mail" spelling.
type idTokenClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Mail  string `json:"mail"`
	JTI   string `json:"jti"`
}

func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		subject: c.Sub,
		email:   firstNonEmpty(c.Email, c.Mail),
		tokenID: c.JTI,
	}
}

// fillFromUserInfoClaims fills missing fields from a UserInfo payload.
func fillFromUserInfoClaims(f *idFields, ui UserInfo) {
	if f.subject == "" {
		f.subject = ui.Subject
	}
	if f.email == "" {
		f.email = firstNonEmpty(ui.Email, ui.Mail)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (p *Provider) hasOpenIDScope() bool {
	for _, sc := range p.config.Scopes {
		if sc == "openid" {
			return true
		}
	}
	return false
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
