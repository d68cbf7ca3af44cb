package config

import (
	"fmt"
	"strings"
	"time"
)

// IdentityMode selects the identity provider implementation.
type IdentityMode string

const (
	// IdentityModeLocal uses the built-in provider backed by the credentials table.
	IdentityModeLocal IdentityMode = "local"
	// IdentityModeOIDC uses an external OIDC issuer.
	IdentityModeOIDC IdentityMode = "oidc"
	// IdentityModeMock uses in-memory dev accounts (for development only).
	IdentityModeMock IdentityMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for IdentityMode.
func (m *IdentityMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "oidc", "mock":
		*m = IdentityMode(v)
		return nil
	default:
		return fmt.Errorf("invalid IdentityMode: %q (valid options: local, oidc, mock)", v)
	}
}

// OIDCConfig contains OIDC issuer configuration.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"fixdesk"`
	ClientSecret string `env:"CLIENT_SECRET"`
	Scope        string `env:"SCOPE"         envDefault:"openid email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// LocalIdentityConfig configures tokens issued by the built-in provider.
type LocalIdentityConfig struct {
	// TokenSecret signs tokens; at least 32 bytes.
	TokenSecret string        `env:"TOKEN_SECRET"`
	Issuer      string        `env:"ISSUER"       envDefault:"fixdesk"`
	TokenTTL    time.Duration `env:"TOKEN_TTL"    envDefault:"24h"`
}

// DevAuthConfig lists the accounts accepted when IDENTITY_MODE=mock.
type DevAuthConfig struct {
	// Accounts is "email:password" pairs separated by commas.
	Accounts string `env:"ACCOUNTS" envDefault:"admin@example.com:admin123,user@example.com:user123"`
}

// IdentityConfig groups all identity-provider configuration.
type IdentityConfig struct {
	Mode IdentityMode `env:"IDENTITY_MODE" envDefault:"local"`

	OIDC    OIDCConfig          `envPrefix:"OIDC_"`
	Local   LocalIdentityConfig `envPrefix:"LOCAL_IDP_"`
	DevAuth DevAuthConfig       `envPrefix:"DEV_AUTH_"`
}

// Sanitize trims string settings and restores defaults for invalid durations.
func (c *IdentityConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = IdentityModeLocal
	}
	c.OIDC.DiscoveryURL = strings.TrimSpace(c.OIDC.DiscoveryURL)
	c.OIDC.Scope = strings.TrimSpace(c.OIDC.Scope)
	c.Local.Issuer = strings.TrimSpace(c.Local.Issuer)
	if c.Local.TokenTTL <= 0 {
		c.Local.TokenTTL = 24 * time.Hour
	}
}
