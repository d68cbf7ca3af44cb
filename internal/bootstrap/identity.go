package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fixdesk/fixdesk/config"
	"github.com/fixdesk/fixdesk/internal/adapters/devauth"
	"github.com/fixdesk/fixdesk/internal/adapters/localidp"
	"github.com/fixdesk/fixdesk/internal/adapters/oidc"
	"github.com/fixdesk/fixdesk/internal/data"
	"github.com/fixdesk/fixdesk/internal/ports"
)

// IdentityDeps contains what the identity provider may need.
type IdentityDeps struct {
	Identity config.IdentityConfig
	// DB backs the local provider's credentials; unused by the other modes.
	DB     *sql.DB
	IsDev  bool
	Logger *slog.Logger
}

// Identity is the selected provider plus, in local mode, the credential repo
// used for seeding and maintenance.
type Identity struct {
	Provider    ports.IdentityProvider
	Credentials *data.CredentialRepo
}

// NewIdentityProvider builds the identity provider for the configured mode.
func NewIdentityProvider(ctx context.Context, deps IdentityDeps) (Identity, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch deps.Identity.Mode {
	case config.IdentityModeMock:
		return buildDevIdentity(deps, logger)
	case config.IdentityModeOIDC:
		return buildOIDCIdentity(ctx, deps.Identity.OIDC)
	case config.IdentityModeLocal, "":
		return buildLocalIdentity(deps)
	default:
		return Identity{}, fmt.Errorf("unknown identity mode %q", deps.Identity.Mode)
	}
}

func buildDevIdentity(deps IdentityDeps, logger *slog.Logger) (Identity, error) {
	if !deps.IsDev {
		logger.Warn("mock identity provider selected outside development mode")
	}
	accounts, err := devauth.ParseAccounts(deps.Identity.DevAuth.Accounts)
	if err != nil {
		return Identity{}, err
	}
	prov, err := devauth.NewProvider(devauth.Config{Accounts: accounts})
	if err != nil {
		return Identity{}, fmt.Errorf("create dev identity provider: %w", err)
	}
	return Identity{Provider: prov}, nil
}

func buildOIDCIdentity(ctx context.Context, cfg config.OIDCConfig) (Identity, error) {
	if cfg.DiscoveryURL == "" || cfg.ClientID == "" {
		return Identity{}, errors.New("oidc identity mode requires OIDC_DISCOVERY_URL and OIDC_CLIENT_ID")
	}
	prov, err := oidc.NewProvider(ctx, oidc.ProviderConfig{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scope:        cfg.Scope,
		DiscoveryURL: cfg.DiscoveryURL,
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create oidc identity provider: %w", err)
	}
	return Identity{Provider: prov}, nil
}

func buildLocalIdentity(deps IdentityDeps) (Identity, error) {
	if deps.DB == nil {
		return Identity{}, errors.New("local identity mode requires a database")
	}
	repo := data.NewCredentialRepo(deps.DB)
	prov, err := localidp.NewProvider(localidp.ProviderOptions{
		Store: repo,
		Config: localidp.Config{
			Secret:   []byte(deps.Identity.Local.TokenSecret),
			Issuer:   deps.Identity.Local.Issuer,
			TokenTTL: deps.Identity.Local.TokenTTL,
		},
	})
	if err != nil {
		return Identity{}, fmt.Errorf("create local identity provider: %w", err)
	}
	return Identity{Provider: prov, Credentials: repo}, nil
}
