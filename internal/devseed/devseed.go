// Package devseed loads sample profiles, devices, error reports and login
// credentials for local development.
package devseed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fixdesk/fixdesk/internal/adapters/localidp"
	"github.com/fixdesk/fixdesk/internal/data"
	"github.com/fixdesk/fixdesk/internal/ports"
)

//go:embed fixtures.yaml
var fixturesYAML []byte

// Account is a seeded login.
type Account struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Fixtures is the seed data set.
type Fixtures struct {
	Accounts  []Account                              `yaml:"accounts"`
	Documents map[string]map[string]map[string]any `yaml:"documents"`
}

// CredentialCreator is implemented by *data.CredentialRepo.
type CredentialCreator interface {
	Create(ctx context.Context, email, passwordHash string) (data.Credential, error)
}

// BatchSetter is implemented by stores that can write a whole collection at once,
// such as *data.DocumentRepo.
type BatchSetter interface {
	SetMany(ctx context.Context, collection string, docs map[string]map[string]any) error
}

// Services bundles the dependencies needed for development seeding.
type Services struct {
	Documents ports.DocumentStore
	// Credentials is nil when the identity provider keeps its own accounts.
	Credentials CredentialCreator
}

// Result counts what Run wrote.
type Result struct {
	Documents   int
	Credentials int
	Failures    int
}

// DefaultFixtures parses the embedded seed data.
func DefaultFixtures() (Fixtures, error) {
	return ParseFixtures(fixturesYAML)
}

// ParseFixtures decodes seed data from YAML.
func ParseFixtures(raw []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	if len(f.Documents) == 0 {
		return Fixtures{}, errors.New("fixtures contain no documents")
	}
	return f, nil
}

// Run writes the fixtures. Documents are upserted and existing credentials are
// left alone, so running twice is harmless. Individual failures are logged and
// counted; Run only errors when nothing could be written.
func Run(ctx context.Context, svcs Services, f Fixtures, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var res Result
	res.Documents, res.Failures = seedDocuments(ctx, svcs.Documents, f.Documents, logger)

	if svcs.Credentials != nil {
		n, failed := seedCredentials(ctx, svcs.Credentials, f.Accounts, logger)
		res.Credentials = n
		res.Failures += failed
	}

	if res.Documents == 0 && res.Failures > 0 {
		return res, fmt.Errorf("seeding failed: %d failures", res.Failures)
	}
	logger.InfoContext(ctx, "development seed complete",
		"documents", res.Documents,
		"credentials", res.Credentials,
		"failures", res.Failures,
	)
	return res, nil
}

func seedDocuments(
	ctx context.Context,
	docs ports.DocumentStore,
	byCollection map[string]map[string]map[string]any,
	logger *slog.Logger,
) (int, int) {
	written, failures := 0, 0
	batcher, canBatch := docs.(BatchSetter)
	for _, collection := range sortedKeys(byCollection) {
		entries := byCollection[collection]
		if canBatch {
			err := batcher.SetMany(ctx, collection, entries)
			if err == nil {
				written += len(entries)
				continue
			}
			logger.WarnContext(ctx, "batch seed failed; writing documents one by one",
				"collection", collection, "error", err)
		}
		for _, key := range sortedKeys(entries) {
			if err := docs.Set(ctx, collection, key, entries[key]); err != nil {
				logger.WarnContext(ctx, "failed to seed document",
					"collection", collection, "key", key, "error", err)
				failures++
				continue
			}
			written++
		}
	}
	return written, failures
}

func seedCredentials(ctx context.Context, creds CredentialCreator, accounts []Account, logger *slog.Logger) (int, int) {
	created, failures := 0, 0
	for _, a := range accounts {
		hash, err := localidp.HashPassword(a.Password)
		if err != nil {
			logger.WarnContext(ctx, "failed to hash seed password", "email", a.Email, "error", err)
			failures++
			continue
		}
		if _, err := creds.Create(ctx, a.Email, hash); err != nil {
			if errors.Is(err, ports.ErrAccountExists) {
				continue
			}
			logger.WarnContext(ctx, "failed to seed credential", "email", a.Email, "error", err)
			failures++
			continue
		}
		created++
	}
	return created, failures
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
