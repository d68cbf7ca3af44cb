package ports_test

import (
	"testing"

	"github.com/fixdesk/fixdesk/internal/mocks"
	fakes "github.com/fixdesk/fixdesk/internal/mocks/auth"
	"github.com/fixdesk/fixdesk/internal/ports"
)

// This test only verifies that our test doubles conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.IdentityProvider = (*fakes.FakeIdentityProvider)(nil)
	var _ ports.DocumentStore = (*fakes.MemoryDocumentStore)(nil)
	var _ ports.LocalCache = (*fakes.MemoryCache)(nil)
	var _ ports.AttemptLimiter = fakes.AllowAll{}

	var _ ports.IdentityProvider = (*mocks.MockIdentityProvider)(nil)
	var _ ports.DocumentStore = (*mocks.MockDocumentStore)(nil)
	var _ ports.LocalCache = (*mocks.MockLocalCache)(nil)
}
