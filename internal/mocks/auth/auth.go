package auth

// Package auth contains simple hand-written test doubles for the identity, document and cache ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"sync"
	"time"

	domainauth "github.com/fixdesk/fixdesk/internal/domain/auth"
	"github.com/fixdesk/fixdesk/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*FakeIdentityProvider)(nil)
	_ ports.DocumentStore    = (*MemoryDocumentStore)(nil)
	_ ports.LocalCache       = (*MemoryCache)(nil)
	_ ports.AttemptLimiter   = AllowAll{}
)

// FakeIdentityProvider keeps e-mail/password pairs in memory and records calls.
// Set a *Func field to override a method.
type FakeIdentityProvider struct {
	SignInFunc  func(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error)
	SignOutFunc func(ctx context.Context, tok domainauth.Token) error

	mu        sync.Mutex
	passwords map[string]string
	seq       int

	SignInCalls  int
	SignOutCalls int
}

// NewFakeIdentityProvider creates a provider that accepts the given e-mail → password pairs.
func NewFakeIdentityProvider(accounts map[string]string) *FakeIdentityProvider {
	pw := make(map[string]string, len(accounts))
	for email, p := range accounts {
		pw[domainauth.NormalizeEmail(email)] = p
	}
	return &FakeIdentityProvider{passwords: pw}
}

func (f *FakeIdentityProvider) SignIn(ctx context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	f.mu.Lock()
	f.SignInCalls++
	fn := f.SignInFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, creds)
	}
	return f.check(creds)
}

func (f *FakeIdentityProvider) Reauthenticate(
	_ context.Context,
	tok domainauth.Token,
	creds domainauth.Credentials,
) (domainauth.Token, error) {
	if creds.Email == "" {
		creds.Email = tok.Email
	}
	return f.check(creds)
}

func (f *FakeIdentityProvider) UpdatePassword(_ context.Context, tok domainauth.Token, newPassword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := domainauth.NormalizeEmail(tok.Email)
	if _, ok := f.passwords[email]; !ok {
		return ports.ErrInvalidCredentials
	}
	f.passwords[email] = newPassword
	return nil
}

func (f *FakeIdentityProvider) DeleteAccount(_ context.Context, tok domainauth.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := domainauth.NormalizeEmail(tok.Email)
	if _, ok := f.passwords[email]; !ok {
		return ports.ErrInvalidCredentials
	}
	delete(f.passwords, email)
	return nil
}

func (f *FakeIdentityProvider) SignOut(ctx context.Context, tok domainauth.Token) error {
	f.mu.Lock()
	f.SignOutCalls++
	fn := f.SignOutFunc
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, tok)
	}
	return nil
}

func (f *FakeIdentityProvider) CreateAccount(_ context.Context, creds domainauth.Credentials) (domainauth.Token, error) {
	f.mu.Lock()
	email := domainauth.NormalizeEmail(creds.Email)
	if _, ok := f.passwords[email]; ok {
		f.mu.Unlock()
		return domainauth.Token{}, ports.ErrAccountExists
	}
	f.passwords[email] = creds.Password
	f.mu.Unlock()
	return f.check(creds)
}

// Password returns the stored password for email (test inspection).
func (f *FakeIdentityProvider) Password(email string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.passwords[domainauth.NormalizeEmail(email)]
	return p, ok
}

// Calls returns the number of SignIn and SignOut calls so far.
func (f *FakeIdentityProvider) Calls() (signIns, signOuts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.SignInCalls, f.SignOutCalls
}

func (f *FakeIdentityProvider) check(creds domainauth.Credentials) (domainauth.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := domainauth.NormalizeEmail(creds.Email)
	want, ok := f.passwords[email]
	if !ok || want != creds.Password {
		return domainauth.Token{}, ports.ErrInvalidCredentials
	}
	f.seq++
	return domainauth.Token{
		ID:        fmt.Sprintf("tok-%d", f.seq),
		Subject:   "uid-" + email,
		Email:     email,
		Value:     fmt.Sprintf("token-%s-%d", email, f.seq),
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

// MemoryDocumentStore is an in-memory document store for unit tests.
type MemoryDocumentStore struct {
	// Err, when set, is returned by every operation.
	Err error

	mu   sync.Mutex
	docs map[string]map[string]map[string]any

	GetCalls int
}

// NewMemoryDocumentStore creates an empty store.
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]map[string]map[string]any)}
}

func (m *MemoryDocumentStore) Get(_ context.Context, collection, key string) (ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.Err != nil {
		return ports.Document{}, m.Err
	}
	data, ok := m.docs[collection][key]
	if !ok {
		return ports.Document{}, ports.ErrNotFound
	}
	return ports.Document{Collection: collection, Key: key, Data: maps.Clone(data)}, nil
}

func (m *MemoryDocumentStore) Query(_ context.Context, collection, field string, value any) ([]ports.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []ports.Document
	for key, data := range m.docs[collection] {
		if v, ok := data[field]; ok && reflect.DeepEqual(v, value) {
			out = append(out, ports.Document{Collection: collection, Key: key, Data: maps.Clone(data)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryDocumentStore) Set(_ context.Context, collection, key string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]map[string]any)
	}
	m.docs[collection][key] = maps.Clone(data)
	return nil
}

func (m *MemoryDocumentStore) Update(_ context.Context, collection, key string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	data, ok := m.docs[collection][key]
	if !ok {
		return ports.ErrNotFound
	}
	maps.Copy(data, patch)
	return nil
}

func (m *MemoryDocumentStore) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.docs[collection], key)
	return nil
}

// Put seeds a document without going through the error hook.
func (m *MemoryDocumentStore) Put(collection, key string, data map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]map[string]any)
	}
	m.docs[collection][key] = maps.Clone(data)
}

// Count returns the number of documents in collection.
func (m *MemoryDocumentStore) Count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[collection])
}

// Gets returns how many Get calls were made.
func (m *MemoryDocumentStore) Gets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.GetCalls
}

// MemoryCache is an in-memory LocalCache for unit tests.
type MemoryCache struct {
	// WriteErr and DeleteErr, when set, are returned by the matching operation.
	WriteErr  error
	DeleteErr error

	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

func (c *MemoryCache) Read(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (c *MemoryCache) Write(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteErr != nil {
		return c.WriteErr
	}
	c.entries[key] = append([]byte(nil), value...)
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeleteErr != nil {
		return c.DeleteErr
	}
	delete(c.entries, key)
	return nil
}

// Has reports whether key is present.
func (c *MemoryCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// SetFailures replaces the write and delete error hooks.
func (c *MemoryCache) SetFailures(writeErr, deleteErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WriteErr = writeErr
	c.DeleteErr = deleteErr
}

// AllowAll is an AttemptLimiter that never throttles.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string) (bool, error) { return true, nil }
