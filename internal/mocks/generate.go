// Package mocks provides gomock mocks for the client's port interfaces.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the
// identity provider, document store and local cache ports. Hand-written in-memory
// doubles live in the auth subpackage.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	idp := mocks.NewMockIdentityProvider(ctrl)
//	idp.EXPECT().SignIn(gomock.Any(), gomock.Any()).Return(tok, nil)
package mocks

// This creates MockIdentityProvider with methods for all IdentityProvider interface methods:
// SignIn, Reauthenticate, UpdatePassword, DeleteAccount, SignOut, CreateAccount
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=identity_provider_mock.go github.com/fixdesk/fixdesk/internal/ports IdentityProvider

// This creates MockDocumentStore with methods for all DocumentStore interface methods:
// Get, Query, Set, Update, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=document_store_mock.go github.com/fixdesk/fixdesk/internal/ports DocumentStore

// This creates MockLocalCache with methods for all LocalCache interface methods:
// Read, Write, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=local_cache_mock.go github.com/fixdesk/fixdesk/internal/ports LocalCache
