package ports

import (
	"context"
	"time"
)

// Collection names used by the client.
const (
	CollectionUsers   = "USERS"
	CollectionDevices = "DEVICES"
	CollectionErrors  = "ERROR"
	CollectionAudit   = "AUDIT"
)

// Document is a keyed record in a collection. Data holds JSON-compatible values.
type Document struct {
	Collection string
	Key        string
	Data       map[string]any
	UpdatedAt  time.Time
}

// DocumentStore is a keyed document database with simple equality filters.
type DocumentStore interface {
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)

	// Query returns every document in collection whose field equals value, ordered by key.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)

	// Set creates or replaces the document.
	Set(ctx context.Context, collection, key string, data map[string]any) error

	// Update merges patch into an existing document or returns ErrNotFound.
	Update(ctx context.Context, collection, key string, patch map[string]any) error

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, key string) error
}
