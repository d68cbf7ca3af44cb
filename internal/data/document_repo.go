package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fixdesk/fixdesk/internal/data/pgxutil"
	apperrors "github.com/fixdesk/fixdesk/internal/errors"
	"github.com/fixdesk/fixdesk/internal/ports"
)

const (
	documentGetQuery = `
		SELECT data, updated_at FROM documents
		WHERE collection = $1 AND key = $2`
	documentQueryQuery = `
		SELECT key, data, updated_at FROM documents
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY key`
	documentUpsertQuery = `
		INSERT INTO documents (collection, key, data, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, $4, $4)
		ON CONFLICT (collection, key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	documentMergeQuery = `
		UPDATE documents SET data = data || $3::jsonb, updated_at = $4
		WHERE collection = $1 AND key = $2`
	documentDeleteQuery = `
		DELETE FROM documents WHERE collection = $1 AND key = $2`
)

// DocumentRepo is a ports.DocumentStore over a Postgres JSONB table.
type DocumentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

var _ ports.DocumentStore = (*DocumentRepo)(nil)

// NewDocumentRepo creates a new DocumentRepo with real time provider.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{DB: db, timeProvider: &RealTimeProvider{}}
}

// NewDocumentRepoWithTimeProvider creates a new DocumentRepo with a custom time provider (useful for tests).
func NewDocumentRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *DocumentRepo {
	return &DocumentRepo{DB: db, timeProvider: tp}
}

// Get returns the document or ports.ErrNotFound.
func (r *DocumentRepo) Get(ctx context.Context, collection, key string) (ports.Document, error) {
	if err := validateRef(collection, key); err != nil {
		return ports.Document{}, err
	}

	var (
		raw       []byte
		updatedAt time.Time
	)
	err := r.DB.QueryRowContext(ctx, documentGetQuery, collection, key).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ports.Document{}, ports.ErrNotFound
	}
	if err != nil {
		return ports.Document{}, fmt.Errorf("get document %s/%s: %w", collection, key, apperrors.MapDBError(err))
	}

	data, err := decodeData(raw)
	if err != nil {
		return ports.Document{}, fmt.Errorf("get document %s/%s: %w", collection, key, err)
	}
	return ports.Document{Collection: collection, Key: key, Data: data, UpdatedAt: updatedAt}, nil
}

// Query returns the documents whose field equals value, ordered by key. Equality is
// JSONB containment, so for an array-valued field a scalar value matches any element.
func (r *DocumentRepo) Query(ctx context.Context, collection, field string, value any) ([]ports.Document, error) {
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(field) == "" {
		return nil, apperrors.Validation("collection and field are required")
	}
	filter, err := json.Marshal(map[string]any{field: value})
	if err != nil {
		return nil, fmt.Errorf("encode filter: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, documentQueryQuery, collection, string(filter))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, apperrors.MapDBError(err))
	}
	defer rows.Close()

	var out []ports.Document
	for rows.Next() {
		var (
			key       string
			raw       []byte
			updatedAt time.Time
		)
		if err := rows.Scan(&key, &raw, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan %s document: %w", collection, err)
		}
		data, err := decodeData(raw)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", collection, err)
		}
		out = append(out, ports.Document{Collection: collection, Key: key, Data: data, UpdatedAt: updatedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, apperrors.MapDBError(err))
	}
	return out, nil
}

// Set creates or replaces the document.
func (r *DocumentRepo) Set(ctx context.Context, collection, key string, data map[string]any) error {
	if err := validateRef(collection, key); err != nil {
		return err
	}
	raw, err := encodeData(data)
	if err != nil {
		return err
	}

	now := r.timeProvider.Now().UTC()
	if _, err := r.DB.ExecContext(ctx, documentUpsertQuery, collection, key, raw, now); err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, key, apperrors.MapDBError(err))
	}
	return nil
}

// SetMany upserts every document of one collection in a single transaction,
// sent to the server as one pgx batch. Keys are written in no particular order.
func (r *DocumentRepo) SetMany(ctx context.Context, collection string, docs map[string]map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	now := r.timeProvider.Now().UTC()
	batch := &pgx.Batch{}
	for key, data := range docs {
		if err := validateRef(collection, key); err != nil {
			return err
		}
		raw, err := encodeData(data)
		if err != nil {
			return err
		}
		batch.Queue(documentUpsertQuery, collection, key, raw, now)
	}

	err := pgxutil.WithPgxTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("set %d %s documents: %w", len(docs), collection, apperrors.MapDBError(err))
	}
	return nil
}

// Update merges the top-level keys of patch into an existing document.
func (r *DocumentRepo) Update(ctx context.Context, collection, key string, patch map[string]any) error {
	if err := validateRef(collection, key); err != nil {
		return err
	}
	raw, err := encodeData(patch)
	if err != nil {
		return err
	}

	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, documentMergeQuery, collection, key, raw, now)
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, key, apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s/%s: rows affected: %w", collection, key, err)
	}
	if n == 0 {
		return ports.ErrNotFound
	}
	return nil
}

// Delete removes the document. Missing documents are not an error.
func (r *DocumentRepo) Delete(ctx context.Context, collection, key string) error {
	if err := validateRef(collection, key); err != nil {
		return err
	}
	if _, err := r.DB.ExecContext(ctx, documentDeleteQuery, collection, key); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, apperrors.MapDBError(err))
	}
	return nil
}

func validateRef(collection, key string) error {
	if strings.TrimSpace(collection) == "" {
		return apperrors.ValidationField("collection", "collection is required")
	}
	if strings.TrimSpace(key) == "" {
		return apperrors.ValidationField("key", "document key is required")
	}
	return nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return string(raw), nil
}

func decodeData(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}
