package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/infrastructure/storage"
)

// DocumentIndex implements storage.Index over the documents table
type DocumentIndex struct {
	*DB
}

// NewDocumentIndex creates a document index on an opened database
func NewDocumentIndex(db *DB) *DocumentIndex {
	return &DocumentIndex{DB: db}
}

// Put records a document location
func (i *DocumentIndex) Put(ctx context.Context, entry storage.Entry) error {
	query := `
		INSERT INTO documents (document_id, kind, owner_id, path, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := i.querier(ctx).ExecContext(ctx, query,
		entry.DocumentID,
		string(entry.Kind),
		entry.OwnerID,
		entry.Path,
		entry.CreatedAt,
	)
	if err != nil {
		i.logger.Error("Failed to index document",
			zap.String("document_id", entry.DocumentID),
			zap.Error(err))
		return fmt.Errorf("failed to index document: %w", err)
	}

	return nil
}

// Lookup finds a document location by id
func (i *DocumentIndex) Lookup(ctx context.Context, documentID string) (storage.Entry, error) {
	query := `
		SELECT document_id, kind, owner_id, path, created_at
		FROM documents
		WHERE document_id = ?
	`

	var entry storage.Entry
	var kind string
	err := i.querier(ctx).QueryRowContext(ctx, query, documentID).Scan(
		&entry.DocumentID,
		&kind,
		&entry.OwnerID,
		&entry.Path,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Entry{}, fmt.Errorf("%w: %s", storage.ErrDocumentNotFound, documentID)
	}
	if err != nil {
		return storage.Entry{}, fmt.Errorf("failed to look up document %s: %w", documentID, err)
	}

	entry.Kind = port.DocumentKind(kind)
	return entry, nil
}

var _ storage.Index = (*DocumentIndex)(nil)
