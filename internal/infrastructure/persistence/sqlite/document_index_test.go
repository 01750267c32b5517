package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/infrastructure/storage"
)

func TestDocumentIndex_PutLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	index := NewDocumentIndex(s.DB)

	entry := storage.Entry{
		DocumentID: "doc-1",
		Kind:       port.DocumentGRN,
		OwnerID:    "PO-0001",
		Path:       "grn/PO-0001/doc-1.json",
		CreatedAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, index.Put(ctx, entry))

	got, err := index.Lookup(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, entry.Path, got.Path)
	assert.Equal(t, port.DocumentGRN, got.Kind)
	assert.True(t, entry.CreatedAt.Equal(got.CreatedAt))

	assert.Error(t, index.Put(ctx, entry), "document ids are unique")

	_, err = index.Lookup(ctx, "doc-404")
	assert.ErrorIs(t, err, storage.ErrDocumentNotFound)
}

func TestDocumentIndex_WithDocumentStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	docs := storage.NewDocumentStore(
		storage.NewLocalFileStorage(t.TempDir(), zap.NewNop()),
		NewDocumentIndex(s.DB),
		zap.NewNop(),
	)

	id, err := docs.Store(ctx, port.DocumentPurchaseOrder, "PO-0002", map[string]string{"vendor": "V100"})
	require.NoError(t, err)

	doc, err := docs.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PO-0002", doc.OwnerID)
}
