package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
)

// ErrDocumentNotFound is returned when no document is indexed under an id
var ErrDocumentNotFound = errors.New("document not found")

// Entry locates a stored document
type Entry struct {
	DocumentID string
	Kind       port.DocumentKind
	OwnerID    string
	Path       string
	CreatedAt  time.Time
}

// Index records where each document was written
type Index interface {
	Put(ctx context.Context, entry Entry) error
	Lookup(ctx context.Context, documentID string) (Entry, error)
}

// Document is the envelope written for every generated document
type Document struct {
	DocumentID string            `json:"document_id"`
	Kind       port.DocumentKind `json:"kind"`
	OwnerID    string            `json:"owner_id"`
	CreatedAt  time.Time         `json:"created_at"`
	Data       json.RawMessage   `json:"data"`
}

// DocumentStore implements port.DocumentService on local files
type DocumentStore struct {
	files  *LocalFileStorage
	index  Index
	logger *zap.Logger
	now    func() time.Time
}

// NewDocumentStore creates a document store; a nil index falls back to memory
func NewDocumentStore(files *LocalFileStorage, index Index, logger *zap.Logger) *DocumentStore {
	if index == nil {
		index = NewMemoryIndex()
	}
	return &DocumentStore{
		files:  files,
		index:  index,
		logger: logger,
		now:    time.Now,
	}
}

// Store writes data under kind/owner/<id>.json and returns the document id
func (s *DocumentStore) Store(ctx context.Context, kind port.DocumentKind, ownerID string, data interface{}) (string, error) {
	if kind == "" || ownerID == "" {
		return "", fmt.Errorf("document kind and owner are required")
	}

	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s document: %w", kind, err)
	}

	doc := Document{
		DocumentID: uuid.New().String(),
		Kind:       kind,
		OwnerID:    ownerID,
		CreatedAt:  s.now().UTC(),
		Data:       body,
	}
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode document envelope: %w", err)
	}

	rel := path.Join(string(kind), ownerID, doc.DocumentID+".json")
	if err := s.files.Save(ctx, rel, content); err != nil {
		return "", err
	}

	entry := Entry{
		DocumentID: doc.DocumentID,
		Kind:       kind,
		OwnerID:    ownerID,
		Path:       rel,
		CreatedAt:  doc.CreatedAt,
	}
	if err := s.index.Put(ctx, entry); err != nil {
		s.logger.Error("Failed to index document",
			zap.String("document_id", doc.DocumentID),
			zap.Error(err))
		return "", fmt.Errorf("failed to index document: %w", err)
	}

	s.logger.Info("Document written",
		zap.String("document_id", doc.DocumentID),
		zap.String("kind", string(kind)),
		zap.String("owner_id", ownerID))

	return doc.DocumentID, nil
}

// Get reads a stored document back by id
func (s *DocumentStore) Get(ctx context.Context, documentID string) (*Document, error) {
	entry, err := s.index.Lookup(ctx, documentID)
	if err != nil {
		return nil, err
	}

	content, err := s.files.Read(ctx, entry.Path)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", documentID, err)
	}
	return &doc, nil
}

// MemoryIndex keeps document locations in process memory
type MemoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{entries: make(map[string]Entry)}
}

// Put implements Index
func (m *MemoryIndex) Put(ctx context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.DocumentID] = entry
	return nil
}

// Lookup implements Index
func (m *MemoryIndex) Lookup(ctx context.Context, documentID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[documentID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, documentID)
	}
	return entry, nil
}

var _ port.DocumentService = (*DocumentStore)(nil)
