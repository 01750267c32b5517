package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/garyjia/indent-flow/internal/application/port"
)

type contextKey string

const txKey contextKey = "memory-tx"

// Store is an in-memory EntityStore with snapshot transactions
type Store struct {
	mu          sync.RWMutex
	txMu        sync.Mutex
	collections map[string][]port.Row
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{collections: make(map[string][]port.Row)}
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey).(bool)
	return v
}

// writeLock serializes writes with running transactions
func (s *Store) writeLock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

// GetRows returns copies of the collection's rows
func (s *Store) GetRows(ctx context.Context, collection string) ([]port.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.collections[collection]
	out := make([]port.Row, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out, nil
}

// AppendRow adds the row with version 1
func (s *Store) AppendRow(ctx context.Context, collection string, row port.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.writeLock(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := row.ID()
	if id == "" {
		return fmt.Errorf("append to %s: row has no id", collection)
	}
	for _, existing := range s.collections[collection] {
		if existing.ID() == id {
			return fmt.Errorf("append %s to %s: duplicate id: %w", id, collection, port.ErrRowConflict)
		}
	}

	stored := row.Clone()
	stored[port.ColumnVersion] = "1"
	s.collections[collection] = append(s.collections[collection], stored)
	return nil
}

// UpdateRow replaces the row if id and version still match, bumping the version
func (s *Store) UpdateRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.writeLock(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.check(collection, rowIndex, row)
	if err != nil {
		return err
	}
	version, _ := strconv.ParseInt(current[port.ColumnVersion], 10, 64)

	stored := row.Clone()
	stored[port.ColumnVersion] = strconv.FormatInt(version+1, 10)
	s.collections[collection][rowIndex] = stored
	return nil
}

// DeleteRow removes the row if id and version still match
func (s *Store) DeleteRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.writeLock(ctx)()
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.check(collection, rowIndex, row); err != nil {
		return err
	}
	rows := s.collections[collection]
	s.collections[collection] = append(rows[:rowIndex:rowIndex], rows[rowIndex+1:]...)
	return nil
}

// check verifies the row at rowIndex against the caller's id and version; mu must be held
func (s *Store) check(collection string, rowIndex int, row port.Row) (port.Row, error) {
	rows := s.collections[collection]
	if rowIndex < 0 || rowIndex >= len(rows) {
		return nil, fmt.Errorf("%s row %d: %w", collection, rowIndex, port.ErrRowNotFound)
	}
	current := rows[rowIndex]
	if current.ID() != row.ID() {
		return nil, fmt.Errorf("%s row %d holds %s, not %s: %w", collection, rowIndex, current.ID(), row.ID(), port.ErrRowConflict)
	}
	if current[port.ColumnVersion] != row[port.ColumnVersion] {
		return nil, fmt.Errorf("%s row %s at version %s, caller read %s: %w",
			collection, row.ID(), current[port.ColumnVersion], row[port.ColumnVersion], port.ErrRowConflict)
	}
	return current, nil
}

// WithTransaction runs fn with all writes restored if it fails or panics
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	return fn(context.WithValue(ctx, txKey, true))
}

func (s *Store) snapshot() map[string][]port.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(map[string][]port.Row, len(s.collections))
	for name, rows := range s.collections {
		c := make([]port.Row, len(rows))
		for i, row := range rows {
			c[i] = row.Clone()
		}
		copied[name] = c
	}
	return copied
}

func (s *Store) restore(snapshot map[string][]port.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = snapshot
}

var (
	_ port.EntityStore        = (*Store)(nil)
	_ port.TransactionManager = (*Store)(nil)
)
