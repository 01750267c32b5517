package port

import (
	"context"
	"errors"
)

// Reserved row columns. Every row carries its logical id and the version the
// caller read; adapters bump the version on write.
const (
	ColumnID      = "id"
	ColumnVersion = "version"
)

var (
	// ErrRowConflict is returned when the row at an index no longer matches the caller's id or version
	ErrRowConflict = errors.New("row changed since read")

	// ErrRowNotFound is returned when an index is out of range
	ErrRowNotFound = errors.New("row not found")
)

// Row is one record of a collection, column name to cell text
type Row map[string]string

// ID returns the logical id of the row
func (r Row) ID() string {
	return r[ColumnID]
}

// Clone returns a copy of the row
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// EntityStore is the tabular persistence contract consumed by the workflow core.
// rowIndex is a positional handle into the slice returned by GetRows.
type EntityStore interface {
	// GetRows returns all rows of the collection in position order
	GetRows(ctx context.Context, collection string) ([]Row, error)

	// AppendRow adds a row; ids are unique per collection
	AppendRow(ctx context.Context, collection string, row Row) error

	// UpdateRow replaces the row at rowIndex if its id and version still match row
	UpdateRow(ctx context.Context, collection string, rowIndex int, row Row) error

	// DeleteRow removes the row at rowIndex if its id and version still match row
	DeleteRow(ctx context.Context, collection string, rowIndex int, row Row) error
}

// TransactionManager runs fn as one atomic unit over the store.
// Adapters that cannot provide it are wrapped with compensating writes.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
