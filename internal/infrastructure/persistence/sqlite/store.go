package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
)

// Store implements port.EntityStore over the entity_rows table.
// Row position is the insertion order within a collection.
type Store struct {
	*DB
}

// NewStore creates a store on an opened database
func NewStore(db *DB) *Store {
	return &Store{DB: db}
}

type storedRow struct {
	position int64
	id       string
	version  int64
	data     string
}

func encodeCells(row port.Row) (string, error) {
	cells := make(map[string]string, len(row))
	for k, v := range row {
		if k == port.ColumnID || k == port.ColumnVersion {
			continue
		}
		cells[k] = v
	}
	data, err := json.Marshal(cells)
	if err != nil {
		return "", fmt.Errorf("failed to encode row: %w", err)
	}
	return string(data), nil
}

func (s storedRow) toRow() (port.Row, error) {
	row := port.Row{}
	if s.data != "" {
		if err := json.Unmarshal([]byte(s.data), &row); err != nil {
			return nil, fmt.Errorf("failed to decode row %s: %w", s.id, err)
		}
	}
	row[port.ColumnID] = s.id
	row[port.ColumnVersion] = strconv.FormatInt(s.version, 10)
	return row, nil
}

// GetRows returns the collection's rows in position order
func (s *Store) GetRows(ctx context.Context, collection string) ([]port.Row, error) {
	query := `
		SELECT position, row_id, version, data
		FROM entity_rows
		WHERE collection = ?
		ORDER BY position
	`

	rows, err := s.querier(ctx).QueryContext(ctx, query, collection)
	if err != nil {
		s.logger.Error("Failed to read rows", zap.String("collection", collection), zap.Error(err))
		return nil, fmt.Errorf("failed to read %s: %w", collection, err)
	}
	defer rows.Close()

	result := make([]port.Row, 0)
	for rows.Next() {
		var sr storedRow
		if err := rows.Scan(&sr.position, &sr.id, &sr.version, &sr.data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		row, err := sr.toRow()
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// AppendRow inserts the row at the end of the collection with version 1
func (s *Store) AppendRow(ctx context.Context, collection string, row port.Row) error {
	if row.ID() == "" {
		return fmt.Errorf("append to %s: row has no id", collection)
	}
	data, err := encodeCells(row)
	if err != nil {
		return err
	}

	query := `INSERT INTO entity_rows (collection, row_id, version, data) VALUES (?, ?, 1, ?)`
	if _, err := s.querier(ctx).ExecContext(ctx, query, collection, row.ID(), data); err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("append %s to %s: duplicate id: %w", row.ID(), collection, port.ErrRowConflict)
		}
		s.logger.Error("Failed to append row", zap.String("collection", collection), zap.Error(err))
		return fmt.Errorf("failed to append to %s: %w", collection, err)
	}
	return nil
}

// rowAt resolves a positional index to the stored row
func (s *Store) rowAt(ctx context.Context, collection string, rowIndex int) (storedRow, error) {
	if rowIndex < 0 {
		return storedRow{}, fmt.Errorf("%s row %d: %w", collection, rowIndex, port.ErrRowNotFound)
	}

	query := `
		SELECT position, row_id, version
		FROM entity_rows
		WHERE collection = ?
		ORDER BY position
		LIMIT 1 OFFSET ?
	`

	var sr storedRow
	err := s.querier(ctx).QueryRowContext(ctx, query, collection, rowIndex).Scan(&sr.position, &sr.id, &sr.version)
	if err == sql.ErrNoRows {
		return storedRow{}, fmt.Errorf("%s row %d: %w", collection, rowIndex, port.ErrRowNotFound)
	}
	if err != nil {
		return storedRow{}, fmt.Errorf("failed to locate %s row %d: %w", collection, rowIndex, err)
	}
	return sr, nil
}

// check compares the stored row with the caller's id and version
func check(collection string, sr storedRow, row port.Row) error {
	if sr.id != row.ID() {
		return fmt.Errorf("%s row holds %s, not %s: %w", collection, sr.id, row.ID(), port.ErrRowConflict)
	}
	if strconv.FormatInt(sr.version, 10) != row[port.ColumnVersion] {
		return fmt.Errorf("%s row %s at version %d, caller read %s: %w",
			collection, sr.id, sr.version, row[port.ColumnVersion], port.ErrRowConflict)
	}
	return nil
}

// UpdateRow replaces the row if id and version still match, bumping the version
func (s *Store) UpdateRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	sr, err := s.rowAt(ctx, collection, rowIndex)
	if err != nil {
		return err
	}
	if err := check(collection, sr, row); err != nil {
		return err
	}
	data, err := encodeCells(row)
	if err != nil {
		return err
	}

	query := `
		UPDATE entity_rows
		SET data = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE position = ? AND version = ?
	`

	result, err := s.querier(ctx).ExecContext(ctx, query, data, sr.position, sr.version)
	if err != nil {
		s.logger.Error("Failed to update row", zap.String("collection", collection), zap.Error(err))
		return fmt.Errorf("failed to update %s row %s: %w", collection, sr.id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s row %s changed during update: %w", collection, sr.id, port.ErrRowConflict)
	}
	return nil
}

// DeleteRow removes the row if id and version still match
func (s *Store) DeleteRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	sr, err := s.rowAt(ctx, collection, rowIndex)
	if err != nil {
		return err
	}
	if err := check(collection, sr, row); err != nil {
		return err
	}

	result, err := s.querier(ctx).ExecContext(ctx,
		`DELETE FROM entity_rows WHERE position = ? AND version = ?`, sr.position, sr.version)
	if err != nil {
		s.logger.Error("Failed to delete row", zap.String("collection", collection), zap.Error(err))
		return fmt.Errorf("failed to delete %s row %s: %w", collection, sr.id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s row %s changed during delete: %w", collection, sr.id, port.ErrRowConflict)
	}
	return nil
}

var _ port.EntityStore = (*Store)(nil)
