package excel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/port"
)

type contextKey string

const txKey contextKey = "excel-tx"

const defaultSheet = "Sheet1"

// Store keeps each collection in a worksheet of one workbook: row 1 is the
// header, data rows follow in position order.
type Store struct {
	path    string
	columns map[string][]string
	logger  *zap.Logger

	mu   sync.Mutex
	txMu sync.Mutex
	file *excelize.File
}

// Option configures the store
type Option func(*Store)

// WithColumns sets the header row used when a collection sheet is created
func WithColumns(columns map[string][]string) Option {
	return func(s *Store) {
		s.columns = columns
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open loads the workbook at path, or starts an empty one. An empty path keeps
// the workbook in memory only.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:    path,
		columns: map[string][]string{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			f, err := excelize.OpenFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
			}
			s.file = f
			s.logger.Info("Workbook opened", zap.String("path", path), zap.Strings("sheets", f.GetSheetList()))
			return s, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat workbook %s: %w", path, err)
		}
	}

	s.file = excelize.NewFile()
	return s, nil
}

// Close releases the workbook
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey).(bool)
	return v
}

// header returns the sheet's header row, creating the sheet when missing; mu must be held
func (s *Store) header(collection string, row port.Row) ([]string, error) {
	if idx, err := s.file.GetSheetIndex(collection); err == nil && idx >= 0 {
		rows, err := s.file.GetRows(collection)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", collection, err)
		}
		if len(rows) > 0 {
			return s.extendHeader(collection, rows[0], row)
		}
	} else if err := s.createSheet(collection); err != nil {
		return nil, err
	}

	header := append([]string{}, s.columns[collection]...)
	if len(header) == 0 {
		header = []string{port.ColumnID, port.ColumnVersion}
	}
	return s.extendHeader(collection, header, row)
}

func (s *Store) createSheet(collection string) error {
	sheets := s.file.GetSheetList()
	if len(sheets) == 1 && sheets[0] == defaultSheet {
		if rows, _ := s.file.GetRows(defaultSheet); len(rows) == 0 {
			if err := s.file.SetSheetName(defaultSheet, collection); err != nil {
				return fmt.Errorf("failed to rename default sheet: %w", err)
			}
			return nil
		}
	}
	if _, err := s.file.NewSheet(collection); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", collection, err)
	}
	return nil
}

// extendHeader appends columns present in row but missing from header, and writes it back
func (s *Store) extendHeader(collection string, header []string, row port.Row) ([]string, error) {
	known := make(map[string]bool, len(header))
	for _, h := range header {
		known[h] = true
	}
	extra := make([]string, 0)
	for k := range row {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	header = append(header, extra...)

	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = h
	}
	if err := s.file.SetSheetRow(collection, "A1", &cells); err != nil {
		return nil, fmt.Errorf("failed to write header of %s: %w", collection, err)
	}
	return header, nil
}

// readRows decodes the data rows of a sheet; mu must be held
func (s *Store) readRows(collection string) ([]port.Row, error) {
	if idx, err := s.file.GetSheetIndex(collection); err != nil || idx < 0 {
		return []port.Row{}, nil
	}
	raw, err := s.file.GetRows(collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", collection, err)
	}
	if len(raw) == 0 {
		return []port.Row{}, nil
	}

	header := raw[0]
	rows := make([]port.Row, 0, len(raw)-1)
	for _, cells := range raw[1:] {
		row := make(port.Row, len(header))
		for i, h := range header {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// writeRow writes the row at the 1-based sheet row number; mu must be held
func (s *Store) writeRow(collection string, sheetRow int, row port.Row) error {
	header, err := s.header(collection, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(header))
	for i, h := range header {
		cells[i] = row[h]
	}
	cell, err := excelize.CoordinatesToCellName(1, sheetRow)
	if err != nil {
		return err
	}
	if err := s.file.SetSheetRow(collection, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", collection, sheetRow, err)
	}
	return nil
}

// check verifies the row at rowIndex; mu must be held
func (s *Store) check(collection string, rowIndex int, row port.Row) (port.Row, error) {
	rows, err := s.readRows(collection)
	if err != nil {
		return nil, err
	}
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

// persist saves the workbook unless a transaction will save it on commit; mu must be held
func (s *Store) persist(ctx context.Context) error {
	if inTx(ctx) || s.path == "" {
		return nil
	}
	if err := s.file.SaveAs(s.path); err != nil {
		s.logger.Error("Failed to save workbook", zap.String("path", s.path), zap.Error(err))
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (s *Store) lockWrite(ctx context.Context) func() {
	if inTx(ctx) {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

// GetRows returns the collection's rows in sheet order
func (s *Store) GetRows(ctx context.Context, collection string) ([]port.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRows(collection)
}

// AppendRow writes the row after the last data row with version 1
func (s *Store) AppendRow(ctx context.Context, collection string, row port.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if row.ID() == "" {
		return fmt.Errorf("append to %s: row has no id", collection)
	}
	defer s.lockWrite(ctx)()

	rows, err := s.readRows(collection)
	if err != nil {
		return err
	}
	for _, existing := range rows {
		if existing.ID() == row.ID() {
			return fmt.Errorf("append %s to %s: duplicate id: %w", row.ID(), collection, port.ErrRowConflict)
		}
	}

	stored := row.Clone()
	stored[port.ColumnVersion] = "1"
	if err := s.writeRow(collection, len(rows)+2, stored); err != nil {
		return err
	}
	return s.persist(ctx)
}

// UpdateRow rewrites the row if id and version still match, bumping the version
func (s *Store) UpdateRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lockWrite(ctx)()

	current, err := s.check(collection, rowIndex, row)
	if err != nil {
		return err
	}
	version, _ := strconv.ParseInt(current[port.ColumnVersion], 10, 64)

	stored := row.Clone()
	stored[port.ColumnVersion] = strconv.FormatInt(version+1, 10)
	for k := range current {
		if _, ok := stored[k]; !ok {
			stored[k] = ""
		}
	}
	if err := s.writeRow(collection, rowIndex+2, stored); err != nil {
		return err
	}
	return s.persist(ctx)
}

// DeleteRow removes the sheet row if id and version still match
func (s *Store) DeleteRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lockWrite(ctx)()

	if _, err := s.check(collection, rowIndex, row); err != nil {
		return err
	}
	if err := s.file.RemoveRow(collection, rowIndex+2); err != nil {
		return fmt.Errorf("failed to remove %s row %d: %w", collection, rowIndex, err)
	}
	return s.persist(ctx)
}

// WithTransaction snapshots the workbook, runs fn, and restores the snapshot on failure.
// The workbook is saved once on commit.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	buf, err := s.file.WriteToBuffer()
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to snapshot workbook: %w", err)
	}
	snapshot := append([]byte(nil), buf.Bytes()...)

	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	if err = fn(context.WithValue(ctx, txKey, true)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(context.Background())
}

func (s *Store) restore(snapshot []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := excelize.OpenReader(bytes.NewReader(snapshot))
	if err != nil {
		s.logger.Error("Failed to restore workbook snapshot", zap.Error(err))
		return
	}
	_ = s.file.Close()
	s.file = f
}

var (
	_ port.EntityStore        = (*Store)(nil)
	_ port.TransactionManager = (*Store)(nil)
)
