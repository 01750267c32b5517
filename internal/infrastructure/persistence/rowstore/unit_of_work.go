package rowstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/indent-flow/internal/application/port"
)

// UnitOfWork implements port.UnitOfWork over an EntityStore. Stores that manage
// transactions commit natively; others get compensating writes on failure.
type UnitOfWork struct {
	store  port.EntityStore
	opts   Options
	logger port.Logger
}

// NewUnitOfWork creates a unit of work over the store
func NewUnitOfWork(store port.EntityStore, opts Options, logger port.Logger) *UnitOfWork {
	return &UnitOfWork{store: store, opts: opts.withDefaults(), logger: logger}
}

// Repository returns a repository for reads outside a unit of work
func (u *UnitOfWork) Repository() port.ProcurementRepository {
	return NewRepository(u.store, u.opts)
}

// Do runs fn with a repository whose writes commit together
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, repo port.ProcurementRepository) error) error {
	if tm, ok := u.store.(port.TransactionManager); ok {
		return tm.WithTransaction(ctx, func(txCtx context.Context) error {
			return fn(txCtx, NewRepository(u.store, u.opts))
		})
	}

	j := newJournal(u.store)
	if err := fn(ctx, NewRepository(j, u.opts)); err != nil {
		if rbErr := j.rollback(context.WithoutCancel(ctx)); rbErr != nil {
			if u.logger != nil {
				u.logger.Error("Compensation failed, store may be partially written",
					"error", rbErr,
					"cause", err,
				)
			}
			return fmt.Errorf("%w (compensation failed: %v)", err, rbErr)
		}
		return err
	}
	return nil
}

// journal records an undo operation for every write it forwards
type journal struct {
	inner port.EntityStore
	undo  []func(ctx context.Context) error
}

func newJournal(inner port.EntityStore) *journal {
	return &journal{inner: inner}
}

func (j *journal) GetRows(ctx context.Context, collection string) ([]port.Row, error) {
	return j.inner.GetRows(ctx, collection)
}

func (j *journal) AppendRow(ctx context.Context, collection string, row port.Row) error {
	if err := j.inner.AppendRow(ctx, collection, row); err != nil {
		return err
	}
	id := row.ID()
	j.undo = append(j.undo, func(ctx context.Context) error {
		rows, err := j.inner.GetRows(ctx, collection)
		if err != nil {
			return err
		}
		idx, current := locate(rows, id)
		if idx < 0 {
			return nil
		}
		return j.inner.DeleteRow(ctx, collection, idx, current)
	})
	return nil
}

func (j *journal) UpdateRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	previous, err := j.rowAt(ctx, collection, rowIndex)
	if err != nil {
		return err
	}
	if err := j.inner.UpdateRow(ctx, collection, rowIndex, row); err != nil {
		return err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		rows, err := j.inner.GetRows(ctx, collection)
		if err != nil {
			return err
		}
		idx, current := locate(rows, previous.ID())
		if idx < 0 {
			return fmt.Errorf("restore %s row %s: %w", collection, previous.ID(), port.ErrRowNotFound)
		}
		restored := previous.Clone()
		restored[port.ColumnVersion] = current[port.ColumnVersion]
		return j.inner.UpdateRow(ctx, collection, idx, restored)
	})
	return nil
}

func (j *journal) DeleteRow(ctx context.Context, collection string, rowIndex int, row port.Row) error {
	previous, err := j.rowAt(ctx, collection, rowIndex)
	if err != nil {
		return err
	}
	if err := j.inner.DeleteRow(ctx, collection, rowIndex, row); err != nil {
		return err
	}
	j.undo = append(j.undo, func(ctx context.Context) error {
		return j.inner.AppendRow(ctx, collection, previous)
	})
	return nil
}

func (j *journal) rowAt(ctx context.Context, collection string, rowIndex int) (port.Row, error) {
	rows, err := j.inner.GetRows(ctx, collection)
	if err != nil {
		return nil, err
	}
	if rowIndex < 0 || rowIndex >= len(rows) {
		return nil, port.ErrRowNotFound
	}
	return rows[rowIndex].Clone(), nil
}

// rollback undoes the recorded writes in reverse order
func (j *journal) rollback(ctx context.Context) error {
	var errs []error
	for i := len(j.undo) - 1; i >= 0; i-- {
		if err := j.undo[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	j.undo = nil
	return errors.Join(errs...)
}
