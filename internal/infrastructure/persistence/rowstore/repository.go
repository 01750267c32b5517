package rowstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Options control identifier allocation
type Options struct {
	IndentPrefix        string
	PurchaseOrderPrefix string
	IDPadding           int
}

// DefaultOptions yields IND-0001 and PO-0001 style ids
func DefaultOptions() Options {
	return Options{IndentPrefix: "IND-", PurchaseOrderPrefix: "PO-", IDPadding: 4}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.IndentPrefix == "" {
		o.IndentPrefix = d.IndentPrefix
	}
	if o.PurchaseOrderPrefix == "" {
		o.PurchaseOrderPrefix = d.PurchaseOrderPrefix
	}
	if o.IDPadding <= 0 {
		o.IDPadding = d.IDPadding
	}
	return o
}

// repository implements port.ProcurementRepository over an EntityStore
type repository struct {
	store port.EntityStore
	opts  Options
}

// NewRepository creates a repository over the store. Writes made through it are
// not atomic on their own; use UnitOfWork to group them.
func NewRepository(store port.EntityStore, opts Options) port.ProcurementRepository {
	return &repository{store: store, opts: opts.withDefaults()}
}

// storeError classifies adapter failures into the workflow taxonomy
func storeError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		return err
	}
	if errors.Is(err, port.ErrRowConflict) || errors.Is(err, port.ErrRowNotFound) {
		return workflow.Conflict(err, format, args...)
	}
	return workflow.Upstream(err, format, args...)
}

// locate finds the position of the row with the given id
func locate(rows []port.Row, id string) (int, port.Row) {
	for i, row := range rows {
		if row.ID() == id {
			return i, row
		}
	}
	return -1, nil
}

// nextID allocates prefix + zero-padded (max + 1), skipping ids already present
func (r *repository) nextID(ctx context.Context, collection, prefix string) (string, error) {
	rows, err := r.store.GetRows(ctx, collection)
	if err != nil {
		return "", storeError(err, "read %s", collection)
	}

	existing := make(map[string]bool, len(rows))
	highest := 0
	for _, row := range rows {
		id := row.ID()
		existing[id] = true
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(id, prefix)); err == nil && n > highest {
			highest = n
		}
	}

	for n := highest + 1; ; n++ {
		id := fmt.Sprintf("%s%0*d", prefix, r.opts.IDPadding, n)
		if !existing[id] {
			return id, nil
		}
	}
}

// NextIndentID allocates the next indent id
func (r *repository) NextIndentID(ctx context.Context) (string, error) {
	return r.nextID(ctx, entity.CollectionIndents, r.opts.IndentPrefix)
}

// NextPurchaseOrderID allocates the next purchase order id
func (r *repository) NextPurchaseOrderID(ctx context.Context) (string, error) {
	return r.nextID(ctx, entity.CollectionPurchaseOrders, r.opts.PurchaseOrderPrefix)
}

// loadSteps returns step records grouped by entity id, ordered by seq
func (r *repository) loadSteps(ctx context.Context, entityID string) (map[string][]entity.StepRecord, error) {
	rows, err := r.store.GetRows(ctx, entity.CollectionSteps)
	if err != nil {
		return nil, storeError(err, "read steps")
	}

	steps := make(map[string][]entity.StepRecord)
	for _, row := range rows {
		if entityID != "" && row[colEntityID] != entityID {
			continue
		}
		rec, err := decodeStep(row)
		if err != nil {
			return nil, workflow.Upstream(err, "decode step row")
		}
		steps[rec.EntityID] = append(steps[rec.EntityID], rec)
	}
	for id := range steps {
		records := steps[id]
		sort.SliceStable(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	}
	return steps, nil
}

func (r *repository) appendSteps(ctx context.Context, entityID string, records []entity.StepRecord) error {
	for _, rec := range records {
		rec.EntityID = entityID
		row, err := encodeStep(rec)
		if err != nil {
			return workflow.Upstream(err, "encode step")
		}
		if err := r.store.AppendRow(ctx, entity.CollectionSteps, row); err != nil {
			return storeError(err, "append step %d of %s", rec.Seq, entityID)
		}
	}
	return nil
}

func (r *repository) deleteSteps(ctx context.Context, entityID string) error {
	for {
		rows, err := r.store.GetRows(ctx, entity.CollectionSteps)
		if err != nil {
			return storeError(err, "read steps")
		}
		idx := -1
		for i, row := range rows {
			if row[colEntityID] == entityID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		if err := r.store.DeleteRow(ctx, entity.CollectionSteps, idx, rows[idx]); err != nil {
			return storeError(err, "delete step of %s", entityID)
		}
	}
}

// CreateIndent inserts the header and its step records
func (r *repository) CreateIndent(ctx context.Context, indent *entity.Indent) error {
	indent.Version = 0
	row, err := encodeIndent(indent)
	if err != nil {
		return workflow.Upstream(err, "encode indent")
	}
	if err := r.store.AppendRow(ctx, entity.CollectionIndents, row); err != nil {
		return storeError(err, "create indent %s", indent.ID)
	}
	indent.Version = 1

	if err := r.appendSteps(ctx, indent.ID, indent.History.Records); err != nil {
		return err
	}
	indent.PersistedSteps = indent.History.Len()
	return nil
}

// GetIndent loads the header and the full ledger
func (r *repository) GetIndent(ctx context.Context, id string) (*entity.Indent, error) {
	rows, err := r.store.GetRows(ctx, entity.CollectionIndents)
	if err != nil {
		return nil, storeError(err, "read indents")
	}
	_, row := locate(rows, id)
	if row == nil {
		return nil, workflow.NotFound("indent %s not found", id)
	}

	indent, err := decodeIndent(row)
	if err != nil {
		return nil, workflow.Upstream(err, "decode indent %s", id)
	}
	steps, err := r.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	indent.History = entity.StepHistory{Records: steps[id]}
	indent.PersistedSteps = indent.History.Len()
	return indent, nil
}

// ListIndents loads every indent with its ledger, in row order
func (r *repository) ListIndents(ctx context.Context) ([]*entity.Indent, error) {
	rows, err := r.store.GetRows(ctx, entity.CollectionIndents)
	if err != nil {
		return nil, storeError(err, "read indents")
	}
	steps, err := r.loadSteps(ctx, "")
	if err != nil {
		return nil, err
	}

	indents := make([]*entity.Indent, 0, len(rows))
	for _, row := range rows {
		indent, err := decodeIndent(row)
		if err != nil {
			return nil, workflow.Upstream(err, "decode indent row")
		}
		indent.History = entity.StepHistory{Records: steps[indent.ID]}
		indent.PersistedSteps = indent.History.Len()
		indents = append(indents, indent)
	}
	return indents, nil
}

// SaveIndent updates the header with a version check and appends new step records
func (r *repository) SaveIndent(ctx context.Context, indent *entity.Indent) error {
	rows, err := r.store.GetRows(ctx, entity.CollectionIndents)
	if err != nil {
		return storeError(err, "read indents")
	}
	idx, _ := locate(rows, indent.ID)
	if idx < 0 {
		return workflow.NotFound("indent %s not found", indent.ID)
	}

	row, err := encodeIndent(indent)
	if err != nil {
		return workflow.Upstream(err, "encode indent")
	}
	if err := r.store.UpdateRow(ctx, entity.CollectionIndents, idx, row); err != nil {
		return storeError(err, "update indent %s", indent.ID)
	}
	indent.Version++

	if err := r.appendSteps(ctx, indent.ID, indent.History.Since(indent.PersistedSteps)); err != nil {
		return err
	}
	indent.PersistedSteps = indent.History.Len()
	return nil
}

// DeleteIndent removes the header (version checked) and its ledger
func (r *repository) DeleteIndent(ctx context.Context, indent *entity.Indent) error {
	rows, err := r.store.GetRows(ctx, entity.CollectionIndents)
	if err != nil {
		return storeError(err, "read indents")
	}
	idx, _ := locate(rows, indent.ID)
	if idx < 0 {
		return workflow.NotFound("indent %s not found", indent.ID)
	}

	row, err := encodeIndent(indent)
	if err != nil {
		return workflow.Upstream(err, "encode indent")
	}
	if err := r.store.DeleteRow(ctx, entity.CollectionIndents, idx, row); err != nil {
		return storeError(err, "delete indent %s", indent.ID)
	}
	return r.deleteSteps(ctx, indent.ID)
}

// CreatePurchaseOrder inserts the header and its step records
func (r *repository) CreatePurchaseOrder(ctx context.Context, po *entity.PurchaseOrder) error {
	po.Version = 0
	row, err := encodePurchaseOrder(po)
	if err != nil {
		return workflow.Upstream(err, "encode purchase order")
	}
	if err := r.store.AppendRow(ctx, entity.CollectionPurchaseOrders, row); err != nil {
		return storeError(err, "create purchase order %s", po.ID)
	}
	po.Version = 1

	if err := r.appendSteps(ctx, po.ID, po.History.Records); err != nil {
		return err
	}
	po.PersistedSteps = po.History.Len()
	return nil
}

// GetPurchaseOrder loads the header and the full ledger
func (r *repository) GetPurchaseOrder(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	rows, err := r.store.GetRows(ctx, entity.CollectionPurchaseOrders)
	if err != nil {
		return nil, storeError(err, "read purchase orders")
	}
	_, row := locate(rows, id)
	if row == nil {
		return nil, workflow.NotFound("purchase order %s not found", id)
	}

	po, err := decodePurchaseOrder(row)
	if err != nil {
		return nil, workflow.Upstream(err, "decode purchase order %s", id)
	}
	steps, err := r.loadSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	po.History = entity.StepHistory{Records: steps[id]}
	po.PersistedSteps = po.History.Len()
	return po, nil
}

// ListPurchaseOrders loads every purchase order with its ledger
func (r *repository) ListPurchaseOrders(ctx context.Context) ([]*entity.PurchaseOrder, error) {
	rows, err := r.store.GetRows(ctx, entity.CollectionPurchaseOrders)
	if err != nil {
		return nil, storeError(err, "read purchase orders")
	}
	steps, err := r.loadSteps(ctx, "")
	if err != nil {
		return nil, err
	}

	orders := make([]*entity.PurchaseOrder, 0, len(rows))
	for _, row := range rows {
		po, err := decodePurchaseOrder(row)
		if err != nil {
			return nil, workflow.Upstream(err, "decode purchase order row")
		}
		po.History = entity.StepHistory{Records: steps[po.ID]}
		po.PersistedSteps = po.History.Len()
		orders = append(orders, po)
	}
	return orders, nil
}

// SavePurchaseOrder updates the header with a version check and appends new step records
func (r *repository) SavePurchaseOrder(ctx context.Context, po *entity.PurchaseOrder) error {
	rows, err := r.store.GetRows(ctx, entity.CollectionPurchaseOrders)
	if err != nil {
		return storeError(err, "read purchase orders")
	}
	idx, _ := locate(rows, po.ID)
	if idx < 0 {
		return workflow.NotFound("purchase order %s not found", po.ID)
	}

	row, err := encodePurchaseOrder(po)
	if err != nil {
		return workflow.Upstream(err, "encode purchase order")
	}
	if err := r.store.UpdateRow(ctx, entity.CollectionPurchaseOrders, idx, row); err != nil {
		return storeError(err, "update purchase order %s", po.ID)
	}
	po.Version++

	if err := r.appendSteps(ctx, po.ID, po.History.Since(po.PersistedSteps)); err != nil {
		return err
	}
	po.PersistedSteps = po.History.Len()
	return nil
}

// AppendSatellite writes an append-only stage record
func (r *repository) AppendSatellite(ctx context.Context, rec entity.SatelliteRecord) error {
	row, err := encodeSatellite(rec)
	if err != nil {
		return workflow.Upstream(err, "encode satellite")
	}
	if err := r.store.AppendRow(ctx, rec.Collection(), row); err != nil {
		return storeError(err, "append %s record %s", rec.Collection(), rec.RecordID())
	}
	return nil
}

// ListSatellites returns the records of a collection; an empty ownerID returns all
func (r *repository) ListSatellites(ctx context.Context, collection, ownerID string) ([]entity.SatelliteRecord, error) {
	if !isSatellite(collection) {
		return nil, workflow.Validation("unknown record collection %q", collection)
	}
	rows, err := r.store.GetRows(ctx, collection)
	if err != nil {
		return nil, storeError(err, "read %s", collection)
	}

	records := make([]entity.SatelliteRecord, 0)
	for _, row := range rows {
		if ownerID != "" && row[colOwnerID] != ownerID {
			continue
		}
		rec, err := decodeSatellite(collection, row)
		if err != nil {
			return nil, workflow.Upstream(err, "decode %s row", collection)
		}
		records = append(records, rec)
	}
	return records, nil
}

// AttachFinalizeNote sets the finalize note of a record once
func (r *repository) AttachFinalizeNote(ctx context.Context, collection, recordID, note string) error {
	if !isSatellite(collection) {
		return workflow.Validation("unknown record collection %q", collection)
	}
	if strings.TrimSpace(note) == "" {
		return workflow.Validation("finalize note is empty")
	}

	rows, err := r.store.GetRows(ctx, collection)
	if err != nil {
		return storeError(err, "read %s", collection)
	}
	idx, row := locate(rows, recordID)
	if idx < 0 {
		return workflow.NotFound("%s record %s not found", collection, recordID)
	}
	if row[colFinalizeNote] != "" {
		return workflow.Validation("%s record %s is already finalized", collection, recordID)
	}

	updated := row.Clone()
	updated[colFinalizeNote] = note
	if err := r.store.UpdateRow(ctx, collection, idx, updated); err != nil {
		return storeError(err, "finalize %s record %s", collection, recordID)
	}
	return nil
}

func isSatellite(collection string) bool {
	for _, c := range entity.SatelliteCollections {
		if c == collection {
			return true
		}
	}
	return false
}
