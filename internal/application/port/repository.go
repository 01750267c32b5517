package port

import (
	"context"

	"github.com/garyjia/indent-flow/internal/domain/entity"
)

// IndentRepository defines persistence operations for Indent and its step ledger
type IndentRepository interface {
	// NextIndentID allocates a monotonic, zero-padded id not used by any indent
	NextIndentID(ctx context.Context) (string, error)

	CreateIndent(ctx context.Context, indent *entity.Indent) error
	GetIndent(ctx context.Context, id string) (*entity.Indent, error)
	ListIndents(ctx context.Context) ([]*entity.Indent, error)

	// SaveIndent writes the header with a version check and appends unsaved step records
	SaveIndent(ctx context.Context, indent *entity.Indent) error

	// DeleteIndent removes the header and its step rows
	DeleteIndent(ctx context.Context, indent *entity.Indent) error
}

// PurchaseOrderRepository defines persistence operations for PurchaseOrder and its step ledger
type PurchaseOrderRepository interface {
	// NextPurchaseOrderID allocates a monotonic, zero-padded id not used by any purchase order
	NextPurchaseOrderID(ctx context.Context) (string, error)

	CreatePurchaseOrder(ctx context.Context, po *entity.PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id string) (*entity.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context) ([]*entity.PurchaseOrder, error)
	SavePurchaseOrder(ctx context.Context, po *entity.PurchaseOrder) error
}

// SatelliteRepository defines persistence operations for append-only stage records
type SatelliteRepository interface {
	AppendSatellite(ctx context.Context, rec entity.SatelliteRecord) error
	ListSatellites(ctx context.Context, collection, ownerID string) ([]entity.SatelliteRecord, error)

	// AttachFinalizeNote sets the note once; a second attempt is a validation error
	AttachFinalizeNote(ctx context.Context, collection, recordID, note string) error
}

// ProcurementRepository groups the repositories used inside one unit of work
type ProcurementRepository interface {
	IndentRepository
	PurchaseOrderRepository
	SatelliteRepository
}

// UnitOfWork commits every write made through the repository passed to fn,
// or none of them.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, repo ProcurementRepository) error) error
}
