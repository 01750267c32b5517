package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/application/workflow"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// PurchaseOrderService runs the purchase order stages that need collaborators:
// document generation at Place PO and Generate GRN, and the rejection loop
type PurchaseOrderService interface {
	GetPurchaseOrder(ctx context.Context, poID string) (*entity.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context) ([]*entity.PurchaseOrder, error)

	PlacePurchaseOrder(ctx context.Context, poID, comments string, actor entity.Actor) (*entity.StepRecord, error)
	GenerateGRN(ctx context.Context, poID, comments string, actor entity.Actor) (*entity.StepRecord, error)

	RejectMaterial(ctx context.Context, poID, note string, actor entity.Actor) (*entity.StepRecord, error)
	DecideRejection(ctx context.Context, poID, decision, comments string, actor entity.Actor) (*entity.StepRecord, error)
	ReturnMaterial(ctx context.Context, poID, details string, actor entity.Actor) (*entity.StepRecord, error)
	ResendMaterial(ctx context.Context, poID string, emailSent bool, comments string, actor entity.Actor) (*entity.StepRecord, error)
}

type purchaseOrderServiceImpl struct {
	engine     workflow.Engine
	rejections *workflow.RejectionHandler
	reader     port.ProcurementRepository
	documents  port.DocumentService
	logger     Logger
	now        func() time.Time
}

// NewPurchaseOrderService creates a new PurchaseOrderService
func NewPurchaseOrderService(
	engine workflow.Engine,
	reader port.ProcurementRepository,
	documents port.DocumentService,
	logger Logger,
) PurchaseOrderService {
	return &purchaseOrderServiceImpl{
		engine:     engine,
		rejections: workflow.NewRejectionHandler(engine, reader),
		reader:     reader,
		documents:  documents,
		logger:     logger,
		now:        time.Now,
	}
}

// purchaseOrderDocument is the structured content of a generated purchase order
type purchaseOrderDocument struct {
	PONumber   string              `json:"po_number"`
	VendorCode string              `json:"vendor_code"`
	VendorName string              `json:"vendor_name,omitempty"`
	Indents    []string            `json:"indents"`
	Lines      []entity.POLineItem `json:"lines"`
	Total      decimal.Decimal     `json:"total"`
	IssuedBy   string              `json:"issued_by"`
	IssuedAt   time.Time           `json:"issued_at"`
}

// grnDocument is the structured content of a goods receipt note
type grnDocument struct {
	PONumber         string              `json:"po_number"`
	PODocument       string              `json:"po_document"`
	VendorCode       string              `json:"vendor_code"`
	Lines            []entity.POLineItem `json:"lines"`
	ReceivedQuantity decimal.Decimal     `json:"received_quantity"`
	ChallanRef       string              `json:"challan_ref,omitempty"`
	ReceiptCycle     int                 `json:"receipt_cycle"`
	IssuedBy         string              `json:"issued_by"`
	IssuedAt         time.Time           `json:"issued_at"`
}

// GetPurchaseOrder retrieves a purchase order with its ledger
func (s *purchaseOrderServiceImpl) GetPurchaseOrder(ctx context.Context, poID string) (*entity.PurchaseOrder, error) {
	po, err := s.reader.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	return po, nil
}

// ListPurchaseOrders returns every purchase order
func (s *purchaseOrderServiceImpl) ListPurchaseOrders(ctx context.Context) ([]*entity.PurchaseOrder, error) {
	pos, err := s.reader.ListPurchaseOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	return pos, nil
}

// PlacePurchaseOrder stores the PO document and completes Place PO with its reference
func (s *purchaseOrderServiceImpl) PlacePurchaseOrder(ctx context.Context, poID, comments string, actor entity.Actor) (*entity.StepRecord, error) {
	po, err := s.prepare(ctx, poID, domainwf.StagePlacePO, actor)
	if err != nil {
		return nil, err
	}

	doc := purchaseOrderDocument{
		PONumber:   po.ID,
		VendorCode: po.VendorCode,
		VendorName: po.VendorName,
		Indents:    po.IndentIDs(),
		Lines:      po.Lines,
		Total:      po.Total,
		IssuedBy:   actor.Email,
		IssuedAt:   s.now(),
	}
	ref, err := s.storeDocument(ctx, port.DocumentPurchaseOrder, po.ID, doc)
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, po.ID, procurement.Payload{
		ExpectedStage: domainwf.StagePlacePO,
		DocumentRef:   ref,
		Comments:      comments,
	}, actor)
}

// GenerateGRN stores the goods receipt note and completes Generate GRN with its reference
func (s *purchaseOrderServiceImpl) GenerateGRN(ctx context.Context, poID, comments string, actor entity.Actor) (*entity.StepRecord, error) {
	po, err := s.prepare(ctx, poID, domainwf.StageGenerateGRN, actor)
	if err != nil {
		return nil, err
	}

	doc := grnDocument{
		PONumber:   po.ID,
		PODocument: po.DocumentRef,
		VendorCode: po.VendorCode,
		Lines:      po.Lines,
		IssuedBy:   actor.Email,
		IssuedAt:   s.now(),
	}
	receipts, err := s.reader.ListSatellites(ctx, entity.CollectionMaterialInspections, po.ID)
	if err != nil {
		return nil, err
	}
	if n := len(receipts); n > 0 {
		if last, ok := receipts[n-1].(entity.MaterialInspection); ok {
			doc.ReceivedQuantity = last.ReceivedQuantity
			doc.ChallanRef = last.ChallanRef
			doc.ReceiptCycle = last.Cycle
		}
	}

	ref, err := s.storeDocument(ctx, port.DocumentGRN, po.ID, doc)
	if err != nil {
		return nil, err
	}

	return s.complete(ctx, po.ID, procurement.Payload{
		ExpectedStage: domainwf.StageGenerateGRN,
		DocumentRef:   ref,
		Comments:      comments,
	}, actor)
}

// prepare loads the purchase order and checks stage and role before any document is written
func (s *purchaseOrderServiceImpl) prepare(ctx context.Context, poID string, stage domainwf.Stage, actor entity.Actor) (*entity.PurchaseOrder, error) {
	po, err := s.reader.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return nil, err
	}
	if current := po.CurrentStage(); current != stage {
		return nil, domainwf.Validation("purchase order %s is at stage %s, not %s", po.ID, current, stage)
	}
	if role, ok := procurement.Table().Role(stage); ok && !actor.Role.CanActAs(role) {
		return nil, domainwf.Forbidden("role %s cannot act on stage %s (owned by %s)", actor.Role, stage, role)
	}
	return po, nil
}

// storeDocument writes a mandatory document; failure blocks the stage as a validation error
func (s *purchaseOrderServiceImpl) storeDocument(ctx context.Context, kind port.DocumentKind, ownerID string, data interface{}) (string, error) {
	ref, err := s.documents.Store(ctx, kind, ownerID, data)
	if err != nil {
		s.logger.Error("Failed to store document",
			"kind", string(kind),
			"owner_id", ownerID,
			"error", err,
		)
		return "", &domainwf.Error{
			Kind:   domainwf.KindValidation,
			Reason: fmt.Sprintf("%s document for %s could not be stored", kind, ownerID),
			Err:    err,
		}
	}

	s.logger.Info("Document stored",
		"kind", string(kind),
		"owner_id", ownerID,
		"document_id", ref,
	)
	return ref, nil
}

func (s *purchaseOrderServiceImpl) complete(ctx context.Context, poID string, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error) {
	return retryOnConflict(ctx, s.logger, "complete_purchase_order_stage", func() (*entity.StepRecord, error) {
		return s.engine.ApplyTransition(ctx, poID, domainwf.ActionComplete, payload, actor)
	})
}

// RejectMaterial enters the rejection loop from Material Approval
func (s *purchaseOrderServiceImpl) RejectMaterial(ctx context.Context, poID, note string, actor entity.Actor) (*entity.StepRecord, error) {
	return retryOnConflict(ctx, s.logger, "reject_material", func() (*entity.StepRecord, error) {
		return s.rejections.HandleRejection(ctx, poID, note, actor)
	})
}

// DecideRejection records resend or return at Rejection Decision
func (s *purchaseOrderServiceImpl) DecideRejection(ctx context.Context, poID, decision, comments string, actor entity.Actor) (*entity.StepRecord, error) {
	return retryOnConflict(ctx, s.logger, "decide_rejection", func() (*entity.StepRecord, error) {
		return s.rejections.Decide(ctx, poID, decision, comments, actor)
	})
}

// ReturnMaterial records the material sent back
func (s *purchaseOrderServiceImpl) ReturnMaterial(ctx context.Context, poID, details string, actor entity.Actor) (*entity.StepRecord, error) {
	return retryOnConflict(ctx, s.logger, "return_material", func() (*entity.StepRecord, error) {
		return s.rejections.ReturnMaterial(ctx, poID, details, actor)
	})
}

// ResendMaterial closes a rejection cycle and sends the order back to Receive Material
func (s *purchaseOrderServiceImpl) ResendMaterial(ctx context.Context, poID string, emailSent bool, comments string, actor entity.Actor) (*entity.StepRecord, error) {
	return retryOnConflict(ctx, s.logger, "resend_material", func() (*entity.StepRecord, error) {
		return s.rejections.ResendMaterial(ctx, poID, emailSent, comments, actor)
	})
}
