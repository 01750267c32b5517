package workflow

import (
	"context"
	"strings"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// RejectionHandler drives a purchase order through the material rejection loop:
// Material Approval -> Rejection Decision -> Return Material -> Resend Material -> Receive Material.
// There is no cycle limit.
type RejectionHandler struct {
	engine Engine
	reader port.PurchaseOrderRepository
}

// NewRejectionHandler creates a handler on top of the transition engine
func NewRejectionHandler(engine Engine, reader port.PurchaseOrderRepository) *RejectionHandler {
	return &RejectionHandler{engine: engine, reader: reader}
}

// HandleRejection rejects received material at Material Approval with a mandatory note
func (h *RejectionHandler) HandleRejection(ctx context.Context, poID, note string, actor entity.Actor) (*entity.StepRecord, error) {
	if strings.TrimSpace(note) == "" {
		return nil, domainwf.Validation("rejection note is required")
	}
	if err := h.expectStage(ctx, poID, domainwf.StageMaterialApproval); err != nil {
		return nil, err
	}
	return h.engine.ApplyTransition(ctx, poID, domainwf.ActionReject, procurement.Payload{
		ExpectedStage: domainwf.StageMaterialApproval,
		RejectionNote: note,
		Comments:      note,
	}, actor)
}

// Decide records whether the vendor resends or the material is returned
func (h *RejectionHandler) Decide(ctx context.Context, poID, decision, comments string, actor entity.Actor) (*entity.StepRecord, error) {
	if err := h.expectStage(ctx, poID, domainwf.StageRejectionDecision); err != nil {
		return nil, err
	}
	return h.engine.ApplyTransition(ctx, poID, domainwf.ActionDecide, procurement.Payload{
		ExpectedStage: domainwf.StageRejectionDecision,
		Decision:      decision,
		Comments:      comments,
	}, actor)
}

// ReturnMaterial records the material sent back to the vendor
func (h *RejectionHandler) ReturnMaterial(ctx context.Context, poID, details string, actor entity.Actor) (*entity.StepRecord, error) {
	if err := h.expectStage(ctx, poID, domainwf.StageReturnMaterial); err != nil {
		return nil, err
	}
	return h.engine.ApplyTransition(ctx, poID, domainwf.ActionComplete, procurement.Payload{
		ExpectedStage: domainwf.StageReturnMaterial,
		ReturnDetails: details,
		Comments:      details,
	}, actor)
}

// ResendMaterial closes the loop once the vendor has been asked to resend;
// the purchase order goes back to Receive Material
func (h *RejectionHandler) ResendMaterial(ctx context.Context, poID string, emailSent bool, comments string, actor entity.Actor) (*entity.StepRecord, error) {
	if err := h.expectStage(ctx, poID, domainwf.StageResendMaterial); err != nil {
		return nil, err
	}
	return h.engine.ApplyTransition(ctx, poID, domainwf.ActionComplete, procurement.Payload{
		ExpectedStage: domainwf.StageResendMaterial,
		EmailSent:     emailSent,
		Comments:      comments,
	}, actor)
}

func (h *RejectionHandler) expectStage(ctx context.Context, poID string, want domainwf.Stage) error {
	po, err := h.reader.GetPurchaseOrder(ctx, poID)
	if err != nil {
		return err
	}
	if stage := po.CurrentStage(); stage != want {
		return domainwf.Validation("purchase order %s is at stage %s, not %s", poID, stage, want)
	}
	return nil
}
