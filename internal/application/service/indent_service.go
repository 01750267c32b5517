package service

import (
	"context"
	"fmt"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/application/workflow"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// IndentService manages indents from draft to Sort Vendors and runs vendor grouping
type IndentService interface {
	CreateIndent(ctx context.Context, draft workflow.IndentDraft, actor entity.Actor) (*entity.Indent, error)
	SubmitIndent(ctx context.Context, indentID, comments string, actor entity.Actor) (*entity.StepRecord, error)
	AddQuotes(ctx context.Context, indentID, itemCode string, quotes []entity.VendorQuote, actor entity.Actor) (*entity.Indent, error)
	SelectVendor(ctx context.Context, indentID, itemCode, vendorCode string, actor entity.Actor) (*entity.Indent, error)
	DeleteIndent(ctx context.Context, indentID string, actor entity.Actor) error

	// Transition applies any action to an indent or purchase order, retrying once on conflict
	Transition(ctx context.Context, entityID string, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error)

	GroupItems(ctx context.Context, actor entity.Actor) (*workflow.GroupingResult, error)
	PreviewGrouping(ctx context.Context) (*workflow.GroupingPlan, error)

	GetIndent(ctx context.Context, indentID string) (*entity.Indent, error)
	ListIndents(ctx context.Context) ([]*entity.Indent, error)
}

// IndentServiceOption configures the indent service
type IndentServiceOption func(*indentServiceImpl)

// WithAutoGroup runs a grouping pass whenever an indent reaches Sort Vendors
func WithAutoGroup(enabled bool) IndentServiceOption {
	return func(s *indentServiceImpl) {
		s.autoGroup = enabled
	}
}

type indentServiceImpl struct {
	engine    workflow.Engine
	grouping  workflow.VendorGrouping
	reader    port.ProcurementRepository
	logger    Logger
	autoGroup bool
}

// NewIndentService creates a new IndentService
func NewIndentService(
	engine workflow.Engine,
	grouping workflow.VendorGrouping,
	reader port.ProcurementRepository,
	logger Logger,
	opts ...IndentServiceOption,
) IndentService {
	s := &indentServiceImpl{
		engine:   engine,
		grouping: grouping,
		reader:   reader,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateIndent stores a new draft indent
func (s *indentServiceImpl) CreateIndent(ctx context.Context, draft workflow.IndentDraft, actor entity.Actor) (*entity.Indent, error) {
	indent, err := s.engine.CreateIndent(ctx, draft, actor)
	if err != nil {
		s.logger.Error("Failed to create indent", "error", err, "actor", actor.Email)
		return nil, err
	}
	return indent, nil
}

// SubmitIndent completes Raise Indent and hands the indent to the HOD
func (s *indentServiceImpl) SubmitIndent(ctx context.Context, indentID, comments string, actor entity.Actor) (*entity.StepRecord, error) {
	return s.Transition(ctx, indentID, domainwf.ActionComplete, procurement.Payload{Comments: comments}, actor)
}

// AddQuotes records vendor quotes for one item while quotations are open
func (s *indentServiceImpl) AddQuotes(ctx context.Context, indentID, itemCode string, quotes []entity.VendorQuote, actor entity.Actor) (*entity.Indent, error) {
	if len(quotes) == 0 {
		return nil, domainwf.Validation("at least one quote is required")
	}
	payload := procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{itemCode: quotes},
	}
	return retryOnConflict(ctx, s.logger, "add_quotes", func() (*entity.Indent, error) {
		return s.engine.AmendIndent(ctx, indentID, payload, actor)
	})
}

// SelectVendor chooses the vendor for one item; at Sort Vendors it resolves an ungrouped item
func (s *indentServiceImpl) SelectVendor(ctx context.Context, indentID, itemCode, vendorCode string, actor entity.Actor) (*entity.Indent, error) {
	payload := procurement.Payload{
		Selections: map[string]string{itemCode: vendorCode},
	}
	indent, err := retryOnConflict(ctx, s.logger, "select_vendor", func() (*entity.Indent, error) {
		return s.engine.AmendIndent(ctx, indentID, payload, actor)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Vendor selected",
		"indent_id", indentID,
		"item_code", itemCode,
		"vendor_code", vendorCode,
		"actor", actor.Email,
	)
	return indent, nil
}

// DeleteIndent removes a draft or rejected indent
func (s *indentServiceImpl) DeleteIndent(ctx context.Context, indentID string, actor entity.Actor) error {
	_, err := retryOnConflict(ctx, s.logger, "delete_indent", func() (struct{}, error) {
		return struct{}{}, s.engine.DeleteIndent(ctx, indentID, actor)
	})
	return err
}

// Transition applies the action with a single retry on concurrency conflict
func (s *indentServiceImpl) Transition(ctx context.Context, entityID string, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error) {
	// a caller-pinned version cannot succeed on a retry
	retry := payload.ExpectedVersion == 0
	if retry && payload.ExpectedStage == domainwf.StageNone {
		// the retry must act on the stage the caller saw, not on whatever the entity moved to
		payload.ExpectedStage = s.observedStage(ctx, entityID)
	}

	apply := func() (*entity.StepRecord, error) {
		return s.engine.ApplyTransition(ctx, entityID, action, payload, actor)
	}

	var (
		rec *entity.StepRecord
		err error
	)
	if retry {
		rec, err = retryOnConflict(ctx, s.logger, "transition", apply)
	} else {
		rec, err = apply()
	}
	if err != nil {
		s.logger.Error("Transition failed",
			"entity_id", entityID,
			"action", string(action),
			"kind", string(domainwf.KindOf(err)),
			"error", err,
		)
		return nil, err
	}

	if s.autoGroup && rec.NextStep == domainwf.StageSortVendors {
		s.runAutoGroup(ctx, entityID)
	}
	return rec, nil
}

// observedStage returns the entity's current stage, or StageNone when it cannot be read;
// the engine reports the lookup failure itself
func (s *indentServiceImpl) observedStage(ctx context.Context, entityID string) domainwf.Stage {
	if indent, err := s.reader.GetIndent(ctx, entityID); err == nil {
		return indent.CurrentStage()
	}
	if po, err := s.reader.GetPurchaseOrder(ctx, entityID); err == nil {
		return po.CurrentStage()
	}
	return domainwf.StageNone
}

func (s *indentServiceImpl) runAutoGroup(ctx context.Context, trigger string) {
	result, err := s.grouping.GroupApprovedItemsByVendor(ctx, entity.SystemActor)
	if err != nil {
		s.logger.Warn("Automatic grouping failed, items stay at Sort Vendors",
			"trigger", trigger,
			"error", err,
		)
		return
	}
	s.logger.Info("Automatic grouping completed",
		"trigger", trigger,
		"purchase_orders", len(result.PurchaseOrders),
		"ungrouped", len(result.Ungrouped),
	)
}

// GroupItems runs a grouping pass
func (s *indentServiceImpl) GroupItems(ctx context.Context, actor entity.Actor) (*workflow.GroupingResult, error) {
	result, err := retryOnConflict(ctx, s.logger, "group_items", func() (*workflow.GroupingResult, error) {
		return s.grouping.GroupApprovedItemsByVendor(ctx, actor)
	})
	if err != nil {
		s.logger.Error("Grouping failed", "error", err, "actor", actor.Email)
		return nil, err
	}
	return result, nil
}

// PreviewGrouping returns the plan of the next grouping pass
func (s *indentServiceImpl) PreviewGrouping(ctx context.Context) (*workflow.GroupingPlan, error) {
	return s.grouping.PreviewGrouping(ctx)
}

// GetIndent retrieves an indent with its ledger
func (s *indentServiceImpl) GetIndent(ctx context.Context, indentID string) (*entity.Indent, error) {
	indent, err := s.reader.GetIndent(ctx, indentID)
	if err != nil {
		return nil, fmt.Errorf("get indent: %w", err)
	}
	return indent, nil
}

// ListIndents returns every indent
func (s *indentServiceImpl) ListIndents(ctx context.Context) ([]*entity.Indent, error) {
	indents, err := s.reader.ListIndents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indents: %w", err)
	}
	return indents, nil
}
