package workflow

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/event"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Reasons an approved item is left out of a purchase order
const (
	ReasonNoSelection       = "no selected vendor"
	ReasonNoQuote           = "selected vendor has no quote"
	ReasonSampleRejected    = "sample rejected"
	ReasonSampleNotApproved = "sample not approved"
)

// VendorGrouping turns approved indent items into vendor purchase orders
type VendorGrouping interface {
	// GroupApprovedItemsByVendor creates one purchase order per vendor from every
	// eligible, ungrouped item of the indents waiting at Sort Vendors
	GroupApprovedItemsByVendor(ctx context.Context, actor entity.Actor) (*GroupingResult, error)

	// PreviewGrouping returns the plan a grouping pass would execute now
	PreviewGrouping(ctx context.Context) (*GroupingPlan, error)
}

// NewVendorGrouping creates the grouping engine over the same stores as the transition engine
func NewVendorGrouping(reader port.ProcurementRepository, uow port.UnitOfWork, opts ...EngineOption) VendorGrouping {
	return newEngine(reader, uow, opts...)
}

// VendorBatch is the planned content of one purchase order
type VendorBatch struct {
	VendorCode string              `json:"vendor_code"`
	VendorName string              `json:"vendor_name,omitempty"`
	Lines      []entity.POLineItem `json:"lines"`
	Total      decimal.Decimal     `json:"total"`
}

// IndentIDs returns the distinct source indents of the batch, in line order
func (b VendorBatch) IndentIDs() []string {
	po := entity.PurchaseOrder{Lines: b.Lines}
	return po.IndentIDs()
}

// UngroupedItem is an item that could not be placed on a purchase order
type UngroupedItem struct {
	IndentID   string `json:"indent_id"`
	ItemCode   string `json:"item_code"`
	ItemName   string `json:"item_name,omitempty"`
	VendorCode string `json:"vendor_code,omitempty"`
	Reason     string `json:"reason"`
}

// GroupingPlan is the pure result of bucketing items by vendor
type GroupingPlan struct {
	Batches   []VendorBatch   `json:"batches"`
	Ungrouped []UngroupedItem `json:"ungrouped"`
}

// GroupingResult reports what a grouping pass committed
type GroupingResult struct {
	PurchaseOrders  []*entity.PurchaseOrder `json:"purchase_orders"`
	Ungrouped       []UngroupedItem         `json:"ungrouped"`
	AdvancedIndents []string                `json:"advanced_indents"`
}

// PlanVendorBatches buckets the eligible ungrouped items of indents at Sort Vendors
// by selected vendor. Batches are ordered by vendor code; lines follow indent id
// then item order.
func PlanVendorBatches(indents []*entity.Indent) GroupingPlan {
	sorted := append([]*entity.Indent(nil), indents...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	plan := GroupingPlan{}
	byVendor := make(map[string]*VendorBatch)
	for _, indent := range sorted {
		if indent.Status.IsTerminal() || indent.CurrentStage() != domainwf.StageSortVendors {
			continue
		}

		for _, item := range indent.Items {
			if item.GroupedPO != "" {
				continue
			}
			if reason := ineligibility(indent, item); reason != "" {
				plan.Ungrouped = append(plan.Ungrouped, UngroupedItem{
					IndentID:   indent.ID,
					ItemCode:   item.Code,
					ItemName:   item.Name,
					VendorCode: item.SelectedVendor,
					Reason:     reason,
				})
				continue
			}

			quote := item.SelectedQuote()
			b, ok := byVendor[quote.VendorCode]
			if !ok {
				b = &VendorBatch{VendorCode: quote.VendorCode, VendorName: quote.VendorName, Total: decimal.Zero}
				byVendor[quote.VendorCode] = b
			}
			line := entity.NewPOLineItem(indent.ID, item, quote.Price)
			b.Lines = append(b.Lines, line)
			b.Total = b.Total.Add(line.Amount)
		}
	}

	vendors := make([]string, 0, len(byVendor))
	for code := range byVendor {
		vendors = append(vendors, code)
	}
	sort.Strings(vendors)
	for _, code := range vendors {
		plan.Batches = append(plan.Batches, *byVendor[code])
	}
	return plan
}

// ineligibility returns why the item cannot be grouped, or "" when it can
func ineligibility(indent *entity.Indent, item entity.IndentItem) string {
	if item.SelectedVendor == "" {
		return ReasonNoSelection
	}
	quote := item.SelectedQuote()
	if quote == nil {
		return ReasonNoQuote
	}
	if quote.InspectionStatus == entity.InspectionRejected {
		return ReasonSampleRejected
	}
	if indent.SampleRequired && quote.InspectionStatus != entity.InspectionApproved {
		return ReasonSampleNotApproved
	}
	return ""
}

// PreviewGrouping plans without writing
func (e *engine) PreviewGrouping(ctx context.Context) (*GroupingPlan, error) {
	indents, err := e.reader.ListIndents(ctx)
	if err != nil {
		return nil, err
	}
	plan := PlanVendorBatches(indents)
	return &plan, nil
}

// GroupApprovedItemsByVendor plans and commits a grouping pass in one unit of work.
// Items are marked with their purchase order in the same write that creates it,
// so a second pass over the same state creates nothing.
func (e *engine) GroupApprovedItemsByVendor(ctx context.Context, actor entity.Actor) (*GroupingResult, error) {
	role, err := e.authorize(domainwf.StageSortVendors, actor)
	if err != nil {
		return nil, err
	}

	now := e.now()
	var result *GroupingResult
	err = e.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		result = &GroupingResult{}

		indents, err := repo.ListIndents(ctx)
		if err != nil {
			return err
		}
		plan := PlanVendorBatches(indents)
		result.Ungrouped = plan.Ungrouped

		byID := make(map[string]*entity.Indent, len(indents))
		for _, indent := range indents {
			byID[indent.ID] = indent
		}

		var touched []string
		seen := make(map[string]bool)
		for _, b := range plan.Batches {
			id, err := repo.NextPurchaseOrderID(ctx)
			if err != nil {
				return err
			}

			po := &entity.PurchaseOrder{
				ID:         id,
				VendorCode: b.VendorCode,
				VendorName: b.VendorName,
				Lines:      b.Lines,
				Total:      b.Total,
				Status:     entity.POInProgress,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			pending := e.pendingRecord(id, domainwf.StagePlacePO, domainwf.StageSortVendors, "created", now)
			pending.Comments = "grouped from " + strings.Join(b.IndentIDs(), ", ")
			po.History.Append(pending)

			if err := repo.CreatePurchaseOrder(ctx, po); err != nil {
				return err
			}
			result.PurchaseOrders = append(result.PurchaseOrders, po)

			for _, line := range po.Lines {
				indent := byID[line.IndentID]
				indent.Item(line.ItemCode).GroupedPO = id
				if !seen[indent.ID] {
					seen[indent.ID] = true
					touched = append(touched, indent.ID)
				}
			}
		}

		for _, id := range touched {
			indent := byID[id]
			if indent.AllGrouped() {
				e.advanceToPurchaseOrders(indent, role, actor, now)
				result.AdvancedIndents = append(result.AdvancedIndents, indent.ID)
			}
			indent.UpdatedAt = now
			if err := repo.SaveIndent(ctx, indent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	batch := newEventBatch(e.newID(), actor)
	for _, po := range result.PurchaseOrders {
		batch.add(event.TypePOCreated, event.EntityPurchaseOrder, po.ID, domainwf.StagePlacePO, map[string]interface{}{
			"vendor_code": po.VendorCode,
			"total":       po.Total.String(),
			"indent_ids":  po.IndentIDs(),
		})
	}
	for _, id := range result.AdvancedIndents {
		batch.add(event.TypeStepCompleted, event.EntityIndent, id, domainwf.StageSortVendors, map[string]interface{}{
			"action":     "group",
			"next_stage": int(domainwf.StagePlacePO),
			"next_role":  string(domainwf.RolePurchaseExecutive),
		})
	}
	for _, item := range result.Ungrouped {
		e.logger.Warn("Item left ungrouped",
			"indent_id", item.IndentID,
			"item_code", item.ItemCode,
			"vendor_code", item.VendorCode,
			"reason", item.Reason,
		)
	}
	if len(result.Ungrouped) > 0 {
		items := make([]string, 0, len(result.Ungrouped))
		for _, item := range result.Ungrouped {
			items = append(items, item.IndentID+"/"+item.ItemCode+": "+item.Reason)
		}
		batch.add(event.TypeItemsUngrouped, event.EntityIndent, "", domainwf.StageSortVendors, map[string]interface{}{
			"items": items,
		})
	}

	e.logger.Info("Grouping pass committed",
		"purchase_orders", len(result.PurchaseOrders),
		"advanced_indents", len(result.AdvancedIndents),
		"ungrouped", len(result.Ungrouped),
	)
	e.publish(ctx, batch)
	return result, nil
}

// advanceToPurchaseOrders closes Sort Vendors on a fully grouped indent. From here
// on the indent is tracked by its purchase orders.
func (e *engine) advanceToPurchaseOrders(indent *entity.Indent, role domainwf.Role, actor entity.Actor, now time.Time) {
	current, _ := indent.History.Current()
	pos := strings.Join(indent.PurchaseOrderIDs(), ", ")
	ended := now

	indent.History.Append(entity.StepRecord{
		ID:           e.newID(),
		EntityID:     indent.ID,
		Stage:        domainwf.StageSortVendors,
		Role:         role,
		Action:       "group",
		Status:       domainwf.StepCompleted,
		AssignedTo:   actor.Email,
		StartedAt:    current.StartedAt,
		EndedAt:      &ended,
		Comments:     "items placed on " + pos,
		NextStep:     domainwf.StagePlacePO,
		PreviousStep: current.PreviousStep,
		Supersedes:   current.Seq,
	})

	pending := e.pendingRecord(indent.ID, domainwf.StagePlacePO, domainwf.StageSortVendors, "tracked_by_purchase_orders", now)
	pending.Comments = pos
	indent.History.Append(pending)
	indent.Status = entity.IndentInProgress
}
