package workflow

import (
	"context"
	"strings"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/event"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// IndentDraft is the requester's input for a new indent
type IndentDraft struct {
	Title          string              `json:"title"`
	Department     string              `json:"department"`
	SampleRequired bool                `json:"sample_required"`
	Items          []entity.IndentItem `json:"items"`
}

// Stages at which quotes and vendor selections may be amended without a transition
var (
	quoteStages = map[domainwf.Stage]bool{
		domainwf.StageFloatRFQ:             true,
		domainwf.StageFollowUpQuotations:   true,
		domainwf.StageComparativeStatement: true,
	}
	selectionStages = map[domainwf.Stage]bool{
		domainwf.StageComparativeStatement: true,
		domainwf.StageApproveQuotation:     true,
		domainwf.StageSortVendors:          true,
	}
)

// CreateIndent stores the draft with a pending Raise Indent record
func (e *engine) CreateIndent(ctx context.Context, draft IndentDraft, actor entity.Actor) (*entity.Indent, error) {
	role, err := e.authorize(domainwf.StageRaiseIndent, actor)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return nil, domainwf.Validation("indent title is required")
	}

	items := make([]entity.IndentItem, 0, len(draft.Items))
	seen := make(map[string]bool, len(draft.Items))
	for _, item := range draft.Items {
		code := strings.TrimSpace(item.Code)
		if code == "" {
			return nil, domainwf.Validation("item code is required")
		}
		if seen[code] {
			return nil, domainwf.Validation("item %s is listed twice", code)
		}
		seen[code] = true
		items = append(items, entity.IndentItem{
			Code:          code,
			Name:          item.Name,
			Quantity:      item.Quantity,
			Unit:          item.Unit,
			Specification: item.Specification,
		})
	}

	now := e.now()
	var created *entity.Indent
	err = e.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		id, err := repo.NextIndentID(ctx)
		if err != nil {
			return err
		}

		indent := &entity.Indent{
			ID:             id,
			Title:          title,
			Department:     draft.Department,
			RequestedBy:    actor.Email,
			SampleRequired: draft.SampleRequired,
			Status:         entity.IndentDraft,
			Items:          items,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		pending := e.pendingRecord(id, domainwf.StageRaiseIndent, domainwf.StageNone, "create", now)
		pending.Role = role
		pending.AssignedTo = actor.Email
		indent.History.Append(pending)

		if err := repo.CreateIndent(ctx, indent); err != nil {
			return err
		}
		created = indent
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Indent created",
		"indent_id", created.ID,
		"items", len(created.Items),
		"requested_by", actor.Email,
	)
	batch := newEventBatch(e.newID(), actor)
	batch.add(event.TypeIndentCreated, event.EntityIndent, created.ID, domainwf.StageRaiseIndent, map[string]interface{}{
		"title": created.Title,
	})
	e.publish(ctx, batch)
	return created, nil
}

// AmendIndent merges quotes and vendor selections into an indent without moving it
func (e *engine) AmendIndent(ctx context.Context, indentID string, payload procurement.Payload, actor entity.Actor) (*entity.Indent, error) {
	indent, err := e.reader.GetIndent(ctx, indentID)
	if err != nil {
		return nil, err
	}
	if indent.Status.IsTerminal() {
		return nil, domainwf.Validation("indent %s is %s", indent.ID, indent.Status)
	}

	stage := indent.CurrentStage()
	if len(payload.Quotes) > 0 && !quoteStages[stage] {
		return nil, domainwf.Validation("quotes cannot be recorded at stage %s", stage)
	}
	if len(payload.Selections) > 0 && !selectionStages[stage] {
		return nil, domainwf.Validation("vendors cannot be selected at stage %s", stage)
	}
	if len(payload.Quotes) == 0 && len(payload.Selections) == 0 {
		return nil, domainwf.Validation("nothing to amend")
	}
	if _, err := e.authorize(stage, actor); err != nil {
		return nil, err
	}
	if err := checkVersion(payload, indent.ID, indent.Version); err != nil {
		return nil, err
	}
	if err := checkStage(payload, indent.ID, stage); err != nil {
		return nil, err
	}

	if err := validateAmendment(indent, stage, payload); err != nil {
		return nil, err
	}

	now := e.now()
	updated := procurement.NewIndentSnapshot(indent, payload).Indent
	updated.UpdatedAt = now

	err = e.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		return repo.SaveIndent(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	batch := newEventBatch(e.newID(), actor)
	batch.add(event.TypeIndentAmended, event.EntityIndent, indent.ID, stage, map[string]interface{}{
		"quoted_items":   len(payload.Quotes),
		"selected_items": len(payload.Selections),
	})
	e.publish(ctx, batch)
	return updated, nil
}

func validateAmendment(indent *entity.Indent, stage domainwf.Stage, payload procurement.Payload) error {
	for code, quotes := range payload.Quotes {
		if indent.Item(code) == nil {
			return domainwf.Validation("indent %s has no item %s", indent.ID, code)
		}
		for _, q := range quotes {
			if strings.TrimSpace(q.VendorCode) == "" {
				return domainwf.Validation("quote for item %s has no vendor", code)
			}
			if !q.Price.IsPositive() {
				return domainwf.Validation("quote from %s for item %s must have a positive price", q.VendorCode, code)
			}
		}
	}

	for code, vendor := range payload.Selections {
		item := indent.Item(code)
		if item == nil {
			return domainwf.Validation("indent %s has no item %s", indent.ID, code)
		}
		if item.GroupedPO != "" {
			return domainwf.Validation("item %s is already on purchase order %s", code, item.GroupedPO)
		}
		quoted := item.Quote(vendor) != nil
		for _, q := range payload.Quotes[code] {
			if q.VendorCode == vendor {
				quoted = true
			}
		}
		if !quoted {
			return domainwf.Validation("vendor %s has not quoted for item %s", vendor, code)
		}
		// past sampling, a sampled indent may only switch to a vendor whose sample passed
		if stage == domainwf.StageSortVendors && indent.SampleRequired {
			if q := item.Quote(vendor); q == nil || q.InspectionStatus != entity.InspectionApproved {
				return domainwf.Validation("vendor %s has no approved sample for item %s", vendor, code)
			}
		}
	}
	return nil
}

// DeleteIndent removes an indent that never started or was rejected
func (e *engine) DeleteIndent(ctx context.Context, indentID string, actor entity.Actor) error {
	indent, err := e.reader.GetIndent(ctx, indentID)
	if err != nil {
		return err
	}
	if indent.Status != entity.IndentDraft && indent.Status != entity.IndentRejected {
		return domainwf.Validation("indent %s is %s and cannot be deleted", indent.ID, indent.Status)
	}
	if actor.Email != indent.RequestedBy && actor.Role != domainwf.RoleAdmin {
		return domainwf.Forbidden("only the requester or an admin may delete indent %s", indent.ID)
	}

	err = e.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		return repo.DeleteIndent(ctx, indent)
	})
	if err != nil {
		return err
	}

	e.logger.Info("Indent deleted", "indent_id", indent.ID, "actor", actor.Email)
	batch := newEventBatch(e.newID(), actor)
	batch.add(event.TypeIndentDeleted, event.EntityIndent, indent.ID, indent.CurrentStage(), nil)
	e.publish(ctx, batch)
	return nil
}
