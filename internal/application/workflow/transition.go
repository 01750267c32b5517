package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/event"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// ApplyTransition validates the action against the stage table and commits the
// resulting records in one unit of work
func (e *engine) ApplyTransition(ctx context.Context, entityID string, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error) {
	if !action.IsValid() {
		return nil, domainwf.Validation("unknown action %q", action)
	}

	indent, po, err := loadEntity(ctx, e.reader, entityID)
	if err != nil {
		return nil, err
	}
	if indent != nil {
		return e.applyToIndent(ctx, indent, action, payload, actor)
	}
	return e.applyToPurchaseOrder(ctx, po, action, payload, actor)
}

// CanAdvance evaluates the guards without writing anything
func (e *engine) CanAdvance(ctx context.Context, entityID string, target domainwf.Stage, payload procurement.Payload) (bool, string, error) {
	indent, po, err := loadEntity(ctx, e.reader, entityID)
	if err != nil {
		return false, "", err
	}

	var snap procurement.Snapshot
	if indent != nil {
		snap = procurement.NewIndentSnapshot(indent, payload)
	} else {
		snap = procurement.NewPOSnapshot(po, payload)
	}
	ok, reason := procurement.CanAdvance(snap, target)
	return ok, reason, nil
}

// loadEntity resolves an id to either an indent or a purchase order
func loadEntity(ctx context.Context, repo port.ProcurementRepository, id string) (*entity.Indent, *entity.PurchaseOrder, error) {
	indent, err := repo.GetIndent(ctx, id)
	if err == nil {
		return indent, nil, nil
	}
	if !errors.Is(err, domainwf.ErrNotFound) {
		return nil, nil, err
	}

	po, err := repo.GetPurchaseOrder(ctx, id)
	if err != nil {
		if errors.Is(err, domainwf.ErrNotFound) {
			return nil, nil, domainwf.NotFound("no indent or purchase order with id %s", id)
		}
		return nil, nil, err
	}
	return nil, po, nil
}

// checkOpen verifies that an open action has a pending record to supersede
func (e *engine) checkOpen(current entity.StepRecord) error {
	if current.Status != domainwf.StepPending {
		return domainwf.Validation("stage %s is already %s", current.Stage, current.Status)
	}
	if len(e.table.PermittedActions(current.Stage)) == 0 {
		return domainwf.Validation("stage %s accepts no actions", current.Stage)
	}
	return nil
}

func (e *engine) applyToIndent(ctx context.Context, indent *entity.Indent, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error) {
	if indent.Status.IsTerminal() {
		return nil, domainwf.Validation("indent %s is %s", indent.ID, indent.Status)
	}

	stage := indent.CurrentStage()
	if stage.IsPurchaseOrderScoped() {
		return nil, domainwf.Validation("indent %s is tracked by its purchase orders", indent.ID)
	}
	current, ok := indent.History.Current()
	if !ok {
		return nil, domainwf.Validation("indent %s has no step history", indent.ID)
	}

	role, err := e.authorize(stage, actor)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(payload, indent.ID, indent.Version); err != nil {
		return nil, err
	}
	if err := checkStage(payload, indent.ID, stage); err != nil {
		return nil, err
	}

	now := e.now()
	batch := newEventBatch(e.newID(), actor)

	var (
		updated *entity.Indent
		rec     entity.StepRecord
	)
	if action == domainwf.ActionOpen {
		if err := e.checkOpen(current); err != nil {
			return nil, err
		}
		updated = indent.Clone()
		rec = updated.History.Append(e.openRecord(indent.ID, current, role, payload, actor, now))
		batch.add(event.TypeStepOpened, event.EntityIndent, indent.ID, stage, map[string]interface{}{
			"assigned_to": rec.AssignedTo,
		})
	} else {
		snap := procurement.NewIndentSnapshot(indent, payload)
		next, err := e.table.Resolve(stage, action, snap)
		if err != nil {
			return nil, err
		}

		updated = snap.Indent
		rec = updated.History.Append(e.closingRecord(indent.ID, current, role, action, next, payload, actor, now))
		nextRole := domainwf.Role("")
		if next != domainwf.StageNone {
			pending := updated.History.Append(e.pendingRecord(indent.ID, next, stage, "await", now))
			nextRole = pending.Role
		}
		deriveIndentStatus(updated, stage, next)

		batch.stepEvent(event.EntityIndent, rec, nextRole)
		switch {
		case stage == domainwf.StageRaiseIndent:
			batch.add(event.TypeIndentSubmitted, event.EntityIndent, indent.ID, stage, nil)
		case updated.Status == entity.IndentRejected:
			batch.add(event.TypeIndentRejected, event.EntityIndent, indent.ID, stage, map[string]interface{}{
				"rejection_note": rec.RejectionNote,
			})
		}
	}
	updated.UpdatedAt = now

	err = e.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		return repo.SaveIndent(ctx, updated)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Indent transition applied",
		"indent_id", indent.ID,
		"stage", int(stage),
		"action", string(action),
		"next_stage", int(rec.NextStep),
		"actor", actor.Email,
	)
	e.publish(ctx, batch)
	return &rec, nil
}

// deriveIndentStatus updates the indent status after a closing record at stage
func deriveIndentStatus(indent *entity.Indent, stage, next domainwf.Stage) {
	switch {
	case next == domainwf.StageNone:
		indent.Status = entity.IndentRejected
	case stage == domainwf.StageInspectSample && next == domainwf.StageInspectSample:
		indent.Status = entity.IndentPartial
	default:
		indent.Status = entity.IndentInProgress
	}
}

func (e *engine) applyToPurchaseOrder(ctx context.Context, po *entity.PurchaseOrder, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error) {
	if po.Status == entity.POCompleted {
		return nil, domainwf.Validation("purchase order %s is completed", po.ID)
	}

	stage := po.CurrentStage()
	current, ok := po.History.Current()
	if !ok {
		return nil, domainwf.Validation("purchase order %s has no step history", po.ID)
	}

	role, err := e.authorize(stage, actor)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(payload, po.ID, po.Version); err != nil {
		return nil, err
	}
	if err := checkStage(payload, po.ID, stage); err != nil {
		return nil, err
	}

	now := e.now()
	batch := newEventBatch(e.newID(), actor)

	var (
		updated    *entity.PurchaseOrder
		rec        entity.StepRecord
		satellites []entity.SatelliteRecord
	)
	if action == domainwf.ActionOpen {
		if err := e.checkOpen(current); err != nil {
			return nil, err
		}
		updated = po.Clone()
		rec = updated.History.Append(e.openRecord(po.ID, current, role, payload, actor, now))
		batch.add(event.TypeStepOpened, event.EntityPurchaseOrder, po.ID, stage, map[string]interface{}{
			"assigned_to": rec.AssignedTo,
		})
	} else {
		snap := procurement.NewPOSnapshot(po, payload)
		next, err := e.table.Resolve(stage, action, snap)
		if err != nil {
			return nil, err
		}

		updated = snap.PO
		closing := e.closingRecord(po.ID, current, role, action, next, payload, actor, now)
		if stage == domainwf.StageMaterialApproval && action == domainwf.ActionReject {
			updated.RejectionCycles++
			closing.RejectionNote = updated.RejectionNote
			batch.add(event.TypeRejectionEntered, event.EntityPurchaseOrder, po.ID, stage, map[string]interface{}{
				"rejection_note": updated.RejectionNote,
				"cycle":          updated.RejectionCycles,
			})
			e.logger.Info("Material rejected, entering rejection loop",
				"po_id", po.ID,
				"cycle", updated.RejectionCycles,
			)
		}
		rec = updated.History.Append(closing)

		nextRole := domainwf.Role("")
		if next != domainwf.StageNone {
			pending := e.pendingRecord(po.ID, next, stage, "await", now)
			if next.InRejectionLoop() {
				pending.RejectionNote = updated.RejectionNote
			}
			pending = updated.History.Append(pending)
			nextRole = pending.Role
		} else {
			updated.Status = entity.POCompleted
			batch.add(event.TypePOCompleted, event.EntityPurchaseOrder, po.ID, stage, map[string]interface{}{
				"indent_ids": updated.IndentIDs(),
			})
		}
		batch.stepEvent(event.EntityPurchaseOrder, rec, nextRole)

		satellites = e.satellitesFor(updated, stage, payload, actor, now)
	}
	updated.UpdatedAt = now

	err = e.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		if err := repo.SavePurchaseOrder(ctx, updated); err != nil {
			return err
		}
		for _, sat := range satellites {
			if err := repo.AppendSatellite(ctx, sat); err != nil {
				return err
			}
		}
		if action != domainwf.ActionOpen && stage == domainwf.StageMaterialInward {
			if err := e.reconcileInward(ctx, repo, updated, payload, actor, now); err != nil {
				return err
			}
		}
		if updated.Status == entity.POCompleted {
			return e.completeIndents(ctx, repo, updated, batch, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Purchase order transition applied",
		"po_id", po.ID,
		"stage", int(stage),
		"action", string(action),
		"next_stage", int(rec.NextStep),
		"actor", actor.Email,
	)
	e.publish(ctx, batch)

	if action != domainwf.ActionOpen && stage == domainwf.StageGenerateGRN {
		e.draftInward(ctx, updated, actor, now)
	}
	return &rec, nil
}

// satellitesFor returns the append-only records a completed stage produces
func (e *engine) satellitesFor(po *entity.PurchaseOrder, stage domainwf.Stage, payload procurement.Payload, actor entity.Actor, now time.Time) []entity.SatelliteRecord {
	switch stage {
	case domainwf.StageReceiveMaterial:
		return []entity.SatelliteRecord{entity.MaterialInspection{
			ID:               e.newID(),
			POID:             po.ID,
			ReceivedQuantity: payload.ReceivedQuantity,
			ChallanRef:       payload.ChallanRef,
			Notes:            payload.Comments,
			Cycle:            po.RejectionCycles + 1,
			RecordedBy:       actor.Email,
			CreatedAt:        now,
		}}
	case domainwf.StageReturnMaterial:
		return []entity.SatelliteRecord{entity.ReturnRecord{
			ID:            e.newID(),
			POID:          po.ID,
			VendorCode:    po.VendorCode,
			RejectionNote: po.RejectionNote,
			Decision:      latestDecision(po.History),
			Details:       payload.ReturnDetails,
			Cycle:         po.RejectionCycles,
			RecordedBy:    actor.Email,
			CreatedAt:     now,
		}}
	case domainwf.StageGenerateGRN:
		return []entity.SatelliteRecord{entity.GRN{
			ID:          e.newID(),
			POID:        po.ID,
			DocumentRef: po.GRNRef,
			Lines:       append([]entity.POLineItem(nil), po.Lines...),
			RecordedBy:  actor.Email,
			CreatedAt:   now,
		}}
	case domainwf.StageSchedulePayment:
		amount := payload.Amount
		if !amount.IsPositive() {
			amount = po.Total
		}
		return []entity.SatelliteRecord{entity.PaymentSchedule{
			ID:         e.newID(),
			POID:       po.ID,
			VendorCode: po.VendorCode,
			Amount:     amount,
			DueDate:    payload.DueDate,
			Terms:      payload.Terms,
			RecordedBy: actor.Email,
			CreatedAt:  now,
		}}
	}
	return nil
}

// latestDecision returns the decision of the most recent Rejection Decision record
func latestDecision(history entity.StepHistory) string {
	for i := len(history.Records) - 1; i >= 0; i-- {
		rec := history.Records[i]
		if rec.Stage == domainwf.StageRejectionDecision && rec.Status.IsTerminal() {
			return rec.Decision
		}
	}
	return ""
}

// draftInward writes the material inward entry for a new GRN. It runs after the
// GRN stage has committed; a failure is logged and published, never returned.
func (e *engine) draftInward(ctx context.Context, po *entity.PurchaseOrder, actor entity.Actor, now time.Time) {
	entry := entity.MaterialInward{
		ID:         e.newID(),
		POID:       po.ID,
		GRNRef:     po.GRNRef,
		RecordedBy: actor.Email,
		CreatedAt:  now,
	}
	err := e.uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		return repo.AppendSatellite(ctx, entry)
	})
	if err == nil {
		return
	}

	e.logger.Warn("Material inward entry not created, continuing",
		"po_id", po.ID,
		"grn_ref", po.GRNRef,
		"error", err,
	)
	batch := newEventBatch(e.newID(), actor)
	batch.add(event.TypeAncillaryFailed, event.EntityPurchaseOrder, po.ID, domainwf.StageGenerateGRN, map[string]interface{}{
		"operation": "material_inward_entry",
		"error":     err.Error(),
	})
	e.publish(ctx, batch)
}

// reconcileInward makes sure an inward entry exists for the PO's GRN once stage 18 completes
func (e *engine) reconcileInward(ctx context.Context, repo port.ProcurementRepository, po *entity.PurchaseOrder, payload procurement.Payload, actor entity.Actor, now time.Time) error {
	existing, err := repo.ListSatellites(ctx, entity.CollectionMaterialInward, po.ID)
	if err != nil {
		return err
	}
	for _, rec := range existing {
		if inward, ok := rec.(entity.MaterialInward); ok && inward.GRNRef == po.GRNRef {
			return nil
		}
	}

	return repo.AppendSatellite(ctx, entity.MaterialInward{
		ID:         e.newID(),
		POID:       po.ID,
		GRNRef:     po.GRNRef,
		Location:   payload.Location,
		RecordedBy: actor.Email,
		CreatedAt:  now,
	})
}

// completeIndents closes every source indent whose purchase orders have all
// released payment. It runs inside the unit of work of the final PO transition.
func (e *engine) completeIndents(ctx context.Context, repo port.ProcurementRepository, done *entity.PurchaseOrder, batch *eventBatch, now time.Time) error {
	for _, indentID := range done.IndentIDs() {
		indent, err := repo.GetIndent(ctx, indentID)
		if err != nil {
			return err
		}
		if indent.Status.IsTerminal() || !indent.AllGrouped() {
			continue
		}

		finished := true
		for _, poID := range indent.PurchaseOrderIDs() {
			if poID == done.ID {
				continue
			}
			other, err := repo.GetPurchaseOrder(ctx, poID)
			if err != nil {
				return err
			}
			if other.Status != entity.POCompleted {
				finished = false
				break
			}
		}
		if !finished {
			continue
		}

		current, ok := indent.History.Current()
		if !ok {
			continue
		}
		ended := now
		rec := indent.History.Append(entity.StepRecord{
			ID:           e.newID(),
			EntityID:     indent.ID,
			Stage:        domainwf.StageReleasePayment,
			Role:         domainwf.RoleAccounts,
			Action:       "derived_completion",
			Status:       domainwf.StepCompleted,
			AssignedTo:   entity.SystemActor.Email,
			StartedAt:    current.StartedAt,
			EndedAt:      &ended,
			Comments:     "all purchase orders released",
			NextStep:     domainwf.StageNone,
			PreviousStep: current.Stage,
			Supersedes:   current.Seq,
		})
		indent.Status = entity.IndentCompleted
		indent.UpdatedAt = now
		if err := repo.SaveIndent(ctx, indent); err != nil {
			return err
		}

		batch.add(event.TypeIndentCompleted, event.EntityIndent, indent.ID, rec.Stage, map[string]interface{}{
			"purchase_orders": indent.PurchaseOrderIDs(),
		})
	}
	return nil
}
