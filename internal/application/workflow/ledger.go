package workflow

import (
	"time"

	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/event"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// openRecord builds the in_progress record that supersedes a pending one
func (e *engine) openRecord(entityID string, current entity.StepRecord, role domainwf.Role, payload procurement.Payload, actor entity.Actor, now time.Time) entity.StepRecord {
	assignee := payload.AssignedTo
	if assignee == "" {
		assignee = actor.Email
	}
	return entity.StepRecord{
		ID:            e.newID(),
		EntityID:      entityID,
		Stage:         current.Stage,
		Role:          role,
		Action:        string(domainwf.ActionOpen),
		Status:        domainwf.StepInProgress,
		AssignedTo:    assignee,
		StartedAt:     now,
		Comments:      payload.Comments,
		RejectionNote: current.RejectionNote,
		NextStep:      current.Stage,
		PreviousStep:  current.PreviousStep,
		Supersedes:    current.Seq,
	}
}

// closingRecord builds the completed or rejected record for the action taken at current.Stage
func (e *engine) closingRecord(entityID string, current entity.StepRecord, role domainwf.Role, action domainwf.Action, next domainwf.Stage, payload procurement.Payload, actor entity.Actor, now time.Time) entity.StepRecord {
	started := now
	if current.Status == domainwf.StepInProgress {
		started = current.StartedAt
	}
	ended := now

	rec := entity.StepRecord{
		ID:            e.newID(),
		EntityID:      entityID,
		Stage:         current.Stage,
		Role:          role,
		Action:        string(action),
		Status:        domainwf.StepCompleted,
		AssignedTo:    actor.Email,
		StartedAt:     started,
		EndedAt:       &ended,
		Comments:      payload.Comments,
		DocumentRefs:  payload.DocumentRefs(),
		RejectionNote: current.RejectionNote,
		NextStep:      next,
		PreviousStep:  current.PreviousStep,
		Supersedes:    current.Seq,
	}

	switch action {
	case domainwf.ActionApprove:
		rec.ApprovedBy = actor.Email
		rec.ApprovedAt = &ended
	case domainwf.ActionDecide:
		rec.Decision = payload.Decision
	case domainwf.ActionReject:
		rec.Status = domainwf.StepRejected
		rec.RejectedBy = actor.Email
		rec.RejectedAt = &ended
		if payload.RejectionNote != "" {
			rec.RejectionNote = payload.RejectionNote
		}
	}
	return rec
}

// pendingRecord builds the record that awaits action at next
func (e *engine) pendingRecord(entityID string, next, previous domainwf.Stage, action string, now time.Time) entity.StepRecord {
	role, _ := e.table.Role(next)
	return entity.StepRecord{
		ID:           e.newID(),
		EntityID:     entityID,
		Stage:        next,
		Role:         role,
		Action:       action,
		Status:       domainwf.StepPending,
		StartedAt:    now,
		NextStep:     next,
		PreviousStep: previous,
	}
}

// eventBatch collects events while a unit of work runs; they are published after commit
type eventBatch struct {
	events        []*event.Event
	correlationID string
	actor         string
}

func newEventBatch(correlationID string, actor entity.Actor) *eventBatch {
	return &eventBatch{correlationID: correlationID, actor: actor.Email}
}

func (b *eventBatch) add(t event.Type, kind event.EntityKind, entityID string, stage domainwf.Stage, payload map[string]interface{}) {
	evt := event.NewEventWithCorrelation(t, kind, entityID, stage, payload, b.correlationID).WithActor(b.actor)
	b.events = append(b.events, evt)
}

// stepEvent records the event matching a closing record
func (b *eventBatch) stepEvent(kind event.EntityKind, rec entity.StepRecord, nextRole domainwf.Role) {
	t := event.TypeStepCompleted
	if rec.Status == domainwf.StepRejected {
		t = event.TypeStepRejected
	}
	b.add(t, kind, rec.EntityID, rec.Stage, map[string]interface{}{
		"action":     rec.Action,
		"next_stage": int(rec.NextStep),
		"next_role":  string(nextRole),
		"comments":   rec.Comments,
	})
}

func (b *eventBatch) empty() bool {
	return len(b.events) == 0
}
