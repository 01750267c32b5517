package entity

import (
	"fmt"
	"time"

	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// StepRecord is one immutable entry of a StepHistory.
//
// Open records (pending, in_progress) carry NextStep == Stage: the stage awaiting action.
// Terminal records (completed, rejected) carry the stage that follows, or StageNone
// when the lifecycle ends. A record that closes an earlier open record names it in Supersedes.
type StepRecord struct {
	ID       string `json:"id"`
	EntityID string `json:"entity_id"`
	Seq      int    `json:"seq"`

	Stage  workflow.Stage      `json:"stage"`
	Role   workflow.Role       `json:"role"`
	Action string              `json:"action"`
	Status workflow.StepStatus `json:"status"`

	AssignedTo string     `json:"assigned_to,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`

	Comments     string   `json:"comments,omitempty"`
	DocumentRefs []string `json:"document_refs,omitempty"`

	ApprovedBy    string     `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	RejectedBy    string     `json:"rejected_by,omitempty"`
	RejectedAt    *time.Time `json:"rejected_at,omitempty"`
	RejectionNote string     `json:"rejection_note,omitempty"`
	Decision      string     `json:"decision,omitempty"`

	NextStep     workflow.Stage `json:"next_step"`
	PreviousStep workflow.Stage `json:"previous_step"`
	Supersedes   int            `json:"supersedes,omitempty"`
}

// IsOpen reports whether the record still awaits action
func (r StepRecord) IsOpen() bool {
	return !r.Status.IsTerminal()
}

// StepHistory is the append-only ledger of one indent or purchase order
type StepHistory struct {
	Records []StepRecord `json:"records"`
}

// Len returns the number of records
func (h StepHistory) Len() int {
	return len(h.Records)
}

// Current returns the last record, read-only
func (h StepHistory) Current() (StepRecord, bool) {
	if len(h.Records) == 0 {
		return StepRecord{}, false
	}
	return h.Records[len(h.Records)-1], true
}

// CurrentStage returns the NextStep pointer of the current record
func (h StepHistory) CurrentStage() workflow.Stage {
	current, ok := h.Current()
	if !ok {
		return workflow.StageNone
	}
	return current.NextStep
}

// Append adds a record, assigning the next sequence number
func (h *StepHistory) Append(rec StepRecord) StepRecord {
	rec.Seq = len(h.Records) + 1
	h.Records = append(h.Records, rec)
	return rec
}

// Since returns the records with Seq greater than seq
func (h StepHistory) Since(seq int) []StepRecord {
	if seq >= len(h.Records) {
		return nil
	}
	if seq < 0 {
		seq = 0
	}
	return append([]StepRecord{}, h.Records[seq:]...)
}

// Effective returns the records that have not been superseded, in order
func (h StepHistory) Effective() []StepRecord {
	superseded := make(map[int]bool)
	for _, rec := range h.Records {
		if rec.Supersedes > 0 {
			superseded[rec.Supersedes] = true
		}
	}

	effective := make([]StepRecord, 0, len(h.Records))
	for _, rec := range h.Records {
		if !superseded[rec.Seq] {
			effective = append(effective, rec)
		}
	}
	return effective
}

// Visits counts terminal records for a stage (how often it was completed or rejected)
func (h StepHistory) Visits(stage workflow.Stage) int {
	count := 0
	for _, rec := range h.Records {
		if rec.Stage == stage && rec.Status.IsTerminal() {
			count++
		}
	}
	return count
}

// Validate checks the ledger invariants: the effective history has exactly one
// open record, and it is the last one, unless the owner is terminal; NextStep of
// the current record is a valid stage or empty only when terminal.
func (h StepHistory) Validate(ownerTerminal bool) error {
	current, ok := h.Current()
	if !ok {
		return fmt.Errorf("step history is empty")
	}

	open := 0
	for i, rec := range h.Effective() {
		if rec.IsOpen() {
			open++
			if i != len(h.Effective())-1 {
				return fmt.Errorf("open record seq %d is not the current record", rec.Seq)
			}
		}
	}

	if ownerTerminal {
		if open != 0 {
			return fmt.Errorf("terminal owner has %d open records", open)
		}
		if current.NextStep != workflow.StageNone {
			return fmt.Errorf("terminal owner points to stage %s", current.NextStep)
		}
		return nil
	}

	if open != 1 {
		return fmt.Errorf("expected exactly one open record, found %d", open)
	}
	if !current.NextStep.IsValid() {
		return fmt.Errorf("current record points to invalid stage %d", int(current.NextStep))
	}
	if current.IsOpen() && current.NextStep != current.Stage {
		return fmt.Errorf("open record for %s points to %s", current.Stage, current.NextStep)
	}
	return nil
}
