package procurement

import (
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Snapshot is the detached view a guard evaluates: the entity as it would look
// with the payload applied. Exactly one of Indent and PO is set.
type Snapshot struct {
	Stage   workflow.Stage
	Indent  *entity.Indent
	PO      *entity.PurchaseOrder
	Payload Payload
}

// NewIndentSnapshot clones the indent and merges the payload for the current stage
func NewIndentSnapshot(indent *entity.Indent, payload Payload) Snapshot {
	merged := indent.Clone()
	stage := merged.CurrentStage()

	for code, quotes := range payload.Quotes {
		if item := merged.Item(code); item != nil {
			for _, q := range quotes {
				item.AddOrReplaceQuote(q)
			}
		}
	}

	for code, vendor := range payload.Selections {
		if item := merged.Item(code); item != nil {
			item.SelectedVendor = vendor
		}
	}

	if stage == workflow.StageInspectSample {
		for code, result := range payload.Inspections {
			item := merged.Item(code)
			if item == nil {
				continue
			}
			if q := item.SelectedQuote(); q != nil {
				q.InspectionStatus = entity.InspectionRejected
				if result.Approved {
					q.InspectionStatus = entity.InspectionApproved
				}
				q.InspectionNote = result.Note
			}
		}
	}

	return Snapshot{Stage: stage, Indent: merged, Payload: payload}
}

// NewPOSnapshot clones the purchase order and merges the payload for the current stage
func NewPOSnapshot(po *entity.PurchaseOrder, payload Payload) Snapshot {
	merged := po.Clone()
	stage := merged.CurrentStage()

	switch stage {
	case workflow.StagePlacePO:
		if payload.DocumentRef != "" {
			merged.DocumentRef = payload.DocumentRef
		}
	case workflow.StageGenerateGRN:
		if payload.DocumentRef != "" {
			merged.GRNRef = payload.DocumentRef
		}
	case workflow.StageMaterialApproval:
		if payload.RejectionNote != "" {
			merged.RejectionNote = payload.RejectionNote
		}
	}

	return Snapshot{Stage: stage, PO: merged, Payload: payload}
}

// EntityID returns the id of the snapshot's entity
func (s Snapshot) EntityID() string {
	if s.PO != nil {
		return s.PO.ID
	}
	if s.Indent != nil {
		return s.Indent.ID
	}
	return ""
}
