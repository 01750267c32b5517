package procurement

import (
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// requireIndent and requirePO keep a misrouted snapshot from panicking a guard
func requireIndent(snap Snapshot) (*entity.Indent, error) {
	if snap.Indent == nil {
		return nil, workflow.Validation("stage %s applies to indents", snap.Stage)
	}
	return snap.Indent, nil
}

func requirePO(snap Snapshot) (*entity.PurchaseOrder, error) {
	if snap.PO == nil {
		return nil, workflow.Validation("stage %s applies to purchase orders", snap.Stage)
	}
	return snap.PO, nil
}

// HasValidItems requires at least one item and a positive quantity on every item
func HasValidItems(snap Snapshot) error {
	indent, err := requireIndent(snap)
	if err != nil {
		return err
	}
	if len(indent.Items) == 0 {
		return workflow.Validation("indent %s has no items", indent.ID)
	}
	for _, item := range indent.Items {
		if item.Code == "" {
			return workflow.Validation("item %q has no item code", item.Name)
		}
		if !item.Quantity.IsPositive() {
			return workflow.Validation("item %s has invalid quantity %s", item.Code, item.Quantity)
		}
	}
	return nil
}

// EveryItemQuoted requires at least one vendor quote per item
func EveryItemQuoted(snap Snapshot) error {
	indent, err := requireIndent(snap)
	if err != nil {
		return err
	}
	for _, item := range indent.Items {
		if len(item.Quotes) == 0 {
			return workflow.Validation("item %s has no vendor quote", item.Code)
		}
	}
	return nil
}

// QuotesComplete requires a vendor code and a positive price on every quote
func QuotesComplete(snap Snapshot) error {
	indent, err := requireIndent(snap)
	if err != nil {
		return err
	}
	for _, item := range indent.Items {
		for _, q := range item.Quotes {
			if q.VendorCode == "" {
				return workflow.Validation("item %s has a quote without vendor", item.Code)
			}
			if !q.Price.IsPositive() {
				return workflow.Validation("item %s: vendor %s quoted invalid price %s", item.Code, q.VendorCode, q.Price)
			}
		}
	}
	return nil
}

// EveryItemSelected requires a selected vendor backed by a quote on every item
func EveryItemSelected(snap Snapshot) error {
	indent, err := requireIndent(snap)
	if err != nil {
		return err
	}
	for _, item := range indent.Items {
		if item.SelectedVendor == "" {
			return workflow.Validation("item %s has no selected vendor", item.Code)
		}
		if item.SelectedQuote() == nil {
			return workflow.Validation("item %s: selected vendor %s has no quote", item.Code, item.SelectedVendor)
		}
	}
	return nil
}

// InspectionsRecorded requires a verdict for every item inspected in this call
func InspectionsRecorded(snap Snapshot) error {
	indent, err := requireIndent(snap)
	if err != nil {
		return err
	}
	if len(snap.Payload.Inspections) == 0 {
		return workflow.Validation("no sample inspection results supplied")
	}
	for code := range snap.Payload.Inspections {
		item := indent.Item(code)
		if item == nil {
			return workflow.Validation("inspection result for unknown item %s", code)
		}
		if item.SelectedQuote() == nil {
			return workflow.Validation("item %s has no selected vendor to inspect", code)
		}
	}
	return nil
}

// AllSamplesApproved reports whether every item's selected quote passed inspection
func AllSamplesApproved(snap Snapshot) bool {
	if snap.Indent == nil {
		return false
	}
	for _, item := range snap.Indent.Items {
		q := item.SelectedQuote()
		if q == nil || q.InspectionStatus != entity.InspectionApproved {
			return false
		}
	}
	return true
}

// SampleRequired reports whether the indent takes the sampling branch
func SampleRequired(snap Snapshot) bool {
	return snap.Indent != nil && snap.Indent.SampleRequired
}

// HasPODocument requires the generated purchase order document
func HasPODocument(snap Snapshot) error {
	po, err := requirePO(snap)
	if err != nil {
		return err
	}
	if po.DocumentRef == "" {
		return workflow.Validation("purchase order %s has no generated document", po.ID)
	}
	return nil
}

// MaterialReceived requires a positive received quantity
func MaterialReceived(snap Snapshot) error {
	po, err := requirePO(snap)
	if err != nil {
		return err
	}
	if !snap.Payload.ReceivedQuantity.IsPositive() {
		return workflow.Validation("purchase order %s: received quantity must be positive", po.ID)
	}
	return nil
}

// HasRejectionNote requires a note explaining the material rejection
func HasRejectionNote(snap Snapshot) error {
	po, err := requirePO(snap)
	if err != nil {
		return err
	}
	if snap.Payload.RejectionNote == "" {
		return workflow.Validation("purchase order %s: rejection note is required", po.ID)
	}
	return nil
}

// HasDecision requires resend or return
func HasDecision(snap Snapshot) error {
	if _, err := requirePO(snap); err != nil {
		return err
	}
	switch snap.Payload.Decision {
	case entity.DecisionResend, entity.DecisionReturn:
		return nil
	case "":
		return workflow.Validation("rejection decision is required")
	default:
		return workflow.Validation("unknown rejection decision %q", snap.Payload.Decision)
	}
}

// VendorNotified requires the caller-tracked email sent flag
func VendorNotified(snap Snapshot) error {
	po, err := requirePO(snap)
	if err != nil {
		return err
	}
	if !snap.Payload.EmailSent {
		return workflow.Validation("purchase order %s: vendor has not been notified", po.ID)
	}
	return nil
}

// HasGRNDocument requires the goods receipt note document
func HasGRNDocument(snap Snapshot) error {
	po, err := requirePO(snap)
	if err != nil {
		return err
	}
	if po.GRNRef == "" {
		return workflow.Validation("purchase order %s has no GRN document", po.ID)
	}
	return nil
}

// HasDueDate requires a payment due date
func HasDueDate(snap Snapshot) error {
	po, err := requirePO(snap)
	if err != nil {
		return err
	}
	if snap.Payload.DueDate.IsZero() {
		return workflow.Validation("purchase order %s: payment due date is required", po.ID)
	}
	return nil
}
