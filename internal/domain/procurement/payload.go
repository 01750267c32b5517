package procurement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/indent-flow/internal/domain/entity"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Payload carries the caller-supplied input of one transition.
// Collaborator results (document references, the vendor-notified flag) arrive here
// so the state machine itself stays synchronous.
type Payload struct {
	// ExpectedVersion, when non-zero, must match the row version read by the engine
	ExpectedVersion int64 `json:"expected_version,omitempty"`
	// ExpectedStage, when set, must match the stage the entity is at when the engine reads it
	ExpectedStage domainwf.Stage `json:"expected_stage,omitempty"`

	Comments   string `json:"comments,omitempty"`
	AssignedTo string `json:"assigned_to,omitempty"`

	// Stage 3-4: quotes keyed by item code
	Quotes map[string][]entity.VendorQuote `json:"quotes,omitempty"`

	// Stage 5-8: selected vendor code keyed by item code
	Selections map[string]string `json:"selections,omitempty"`

	// Stage 8: sample inspection results keyed by item code
	Inspections map[string]InspectionResult `json:"inspections,omitempty"`

	// Stage 10 and 17: generated document reference
	DocumentRef string `json:"document_ref,omitempty"`

	// Stage 11
	ReceivedQuantity decimal.Decimal `json:"received_quantity"`
	ChallanRef       string          `json:"challan_ref,omitempty"`

	// Stage 13-16
	RejectionNote string `json:"rejection_note,omitempty"`
	Decision      string `json:"decision,omitempty"`
	ReturnDetails string `json:"return_details,omitempty"`
	EmailSent     bool   `json:"email_sent,omitempty"`

	// Stage 18
	Location string `json:"location,omitempty"`

	// Stage 20
	DueDate time.Time       `json:"due_date"`
	Amount  decimal.Decimal `json:"amount"`
	Terms   string          `json:"terms,omitempty"`
}

// InspectionResult is the sample verdict for one item
type InspectionResult struct {
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

// DocumentRefs returns the document references to stamp on the completion record
func (p Payload) DocumentRefs() []string {
	if p.DocumentRef == "" {
		return nil
	}
	return []string{p.DocumentRef}
}
