package workflow

import (
	"fmt"
	"strconv"
)

// Stage is one of the 21 ordered points in the procurement lifecycle.
// StageNone marks an empty NextStep on a terminal record.
type Stage int

const (
	StageNone Stage = iota
	StageRaiseIndent
	StageApproveIndent
	StageFloatRFQ
	StageFollowUpQuotations
	StageComparativeStatement
	StageApproveQuotation
	StageRequestSample
	StageInspectSample
	StageSortVendors
	StagePlacePO
	StageReceiveMaterial
	StageInspectMaterial
	StageMaterialApproval
	StageRejectionDecision
	StageReturnMaterial
	StageResendMaterial
	StageGenerateGRN
	StageMaterialInward
	StageVerifyInvoice
	StageSchedulePayment
	StageReleasePayment
)

// FirstStage and LastStage bound the valid stage range.
const (
	FirstStage = StageRaiseIndent
	LastStage  = StageReleasePayment
)

var stageNames = map[Stage]string{
	StageRaiseIndent:          "Raise Indent",
	StageApproveIndent:        "Approve Indent",
	StageFloatRFQ:             "Float RFQ",
	StageFollowUpQuotations:   "Follow-up Quotations",
	StageComparativeStatement: "Comparative Statement",
	StageApproveQuotation:     "Approve Quotation",
	StageRequestSample:        "Request Sample",
	StageInspectSample:        "Inspect Sample",
	StageSortVendors:          "Sort Vendors",
	StagePlacePO:              "Place PO",
	StageReceiveMaterial:      "Receive Material",
	StageInspectMaterial:      "Inspect Material",
	StageMaterialApproval:     "Material Approval",
	StageRejectionDecision:    "Rejection Decision",
	StageReturnMaterial:       "Return Material",
	StageResendMaterial:       "Resend Material",
	StageGenerateGRN:          "Generate GRN",
	StageMaterialInward:       "Material Inward Entry",
	StageVerifyInvoice:        "Verify Invoice",
	StageSchedulePayment:      "Schedule Payment",
	StageReleasePayment:       "Release Payment",
}

// IsValid returns true for stages 1..21
func (s Stage) IsValid() bool {
	return s >= FirstStage && s <= LastStage
}

// Name returns the human-readable stage label
func (s Stage) Name() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	if s == StageNone {
		return "None"
	}
	return "Unknown"
}

// String returns "<n> <name>", e.g. "10 Place PO"
func (s Stage) String() string {
	return fmt.Sprintf("%d %s", int(s), s.Name())
}

// IsPurchaseOrderScoped reports whether the stage belongs to a purchase order
// rather than an indent. Progression from Place PO onward is tracked per PO.
func (s Stage) IsPurchaseOrderScoped() bool {
	return s >= StagePlacePO && s <= LastStage
}

// InRejectionLoop reports whether the stage is part of the material rejection sub-cycle.
func (s Stage) InRejectionLoop() bool {
	return s >= StageRejectionDecision && s <= StageResendMaterial
}

// ParseStage converts a stage number string ("" means StageNone)
func ParseStage(raw string) (Stage, error) {
	if raw == "" {
		return StageNone, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return StageNone, fmt.Errorf("%w: stage %q", ErrInvalidStage, raw)
	}
	s := Stage(n)
	if s != StageNone && !s.IsValid() {
		return StageNone, fmt.Errorf("%w: stage %d", ErrInvalidStage, n)
	}
	return s, nil
}

// Format renders the stage as its number, or "" for StageNone
func (s Stage) Format() string {
	if s == StageNone {
		return ""
	}
	return strconv.Itoa(int(s))
}

// AllStages returns stages 1..21 in order
func AllStages() []Stage {
	stages := make([]Stage, 0, int(LastStage))
	for s := FirstStage; s <= LastStage; s++ {
		stages = append(stages, s)
	}
	return stages
}
