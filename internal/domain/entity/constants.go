package entity

// IndentStatus is the overall status of an indent
type IndentStatus string

const (
	IndentDraft      IndentStatus = "draft"
	IndentInProgress IndentStatus = "in_progress"
	IndentPartial    IndentStatus = "partial"
	IndentCompleted  IndentStatus = "completed"
	IndentRejected   IndentStatus = "rejected"
)

// IsTerminal returns true for completed and rejected indents
func (s IndentStatus) IsTerminal() bool {
	return s == IndentCompleted || s == IndentRejected
}

// POStatus is the overall status of a purchase order
type POStatus string

const (
	POInProgress POStatus = "in_progress"
	POCompleted  POStatus = "completed"
)

// InspectionStatus is the sampling outcome recorded on a vendor quote
type InspectionStatus string

const (
	InspectionPending  InspectionStatus = "pending"
	InspectionApproved InspectionStatus = "approved"
	InspectionRejected InspectionStatus = "rejected"
)

// Rejection decisions taken at the Rejection Decision stage
const (
	DecisionResend = "resend"
	DecisionReturn = "return"
)

// Collection names used with the entity store
const (
	CollectionIndents             = "Indents"
	CollectionSteps               = "Steps"
	CollectionPurchaseOrders      = "PurchaseOrders"
	CollectionMaterialInspections = "MaterialInspections"
	CollectionReturnHistory       = "ReturnHistory"
	CollectionGRNs                = "GRNs"
	CollectionMaterialInward      = "MaterialInward"
	CollectionPaymentSchedules    = "PaymentSchedules"
)

// SatelliteCollections lists the append-only record collections
var SatelliteCollections = []string{
	CollectionMaterialInspections,
	CollectionReturnHistory,
	CollectionGRNs,
	CollectionMaterialInward,
	CollectionPaymentSchedules,
}
