package event

// Type identifies the type of domain event
type Type string

const (
	TypeIndentCreated    Type = "indent.created"
	TypeIndentSubmitted  Type = "indent.submitted"
	TypeIndentCompleted  Type = "indent.completed"
	TypeIndentRejected   Type = "indent.rejected"
	TypeIndentAmended    Type = "indent.amended"
	TypeIndentDeleted    Type = "indent.deleted"
	TypeStepOpened       Type = "step.opened"
	TypeStepCompleted    Type = "step.completed"
	TypeStepRejected     Type = "step.rejected"
	TypePOCreated        Type = "po.created"
	TypePOCompleted      Type = "po.completed"
	TypeRejectionEntered Type = "rejection.entered"
	TypeItemsUngrouped   Type = "grouping.ungrouped"
	TypeAncillaryFailed  Type = "ancillary.failed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeIndentCreated,
		TypeIndentSubmitted,
		TypeIndentCompleted,
		TypeIndentRejected,
		TypeIndentAmended,
		TypeIndentDeleted,
		TypeStepOpened,
		TypeStepCompleted,
		TypeStepRejected,
		TypePOCreated,
		TypePOCompleted,
		TypeRejectionEntered,
		TypeItemsUngrouped,
		TypeAncillaryFailed:
		return true
	default:
		return false
	}
}

// EntityKind tells whether an event belongs to an indent or a purchase order
type EntityKind string

const (
	EntityIndent        EntityKind = "indent"
	EntityPurchaseOrder EntityKind = "purchase_order"
)
