package workflow

// Action is a request that may move an indent or purchase order out of its current stage
type Action string

const (
	ActionOpen     Action = "open"
	ActionComplete Action = "complete"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionDecide   Action = "decide"
)

var validActions = map[Action]bool{
	ActionOpen:     true,
	ActionComplete: true,
	ActionApprove:  true,
	ActionReject:   true,
	ActionDecide:   true,
}

// IsValid returns true if the action is known
func (a Action) IsValid() bool {
	return validActions[a]
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// StepStatus is the status carried by a single step record
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepRejected   StepStatus = "rejected"
)

// IsTerminal returns true for completed and rejected records
func (s StepStatus) IsTerminal() bool {
	return s == StepCompleted || s == StepRejected
}

// IsValid returns true if the status is known
func (s StepStatus) IsValid() bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepRejected:
		return true
	}
	return false
}
