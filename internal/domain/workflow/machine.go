package workflow

import (
	"errors"
	"fmt"
)

// Table is the frozen stage -> {role, guards, transitions} structure.
// It holds no per-entity state; callers pass the current stage and a snapshot.
type Table[S any] interface {
	// Role returns the role that owns the stage
	Role(stage Stage) (Role, bool)

	// Resolve evaluates guards and branch conditions for the action and returns the next stage.
	// StageNone means the action terminates the lifecycle.
	Resolve(stage Stage, action Action, snap S) (Stage, error)

	// CanAdvance reports whether any action can move the stage to target, with the reason when not
	CanAdvance(stage Stage, target Stage, snap S) (bool, string)

	// PermittedActions returns the actions configured for the stage, in registration order
	PermittedActions(stage Stage) []Action

	// Targets returns every stage reachable from the stage in one transition
	Targets(stage Stage) []Stage
}

// stageTable implements Table
type stageTable[S any] struct {
	configurations map[Stage]*stageConfig[S]
}

// Role returns the role that owns the stage
func (t *stageTable[S]) Role(stage Stage) (Role, bool) {
	config, exists := t.configurations[stage]
	if !exists {
		return "", false
	}
	return config.role, true
}

// Resolve evaluates guards then picks the first transition whose condition holds
func (t *stageTable[S]) Resolve(stage Stage, action Action, snap S) (Stage, error) {
	config, exists := t.configurations[stage]
	if !exists {
		return StageNone, &Error{
			Kind:   KindValidation,
			Reason: fmt.Sprintf("stage %s accepts no actions", stage),
			Err:    ErrInvalidTransition,
		}
	}

	transitions, exists := config.transitions[action]
	if !exists || len(transitions) == 0 {
		return StageNone, &Error{
			Kind:   KindValidation,
			Reason: fmt.Sprintf("action %s is not allowed at stage %s", action, stage),
			Err:    ErrInvalidTransition,
		}
	}

	for _, guard := range config.guards[action] {
		if err := guard(snap); err != nil {
			return StageNone, asValidation(err)
		}
	}

	for _, tr := range transitions {
		if tr.cond == nil || tr.cond(snap) {
			return tr.toStage, nil
		}
	}

	return StageNone, &Error{
		Kind:   KindValidation,
		Reason: fmt.Sprintf("no branch of action %s applies at stage %s", action, stage),
		Err:    ErrGuardFailed,
	}
}

// CanAdvance checks every action that has an edge to target
func (t *stageTable[S]) CanAdvance(stage Stage, target Stage, snap S) (bool, string) {
	config, exists := t.configurations[stage]
	if !exists {
		return false, fmt.Sprintf("stage %s accepts no actions", stage)
	}

	reason := fmt.Sprintf("stage %s has no transition to %s", stage, target)
	for _, action := range config.actions {
		hasEdge := false
		for _, tr := range config.transitions[action] {
			if tr.toStage == target {
				hasEdge = true
				break
			}
		}
		if !hasEdge {
			continue
		}

		next, err := t.Resolve(stage, action, snap)
		if err != nil {
			reason = ReasonOf(err)
			continue
		}
		if next == target {
			return true, ""
		}
		reason = fmt.Sprintf("action %s leads to %s, not %s", action, next, target)
	}

	return false, reason
}

// PermittedActions returns the actions configured for the stage
func (t *stageTable[S]) PermittedActions(stage Stage) []Action {
	config, exists := t.configurations[stage]
	if !exists {
		return []Action{}
	}
	return append([]Action{}, config.actions...)
}

// Targets returns the distinct stages reachable in one transition
func (t *stageTable[S]) Targets(stage Stage) []Stage {
	config, exists := t.configurations[stage]
	if !exists {
		return []Stage{}
	}

	seen := make(map[Stage]bool)
	targets := make([]Stage, 0)
	for _, action := range config.actions {
		for _, tr := range config.transitions[action] {
			if !seen[tr.toStage] {
				seen[tr.toStage] = true
				targets = append(targets, tr.toStage)
			}
		}
	}
	return targets
}

// asValidation keeps classified guard errors and classifies bare ones
func asValidation(err error) error {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return err
	}
	return &Error{Kind: KindValidation, Reason: err.Error(), Err: err}
}
