package workflow

import (
	"fmt"
)

// Guard validates that an action may leave the current stage.
// It returns nil when allowed and a validation error carrying the reason otherwise.
// Guards must be pure: no side effects, deterministic for a given snapshot.
type Guard[S any] func(snap S) error

// Condition selects a branch among the transitions configured for an action
type Condition[S any] func(snap S) bool

// TableBuilder builds a stage-transition table
type TableBuilder[S any] interface {
	// Configure returns the configuration for the given stage
	Configure(stage Stage) StageConfiguration[S]

	// Build freezes the configuration into a table
	Build() Table[S]
}

// StageConfiguration configures ownership, guards and transitions of one stage
type StageConfiguration[S any] interface {
	// OwnedBy sets the role responsible for the stage
	OwnedBy(role Role) StageConfiguration[S]

	// Guard adds a guard evaluated before any transition for the action
	Guard(action Action, guard Guard[S]) StageConfiguration[S]

	// Permit allows the action to move to the target stage
	Permit(action Action, to Stage) StageConfiguration[S]

	// PermitIf allows the action to move to the target stage when the condition holds.
	// Transitions are tried in registration order; the first matching one wins.
	PermitIf(action Action, to Stage, cond Condition[S]) StageConfiguration[S]
}

// transition is one configured edge with an optional branch condition
type transition[S any] struct {
	toStage Stage
	cond    Condition[S]
}

// stageConfig implements StageConfiguration
type stageConfig[S any] struct {
	stage       Stage
	role        Role
	guards      map[Action][]Guard[S]
	transitions map[Action][]transition[S]
	actions     []Action
}

// tableBuilder implements TableBuilder
type tableBuilder[S any] struct {
	configurations map[Stage]*stageConfig[S]
}

// NewTableBuilder creates a new stage-transition table builder
func NewTableBuilder[S any]() TableBuilder[S] {
	return &tableBuilder[S]{
		configurations: make(map[Stage]*stageConfig[S]),
	}
}

// Configure returns the configuration for the given stage
func (b *tableBuilder[S]) Configure(stage Stage) StageConfiguration[S] {
	if !stage.IsValid() {
		panic(fmt.Sprintf("invalid stage: %d", int(stage)))
	}

	config, exists := b.configurations[stage]
	if !exists {
		config = &stageConfig[S]{
			stage:       stage,
			guards:      make(map[Action][]Guard[S]),
			transitions: make(map[Action][]transition[S]),
		}
		b.configurations[stage] = config
	}

	return config
}

// Build freezes the configuration. Every configured stage must have an owner.
func (b *tableBuilder[S]) Build() Table[S] {
	configsCopy := make(map[Stage]*stageConfig[S], len(b.configurations))
	for stage, config := range b.configurations {
		if !config.role.IsValid() {
			panic(fmt.Sprintf("stage %s has no owning role", stage))
		}

		guardsCopy := make(map[Action][]Guard[S], len(config.guards))
		for action, guards := range config.guards {
			guardsCopy[action] = append([]Guard[S]{}, guards...)
		}
		transitionsCopy := make(map[Action][]transition[S], len(config.transitions))
		for action, transitions := range config.transitions {
			transitionsCopy[action] = append([]transition[S]{}, transitions...)
		}

		configsCopy[stage] = &stageConfig[S]{
			stage:       stage,
			role:        config.role,
			guards:      guardsCopy,
			transitions: transitionsCopy,
			actions:     append([]Action{}, config.actions...),
		}
	}

	return &stageTable[S]{configurations: configsCopy}
}

// OwnedBy sets the role responsible for the stage
func (c *stageConfig[S]) OwnedBy(role Role) StageConfiguration[S] {
	if !role.IsValid() {
		panic(fmt.Sprintf("invalid role: %s", role))
	}
	c.role = role
	return c
}

// Guard adds a guard for the action
func (c *stageConfig[S]) Guard(action Action, guard Guard[S]) StageConfiguration[S] {
	c.guards[action] = append(c.guards[action], guard)
	return c
}

// Permit allows the action to move to the target stage
func (c *stageConfig[S]) Permit(action Action, to Stage) StageConfiguration[S] {
	return c.PermitIf(action, to, nil)
}

// PermitIf allows the action to move to the target stage if the condition passes
func (c *stageConfig[S]) PermitIf(action Action, to Stage, cond Condition[S]) StageConfiguration[S] {
	if !action.IsValid() {
		panic(fmt.Sprintf("invalid action: %s", action))
	}
	if to != StageNone && !to.IsValid() {
		panic(fmt.Sprintf("invalid target stage: %d", int(to)))
	}

	if _, exists := c.transitions[action]; !exists {
		c.actions = append(c.actions, action)
	}
	c.transitions[action] = append(c.transitions[action], transition[S]{
		toStage: to,
		cond:    cond,
	})

	return c
}
