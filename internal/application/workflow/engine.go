package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/indent-flow/internal/application/dispatcher"
	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Engine is the only writer of step histories. Every write goes through a unit of work
// and every committed change is published to the dispatcher afterwards.
type Engine interface {
	// ApplyTransition validates and applies an action on an indent or purchase order
	// and returns the record it appended.
	ApplyTransition(ctx context.Context, entityID string, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error)

	// CanAdvance reports whether the entity could move to target with the payload applied
	CanAdvance(ctx context.Context, entityID string, target domainwf.Stage, payload procurement.Payload) (bool, string, error)

	// CreateIndent stores a draft indent with a pending Raise Indent record
	CreateIndent(ctx context.Context, draft IndentDraft, actor entity.Actor) (*entity.Indent, error)

	// AmendIndent merges quotes or vendor selections without changing the stage
	AmendIndent(ctx context.Context, indentID string, payload procurement.Payload, actor entity.Actor) (*entity.Indent, error)

	// DeleteIndent removes a draft or rejected indent and its history
	DeleteIndent(ctx context.Context, indentID string, actor entity.Actor) error
}

// EngineOption configures the engine
type EngineOption func(*engine)

// WithDispatcher sets the dispatcher committed events are published to
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engine) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(logger port.Logger) EngineOption {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) EngineOption {
	return func(e *engine) {
		e.now = now
	}
}

// WithIDGenerator replaces the record id generator
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *engine) {
		e.newID = newID
	}
}

type engine struct {
	reader     port.ProcurementRepository
	uow        port.UnitOfWork
	table      procurement.StageTable
	dispatcher dispatcher.Dispatcher
	logger     port.Logger
	now        func() time.Time
	newID      func() string
}

// NewEngine creates a transition engine. reader serves the reads that precede a
// write; uow commits the write with a version check on every row it touches.
func NewEngine(reader port.ProcurementRepository, uow port.UnitOfWork, opts ...EngineOption) Engine {
	return newEngine(reader, uow, opts...)
}

func newEngine(reader port.ProcurementRepository, uow port.UnitOfWork, opts ...EngineOption) *engine {
	e := &engine{
		reader: reader,
		uow:    uow,
		table:  procurement.Table(),
		logger: nopLogger{},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// publish hands committed events to the dispatcher; it never fails the caller
func (e *engine) publish(ctx context.Context, batch *eventBatch) {
	if e.dispatcher == nil || batch.empty() {
		return
	}
	e.dispatcher.Publish(ctx, batch.events)
}

// authorize checks the actor against the role owning the stage
func (e *engine) authorize(stage domainwf.Stage, actor entity.Actor) (domainwf.Role, error) {
	role, ok := e.table.Role(stage)
	if !ok {
		return "", domainwf.Validation("stage %s is not configured", stage)
	}
	if !actor.Role.CanActAs(role) {
		return "", domainwf.Forbidden("role %s cannot act on stage %s (owned by %s)", actor.Role, stage, role)
	}
	return role, nil
}

func checkVersion(payload procurement.Payload, id string, current int64) error {
	if payload.ExpectedVersion != 0 && payload.ExpectedVersion != current {
		return domainwf.Conflict(nil, "%s changed: expected version %d, found %d", id, payload.ExpectedVersion, current)
	}
	return nil
}

func checkStage(payload procurement.Payload, id string, current domainwf.Stage) error {
	if payload.ExpectedStage != domainwf.StageNone && payload.ExpectedStage != current {
		return domainwf.Conflict(nil, "%s moved: expected stage %s, found %s", id, payload.ExpectedStage, current)
	}
	return nil
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
