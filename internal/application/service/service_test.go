package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/application/workflow"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// Mock implementations

type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockEngine struct {
	applyTransitionFunc func(ctx context.Context, entityID string, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error)
	canAdvanceFunc      func(ctx context.Context, entityID string, target domainwf.Stage, payload procurement.Payload) (bool, string, error)
	createIndentFunc    func(ctx context.Context, draft workflow.IndentDraft, actor entity.Actor) (*entity.Indent, error)
	amendIndentFunc     func(ctx context.Context, indentID string, payload procurement.Payload, actor entity.Actor) (*entity.Indent, error)
	deleteIndentFunc    func(ctx context.Context, indentID string, actor entity.Actor) error

	applyCalls int
}

func (m *mockEngine) ApplyTransition(ctx context.Context, entityID string, action domainwf.Action, payload procurement.Payload, actor entity.Actor) (*entity.StepRecord, error) {
	m.applyCalls++
	if m.applyTransitionFunc != nil {
		return m.applyTransitionFunc(ctx, entityID, action, payload, actor)
	}
	return &entity.StepRecord{EntityID: entityID}, nil
}

func (m *mockEngine) CanAdvance(ctx context.Context, entityID string, target domainwf.Stage, payload procurement.Payload) (bool, string, error) {
	if m.canAdvanceFunc != nil {
		return m.canAdvanceFunc(ctx, entityID, target, payload)
	}
	return true, "", nil
}

func (m *mockEngine) CreateIndent(ctx context.Context, draft workflow.IndentDraft, actor entity.Actor) (*entity.Indent, error) {
	if m.createIndentFunc != nil {
		return m.createIndentFunc(ctx, draft, actor)
	}
	return &entity.Indent{ID: "IND-0001", Title: draft.Title}, nil
}

func (m *mockEngine) AmendIndent(ctx context.Context, indentID string, payload procurement.Payload, actor entity.Actor) (*entity.Indent, error) {
	if m.amendIndentFunc != nil {
		return m.amendIndentFunc(ctx, indentID, payload, actor)
	}
	return &entity.Indent{ID: indentID}, nil
}

func (m *mockEngine) DeleteIndent(ctx context.Context, indentID string, actor entity.Actor) error {
	if m.deleteIndentFunc != nil {
		return m.deleteIndentFunc(ctx, indentID, actor)
	}
	return nil
}

type mockGrouping struct {
	groupFunc   func(ctx context.Context, actor entity.Actor) (*workflow.GroupingResult, error)
	previewFunc func(ctx context.Context) (*workflow.GroupingPlan, error)

	groupCalls int
}

func (m *mockGrouping) GroupApprovedItemsByVendor(ctx context.Context, actor entity.Actor) (*workflow.GroupingResult, error) {
	m.groupCalls++
	if m.groupFunc != nil {
		return m.groupFunc(ctx, actor)
	}
	return &workflow.GroupingResult{}, nil
}

func (m *mockGrouping) PreviewGrouping(ctx context.Context) (*workflow.GroupingPlan, error) {
	if m.previewFunc != nil {
		return m.previewFunc(ctx)
	}
	return &workflow.GroupingPlan{}, nil
}

// mockRepo serves purchase orders and satellites; other repository methods are not used by the services under test
type mockRepo struct {
	port.ProcurementRepository

	getIndentFunc        func(ctx context.Context, id string) (*entity.Indent, error)
	getPurchaseOrderFunc func(ctx context.Context, id string) (*entity.PurchaseOrder, error)
	listSatellitesFunc   func(ctx context.Context, collection, ownerID string) ([]entity.SatelliteRecord, error)
}

func (m *mockRepo) GetIndent(ctx context.Context, id string) (*entity.Indent, error) {
	if m.getIndentFunc != nil {
		return m.getIndentFunc(ctx, id)
	}
	return nil, domainwf.NotFound("indent %s not found", id)
}

func (m *mockRepo) GetPurchaseOrder(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	if m.getPurchaseOrderFunc != nil {
		return m.getPurchaseOrderFunc(ctx, id)
	}
	return nil, domainwf.NotFound("purchase order %s not found", id)
}

func (m *mockRepo) ListSatellites(ctx context.Context, collection, ownerID string) ([]entity.SatelliteRecord, error) {
	if m.listSatellitesFunc != nil {
		return m.listSatellitesFunc(ctx, collection, ownerID)
	}
	return nil, nil
}

var (
	requester = entity.Actor{Email: "asha@plant.example", Role: domainwf.RoleRequester}
	hod       = entity.Actor{Email: "hod@plant.example", Role: domainwf.RoleHOD}
	executive = entity.Actor{Email: "buyer@plant.example", Role: domainwf.RolePurchaseExecutive}
	manager   = entity.Actor{Email: "pm@plant.example", Role: domainwf.RolePurchaseManager}
	keeper    = entity.Actor{Email: "stores@plant.example", Role: domainwf.RoleStoreKeeper}
	accounts  = entity.Actor{Email: "accounts@plant.example", Role: domainwf.RoleAccounts}
)

func conflictErr() error {
	return domainwf.Conflict(errors.New("row changed since read"), "indent IND-0001 changed")
}

func TestRetryOnConflict(t *testing.T) {
	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantKind  domainwf.Kind
		wantWarns int
	}{
		{
			name:      "success first time",
			wantCalls: 1,
		},
		{
			name:      "conflict then success",
			failures:  []error{conflictErr()},
			wantCalls: 2,
			wantWarns: 1,
		},
		{
			name:      "conflict twice surfaces",
			failures:  []error{conflictErr(), conflictErr()},
			wantCalls: 2,
			wantKind:  domainwf.KindConflict,
			wantWarns: 1,
		},
		{
			name:      "validation is not retried",
			failures:  []error{domainwf.Validation("no quotes")},
			wantCalls: 1,
			wantKind:  domainwf.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &mockLogger{}
			calls := 0
			got, err := retryOnConflict(context.Background(), logger, "test", func() (string, error) {
				calls++
				if calls <= len(tt.failures) {
					return "", tt.failures[calls-1]
				}
				return "ok", nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Len(t, logger.warns, tt.wantWarns)
			if tt.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, "ok", got)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, domainwf.KindOf(err))
		})
	}
}

func TestRetryOnConflict_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := retryOnConflict(ctx, &mockLogger{}, "test", func() (int, error) {
		calls++
		return 0, conflictErr()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
