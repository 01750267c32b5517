package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/event"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/rowstore"
)

var dashboardStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openRecord(entityID string, stage domainwf.Stage, role domainwf.Role, at time.Time) entity.StepRecord {
	return entity.StepRecord{
		ID:        entityID + "-" + stage.Format(),
		EntityID:  entityID,
		Stage:     stage,
		Role:      role,
		Action:    "await",
		Status:    domainwf.StepPending,
		StartedAt: at,
		NextStep:  stage,
	}
}

func seedDashboard(t *testing.T) port.ProcurementRepository {
	t.Helper()
	ctx := context.Background()
	repo := rowstore.NewRepository(memory.NewStore(), rowstore.DefaultOptions())

	indent := func(id string, status entity.IndentStatus, rec entity.StepRecord) {
		in := &entity.Indent{ID: id, Title: "Indent " + id, RequestedBy: requester.Email, Status: status, CreatedAt: rec.StartedAt, UpdatedAt: rec.StartedAt}
		in.History.Append(rec)
		require.NoError(t, repo.CreateIndent(ctx, in))
	}
	indent("IND-0001", entity.IndentInProgress, openRecord("IND-0001", domainwf.StageApproveIndent, domainwf.RoleHOD, dashboardStart.Add(2*time.Hour)))
	indent("IND-0002", entity.IndentInProgress, openRecord("IND-0002", domainwf.StageFloatRFQ, domainwf.RolePurchaseExecutive, dashboardStart.Add(time.Hour)))
	// tracked by its purchase orders
	indent("IND-0003", entity.IndentInProgress, openRecord("IND-0003", domainwf.StagePlacePO, domainwf.RolePurchaseExecutive, dashboardStart))

	rejected := &entity.Indent{ID: "IND-0004", Title: "Rejected", Status: entity.IndentRejected}
	rejected.History.Append(entity.StepRecord{
		ID: "IND-0004-2", EntityID: "IND-0004", Stage: domainwf.StageApproveIndent, Role: domainwf.RoleHOD,
		Status: domainwf.StepRejected, StartedAt: dashboardStart, NextStep: domainwf.StageNone,
	})
	require.NoError(t, repo.CreateIndent(ctx, rejected))

	po := &entity.PurchaseOrder{ID: "PO-0001", VendorCode: "V100", Status: entity.POInProgress, RejectionNote: "cracked housing"}
	po.History.Append(openRecord("PO-0001", domainwf.StageRejectionDecision, domainwf.RolePurchaseManager, dashboardStart.Add(3*time.Hour)))
	require.NoError(t, repo.CreatePurchaseOrder(ctx, po))

	placed := &entity.PurchaseOrder{ID: "PO-0002", VendorCode: "V200", Status: entity.POInProgress}
	placed.History.Append(openRecord("PO-0002", domainwf.StagePlacePO, domainwf.RolePurchaseExecutive, dashboardStart.Add(30*time.Minute)))
	require.NoError(t, repo.CreatePurchaseOrder(ctx, placed))

	return repo
}

func TestDashboardService_Dashboard(t *testing.T) {
	svc := NewDashboardService(seedDashboard(t), &mockLogger{})

	dashboard, err := svc.Dashboard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, dashboard.Total)
	stages := make([]domainwf.Stage, 0, len(dashboard.Stages))
	for _, s := range dashboard.Stages {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []domainwf.Stage{
		domainwf.StageApproveIndent,
		domainwf.StageFloatRFQ,
		domainwf.StagePlacePO,
		domainwf.StageRejectionDecision,
	}, stages)

	placePO := dashboard.Stages[2]
	require.Len(t, placePO.Items, 1)
	assert.Equal(t, "PO-0002", placePO.Items[0].EntityID)
	assert.Equal(t, event.EntityPurchaseOrder, placePO.Items[0].EntityKind)

	decision := dashboard.Stages[3]
	assert.Equal(t, "cracked housing", decision.Items[0].RejectionNote)
}

func TestDashboardService_WorkFor(t *testing.T) {
	svc := NewDashboardService(seedDashboard(t), &mockLogger{})

	mine, err := svc.WorkFor(context.Background(), executive)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "PO-0002", mine[0].EntityID, "oldest first")
	assert.Equal(t, "IND-0002", mine[1].EntityID)

	all, err := svc.WorkFor(context.Background(), entity.Actor{Email: "admin@plant.example", Role: domainwf.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := svc.WorkFor(context.Background(), requester)
	require.NoError(t, err)
	assert.Empty(t, none)
}
