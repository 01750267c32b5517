package rowstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/workflow"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/memory"
)

// plainStore hides the memory store's transactions to exercise compensation
type plainStore struct {
	port.EntityStore
}

func newIndent(id string) *entity.Indent {
	now := time.Now().UTC().Truncate(time.Millisecond)
	indent := &entity.Indent{
		ID:          id,
		Title:       "Fasteners",
		Department:  "Maintenance",
		RequestedBy: "req@example.com",
		Status:      entity.IndentDraft,
		Items: []entity.IndentItem{{
			Code:     "BOLT-M8",
			Name:     "Hex bolt M8",
			Quantity: decimal.NewFromInt(250),
			Quotes: []entity.VendorQuote{{
				VendorCode:       "V1",
				Price:            decimal.RequireFromString("2.45"),
				InspectionStatus: entity.InspectionPending,
			}},
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	indent.History.Append(entity.StepRecord{
		ID:        id + "-1",
		Stage:     workflow.StageRaiseIndent,
		Role:      workflow.RoleRequester,
		Action:    "create",
		Status:    workflow.StepPending,
		NextStep:  workflow.StageRaiseIndent,
		StartedAt: now,
	})
	return indent
}

func TestRepository_IndentRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.NewStore(), DefaultOptions())

	id, err := repo.NextIndentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "IND-0001", id)

	indent := newIndent(id)
	require.NoError(t, repo.CreateIndent(ctx, indent))
	assert.Equal(t, int64(1), indent.Version)

	loaded, err := repo.GetIndent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, indent.Title, loaded.Title)
	assert.Equal(t, int64(1), loaded.Version)
	assert.True(t, loaded.Items[0].Quantity.Equal(decimal.NewFromInt(250)))
	assert.True(t, loaded.Items[0].Quotes[0].Price.Equal(decimal.RequireFromString("2.45")))
	require.Equal(t, 1, loaded.History.Len())
	assert.Equal(t, workflow.StageRaiseIndent, loaded.CurrentStage())
	assert.Equal(t, 1, loaded.PersistedSteps)
	assert.True(t, indent.CreatedAt.Equal(loaded.CreatedAt))

	next, err := repo.NextIndentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "IND-0002", next)
}

func TestRepository_SaveIndentAppendsOnlyNewSteps(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewRepository(store, DefaultOptions())

	indent := newIndent("IND-0001")
	require.NoError(t, repo.CreateIndent(ctx, indent))

	now := time.Now()
	indent.History.Append(entity.StepRecord{ID: "s2", Stage: workflow.StageRaiseIndent, Status: workflow.StepCompleted,
		NextStep: workflow.StageApproveIndent, Supersedes: 1, EndedAt: &now, DocumentRefs: []string{"doc-1"}})
	indent.History.Append(entity.StepRecord{ID: "s3", Stage: workflow.StageApproveIndent, Status: workflow.StepPending,
		NextStep: workflow.StageApproveIndent, PreviousStep: workflow.StageRaiseIndent})
	indent.Status = entity.IndentInProgress
	require.NoError(t, repo.SaveIndent(ctx, indent))
	assert.Equal(t, int64(2), indent.Version)

	rows, err := store.GetRows(ctx, entity.CollectionSteps)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	loaded, err := repo.GetIndent(ctx, "IND-0001")
	require.NoError(t, err)
	assert.Equal(t, entity.IndentInProgress, loaded.Status)
	assert.Equal(t, workflow.StageApproveIndent, loaded.CurrentStage())
	assert.Equal(t, []string{"doc-1"}, loaded.History.Records[1].DocumentRefs)
	assert.Equal(t, 1, loaded.History.Records[1].Supersedes)
	assert.NoError(t, loaded.History.Validate(false))
}

func TestRepository_StaleSaveConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.NewStore(), DefaultOptions())
	require.NoError(t, repo.CreateIndent(ctx, newIndent("IND-0001")))

	first, _ := repo.GetIndent(ctx, "IND-0001")
	second, _ := repo.GetIndent(ctx, "IND-0001")

	first.Title = "first"
	require.NoError(t, repo.SaveIndent(ctx, first))

	second.Title = "second"
	err := repo.SaveIndent(ctx, second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, workflow.ErrConflict))
	assert.True(t, workflow.IsRetryable(err))

	loaded, _ := repo.GetIndent(ctx, "IND-0001")
	assert.Equal(t, "first", loaded.Title)
}

func TestRepository_NotFound(t *testing.T) {
	repo := NewRepository(memory.NewStore(), DefaultOptions())
	_, err := repo.GetIndent(context.Background(), "IND-9999")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
	_, err = repo.GetPurchaseOrder(context.Background(), "PO-9999")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestRepository_IDCollisionCheck(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewRepository(store, Options{PurchaseOrderPrefix: "PO-", IDPadding: 3})

	require.NoError(t, store.AppendRow(ctx, entity.CollectionPurchaseOrders, port.Row{"id": "PO-007"}))
	require.NoError(t, store.AppendRow(ctx, entity.CollectionPurchaseOrders, port.Row{"id": "legacy"}))

	id, err := repo.NextPurchaseOrderID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PO-008", id)
}

func TestRepository_DeleteIndent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewRepository(store, DefaultOptions())
	indent := newIndent("IND-0001")
	require.NoError(t, repo.CreateIndent(ctx, indent))
	require.NoError(t, repo.CreateIndent(ctx, newIndent("IND-0002")))

	require.NoError(t, repo.DeleteIndent(ctx, indent))

	_, err := repo.GetIndent(ctx, "IND-0001")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
	steps, _ := store.GetRows(ctx, entity.CollectionSteps)
	require.Len(t, steps, 1)
	assert.Equal(t, "IND-0002", steps[0]["entity_id"])
}

func TestRepository_Satellites(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memory.NewStore(), DefaultOptions())

	rec := entity.ReturnRecord{ID: "r1", POID: "PO-0001", VendorCode: "V1", RejectionNote: "cracked", Cycle: 1, CreatedAt: time.Now()}
	require.NoError(t, repo.AppendSatellite(ctx, rec))
	require.NoError(t, repo.AppendSatellite(ctx, entity.ReturnRecord{ID: "r2", POID: "PO-0002"}))

	records, err := repo.ListSatellites(ctx, entity.CollectionReturnHistory, "PO-0001")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "cracked", records[0].(entity.ReturnRecord).RejectionNote)

	require.NoError(t, repo.AttachFinalizeNote(ctx, entity.CollectionReturnHistory, "r1", "credit note received"))
	err = repo.AttachFinalizeNote(ctx, entity.CollectionReturnHistory, "r1", "again")
	assert.True(t, errors.Is(err, workflow.ErrValidation))

	records, _ = repo.ListSatellites(ctx, entity.CollectionReturnHistory, "PO-0001")
	assert.Equal(t, "credit note received", records[0].(entity.ReturnRecord).FinalizeNote)

	_, err = repo.ListSatellites(ctx, entity.CollectionIndents, "")
	assert.True(t, errors.Is(err, workflow.ErrValidation))
}

func TestUnitOfWork_Transactional(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	uow := NewUnitOfWork(store, DefaultOptions(), nil)

	boom := errors.New("boom")
	err := uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		require.NoError(t, repo.CreateIndent(ctx, newIndent("IND-0001")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = uow.Repository().GetIndent(ctx, "IND-0001")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}

func TestUnitOfWork_Compensation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	uow := NewUnitOfWork(plainStore{store}, DefaultOptions(), nil)

	require.NoError(t, uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		return repo.CreateIndent(ctx, newIndent("IND-0001"))
	}))

	boom := errors.New("boom")
	err := uow.Do(ctx, func(ctx context.Context, repo port.ProcurementRepository) error {
		indent, err := repo.GetIndent(ctx, "IND-0001")
		require.NoError(t, err)
		indent.Title = "changed"
		indent.History.Append(entity.StepRecord{ID: "extra", Stage: workflow.StageRaiseIndent, Status: workflow.StepInProgress,
			NextStep: workflow.StageRaiseIndent, Supersedes: 1})
		require.NoError(t, repo.SaveIndent(ctx, indent))
		require.NoError(t, repo.CreateIndent(ctx, newIndent("IND-0002")))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	loaded, err := uow.Repository().GetIndent(ctx, "IND-0001")
	require.NoError(t, err)
	assert.Equal(t, "Fasteners", loaded.Title)
	assert.Equal(t, 1, loaded.History.Len())

	_, err = uow.Repository().GetIndent(ctx, "IND-0002")
	assert.True(t, errors.Is(err, workflow.ErrNotFound))
}
