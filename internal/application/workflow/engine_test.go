package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/indent-flow/internal/application/dispatcher"
	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/event"
	"github.com/garyjia/indent-flow/internal/domain/procurement"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/indent-flow/internal/infrastructure/persistence/rowstore"
)

// Mock implementations

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.record(evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.record(evt)
}

func (m *mockDispatcher) Publish(ctx context.Context, events []*event.Event) {
	for _, evt := range events {
		m.record(evt)
	}
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) record(evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ofType(t event.Type) []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Event
	for _, evt := range m.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type mockLogger struct {
	mu    sync.Mutex
	warns []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

// failingStore fails appends to one collection while enabled. It hides the
// memory store's transactions, so writes go through compensation.
type failingStore struct {
	port.EntityStore
	collection string
	enabled    bool
}

func (s *failingStore) AppendRow(ctx context.Context, collection string, row port.Row) error {
	if s.enabled && collection == s.collection {
		return fmt.Errorf("append to %s: workbook locked", collection)
	}
	return s.EntityStore.AppendRow(ctx, collection, row)
}

// staleReader serves a copy of an indent captured before another writer moved it
type staleReader struct {
	port.ProcurementRepository
	indent *entity.Indent
}

func (r *staleReader) GetIndent(ctx context.Context, id string) (*entity.Indent, error) {
	return r.indent.Clone(), nil
}

// Fixture

var (
	requester = entity.Actor{Email: "asha@plant.example", Role: domainwf.RoleRequester}
	hod       = entity.Actor{Email: "hod@plant.example", Role: domainwf.RoleHOD}
	executive = entity.Actor{Email: "buyer@plant.example", Role: domainwf.RolePurchaseExecutive}
	manager   = entity.Actor{Email: "pm@plant.example", Role: domainwf.RolePurchaseManager}
	inspector = entity.Actor{Email: "qc@plant.example", Role: domainwf.RoleQualityInspector}
	keeper    = entity.Actor{Email: "stores@plant.example", Role: domainwf.RoleStoreKeeper}
	accounts  = entity.Actor{Email: "accounts@plant.example", Role: domainwf.RoleAccounts}
	admin     = entity.Actor{Email: "admin@plant.example", Role: domainwf.RoleAdmin}
)

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      port.EntityStore
	repo       port.ProcurementRepository
	uow        *rowstore.UnitOfWork
	engine     *engine
	rejections *RejectionHandler
	dispatcher *mockDispatcher
	logger     *mockLogger
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, memory.NewStore())
}

func newFixtureWithStore(t *testing.T, store port.EntityStore) *fixture {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	var tick int
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	uow := rowstore.NewUnitOfWork(store, rowstore.DefaultOptions(), nil)
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		repo:       uow.Repository(),
		uow:        uow,
		dispatcher: &mockDispatcher{},
		logger:     &mockLogger{},
	}
	f.engine = newEngine(f.repo, uow,
		WithDispatcher(f.dispatcher),
		WithLogger(f.logger),
		WithClock(clock),
	)
	f.rejections = NewRejectionHandler(f.engine, f.repo)
	return f
}

func (f *fixture) apply(id string, action domainwf.Action, payload procurement.Payload, actor entity.Actor) *entity.StepRecord {
	f.t.Helper()
	rec, err := f.engine.ApplyTransition(f.ctx, id, action, payload, actor)
	require.NoError(f.t, err)
	return rec
}

func (f *fixture) indent(id string) *entity.Indent {
	f.t.Helper()
	indent, err := f.repo.GetIndent(f.ctx, id)
	require.NoError(f.t, err)
	return indent
}

func (f *fixture) po(id string) *entity.PurchaseOrder {
	f.t.Helper()
	po, err := f.repo.GetPurchaseOrder(f.ctx, id)
	require.NoError(f.t, err)
	return po
}

func (f *fixture) createIndent(sampleRequired bool, items ...entity.IndentItem) *entity.Indent {
	f.t.Helper()
	if len(items) == 0 {
		items = []entity.IndentItem{
			{Code: "BRG-6204", Name: "Ball bearing 6204", Quantity: decimal.NewFromInt(10), Unit: "nos"},
			{Code: "SEAL-40", Name: "Oil seal 40mm", Quantity: decimal.NewFromInt(4), Unit: "nos"},
		}
	}
	indent, err := f.engine.CreateIndent(f.ctx, IndentDraft{
		Title:          "Conveyor overhaul spares",
		Department:     "Maintenance",
		SampleRequired: sampleRequired,
		Items:          items,
	}, requester)
	require.NoError(f.t, err)
	return indent
}

func quote(vendor, price string) entity.VendorQuote {
	return entity.VendorQuote{
		VendorCode:   vendor,
		VendorName:   "Vendor " + vendor,
		Price:        decimal.RequireFromString(price),
		LeadTimeDays: 7,
	}
}

// driveToApproveQuotation takes a default indent through stages 1-5
func (f *fixture) driveToApproveQuotation(sampleRequired bool) string {
	f.t.Helper()
	id := f.createIndent(sampleRequired).ID

	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)
	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{
			"BRG-6204": {quote("V100", "185.50"), quote("V200", "192")},
			"SEAL-40":  {quote("V100", "60"), quote("V200", "48.25")},
		},
	}, executive)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, executive)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Selections: map[string]string{"BRG-6204": "V100", "SEAL-40": "V200"},
	}, executive)
	require.Equal(f.t, domainwf.StageApproveQuotation, f.indent(id).CurrentStage())
	return id
}

// driveToSortVendors takes a default indent without sampling to stage 9
func (f *fixture) driveToSortVendors() string {
	f.t.Helper()
	id := f.driveToApproveQuotation(false)
	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, manager)
	require.Equal(f.t, domainwf.StageSortVendors, f.indent(id).CurrentStage())
	return id
}

func requireLedger(t *testing.T, history entity.StepHistory, terminal bool) {
	t.Helper()
	require.NoError(t, history.Validate(terminal))
}

// Tests

func TestCreateIndent(t *testing.T) {
	f := newFixture(t)

	indent := f.createIndent(false)

	assert.Equal(t, "IND-0001", indent.ID)
	assert.Equal(t, entity.IndentDraft, indent.Status)
	assert.Equal(t, requester.Email, indent.RequestedBy)

	loaded := f.indent(indent.ID)
	assert.Equal(t, domainwf.StageRaiseIndent, loaded.CurrentStage())
	current, _ := loaded.History.Current()
	assert.Equal(t, domainwf.StepPending, current.Status)
	assert.Equal(t, domainwf.RoleRequester, current.Role)
	requireLedger(t, loaded.History, false)
	assert.Len(t, f.dispatcher.ofType(event.TypeIndentCreated), 1)

	second := f.createIndent(false)
	assert.Equal(t, "IND-0002", second.ID)
}

func TestCreateIndent_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CreateIndent(f.ctx, IndentDraft{Title: "  "}, requester)
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	_, err = f.engine.CreateIndent(f.ctx, IndentDraft{
		Title: "Duplicate lines",
		Items: []entity.IndentItem{{Code: "A", Quantity: decimal.NewFromInt(1)}, {Code: "A", Quantity: decimal.NewFromInt(2)}},
	}, requester)
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	_, err = f.engine.CreateIndent(f.ctx, IndentDraft{Title: "Not mine"}, accounts)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)
}

func TestApplyTransition_SubmitAndApprove(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID

	rec := f.apply(id, domainwf.ActionComplete, procurement.Payload{Comments: "urgent"}, requester)
	assert.Equal(t, domainwf.StepCompleted, rec.Status)
	assert.Equal(t, domainwf.StageApproveIndent, rec.NextStep)
	assert.Equal(t, 1, rec.Supersedes)

	indent := f.indent(id)
	assert.Equal(t, entity.IndentInProgress, indent.Status)
	assert.Equal(t, domainwf.StageApproveIndent, indent.CurrentStage())
	requireLedger(t, indent.History, false)

	rec = f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)
	assert.Equal(t, hod.Email, rec.ApprovedBy)
	require.NotNil(t, rec.ApprovedAt)

	indent = f.indent(id)
	assert.Equal(t, domainwf.StageFloatRFQ, indent.CurrentStage())
	current, _ := indent.History.Current()
	assert.Equal(t, domainwf.RolePurchaseExecutive, current.Role)
	requireLedger(t, indent.History, false)

	assert.Len(t, f.dispatcher.ofType(event.TypeIndentSubmitted), 1)
	assert.Len(t, f.dispatcher.ofType(event.TypeStepCompleted), 2)
}

func TestApplyTransition_SubmitWithoutItems(t *testing.T) {
	f := newFixture(t)
	indent, err := f.engine.CreateIndent(f.ctx, IndentDraft{Title: "Empty"}, requester)
	require.NoError(t, err)

	_, err = f.engine.ApplyTransition(f.ctx, indent.ID, domainwf.ActionComplete, procurement.Payload{}, requester)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
	assert.Equal(t, 1, f.indent(indent.ID).History.Len())
}

func TestApplyTransition_HODRejectIsTerminal(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)

	rec := f.apply(id, domainwf.ActionReject, procurement.Payload{RejectionNote: "budget exhausted"}, hod)
	assert.Equal(t, domainwf.StepRejected, rec.Status)
	assert.Equal(t, domainwf.StageNone, rec.NextStep)
	assert.Equal(t, "budget exhausted", rec.RejectionNote)

	indent := f.indent(id)
	assert.Equal(t, entity.IndentRejected, indent.Status)
	requireLedger(t, indent.History, true)
	assert.Len(t, f.dispatcher.ofType(event.TypeIndentRejected), 1)

	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionApprove, procurement.Payload{}, hod)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
}

func TestApplyTransition_Forbidden(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)

	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionApprove, procurement.Payload{}, requester)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)
	assert.Equal(t, domainwf.StageApproveIndent, f.indent(id).CurrentStage())

	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, admin)
	assert.Equal(t, domainwf.StageFloatRFQ, f.indent(id).CurrentStage())
}

func TestApplyTransition_UnknownEntityAndAction(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ApplyTransition(f.ctx, "IND-9999", domainwf.ActionComplete, procurement.Payload{}, requester)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	_, err = f.engine.ApplyTransition(f.ctx, "IND-0001", domainwf.Action("escalate"), procurement.Payload{}, requester)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
}

func TestApplyTransition_OpenSupersedesPending(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)

	opened := f.apply(id, domainwf.ActionOpen, procurement.Payload{}, hod)
	assert.Equal(t, domainwf.StepInProgress, opened.Status)
	assert.Equal(t, domainwf.StageApproveIndent, opened.NextStep)
	assert.Equal(t, hod.Email, opened.AssignedTo)

	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionOpen, procurement.Payload{}, hod)
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	closed := f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)
	assert.Equal(t, opened.Seq, closed.Supersedes)
	assert.Equal(t, opened.StartedAt, closed.StartedAt)

	indent := f.indent(id)
	requireLedger(t, indent.History, false)
	for _, rec := range indent.History.Effective() {
		assert.NotEqual(t, opened.Seq, rec.Seq, "open record must be superseded")
	}
	assert.Len(t, f.dispatcher.ofType(event.TypeStepOpened), 1)
}

func TestApplyTransition_QuotesMergedFromPayload(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)
	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)

	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionComplete, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{"BRG-6204": {quote("V100", "185.50")}},
	}, executive)
	assert.ErrorIs(t, err, domainwf.ErrValidation, "SEAL-40 has no quote yet")
	assert.Empty(t, f.indent(id).Item("BRG-6204").Quotes, "failed guard must not persist quotes")

	f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{
			"BRG-6204": {quote("V100", "185.50")},
			"SEAL-40":  {quote("V200", "48.25")},
		},
	}, executive)

	indent := f.indent(id)
	require.Len(t, indent.Item("BRG-6204").Quotes, 1)
	assert.True(t, indent.Item("BRG-6204").Quotes[0].Price.Equal(decimal.RequireFromString("185.50")))
	assert.Equal(t, entity.InspectionPending, indent.Item("SEAL-40").Quotes[0].InspectionStatus)
}

// No sampling means Approve Quotation jumps to Sort Vendors
func TestApplyTransition_ApproveQuotationSkipsSampling(t *testing.T) {
	f := newFixture(t)
	id := f.driveToApproveQuotation(false)

	rec := f.apply(id, domainwf.ActionApprove, procurement.Payload{}, manager)

	assert.Equal(t, domainwf.StageSortVendors, rec.NextStep)
	indent := f.indent(id)
	assert.Equal(t, domainwf.StageSortVendors, indent.CurrentStage())
	for _, r := range indent.History.Records {
		assert.NotEqual(t, domainwf.StageRequestSample, r.Stage)
		assert.NotEqual(t, domainwf.StageInspectSample, r.Stage)
	}
	requireLedger(t, indent.History, false)
}

// A rejected sample keeps the indent at Inspect Sample as partial
func TestApplyTransition_PartialSampleInspection(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(true,
		entity.IndentItem{Code: "A", Name: "Gasket", Quantity: decimal.NewFromInt(5)},
		entity.IndentItem{Code: "B", Name: "Gland packing", Quantity: decimal.NewFromInt(2)},
		entity.IndentItem{Code: "C", Name: "Valve seat", Quantity: decimal.NewFromInt(1)},
	).ID

	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)
	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{
			"A": {quote("V1", "10")},
			"B": {quote("V1", "20")},
			"C": {quote("V2", "30")},
		},
	}, executive)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, executive)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Selections: map[string]string{"A": "V1", "B": "V1", "C": "V2"},
	}, executive)

	rec := f.apply(id, domainwf.ActionApprove, procurement.Payload{}, manager)
	require.Equal(t, domainwf.StageRequestSample, rec.NextStep)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, executive)

	rec = f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Inspections: map[string]procurement.InspectionResult{
			"A": {Approved: true},
			"B": {Approved: true},
			"C": {Approved: false, Note: "seat hardness below spec"},
		},
	}, inspector)

	assert.Equal(t, domainwf.StageInspectSample, rec.NextStep)
	indent := f.indent(id)
	assert.Equal(t, entity.IndentPartial, indent.Status)
	assert.Equal(t, domainwf.StageInspectSample, indent.CurrentStage())
	assert.Equal(t, entity.InspectionRejected, indent.Item("C").SelectedQuote().InspectionStatus)
	assert.Equal(t, "seat hardness below spec", indent.Item("C").SelectedQuote().InspectionNote)
	requireLedger(t, indent.History, false)

	// resample passes
	f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Inspections: map[string]procurement.InspectionResult{"C": {Approved: true}},
	}, inspector)
	indent = f.indent(id)
	assert.Equal(t, entity.IndentInProgress, indent.Status)
	assert.Equal(t, domainwf.StageSortVendors, indent.CurrentStage())
}

// A writer holding stale state loses with a conflict
func TestApplyTransition_StaleWriterGetsConflict(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)
	stale := f.indent(id)

	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)

	racer := newEngine(&staleReader{ProcurementRepository: f.repo, indent: stale}, f.uow)
	_, err := racer.ApplyTransition(f.ctx, id, domainwf.ActionApprove, procurement.Payload{}, hod)

	require.Error(t, err)
	assert.ErrorIs(t, err, domainwf.ErrConflict)
	assert.True(t, domainwf.IsRetryable(err))

	indent := f.indent(id)
	assert.Equal(t, domainwf.StageFloatRFQ, indent.CurrentStage())
	assert.Equal(t, 1, indent.History.Visits(domainwf.StageApproveIndent), "first approval is not overwritten")
	requireLedger(t, indent.History, false)
}

func TestApplyTransition_ExpectedVersion(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	version := f.indent(id).Version

	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionComplete, procurement.Payload{ExpectedVersion: version + 1}, requester)
	assert.ErrorIs(t, err, domainwf.ErrConflict)

	f.apply(id, domainwf.ActionComplete, procurement.Payload{ExpectedVersion: version}, requester)
}

func TestApplyTransition_ExpectedStage(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)

	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionApprove, procurement.Payload{ExpectedStage: domainwf.StageRaiseIndent}, hod)
	assert.ErrorIs(t, err, domainwf.ErrConflict)
	assert.Contains(t, err.Error(), "expected stage")
	assert.Equal(t, domainwf.StageApproveIndent, f.indent(id).CurrentStage())

	rec := f.apply(id, domainwf.ActionApprove, procurement.Payload{ExpectedStage: domainwf.StageApproveIndent}, hod)
	assert.Equal(t, domainwf.StageFloatRFQ, rec.NextStep)
}

func TestApplyTransition_RollsBackOnStoreFailure(t *testing.T) {
	store := &failingStore{EntityStore: memory.NewStore(), collection: entity.CollectionSteps}
	f := newFixtureWithStore(t, store)
	id := f.createIndent(false).ID
	before := f.indent(id)

	store.enabled = true
	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionComplete, procurement.Payload{}, requester)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainwf.ErrUpstream)

	// compensation restores the content; the row version keeps moving forward
	after := f.indent(id)
	assert.GreaterOrEqual(t, after.Version, before.Version)
	assert.Equal(t, entity.IndentDraft, after.Status)
	assert.Equal(t, before.History.Len(), after.History.Len())
	assert.Empty(t, f.dispatcher.ofType(event.TypeStepCompleted))

	store.enabled = false
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)
	assert.Equal(t, entity.IndentInProgress, f.indent(id).Status)
}

func TestApplyTransition_IndentTrackedByPurchaseOrders(t *testing.T) {
	f := newFixture(t)
	id := f.driveToSortVendors()

	_, err := f.engine.ApplyTransition(f.ctx, id, domainwf.ActionComplete, procurement.Payload{}, executive)
	assert.ErrorIs(t, err, domainwf.ErrValidation, "stage 9 accepts no manual actions")

	_, err = f.engine.GroupApprovedItemsByVendor(f.ctx, executive)
	require.NoError(t, err)

	_, err = f.engine.ApplyTransition(f.ctx, id, domainwf.ActionComplete, procurement.Payload{}, executive)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
	assert.Contains(t, domainwf.ReasonOf(err), "tracked by its purchase orders")
}

func TestCanAdvance(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)
	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)

	ok, reason, err := f.engine.CanAdvance(f.ctx, id, domainwf.StageFollowUpQuotations, procurement.Payload{})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	ok, _, err = f.engine.CanAdvance(f.ctx, id, domainwf.StageFollowUpQuotations, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{
			"BRG-6204": {quote("V100", "1")},
			"SEAL-40":  {quote("V100", "1")},
		},
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, domainwf.StageFloatRFQ, f.indent(id).CurrentStage())
}

func TestAmendIndent(t *testing.T) {
	f := newFixture(t)
	id := f.createIndent(false).ID
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, requester)

	_, err := f.engine.AmendIndent(f.ctx, id, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{"BRG-6204": {quote("V100", "10")}},
	}, executive)
	assert.ErrorIs(t, err, domainwf.ErrValidation, "quotes are not taken at Approve Indent")

	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, hod)

	amended, err := f.engine.AmendIndent(f.ctx, id, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{"BRG-6204": {quote("V100", "10")}},
	}, executive)
	require.NoError(t, err)
	assert.Len(t, amended.Item("BRG-6204").Quotes, 1)
	assert.Equal(t, domainwf.StageFloatRFQ, f.indent(id).CurrentStage())
	assert.Len(t, f.dispatcher.ofType(event.TypeIndentAmended), 1)

	_, err = f.engine.AmendIndent(f.ctx, id, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{"BRG-6204": {quote("V100", "0")}},
	}, executive)
	assert.ErrorIs(t, err, domainwf.ErrValidation)

	_, err = f.engine.AmendIndent(f.ctx, id, procurement.Payload{
		Quotes: map[string][]entity.VendorQuote{"NOPE": {quote("V100", "3")}},
	}, executive)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
}

func TestAmendIndent_SortVendorsSelection(t *testing.T) {
	f := newFixture(t)
	id := f.driveToApproveQuotation(true)
	f.apply(id, domainwf.ActionApprove, procurement.Payload{}, manager)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{}, executive)
	f.apply(id, domainwf.ActionComplete, procurement.Payload{
		Inspections: map[string]procurement.InspectionResult{
			"BRG-6204": {Approved: true},
			"SEAL-40":  {Approved: true},
		},
	}, inspector)
	require.Equal(t, domainwf.StageSortVendors, f.indent(id).CurrentStage())

	_, err := f.engine.AmendIndent(f.ctx, id, procurement.Payload{
		Selections: map[string]string{"BRG-6204": "V200"},
	}, executive)
	assert.ErrorIs(t, err, domainwf.ErrValidation, "V200 never sent a sample")
	assert.Equal(t, "V100", f.indent(id).Item("BRG-6204").SelectedVendor)

	_, err = f.engine.AmendIndent(f.ctx, id, procurement.Payload{
		Selections: map[string]string{"BRG-6204": "V100"},
	}, executive)
	require.NoError(t, err)

	// without sampling any quoted vendor may be chosen
	plain := f.driveToSortVendors()
	amended, err := f.engine.AmendIndent(f.ctx, plain, procurement.Payload{
		Selections: map[string]string{"BRG-6204": "V200"},
	}, executive)
	require.NoError(t, err)
	assert.Equal(t, "V200", amended.Item("BRG-6204").SelectedVendor)
}

func TestDeleteIndent(t *testing.T) {
	f := newFixture(t)
	draft := f.createIndent(false)

	err := f.engine.DeleteIndent(f.ctx, draft.ID, hod)
	assert.ErrorIs(t, err, domainwf.ErrForbidden)

	require.NoError(t, f.engine.DeleteIndent(f.ctx, draft.ID, requester))
	_, err = f.repo.GetIndent(f.ctx, draft.ID)
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	active := f.createIndent(false)
	f.apply(active.ID, domainwf.ActionComplete, procurement.Payload{}, requester)
	err = f.engine.DeleteIndent(f.ctx, active.ID, requester)
	assert.ErrorIs(t, err, domainwf.ErrValidation)
	assert.True(t, errors.Is(err, domainwf.ErrValidation))
}
