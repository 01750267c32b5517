package service

import (
	"context"
	"sort"
	"time"

	"github.com/garyjia/indent-flow/internal/application/port"
	"github.com/garyjia/indent-flow/internal/domain/entity"
	"github.com/garyjia/indent-flow/internal/domain/event"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
)

// WorkItem is one indent or purchase order waiting at a stage
type WorkItem struct {
	EntityKind    event.EntityKind    `json:"entity_kind"`
	EntityID      string              `json:"entity_id"`
	Label         string              `json:"label"`
	Stage         domainwf.Stage      `json:"stage"`
	StageName     string              `json:"stage_name"`
	Role          domainwf.Role       `json:"role"`
	Status        domainwf.StepStatus `json:"status"`
	AssignedTo    string              `json:"assigned_to,omitempty"`
	Since         time.Time           `json:"since"`
	RejectionNote string              `json:"rejection_note,omitempty"`
}

// StageSummary groups the open work of one stage
type StageSummary struct {
	Stage     domainwf.Stage `json:"stage"`
	StageName string         `json:"stage_name"`
	Role      domainwf.Role  `json:"role"`
	Count     int            `json:"count"`
	Items     []WorkItem     `json:"items"`
}

// Dashboard is the open work across all ledgers, in stage order
type Dashboard struct {
	Stages []StageSummary `json:"stages"`
	Total  int            `json:"total"`
}

// DashboardService derives open work from the current record of every ledger
type DashboardService interface {
	Dashboard(ctx context.Context) (*Dashboard, error)
	WorkFor(ctx context.Context, actor entity.Actor) ([]WorkItem, error)
}

type dashboardServiceImpl struct {
	reader port.ProcurementRepository
	logger Logger
}

// NewDashboardService creates a new DashboardService
func NewDashboardService(reader port.ProcurementRepository, logger Logger) DashboardService {
	return &dashboardServiceImpl{
		reader: reader,
		logger: logger,
	}
}

// Dashboard returns the open work grouped by stage
func (s *dashboardServiceImpl) Dashboard(ctx context.Context) (*Dashboard, error) {
	items, err := s.openWork(ctx)
	if err != nil {
		return nil, err
	}

	byStage := make(map[domainwf.Stage]*StageSummary)
	for _, item := range items {
		summary, ok := byStage[item.Stage]
		if !ok {
			summary = &StageSummary{
				Stage:     item.Stage,
				StageName: item.Stage.Name(),
				Role:      item.Role,
			}
			byStage[item.Stage] = summary
		}
		summary.Items = append(summary.Items, item)
		summary.Count++
	}

	dashboard := &Dashboard{Total: len(items)}
	for _, stage := range domainwf.AllStages() {
		if summary, ok := byStage[stage]; ok {
			dashboard.Stages = append(dashboard.Stages, *summary)
		}
	}
	return dashboard, nil
}

// WorkFor returns the open work the actor's role may act on, oldest first
func (s *dashboardServiceImpl) WorkFor(ctx context.Context, actor entity.Actor) ([]WorkItem, error) {
	items, err := s.openWork(ctx)
	if err != nil {
		return nil, err
	}

	mine := make([]WorkItem, 0)
	for _, item := range items {
		if actor.Role.CanActAs(item.Role) {
			mine = append(mine, item)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		return mine[i].Since.Before(mine[j].Since)
	})
	return mine, nil
}

func (s *dashboardServiceImpl) openWork(ctx context.Context) ([]WorkItem, error) {
	indents, err := s.reader.ListIndents(ctx)
	if err != nil {
		s.logger.Error("Failed to list indents for dashboard", "error", err)
		return nil, err
	}
	pos, err := s.reader.ListPurchaseOrders(ctx)
	if err != nil {
		s.logger.Error("Failed to list purchase orders for dashboard", "error", err)
		return nil, err
	}

	items := make([]WorkItem, 0)
	for _, indent := range indents {
		// from Place PO onward an indent is tracked by its purchase orders
		if indent.Status.IsTerminal() || indent.CurrentStage().IsPurchaseOrderScoped() {
			continue
		}
		if item, ok := workItem(event.EntityIndent, indent.ID, indent.Title, indent.History); ok {
			items = append(items, item)
		}
	}
	for _, po := range pos {
		if po.Status == entity.POCompleted {
			continue
		}
		if item, ok := workItem(event.EntityPurchaseOrder, po.ID, po.VendorCode, po.History); ok {
			item.RejectionNote = po.RejectionNote
			items = append(items, item)
		}
	}
	return items, nil
}

func workItem(kind event.EntityKind, id, label string, history entity.StepHistory) (WorkItem, bool) {
	current, ok := history.Current()
	if !ok || !current.IsOpen() {
		return WorkItem{}, false
	}
	return WorkItem{
		EntityKind: kind,
		EntityID:   id,
		Label:      label,
		Stage:      current.Stage,
		StageName:  current.Stage.Name(),
		Role:       current.Role,
		Status:     current.Status,
		AssignedTo: current.AssignedTo,
		Since:      current.StartedAt,
	}, true
}
