package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/indent-flow/internal/application/workflow"
	"github.com/garyjia/indent-flow/internal/domain/entity"
)

// Grouper is the part of the indent service the grouping worker drives
type Grouper interface {
	PreviewGrouping(ctx context.Context) (*workflow.GroupingPlan, error)
	GroupItems(ctx context.Context, actor entity.Actor) (*workflow.GroupingResult, error)
}

// GroupingWorkerConfig holds configuration for the grouping worker
type GroupingWorkerConfig struct {
	PollInterval time.Duration
	PassTimeout  time.Duration
}

// DefaultGroupingWorkerConfig returns default configuration
func DefaultGroupingWorkerConfig() GroupingWorkerConfig {
	return GroupingWorkerConfig{
		PollInterval: time.Minute,
		PassTimeout:  30 * time.Second,
	}
}

// GroupingStats reports what the worker has done since it started
type GroupingStats struct {
	Passes              int
	PurchaseOrders      int
	Failures            int
	ConsecutiveFailures int
	LastRun             time.Time
	LastError           string
}

// GroupingWorker periodically groups items waiting at Sort Vendors into
// purchase orders. A pass runs only when the preview has at least one batch.
type GroupingWorker struct {
	config  GroupingWorkerConfig
	grouper Grouper
	logger  *zap.Logger

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	startedAt time.Time
	stats     GroupingStats
}

// NewGroupingWorker creates a new grouping worker
func NewGroupingWorker(config GroupingWorkerConfig, grouper Grouper, logger *zap.Logger) *GroupingWorker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultGroupingWorkerConfig().PollInterval
	}
	if config.PassTimeout <= 0 {
		config.PassTimeout = DefaultGroupingWorkerConfig().PassTimeout
	}
	return &GroupingWorker{
		config:  config,
		grouper: grouper,
		logger:  logger,
	}
}

// Start begins the worker polling loop
func (w *GroupingWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("grouping worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true
	w.startedAt = time.Now()
	w.mu.Unlock()

	w.logger.Info("GroupingWorker started",
		zap.Duration("poll_interval", w.config.PollInterval))

	go w.pollLoop()

	return nil
}

// Stop terminates the worker and waits for an in-flight pass to finish
func (w *GroupingWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}

	w.isRunning = false
	done := w.done
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	<-done

	stats := w.Stats()
	w.logger.Info("GroupingWorker stopped",
		zap.Int("passes", stats.Passes),
		zap.Int("purchase_orders", stats.PurchaseOrders),
		zap.Int("failures", stats.Failures))

	return nil
}

// Name returns the worker name for identification
func (w *GroupingWorker) Name() string {
	return "GroupingWorker"
}

// Stats returns a snapshot of the worker counters
func (w *GroupingWorker) Stats() GroupingStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// Health implements Worker
func (w *GroupingWorker) Health() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Health{
		Running:             w.isRunning,
		Interval:            w.config.PollInterval,
		StartedAt:           w.startedAt,
		LastRun:             w.stats.LastRun,
		LastError:           w.stats.LastError,
		ConsecutiveFailures: w.stats.ConsecutiveFailures,
	}
}

func (w *GroupingWorker) pollLoop() {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Poll loop context cancelled")
			return

		case <-ticker.C:
			w.RunOnce(w.ctx)
		}
	}
}

// RunOnce performs a single grouping pass and returns the number of
// purchase orders it created
func (w *GroupingWorker) RunOnce(ctx context.Context) int {
	passCtx, cancel := context.WithTimeout(ctx, w.config.PassTimeout)
	defer cancel()

	created, err := w.groupPending(passCtx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.LastRun = time.Now()
	if err != nil {
		w.stats.Failures++
		w.stats.ConsecutiveFailures++
		w.stats.LastError = err.Error()
		w.logger.Error("Grouping pass failed",
			zap.Error(err),
			zap.Int("consecutive_failures", w.stats.ConsecutiveFailures))
		return 0
	}
	w.stats.ConsecutiveFailures = 0
	w.stats.LastError = ""
	if created > 0 {
		w.stats.Passes++
		w.stats.PurchaseOrders += created
	}
	return created
}

func (w *GroupingWorker) groupPending(ctx context.Context) (int, error) {
	plan, err := w.grouper.PreviewGrouping(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to preview grouping: %w", err)
	}

	if len(plan.Batches) == 0 {
		return 0, nil
	}

	w.logger.Debug("Grouping pending items", zap.Int("batches", len(plan.Batches)))

	result, err := w.grouper.GroupItems(ctx, entity.SystemActor)
	if err != nil {
		return 0, fmt.Errorf("failed to group items: %w", err)
	}

	if len(result.Ungrouped) > 0 {
		w.logger.Warn("Items left ungrouped",
			zap.Int("count", len(result.Ungrouped)))
	}

	w.logger.Info("Grouping pass completed",
		zap.Int("purchase_orders", len(result.PurchaseOrders)),
		zap.Strings("advanced_indents", result.AdvancedIndents))

	return len(result.PurchaseOrders), nil
}

var _ Worker = (*GroupingWorker)(nil)
