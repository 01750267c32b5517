package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// failureLimit is the number of failed passes in a row after which a worker reports unhealthy
const failureLimit = 3

// Worker is a background loop run by the supervisor
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
	Health() Health
}

// Health is what a worker reports about its own loop
type Health struct {
	Running             bool
	Interval            time.Duration
	StartedAt           time.Time
	LastRun             time.Time
	LastError           string
	ConsecutiveFailures int
}

// Healthy requires a running loop that ticked within the last three intervals.
// failureLimit failed passes in a row also make it unhealthy.
func (h Health) Healthy(now time.Time) bool {
	if !h.Running || h.ConsecutiveFailures >= failureLimit {
		return false
	}
	if h.Interval <= 0 {
		return true
	}
	last := h.LastRun
	if last.Before(h.StartedAt) {
		last = h.StartedAt
	}
	return now.Sub(last) <= 3*h.Interval
}

// Summary renders the health for the status endpoint
func (h Health) Summary() string {
	switch {
	case !h.Running:
		return "stopped"
	case h.ConsecutiveFailures > 0:
		return fmt.Sprintf("every %s, %d failed passes, last error: %s", h.Interval, h.ConsecutiveFailures, h.LastError)
	case h.LastRun.IsZero():
		return fmt.Sprintf("every %s, no pass yet", h.Interval)
	default:
		return fmt.Sprintf("every %s, last pass %s", h.Interval, h.LastRun.Format(time.RFC3339))
	}
}

// Status pairs a worker's name with its health at one point in time
type Status struct {
	Name    string
	Health  Health
	Healthy bool
}

// Supervisor starts registered workers together and stops them in reverse order.
// A worker that fails to start stops the ones already running.
type Supervisor struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	workers []Worker
	running bool
}

// NewSupervisor creates an empty supervisor
func NewSupervisor(logger *zap.Logger) *Supervisor {
	return &Supervisor{logger: logger, now: time.Now}
}

// Register adds a worker; names must be unique
func (s *Supervisor) Register(w Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot register %s: workers already running", w.Name())
	}
	for _, existing := range s.workers {
		if existing.Name() == w.Name() {
			return fmt.Errorf("worker %s already registered", w.Name())
		}
	}
	s.workers = append(s.workers, w)
	return nil
}

// Len returns the number of registered workers
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Start starts every worker in registration order
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("workers already running")
	}

	for i, w := range s.workers {
		if err := w.Start(ctx); err != nil {
			s.logger.Error("Failed to start worker, stopping the others",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			if stopErr := stopReverse(s.workers[:i], s.logger); stopErr != nil {
				err = errors.Join(err, stopErr)
			}
			return fmt.Errorf("start %s: %w", w.Name(), err)
		}
		s.logger.Info("Worker started",
			zap.String("worker_name", w.Name()),
			zap.Duration("interval", w.Health().Interval))
	}

	s.running = true
	return nil
}

// Stop stops every worker; errors from individual workers are joined
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	return stopReverse(s.workers, s.logger)
}

func stopReverse(workers []Worker, logger *zap.Logger) error {
	var errs []error
	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		if err := w.Stop(); err != nil {
			logger.Error("Failed to stop worker",
				zap.String("worker_name", w.Name()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Report returns the health of every worker in registration order
func (s *Supervisor) Report() []Status {
	s.mu.Lock()
	workers := append([]Worker(nil), s.workers...)
	s.mu.Unlock()

	now := s.now()
	report := make([]Status, 0, len(workers))
	for _, w := range workers {
		h := w.Health()
		report = append(report, Status{Name: w.Name(), Health: h, Healthy: h.Healthy(now)})
	}
	return report
}
