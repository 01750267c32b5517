package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/indent-flow/internal/domain/event"
	"github.com/garyjia/indent-flow/internal/domain/workflow"
)

// mockLogger implements Logger for testing
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

func (m *mockLogger) WarnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.warns)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func stepCompleted(id string) *event.Event {
	return event.NewEvent(event.TypeStepCompleted, event.EntityIndent, id, workflow.StageRaiseIndent, nil)
}

func TestSubscribe(t *testing.T) {
	t.Run("subscribes multiple handlers to same event type", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		if err := d.Dispatch(context.Background(), stepCompleted("IND-0001")); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if !called1 || !called2 {
			t.Error("expected both handlers to be called")
		}
	})

	t.Run("wildcard handlers run after typed handlers", func(t *testing.T) {
		d := NewDispatcher()
		var order []string

		d.SubscribeNamed(AllEvents, "audit", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "audit")
			return nil
		})
		d.SubscribeNamed(event.TypeStepCompleted, "notify", func(ctx context.Context, evt *event.Event) error {
			order = append(order, "notify")
			return nil
		})

		if err := d.Dispatch(context.Background(), stepCompleted("IND-0001")); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if len(order) != 2 || order[0] != "notify" || order[1] != "audit" {
			t.Errorf("unexpected order %v", order)
		}
	})

	t.Run("logs registration", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		d.SubscribeNamed(event.TypePOCreated, "test-handler", func(ctx context.Context, evt *event.Event) error {
			return nil
		})
		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	called1, called2 := false, false

	d.SubscribeNamed(event.TypeStepCompleted, "handler-1", func(ctx context.Context, evt *event.Event) error {
		called1 = true
		return nil
	})
	d.SubscribeNamed(event.TypeStepCompleted, "handler-2", func(ctx context.Context, evt *event.Event) error {
		called2 = true
		return nil
	})

	d.Unsubscribe(event.TypeStepCompleted, "handler-1")

	if err := d.Dispatch(context.Background(), stepCompleted("IND-0001")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if called1 {
		t.Error("expected handler-1 not to be called")
	}
	if !called2 {
		t.Error("expected handler-2 to be called")
	}
}

func TestDispatch(t *testing.T) {
	t.Run("returns first error encountered", func(t *testing.T) {
		d := NewDispatcher()
		expectedErr := errors.New("handler error")
		called := false

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			return expectedErr
		})
		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			called = true
			return nil
		})

		err := d.Dispatch(context.Background(), stepCompleted("IND-0001"))
		if !errors.Is(err, expectedErr) {
			t.Errorf("expected error to wrap %v, got %v", expectedErr, err)
		}
		if called {
			t.Error("expected second handler not to be called after first error")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			panic("test panic")
		})

		if err := d.Dispatch(context.Background(), stepCompleted("IND-0001")); err == nil {
			t.Fatal("expected error from panic recovery")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged as error")
		}
	})

	t.Run("returns error when dispatcher is closed", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if err := d.Dispatch(context.Background(), stepCompleted("IND-0001")); err == nil {
			t.Fatal("expected error when dispatching to closed dispatcher")
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handler errors are logged as warnings", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), stepCompleted("IND-0001"))

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() != 1 {
			t.Errorf("expected second handler to be called, got %d calls", called.Load())
		}
		if logger.WarnCount() == 0 {
			t.Error("expected handler error to be logged")
		}
	})

	t.Run("handlers outlive a cancelled request context", func(t *testing.T) {
		d := NewDispatcher()
		var sawCancel atomic.Bool

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			if ctx.Err() != nil {
				sawCancel.Store(true)
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		d.DispatchAsync(ctx, stepCompleted("IND-0001"))
		cancel()

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if sawCancel.Load() {
			t.Error("expected detached context")
		}
	})

	t.Run("does not dispatch when dispatcher is closed", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		d.DispatchAsync(context.Background(), stepCompleted("IND-0001"))
		time.Sleep(20 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected handler not to be called after close")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error log for dispatching to closed dispatcher")
		}
	})
}

func TestPublish(t *testing.T) {
	t.Run("delivers batch in order", func(t *testing.T) {
		d := NewDispatcher()
		var mu sync.Mutex
		var seen []string

		d.Subscribe(AllEvents, func(ctx context.Context, evt *event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, evt.EntityID)
			return nil
		})

		d.Publish(context.Background(), []*event.Event{
			stepCompleted("IND-0001"),
			stepCompleted("IND-0002"),
			stepCompleted("IND-0003"),
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if fmt.Sprint(seen) != "[IND-0001 IND-0002 IND-0003]" {
			t.Errorf("unexpected order %v", seen)
		}
	})

	t.Run("failing subscriber does not stop the batch", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var count atomic.Int32

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			count.Add(1)
			return errors.New("smtp down")
		})

		d.Publish(context.Background(), []*event.Event{stepCompleted("IND-0001"), stepCompleted("IND-0002")})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if count.Load() != 2 {
			t.Errorf("expected 2 deliveries, got %d", count.Load())
		}
		if logger.WarnCount() != 2 {
			t.Errorf("expected 2 warnings, got %d", logger.WarnCount())
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		d := NewDispatcher()
		d.Publish(context.Background(), nil)
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	})
}

func TestListHandlers(t *testing.T) {
	d := NewDispatcher()

	d.SubscribeNamed(event.TypeStepCompleted, "test-handler", func(ctx context.Context, evt *event.Event) error {
		return nil
	})
	d.SubscribeNamed(event.TypePOCreated, "other-handler", func(ctx context.Context, evt *event.Event) error {
		return nil
	})

	handlers := d.ListHandlers(event.TypeStepCompleted)
	if len(handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(handlers))
	}
	if handlers[0].Name != "test-handler" {
		t.Errorf("expected name 'test-handler', got '%s'", handlers[0].Name)
	}
	if handlers[0].Handler != nil {
		t.Error("expected handler function not to be exposed")
	}
}

func TestClose(t *testing.T) {
	t.Run("waits for async handlers to complete", func(t *testing.T) {
		d := NewDispatcher()
		var completed atomic.Bool

		d.Subscribe(event.TypeStepCompleted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(30 * time.Millisecond)
			completed.Store(true)
			return nil
		})

		d.DispatchAsync(context.Background(), stepCompleted("IND-0001"))

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if !completed.Load() {
			t.Error("expected async handler to complete before Close returns")
		}
	})

	t.Run("returns error on double close", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("first close failed: %v", err)
		}
		if err := d.Close(); err == nil {
			t.Fatal("expected error on second close")
		}
	})
}

func TestConcurrency(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeStepCompleted, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
				return nil
			})
		}(i)
	}
	wg.Wait()

	if handlers := d.ListHandlers(event.TypeStepCompleted); len(handlers) != 10 {
		t.Errorf("expected 10 handlers, got %d", len(handlers))
	}
}
