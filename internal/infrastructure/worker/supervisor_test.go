package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	stopErr  error
	health   Health
	log      *[]string
}

func (f *fakeWorker) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.log = append(*f.log, "start "+f.name)
	f.health.Running = true
	return nil
}

func (f *fakeWorker) Stop() error {
	*f.log = append(*f.log, "stop "+f.name)
	f.health.Running = false
	return f.stopErr
}

func (f *fakeWorker) Name() string   { return f.name }
func (f *fakeWorker) Health() Health { return f.health }

func TestSupervisor_StartStopOrder(t *testing.T) {
	var log []string
	s := NewSupervisor(zap.NewNop())
	require.NoError(t, s.Register(&fakeWorker{name: "a", log: &log}))
	require.NoError(t, s.Register(&fakeWorker{name: "b", log: &log}))
	assert.Error(t, s.Register(&fakeWorker{name: "a", log: &log}), "duplicate name")
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "second start")
	assert.Error(t, s.Register(&fakeWorker{name: "c", log: &log}), "register while running")

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stop is idempotent")
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestSupervisor_StartFailureStopsStarted(t *testing.T) {
	var log []string
	s := NewSupervisor(zap.NewNop())
	require.NoError(t, s.Register(&fakeWorker{name: "a", log: &log}))
	require.NoError(t, s.Register(&fakeWorker{name: "b", log: &log, startErr: errors.New("port in use")}))

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "start b")
	assert.ErrorContains(t, err, "port in use")
	assert.Equal(t, []string{"start a", "stop a"}, log)
	assert.False(t, s.Report()[0].Healthy)
}

func TestSupervisor_StopJoinsErrors(t *testing.T) {
	var log []string
	s := NewSupervisor(zap.NewNop())
	require.NoError(t, s.Register(&fakeWorker{name: "a", log: &log, stopErr: errors.New("stuck")}))
	require.NoError(t, s.Register(&fakeWorker{name: "b", log: &log}))
	require.NoError(t, s.Start(context.Background()))

	err := s.Stop()
	assert.ErrorContains(t, err, "stop a: stuck")
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestHealth_Healthy(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	started := now.Add(-10 * time.Minute)

	tests := []struct {
		name   string
		health Health
		want   bool
	}{
		{name: "stopped", health: Health{Interval: time.Minute}, want: false},
		{name: "recent pass", health: Health{Running: true, Interval: time.Minute, StartedAt: started, LastRun: now.Add(-time.Minute)}, want: true},
		{name: "just started", health: Health{Running: true, Interval: time.Minute, StartedAt: now.Add(-30 * time.Second)}, want: true},
		{name: "missed intervals", health: Health{Running: true, Interval: time.Minute, StartedAt: started, LastRun: now.Add(-4 * time.Minute)}, want: false},
		{name: "failing", health: Health{Running: true, Interval: time.Minute, StartedAt: started, LastRun: now, ConsecutiveFailures: failureLimit}, want: false},
		{name: "one failure tolerated", health: Health{Running: true, Interval: time.Minute, StartedAt: started, LastRun: now, ConsecutiveFailures: 1}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.health.Healthy(now))
		})
	}
}

func TestHealth_Summary(t *testing.T) {
	assert.Equal(t, "stopped", Health{}.Summary())
	assert.Equal(t, "every 1m0s, no pass yet", Health{Running: true, Interval: time.Minute}.Summary())
	assert.Contains(t, Health{Running: true, Interval: time.Minute, ConsecutiveFailures: 2, LastError: "store offline"}.Summary(), "2 failed passes")
}
