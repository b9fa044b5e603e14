package shutdown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/task"
)

type fakeCron struct {
	stopped int
}

func (f *fakeCron) Stop() { f.stopped++ }

type fakeCleaner struct {
	calls   int
	reasons []string
	stopped int
}

func (f *fakeCleaner) CleanupAll(reason string) int {
	f.calls++
	f.reasons = append(f.reasons, reason)
	return f.stopped
}

func newRegistry(runner task.Runner) *task.Registry {
	cfg := &config.AnalysisConfig{
		MaxWorkers:                2,
		QueueSize:                 10,
		CompletedRetentionMinutes: 30,
		FailedRetentionMinutes:    10,
	}
	return task.NewRegistry(cfg, runner, nil)
}

func TestCoordinator_OrderedShutdown(t *testing.T) {
	cron := &fakeCron{}
	cleaner := &fakeCleaner{stopped: 3}
	registry := newRegistry(func(ctx context.Context, stockCode string) (string, error) {
		return "ok", nil
	})

	c := NewCoordinator(cron, cleaner, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	assert.Equal(t, 1, cron.stopped)
	require.Equal(t, 1, cleaner.calls)
	assert.Equal(t, "应用关闭，自动停止", cleaner.reasons[0])
}

func TestCoordinator_Idempotent(t *testing.T) {
	cron := &fakeCron{}
	cleaner := &fakeCleaner{}
	registry := newRegistry(func(ctx context.Context, stockCode string) (string, error) {
		return "ok", nil
	})

	c := NewCoordinator(cron, cleaner, registry)

	require.NoError(t, c.Shutdown(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))

	// 第二次调用什么都不做
	assert.Equal(t, 1, cron.stopped)
	assert.Equal(t, 1, cleaner.calls)
}

func TestCoordinator_NoopWithoutWork(t *testing.T) {
	// 没有任何任务存在时也不报错
	c := NewCoordinator(nil, &fakeCleaner{}, nil)
	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestCoordinator_TimeoutPropagates(t *testing.T) {
	cleaner := &fakeCleaner{}
	registry := newRegistry(func(ctx context.Context, stockCode string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, err := registry.CreateTask("600519", "device-1")
	require.NoError(t, err)

	c := NewCoordinator(nil, cleaner, registry)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = c.Shutdown(ctx)
	assert.ErrorIs(t, err, task.ErrShutdownTimeout)

	// 超时了盯盘任务也已经停完
	assert.Equal(t, 1, cleaner.calls)
}
