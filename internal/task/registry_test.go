package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/pkg/pubsub"
)

func testConfig() *config.AnalysisConfig {
	return &config.AnalysisConfig{
		MaxWorkers:                2,
		QueueSize:                 10,
		CompletedRetentionMinutes: 30,
		FailedRetentionMinutes:    10,
	}
}

func immediateRunner(result string, err error) Runner {
	return func(ctx context.Context, stockCode string) (string, error) {
		return result, err
	}
}

func TestRegistry_CreateAndComplete(t *testing.T) {
	r := NewRegistry(testConfig(), immediateRunner("建议持有", nil), nil)
	defer r.Shutdown(context.Background())

	taskID, err := r.CreateTask("600519", "device-1")
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	require.Eventually(t, func() bool {
		snap, err := r.GetStatus(taskID)
		require.NoError(t, err)
		return snap.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := r.GetStatus(taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, "建议持有", snap.Result)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.EndTime)
}

func TestRegistry_PollBeforeCompletion(t *testing.T) {
	release := make(chan struct{})
	runner := func(ctx context.Context, stockCode string) (string, error) {
		<-release
		return "ok", nil
	}
	r := NewRegistry(testConfig(), runner, nil)
	defer r.Shutdown(context.Background())

	taskID, err := r.CreateTask("600519", "device-1")
	require.NoError(t, err)

	snap, err := r.GetStatus(taskID)
	require.NoError(t, err)
	assert.Contains(t, []string{StatusPending, StatusRunning}, snap.Status)
	assert.Less(t, snap.Progress, 100)

	close(release)
}

func TestRegistry_WorkerFailure(t *testing.T) {
	r := NewRegistry(testConfig(), immediateRunner("", errors.New("python脚本执行失败")), nil)
	defer r.Shutdown(context.Background())

	taskID, err := r.CreateTask("000001", "device-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := r.GetStatus(taskID)
		require.NoError(t, err)
		return snap.Status == StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := r.GetStatus(taskID)
	assert.Equal(t, "python脚本执行失败", snap.Error)
	assert.NotEqual(t, 100, snap.Progress)
	require.NotNil(t, snap.EndTime)
}

func TestRegistry_GetStatus_NotFound(t *testing.T) {
	r := NewRegistry(testConfig(), immediateRunner("ok", nil), nil)
	defer r.Shutdown(context.Background())

	_, err := r.GetStatus("no-such-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRegistry_ProgressEstimation(t *testing.T) {
	cases := []struct {
		elapsed  time.Duration
		progress int
	}{
		{5 * time.Second, 20},
		{45 * time.Second, 40},
		{70 * time.Second, 60},
		{100 * time.Second, 80},
		{10 * time.Minute, 90},
	}

	for _, tc := range cases {
		progress, message := estimateProgress(tc.elapsed)
		assert.Equal(t, tc.progress, progress, "elapsed %v", tc.elapsed)
		assert.NotEmpty(t, message)
	}
}

func TestRegistry_ProgressMonotonic(t *testing.T) {
	release := make(chan struct{})
	runner := func(ctx context.Context, stockCode string) (string, error) {
		<-release
		return "ok", nil
	}
	r := NewRegistry(testConfig(), runner, nil)
	defer r.Shutdown(context.Background())

	taskID, err := r.CreateTask("600519", "device-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := r.GetStatus(taskID)
		return snap.Status == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	// 把开始时间回拨，模拟任务已运行了一段时间
	r.mu.RLock()
	entry := r.tasks[taskID]
	r.mu.RUnlock()

	entry.mu.Lock()
	entry.startTime = time.Now().Add(-65 * time.Second)
	entry.mu.Unlock()

	snap, err := r.GetStatus(taskID)
	require.NoError(t, err)
	assert.Equal(t, 60, snap.Progress)

	// 即使时间倒退（NTP 校时等），进度也不会回退
	entry.mu.Lock()
	entry.startTime = time.Now()
	entry.mu.Unlock()

	snap, err = r.GetStatus(taskID)
	require.NoError(t, err)
	assert.Equal(t, 60, snap.Progress)

	close(release)

	require.Eventually(t, func() bool {
		snap, _ := r.GetStatus(taskID)
		return snap.Status == StatusCompleted && snap.Progress == 100
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistry_TerminalStateSetOnce(t *testing.T) {
	r := NewRegistry(testConfig(), immediateRunner("第一次结果", nil), nil)
	defer r.Shutdown(context.Background())

	taskID, err := r.CreateTask("600519", "device-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := r.GetStatus(taskID)
		return snap.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	r.mu.RLock()
	entry := r.tasks[taskID]
	r.mu.RUnlock()

	// 第二次回调是空操作
	r.complete(entry, "第二次结果")
	r.fail(entry, "不应生效")

	snap, err := r.GetStatus(taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "第一次结果", snap.Result)
	assert.Empty(t, snap.Error)
}

func TestRegistry_QueueFullFailsFast(t *testing.T) {
	release := make(chan struct{})
	runner := func(ctx context.Context, stockCode string) (string, error) {
		<-release
		return "ok", nil
	}
	cfg := &config.AnalysisConfig{
		MaxWorkers:                1,
		QueueSize:                 1,
		CompletedRetentionMinutes: 30,
		FailedRetentionMinutes:    10,
	}
	r := NewRegistry(cfg, runner, nil)
	defer func() {
		close(release)
		r.Shutdown(context.Background())
	}()

	// 第一个被 worker 取走，第二个占满队列
	first, err := r.CreateTask("600519", "device-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap, _ := r.GetStatus(first)
		return snap.Status == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	_, err = r.CreateTask("000001", "device-1")
	require.NoError(t, err)

	// 第三个放不进队列，立刻失败
	third, err := r.CreateTask("000002", "device-1")
	require.NoError(t, err)

	snap, err := r.GetStatus(third)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "队列已满")
}

func TestRegistry_SweepRemovesExpired(t *testing.T) {
	r := NewRegistry(testConfig(), immediateRunner("ok", nil), nil)
	defer r.Shutdown(context.Background())

	taskID, err := r.CreateTask("600519", "device-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := r.GetStatus(taskID)
		return snap.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	// 把完成时间回拨到保留窗口之外
	r.mu.RLock()
	entry := r.tasks[taskID]
	r.mu.RUnlock()

	entry.mu.Lock()
	expired := time.Now().Add(-31 * time.Minute)
	entry.endTime = &expired
	entry.mu.Unlock()

	r.sweep()

	_, err = r.GetStatus(taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRegistry_ShutdownDrains(t *testing.T) {
	runner := func(ctx context.Context, stockCode string) (string, error) {
		time.Sleep(50 * time.Millisecond)
		return "ok", nil
	}
	r := NewRegistry(testConfig(), runner, nil)

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		id, err := r.CreateTask("600519", "device-1")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	for _, id := range ids {
		snap, err := r.GetStatus(id)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, snap.Status)
	}

	// 关闭后不再接受新任务
	_, err := r.CreateTask("000001", "device-1")
	assert.ErrorIs(t, err, ErrShuttingDown)

	// 再次关闭是空操作
	assert.NoError(t, r.Shutdown(context.Background()))
}

func TestRegistry_ShutdownTimeout(t *testing.T) {
	runner := func(ctx context.Context, stockCode string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	r := NewRegistry(testConfig(), runner, nil)

	_, err := r.CreateTask("600519", "device-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = r.Shutdown(ctx)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
}

type capturingPublisher struct {
	mu   sync.Mutex
	msgs []*pubsub.ProgressMessage
}

func (p *capturingPublisher) PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturingPublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Status)
	}
	return out
}

func TestRegistry_PublishesProgress(t *testing.T) {
	pub := &capturingPublisher{}
	r := NewRegistry(testConfig(), immediateRunner("ok", nil), pub)
	defer r.Shutdown(context.Background())

	taskID, err := r.CreateTask("600519", "device-7")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := r.GetStatus(taskID)
		return snap.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		statuses := pub.statuses()
		return len(statuses) >= 2 && statuses[len(statuses)-1] == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, "device-7", pub.msgs[0].MachineID)
	assert.Equal(t, pubsub.TypeTaskProgress, pub.msgs[0].Type)
}
