package task

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/pkg/pubsub"
)

var (
	ErrTaskNotFound    = errors.New("任务不存在或已过期")
	ErrShuttingDown    = errors.New("服务正在关闭，不再接受新任务")
	ErrShutdownTimeout = errors.New("等待任务排空超时")
)

// Runner 真正的分析计算，由外部协作方提供
type Runner func(ctx context.Context, stockCode string) (string, error)

// ProgressPublisher 进度推送，可以为 nil
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

type taskEntry struct {
	mu sync.Mutex

	taskID    string
	stockCode string
	machineID string
	status    string
	message   string
	result    string
	errMsg    string
	startTime time.Time
	endTime   *time.Time

	// 进度高水位，保证连续轮询单调不减
	highWater int
}

// Registry 异步分析任务注册表。
// 任务状态只由 Registry 自己修改，调用方拿到的是快照。
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*taskEntry
	queue  chan *taskEntry
	closed bool

	runner    Runner
	publisher ProgressPublisher

	completedRetention time.Duration
	failedRetention    time.Duration

	rootCtx   context.Context
	cancel    context.CancelFunc
	workerWG  sync.WaitGroup
	sweepWG   sync.WaitGroup
	stopSweep chan struct{}

	// 测试缩短清扫周期用
	sweepInterval time.Duration
}

func NewRegistry(cfg *config.AnalysisConfig, runner Runner, publisher ProgressPublisher) *Registry {
	rootCtx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		tasks:              make(map[string]*taskEntry),
		queue:              make(chan *taskEntry, cfg.QueueSize),
		runner:             runner,
		publisher:          publisher,
		completedRetention: time.Duration(cfg.CompletedRetentionMinutes) * time.Minute,
		failedRetention:    time.Duration(cfg.FailedRetentionMinutes) * time.Minute,
		rootCtx:            rootCtx,
		cancel:             cancel,
		stopSweep:          make(chan struct{}),
		sweepInterval:      time.Minute,
	}

	for i := 0; i < cfg.MaxWorkers; i++ {
		r.workerWG.Add(1)
		go r.workerLoop(i)
	}

	r.sweepWG.Add(1)
	go r.sweepLoop()

	log.Printf("Task registry started, workers: %d, queue: %d", cfg.MaxWorkers, cfg.QueueSize)
	return r
}

// CreateTask 创建任务并提交到工作池，永不阻塞调用方。
// 队列已满时任务直接置为失败，调用方可稍后重试。
func (r *Registry) CreateTask(stockCode, machineID string) (string, error) {
	entry := &taskEntry{
		taskID:    uuid.NewString(),
		stockCode: stockCode,
		machineID: machineID,
		status:    StatusPending,
		message:   "排队等待分析",
		startTime: time.Now(),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrShuttingDown
	}
	r.tasks[entry.taskID] = entry

	select {
	case r.queue <- entry:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		// 队列满，快速失败而不是阻塞调用方
		r.fail(entry, "任务队列已满，请稍后重试")
	}

	return entry.taskID, nil
}

// GetStatus 返回任务快照，不存在或已被清理时返回 ErrTaskNotFound
func (r *Registry) GetStatus(taskID string) (*AnalysisTask, error) {
	r.mu.RLock()
	entry, ok := r.tasks[taskID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrTaskNotFound
	}
	return entry.snapshot(), nil
}

// ActiveCount 当前未到终态的任务数
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, entry := range r.tasks {
		entry.mu.Lock()
		if entry.status == StatusPending || entry.status == StatusRunning {
			n++
		}
		entry.mu.Unlock()
	}
	return n
}

// Shutdown 停止接收新任务并等待在途任务完成。
// ctx 到期仍未排空时放弃剩余任务并返回 ErrShutdownTimeout。
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	close(r.stopSweep)
	r.sweepWG.Wait()

	done := make(chan struct{})
	go func() {
		r.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		log.Println("Task registry drained")
		return nil
	case <-ctx.Done():
		abandoned := r.ActiveCount()
		r.cancel() // 让在途 runner 尽快退出
		log.Printf("Task registry shutdown timed out, %d tasks abandoned", abandoned)
		return ErrShutdownTimeout
	}
}

func (r *Registry) workerLoop(id int) {
	defer r.workerWG.Done()
	for entry := range r.queue {
		r.run(entry)
	}
}

func (r *Registry) run(entry *taskEntry) {
	entry.mu.Lock()
	if entry.status != StatusPending {
		entry.mu.Unlock()
		return
	}
	entry.status = StatusRunning
	entry.message = "正在获取股票数据"
	entry.mu.Unlock()

	r.publish(entry)

	result, err := r.runner(r.rootCtx, entry.stockCode)
	if err != nil {
		r.fail(entry, err.Error())
		return
	}
	r.complete(entry, result)
}

// complete 幂等：同一任务的第二次回调是空操作
func (r *Registry) complete(entry *taskEntry, result string) {
	entry.mu.Lock()
	if entry.terminalLocked() {
		entry.mu.Unlock()
		return
	}
	now := time.Now()
	entry.status = StatusCompleted
	entry.result = result
	entry.message = "分析完成"
	entry.highWater = progressComplete
	entry.endTime = &now
	entry.mu.Unlock()

	r.publish(entry)
}

func (r *Registry) fail(entry *taskEntry, errMsg string) {
	entry.mu.Lock()
	if entry.terminalLocked() {
		entry.mu.Unlock()
		return
	}
	now := time.Now()
	entry.status = StatusFailed
	entry.errMsg = errMsg
	entry.message = "分析失败"
	entry.endTime = &now
	entry.mu.Unlock()

	log.Printf("Task %s (%s) failed: %s", entry.taskID, entry.stockCode, errMsg)
	r.publish(entry)
}

func (r *Registry) publish(entry *taskEntry) {
	if r.publisher == nil {
		return
	}
	snap := entry.snapshot()
	msg := &pubsub.ProgressMessage{
		Type:      pubsub.TypeTaskProgress,
		MachineID: snap.MachineID,
		TaskID:    snap.TaskID,
		StockCode: snap.StockCode,
		Status:    snap.Status,
		Progress:  snap.Progress,
		Message:   snap.Message,
		Error:     snap.Error,
	}
	if err := r.publisher.PublishProgress(context.Background(), msg); err != nil {
		log.Printf("Failed to publish task progress: %v", err)
	}
}

func (r *Registry) sweepLoop() {
	defer r.sweepWG.Done()
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopSweep:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep 按保留窗口回收任务，控制内存上限
func (r *Registry) sweep() {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.tasks {
		entry.mu.Lock()
		expired := false
		switch entry.status {
		case StatusCompleted:
			expired = entry.endTime != nil && now.Sub(*entry.endTime) > r.completedRetention
		case StatusFailed:
			expired = entry.endTime != nil && now.Sub(*entry.endTime) > r.failedRetention
		default:
			// 兜底：卡死的非终态任务一小时后也回收
			expired = now.Sub(entry.startTime) > time.Hour
		}
		entry.mu.Unlock()

		if expired {
			delete(r.tasks, id)
			removed++
		}
	}

	if removed > 0 {
		log.Printf("Task sweep removed %d expired tasks", removed)
	}
}

func (e *taskEntry) terminalLocked() bool {
	return e.status == StatusCompleted || e.status == StatusFailed
}

// snapshot 组装对外快照，运行中任务按耗时估算进度
func (e *taskEntry) snapshot() *AnalysisTask {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &AnalysisTask{
		TaskID:    e.taskID,
		StockCode: e.stockCode,
		MachineID: e.machineID,
		Status:    e.status,
		Message:   e.message,
		Result:    e.result,
		Error:     e.errMsg,
		StartTime: e.startTime,
		EndTime:   e.endTime,
	}

	switch e.status {
	case StatusCompleted:
		snap.Progress = progressComplete
	case StatusRunning:
		estimated, phase := estimateProgress(time.Since(e.startTime))
		if estimated > e.highWater {
			e.highWater = estimated
			e.message = phase
			snap.Message = phase
		}
		snap.Progress = e.highWater
	default:
		snap.Progress = e.highWater
	}

	return snap
}
