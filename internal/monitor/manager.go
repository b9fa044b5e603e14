package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/model"
	"github.com/JackeyWin/stock_go_server/internal/pkg/pubsub"
	"github.com/JackeyWin/stock_go_server/internal/repository"
)

var (
	ErrJobNotFound       = errors.New("盯盘任务不存在")
	ErrJobAlreadyRunning = errors.New("该股票已有运行中的盯盘任务")
	ErrInvalidInterval   = errors.New("盯盘间隔只支持 5、10、30、60 分钟")
)

var validIntervals = map[int]struct{}{5: {}, 10: {}, 30: {}, 60: {}}

// Analyzer 盯盘每次执行调用的外部分析能力
type Analyzer interface {
	Intraday(ctx context.Context, stockCode string) (string, error)
}

// ProgressPublisher 盯盘执行事件推送，可以为 nil
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, msg *pubsub.ProgressMessage) error
}

type jobHandle struct {
	jobID     string
	stockCode string
	machineID string
	cancel    context.CancelFunc
	done      chan struct{}

	// 只在任务自己的 goroutine 里读写
	consecutiveFailures int
}

// Manager 盯盘任务管理器。数据库行是任务状态的权威来源，
// 内存里的 handle 只负责定时器的生命周期。
type Manager struct {
	mu      sync.Mutex
	handles map[string]*jobHandle

	jobs      *repository.JobRepository
	records   *repository.RecordRepository
	analyzer  Analyzer
	publisher ProgressPublisher
	policy    *TradingPolicy

	maxConsecutiveFailures int

	// 间隔的时间单位，测试里缩短成毫秒级
	unit time.Duration
	// 当前时间来源，测试里固定到交易时段
	now func() time.Time
}

// Option 调整 Manager 的时间行为，测试里固定时钟、缩短间隔单位
type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIntervalUnit(unit time.Duration) Option {
	return func(m *Manager) { m.unit = unit }
}

func NewManager(cfg *config.MonitorConfig, jobs *repository.JobRepository, records *repository.RecordRepository, analyzer Analyzer, publisher ProgressPublisher, opts ...Option) (*Manager, error) {
	policy, err := NewTradingPolicy(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		handles:                make(map[string]*jobHandle),
		jobs:                   jobs,
		records:                records,
		analyzer:               analyzer,
		publisher:              publisher,
		policy:                 policy,
		maxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		unit:                   time.Minute,
		now:                    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start 创建盯盘任务：先落库，再注册定时器。第一次执行立即触发。
// 同一台设备对同一只股票最多一个运行中的任务。
func (m *Manager) Start(stockCode string, intervalMinutes int, analysisID, machineID string) (string, error) {
	if _, ok := validIntervals[intervalMinutes]; !ok {
		return "", ErrInvalidInterval
	}

	exists, err := m.jobs.ExistsRunning(stockCode, machineID)
	if err != nil {
		return "", fmt.Errorf("查询运行中任务失败: %w", err)
	}
	if exists {
		return "", ErrJobAlreadyRunning
	}

	jobID := fmt.Sprintf("monitor_%s_%d", stockCode, m.now().UnixMilli())
	job := &model.MonitoringJob{
		JobID:           jobID,
		StockCode:       stockCode,
		IntervalMinutes: intervalMinutes,
		AnalysisID:      analysisID,
		MachineID:       machineID,
		Status:          model.JobStatusRunning,
		StartTime:       m.now(),
	}
	if err := m.jobs.Create(job); err != nil {
		return "", fmt.Errorf("创建盯盘任务失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := &jobHandle{
		jobID:     jobID,
		stockCode: stockCode,
		machineID: machineID,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	m.mu.Lock()
	m.handles[jobID] = handle
	m.mu.Unlock()

	go m.loop(ctx, handle, time.Duration(intervalMinutes)*m.unit)

	log.Printf("Monitoring job %s started, stock: %s, interval: %dmin", jobID, stockCode, intervalMinutes)
	return jobID, nil
}

// Stop 停止任务。重复停止或任务不存在时返回 false，从不报错。
func (m *Manager) Stop(jobID string) bool {
	m.mu.Lock()
	handle, ok := m.handles[jobID]
	if ok {
		delete(m.handles, jobID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	handle.cancel()
	if err := m.jobs.UpdateStatus(jobID, model.JobStatusStopped, "手动停止"); err != nil {
		log.Printf("Failed to persist stop for job %s: %v", jobID, err)
	}
	log.Printf("Monitoring job %s stopped", jobID)
	return true
}

// Status 按 jobId 查询持久化的任务状态
func (m *Manager) Status(jobID string) (*model.MonitoringJob, error) {
	job, err := m.jobs.GetByJobID(jobID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// StatusForStock 查询某只股票当前运行中的任务，客户端不需要记住 jobId
func (m *Manager) StatusForStock(stockCode string) (*model.MonitoringJob, error) {
	job, err := m.jobs.FindRunningByStock(stockCode)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrJobNotFound
	}
	return job, err
}

// ListAll 读持久化表而不是内存缓存，重启前遗留的任务也能看到
func (m *Manager) ListAll(limit int) ([]*model.MonitoringJob, error) {
	return m.jobs.ListAll(limit)
}

// RecordsToday 当天（市场时区）的盯盘记录，新的在前
func (m *Manager) RecordsToday(stockCode string) ([]*model.MonitoringRecord, error) {
	now := m.now()
	return m.records.FindByStockBetween(stockCode, m.policy.StartOfDay(now), now)
}

// CleanupAll 停掉全部运行中的任务，返回受影响的数量。
// 数据库写失败只记日志，定时器照样取消，后续可人工对账。
func (m *Manager) CleanupAll(reason string) int {
	m.mu.Lock()
	stopped := make([]*jobHandle, 0, len(m.handles))
	for _, handle := range m.handles {
		stopped = append(stopped, handle)
	}
	m.handles = make(map[string]*jobHandle)
	m.mu.Unlock()

	for _, handle := range stopped {
		handle.cancel()
	}

	count, err := m.jobs.StopAllRunning(reason)
	if err != nil {
		log.Printf("Failed to persist cleanup-all: %v", err)
		return len(stopped)
	}

	// 数据库里可能还有上次进程遗留的 running 行，以行数为准
	n := int(count)
	if len(stopped) > n {
		n = len(stopped)
	}
	if n > 0 {
		log.Printf("Cleanup stopped %d monitoring jobs, reason: %s", n, reason)
	}
	return n
}

// ReconcileStartup 启动时把上次进程遗留的 running 行置为 stopped，
// 定时器不跨进程恢复。
func (m *Manager) ReconcileStartup() (int64, error) {
	count, err := m.jobs.StopAllRunning("服务重启，任务已自动停止")
	if err != nil {
		return 0, fmt.Errorf("启动对账失败: %w", err)
	}
	if count > 0 {
		log.Printf("Startup reconciliation stopped %d stale monitoring jobs", count)
	}
	return count, nil
}

// ActiveCount 当前内存里持有定时器的任务数
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

func (m *Manager) loop(ctx context.Context, handle *jobHandle, interval time.Duration) {
	defer close(handle.done)

	// 启动即执行一次，再按间隔走
	if !m.tick(ctx, handle) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.tick(ctx, handle) {
				return
			}
		}
	}
}

// tick 执行一次盯盘，返回 false 表示任务应当终止
func (m *Manager) tick(ctx context.Context, handle *jobHandle) bool {
	now := m.now()

	switch m.policy.decide(now) {
	case decisionStop:
		m.autoStop(handle, model.JobStatusStopped, "非交易时段，已自动停止")
		return false
	case decisionSkip:
		if err := m.jobs.UpdateTickResult(handle.jobID, now, "午间休市，跳过本次执行"); err != nil {
			log.Printf("Failed to record skipped tick for job %s: %v", handle.jobID, err)
		}
		return true
	}

	content, err := m.analyzer.Intraday(ctx, handle.stockCode)
	if err != nil {
		if ctx.Err() != nil {
			// 任务已被停止，丢弃这次结果
			return false
		}
		handle.consecutiveFailures++
		message := "执行失败: " + err.Error()
		log.Printf("Monitoring tick failed for job %s (attempt %d): %v", handle.jobID, handle.consecutiveFailures, err)

		if m.maxConsecutiveFailures > 0 && handle.consecutiveFailures >= m.maxConsecutiveFailures {
			m.autoStop(handle, model.JobStatusError, message)
			return false
		}
		if err := m.jobs.UpdateTickResult(handle.jobID, now, message); err != nil {
			log.Printf("Failed to record failed tick for job %s: %v", handle.jobID, err)
		}
		return true
	}

	if ctx.Err() != nil {
		return false
	}
	handle.consecutiveFailures = 0

	record := &model.MonitoringRecord{
		StockCode: handle.stockCode,
		JobID:     handle.jobID,
		Content:   content,
		CreatedAt: now,
	}
	if err := m.records.Create(record); err != nil {
		log.Printf("Failed to save monitoring record for job %s: %v", handle.jobID, err)
	}

	// 只更新执行时间和消息，status 列不动，晚到的结果不会复活已停止的任务
	if err := m.jobs.UpdateTickResult(handle.jobID, now, truncate(content, 255)); err != nil {
		log.Printf("Failed to record tick for job %s: %v", handle.jobID, err)
	}

	m.publishTick(handle, content)
	return true
}

// autoStop 由任务自己的 goroutine 触发的终止（收盘、连续失败）
func (m *Manager) autoStop(handle *jobHandle, status, message string) {
	m.mu.Lock()
	delete(m.handles, handle.jobID)
	m.mu.Unlock()

	handle.cancel()
	if err := m.jobs.UpdateStatus(handle.jobID, status, message); err != nil {
		log.Printf("Failed to persist auto-stop for job %s: %v", handle.jobID, err)
	}
	log.Printf("Monitoring job %s auto-stopped (%s): %s", handle.jobID, status, message)
}

func (m *Manager) publishTick(handle *jobHandle, content string) {
	if m.publisher == nil {
		return
	}
	msg := &pubsub.ProgressMessage{
		Type:      pubsub.TypeMonitorTick,
		MachineID: handle.machineID,
		JobID:     handle.jobID,
		StockCode: handle.stockCode,
		Status:    model.JobStatusRunning,
		Message:   truncate(content, 255),
	}
	if err := m.publisher.PublishProgress(context.Background(), msg); err != nil {
		log.Printf("Failed to publish monitor tick: %v", err)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
