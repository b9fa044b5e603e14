package task

import (
	"time"
)

// 任务状态
const (
	StatusPending   = "PENDING"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// AnalysisTask 异步分析任务的只读快照
type AnalysisTask struct {
	TaskID    string     `json:"task_id"`
	StockCode string     `json:"stock_code"`
	MachineID string     `json:"machine_id,omitempty"`
	Status    string     `json:"status"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Result    string     `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

type progressPhase struct {
	within   time.Duration
	progress int
	message  string
}

// 没有来自执行方的真实进度信号时，按运行时长估算一个阶段。
// 只是给前端的观感提示，完成时一定会被置为 100。
var progressPhases = []progressPhase{
	{30 * time.Second, 20, "正在获取股票数据"},
	{60 * time.Second, 40, "正在计算技术指标"},
	{90 * time.Second, 60, "正在进行AI分析"},
	{120 * time.Second, 80, "正在生成报告"},
}

const (
	progressCap      = 90 // 终态之前的上限
	progressComplete = 100
)

func estimateProgress(elapsed time.Duration) (int, string) {
	for _, p := range progressPhases {
		if elapsed < p.within {
			return p.progress, p.message
		}
	}
	return progressCap, "即将完成"
}
