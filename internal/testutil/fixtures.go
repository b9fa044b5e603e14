package testutil

import (
	"fmt"
	"time"

	"github.com/JackeyWin/stock_go_server/internal/model"
)

// JobOption 修改测试任务字段
type JobOption func(*model.MonitoringJob)

func WithJobID(jobID string) JobOption {
	return func(j *model.MonitoringJob) { j.JobID = jobID }
}

func WithStockCode(stockCode string) JobOption {
	return func(j *model.MonitoringJob) { j.StockCode = stockCode }
}

func WithMachineID(machineID string) JobOption {
	return func(j *model.MonitoringJob) { j.MachineID = machineID }
}

func WithStatus(status string) JobOption {
	return func(j *model.MonitoringJob) { j.Status = status }
}

func WithInterval(minutes int) JobOption {
	return func(j *model.MonitoringJob) { j.IntervalMinutes = minutes }
}

// TestMonitoringJob 构造一个运行中的盯盘任务
func TestMonitoringJob(opts ...JobOption) *model.MonitoringJob {
	job := &model.MonitoringJob{
		JobID:           fmt.Sprintf("monitor_600519_%d", time.Now().UnixMilli()),
		StockCode:       "600519",
		IntervalMinutes: 10,
		MachineID:       "test-device",
		Status:          model.JobStatusRunning,
		StartTime:       time.Now(),
	}
	for _, opt := range opts {
		opt(job)
	}
	return job
}

// RecordOption 修改测试记录字段
type RecordOption func(*model.MonitoringRecord)

func WithRecordStock(stockCode string) RecordOption {
	return func(r *model.MonitoringRecord) { r.StockCode = stockCode }
}

func WithRecordJobID(jobID string) RecordOption {
	return func(r *model.MonitoringRecord) { r.JobID = jobID }
}

func WithRecordContent(content string) RecordOption {
	return func(r *model.MonitoringRecord) { r.Content = content }
}

func WithRecordCreatedAt(t time.Time) RecordOption {
	return func(r *model.MonitoringRecord) { r.CreatedAt = t }
}

// TestRecord 构造一条盯盘执行记录
func TestRecord(opts ...RecordOption) *model.MonitoringRecord {
	record := &model.MonitoringRecord{
		StockCode: "600519",
		JobID:     "monitor_600519_1",
		Content:   "当前走势平稳，建议继续持有",
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(record)
	}
	return record
}
