package model

import (
	"time"
)

// 盯盘任务状态
const (
	JobStatusRunning = "running"
	JobStatusStopped = "stopped"
	JobStatusError   = "error"
)

type MonitoringJob struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	JobID           string     `gorm:"size:100;uniqueIndex;not null" json:"job_id"`
	StockCode       string     `gorm:"size:20;not null;index" json:"stock_code"`
	IntervalMinutes int        `gorm:"not null" json:"interval_minutes"`
	AnalysisID      string     `gorm:"size:100" json:"analysis_id,omitempty"`
	MachineID       string     `gorm:"size:100;index" json:"machine_id,omitempty"`
	Status          string     `gorm:"size:20;not null;index" json:"status"` // running, stopped, error
	StartTime       time.Time  `gorm:"not null" json:"start_time"`
	LastRunTime     *time.Time `json:"last_run_time,omitempty"`
	LastMessage     string     `gorm:"type:text" json:"last_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (MonitoringJob) TableName() string {
	return "monitoring_job"
}
