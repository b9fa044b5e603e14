package model

import (
	"time"
)

// MonitoringRecord 单次盯盘执行的输出，只追加不修改
type MonitoringRecord struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	StockCode string    `gorm:"size:20;not null;index:idx_record_stock_created,priority:1" json:"stock_code"`
	JobID     string    `gorm:"size:100;index" json:"job_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_record_stock_created,priority:2" json:"created_at"`
}

func (MonitoringRecord) TableName() string {
	return "monitoring_record"
}
