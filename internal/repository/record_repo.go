package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JackeyWin/stock_go_server/internal/model"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(record *model.MonitoringRecord) error {
	return r.db.Create(record).Error
}

// FindByStockBetween 查询某只股票指定时间段内的盯盘记录，新的在前
func (r *RecordRepository) FindByStockBetween(stockCode string, start, end time.Time) ([]*model.MonitoringRecord, error) {
	var records []*model.MonitoringRecord
	err := r.db.Where("stock_code = ? AND created_at BETWEEN ? AND ?", stockCode, start, end).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// DeleteBefore 按保留策略删除过期记录，返回删除行数
func (r *RecordRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&model.MonitoringRecord{})
	return result.RowsAffected, result.Error
}
