package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JackeyWin/stock_go_server/internal/model"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.MonitoringJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByJobID(jobID string) (*model.MonitoringJob, error) {
	var job model.MonitoringJob
	err := r.db.Where("job_id = ?", jobID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindRunningByStock 查询某只股票当前运行中的盯盘任务
func (r *JobRepository) FindRunningByStock(stockCode string) (*model.MonitoringJob, error) {
	var job model.MonitoringJob
	err := r.db.Where("stock_code = ? AND status = ?", stockCode, model.JobStatusRunning).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ExistsRunning 判断 (stockCode, machineID) 是否已有运行中的任务
func (r *JobRepository) ExistsRunning(stockCode, machineID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.MonitoringJob{}).
		Where("stock_code = ? AND machine_id = ? AND status = ?", stockCode, machineID, model.JobStatusRunning).
		Count(&count).Error
	return count > 0, err
}

func (r *JobRepository) FindAllRunning() ([]*model.MonitoringJob, error) {
	var jobs []*model.MonitoringJob
	err := r.db.Where("status = ?", model.JobStatusRunning).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// ListAll 按创建时间倒序返回全部任务，供管理界面展示
func (r *JobRepository) ListAll(limit int) ([]*model.MonitoringJob, error) {
	var jobs []*model.MonitoringJob
	q := r.db.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// UpdateStatus 单行更新任务状态和说明
func (r *JobRepository) UpdateStatus(jobID, status, message string) error {
	now := time.Now()
	return r.db.Model(&model.MonitoringJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":        status,
			"last_message":  message,
			"last_run_time": now,
		}).Error
}

// UpdateTickResult 只更新执行时间和消息，不触碰 status 列。
// 晚到的执行结果不会把已停止的任务改回 running。
func (r *JobRepository) UpdateTickResult(jobID string, runTime time.Time, message string) error {
	return r.db.Model(&model.MonitoringJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"last_run_time": runTime,
			"last_message":  message,
		}).Error
}

// StopAllRunning 批量把 running 任务置为 stopped，返回影响行数
func (r *JobRepository) StopAllRunning(message string) (int64, error) {
	result := r.db.Model(&model.MonitoringJob{}).
		Where("status = ?", model.JobStatusRunning).
		Updates(map[string]interface{}{
			"status":        model.JobStatusStopped,
			"last_message":  message,
			"last_run_time": time.Now(),
		})
	return result.RowsAffected, result.Error
}
