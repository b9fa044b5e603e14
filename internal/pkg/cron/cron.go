package cron

import (
	"log"
	"time"

	"github.com/JackeyWin/stock_go_server/internal/repository"
)

// MonitorCleaner 收盘时需要停掉的盯盘任务管理器
type MonitorCleaner interface {
	CleanupAll(reason string) int
}

type Service struct {
	cleaner       MonitorCleaner
	recordRepo    *repository.RecordRepository
	retentionDays int
	loc           *time.Location
	stopChan      chan struct{}
}

func NewService(cleaner MonitorCleaner, recordRepo *repository.RecordRepository, retentionDays int, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		cleaner:       cleaner,
		recordRepo:    recordRepo,
		retentionDays: retentionDays,
		loc:           loc,
		stopChan:      make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runMarketCloseCleanup()
	go s.runRecordRetention()
	log.Println("Cron service started (market close cleanup + record retention)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runMarketCloseCleanup 每个工作日 15:00 收盘后停掉所有盯盘任务
func (s *Service) runMarketCloseCleanup() {
	for {
		now := time.Now().In(s.loc)
		timer := time.NewTimer(nextMarketClose(now).Sub(now))

		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.cleanupAtClose()
		}
	}
}

func (s *Service) cleanupAtClose() {
	stopped := s.cleaner.CleanupAll("非交易时段，已自动停止")
	if stopped > 0 {
		log.Printf("Market close cleanup stopped %d monitoring jobs", stopped)
	}
}

// runRecordRetention 每天零点清理过期盯盘记录
func (s *Service) runRecordRetention() {
	for {
		now := time.Now().In(s.loc)
		nextMidnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, s.loc)
		timer := time.NewTimer(nextMidnight.Sub(now))

		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
			s.purgeExpiredRecords()
		}
	}
}

func (s *Service) purgeExpiredRecords() {
	cutoff := time.Now().In(s.loc).AddDate(0, 0, -s.retentionDays)
	deleted, err := s.recordRepo.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("Failed to purge expired monitoring records: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Purged %d monitoring records older than %d days", deleted, s.retentionDays)
	}
}

// RunRetentionNow 立即执行一次记录清理（测试或手动触发）
func (s *Service) RunRetentionNow() (int64, error) {
	cutoff := time.Now().In(s.loc).AddDate(0, 0, -s.retentionDays)
	return s.recordRepo.DeleteBefore(cutoff)
}

// nextMarketClose 下一个工作日 15:00；周末顺延到周一
func nextMarketClose(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), 15, 0, 0, 0, now.Location())
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
