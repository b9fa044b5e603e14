package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/database"
	"github.com/JackeyWin/stock_go_server/internal/model"
	"github.com/JackeyWin/stock_go_server/internal/repository"
)

var (
	dryRun       = flag.Bool("dry-run", true, "Dry run mode, don't actually update rows")
	reason       = flag.String("reason", "服务重启，任务已自动停止", "Message written to reconciled jobs")
	purgeRecords = flag.Bool("purge-records", false, "Also purge monitoring records past retention")
)

func main() {
	flag.Parse()

	log.Println("🧹 Starting monitoring job reconciliation...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	jobRepo := repository.NewJobRepository(db)
	recordRepo := repository.NewRecordRepository(db)

	// 1. 把遗留的 running 行置为 stopped
	stale, err := jobRepo.FindAllRunning()
	if err != nil {
		log.Fatalf("Failed to query running jobs: %v", err)
	}

	for _, job := range stale {
		last := "never"
		if job.LastRunTime != nil {
			last = job.LastRunTime.Format(time.RFC3339)
		}
		log.Printf("  stale: %s stock=%s interval=%dmin last_run=%s", job.JobID, job.StockCode, job.IntervalMinutes, last)
	}

	reconciled := int64(0)
	if !*dryRun && len(stale) > 0 {
		reconciled, err = jobRepo.StopAllRunning(*reason)
		if err != nil {
			log.Fatalf("Failed to stop running jobs: %v", err)
		}
	}

	// 2. 可选：清理过期盯盘记录
	purged := int64(0)
	if *purgeRecords && !*dryRun {
		cutoff := time.Now().AddDate(0, 0, -cfg.Monitor.RecordRetentionDays)
		purged, err = recordRepo.DeleteBefore(cutoff)
		if err != nil {
			log.Fatalf("Failed to purge records: %v", err)
		}
	}

	// 输出统计
	log.Println("\n" + strings.Repeat("=", 60))
	log.Println("📊 Reconciliation Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Stale %s jobs found: %d", model.JobStatusRunning, len(stale))
	log.Printf("Jobs stopped: %d", reconciled)
	log.Printf("Records purged: %d", purged)
	if *dryRun {
		log.Println("\n⚠️  DRY RUN MODE - No rows were actually updated")
	}
}
