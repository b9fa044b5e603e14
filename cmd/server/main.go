package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/api"
	"github.com/JackeyWin/stock_go_server/internal/api/handler"
	"github.com/JackeyWin/stock_go_server/internal/database"
	"github.com/JackeyWin/stock_go_server/internal/engine"
	"github.com/JackeyWin/stock_go_server/internal/monitor"
	"github.com/JackeyWin/stock_go_server/internal/pkg/cron"
	"github.com/JackeyWin/stock_go_server/internal/pkg/llm"
	"github.com/JackeyWin/stock_go_server/internal/pkg/pubsub"
	"github.com/JackeyWin/stock_go_server/internal/pkg/rotator"
	"github.com/JackeyWin/stock_go_server/internal/pkg/search"
	"github.com/JackeyWin/stock_go_server/internal/pkg/ws"
	"github.com/JackeyWin/stock_go_server/internal/repository"
	"github.com/JackeyWin/stock_go_server/internal/shutdown"
	"github.com/JackeyWin/stock_go_server/internal/task"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	recordRepo := repository.NewRecordRepository(db)

	// 外部能力：联网搜索（多 key 轮询）+ 大模型
	keyPool := rotator.New(cfg.Search.APIKeys)
	searchClient := search.NewClient(cfg.Search.BaseURL, keyPool)
	llmClient := llm.NewClient(&cfg.LLM)
	aiEngine := engine.NewAI(llmClient, searchClient)

	// 进度推送：Redis 发布，WebSocket 按设备投递
	publisher := pubsub.NewPublisher(rdb)
	subscriber := pubsub.NewSubscriber(rdb)
	wsHub := ws.NewHub()

	// 异步分析任务注册表
	registry := task.NewRegistry(&cfg.Analysis, aiEngine.Analyze, publisher)

	// 盯盘任务管理器
	manager, err := monitor.NewManager(&cfg.Monitor, jobRepo, recordRepo, aiEngine, publisher)
	if err != nil {
		log.Fatalf("Failed to create monitor manager: %v", err)
	}

	// 上个进程遗留的 running 任务置为 stopped
	if _, err := manager.ReconcileStartup(); err != nil {
		log.Fatalf("Failed to reconcile monitoring jobs: %v", err)
	}

	// 定时任务：收盘清理 + 记录保留
	loc, err := time.LoadLocation(cfg.Monitor.Timezone)
	if err != nil {
		log.Fatalf("Failed to load timezone: %v", err)
	}
	cronService := cron.NewService(manager, recordRepo, cfg.Monitor.RecordRetentionDays, loc)
	cronService.Start()

	// 订阅进度消息，推送到对应设备
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	go func() {
		err := subscriber.Subscribe(subCtx, func(msg *pubsub.ProgressMessage) {
			if err := wsHub.SendToMachine(msg.MachineID, &ws.Message{Type: msg.Type, Data: msg}); err != nil {
				log.Printf("Failed to push progress to device %s: %v", msg.MachineID, err)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("Progress subscriber exited: %v", err)
		}
	}()

	// 初始化 Handler 和 Router
	analysisHandler := handler.NewAnalysisHandler(registry)
	monitorHandler := handler.NewMonitorHandler(manager)
	websocketHandler := handler.NewWebSocketHandler(wsHub)

	router := api.NewRouter(analysisHandler, monitorHandler, websocketHandler, cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router.Setup(),
	}

	go func() {
		log.Printf("Server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received")

	grace := time.Duration(cfg.Shutdown.GraceSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	// 先停 HTTP，不再接新请求
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	subCancel()

	// 再按顺序收尾：定时任务、盯盘任务、异步任务工作池
	coordinator := shutdown.NewCoordinator(cronService, manager, registry)
	if err := coordinator.Shutdown(ctx); err != nil {
		log.Printf("Shutdown incomplete: %v", err)
	}
	log.Println("Server exited")
}
