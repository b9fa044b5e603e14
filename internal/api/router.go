package api

import (
	"github.com/gin-gonic/gin"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/api/handler"
	"github.com/JackeyWin/stock_go_server/internal/api/middleware"
)

type Router struct {
	analysisHandler  *handler.AnalysisHandler
	monitorHandler   *handler.MonitorHandler
	websocketHandler *handler.WebSocketHandler
	cfg              *config.Config
}

func NewRouter(
	analysisHandler *handler.AnalysisHandler,
	monitorHandler *handler.MonitorHandler,
	websocketHandler *handler.WebSocketHandler,
	cfg *config.Config,
) *Router {
	return &Router{
		analysisHandler:  analysisHandler,
		monitorHandler:   monitorHandler,
		websocketHandler: websocketHandler,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// WebSocket
	engine.GET("/api/ws", r.websocketHandler.Handle)

	stocks := engine.Group("/api/stocks")
	{
		// 异步分析
		analysis := stocks.Group("/analysis")
		{
			analysis.POST("/async", r.analysisHandler.CreateAsync)
			analysis.GET("/async/:taskId", r.analysisHandler.GetAsync)
		}

		// 盯盘任务
		monitor := stocks.Group("/monitor")
		{
			monitor.POST("/start", r.monitorHandler.Start)
			monitor.POST("/stop", r.monitorHandler.Stop)
			monitor.GET("/status/:jobId", r.monitorHandler.Status)
			monitor.GET("/stock-status/:stockCode", r.monitorHandler.StockStatus)
			monitor.POST("/cleanup-all", r.monitorHandler.CleanupAll)
			monitor.GET("/records/today/:stockCode", r.monitorHandler.RecordsToday)
			monitor.GET("/all-jobs", r.monitorHandler.AllJobs)
		}
	}

	return engine
}
