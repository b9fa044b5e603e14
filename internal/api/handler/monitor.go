package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/JackeyWin/stock_go_server/internal/api/middleware"
	"github.com/JackeyWin/stock_go_server/internal/monitor"
	"github.com/JackeyWin/stock_go_server/internal/pkg/response"
)

type MonitorHandler struct {
	manager *monitor.Manager
}

func NewMonitorHandler(manager *monitor.Manager) *MonitorHandler {
	return &MonitorHandler{manager: manager}
}

type startMonitorRequest struct {
	StockCode       string `json:"stockCode" binding:"required"`
	IntervalMinutes int    `json:"intervalMinutes" binding:"required"`
	AnalysisID      string `json:"analysisId"`
}

type stopMonitorRequest struct {
	JobID string `json:"jobId" binding:"required"`
}

// Start 启动盯盘任务
// POST /api/stocks/monitor/start
func (h *MonitorHandler) Start(c *gin.Context) {
	var req startMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "股票代码和盯盘间隔不能为空")
		return
	}

	jobID, err := h.manager.Start(req.StockCode, req.IntervalMinutes, req.AnalysisID, middleware.MachineID(c))
	if err != nil {
		switch {
		case errors.Is(err, monitor.ErrInvalidInterval):
			response.ParamError(c, err.Error())
		case errors.Is(err, monitor.ErrJobAlreadyRunning):
			response.DuplicateError(c, err.Error())
		default:
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, gin.H{"jobId": jobID})
}

// Stop 停止盯盘任务，重复停止返回 success=false
// POST /api/stocks/monitor/stop
func (h *MonitorHandler) Stop(c *gin.Context) {
	var req stopMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "jobId不能为空")
		return
	}

	stopped := h.manager.Stop(req.JobID)
	response.Success(c, gin.H{"success": stopped})
}

// Status 查询盯盘任务状态
// GET /api/stocks/monitor/status/:jobId
func (h *MonitorHandler) Status(c *gin.Context) {
	job, err := h.manager.Status(c.Param("jobId"))
	if err != nil {
		if errors.Is(err, monitor.ErrJobNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, job)
}

// StockStatus 按股票代码查询运行中的盯盘任务
// GET /api/stocks/monitor/stock-status/:stockCode
func (h *MonitorHandler) StockStatus(c *gin.Context) {
	job, err := h.manager.StatusForStock(c.Param("stockCode"))
	if err != nil {
		if errors.Is(err, monitor.ErrJobNotFound) {
			// 没有运行中的任务不算错误
			response.Success(c, gin.H{"exists": false})
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, job)
}

// CleanupAll 停止全部盯盘任务（运维入口）
// POST /api/stocks/monitor/cleanup-all
func (h *MonitorHandler) CleanupAll(c *gin.Context) {
	stopped := h.manager.CleanupAll("手动清理全部任务")
	response.SuccessWithMessage(c, "已停止全部盯盘任务", gin.H{
		"success": true,
		"stopped": stopped,
	})
}

// RecordsToday 当天的盯盘记录
// GET /api/stocks/monitor/records/today/:stockCode
func (h *MonitorHandler) RecordsToday(c *gin.Context) {
	records, err := h.manager.RecordsToday(c.Param("stockCode"))
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, records)
}

// AllJobs 全部盯盘任务，管理界面用
// GET /api/stocks/monitor/all-jobs
func (h *MonitorHandler) AllJobs(c *gin.Context) {
	jobs, err := h.manager.ListAll(200)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, jobs)
}
