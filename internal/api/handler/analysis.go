package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/JackeyWin/stock_go_server/internal/api/middleware"
	"github.com/JackeyWin/stock_go_server/internal/pkg/response"
	"github.com/JackeyWin/stock_go_server/internal/task"
)

type AnalysisHandler struct {
	registry *task.Registry
}

func NewAnalysisHandler(registry *task.Registry) *AnalysisHandler {
	return &AnalysisHandler{registry: registry}
}

type createAnalysisRequest struct {
	StockCode string `json:"stockCode" binding:"required"`
}

// CreateAsync 提交异步分析任务
// POST /api/stocks/analysis/async
func (h *AnalysisHandler) CreateAsync(c *gin.Context) {
	var req createAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "股票代码不能为空")
		return
	}

	taskID, err := h.registry.CreateTask(req.StockCode, middleware.MachineID(c))
	if err != nil {
		if errors.Is(err, task.ErrShuttingDown) {
			response.ServerError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, gin.H{
		"taskId": taskID,
		"status": task.StatusPending,
	})
}

// GetAsync 查询异步任务状态
// GET /api/stocks/analysis/async/:taskId
func (h *AnalysisHandler) GetAsync(c *gin.Context) {
	snap, err := h.registry.GetStatus(c.Param("taskId"))
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, snap)
}
