package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JackeyWin/stock_go_server/config"
	"github.com/JackeyWin/stock_go_server/internal/pkg/response"
	"github.com/JackeyWin/stock_go_server/internal/task"
)

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func setupAnalysisHandler(t *testing.T, runner task.Runner) (*AnalysisHandler, *task.Registry) {
	t.Helper()

	cfg := &config.AnalysisConfig{
		MaxWorkers:                2,
		QueueSize:                 10,
		CompletedRetentionMinutes: 30,
		FailedRetentionMinutes:    10,
	}
	registry := task.NewRegistry(cfg, runner, nil)
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	return NewAnalysisHandler(registry), registry
}

func TestAnalysisHandler_CreateAsync(t *testing.T) {
	handler, registry := setupAnalysisHandler(t, func(ctx context.Context, stockCode string) (string, error) {
		return "建议持有", nil
	})

	router := gin.New()
	router.POST("/analysis/async", handler.CreateAsync)

	w := performRequest(router, "POST", "/analysis/async", gin.H{"stockCode": "600519"})
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	taskID := data["taskId"].(string)
	assert.NotEmpty(t, taskID)
	assert.Equal(t, task.StatusPending, data["status"])

	// 任务真的进了注册表
	require.Eventually(t, func() bool {
		snap, err := registry.GetStatus(taskID)
		require.NoError(t, err)
		return snap.Status == task.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAnalysisHandler_CreateAsync_MissingStockCode(t *testing.T) {
	handler, _ := setupAnalysisHandler(t, func(ctx context.Context, stockCode string) (string, error) {
		return "ok", nil
	})

	router := gin.New()
	router.POST("/analysis/async", handler.CreateAsync)

	w := performRequest(router, "POST", "/analysis/async", gin.H{})
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAnalysisHandler_GetAsync(t *testing.T) {
	handler, registry := setupAnalysisHandler(t, func(ctx context.Context, stockCode string) (string, error) {
		return "建议持有", nil
	})

	taskID, err := registry.CreateTask("600519", "device-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := registry.GetStatus(taskID)
		require.NoError(t, err)
		return snap.Status == task.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	router := gin.New()
	router.GET("/analysis/async/:taskId", handler.GetAsync)

	w := performRequest(router, "GET", "/analysis/async/"+taskID, nil)
	resp := parseResponse(t, w)

	require.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, task.StatusCompleted, data["status"])
	assert.EqualValues(t, 100, data["progress"])
	assert.Equal(t, "建议持有", data["result"])
}

func TestAnalysisHandler_GetAsync_NotFound(t *testing.T) {
	handler, _ := setupAnalysisHandler(t, func(ctx context.Context, stockCode string) (string, error) {
		return "ok", nil
	})

	router := gin.New()
	router.GET("/analysis/async/:taskId", handler.GetAsync)

	w := performRequest(router, "GET", "/analysis/async/no-such-task", nil)
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}
