package middleware

import (
	"github.com/gin-gonic/gin"
)

const defaultMachineID = "default"

// MachineID 提取调用方的设备标识。
// 优先取 X-Machine-Id 请求头，其次 machineId 查询参数，
// 都没有则归入 default 设备。
func MachineID(c *gin.Context) string {
	if v := c.GetHeader("X-Machine-Id"); v != "" {
		return v
	}
	if v := c.Query("machineId"); v != "" {
		return v
	}
	return defaultMachineID
}
