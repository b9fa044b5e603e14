package shutdown

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/JackeyWin/stock_go_server/internal/task"
)

// CronStopper 需要先停掉的定时调度
type CronStopper interface {
	Stop()
}

// MonitorCleaner 盯盘任务管理器
type MonitorCleaner interface {
	CleanupAll(reason string) int
}

// TaskDrainer 异步任务注册表
type TaskDrainer interface {
	Shutdown(ctx context.Context) error
	ActiveCount() int
}

// Coordinator 进程退出时的收尾编排：先停调度，再停盯盘任务，
// 最后排空异步任务工作池。重复调用只执行一次。
type Coordinator struct {
	cron     CronStopper
	monitors MonitorCleaner
	tasks    TaskDrainer

	once sync.Once
	err  error
}

func NewCoordinator(cron CronStopper, monitors MonitorCleaner, tasks TaskDrainer) *Coordinator {
	return &Coordinator{cron: cron, monitors: monitors, tasks: tasks}
}

// Shutdown 执行收尾。ctx 决定等待在途任务的上限，
// 超时返回 task.ErrShutdownTimeout，但盯盘任务一定已停。
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.once.Do(func() {
		log.Println("Shutdown started")

		if c.cron != nil {
			c.cron.Stop()
		}

		jobsStopped := 0
		if c.monitors != nil {
			jobsStopped = c.monitors.CleanupAll("应用关闭，自动停止")
		}

		abandoned := 0
		if c.tasks != nil {
			c.err = c.tasks.Shutdown(ctx)
			if errors.Is(c.err, task.ErrShutdownTimeout) {
				abandoned = c.tasks.ActiveCount()
			}
		}

		if abandoned > 0 {
			log.Printf("Shutdown finished: %d monitoring jobs stopped, %d tasks abandoned", jobsStopped, abandoned)
		} else {
			log.Printf("Shutdown finished: %d monitoring jobs stopped, all tasks drained", jobsStopped)
		}
	})
	return c.err
}
