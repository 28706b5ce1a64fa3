package health

import (
	"context"
	"time"

	"github.com/heptiolabs/healthcheck"

	"flashmail/backend/internal/storage"
)

// NewHandler 创建健康检查处理器。
//
// 存活探针只检查 goroutine 数量；就绪探针检查存储连通性，
// 存储不可用时就绪探针失败，负载均衡应停止转发流量。
func NewHandler(store storage.Store) healthcheck.Handler {
	handler := healthcheck.NewHandler()

	handler.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(500))

	handler.AddReadinessCheck("storage", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return store.Health(ctx)
	})

	return handler
}
