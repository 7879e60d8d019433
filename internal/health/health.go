package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"

	"tempbox/backend/internal/storage"
)

// Checker 进程健康检查器。
//
// live 只看进程自身（goroutine 数量上限），ready 额外要求存储与缓存
// 可达：依赖不可达时摘掉流量，但不重启进程。
type Checker struct {
	handler healthcheck.Handler
}

// NewChecker 创建健康检查器
func NewChecker(store storage.Store, cache storage.Cache) *Checker {
	handler := healthcheck.NewHandler()

	handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(512))

	handler.AddReadinessCheck("store", func() error {
		return store.Health()
	})
	handler.AddReadinessCheck("cache", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return cache.Ping(ctx)
	})

	return &Checker{handler: handler}
}

// LiveEndpoint 存活检查端点
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查端点
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}
