package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tempbox/backend/internal/cache"
	"tempbox/backend/internal/config"
	"tempbox/backend/internal/health"
	"tempbox/backend/internal/logger"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/provider"
	"tempbox/backend/internal/storage"
	"tempbox/backend/internal/storage/memory"
	redisstore "tempbox/backend/internal/storage/redis"
	sqlstore "tempbox/backend/internal/storage/sql"
	"tempbox/backend/internal/stream"
	httptransport "tempbox/backend/internal/transport/http"
)

// main 启动邮箱聚合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式（基于开发环境标志）
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting tempbox server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化存储层
	var store storage.Store
	if cfg.Database.Type != "" {
		store, err = sqlstore.NewStore(
			cfg.Database.Type,
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Database.ConnMaxLifetime,
		)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize database storage: %v", err))
		}
		log.Info("using database storage", zap.String("type", cfg.Database.Type))
	} else {
		store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}
	defer store.Close()

	// 初始化缓存层：配置了 Redis 用 Redis，否则退回进程内缓存
	var cacheLayer storage.Cache
	if cfg.Redis.Address != "" {
		redisClient, err := redisstore.New(&cfg.Redis, log)
		if err != nil {
			panic(fmt.Sprintf("failed to connect redis: %v", err))
		}
		cacheLayer = redisstore.NewCache(redisClient)
		log.Info("using redis cache", zap.String("address", cfg.Redis.Address))
	} else {
		cacheLayer = cache.NewLocalCache()
		log.Info("using local in-process cache")
	}
	defer cacheLayer.Close()

	// 初始化监控
	metrics := monitoring.NewMetrics()

	// 服务商适配器，固定优先级顺序
	providers := []provider.Provider{
		provider.NewOneSecMail(&cfg.Provider),
		provider.NewMailTm(&cfg.Provider),
		provider.NewGuerrillaMail(&cfg.Provider),
		provider.NewTempMailLol(&cfg.Provider),
	}

	tracker := provider.NewHealthTracker(cacheLayer, store, metrics, cfg.Cache.HealthTTL, log)

	manager := provider.NewManager(provider.ManagerOptions{
		Providers:        providers,
		Tracker:          tracker,
		Store:            store,
		Cache:            cacheLayer,
		Metrics:          metrics,
		Logger:           log,
		MailboxCacheTTL:  cfg.Cache.MailboxTTL,
		MessagesCacheTTL: cfg.Cache.MessagesTTL,
	})

	poller := stream.NewPoller(manager, cfg.Stream.PollInterval, metrics, log)
	healthChecker := health.NewChecker(store, cacheLayer)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:  cfg,
		Manager: manager,
		Poller:  poller,
		Cache:   cacheLayer,
		Metrics: metrics,
		Health:  healthChecker,
		Logger:  log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 过期邮箱清理循环
	group.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				deleted, err := store.DeleteExpiredMailboxes()
				if err != nil {
					log.Warn("expired mailbox sweep failed", zap.Error(err))
					continue
				}
				if deleted > 0 {
					log.Info("expired mailboxes deleted", zap.Int("count", deleted))
				}
			}
		}
	})

	// 优雅停机
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", zap.Error(err))
	}
	log.Info("server stopped")
}
