package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tempbox/backend/internal/config"
	"tempbox/backend/internal/health"
	"tempbox/backend/internal/middleware"
	"tempbox/backend/internal/monitoring"
	"tempbox/backend/internal/provider"
	"tempbox/backend/internal/storage"
	"tempbox/backend/internal/stream"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config  *config.Config
	Manager *provider.Manager
	Poller  *stream.Poller
	Cache   storage.Cache
	Metrics *monitoring.Metrics
	Health  *health.Checker
	Logger  *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(1 * 1024 * 1024))

	monitoringMW := middleware.NewMonitoringMiddleware(deps.Metrics)
	router.Use(monitoringMW.HTTPMetrics())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Session-ID"},
		ExposeHeaders: []string{
			"Content-Length",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时需清空凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	// 处理器
	mailboxHandler := NewMailboxHandler(deps.Manager, deps.Logger)
	streamHandler := NewStreamHandler(deps.Poller, deps.Logger)
	wsHandler := NewWSHandler(deps.Poller, deps.Config.CORS.AllowedOrigins, deps.Logger)
	publicHandler := NewPublicHandler(deps.Manager)

	// 中间件
	identityAuth := middleware.NewIdentityAuth(deps.Config.Auth.JWTSecret, deps.Logger)
	rateLimiter := middleware.NewRateLimiter(deps.Cache, deps.Logger)

	rl := deps.Config.RateLimit
	generateLimit := rateLimiter.Limit("generate", rl.GenerateLimit, rl.Window)
	messagesLimit := rateLimiter.Limit("messages", rl.MessagesLimit, rl.Window)

	// 运维端点
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))

	// V1 API
	v1 := router.Group("/v1")
	v1.Use(identityAuth.OptionalAuth())
	{
		publicRoutes := v1.Group("/public")
		{
			publicRoutes.GET("/domains", publicHandler.GetAvailableDomains)
		}

		mailboxes := v1.Group("/mailboxes")
		{
			mailboxes.POST("", generateLimit, mailboxHandler.Generate)
			mailboxes.GET("/messages", messagesLimit, mailboxHandler.GetMessages)
			mailboxes.GET("/stream", streamHandler.Stream)
		}

		v1.GET("/ws", wsHandler.Serve)
	}

	return router
}
