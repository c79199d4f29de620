package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flashmail/backend/internal/config"
	"flashmail/backend/internal/middleware"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/service"
	"flashmail/backend/internal/storage"
	"flashmail/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	MailboxService *service.MailboxService
	EmailService   *service.EmailService
	WebSocketHub   *websocket.Hub
	Store          storage.Store
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.MailboxService, deps.EmailService, deps.Metrics)

	// 健康检查：同时探测 Redis 连通性
	router.GET("/health", func(c *gin.Context) {
		if err := deps.Store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"redis":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	if deps.WebSocketHub != nil {
		router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	api := router.Group("/api")
	api.Use(middleware.RateLimit(middleware.NewRateLimiter(
		deps.Config.RateLimit.RPS,
		deps.Config.RateLimit.Burst,
	)))
	{
		api.GET("/domains", handler.GetDomains)

		api.POST("/mailbox/check-availability", handler.CheckAvailability)
		api.POST("/mailbox/create", handler.CreateMailbox)
		api.GET("/mailbox/:id", handler.GetMailbox)
		api.GET("/mailbox/:id/emails", handler.ListEmails)
		api.DELETE("/mailbox/:id", handler.DeleteMailbox)

		api.GET("/email/:mailboxId/:emailId", handler.GetEmail)
		api.DELETE("/email/:mailboxId/:emailId", handler.DeleteEmail)
	}

	return router
}
