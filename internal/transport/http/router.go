package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"flashmail/backend/internal/health"
	"flashmail/backend/internal/middleware"
	"flashmail/backend/internal/monitoring"
	"flashmail/backend/internal/service"
	"flashmail/backend/internal/storage"
	"flashmail/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项。
type RouterDependencies struct {
	AddressService *service.AddressService
	MessageService *service.MessageService
	Store          storage.Store
	RateLimiter    storage.RateLimiter
	WebSocketHub   *websocket.Hub
	Metrics        *monitoring.Metrics
	Logger         *zap.Logger

	// AllowedOrigins CORS 白名单，包含 * 时允许所有来源
	AllowedOrigins []string
	// CreateMaxPerIP 每 IP 每分钟允许创建的地址数，0 表示不限
	CreateMaxPerIP int64
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))
	if deps.Metrics != nil {
		router.Use(middleware.HTTPMetrics(deps.Metrics))
	}

	corsConfig := gincors.Config{
		AllowOrigins:     deps.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	handler := NewHandler(deps.AddressService, deps.MessageService, deps.Logger)

	router.GET("/", handler.Root)

	createHandlers := []gin.HandlerFunc{}
	if deps.RateLimiter != nil && deps.CreateMaxPerIP > 0 {
		createHandlers = append(createHandlers,
			middleware.RateLimitByIP(deps.RateLimiter, deps.Logger, deps.CreateMaxPerIP, time.Minute))
	}
	createHandlers = append(createHandlers, handler.CreateEmail)
	router.POST("/email/create", createHandlers...)

	router.GET("/email/:address/messages", handler.GetMessages)
	router.GET("/email/:address/message/:id", handler.GetMessage)
	router.DELETE("/email/:address", handler.DeleteEmail)
	router.POST("/premium/upgrade", handler.UpgradePremium)

	if deps.WebSocketHub != nil {
		router.GET("/email/:address/ws", deps.WebSocketHub.HandleConnection)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Store != nil {
		healthHandler := health.NewHandler(deps.Store)
		router.GET("/live", gin.WrapF(healthHandler.LiveEndpoint))
		router.GET("/ready", gin.WrapF(healthHandler.ReadyEndpoint))
	}

	return router
}
