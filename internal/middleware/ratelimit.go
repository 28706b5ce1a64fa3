package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flashmail/backend/internal/storage"
)

// RateLimitByIP 按客户端 IP 限制请求频率。
//
// 计数后端（Redis 或内存）不可用时放行请求，限流是保护性措施，
// 不应变成单点故障。
func RateLimitByIP(limiter storage.RateLimiter, logger *zap.Logger, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:%s:%s", c.FullPath(), c.ClientIP())

		count, err := limiter.IncrementRateLimit(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("限流计数失败，放行请求", zap.Error(err))
			c.Next()
			return
		}

		if count > limit {
			c.Header("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": "too many requests, slow down",
			})
			return
		}

		c.Next()
	}
}
