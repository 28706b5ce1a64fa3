package smtp

import "golang.org/x/time/rate"

// SessionLimiter 限制新建 SMTP 会话的速率，缓解连接洪泛。
type SessionLimiter struct {
	limiter *rate.Limiter
}

// NewSessionLimiter 创建会话限速器，perSecond 为每秒允许的新会话数。
func NewSessionLimiter(perSecond float64, burst int) *SessionLimiter {
	return &SessionLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Allow 判断是否允许建立新会话。
func (l *SessionLimiter) Allow() bool {
	return l.limiter.Allow()
}
