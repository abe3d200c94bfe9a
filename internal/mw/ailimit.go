package mw

import (
	"net/http"
	"time"

	"loveroom/internal/session"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// keyFunc 优先按会话计数，没有会话时退回客户端 IP。
func keyFunc(c *gin.Context) string {
	if tok := session.TokenFromContext(c); tok != "" {
		return "session:" + tok
	}
	return "ip:" + c.ClientIP()
}

func rateLimitErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "too many requests",
		"retry_after": time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

// AILimit 限制每个会话（或 IP）在 window 内最多调用 limit 次 AI 接口。
func AILimit(window time.Duration, limit uint) gin.HandlerFunc {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{Rate: window, Limit: limit})
	return ratelimit.RateLimiter(store, &ratelimit.Options{
		ErrorHandler: rateLimitErrorHandler,
		KeyFunc:      keyFunc,
	})
}
