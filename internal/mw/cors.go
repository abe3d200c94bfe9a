package mw

import (
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS 返回跨域中间件：dev 环境允许所有来源，其余环境只允许与请求 Host 同源。
func CORS(env string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"X-Session-Token"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	if env == "dev" {
		cfg.AllowOriginFunc = func(string) bool { return true }
		return cors.New(cfg)
	}
	cfg.AllowOriginWithContextFunc = func(c *gin.Context, origin string) bool {
		u, err := url.Parse(origin)
		return err == nil && u.Host == c.Request.Host
	}
	return cors.New(cfg)
}
