package server

import (
	"net/http"
	"time"

	"loveroom/internal/ai"
	"loveroom/internal/config"
	"loveroom/internal/metrics"
	"loveroom/internal/mw"
	"loveroom/internal/poll"
	"loveroom/internal/service"
	"loveroom/internal/session"
	"loveroom/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 是路由依赖的服务，由 main 组装。
type Deps struct {
	Spaces   *service.SpaceService
	Sessions *session.Store
	Advisor  *ai.Advisor
	Poller   *poll.Poller
	Hub      *ws.Hub
	// Limiter 为空时不启用全局限速。
	Limiter *mw.RL
}

// AI 接口每个 IP 每分钟的调用上限。
const aiCallsPerMinute = 10

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware())
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(cfg, d.Spaces, d.Sessions, d.Advisor, d.Hub)

	api := r.Group("/api/v1")
	api.POST("/spaces", h.CreateSpace)
	api.POST("/spaces/join", h.JoinSpace)
	api.GET("/stickers", h.ListStickers)

	// 需要会话的接口。
	authed := api.Group("")
	authed.Use(session.Middleware(d.Sessions))
	authed.GET("/session", h.GetSession)
	authed.DELETE("/session", h.Logout)

	space := authed.Group("/spaces/:id")
	space.Use(session.RequireSpace())
	space.GET("", h.GetSpace)
	space.GET("/messages", h.ListMessages)
	space.POST("/messages", h.PostMessage)
	space.POST("/stickers", h.PostSticker)

	aiGroup := space.Group("/ai")
	aiGroup.Use(mw.AILimit(time.Minute, aiCallsPerMinute))
	aiGroup.POST("/vibe", h.Vibe)
	aiGroup.POST("/topic", h.Topic)
	aiGroup.POST("/note", h.Note)

	r.GET("/ws", ws.Serve(d.Hub, ws.Deps{
		Spaces:         d.Spaces,
		Poller:         d.Poller,
		Sessions:       d.Sessions,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}))
	return r
}
