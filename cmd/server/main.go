package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"loveroom/internal/ai"
	"loveroom/internal/config"
	"loveroom/internal/db"
	"loveroom/internal/kv"
	clog "loveroom/internal/log"
	"loveroom/internal/mw"
	"loveroom/internal/poll"
	"loveroom/internal/server"
	"loveroom/internal/service"
	"loveroom/internal/session"
	"loveroom/internal/ws"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

func main() {
	// main 函数负责加载配置、初始化日志、连接数据库并启动 Gin 服务。
	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	store := kv.NewGorm(gdb)
	spaces := service.NewSpaceService(store)

	var gen ai.Generator
	if cfg.GeminiAPIKey != "" {
		gen = ai.NewGeminiClient(cfg.GeminiAPIKey)
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, AI features disabled")
	}

	// 控制单个 IP+路由的速率。
	limiter := mw.NewRateLimiter(rate.Every(time.Second/20), 40, 10*time.Minute)
	defer limiter.Stop()

	sessions := session.NewStore(store, cfg.SessionSecret, time.Duration(cfg.SessionTTLHours)*time.Hour)
	sessions.StartSweeper(10 * time.Minute)
	defer sessions.Stop()

	r := server.SetupRouter(cfg, server.Deps{
		Spaces:   spaces,
		Sessions: sessions,
		Advisor:  ai.NewAdvisor(gen, cfg.GeminiModel, time.Duration(cfg.AITimeoutSeconds)*time.Second),
		Poller:   poll.New(spaces, time.Duration(cfg.PollIntervalMS)*time.Millisecond),
		Hub:      ws.NewHub(),
		Limiter:  limiter,
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
}
