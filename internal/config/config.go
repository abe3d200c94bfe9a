package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultSessionSecret 只允许在 dev 环境使用。
const DefaultSessionSecret = "dev-secret-change-me"

type Config struct {
	Port             string
	DatabaseDSN      string
	SessionSecret    string
	Env              string
	SessionTTLHours  int
	PollIntervalMS   int
	GeminiAPIKey     string
	GeminiModel      string
	AITimeoutSeconds int
	MaxUploadBytes   int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 读取正整数配置，非法值回退到默认值。
func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// Load 从环境变量读取配置；若工作目录存在 .env 文件则先加载它，已存在的环境变量不会被覆盖。
func Load() Config {
	_ = godotenv.Load()

	apiKey := getenv("GEMINI_API_KEY", os.Getenv("API_KEY"))
	return Config{
		Port:             getenv("APP_PORT", "8080"),
		DatabaseDSN:      getenv("DATABASE_DSN", "sqlite://loveroom.db"),
		SessionSecret:    getenv("SESSION_SECRET", DefaultSessionSecret),
		Env:              getenv("APP_ENV", "dev"),
		SessionTTLHours:  getenvInt("SESSION_TTL_HOURS", 24*7),
		PollIntervalMS:   getenvInt("POLL_INTERVAL_MS", 2000),
		GeminiAPIKey:     apiKey,
		GeminiModel:      getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		AITimeoutSeconds: getenvInt("AI_TIMEOUT_SECONDS", 15),
		MaxUploadBytes:   getenvInt("MAX_UPLOAD_BYTES", 8<<20),
	}
}

// Validate 检查启动所需的关键配置，非 dev 环境禁止使用默认密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: APP_PORT is empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: DATABASE_DSN is empty")
	}
	if cfg.SessionSecret == "" {
		return errors.New("config: SESSION_SECRET is empty")
	}
	if cfg.Env != "dev" && cfg.SessionSecret == DefaultSessionSecret {
		return errors.New("config: default SESSION_SECRET is not allowed outside dev")
	}
	return nil
}
