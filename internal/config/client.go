package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ClientConfig 是终端客户端的配置文件。
type ClientConfig struct {
	ServerURL      string `toml:"server_url"`
	Nickname       string `toml:"nickname"`
	AvatarPath     string `toml:"avatar_path"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	LogFile        string `toml:"log_file"`
}

// DefaultClientConfig 返回没有配置文件时使用的默认值。
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:      "http://localhost:8080",
		PollIntervalMS: 2000,
		LogFile:        filepath.Join(os.TempDir(), "loveroom-client.log"),
	}
}

// DefaultClientConfigPath 返回用户配置目录下的 loveroom/client.toml。
func DefaultClientConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "client.toml"
	}
	return filepath.Join(dir, "loveroom", "client.toml")
}

// LoadClient 在默认值之上读取 path，文件不存在不算错误。
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}
	if cfg.PollIntervalMS <= 0 {
		cfg.PollIntervalMS = DefaultClientConfig().PollIntervalMS
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultClientConfig().ServerURL
	}
	return cfg, nil
}

func (c ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// SaveClient 以 TOML 写出 cfg，必要时创建父目录。
func SaveClient(path string, cfg ClientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
