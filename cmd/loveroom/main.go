// loveroom 是 loveroom 服务端的终端客户端。
package main

import (
	"fmt"
	"os"

	"loveroom/internal/client"
	"loveroom/internal/config"
	clog "loveroom/internal/log"
	"loveroom/internal/poll"
	"loveroom/internal/session"
	"loveroom/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// 默认上传上限与服务端 MAX_UPLOAD_BYTES 的默认值一致。
const maxUploadBytes = 8 << 20

var (
	cfgPath    string
	serverURL  string
	nickname   string
	avatarPath string
	logFile    string
)

var rootCmd = &cobra.Command{
	Use:   "loveroom",
	Short: "A private two-person chat space in your terminal",
	Long: `Create a private space, share its id and password with your partner,
and chat together. Messages refresh every few seconds.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		closer, err := clog.InitFile(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer closer.Close()

		api, err := client.New(cfg.ServerURL)
		if err != nil {
			return err
		}
		log.Info().Str("server", cfg.ServerURL).Msg("client starting")

		m := tui.New(api, poll.New(api, cfg.PollInterval()), &session.Memory{}, tui.Options{
			Nickname:   cfg.Nickname,
			AvatarPath: cfg.AvatarPath,
			MaxUpload:  maxUploadBytes,
		})
		_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
		return err
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the effective settings to the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := config.SaveClient(cfgPath, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", cfgPath)
		return nil
	},
}

// loadConfig 读取配置文件，命令行显式给出的参数优先。
func loadConfig(cmd *cobra.Command) (config.ClientConfig, error) {
	cfg, err := config.LoadClient(cfgPath)
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = serverURL
	}
	if flags.Changed("nickname") {
		cfg.Nickname = nickname
	}
	if flags.Changed("avatar") {
		cfg.AvatarPath = avatarPath
	}
	if flags.Changed("log") {
		cfg.LogFile = logFile
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultClientConfigPath(), "path to the client config file")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "server base URL")
	rootCmd.PersistentFlags().StringVarP(&nickname, "nickname", "n", "", "default nickname")
	rootCmd.PersistentFlags().StringVar(&avatarPath, "avatar", "", "default avatar image path")
	rootCmd.PersistentFlags().StringVar(&logFile, "log", "", "log file path (empty discards logs)")
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
