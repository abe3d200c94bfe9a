package tui

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"loveroom/internal/client"
	"loveroom/internal/media"
	"loveroom/internal/models"
	"loveroom/internal/poll"
	"loveroom/internal/service"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
)

// API 是界面需要的服务端操作，*client.Client 实现了它。
type API interface {
	poll.Source
	CreateSpace(ctx context.Context, nickname, avatar, name, password string) (*client.Joined, error)
	JoinSpace(ctx context.Context, nickname, avatar, spaceID, password string) (*client.Joined, error)
	SendMessage(ctx context.Context, spaceID, content, imageURL string) ([]models.Message, error)
	SendSticker(ctx context.Context, spaceID, stickerURL string) ([]models.Message, error)
	Vibe(ctx context.Context, spaceID string) (string, error)
	Topic(ctx context.Context, spaceID string) (string, error)
	LoveNote(ctx context.Context, spaceID, receiver, tone string) (string, error)
	Token() string
	Logout(ctx context.Context, token string) error
}

const requestTimeout = 30 * time.Second

type (
	joinedMsg    struct{ joined *client.Joined }
	formErrMsg   struct{ text string }
	sentMsg      struct{ messages []models.Message }
	statusMsg    struct{ text string }
	topicMsg     struct{ text string }
	loggedOutMsg struct{}
)

// snapshotMsg 记录产生它的通道，退出空间后旧通道的快照会被丢弃。
type snapshotMsg struct {
	snap poll.Snapshot
	ch   <-chan poll.Snapshot
}

func joinCmd(api API, creating bool, nickname, avatarPath, target, password string, maxUpload int) tea.Cmd {
	return func() tea.Msg {
		avatar := ""
		if avatarPath != "" {
			uri, err := media.EncodeFile(avatarPath, maxUpload)
			if err != nil {
				return formErrMsg{text: "头像读取失败: " + err.Error()}
			}
			avatar = uri
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		var (
			j   *client.Joined
			err error
		)
		if creating {
			j, err = api.CreateSpace(ctx, nickname, avatar, target, password)
		} else {
			j, err = api.JoinSpace(ctx, nickname, avatar, target, password)
		}
		switch {
		case errors.Is(err, client.ErrInvalidCredentials):
			return formErrMsg{text: msgBadCredentials}
		case err != nil:
			log.Error().Err(err).Bool("create", creating).Msg("join space")
			return formErrMsg{text: err.Error()}
		}
		return joinedMsg{joined: j}
	}
}

// waitSnapshot 等待下一次轮询结果，通道关闭后不再产生消息。
func waitSnapshot(ch <-chan poll.Snapshot) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{snap: s, ch: ch}
	}
}

func sendCmd(fn func(ctx context.Context) ([]models.Message, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msgs, err := fn(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("send message")
			return statusMsg{text: "发送失败: " + err.Error()}
		}
		return sentMsg{messages: msgs}
	}
}

func aiCmd(fn func(ctx context.Context) (string, error), wrap func(string) tea.Msg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		text, err := fn(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("ai request")
			return statusMsg{text: "AI 请求失败: " + err.Error()}
		}
		return wrap(text)
	}
}

// logoutCmd 只结束 token 对应的会话，命令执行前重新加入得到的新会话不受影响。
func logoutCmd(api API, token string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := api.Logout(ctx, token); err != nil {
			log.Warn().Err(err).Msg("logout")
		}
		return loggedOutMsg{}
	}
}

// runCommand 解析以 / 开头的输入。返回的 status 非空时直接显示给用户。
func (m *Model) runCommand(line string) (tea.Cmd, string) {
	fields := strings.Fields(line)
	id := m.spaceID
	switch fields[0] {
	case "/sticker":
		if len(fields) != 2 {
			return nil, "用法: /sticker <1-10>"
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, "用法: /sticker <1-10>"
		}
		url, err := service.StickerAt(n - 1)
		if err != nil {
			return nil, "没有这个贴纸"
		}
		return sendCmd(func(ctx context.Context) ([]models.Message, error) {
			return m.api.SendSticker(ctx, id, url)
		}), ""
	case "/image":
		if len(fields) < 2 {
			return nil, "用法: /image <路径> [说明]"
		}
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "/image"))
		path, caption, _ := strings.Cut(rest, " ")
		caption = strings.TrimSpace(caption)
		uri, err := media.EncodeFile(path, m.maxUpload)
		if err != nil {
			return nil, "图片读取失败: " + err.Error()
		}
		return sendCmd(func(ctx context.Context) ([]models.Message, error) {
			return m.api.SendMessage(ctx, id, caption, uri)
		}), ""
	case "/vibe":
		return aiCmd(func(ctx context.Context) (string, error) { return m.api.Vibe(ctx, id) },
			func(s string) tea.Msg { return statusMsg{text: s} }), msgThinking
	case "/topic":
		return aiCmd(func(ctx context.Context) (string, error) { return m.api.Topic(ctx, id) },
			func(s string) tea.Msg { return topicMsg{text: s} }), msgThinking
	case "/note":
		if len(fields) < 3 {
			return nil, "用法: /note <对方昵称> <语气>"
		}
		receiver, tone := fields[1], strings.Join(fields[2:], " ")
		return aiCmd(func(ctx context.Context) (string, error) { return m.api.LoveNote(ctx, id, receiver, tone) },
			func(s string) tea.Msg { return statusMsg{text: s} }), msgThinking
	case "/logout":
		return m.leave(), ""
	}
	return nil, "未知命令: " + fields[0]
}
