// Package tui 是终端界面：创建/加入表单，以及随每份轮询快照重绘的空间视图。
package tui

import (
	"context"
	"strings"

	"loveroom/internal/models"
	"loveroom/internal/poll"
	"loveroom/internal/session"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

type state int

const (
	stateLanding state = iota
	stateSpace
)

const (
	msgMissingFields  = "请填写所有信息"
	msgBadCredentials = "空间ID或密码错误"
	msgThinking       = "思考中…"
)

// 表单输入框下标。
const (
	fieldNickname = iota
	fieldTarget
	fieldPassword
	fieldAvatar
	fieldCount
)

// Model 是 bubbletea 的根模型。
type Model struct {
	api       API
	poller    *poll.Poller
	holder    session.Holder
	maxUpload int

	state  state
	width  int
	height int

	// LANDING
	creating bool
	inputs   []textinput.Model
	focus    int
	formErr  string
	busy     bool

	// SPACE
	user        models.User
	spaceID     string
	spaceName   string
	messages    []models.Message
	feed        viewport.Model
	composer    textinput.Model
	status      string
	snapshots   chan poll.Snapshot
	unsubscribe func()
}

// Options 配置界面的默认值。
type Options struct {
	Nickname   string
	AvatarPath string
	MaxUpload  int
}

func New(api API, poller *poll.Poller, holder session.Holder, opts Options) *Model {
	m := &Model{
		api:       api,
		poller:    poller,
		holder:    holder,
		maxUpload: opts.MaxUpload,
		creating:  true,
		feed:      viewport.New(80, 20),
		width:     80,
		height:    24,
	}
	m.inputs = make([]textinput.Model, fieldCount)
	for i := range m.inputs {
		ti := textinput.New()
		ti.CharLimit = 256
		ti.Prompt = "> "
		m.inputs[i] = ti
	}
	m.inputs[fieldNickname].Placeholder = "你的昵称"
	m.inputs[fieldNickname].SetValue(opts.Nickname)
	m.inputs[fieldPassword].Placeholder = "空间密码"
	m.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	m.inputs[fieldAvatar].Placeholder = "头像图片路径 (可选)"
	m.inputs[fieldAvatar].CharLimit = 1024
	m.inputs[fieldAvatar].SetValue(opts.AvatarPath)
	m.setTargetPlaceholder()
	m.inputs[fieldNickname].Focus()

	m.composer = textinput.New()
	m.composer.Placeholder = "说点什么… (/sticker /image /vibe /topic /note /logout)"
	m.composer.CharLimit = 2000
	m.composer.Prompt = "❤ "
	return m
}

func (m *Model) setTargetPlaceholder() {
	if m.creating {
		m.inputs[fieldTarget].Placeholder = "空间名称"
	} else {
		m.inputs[fieldTarget].Placeholder = "空间ID"
	}
}

// Init 若会话仍在则直接回到空间。
func (m *Model) Init() tea.Cmd {
	if s, ok := m.holder.Load(); ok {
		return m.enterSpace(s.User, s.SpaceID, "")
	}
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.stopPolling()
			return m, tea.Quit
		}
	case formErrMsg:
		m.busy = false
		m.formErr = msg.text
		return m, nil
	case joinedMsg:
		m.busy = false
		j := msg.joined
		m.holder.Save(session.Session{User: j.User, SpaceID: j.Space.ID})
		return m, m.enterSpace(j.User, j.Space.ID, j.Space.Name)
	case snapshotMsg:
		if msg.ch != m.snapshots {
			return m, nil
		}
		m.applySnapshot(msg.snap)
		return m, waitSnapshot(msg.ch)
	case sentMsg:
		if m.state == stateSpace {
			m.setMessages(msg.messages)
			m.status = ""
		}
		return m, nil
	case statusMsg:
		m.status = msg.text
		return m, nil
	case topicMsg:
		m.status = ""
		m.composer.SetValue(msg.text)
		m.composer.CursorEnd()
		return m, nil
	case loggedOutMsg:
		return m, nil
	}

	if m.state == stateLanding {
		return m.updateLanding(msg)
	}
	return m.updateSpace(msg)
}

func (m *Model) updateLanding(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+t":
			m.creating = !m.creating
			m.inputs[fieldTarget].SetValue("")
			m.setTargetPlaceholder()
			m.formErr = ""
			return m, nil
		case "tab", "down":
			m.moveFocus(1)
			return m, nil
		case "shift+tab", "up":
			m.moveFocus(-1)
			return m, nil
		case "enter":
			return m, m.submit()
		case "esc":
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) moveFocus(delta int) {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	m.inputs[m.focus].Focus()
}

// submit 只校验必填项是否存在，其余交给服务端。
func (m *Model) submit() tea.Cmd {
	if m.busy {
		return nil
	}
	nickname := strings.TrimSpace(m.inputs[fieldNickname].Value())
	target := strings.TrimSpace(m.inputs[fieldTarget].Value())
	password := m.inputs[fieldPassword].Value()
	if nickname == "" || target == "" || password == "" {
		m.formErr = msgMissingFields
		return nil
	}
	m.formErr = ""
	m.busy = true
	avatar := strings.TrimSpace(m.inputs[fieldAvatar].Value())
	return joinCmd(m.api, m.creating, nickname, avatar, target, password, m.maxUpload)
}

func (m *Model) updateSpace(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			line := strings.TrimSpace(m.composer.Value())
			if line == "" {
				return m, nil
			}
			m.composer.SetValue("")
			if strings.HasPrefix(line, "/") {
				cmd, status := m.runCommand(line)
				m.status = status
				return m, cmd
			}
			id := m.spaceID
			return m, sendCmd(func(ctx context.Context) ([]models.Message, error) {
				return m.api.SendMessage(ctx, id, line, "")
			})
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.feed, cmd = m.feed.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

// enterSpace 切换到空间界面并订阅轮询，第一份快照会立即到达。
func (m *Model) enterSpace(u models.User, spaceID, name string) tea.Cmd {
	m.stopPolling()
	m.state = stateSpace
	m.user = u
	m.spaceID = spaceID
	m.spaceName = name
	m.messages = nil
	m.status = ""
	m.composer.SetValue("")
	m.composer.Focus()
	m.resize()
	m.renderFeed()

	ch := make(chan poll.Snapshot, 1)
	m.snapshots = ch
	m.unsubscribe = m.poller.Subscribe(context.Background(), spaceID, func(s poll.Snapshot) {
		for {
			select {
			case ch <- s:
				return
			default:
				// 只保留最新的快照
				select {
				case <-ch:
				default:
				}
			}
		}
	})
	return waitSnapshot(ch)
}

func (m *Model) stopPolling() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
		close(m.snapshots)
		m.snapshots = nil
	}
}

// leave 回到登录页：停止轮询，清除本地与服务端会话。
func (m *Model) leave() tea.Cmd {
	token := m.api.Token()
	m.stopPolling()
	m.holder.Clear()
	m.state = stateLanding
	m.user = models.User{}
	m.spaceID, m.spaceName = "", ""
	m.messages = nil
	m.status = ""
	m.composer.Blur()
	m.inputs[fieldPassword].SetValue("")
	m.inputs[m.focus].Blur()
	m.focus = fieldNickname
	m.inputs[m.focus].Focus()
	return logoutCmd(m.api, token)
}

func (m *Model) applySnapshot(s poll.Snapshot) {
	if s.SpaceName != "" {
		m.spaceName = s.SpaceName
	}
	m.setMessages(s.Messages)
}

func (m *Model) setMessages(msgs []models.Message) {
	m.messages = msgs
	m.renderFeed()
}

func (m *Model) resize() {
	m.feed.Width = m.width
	h := m.height - 6
	if h < 3 {
		h = 3
	}
	m.feed.Height = h
	// composer 不设 Width：占位符含全角字符，按显示宽度截断会越界
	m.renderFeed()
}

func (m *Model) renderFeed() {
	m.feed.SetContent(renderMessages(m.messages, m.user.ID, m.width))
	m.feed.GotoBottom()
}
