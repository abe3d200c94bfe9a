package tui

import (
	"fmt"
	"strings"
	"time"

	"loveroom/internal/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("205")).Padding(0, 1)
	selfStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	otherStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	systemStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	activeTab     = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("205"))
	inactiveTab   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	attachmentTag = lipgloss.NewStyle().Foreground(lipgloss.Color("36"))
)

func (m *Model) View() string {
	if m.state == stateSpace {
		return m.viewSpace()
	}
	return m.viewLanding()
}

func (m *Model) viewLanding() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("LOVE ROOM") + "\n")
	b.WriteString(subtleStyle.Render("只属于你们的私密空间") + "\n\n")

	create, join := inactiveTab, activeTab
	if m.creating {
		create, join = activeTab, inactiveTab
	}
	b.WriteString(create.Render("创建空间") + "  " + join.Render("加入空间") + "\n\n")

	for i := range m.inputs {
		b.WriteString(m.inputs[i].View() + "\n")
	}
	b.WriteString("\n")
	if m.formErr != "" {
		b.WriteString(errorStyle.Render(m.formErr) + "\n")
	} else if m.busy {
		b.WriteString(subtleStyle.Render("连接中…") + "\n")
	} else {
		b.WriteString("\n")
	}
	b.WriteString(subtleStyle.Render("tab 切换输入 · ctrl+t 创建/加入 · enter 确认 · esc 退出"))
	return b.String()
}

func (m *Model) viewSpace() string {
	name := m.spaceName
	if name == "" {
		name = "…"
	}
	header := headerStyle.Render("❤ "+name) + " " + subtleStyle.Render("空间ID: "+m.spaceID+" · "+m.user.Nickname)
	status := ""
	if m.status != "" {
		status = statusStyle.Render(m.status)
	}
	return strings.Join([]string{header, m.feed.View(), status, m.composer.View()}, "\n")
}

// renderMessages 把整份消息列表渲染为文本，每次快照都会完整重绘。
func renderMessages(msgs []models.Message, selfID string, width int) string {
	if len(msgs) == 0 {
		return subtleStyle.Render("加载中…")
	}
	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderMessage(msg, selfID, width))
	}
	return b.String()
}

func renderMessage(msg models.Message, selfID string, width int) string {
	if msg.Type == models.MessageSystem {
		return lipgloss.PlaceHorizontal(width, lipgloss.Center, systemStyle.Render(msg.Content))
	}
	at := time.UnixMilli(msg.Timestamp).Format("15:04")
	name := otherStyle.Render(msg.SenderName)
	if msg.SenderID == selfID {
		name = selfStyle.Render("我")
	}
	body := msg.Content
	switch msg.Type {
	case models.MessageSticker:
		body = attachmentTag.Render("[贴纸]")
	case models.MessageImageText:
		tag := attachmentTag.Render("[图片]")
		if body == "" {
			body = tag
		} else {
			body = tag + " " + body
		}
	}
	return fmt.Sprintf("%s %s %s", subtleStyle.Render(at), name, body)
}
