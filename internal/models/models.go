package models

import (
	"strings"
	"unicode/utf8"
)

// MessageType 区分消息的渲染方式。
type MessageType string

const (
	MessageText      MessageType = "text"
	MessageImageText MessageType = "image_text"
	MessageSystem    MessageType = "system"
	MessageSticker   MessageType = "sticker"
)

// Valid 报告 t 是否为已知类型。
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImageText, MessageSystem, MessageSticker:
		return true
	}
	return false
}

// User 在加入或创建空间时生成，仅随会话保存。
type User struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

// Message 一旦追加便不再修改。
type Message struct {
	ID           string      `json:"id"`
	SenderID     string      `json:"senderId"`
	SenderName   string      `json:"senderName"`
	SenderAvatar string      `json:"senderAvatar,omitempty"`
	Content      string      `json:"content"`
	ImageURL     string      `json:"imageUrl,omitempty"`
	Timestamp    int64       `json:"timestamp"`
	Type         MessageType `json:"type"`
}

// Space 是空间的公开信息。Password 在存储中保存的是 bcrypt 哈希。
type Space struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Created  int64  `json:"created"`
}

// SpaceData 是持久化的完整空间记录。
type SpaceData struct {
	Space
	Messages []Message `json:"messages"`
}

// Initial 返回空间名的首字符，用于界面头像。
func (s Space) Initial() string {
	r, _ := utf8.DecodeRuneInString(s.Name)
	if r == utf8.RuneError {
		return "?"
	}
	return strings.ToUpper(string(r))
}
