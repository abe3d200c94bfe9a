package service

import (
	"strconv"
	"strings"
	"time"

	"loveroom/internal/models"

	"github.com/google/uuid"
)

// stickers 是可发送的表情贴纸。
var stickers = []string{
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Happy&backgroundColor=b6e3f4",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Love&backgroundColor=f4d2e4",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Cuddle&backgroundColor=c0aede",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Wink&backgroundColor=b6e3f4",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Shy&backgroundColor=ffdfbf",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Excited&backgroundColor=ffd5dc",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Cool&backgroundColor=d1d4f9",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Surprise&backgroundColor=ffdfbf",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Cry&backgroundColor=b6e3f4",
	"https://api.dicebear.com/7.x/fun-emoji/svg?seed=Angry&backgroundColor=f4d2e4",
}

// Stickers 返回贴纸目录的副本。
func Stickers() []string {
	return append([]string(nil), stickers...)
}

// StickerAt 按序号（从 0 开始）取贴纸。
func StickerAt(i int) (string, error) {
	if i < 0 || i >= len(stickers) {
		return "", ErrUnknownSticker
	}
	return stickers[i], nil
}

func isSticker(url string) bool {
	for _, s := range stickers {
		if s == url {
			return true
		}
	}
	return false
}

// NewMessageID 由毫秒时间戳派生消息 id，附加短随机后缀避免同一毫秒内重复。
func NewMessageID(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10) + "-" + uuid.NewString()[:4]
}

// NewTextMessage 构造文本或图文消息：带图片时类型为 image_text。
func NewTextMessage(u models.User, content, imageURL string, at time.Time) (models.Message, error) {
	if strings.TrimSpace(content) == "" && imageURL == "" {
		return models.Message{}, ErrEmptyMessage
	}
	typ := models.MessageText
	if imageURL != "" {
		typ = models.MessageImageText
	}
	return models.Message{
		ID:           NewMessageID(at),
		SenderID:     u.ID,
		SenderName:   u.Nickname,
		SenderAvatar: u.Avatar,
		Content:      content,
		ImageURL:     imageURL,
		Timestamp:    at.UnixMilli(),
		Type:         typ,
	}, nil
}

// NewStickerMessage 构造贴纸消息，只接受目录中的贴纸。
func NewStickerMessage(u models.User, stickerURL string, at time.Time) (models.Message, error) {
	if !isSticker(stickerURL) {
		return models.Message{}, ErrUnknownSticker
	}
	return models.Message{
		ID:           NewMessageID(at),
		SenderID:     u.ID,
		SenderName:   u.Nickname,
		SenderAvatar: u.Avatar,
		Content:      "Sticker",
		ImageURL:     stickerURL,
		Timestamp:    at.UnixMilli(),
		Type:         models.MessageSticker,
	}, nil
}
