package service

import (
	"strings"

	"loveroom/internal/models"
)

// NewUser 为加入空间的昵称生成一个新的身份，每次加入都会得到不同的 id。
func NewUser(nickname, avatar string) (models.User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return models.User{}, ErrInvalidInput
	}
	return models.User{ID: newSpaceID(), Nickname: nickname, Avatar: avatar}, nil
}
