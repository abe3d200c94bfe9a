package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrSpaceNotFound   = errors.New("space not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyMessage    = errors.New("empty message")
	ErrInvalidMessage  = errors.New("invalid message")
	ErrUnknownSticker  = errors.New("unknown sticker")
	ErrPasswordTooLong = errors.New("password too long")
)
