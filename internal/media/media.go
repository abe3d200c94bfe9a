// Package media 把图片文件转成 data URI，并校验客户端提交的 data URI。
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNotImage    = errors.New("not an image")
	ErrTooLarge    = errors.New("image too large")
	ErrBadDataURI  = errors.New("malformed data uri")
	ErrUnsupported = errors.New("unsupported image reference")
)

const dataPrefix = "data:"

// EncodeBytes 确认 b 是图片后返回 base64 data URI。
func EncodeBytes(b []byte, maxBytes int) (string, error) {
	if maxBytes > 0 && len(b) > maxBytes {
		return "", ErrTooLarge
	}
	mt := mimetype.Detect(b)
	if !isImage(mt) {
		return "", fmt.Errorf("%w: %s", ErrNotImage, mt.String())
	}
	return dataPrefix + baseType(mt.String()) + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}

// EncodeFile 读取 path 并返回图片 data URI。
func EncodeFile(path string, maxBytes int) (string, error) {
	if maxBytes > 0 {
		fi, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		if fi.Size() > int64(maxBytes) {
			return "", ErrTooLarge
		}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return EncodeBytes(b, maxBytes)
}

// ValidateDataURI 校验 uri 是 base64 图片 data URI，且解码后确为不超过 maxBytes 的图片。
func ValidateDataURI(uri string, maxBytes int) error {
	if !strings.HasPrefix(uri, dataPrefix) {
		return ErrUnsupported
	}
	meta, payload, ok := strings.Cut(uri[len(dataPrefix):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") || !strings.HasPrefix(meta, "image/") {
		return ErrBadDataURI
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(payload)) > maxBytes+2 {
		return ErrTooLarge
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ErrBadDataURI
	}
	if maxBytes > 0 && len(b) > maxBytes {
		return ErrTooLarge
	}
	if !isImage(mimetype.Detect(b)) {
		return ErrNotImage
	}
	return nil
}

func isImage(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

func baseType(s string) string {
	t, _, _ := strings.Cut(s, ";")
	return t
}
