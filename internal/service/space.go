package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"sync"
	"time"

	"loveroom/internal/auth"
	"loveroom/internal/kv"
	"loveroom/internal/metrics"
	"loveroom/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// SpacePrefix 是空间记录在键值分区中的键前缀。
	SpacePrefix = "loveroom_data_"
	spaceIDLen  = 9
)

var spaceIDPattern = regexp.MustCompile(`^[0-9a-z]{1,32}$`)

// SpaceService 拥有空间记录：创建、读取、校验密码与追加消息。
// 同一进程内对同一空间的追加是串行的；多个进程共享同一数据库时仍为后写覆盖。
type SpaceService struct {
	kv    kv.Store
	now   func() time.Time
	locks spaceLocks
}

func NewSpaceService(store kv.Store) *SpaceService {
	return &SpaceService{kv: store, now: time.Now, locks: spaceLocks{m: make(map[string]*spaceLock)}}
}

// SpaceKey 返回空间 id 对应的存储键。
func SpaceKey(id string) string { return SpacePrefix + id }

// ValidSpaceID 报告 id 是否符合空间号格式。
func ValidSpaceID(id string) bool { return spaceIDPattern.MatchString(id) }

// newSpaceID 从随机 UUID 派生 9 位 base36 空间号，不检查碰撞。
func newSpaceID() string {
	u := uuid.New()
	s := new(big.Int).SetBytes(u[:]).Text(36)
	if len(s) < spaceIDLen {
		s = strings.Repeat("0", spaceIDLen-len(s)) + s
	}
	return s[len(s)-spaceIDLen:]
}

// WelcomeText 是新空间的第一条系统消息内容。
func WelcomeText(name string) string {
	return fmt.Sprintf("欢迎来到属于你们的\"%s\"空间！开始分享你们的日常吧。", name)
}

// CreateSpace 创建空间并写入一条欢迎系统消息，返回的 Space 携带调用方给出的明文密码。
func (s *SpaceService) CreateSpace(ctx context.Context, name, password string) (*models.Space, error) {
	if strings.TrimSpace(name) == "" || password == "" {
		return nil, ErrInvalidInput
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, errors.Wrap(err, "hash password")
	}
	now := s.now().UnixMilli()
	data := models.SpaceData{
		Space: models.Space{ID: newSpaceID(), Name: name, Password: hash, Created: now},
		Messages: []models.Message{{
			ID:         "init",
			SenderID:   "system",
			SenderName: "系统",
			Content:    WelcomeText(name),
			Timestamp:  now,
			Type:       models.MessageSystem,
		}},
	}
	if err := s.put(ctx, &data); err != nil {
		return nil, err
	}
	metrics.SpacesCreated.Inc()
	return &models.Space{ID: data.ID, Name: name, Password: password, Created: now}, nil
}

// GetSpace 读取完整空间记录。不存在或 id 格式非法时返回 ErrSpaceNotFound。
func (s *SpaceService) GetSpace(ctx context.Context, id string) (*models.SpaceData, error) {
	if !ValidSpaceID(id) {
		return nil, ErrSpaceNotFound
	}
	raw, ok, err := s.kv.Get(ctx, SpaceKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSpaceNotFound
	}
	var data models.SpaceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrapf(err, "decode space %s", id)
	}
	if data.Messages == nil {
		data.Messages = []models.Message{}
	}
	return &data, nil
}

// ValidateSpace 当且仅当空间存在且密码一致时返回 true。
func (s *SpaceService) ValidateSpace(ctx context.Context, id, password string) (bool, error) {
	data, err := s.GetSpace(ctx, id)
	if errors.Is(err, ErrSpaceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return auth.VerifyPassword(data.Password, password), nil
}

// AddMessage 读出整条记录、追加 msg 后整体写回，返回追加后的完整消息列表。
// 空间不存在时返回空列表和 ErrSpaceNotFound。
func (s *SpaceService) AddMessage(ctx context.Context, id string, msg models.Message) ([]models.Message, error) {
	if !msg.Type.Valid() {
		return []models.Message{}, ErrInvalidMessage
	}
	if !ValidSpaceID(id) {
		return []models.Message{}, ErrSpaceNotFound
	}
	unlock := s.locks.lock(id)
	defer unlock()

	data, err := s.GetSpace(ctx, id)
	if err != nil {
		return []models.Message{}, err
	}
	data.Messages = append(data.Messages, msg)
	if err := s.put(ctx, data); err != nil {
		return []models.Message{}, err
	}
	metrics.MessagesAppended.WithLabelValues(string(msg.Type)).Inc()
	return data.Messages, nil
}

// GetMessages 返回空间的消息列表，空间不存在时返回空列表。
func (s *SpaceService) GetMessages(ctx context.Context, id string) ([]models.Message, error) {
	data, err := s.GetSpace(ctx, id)
	if errors.Is(err, ErrSpaceNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return data.Messages, nil
}

func (s *SpaceService) put(ctx context.Context, data *models.SpaceData) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "encode space %s", data.ID)
	}
	return s.kv.Set(ctx, SpaceKey(data.ID), b)
}

type spaceLock struct {
	sync.Mutex
	refs int
}

// spaceLocks 按空间 id 分配互斥锁，无人持有时回收。
type spaceLocks struct {
	mu sync.Mutex
	m  map[string]*spaceLock
}

func (l *spaceLocks) lock(id string) func() {
	l.mu.Lock()
	sl := l.m[id]
	if sl == nil {
		sl = &spaceLock{}
		l.m[id] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.Lock()
	return func() {
		sl.Unlock()
		l.mu.Lock()
		sl.refs--
		if sl.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
