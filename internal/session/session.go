// Package session 记录客户端当前所在的用户与空间。
//
// Memory 只在进程存活期间保存，终端客户端用它。Store 是服务端记录，以随机会话
// ID 为键；浏览器通过会话 Cookie 持有该 ID 的签名令牌。记录随令牌一起过期，
// 过期后在读取时或由定期清扫删除。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"loveroom/internal/auth"
	"loveroom/internal/kv"
	"loveroom/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Prefix 是服务端会话记录的键前缀。
const Prefix = "loveroom_session_"

var ErrNoSession = errors.New("no session")

// Session 是当前用户及其加入的空间。
type Session struct {
	User    models.User `json:"user"`
	SpaceID string      `json:"spaceId"`
}

// Holder 最多保存一个活动会话。
type Holder interface {
	Save(Session)
	Load() (Session, bool)
	Clear()
}

// Memory 是只在当前进程内有效的 Holder。
type Memory struct {
	mu  sync.Mutex
	cur *Session
}

func (m *Memory) Save(s Session) {
	m.mu.Lock()
	m.cur = &s
	m.mu.Unlock()
}

func (m *Memory) Load() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return Session{}, false
	}
	return *m.cur, true
}

func (m *Memory) Clear() {
	m.mu.Lock()
	m.cur = nil
	m.mu.Unlock()
}

// record 是落盘的会话，ExpiresAt 为毫秒时间戳，0 表示不过期。
type record struct {
	Session
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

func (r record) expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.UnixMilli() >= r.ExpiresAt
}

// Store 把会话保存在键值分区中。
type Store struct {
	kv     kv.Store
	secret string
	ttl    time.Duration

	stop chan struct{}
	once sync.Once
}

func NewStore(store kv.Store, secret string, ttl time.Duration) *Store {
	return &Store{kv: store, secret: secret, ttl: ttl, stop: make(chan struct{})}
}

// Save 以新的会话 ID 写入 s，并返回对应的签名令牌。
func (st *Store) Save(ctx context.Context, s Session) (string, error) {
	sid, err := auth.NewSessionID()
	if err != nil {
		return "", err
	}
	rec := record{Session: s}
	if st.ttl > 0 {
		rec.ExpiresAt = time.Now().Add(st.ttl).UnixMilli()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	if err := st.kv.Set(ctx, Prefix+sid, b); err != nil {
		return "", err
	}
	return auth.GenerateSessionToken(sid, s.SpaceID, st.secret, st.ttl)
}

// Load 恢复 token 对应的会话。无效、过期或已清除的令牌都返回 ErrNoSession，
// 过期令牌的记录会被顺带删除。
func (st *Store) Load(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	claims, err := auth.ParseSessionToken(token, st.secret)
	if errors.Is(err, jwt.ErrTokenExpired) {
		st.forget(ctx, token)
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, ErrNoSession
	}
	key := Prefix + claims.SessionID
	raw, ok, err := st.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoSession
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	if rec.expired(time.Now()) {
		if err := st.kv.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrNoSession
	}
	if rec.SpaceID != claims.SpaceID {
		return nil, ErrNoSession
	}
	s := rec.Session
	return &s, nil
}

// forget 删除已过期令牌的记录，签名仍需有效。
func (st *Store) forget(ctx context.Context, token string) {
	claims, err := auth.ParseSessionToken(token, st.secret, jwt.WithoutClaimsValidation())
	if err != nil {
		return
	}
	if err := st.kv.Delete(ctx, Prefix+claims.SessionID); err != nil {
		log.Warn().Err(err).Msg("delete expired session")
	}
}

// Clear 删除 token 对应的记录，未知令牌直接忽略。
func (st *Store) Clear(ctx context.Context, token string) error {
	claims, err := auth.ParseSessionToken(token, st.secret, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil
	}
	return st.kv.Delete(ctx, Prefix+claims.SessionID)
}

// Sweep 删除所有在 now 之前过期的记录，返回删除的数量。
func (st *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	keys, err := st.kv.Keys(ctx, Prefix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		raw, ok, err := st.kv.Get(ctx, k)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warn().Err(err).Str("key", k).Msg("drop unreadable session")
		} else if !rec.expired(now) {
			continue
		}
		if err := st.kv.Delete(ctx, k); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// StartSweeper 每隔 every 清扫一次过期记录，直到 Stop。
func (st *Store) StartSweeper(every time.Duration) {
	go st.gc(every)
}

func (st *Store) gc(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := st.Sweep(context.Background(), time.Now())
			if err != nil {
				log.Warn().Err(err).Msg("session sweep")
			} else if n > 0 {
				log.Debug().Int("removed", n).Msg("session sweep")
			}
		case <-st.stop:
			return
		}
	}
}

// Stop 结束清扫 goroutine，可重复调用。
func (st *Store) Stop() {
	st.once.Do(func() { close(st.stop) })
}
