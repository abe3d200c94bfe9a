// Package client 代表终端界面调用 loveroom HTTP API。
//
// Client 最多持有一个会话令牌：CreateSpace 或 JoinSpace 时设置，Logout 时清除，
// 其余请求都以 Bearer 方式携带。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"loveroom/internal/models"
	"loveroom/internal/service"
	"loveroom/internal/session"
)

// ErrInvalidCredentials 表示空间号不存在或密码错误。
var ErrInvalidCredentials = errors.New("invalid space id or password")

// APIError 是非 2xx 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// SpaceInfo 是空间的公开信息。
type SpaceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Created int64  `json:"created"`
	Online  int    `json:"online"`
}

// Joined 是创建或加入空间的结果。
type Joined struct {
	Space SpaceInfo   `json:"space"`
	User  models.User `json:"user"`
}

type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// New 返回指向 baseURL 服务端的客户端。
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", baseURL)
	}
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Token 返回当前会话令牌，可能为空。
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(t string) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

// dropToken 仅当当前令牌仍是 t 时才清除，之后重新加入得到的令牌不受影响。
func (c *Client) dropToken(t string) {
	c.mu.Lock()
	if c.token == t {
		c.token = ""
	}
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) (*http.Response, error) {
	return c.doAs(ctx, c.Token(), method, path, in, out)
}

// doAs 用指定令牌发送请求。
func (c *Client) doAs(ctx context.Context, token, method, path string, in, out any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return resp, &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp, nil
}

func statusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func (c *Client) join(ctx context.Context, path string, req any) (*Joined, error) {
	var out Joined
	resp, err := c.do(ctx, http.MethodPost, path, req, &out)
	if err != nil {
		return nil, err
	}
	c.setToken(resp.Header.Get("X-Session-Token"))
	return &out, nil
}

// CreateSpace 创建空间并以 nickname 加入。
func (c *Client) CreateSpace(ctx context.Context, nickname, avatar, name, password string) (*Joined, error) {
	return c.join(ctx, "/api/v1/spaces", map[string]string{
		"nickname": nickname, "avatar": avatar, "name": name, "password": password,
	})
}

func (c *Client) JoinSpace(ctx context.Context, nickname, avatar, spaceID, password string) (*Joined, error) {
	j, err := c.join(ctx, "/api/v1/spaces/join", map[string]string{
		"nickname": nickname, "avatar": avatar, "spaceId": spaceID, "password": password,
	})
	if statusOf(err) == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	return j, err
}

// GetSpace 读取完整空间记录，实现 poll.Source；空间不存在时返回 service.ErrSpaceNotFound。
func (c *Client) GetSpace(ctx context.Context, id string) (*models.SpaceData, error) {
	var out struct {
		SpaceInfo
		Messages []models.Message `json:"messages"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/spaces/"+url.PathEscape(id), nil, &out); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, service.ErrSpaceNotFound
		}
		return nil, err
	}
	if out.Messages == nil {
		out.Messages = []models.Message{}
	}
	return &models.SpaceData{
		Space:    models.Space{ID: out.ID, Name: out.Name, Created: out.Created},
		Messages: out.Messages,
	}, nil
}

type messagesResp struct {
	Messages []models.Message `json:"messages"`
}

// SendMessage 追加文本或图文消息，返回追加后的列表。
func (c *Client) SendMessage(ctx context.Context, spaceID, content, imageURL string) ([]models.Message, error) {
	var out messagesResp
	_, err := c.do(ctx, http.MethodPost, "/api/v1/spaces/"+url.PathEscape(spaceID)+"/messages",
		map[string]string{"content": content, "imageUrl": imageURL}, &out)
	return out.Messages, err
}

func (c *Client) SendSticker(ctx context.Context, spaceID, stickerURL string) ([]models.Message, error) {
	var out messagesResp
	_, err := c.do(ctx, http.MethodPost, "/api/v1/spaces/"+url.PathEscape(spaceID)+"/stickers",
		map[string]string{"imageUrl": stickerURL}, &out)
	return out.Messages, err
}

func (c *Client) Stickers(ctx context.Context) ([]string, error) {
	var out struct {
		Stickers []string `json:"stickers"`
	}
	_, err := c.do(ctx, http.MethodGet, "/api/v1/stickers", nil, &out)
	return out.Stickers, err
}

func (c *Client) ai(ctx context.Context, spaceID, kind string, in any) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	_, err := c.do(ctx, http.MethodPost, "/api/v1/spaces/"+url.PathEscape(spaceID)+"/ai/"+kind, in, &out)
	return out.Text, err
}

func (c *Client) Vibe(ctx context.Context, spaceID string) (string, error) {
	return c.ai(ctx, spaceID, "vibe", nil)
}

func (c *Client) Topic(ctx context.Context, spaceID string) (string, error) {
	return c.ai(ctx, spaceID, "topic", nil)
}

func (c *Client) LoveNote(ctx context.Context, spaceID, receiver, tone string) (string, error) {
	return c.ai(ctx, spaceID, "note", map[string]string{"receiver": receiver, "tone": tone})
}

// Session 返回服务端记录的当前会话。
func (c *Client) Session(ctx context.Context) (*session.Session, error) {
	var out session.Session
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, &out); err != nil {
		if statusOf(err) == http.StatusUnauthorized {
			return nil, session.ErrNoSession
		}
		return nil, err
	}
	return &out, nil
}

// Logout 结束 token 对应的服务端会话。请求失败时本地令牌同样会被清除，
// 但只在它仍是 token 时。
func (c *Client) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := c.doAs(ctx, token, http.MethodDelete, "/api/v1/session", nil, nil)
	c.dropToken(token)
	if statusOf(err) == http.StatusUnauthorized {
		return nil
	}
	return err
}
