package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"loveroom/internal/metrics"
)

// Hub 管理空间级别的子 Hub，实现延迟创建与并发安全。
type Hub struct {
	mu     sync.RWMutex
	spaces map[string]*SpaceHub
}

func NewHub() *Hub { return &Hub{spaces: make(map[string]*SpaceHub)} }

// GetSpace 若空间未初始化则懒加载一个 SpaceHub。
func (h *Hub) GetSpace(spaceID string) *SpaceHub {
	h.mu.RLock()
	sh := h.spaces[spaceID]
	h.mu.RUnlock()
	if sh != nil {
		return sh
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	sh = h.spaces[spaceID]
	if sh != nil {
		return sh
	}
	sh = NewSpaceHub(spaceID)
	h.spaces[spaceID] = sh
	go sh.run()
	return sh
}

func (h *Hub) Online(spaceID string) int {
	h.mu.RLock()
	sh := h.spaces[spaceID]
	h.mu.RUnlock()
	if sh == nil {
		return 0
	}
	return sh.Online()
}

// envelope 是发给单个连接的帧。
type envelope struct {
	to   *Client
	data []byte
}

// SpaceHub 是某个空间内连接的唯一写入者：只有 run 会向 client.send 发送或关闭它。
type SpaceHub struct {
	spaceID    string
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	direct     chan envelope
	online     int32
}

func NewSpaceHub(spaceID string) *SpaceHub {
	return &SpaceHub{
		spaceID:    spaceID,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan envelope, 256),
	}
}

type presenceEvent struct {
	Type     string `json:"type"`
	SpaceID  string `json:"space_id"`
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Online   int    `json:"online"`
}

func (sh *SpaceHub) run() {
	for {
		select {
		case c := <-sh.register:
			sh.clients[c] = true
			metrics.WsConnections.Inc()
			sh.presence("join", c)
		case c := <-sh.unregister:
			if _, ok := sh.clients[c]; ok {
				sh.drop(c)
				sh.presence("leave", c)
			}
		case msg := <-sh.broadcast:
			for c := range sh.clients {
				sh.deliver(c, msg)
			}
		case env := <-sh.direct:
			if sh.clients[env.to] {
				sh.deliver(env.to, env.data)
			}
		}
	}
}

func (sh *SpaceHub) presence(kind string, c *Client) {
	atomic.StoreInt32(&sh.online, int32(len(sh.clients)))
	b, err := json.Marshal(presenceEvent{Type: kind, SpaceID: sh.spaceID, UserID: c.user.ID, Nickname: c.user.Nickname, Online: len(sh.clients)})
	if err != nil {
		return
	}
	for cli := range sh.clients {
		sh.deliver(cli, b)
	}
}

// deliver 非阻塞发送，发送缓冲已满的慢连接会被移除。
func (sh *SpaceHub) deliver(c *Client, b []byte) {
	select {
	case c.send <- b:
	default:
		sh.drop(c)
	}
}

func (sh *SpaceHub) drop(c *Client) {
	delete(sh.clients, c)
	close(c.send)
	atomic.StoreInt32(&sh.online, int32(len(sh.clients)))
	metrics.WsConnections.Dec()
}

// sendTo 把帧排队给单个连接；连接已离开时丢弃。
func (sh *SpaceHub) sendTo(c *Client, b []byte) {
	sh.direct <- envelope{to: c, data: b}
}

// Online 返回空间在线连接数量，供 REST 接口复用。
func (sh *SpaceHub) Online() int { return int(atomic.LoadInt32(&sh.online)) }
