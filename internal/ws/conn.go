package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"loveroom/internal/media"
	"loveroom/internal/models"
	"loveroom/internal/poll"
	"loveroom/internal/service"
	"loveroom/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Client struct {
	space *SpaceHub
	conn  *websocket.Conn
	send  chan []byte
	user  models.User
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Deps 是 WebSocket 端点依赖的服务。
type Deps struct {
	Spaces         *service.SpaceService
	Poller         *poll.Poller
	Sessions       *session.Store
	MaxUploadBytes int
}

type InboundMessage struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

type SnapshotFrame struct {
	Type      string           `json:"type"`
	SpaceID   string           `json:"space_id"`
	SpaceName string           `json:"space_name"`
	Messages  []models.Message `json:"messages"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func snapshotFrame(s poll.Snapshot) []byte {
	b, _ := json.Marshal(SnapshotFrame{Type: "snapshot", SpaceID: s.SpaceID, SpaceName: s.SpaceName, Messages: s.Messages})
	return b
}

// Serve 校验会话后升级连接：轮询快照推送给客户端，客户端发来的消息写入空间。
func Serve(h *Hub, d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		spaceID := c.Query("space_id")
		token := session.TokenFrom(c)
		if token == "" {
			token = c.Query("token")
		}
		sess, err := d.Sessions.Load(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
			return
		}
		if spaceID == "" || sess.SpaceID != spaceID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this space"})
			return
		}
		data, err := d.Spaces.GetSpace(c.Request.Context(), spaceID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "space not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		sh := h.GetSpace(data.ID)
		client := &Client{space: sh, conn: conn, send: make(chan []byte, 256), user: sess.User}
		sh.register <- client

		unsubscribe := d.Poller.Subscribe(c.Request.Context(), data.ID, func(s poll.Snapshot) {
			sh.sendTo(client, snapshotFrame(s))
		})

		go client.writePump()
		client.readPump(d, unsubscribe)
	}
}

func (c *Client) readPump(d Deps, unsubscribe func()) {
	defer func() {
		unsubscribe()
		c.space.unregister <- c
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(int64(d.MaxUploadBytes)*2 + 4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in InboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		msgs, err := c.handle(d, in)
		if err != nil {
			b, _ := json.Marshal(errorFrame{Type: "error", Error: err.Error()})
			c.space.sendTo(c, b)
			continue
		}
		space, err := d.Spaces.GetSpace(context.Background(), c.space.spaceID)
		name := ""
		if err == nil {
			name = space.Name
		}
		c.space.sendTo(c, snapshotFrame(poll.Snapshot{SpaceID: c.space.spaceID, SpaceName: name, Messages: msgs}))
	}
}

func (c *Client) handle(d Deps, in InboundMessage) ([]models.Message, error) {
	now := time.Now()
	var (
		msg models.Message
		err error
	)
	switch in.Type {
	case "message":
		if in.ImageURL != "" {
			if err := media.ValidateDataURI(in.ImageURL, d.MaxUploadBytes); err != nil {
				return nil, err
			}
		}
		msg, err = service.NewTextMessage(c.user, in.Content, in.ImageURL, now)
	case "sticker":
		msg, err = service.NewStickerMessage(c.user, in.ImageURL, now)
	default:
		return nil, errors.New("unknown frame type")
	}
	if err != nil {
		return nil, err
	}
	msgs, err := d.Spaces.AddMessage(context.Background(), c.space.spaceID, msg)
	if err != nil {
		log.Warn().Err(err).Str("space_id", c.space.spaceID).Msg("ws add message")
		return nil, err
	}
	return msgs, nil
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
