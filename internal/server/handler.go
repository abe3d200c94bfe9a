package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"loveroom/internal/ai"
	"loveroom/internal/config"
	"loveroom/internal/media"
	"loveroom/internal/models"
	"loveroom/internal/service"
	"loveroom/internal/session"
	"loveroom/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// 登录失败统一提示，不区分空间不存在与密码错误。
const msgInvalidCredentials = "空间ID或密码错误"

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	cfg      config.Config
	spaces   *service.SpaceService
	sessions *session.Store
	advisor  *ai.Advisor
	hub      *ws.Hub
}

func NewHandler(cfg config.Config, spaces *service.SpaceService, sessions *session.Store, advisor *ai.Advisor, hub *ws.Hub) *Handler {
	return &Handler{cfg: cfg, spaces: spaces, sessions: sessions, advisor: advisor, hub: hub}
}

// spaceDTO 是对外的空间视图，不含密码哈希。
type spaceDTO struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Created  int64            `json:"created"`
	Online   int              `json:"online"`
	Messages []models.Message `json:"messages,omitempty"`
}

func (h *Handler) toDTO(sp models.Space, msgs []models.Message) spaceDTO {
	return spaceDTO{ID: sp.ID, Name: sp.Name, Created: sp.Created, Online: h.hub.Online(sp.ID), Messages: msgs}
}

func (h *Handler) secureCookie() bool { return h.cfg.Env != "dev" }

// newUser 校验昵称和头像后生成用户身份，失败时已写出 400。
func (h *Handler) newUser(c *gin.Context, nickname, avatar string) (models.User, bool) {
	if avatar != "" {
		if err := media.ValidateDataURI(avatar, h.cfg.MaxUploadBytes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid avatar"})
			return models.User{}, false
		}
	}
	u, err := service.NewUser(nickname, avatar)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return models.User{}, false
	}
	return u, true
}

// startSession 保存会话并下发会话 cookie。
func (h *Handler) startSession(c *gin.Context, u models.User, spaceID string) bool {
	token, err := h.sessions.Save(c.Request.Context(), session.Session{User: u, SpaceID: spaceID})
	if err != nil {
		log.Error().Err(err).Str("space_id", spaceID).Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		return false
	}
	session.SetCookie(c, token, h.secureCookie())
	c.Header("X-Session-Token", token)
	return true
}

// CreateSpace 创建空间并以创建者身份加入。
func (h *Handler) CreateSpace(c *gin.Context) {
	var req struct {
		Nickname string `json:"nickname"`
		Avatar   string `json:"avatar"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if strings.TrimSpace(req.Nickname) == "" || strings.TrimSpace(req.Name) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	u, ok := h.newUser(c, req.Nickname, req.Avatar)
	if !ok {
		return
	}
	sp, err := h.spaces.CreateSpace(c.Request.Context(), req.Name, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrPasswordTooLong) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "password too long"})
			return
		}
		log.Error().Err(err).Str("name", req.Name).Msg("create space")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create space"})
		return
	}
	if !h.startSession(c, u, sp.ID) {
		return
	}
	log.Info().Str("space_id", sp.ID).Str("user_id", u.ID).Msg("space created")
	c.JSON(http.StatusOK, gin.H{"space": h.toDTO(*sp, nil), "user": u})
}

// JoinSpace 校验空间号与密码后加入。
func (h *Handler) JoinSpace(c *gin.Context) {
	var req struct {
		Nickname string `json:"nickname"`
		Avatar   string `json:"avatar"`
		SpaceID  string `json:"spaceId"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.SpaceID = strings.TrimSpace(req.SpaceID)
	if strings.TrimSpace(req.Nickname) == "" || req.SpaceID == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	u, ok := h.newUser(c, req.Nickname, req.Avatar)
	if !ok {
		return
	}
	valid, err := h.spaces.ValidateSpace(c.Request.Context(), req.SpaceID, req.Password)
	if err != nil {
		log.Error().Err(err).Str("space_id", req.SpaceID).Msg("validate space")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "join failed"})
		return
	}
	if !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgInvalidCredentials})
		return
	}
	data, err := h.spaces.GetSpace(c.Request.Context(), req.SpaceID)
	if err != nil {
		log.Error().Err(err).Str("space_id", req.SpaceID).Msg("join read space")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "join failed"})
		return
	}
	if !h.startSession(c, u, data.ID) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"space": h.toDTO(data.Space, nil), "user": u})
}

// GetSession 返回当前会话。
func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, session.FromContext(c))
}

// Logout 删除服务端会话并清除 cookie。
func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Clear(c.Request.Context(), session.TokenFromContext(c)); err != nil {
		log.Error().Err(err).Msg("clear session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	session.ClearCookie(c, h.secureCookie())
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListStickers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"stickers": service.Stickers()})
}

// GetSpace 返回空间名称与全部消息，即一次轮询快照。
func (h *Handler) GetSpace(c *gin.Context) {
	data, ok := h.loadSpace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.toDTO(data.Space, data.Messages))
}

func (h *Handler) ListMessages(c *gin.Context) {
	data, ok := h.loadSpace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": data.Messages})
}

// PostMessage 追加文本或图文消息，返回追加后的完整列表。
func (h *Handler) PostMessage(c *gin.Context) {
	var req struct {
		Content  string `json:"content"`
		ImageURL string `json:"imageUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if req.ImageURL != "" {
		if err := media.ValidateDataURI(req.ImageURL, h.cfg.MaxUploadBytes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image"})
			return
		}
	}
	msg, err := service.NewTextMessage(session.FromContext(c).User, req.Content, req.ImageURL, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
		return
	}
	h.append(c, msg)
}

// PostSticker 追加贴纸消息，贴纸必须来自内置目录。
func (h *Handler) PostSticker(c *gin.Context) {
	var req struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := service.NewStickerMessage(session.FromContext(c).User, req.ImageURL, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown sticker"})
		return
	}
	h.append(c, msg)
}

func (h *Handler) append(c *gin.Context, msg models.Message) {
	id := c.Param("id")
	msgs, err := h.spaces.AddMessage(c.Request.Context(), id, msg)
	if err != nil {
		if errors.Is(err, service.ErrSpaceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "space not found"})
			return
		}
		log.Error().Err(err).Str("space_id", id).Msg("add message")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add message"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Vibe 基于空间内已保存的消息分析聊天氛围。
func (h *Handler) Vibe(c *gin.Context) {
	data, ok := h.loadSpace(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": h.advisor.AnalyzeVibe(c.Request.Context(), data.Messages)})
}

func (h *Handler) Topic(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"text": h.advisor.SuggestTopic(c.Request.Context())})
}

// Note 以当前用户的名义生成一段情话。
func (h *Handler) Note(c *gin.Context) {
	var req struct {
		Receiver string `json:"receiver"`
		Tone     string `json:"tone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Receiver = strings.TrimSpace(req.Receiver)
	req.Tone = strings.TrimSpace(req.Tone)
	if req.Receiver == "" || req.Tone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	sender := session.FromContext(c).User.Nickname
	c.JSON(http.StatusOK, gin.H{"text": h.advisor.LoveNote(c.Request.Context(), sender, req.Receiver, req.Tone)})
}

func (h *Handler) loadSpace(c *gin.Context) (*models.SpaceData, bool) {
	id := c.Param("id")
	data, err := h.spaces.GetSpace(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSpaceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "space not found"})
			return nil, false
		}
		log.Error().Err(err).Str("space_id", id).Msg("get space")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load space"})
		return nil, false
	}
	return data, true
}
