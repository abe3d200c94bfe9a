package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	// CookieName 携带会话令牌，不设 Max-Age。
	CookieName = "loveroom_session"

	ctxSession = "session"
	ctxToken   = "sessionToken"
)

func SetCookie(c *gin.Context, token string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, token, 0, "/", "", secure, true)
}

func ClearCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, "", -1, "/", "", secure, true)
}

// TokenFrom 先读 Cookie 中的会话令牌，没有时退回 Bearer Authorization 头。
func TokenFrom(c *gin.Context) string {
	if v, err := c.Cookie(CookieName); err == nil && v != "" {
		return v
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Middleware 恢复会话并放入 gin.Context，没有会话时返回 401。
func Middleware(st *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFrom(c)
		sess, err := st.Load(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, ErrNoSession) {
				log.Error().Err(err).Msg("load session")
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no active session"})
			return
		}
		c.Set(ctxSession, sess)
		c.Set(ctxToken, token)
		c.Next()
	}
}

// RequireSpace 拒绝访问会话所属空间以外的 :id。
func RequireSpace() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := FromContext(c)
		if sess == nil || sess.SpaceID != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a member of this space"})
			return
		}
		c.Next()
	}
}

// FromContext 返回 Middleware 恢复的会话，没有时返回 nil。
func FromContext(c *gin.Context) *Session {
	if v, ok := c.Get(ctxSession); ok {
		if s, ok2 := v.(*Session); ok2 {
			return s
		}
	}
	return nil
}

// TokenFromContext 返回 Middleware 接受的令牌。
func TokenFromContext(c *gin.Context) string {
	return c.GetString(ctxToken)
}
