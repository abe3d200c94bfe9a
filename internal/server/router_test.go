package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loveroom/internal/ai"
	"loveroom/internal/config"
	"loveroom/internal/kv"
	"loveroom/internal/models"
	"loveroom/internal/poll"
	"loveroom/internal/service"
	"loveroom/internal/session"
	"loveroom/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGen struct{ reply string }

func (s stubGen) Generate(_ context.Context, _, _ string) (string, error) { return s.reply, nil }

func newTestEngine(t *testing.T, gen ai.Generator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Port: "0", Env: "dev", SessionSecret: "secret", MaxUploadBytes: 1 << 20}
	store := kv.NewMemory()
	spaces := service.NewSpaceService(store)
	return SetupRouter(cfg, Deps{
		Spaces:   spaces,
		Sessions: session.NewStore(store, cfg.SessionSecret, time.Hour),
		Advisor:  ai.NewAdvisor(gen, ai.DefaultModel, time.Second),
		Poller:   poll.New(spaces, time.Second),
		Hub:      ws.NewHub(),
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			return c.Value
		}
	}
	t.Fatal("no session cookie")
	return ""
}

type joinResp struct {
	Space spaceDTO    `json:"space"`
	User  models.User `json:"user"`
}

func createSpace(t *testing.T, r http.Handler, name, password string) (joinResp, string) {
	t.Helper()
	w := do(t, r, http.MethodPost, "/api/v1/spaces", gin.H{"nickname": "小明", "name": name, "password": password}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out joinResp
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out, sessionCookie(t, w)
}

func TestHealthz(t *testing.T) {
	r := newTestEngine(t, nil)
	w := do(t, r, http.MethodGet, "/healthz", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateSpace_Validation(t *testing.T) {
	r := newTestEngine(t, nil)
	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"missing nickname", gin.H{"name": "n", "password": "p"}, http.StatusBadRequest},
		{"missing name", gin.H{"nickname": "a", "name": "  ", "password": "p"}, http.StatusBadRequest},
		{"missing password", gin.H{"nickname": "a", "name": "n"}, http.StatusBadRequest},
		{"bad avatar", gin.H{"nickname": "a", "name": "n", "password": "p", "avatar": "data:text/plain;base64,aGk="}, http.StatusBadRequest},
		{"ok", gin.H{"nickname": "a", "name": "n", "password": "p"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/spaces", tt.body, "")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateSpace_DoesNotLeakPassword(t *testing.T) {
	r := newTestEngine(t, nil)
	w := do(t, r, http.MethodPost, "/api/v1/spaces", gin.H{"nickname": "a", "name": "n", "password": "hunter2"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "$2a$")
}

func TestJoinSpace(t *testing.T) {
	r := newTestEngine(t, nil)
	created, _ := createSpace(t, r, "测试", "abc123")

	tests := []struct {
		name    string
		spaceID string
		pw      string
		want    int
	}{
		{"correct", created.Space.ID, "abc123", http.StatusOK},
		{"wrong password", created.Space.ID, "wrong", http.StatusUnauthorized},
		{"unknown space", "zzzzzzzzz", "abc123", http.StatusUnauthorized},
		{"missing password", created.Space.ID, "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/v1/spaces/join", gin.H{"nickname": "小红", "spaceId": tt.spaceID, "password": tt.pw}, "")
			require.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"空间ID或密码错误"}`, w.Body.String())
			}
			if tt.want == http.StatusOK {
				var out joinResp
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
				assert.Equal(t, "测试", out.Space.Name)
				assert.Equal(t, "小红", out.User.Nickname)
				assert.NotEqual(t, created.User.ID, out.User.ID)
			}
		})
	}
}

func TestSpaceFlow(t *testing.T) {
	r := newTestEngine(t, nil)
	created, token := createSpace(t, r, "小窝", "pw")
	base := "/api/v1/spaces/" + created.Space.ID

	w := do(t, r, http.MethodGet, base, nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var snap spaceDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "小窝", snap.Name)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, models.MessageSystem, snap.Messages[0].Type)

	w = do(t, r, http.MethodPost, base+"/messages", gin.H{"content": "早安"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Messages, 2)
	assert.Equal(t, "小明", list.Messages[1].SenderName)
	assert.Equal(t, created.User.ID, list.Messages[1].SenderID)

	sticker, err := service.StickerAt(0)
	require.NoError(t, err)
	w = do(t, r, http.MethodPost, base+"/stickers", gin.H{"imageUrl": sticker}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodGet, base+"/messages", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Messages, 3)
	assert.Equal(t, models.MessageSticker, list.Messages[2].Type)
}

func TestSpaceRoutes_Rejections(t *testing.T) {
	r := newTestEngine(t, nil)
	created, token := createSpace(t, r, "小窝", "pw")
	base := "/api/v1/spaces/" + created.Space.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		token  string
		want   int
	}{
		{"no session", http.MethodGet, base, nil, "", http.StatusUnauthorized},
		{"other space", http.MethodGet, "/api/v1/spaces/otherspace", nil, token, http.StatusForbidden},
		{"empty message", http.MethodPost, base + "/messages", gin.H{"content": "  "}, token, http.StatusBadRequest},
		{"non image attachment", http.MethodPost, base + "/messages", gin.H{"imageUrl": "https://example.com/a.png"}, token, http.StatusBadRequest},
		{"unknown sticker", http.MethodPost, base + "/stickers", gin.H{"imageUrl": "https://evil.test/x.svg"}, token, http.StatusBadRequest},
		{"note without receiver", http.MethodPost, base + "/ai/note", gin.H{"tone": "sweet"}, token, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAIRoutes(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		r := newTestEngine(t, nil)
		created, token := createSpace(t, r, "小窝", "pw")
		base := "/api/v1/spaces/" + created.Space.ID + "/ai"

		w := do(t, r, http.MethodPost, base+"/vibe", nil, token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"text":"`+ai.MsgVibeNoKey+`"}`, w.Body.String())

		w = do(t, r, http.MethodPost, base+"/topic", nil, token)
		assert.JSONEq(t, `{"text":"`+ai.MsgNoKey+`"}`, w.Body.String())
	})

	t.Run("with generator", func(t *testing.T) {
		r := newTestEngine(t, stubGen{reply: "甜甜的"})
		created, token := createSpace(t, r, "小窝", "pw")
		base := "/api/v1/spaces/" + created.Space.ID + "/ai"

		// 只有系统消息时不调用生成服务
		w := do(t, r, http.MethodPost, base+"/vibe", nil, token)
		assert.JSONEq(t, `{"text":"`+ai.MsgNotEnoughChat+`"}`, w.Body.String())

		do(t, r, http.MethodPost, "/api/v1/spaces/"+created.Space.ID+"/messages", gin.H{"content": "hi"}, token)
		w = do(t, r, http.MethodPost, base+"/vibe", nil, token)
		assert.JSONEq(t, `{"text":"甜甜的"}`, w.Body.String())

		w = do(t, r, http.MethodPost, base+"/note", gin.H{"receiver": "小红", "tone": "sweet"}, token)
		assert.JSONEq(t, `{"text":"甜甜的"}`, w.Body.String())
	})
}

func TestSessionAndLogout(t *testing.T) {
	r := newTestEngine(t, nil)
	created, token := createSpace(t, r, "小窝", "pw")

	w := do(t, r, http.MethodGet, "/api/v1/session", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var sess session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, created.Space.ID, sess.SpaceID)
	assert.Equal(t, "小明", sess.User.Nickname)

	w = do(t, r, http.MethodDelete, "/api/v1/session", nil, token)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/session", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStickers(t *testing.T) {
	r := newTestEngine(t, nil)
	w := do(t, r, http.MethodGet, "/api/v1/stickers", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Stickers []string `json:"stickers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, service.Stickers(), out.Stickers)
}
