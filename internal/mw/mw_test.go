package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loveroom/internal/kv"
	"loveroom/internal/models"
	"loveroom/internal/session"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

func serve(r *gin.Engine, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_PerRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(rate.Every(time.Hour), 2, time.Minute)
	defer rl.Stop()
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/a", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i, want := range []int{200, 200, 429} {
		if got := serve(r, http.MethodGet, "/a", nil).Code; got != want {
			t.Errorf("request %d to /a: status = %d, want %d", i, got, want)
		}
	}
	if got := serve(r, http.MethodGet, "/b", nil).Code; got != http.StatusOK {
		t.Errorf("/b has its own bucket: status = %d", got)
	}
}

func TestRateLimit_Sweep(t *testing.T) {
	rl := NewRateLimiter(rate.Inf, 1, time.Minute)
	defer rl.Stop()
	rl.get("x")
	rl.sweep(time.Now().Add(2 * time.Minute))
	if len(rl.m) != 0 {
		t.Errorf("sweep left %d entries", len(rl.m))
	}
	rl.Stop() // idempotent
}

func TestClientIP(t *testing.T) {
	if got := clientIP("1.2.3.4:80"); got != "1.2.3.4" {
		t.Errorf("clientIP() = %q", got)
	}
	if got := clientIP("garbage"); got != "garbage" {
		t.Errorf("clientIP() = %q", got)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		env        string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"dev", "http://anything.test", http.StatusOK, "http://anything.test"},
		{"prod", "https://example.com:8443", http.StatusForbidden, ""},
		{"prod", "http://evil.test", http.StatusForbidden, ""},
		// same-origin requests pass through untouched
		{"prod", "http://example.com", http.StatusOK, ""},
	}
	for _, tt := range tests {
		r := gin.New()
		r.Use(CORS(tt.env))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "http://example.com/x", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.wantStatus {
			t.Errorf("env=%s origin=%s: status = %d, want %d", tt.env, tt.origin, w.Code, tt.wantStatus)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
			t.Errorf("env=%s origin=%s: allow-origin = %q, want %q", tt.env, tt.origin, got, tt.wantAllow)
		}
	}
}

func TestAILimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/ai", AILimit(time.Hour, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i, want := range []int{200, 200, 429} {
		if got := serve(r, http.MethodPost, "/ai", nil).Code; got != want {
			t.Errorf("request %d: status = %d, want %d", i, got, want)
		}
	}
}

func TestAILimit_PerSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := session.NewStore(kv.NewMemory(), "secret", time.Hour)
	var tokens []string
	for _, nick := range []string{"小明", "小红"} {
		tok, err := st.Save(context.Background(), session.Session{User: models.User{ID: nick, Nickname: nick}, SpaceID: "abc123xyz"})
		if err != nil {
			t.Fatal(err)
		}
		tokens = append(tokens, tok)
	}
	r := gin.New()
	r.POST("/ai", session.Middleware(st), AILimit(time.Hour, 1), func(c *gin.Context) { c.Status(http.StatusOK) })

	// 同一 IP 下两个会话各自计数
	for i, tok := range tokens {
		hdr := map[string]string{"Authorization": "Bearer " + tok}
		if got := serve(r, http.MethodPost, "/ai", hdr).Code; got != http.StatusOK {
			t.Errorf("session %d first call: status = %d, want 200", i, got)
		}
		if got := serve(r, http.MethodPost, "/ai", hdr).Code; got != http.StatusTooManyRequests {
			t.Errorf("session %d second call: status = %d, want 429", i, got)
		}
	}
}
