package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestHashPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid password", "abc123", false},
		{"empty password", "", false},
		{"unicode password", "密码❤️", false},
		{"72 bytes", strings.Repeat("a", 72), false},
		{"73 bytes", strings.Repeat("a", 73), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := HashPassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("HashPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && hash == "" {
				t.Error("HashPassword() returned empty hash")
			}
			if tt.wantErr && !errors.Is(err, ErrPasswordTooLong) {
				t.Errorf("HashPassword() error = %v, want ErrPasswordTooLong", err)
			}
		})
	}
}

func TestHashPassword_DifferentHashes(t *testing.T) {
	hash1, _ := HashPassword("abc123")
	hash2, _ := HashPassword("abc123")

	if hash1 == hash2 {
		t.Error("HashPassword() should produce different hashes for same password")
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "abc123"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	tests := []struct {
		name     string
		hash     string
		password string
		want     bool
	}{
		{"correct password", hash, password, true},
		{"wrong password", hash, "wrong", false},
		{"case differs", hash, "ABC123", false},
		{"trailing space", hash, "abc123 ", false},
		{"empty password", hash, "", false},
		{"invalid hash", "invalidhash", password, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.hash, tt.password); got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSessionToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateSessionToken("sid-1", "space42x", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateSessionToken() error = %v", err)
	}
	noExpiry, err := GenerateSessionToken("sid-2", "space42x", secret, 0)
	if err != nil {
		t.Fatalf("GenerateSessionToken() error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		secret  string
		wantSID string
		wantErr bool
	}{
		{"valid token", token, secret, "sid-1", false},
		{"no expiry", noExpiry, secret, "sid-2", false},
		{"wrong secret", token, "wrong-secret", "", true},
		{"invalid token", "invalid.token.here", secret, "", true},
		{"empty token", "", secret, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ParseSessionToken(tt.token, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSessionToken() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if claims.SessionID != tt.wantSID {
					t.Errorf("ParseSessionToken() SessionID = %v, want %v", claims.SessionID, tt.wantSID)
				}
				if claims.SpaceID != "space42x" {
					t.Errorf("ParseSessionToken() SpaceID = %v, want space42x", claims.SpaceID)
				}
			}
		})
	}
}

func TestParseSessionToken_Expired(t *testing.T) {
	secret := "test-secret"
	past := time.Now().Add(-time.Hour)
	claims := Claims{
		SessionID: "sid",
		SpaceID:   "spc",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	got, err := ParseSessionToken(token, secret)
	if err == nil {
		t.Error("ParseSessionToken() should return error for expired token")
	}
	if got != nil {
		t.Error("ParseSessionToken() should return nil claims for expired token")
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("ParseSessionToken() error = %v, want ErrTokenExpired", err)
	}

	// 跳过有效期校验时仍然验证签名
	got, err = ParseSessionToken(token, secret, jwt.WithoutClaimsValidation())
	if err != nil || got == nil || got.SessionID != "sid" {
		t.Errorf("ParseSessionToken(WithoutClaimsValidation) = %+v, %v", got, err)
	}
	if _, err := ParseSessionToken(token, "other", jwt.WithoutClaimsValidation()); err == nil {
		t.Error("ParseSessionToken() should still reject a bad signature")
	}
}

func TestParseSessionToken_RejectsOtherAlgorithms(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{SessionID: "sid"}).SignedString([]byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseSessionToken(token, "s"); err == nil {
		t.Error("ParseSessionToken() should reject HS512 tokens")
	}
}

func TestNewSessionID(t *testing.T) {
	id1, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID() error = %v", err)
	}
	id2, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID() error = %v", err)
	}

	if id1 == id2 {
		t.Error("NewSessionID() should generate unique ids")
	}
	if len(id1) != 64 {
		t.Errorf("NewSessionID() length = %d, want 64", len(id1))
	}
}
