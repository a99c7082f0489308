package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/olympiad/exam-portal/internal/config"
	"github.com/olympiad/exam-portal/internal/response"
	"github.com/olympiad/exam-portal/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func errorCode(t *testing.T, body []byte) response.ErrCode {
	t.Helper()
	var env response.Response
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

// ─── Rate limiting ───

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	r := gin.New()
	r.POST("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("10.0.0.1"); w.Code != http.StatusNoContent {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}
	w := send("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if code := errorCode(t, w.Body.Bytes()); code != response.ErrRateLimitExceeded {
		t.Fatalf("error code %q", code)
	}
	if w := send("10.0.0.2"); w.Code != http.StatusNoContent {
		t.Fatalf("other IP limited: %d", w.Code)
	}
}

// ─── Brotli ───

func TestBrotliCompressesLargeBodies(t *testing.T) {
	large := strings.Repeat("exam ", 1000)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/large", func(c *gin.Context) { c.String(http.StatusOK, large) })
	r.GET("/small", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/large", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("expected br encoding, headers %v", w.Header())
	}
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != large {
		t.Fatalf("decoded body mismatch (%d bytes)", len(decoded))
	}

	req = httptest.NewRequest(http.MethodGet, "/small", nil)
	req.Header.Set("Accept-Encoding", "br")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get("Content-Encoding") != "" || w.Body.String() != "ok" {
		t.Fatalf("small body should pass through, got %q %v", w.Body.String(), w.Header())
	}
}

func TestBrotliSkipsWithoutAcceptEncoding(t *testing.T) {
	large := strings.Repeat("x", 4096)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, large) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("Content-Encoding") != "" || w.Body.Len() != len(large) {
		t.Fatalf("unexpected compression: %v", w.Header())
	}
}

// ─── JWT ───

func TestRequireStudentJWT(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s3cret", JWTExpiry: time.Hour}, nil)

	sign := func(claims service.Claims) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		if err != nil {
			t.Fatal(err)
		}
		return tok
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	student := sign(service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "j1", ExpiresAt: exp},
		TokenType:        service.TokenTypeStudent,
		UserID:           9,
	})
	other := sign(service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "j2", ExpiresAt: exp},
		TokenType:        "admin",
		UserID:           1,
	})
	expired := sign(service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ID: "j3", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		TokenType:        service.TokenTypeStudent,
		UserID:           9,
	})

	r := gin.New()
	r.GET("/me", RequireStudentJWT(auth), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetClaims(c).UserID})
	})

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  response.ErrCode
	}{
		{"missing", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"not bearer", "Basic abc", http.StatusUnauthorized, response.ErrTokenRequired},
		{"malformed", "Bearer nope", http.StatusUnauthorized, response.ErrTokenInvalid},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, response.ErrTokenExpired},
		{"wrong audience", "Bearer " + other, http.StatusForbidden, response.ErrStudentAccessOnly},
		{"student", "bearer " + student, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantErr != "" {
				if code := errorCode(t, w.Body.Bytes()); code != tt.wantErr {
					t.Fatalf("error code %q, want %q", code, tt.wantErr)
				}
				return
			}
			if !strings.Contains(w.Body.String(), `"user_id":9`) {
				t.Fatalf("claims not set: %s", w.Body.String())
			}
		})
	}
}

func TestRequireStudentWSAuthReadsQuery(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "s3cret"}, nil)
	r := gin.New()
	r.GET("/ws", RequireStudentWSAuth(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		TokenType: service.TokenTypeStudent,
		UserID:    3,
	}).SignedString([]byte("s3cret"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+tok, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with query token, got %d", w.Code)
	}
}

func TestSessionCheckNeedsClaims(t *testing.T) {
	auth := service.NewAuthService(&config.Config{}, nil)
	r := gin.New()
	r.GET("/x", CheckSingleDeviceSession(auth), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCacheControl(t *testing.T) {
	r := gin.New()
	r.GET("/q", CacheControl(60), func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/q", nil))
	if got := w.Header().Get("Cache-Control"); got != "private, max-age=60" {
		t.Fatalf("Cache-Control = %q", got)
	}
}
