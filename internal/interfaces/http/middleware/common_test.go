package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCORSRouter(cfg CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(CORSWithConfig(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	return router
}

func TestCORS_DefaultRejectsCrossOrigin(t *testing.T) {
	router := newCORSRouter(DefaultCORSConfig())

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://malicious.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "http://malicious.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWithConfig(t *testing.T) {
	cfg := CORSConfig{
		AllowOrigins:     []string{"http://localhost:3000", "https://app.example.com"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}
	router := newCORSRouter(cfg)

	tests := []struct {
		name        string
		method      string
		origin      string
		wantOrigin  string
		wantCreds   string
		wantStatus  int
		wantMethods string
	}{
		{"listed origin", http.MethodGet, "http://localhost:3000", "http://localhost:3000", "true", http.StatusOK, "GET, POST"},
		{"second listed origin", http.MethodGet, "https://app.example.com", "https://app.example.com", "true", http.StatusOK, "GET, POST"},
		{"unlisted origin", http.MethodGet, "http://evil.com", "", "", http.StatusOK, ""},
		{"same origin", http.MethodGet, "", "", "", http.StatusOK, ""},
		{"preflight", http.MethodOptions, "http://localhost:3000", "http://localhost:3000", "true", http.StatusNoContent, "GET, POST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			assert.Equal(t, tt.wantMethods, w.Header().Get("Access-Control-Allow-Methods"))
		})
	}
}

func TestCORSWithConfig_Wildcard(t *testing.T) {
	router := newCORSRouter(CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Origin", "http://anything.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	// browsers reject credentials with a wildcard origin
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
}

func TestRequestID(t *testing.T) {
	var seen string
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	t.Run("generates an ID", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Len(t, seen, 32)
		assert.Equal(t, seen, w.Header().Get(HeaderRequestID))
	})

	t.Run("keeps the client ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, "client-id-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "client-id-1", seen)
		assert.Equal(t, "client-id-1", w.Header().Get(HeaderRequestID))
	})

	t.Run("truncates oversized IDs", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("a", 500))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Len(t, seen, MaxRequestIDLength)
	})
}

func TestGenerateRequestID(t *testing.T) {
	a, b := generateRequestID(), generateRequestID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestSecureWithConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		router := gin.New()
		router.Use(SecureWithConfig(DefaultSecurityConfig()))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
		assert.Contains(t, w.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("hsts", func(t *testing.T) {
		cfg := DefaultSecurityConfig()
		cfg.HSTSEnabled = true
		cfg.HSTSMaxAge = 600
		router := gin.New()
		router.Use(SecureWithConfig(cfg))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, "max-age=600; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	})
}
