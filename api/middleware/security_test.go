package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"webhook-dispatcher/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestEngine(m *SecurityMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(m.Authenticate(), m.RateLimit())
	r.GET("/whoami", func(c *gin.Context) {
		p := user.FromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"name": p.Name, "authenticated": p.Authenticated})
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	m := NewSecurityMiddleware(zap.NewNop(), map[string]string{"alice": "alice-key"}, "X-API-Key")
	r := newTestEngine(m)

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantBody   string
	}{
		{name: "missing key", wantStatus: http.StatusUnauthorized, wantBody: "Missing API key"},
		{name: "invalid key", key: "nope", wantStatus: http.StatusUnauthorized, wantBody: "Invalid API key"},
		{name: "valid key", key: "alice-key", wantStatus: http.StatusOK, wantBody: `"name":"alice"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
		})
	}
}

func TestRateLimitExhaustsBurst(t *testing.T) {
	m := NewSecurityMiddleware(zap.NewNop(), map[string]string{"alice": "alice-key"}, "X-API-Key").
		WithRateLimit(2, 0)
	r := newTestEngine(m)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-API-Key", "alice-key")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestValidatePayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewSecurityMiddleware(zap.NewNop(), nil, "X-API-Key")
	r := gin.New()
	r.POST("/", m.ValidatePayload(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewSecurityMiddleware(zap.NewNop(), nil, "X-API-Key")
	r := gin.New()
	r.Use(m.CORS())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}
