package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"
	"time"

	"webhook-dispatcher/internal/user"
	"webhook-dispatcher/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ClientIDKey is the gin context key holding the authenticated client id.
const ClientIDKey = "clientID"

type SecurityMiddleware struct {
	logger       *zap.Logger
	apiKeys      map[string]string // clientID -> apiKey
	apiKeyHeader string

	// token bucket settings for RateLimit
	burst      float64
	refillRate float64
}

func NewSecurityMiddleware(logger *zap.Logger, apiKeys map[string]string, apiKeyHeader string) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger:       logger,
		apiKeys:      apiKeys,
		apiKeyHeader: apiKeyHeader,
		burst:        10,
		refillRate:   1,
	}
}

// WithRateLimit overrides the per-client burst size and refill rate in
// tokens per second.
func (m *SecurityMiddleware) WithRateLimit(burst, perSecond float64) *SecurityMiddleware {
	m.burst = burst
	m.refillRate = perSecond
	return m
}

// Authenticate resolves the API key to a client id and attaches an
// authenticated user.Principal to the request context.
func (m *SecurityMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(m.apiKeyHeader)
		if apiKey == "" {
			m.logger.Warn("Missing API key", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing API key"})
			c.Abort()
			return
		}

		clientID := m.validateAPIKey(apiKey)
		if clientID == "" {
			prefixLen := len(apiKey)
			if prefixLen > 8 {
				prefixLen = 8
			}
			m.logger.Warn("Invalid API key", zap.String("ip", c.ClientIP()), zap.String("api_key_prefix", apiKey[:prefixLen]))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Set(ClientIDKey, clientID)
		principal := user.Principal{Name: clientID, Authenticated: true}
		c.Request = c.Request.WithContext(user.WithPrincipal(c.Request.Context(), principal))
		m.logger.Debug("Successfully authenticated client", zap.String("client_id", clientID))
		c.Next()
	}
}

func (m *SecurityMiddleware) CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, GET, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, "+m.apiKeyHeader)
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RateLimit applies a token bucket per authenticated client. It must run
// after Authenticate.
func (m *SecurityMiddleware) RateLimit() gin.HandlerFunc {
	type bucket struct {
		tokens     float64
		lastRefill time.Time
	}

	var mu sync.Mutex
	buckets := make(map[string]*bucket)

	return func(c *gin.Context) {
		id := c.GetString(ClientIDKey)
		if id == "" {
			c.Next()
			return
		}

		mu.Lock()
		b, exists := buckets[id]
		if !exists {
			b = &bucket{
				tokens:     m.burst,
				lastRefill: time.Now(),
			}
			buckets[id] = b
		}

		// Refill tokens
		now := time.Now()
		b.tokens = min(m.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*m.refillRate)
		b.lastRefill = now

		allowed := b.tokens >= 1
		if allowed {
			b.tokens--
		}
		mu.Unlock()

		if !allowed {
			metrics.RateLimitExceeded.WithLabelValues(id, "request_rate").Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (m *SecurityMiddleware) ValidatePayload() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Validate content type
		if !strings.HasPrefix(c.GetHeader("Content-Type"), "application/json") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "Content-Type must be application/json"})
			c.Abort()
			return
		}

		// Continue only if there's a body
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Empty request body"})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (m *SecurityMiddleware) validateAPIKey(apiKey string) string {
	// Find client ID by API key
	for clientID, key := range m.apiKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1 {
			return clientID
		}
	}
	return ""
}
