package router

import (
	"net/http"

	"webhook-dispatcher/api/handlers"
	"webhook-dispatcher/api/middleware"
	"webhook-dispatcher/config"
	"webhook-dispatcher/internal/filters"
	"webhook-dispatcher/internal/user"
	"webhook-dispatcher/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP API is built on.
type Dependencies struct {
	Registrations handlers.Registrations
	Notifier      handlers.Notifier
	Filters       *filters.Manager
	RateLimiter   *handlers.RateLimiter
	Resolver      user.Resolver
}

func Setup(logger *logger.Logger, deps Dependencies, cfg *config.Config) *gin.Engine {
	log := logger.Component("http")
	router := gin.New()
	router.Use(gin.Recovery())

	// Initialize security middleware
	security := middleware.NewSecurityMiddleware(
		log,
		cfg.Security.APIKeys,
		cfg.Security.APIKeyHeader,
	)
	if rl := cfg.Security.RateLimit; rl.Burst > 0 {
		security.WithRateLimit(rl.Burst, rl.PerSecond)
	}

	// Apply global middleware
	router.Use(security.CORS())

	// Health check endpoint (no authentication required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint for Prometheus (no authentication required)
	metricsPath := cfg.Monitoring.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	router.GET(metricsPath, gin.WrapH(promhttp.Handler()))

	resolver := deps.Resolver
	if resolver == nil {
		resolver = user.NameResolver{}
	}
	registrations := handlers.NewRegistrationHandler(log, deps.Registrations, resolver)
	notifications := handlers.NewNotificationHandler(log, deps.Notifier, resolver, deps.RateLimiter, cfg.Security.Admins)
	filterList := handlers.NewFilterHandler(log, deps.Filters)
	receiver := handlers.NewReceiverHandler(log, cfg.Security.Receivers)

	api := router.Group("/api/webhooks")

	// Signed callbacks authenticate through ms-signature, not API keys
	api.GET("/incoming/:receiver", receiver.Echo)
	api.POST("/incoming/:receiver", receiver.Receive)

	authed := api.Group("", security.Authenticate(), security.RateLimit())
	authed.GET("/filters", filterList.List)

	regs := authed.Group("/registrations")
	regs.GET("", registrations.List)
	regs.POST("", security.ValidatePayload(), registrations.Create)
	regs.DELETE("", registrations.DeleteAll)
	regs.GET("/:id", registrations.Get)
	regs.PUT("/:id", security.ValidatePayload(), registrations.Update)
	regs.DELETE("/:id", registrations.Delete)

	authed.POST("/notifications", security.ValidatePayload(), notifications.Notify)
	authed.POST("/notifications/all", security.ValidatePayload(), notifications.NotifyAll)

	log.Info("Router configured with security middleware",
		zap.String("api_key_header", cfg.Security.APIKeyHeader),
		zap.Int("configured_clients", len(cfg.Security.APIKeys)),
		zap.Int("configured_receivers", len(cfg.Security.Receivers)),
	)

	return router
}
