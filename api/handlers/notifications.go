package handlers

import (
	"context"
	"net/http"
	"strings"

	"webhook-dispatcher/api/middleware"
	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/notify"
	"webhook-dispatcher/internal/user"
	"webhook-dispatcher/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Notifier fans notifications out to matching webhooks, implemented by
// notify.Manager.
type Notifier interface {
	NotifyUser(ctx context.Context, userID string, notifications []models.Notification, predicate notify.Predicate) (int, error)
	NotifyAll(ctx context.Context, notifications []models.Notification, predicate notify.Predicate) (int, error)
}

type notifyRequest struct {
	Notifications []models.Notification `json:"notifications"`
	// Condition is an optional boolean expression over webhook and user.
	Condition string `json:"condition"`
}

type NotificationHandler struct {
	logger      *zap.Logger
	notifier    Notifier
	resolver    user.Resolver
	rateLimiter *RateLimiter
	admins      map[string]bool
}

// NewNotificationHandler builds the handler. Only clients listed in admins
// may notify every user.
func NewNotificationHandler(logger *zap.Logger, notifier Notifier, resolver user.Resolver, rateLimiter *RateLimiter, admins []string) *NotificationHandler {
	h := &NotificationHandler{
		logger:      logger,
		notifier:    notifier,
		resolver:    resolver,
		rateLimiter: rateLimiter,
		admins:      make(map[string]bool, len(admins)),
	}
	for _, a := range admins {
		h.admins[strings.ToLower(a)] = true
	}
	return h
}

// Notify sends the batch to the caller's own webhooks.
func (h *NotificationHandler) Notify(c *gin.Context) {
	userID, ok := resolveUser(c, h.logger, h.resolver)
	if !ok {
		return
	}
	req, predicate, ok := h.bind(c)
	if !ok {
		return
	}
	if !h.rateLimiter.AllowRequest(userID, len(req.Notifications)) {
		metrics.RateLimitExceeded.WithLabelValues(userID, "daily_notifications").Inc()
		h.logger.Warn("Daily notification limit exceeded", zap.String("user", userID))
		c.JSON(http.StatusTooManyRequests, gin.H{"message": "Daily notification limit exceeded"})
		return
	}

	count, err := h.notifier.NotifyUser(c.Request.Context(), userID, req.Notifications, predicate)
	if err != nil {
		h.rateLimiter.Refund(userID, len(req.Notifications))
	}
	h.respond(c, count, err)
}

// NotifyAll sends the batch to every user's matching webhooks.
func (h *NotificationHandler) NotifyAll(c *gin.Context) {
	if !h.admins[strings.ToLower(c.GetString(middleware.ClientIDKey))] {
		c.JSON(http.StatusForbidden, gin.H{"message": "Client may not notify all users"})
		return
	}
	req, predicate, ok := h.bind(c)
	if !ok {
		return
	}

	count, err := h.notifier.NotifyAll(c.Request.Context(), req.Notifications, predicate)
	h.respond(c, count, err)
}

func (h *NotificationHandler) bind(c *gin.Context) (notifyRequest, notify.Predicate, bool) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "NotificationRequest", "Invalid JSON payload")
		return req, nil, false
	}
	predicate, err := notify.CompilePredicate(req.Condition)
	if err != nil {
		badRequest(c, "Condition", err.Error())
		return req, nil, false
	}
	return req, predicate, true
}

func (h *NotificationHandler) respond(c *gin.Context, count int, err error) {
	if err != nil {
		h.logger.Error("Failed to dispatch notifications",
			zap.Int("matched", count),
			zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Notifications could not be queued", "count": count})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}
