package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/sender"
	"webhook-dispatcher/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxIncomingBody bounds the body read before the signature is checked.
const maxIncomingBody = 1 << 20

// receivedBatch is the body a dispatcher posts to a webhook.
type receivedBatch struct {
	ID            string                `json:"Id"`
	Attempt       int                   `json:"Attempt"`
	Properties    map[string]any        `json:"Properties"`
	Notifications []models.Notification `json:"Notifications"`
}

// ReceiverHandler accepts signed webhooks addressed to this service.
// Each receiver name has its own shared secret.
type ReceiverHandler struct {
	logger  *zap.Logger
	secrets map[string]string
}

// NewReceiverHandler registers secrets by receiver name, ignoring case.
func NewReceiverHandler(logger *zap.Logger, secrets map[string]string) *ReceiverHandler {
	folded := make(map[string]string, len(secrets))
	for name, secret := range secrets {
		folded[strings.ToLower(name)] = secret
	}
	return &ReceiverHandler{logger: logger, secrets: folded}
}

func (h *ReceiverHandler) secret(c *gin.Context) (string, string, bool) {
	receiver := strings.ToLower(c.Param("receiver"))
	secret, ok := h.secrets[receiver]
	return receiver, secret, ok
}

// Echo answers the address verification handshake by returning the echo
// query value as the body.
func (h *ReceiverHandler) Echo(c *gin.Context) {
	if _, _, ok := h.secret(c); !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Unknown receiver"})
		return
	}
	echo := c.Query("echo")
	if echo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing echo parameter"})
		return
	}
	c.String(http.StatusOK, echo)
}

// Receive verifies the ms-signature header over the raw body before
// decoding it.
func (h *ReceiverHandler) Receive(c *gin.Context) {
	receiver, secret, ok := h.secret(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "Unknown receiver"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIncomingBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Could not read request body"})
		return
	}
	if len(body) > maxIncomingBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "Request body too large"})
		return
	}

	if err := sender.VerifySignature(body, c.GetHeader(sender.SignatureHeader), secret); err != nil {
		metrics.IncomingWebhooks.WithLabelValues(receiver, "rejected").Inc()
		h.logger.Warn("Rejected incoming webhook",
			zap.String("receiver", receiver),
			zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	var batch receivedBatch
	if err := json.Unmarshal(body, &batch); err != nil {
		metrics.IncomingWebhooks.WithLabelValues(receiver, "invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid JSON payload"})
		return
	}

	metrics.IncomingWebhooks.WithLabelValues(receiver, "accepted").Inc()
	h.logger.Info("Received webhook",
		zap.String("receiver", receiver),
		zap.String("id", batch.ID),
		zap.Int("attempt", batch.Attempt),
		zap.Strings("actions", models.Actions(batch.Notifications)))

	c.JSON(http.StatusOK, gin.H{"id": batch.ID, "attempt": batch.Attempt, "count": len(batch.Notifications)})
}
