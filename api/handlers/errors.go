package handlers

import (
	"errors"
	"net/http"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/user"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// writeError maps domain errors onto HTTP statuses. Rejected registrations
// carry the failing component so clients can tell the checks apart.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var rerr *models.RegistrarError
	var verr *models.ValidationError

	switch {
	case errors.As(err, &rerr):
		c.JSON(http.StatusBadRequest, gin.H{"message": rerr.Error(), "component": rerr.Registrar})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"message": verr.Message, "component": verr.Component})
	case errors.Is(err, user.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": err.Error()})
	default:
		logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
	}
}

func badRequest(c *gin.Context, component, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message, "component": component})
}
