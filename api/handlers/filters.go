package handlers

import (
	"net/http"

	"webhook-dispatcher/internal/filters"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FilterHandler struct {
	logger    *zap.Logger
	catalogue *filters.Manager
}

func NewFilterHandler(logger *zap.Logger, catalogue *filters.Manager) *FilterHandler {
	return &FilterHandler{logger: logger, catalogue: catalogue}
}

// List returns the filters clients may register for. Private filters are
// never listed.
func (h *FilterHandler) List(c *gin.Context) {
	fs, err := h.catalogue.VisibleFilters(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if fs == nil {
		fs = []filters.WebHookFilter{}
	}
	c.JSON(http.StatusOK, fs)
}
