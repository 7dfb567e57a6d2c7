package handlers

import (
	"context"
	"net/http"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/user"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Registrations is the registration API the handler drives, implemented
// by registration.Manager.
type Registrations interface {
	GetWebHooks(ctx context.Context, userID string) ([]*models.WebHook, error)
	Lookup(ctx context.Context, userID, id string) (*models.WebHook, error)
	Register(ctx context.Context, r *http.Request, userID string, w *models.WebHook) (*models.WebHook, error)
	Update(ctx context.Context, r *http.Request, userID, id string, w *models.WebHook) (*models.WebHook, error)
	Delete(ctx context.Context, userID, id string) error
	DeleteAll(ctx context.Context, userID string) error
}

type RegistrationHandler struct {
	logger        *zap.Logger
	registrations Registrations
	resolver      user.Resolver
}

func NewRegistrationHandler(logger *zap.Logger, registrations Registrations, resolver user.Resolver) *RegistrationHandler {
	return &RegistrationHandler{
		logger:        logger,
		registrations: registrations,
		resolver:      resolver,
	}
}

func (h *RegistrationHandler) List(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	hooks, err := h.registrations.GetWebHooks(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if hooks == nil {
		hooks = []*models.WebHook{}
	}
	c.JSON(http.StatusOK, hooks)
}

func (h *RegistrationHandler) Get(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	w, err := h.registrations.Lookup(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *RegistrationHandler) Create(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var w models.WebHook
	if err := c.ShouldBindJSON(&w); err != nil {
		badRequest(c, "RegistrationRequest", "Invalid JSON payload")
		return
	}

	out, err := h.registrations.Register(c.Request.Context(), c.Request, userID, &w)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Header("Location", c.Request.URL.Path+"/"+out.ID)
	c.JSON(http.StatusCreated, out)
}

func (h *RegistrationHandler) Update(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var w models.WebHook
	if err := c.ShouldBindJSON(&w); err != nil {
		badRequest(c, "RegistrationRequest", "Invalid JSON payload")
		return
	}

	out, err := h.registrations.Update(c.Request.Context(), c.Request, userID, c.Param("id"), &w)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *RegistrationHandler) Delete(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.registrations.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RegistrationHandler) DeleteAll(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	if err := h.registrations.DeleteAll(c.Request.Context(), userID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RegistrationHandler) userID(c *gin.Context) (string, bool) {
	return resolveUser(c, h.logger, h.resolver)
}

// resolveUser maps the request principal to a user id, writing the error
// response when it cannot.
func resolveUser(c *gin.Context, logger *zap.Logger, resolver user.Resolver) (string, bool) {
	id, err := resolver.GetUserID(c.Request.Context(), user.FromContext(c.Request.Context()))
	if err != nil {
		writeError(c, logger, err)
		return "", false
	}
	return id, true
}

