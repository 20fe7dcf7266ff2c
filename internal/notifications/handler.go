package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"review-portal/review-portal-backend/internal/auth"
	"review-portal/review-portal-backend/internal/notifications/websocket"
)

type Handler struct {
	service   *Service
	wsManager *websocket.Manager
	logger    *zap.Logger
}

func NewHandler(service *Service, wsManager *websocket.Manager, logger *zap.Logger) *Handler {
	return &Handler{service: service, wsManager: wsManager, logger: logger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	n := rg.Group("/notifications")
	{
		n.GET("", h.Inbox)
		n.POST("/:id/read", h.MarkRead)
		n.GET("/ws", h.Connect)
		n.GET("/sessions", h.Sessions)
		n.GET("/preferences", h.GetPreferences)
		n.PUT("/preferences", h.UpdatePreferences)
	}
}

func (h *Handler) Inbox(c *gin.Context) {
	actor, ok := auth.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	unread := c.Query("unread") == "true"

	items, err := h.service.Inbox(c.Request.Context(), actor.ID, unread, limit)
	if err != nil {
		h.logger.Error("Failed to load inbox", zap.String("recipient_id", actor.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) MarkRead(c *gin.Context) {
	actor, ok := auth.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), id, actor.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Connect upgrades to a websocket bound to the authenticated employee
func (h *Handler) Connect(c *gin.Context) {
	actor, ok := auth.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if _, err := h.wsManager.HandleConnection(c.Writer, c.Request, actor.ID); err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("user_id", actor.ID), zap.Error(err))
	}
}

// Sessions lists the caller's open websocket sessions
func (h *Handler) Sessions(c *gin.Context) {
	actor, ok := auth.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, h.wsManager.GetConnectionInfo(actor.ID))
}

func (h *Handler) GetPreferences(c *gin.Context) {
	actor, ok := auth.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	prefs, err := h.service.Preferences(c.Request.Context(), actor.ID)
	if err != nil {
		h.logger.Error("Failed to load preferences", zap.String("user_id", actor.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	actor, ok := auth.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var payload NotificationPreferences
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload.UserID = actor.ID
	prefs, err := h.service.UpdatePreferences(c.Request.Context(), &payload)
	if err != nil {
		if errors.Is(err, ErrInvalidPreference) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to save preferences", zap.String("user_id", actor.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}
