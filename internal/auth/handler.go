package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	auth     *Authenticator
	tokenTTL time.Duration
}

func NewHandler(auth *Authenticator, tokenTTL time.Duration) *Handler {
	return &Handler{auth: auth, tokenTTL: tokenTTL}
}

// Ping endpoint
func (h *Handler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "auth service alive!"})
}

type tokenRequest struct {
	EmployeeID string `json:"employee_id" binding:"required"`
	Name       string `json:"name"`
	Role       string `json:"role"`
}

// Token issues a signed token for an employee. Only mounted with the dev bypass on.
func (h *Handler) Token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, err := h.auth.IssueToken(Actor{ID: req.EmployeeID, Name: req.Name, Role: req.Role}, h.tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokenTTL.Seconds()),
	})
}

func (h *Handler) Me(c *gin.Context) {
	actor, ok := CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, actor)
}
