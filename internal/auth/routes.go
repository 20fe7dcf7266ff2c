package auth

import "github.com/gin-gonic/gin"

// RegisterRoutes registers Auth routes
func RegisterRoutes(r *gin.Engine, handler *Handler) {
	authGroup := r.Group("/auth")
	{
		authGroup.GET("/ping", handler.Ping)
		authGroup.GET("/me", handler.auth.Middleware(), handler.Me)
		if handler.auth.devBypass {
			authGroup.POST("/token", handler.Token)
		}
	}
}
