package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"review-portal/review-portal-backend/internal/app"
	"review-portal/review-portal-backend/internal/auth"
	"review-portal/review-portal-backend/internal/config"
	"review-portal/review-portal-backend/internal/documents"
	"review-portal/review-portal-backend/internal/notifications"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootstrap, _ := zap.NewProduction()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	ctx := context.Background()
	portal, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer portal.Close()

	authenticator := auth.NewAuthenticator(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.DevBypass)
	if cfg.Security.DevBypass {
		logger.Warn("Authentication dev bypass enabled", zap.String("header", "X-User-Sub"))
	}

	documentsHandler := documents.NewHandler(portal.Documents, logger)
	notificationsHandler := notifications.NewHandler(portal.Notifications, portal.WSManager, logger)

	// Setup Router
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors(cfg.Server.AllowedOrigins))

	auth.RegisterRoutes(router, auth.NewHandler(authenticator, cfg.Security.TokenTTL.Duration))

	api := router.Group("/api/v1")
	api.Use(authenticator.Middleware())
	{
		documentsHandler.RegisterRoutes(api)
		notificationsHandler.RegisterRoutes(api)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":                "healthy",
			"timestamp":             time.Now(),
			"websocket_connections": portal.WSManager.GetConnectionCount(),
		})
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	if cfg.Workers.EmbedReminders {
		scheduler := documents.NewReminderScheduler(portal.Documents, logger,
			cfg.Workers.ReminderSchedule, cfg.Workers.ReminderTimeout.Duration)
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatal("Failed to start reminder scheduler", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	logger.Info("Server started",
		zap.String("addr", srv.Addr),
		zap.String("repository", cfg.Repository.Backend),
		zap.String("storage", cfg.Storage.Backend))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}

func newLogger(cfg *config.Config) *zap.Logger {
	var zcfg zap.Config
	if cfg.Server.Mode == gin.ReleaseMode {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		zcfg.Level = level
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// cors mirrors an allowed Origin back, or allows any when none are configured
func cors(allowed []string) gin.HandlerFunc {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case len(origins) == 0:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origins[origin]:
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", "Content-Length", "Accept-Encoding", "Authorization",
			"If-Match", "X-User-Sub", "accept", "origin", "Cache-Control", "X-Requested-With",
		}, ", "))
		c.Writer.Header().Set("Access-Control-Expose-Headers", "ETag, Content-Disposition")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
