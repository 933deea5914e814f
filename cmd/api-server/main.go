package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"diasporahub/database"
	"diasporahub/internal/config"
	"diasporahub/internal/httpapi/handler"
	"diasporahub/internal/httpapi/middleware"
	"diasporahub/internal/httpapi/repository"
	"diasporahub/internal/httpapi/service"
	"diasporahub/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := database.ConnectDB(cfg, logger)
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}

	// Redis backs the user-directory cache; the portal runs without it
	cache := connectRedis(cfg, logger)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	chatMessageRepo := repository.NewChatMessageRepository(db)

	// Services
	authService := service.NewAuthService(userRepo, refreshTokenRepo, cfg)
	directory := service.NewUserDirectory(userRepo, cache, time.Duration(cfg.CacheTTL)*time.Second, logger)

	// expired refresh tokens accumulate forever otherwise
	if err := authService.PurgeExpiredTokens(); err != nil {
		logger.Warn("refresh token cleanup failed", "error", err.Error())
	}
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := authService.PurgeExpiredTokens(); err != nil {
				logger.Warn("refresh token cleanup failed", "error", err.Error())
			}
		}
	}()

	// Chat relay: the registry is owned here and injected, never a global
	registry := websocket.NewRegistry(logger)
	hub := websocket.NewHub(registry, logger)
	relay := websocket.NewRelay(registry, hub, chatMessageRepo, directory, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(authService, int64(cfg.AccessTokenTTL.Seconds()))
	chatHandler := handler.NewChatHandler(chatMessageRepo, directory, registry, relay)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.CORSOrigins))

	r.GET("/check-conn", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": registry.Count()})
	})

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken)
	}

	chat := r.Group("/api/chat", middleware.AuthMiddleware(authService))
	{
		chat.GET("/messages/:roomId", chatHandler.GetMessages)
		chat.POST("/messages", chatHandler.PostMessage)
		chat.GET("/users/online", chatHandler.GetOnlineUsers)
		chat.GET("/users/me/messages", chatHandler.GetMyMessages)
	}

	r.GET("/ws", middleware.AuthMiddleware(authService), websocket.WSHandler(relay, cfg))

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	logger.Info("server starting", "addr", addr, "env", cfg.GoEnv)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func connectRedis(cfg *config.Config, logger *slog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid REDIS_URL, directory cache disabled", "error", err.Error())
		return nil
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	logger.Info("directory cache enabled", "redis", opts.Addr)
	return client
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
