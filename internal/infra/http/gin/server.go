package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rentalhub/internal/infra/config"
	"rentalhub/internal/infra/obs"
)

type ChatHTTP interface {
	CreateConversation(c *gin.Context)
	ListConversations(c *gin.Context)
	GetConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	Archive(c *gin.Context)
	Unarchive(c *gin.Context)
	Block(c *gin.Context)
	DeleteMessage(c *gin.Context)
}

type Handlers struct {
	Chat           ChatHTTP
	Realtime       http.Handler
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}
	router.NoRoute(func(c *gin.Context) {
		respondMessage(c, http.StatusNotFound, "route not found")
	})

	api := router.Group("/api/v1")
	if h.Realtime != nil {
		api.GET("/ws", gin.WrapH(h.Realtime))
	}
	if h.Chat != nil {
		conv := api.Group("/conversations")
		conv.POST("", h.Chat.CreateConversation)
		conv.GET("", h.Chat.ListConversations)
		conv.GET("/:id", h.Chat.GetConversation)
		conv.GET("/:id/messages", h.Chat.ListMessages)
		conv.POST("/:id/messages", h.Chat.SendMessage)
		conv.DELETE("/:id/messages/:messageId", h.Chat.DeleteMessage)
		conv.POST("/:id/read", h.Chat.MarkRead)
		conv.POST("/:id/archive", h.Chat.Archive)
		conv.POST("/:id/unarchive", h.Chat.Unarchive)
		conv.POST("/:id/block", h.Chat.Block)
	}
	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "Idempotency-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
