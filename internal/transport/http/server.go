package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-server/internal/auth"
	"github.com/vovakirdan/wirechat-server/internal/config"
	"github.com/vovakirdan/wirechat-server/internal/core"
	"github.com/vovakirdan/wirechat-server/internal/service/conversations"
)

// NewServer builds an HTTP server with websocket, REST and operational routes.
// A nil gatherer exposes the default prometheus registry.
func NewServer(hub *core.Hub, authService *auth.Service, convs *conversations.Service, gatherer prometheus.Gatherer, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), corsMiddleware(cfg.CORSOrigins))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, cfg, logger)))

	roomHandlers := NewRoomHandlers(hub.Engine(), convs, cfg.HistoryLimit, logger)
	convHandlers := NewConversationHandlers(convs, hub, logger)

	api := router.Group("/api")
	api.Use(AuthMiddleware(authService, logger))
	{
		api.GET("/rooms/:room/messages", roomHandlers.History)

		api.GET("/conversations", convHandlers.List)
		api.GET("/conversations/:id", convHandlers.Get)
		api.POST("/conversations/direct", convHandlers.OpenDirect)
		api.POST("/conversations/group", convHandlers.CreateGroup)
		api.DELETE("/conversations/:id", convHandlers.Delete)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// corsMiddleware allows browser clients on origins to call the REST API.
// An empty list allows any origin; auth is by bearer token, not cookies.
func corsMiddleware(origins []string) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return cors.New(c)
}
