package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/akorchagin/foliochat/internal/auth"
	"github.com/akorchagin/foliochat/internal/config"
	"github.com/akorchagin/foliochat/internal/core"
)

// NewServer builds the HTTP server: auth REST endpoints, the WebSocket
// chat endpoint, health check, and optionally the built SPA assets.
func NewServer(hub *core.Hub, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	api := NewAPIHandlers(authService, logger)
	router.POST("/api/register", api.Register)
	router.POST("/api/login", api.Login)
	router.GET("/api/me", AuthMiddleware(authService, logger), api.Me)

	router.GET("/healthz", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, authService, logger)))

	if cfg.StaticDir != "" {
		router.Static("/app", cfg.StaticDir)
		router.GET("/", func(c *gin.Context) {
			c.Redirect(stdhttp.StatusFound, "/app/")
		})
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
