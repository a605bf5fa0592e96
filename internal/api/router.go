package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/lastseen/internal/api/handlers"
	"github.com/your-org/lastseen/internal/api/ws"
	"github.com/your-org/lastseen/internal/auth"
)

type RouterConfig struct {
	Images   handlers.ImageService
	Users    handlers.UserReader
	ImageURL func(id uuid.UUID) string
	Verifier *auth.Verifier
	// Hub is optional; without it no live events are sent.
	Hub            *ws.Hub
	Checks         map[string]handlers.Check
	AllowedOrigins []string
	MaxUploadBytes int64
	DevMode        bool
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var notifier handlers.Notifier
	if cfg.Hub != nil {
		notifier = cfg.Hub
	}
	imageH := handlers.NewImageHandler(cfg.Images, notifier, cfg.MaxUploadBytes, cfg.DevMode)
	userH := handlers.NewUserHandler(cfg.Users, cfg.ImageURL, cfg.DevMode)

	v1 := r.Group("/v1")

	// Image bytes are public so <img> tags work without headers.
	v1.GET("/images/:id", imageH.Get)
	v1.HEAD("/images/:id", imageH.Get)

	authed := v1.Group("")
	authed.Use(cfg.Verifier.Middleware())

	authed.POST("/images", imageH.Upload)
	authed.GET("/images/my", imageH.ListMine)
	authed.GET("/images/locations", imageH.ListLocations)
	authed.DELETE("/images/:id", imageH.Delete)

	authed.GET("/users/:id/last-seen", userH.LastSeen)

	if cfg.Hub != nil {
		authed.GET("/ws", cfg.Hub.HandleWS)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = origins
	}
	return c
}
