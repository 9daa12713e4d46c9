package router

import (
	"context"
	"net/http"
	"time"

	apphttp "bbys_backend/internal/http"
	"bbys_backend/internal/http/middleware"
	"bbys_backend/platform/httpkit"
	"bbys_backend/platform/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	requestsPerSecond = 20
	requestBurst      = 40
	readyTimeout      = 2 * time.Second
)

// New builds the engine: shared middleware, health and metrics endpoints,
// the /api/v1 groups and every module's routes.
func New(app *apphttp.App) *gin.Engine {
	cfg := app.Config

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(httpkit.RequestLogger(app.Logger))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(corsConfig(cfg)))

	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/ready", func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	limiter := httpkit.NewIPRateLimiter(rate.Limit(requestsPerSecond), requestBurst, app.Logger)
	auth := httpkit.AuthRequired(cfg)

	v1 := engine.Group("/api/v1")
	protected := v1.Group("", auth, limiter.RateLimit())
	rc := &apphttp.RouterContext{
		V1:        v1,
		Protected: protected,
		Admin:     protected.Group("/admin", httpkit.RequireRole(httpkit.RoleAdmin)),
		Agent:     protected.Group("/agent-user", httpkit.RequireGroup(cfg.GetAgentGroup())),
	}

	for _, m := range app.Modules {
		m.RegisterRoutes(rc)
		app.Logger.Info("module registered", "module", m.Name())
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID},
		ExposeHeaders:    []string{middleware.HeaderRequestID},
		AllowCredentials: cfg.GetCORSAllowCreds(),
		MaxAge:           12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
	} else {
		c.AllowOrigins = cfg.GetCORSOrigins()
	}
	return c
}
