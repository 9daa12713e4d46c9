// Package http declares what the router needs from the composition root and
// how modules mount their routes.
package http

import (
	"context"

	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs /api/ready.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is everything router.New serves.
type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Modules []Module
}

// Module mounts one area of the API.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext holds the /api/v1 groups a module can mount on. Every group
// but V1 requires a valid access token and is rate limited per client.
type RouterContext struct {
	V1        *gin.RouterGroup
	Protected *gin.RouterGroup
	// Admin is /admin, limited to the admin role.
	Admin *gin.RouterGroup
	// Agent is /agent-user, limited to the agent group and admins.
	Agent *gin.RouterGroup
}
