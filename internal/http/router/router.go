package router

import (
	"context"
	"net/http"
	"time"

	apphttp "leaddesk_backend/internal/http"
	"leaddesk_backend/platform/httpkit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// New builds the gin engine, applies global middleware and lets every module
// mount its routes.
func New(app *apphttp.App) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.SecurityHeaders())
	if app.Logger != nil {
		engine.Use(httpkit.RequestLogger(app.Logger))
	}
	engine.Use(cors.New(corsConfig(app.Config)))

	globalLimiter := httpkit.NewIPRateLimiter(rate.Limit(20), 40, app.Logger)
	engine.Use(globalLimiter.RateLimit())

	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/api/ready", func(c *gin.Context) {
		if app.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := app.Health.Ping(ctx); err != nil {
				if app.Logger != nil {
					app.Logger.DatabaseError("readiness ping", err)
				}
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	v1 := engine.Group("/api/v1")
	authMiddleware := httpkit.AuthRequired(app.Config)
	protected := v1.Group("", authMiddleware)
	admin := v1.Group("/admin", authMiddleware, httpkit.RequireRole(httpkit.RoleAdmin))

	routerCtx := &apphttp.RouterContext{
		Engine:           engine,
		V1:               v1,
		Protected:        protected,
		Admin:            admin,
		Config:           app.Config,
		AuthMiddleware:   authMiddleware,
		WriteRateLimiter: httpkit.NewWriteRateLimiter(app.Logger),
	}

	for _, module := range app.Modules {
		module.RegisterRoutes(routerCtx)
		if app.Logger != nil {
			app.Logger.Info("registered module routes", "module", module.Name())
		}
	}

	return engine
}

func corsConfig(cfg apphttp.RouterConfig) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
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
