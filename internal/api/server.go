package api

import (
	"net/http"
	"time"

	"github.com/cloudsync/enginecore/internal/core/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cloudsync/enginecore/internal/api/context"
)

// srvLog returns a named logger for the api.server package.
func srvLog() *zap.Logger {
	return logger.Named("api.server")
}

// SetupRouter creates and configures the Gin router with all middleware and routes.
func SetupRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	if cfg.App.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(ginLogger(logger.Named("api.http")))
	r.Use(gin.Recovery())
	r.Use(context.Middleware(deps.Engine, deps.Runner, deps.JobStore, deps.History, deps.Conflicts, deps.Scheduler))
	r.Use(context.OptionalAuthMiddleware(cfg))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Adjust for production
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")
	{
		if err := RegisterAPIRoutes(apiGroup, deps); err != nil {
			srvLog().Fatal("Failed to register API routes", zap.Error(err))
		}
	}

	r.NoRoute(notFoundHandler)

	return r
}

// notFoundHandler handles 404 responses.
func notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

func ginLogger(l *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				l.Error(e)
			}
		} else {
			l.Info(path,
				zap.Int("status", c.Writer.Status()),
				zap.String("method", c.Request.Method),
				zap.String("path", path),
				zap.String("query", query),
				zap.String("ip", c.ClientIP()),
				zap.String("user-agent", c.Request.UserAgent()),
				zap.Duration("latency", latency),
			)
		}
	}
}
