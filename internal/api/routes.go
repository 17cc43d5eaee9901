// Package api provides HTTP API routes and server setup.
package api

import (
	"github.com/cloudsync/enginecore/internal/api/handlers"
	"github.com/cloudsync/enginecore/internal/api/sse"
	"github.com/cloudsync/enginecore/internal/core/config"
	"github.com/cloudsync/enginecore/internal/core/filecache"
	"github.com/cloudsync/enginecore/internal/core/logger"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/cloudsync/enginecore/internal/core/storage"
	"github.com/cloudsync/enginecore/internal/core/transferstate"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps contains all dependencies required for setting up API routes.
type RouterDeps struct {
	Config    *config.Config
	Engine    ports.SyncEngine
	Runner    ports.Runner
	JobStore  ports.JobStore
	History   ports.HistorySink
	Conflicts ports.ConflictRegistry
	Scheduler ports.Scheduler
	Transfers *transferstate.Store
	Cache     *filecache.Cache
}

// routesLog returns a named logger for the api.routes package.
func routesLog() *zap.Logger {
	return logger.Named("api.routes")
}

// RegisterAPIRoutes registers all API routes to the given router group.
func RegisterAPIRoutes(router *gin.RouterGroup, deps RouterDeps) error {
	handlers.Register(router, handlers.Dependencies{
		JobStore:  deps.JobStore,
		Runner:    deps.Runner,
		Engine:    deps.Engine,
		History:   deps.History,
		Conflicts: deps.Conflicts,
		Scheduler: deps.Scheduler,
		Transfers: deps.Transfers,
		Cache:     deps.Cache,
	})

	router.GET("/events", sse.Handler)
	router.GET("/events/ws", sse.WebSocketHandler)
	handlers.RegisterConnections(router, storage.Tester{})

	routesLog().Info("API routes registered")
	return nil
}
