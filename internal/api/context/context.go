package context

import (
	"errors"

	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/gin-gonic/gin"
)

func getContextValue[T any](c *gin.Context, key string) (T, error) {
	var zero T
	val, exists := c.Get(key)
	if !exists {
		return zero, errors.New(key + " not initialized")
	}
	return val.(T), nil
}

// GetSyncEngine retrieves the SyncEngine from the gin context.
// Returns an error if the SyncEngine is not found.
func GetSyncEngine(c *gin.Context) (ports.SyncEngine, error) {
	return getContextValue[ports.SyncEngine](c, ContextKeySyncEngine)
}

// GetRunner retrieves the Runner from the gin context.
// Returns an error if the Runner is not found.
func GetRunner(c *gin.Context) (ports.Runner, error) {
	return getContextValue[ports.Runner](c, ContextKeyRunner)
}

// GetJobStore retrieves the JobStore from the gin context.
// Returns an error if the JobStore is not found.
func GetJobStore(c *gin.Context) (ports.JobStore, error) {
	return getContextValue[ports.JobStore](c, ContextKeyJobStore)
}

// GetHistory retrieves the HistorySink from the gin context.
// Returns an error if the HistorySink is not found.
func GetHistory(c *gin.Context) (ports.HistorySink, error) {
	return getContextValue[ports.HistorySink](c, ContextKeyHistory)
}

// GetConflicts retrieves the ConflictRegistry from the gin context.
// Returns an error if the ConflictRegistry is not found.
func GetConflicts(c *gin.Context) (ports.ConflictRegistry, error) {
	return getContextValue[ports.ConflictRegistry](c, ContextKeyConflicts)
}

// GetScheduler retrieves the Scheduler from the gin context.
// Returns an error if the Scheduler is not found.
func GetScheduler(c *gin.Context) (ports.Scheduler, error) {
	return getContextValue[ports.Scheduler](c, ContextKeyScheduler)
}
