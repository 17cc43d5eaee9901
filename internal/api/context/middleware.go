package context

import (
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/gin-gonic/gin"
)

// Middleware returns a gin middleware that sets all required context values.
func Middleware(syncEngine ports.SyncEngine, runner ports.Runner, jobs ports.JobStore, history ports.HistorySink, conflicts ports.ConflictRegistry, scheduler ports.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextKeySyncEngine, syncEngine)
		c.Set(ContextKeyRunner, runner)
		c.Set(ContextKeyJobStore, jobs)
		c.Set(ContextKeyHistory, history)
		c.Set(ContextKeyConflicts, conflicts)
		c.Set(ContextKeyScheduler, scheduler)
		c.Next()
	}
}
