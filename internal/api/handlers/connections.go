package handlers

import (
	"net/http"

	"github.com/cloudsync/enginecore/internal/core/model"
	"github.com/cloudsync/enginecore/internal/core/ports"
	"github.com/gin-gonic/gin"
)

type testConnectionRequest struct {
	Config model.StorageConfig `json:"config" binding:"required"`
}

// TestConnection handles POST /connections/test, probing a storage backend
// without persisting anything — used by job-creation forms to validate
// credentials before a job is saved.
func TestConnection(tester ports.ConnectionTester) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req testConnectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := tester.Test(c.Request.Context(), req.Config); err != nil {
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// RegisterConnections attaches the connection-testing endpoint to group.
func RegisterConnections(group *gin.RouterGroup, tester ports.ConnectionTester) {
	group.POST("/connections/test", TestConnection(tester))
}
