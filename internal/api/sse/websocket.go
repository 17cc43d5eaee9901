package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Progress streaming is same-origin-agnostic by design; the REST API
	// itself carries no session state for a websocket handshake to leak.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

const websocketWriteTimeout = 5 * time.Second

// WebSocketHandler is a gin handler offering the same event stream as
// Handler, over a websocket connection instead of SSE, for clients that
// prefer a bidirectional channel (or whose proxy buffers SSE responses).
func WebSocketHandler(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		GetBroker().logger.Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	clientChan := GetBroker().Subscribe()
	defer GetBroker().Unsubscribe(clientChan)

	// Drain client reads in the background so ping/close control frames
	// are processed; this stream is server-push only, so any data frame
	// from the client is discarded.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-clientChan:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}
