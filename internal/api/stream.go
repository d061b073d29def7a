package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// streamEvents holds the request open as a server-sent event stream. The
// connection is an observer for its whole lifetime.
func (s *Server) streamEvents(c *gin.Context) {
	o := s.Trips.Connect()
	defer s.Trips.Disconnect(o)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(s.KeepAlive)
	defer keepAlive.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e, ok := <-o.Events():
			if !ok {
				return false
			}
			c.SSEvent(e.Name, e.Data)
			return true
		case <-keepAlive.C:
			_, err := io.WriteString(w, ": keep-alive\n\n")
			return err == nil
		}
	})
	log.Debugf("observer %s disconnected", o.ID)
}
