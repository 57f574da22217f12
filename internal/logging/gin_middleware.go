package logging

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GinLogger logs each request once it completes. A WebSocket upgrade only
// completes when its client session ends, so it is logged as a session
// lifetime at INFO.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		if c.IsWebsocket() && status < http.StatusBadRequest {
			Info("client session %s from %s ended after %s", path, c.ClientIP(), elapsed.Round(time.Millisecond))
			return
		}

		msg := fmt.Sprintf("%s %s - %d (%v) - %s", c.Request.Method, path, status, elapsed, c.ClientIP())
		switch {
		case status >= http.StatusInternalServerError:
			Error("%s", msg)
		case status >= http.StatusBadRequest:
			Warn("%s", msg)
		default:
			Debug("%s", msg)
		}
	}
}

// GinRecovery turns a handler panic into a 500. Hijacked (upgraded)
// connections cannot take a status, so they are only logged.
func GinRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				Crit("PANIC recovered in %s %s from %s: %v", c.Request.Method, c.Request.URL.Path, c.ClientIP(), err)
				if c.IsWebsocket() && c.Writer.Written() {
					c.Abort()
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
