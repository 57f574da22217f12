// Package frontend exposes the HTTP surface: the client WebSocket endpoint
// and read-only JSON views of clusters, recent spots and sessions.
package frontend

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/user00265/dxbridge/internal/gateway"
	"github.com/user00265/dxbridge/internal/logging"
	"github.com/user00265/dxbridge/internal/registry"
	"github.com/user00265/dxbridge/internal/spot"
	"github.com/user00265/dxbridge/version"
)

// SpotCache defines the interface for accessing cached spots.
type SpotCache interface {
	GetAllSpots() []spot.Spot
	AddSpot(s spot.Spot) bool
}

// Options configures the routes.
type Options struct {
	Cache          SpotCache
	Registry       registry.Registry
	Hub            *gateway.Hub
	AllowedOrigins []string
	PingInterval   time.Duration
}

// SetupRoutes configures all endpoints on r.
func SetupRoutes(r *gin.RouterGroup, opts Options) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// GET /ws - upgrade to a client session.
	r.GET("/ws", func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the HTTP error.
			logging.Warn("WebSocket upgrade from %s failed: %v", c.ClientIP(), err)
			return
		}
		conn := gateway.NewWebSocketConn(ws, opts.PingInterval)
		if err := opts.Hub.Serve(c.Request.Context(), conn); err != nil {
			logging.Info("session from %s not served: %v", c.ClientIP(), err)
		}
	})

	// GET /clusters - active clusters a client may connect to.
	r.GET("/clusters", func(c *gin.Context) {
		c.JSON(http.StatusOK, opts.Registry.List())
	})

	// GET /spots - recent spots, optionally filtered with ?band=.
	r.GET("/spots", func(c *gin.Context) {
		band := c.Query("band")
		if band == "" {
			c.JSON(http.StatusOK, payloads(opts.Cache.GetAllSpots(), ""))
			return
		}
		c.JSON(http.StatusOK, payloads(opts.Cache.GetAllSpots(), normalizeBand(band)))
	})

	// GET /spots/:band - recent spots on one band ("20m" or "20").
	r.GET("/spots/:band", func(c *gin.Context) {
		c.JSON(http.StatusOK, payloads(opts.Cache.GetAllSpots(), normalizeBand(c.Param("band"))))
	})

	// GET /sessions - live client sessions and their upstream state.
	r.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, opts.Hub.Sessions())
	})

	// GET /stats - cache and session counters.
	r.GET("/stats", func(c *gin.Context) {
		spots := opts.Cache.GetAllSpots()
		stats := gin.H{
			"version":  version.UserAgent,
			"sessions": opts.Hub.Len(),
			"entries":  len(spots),
			"freshest": nil,
			"oldest":   nil,
		}
		if len(spots) > 0 {
			// GetAllSpots is newest first.
			stats["freshest"] = spots[0].ReceivedAt.UTC().Format(time.RFC3339)
			stats["oldest"] = spots[len(spots)-1].ReceivedAt.UTC().Format(time.RFC3339)
		}
		c.JSON(http.StatusOK, stats)
	})
}

func payloads(spots []spot.Spot, band string) []spot.Payload {
	out := make([]spot.Payload, 0, len(spots))
	for _, s := range spots {
		if band != "" && strings.ToLower(s.Band) != band {
			continue
		}
		out = append(out, s.Payload())
	}
	return out
}

// normalizeBand accepts "20m", "20M" or "20"; centimetre bands need their
// full name ("70cm").
func normalizeBand(band string) string {
	band = strings.ToLower(strings.TrimSpace(band))
	if n, err := strconv.Atoi(band); err == nil {
		return fmt.Sprintf("%dm", n)
	}
	return band
}

// originChecker allows requests without an Origin header, any origin when
// the list contains "*", and otherwise exact scheme://host matches.
func originChecker(allowed []string) func(*http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			set[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAll {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

// NewRouter returns a gin engine with path normalization, recovery and
// request logging installed.
func NewRouter(trustedProxies []string) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(NormalizePath(router))
	router.Use(logging.GinRecovery())
	router.Use(logging.GinLogger())

	if len(trustedProxies) > 0 {
		if err := router.SetTrustedProxies(trustedProxies); err != nil {
			logging.Warn("Invalid TRUSTED_PROXIES %v: %v", trustedProxies, err)
		} else {
			logging.Info("Trusted proxies configured: %v", trustedProxies)
		}
	}
	return router
}

// NormalizePath collapses repeated slashes and drops a trailing slash, then
// re-routes the request when the path changed.
func NormalizePath(router *gin.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		original := path
		for strings.Contains(path, "//") {
			path = strings.ReplaceAll(path, "//", "/")
		}
		if len(path) > 1 && strings.HasSuffix(path, "/") {
			path = strings.TrimSuffix(path, "/")
		}
		if path != original {
			c.Request.URL.Path = path
			router.HandleContext(c)
			c.Abort()
			return
		}
		c.Next()
	}
}
