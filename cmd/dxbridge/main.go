package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"golang.org/x/net/context"
	"golang.org/x/sync/errgroup"

	"github.com/user00265/dxbridge/internal/cluster"
	"github.com/user00265/dxbridge/internal/config"
	"github.com/user00265/dxbridge/internal/db"
	"github.com/user00265/dxbridge/internal/frontend"
	"github.com/user00265/dxbridge/internal/gateway"
	"github.com/user00265/dxbridge/internal/logging"
	"github.com/user00265/dxbridge/internal/redisclient"
	"github.com/user00265/dxbridge/internal/registry"
	"github.com/user00265/dxbridge/internal/store"
	"github.com/user00265/dxbridge/internal/telnet"
	"github.com/user00265/dxbridge/version"
)

const (
	shutdownTimeout   = 10 * time.Second
	statusReportDelay = time.Minute
	statusReportEvery = time.Hour
	retentionInterval = time.Hour
)

func main() {
	status := RunApplication(context.Background(), os.Args[1:])
	if status != 0 {
		os.Exit(status)
	}
}

// services holds everything RunApplication starts, for status reports and
// teardown.
type services struct {
	cfg     *config.Config
	started time.Time
	rdb     *redisclient.Client
	dbc     db.Client
	archive *store.SQL
	recent  *store.Redis
	writer  *store.Async
	cache   *frontend.Cache
	hub     *gateway.Hub
}

// RunApplication runs the bridge and returns the process exit code. Tests
// call it directly to start the app in-process.
func RunApplication(ctx context.Context, args []string) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	setupLogging(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logging.Crit("Failed to load configuration: %v", err)
		return 1
	}
	// LOG_LEVEL may have come from the .env file.
	setupLogging(cfg.LogLevel)
	logConfiguration(cfg)

	if len(args) > 0 && strings.ToLower(args[0]) == "healthcheck" {
		fmt.Println("Health check successful")
		return 0
	}

	svc := &services{cfg: cfg, started: time.Now()}
	defer svc.close()

	svc.rdb = initializeRedis(ctx, cfg)
	svc.dbc, svc.archive = initializeStore(ctx, cfg)
	svc.cache = frontend.NewCache(cfg.MaxCache)
	if svc.rdb != nil {
		svc.recent = store.NewRedis(svc.rdb, cfg.Redis.RecentSpots, cfg.Redis.SpotExpiry)
	}
	warmCache(ctx, svc)

	var persist store.Multi
	if svc.archive != nil {
		persist = append(persist, svc.archive)
	}
	if svc.recent != nil {
		persist = append(persist, svc.recent)
	}
	var sink store.Sink = svc.cache
	if len(persist) > 0 {
		svc.writer = store.NewAsync(persist, cfg.Store.QueueSize, 0, 0)
		svc.writer.Start()
		sink = store.Multi{svc.cache, svc.writer}
	}

	opts, err := supervisorOptions(cfg)
	if err != nil {
		logging.Crit("Invalid upstream settings: %v", err)
		return 1
	}
	reg := registry.NewStatic(cfg.Clusters)
	svc.hub = gateway.NewHub(reg, sink, opts, cfg.OutboundBuffer)

	router := setupHTTPRouter(cfg, svc.cache, reg, svc.hub)
	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.WebPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Notice("HTTP server listening on %s (BaseURL: %s)", srv.Addr, cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		statusReporter(gctx, svc)
		return nil
	})
	if svc.archive != nil {
		svc.archive.StartRetention(gctx, cfg.Store.Retention, retentionInterval)
	}

	status := gracefulShutdown(gctx, srv, svc.hub)
	cancel()
	if err := g.Wait(); err != nil {
		logging.Crit("%v", err)
		if status == 0 {
			status = 2
		}
	}
	return status
}

// setupLogging applies a LOG_LEVEL value; empty keeps the current level.
func setupLogging(level string) {
	if level == "" {
		return
	}
	lvl, ok := logging.ParseLevel(level)
	if !ok {
		logging.Warn("Unrecognized LOG_LEVEL=%q; valid: crit,error,warn,notice,info,debug or 0-5.", level)
		return
	}
	logging.SetLevel(lvl)
}

func logConfiguration(cfg *config.Config) {
	logging.Notice("Starting %s", version.UserAgent)
	logging.Notice("Configuration loaded. WebPort: %d, BaseURL: %s, MaxCache: %d, LogLevel: %s",
		cfg.WebPort, cfg.BaseURL, cfg.MaxCache, logging.LevelName(logging.Level))
	logging.Notice("Upstream: transport=%s connect-timeout=%s login-delay=%s reconnect=%s dedup=%s/%d",
		cfg.Upstream.Transport, cfg.Upstream.ConnectTimeout, cfg.Upstream.LoginDelay,
		cfg.Upstream.ReconnectDelay, cfg.Upstream.DedupWindow, cfg.Upstream.DedupCapacity)
	logging.Notice("Spot store: %s (retention %s), Redis: %v", cfg.Store.Driver, cfg.Store.Retention, cfg.Redis.Enabled)

	logging.Notice("DX Clusters configured: %d", len(cfg.Clusters))
	for _, c := range cfg.Clusters {
		logging.Info("  cluster %s: %s at %s (active=%v)", c.ID, c.Name, c.Address(), c.IsActive())
	}
}

func initializeRedis(ctx context.Context, cfg *config.Config) *redisclient.Client {
	rdb, err := redisclient.NewClient(ctx, cfg.Redis)
	if err != nil {
		logging.Warn("Redis unavailable, continuing without the recent-spot list: %v", err)
		return nil
	}
	if rdb != nil {
		logging.Notice("Connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
	}
	return rdb
}

// initializeStore opens the spot archive. Failures degrade to no archive.
func initializeStore(ctx context.Context, cfg *config.Config) (db.Client, *store.SQL) {
	client, err := db.Open(ctx, cfg.Store, cfg.DataDir)
	if err != nil {
		logging.Warn("Spot store %s unavailable, spots will not be archived: %v", cfg.Store.Driver, err)
		return nil, nil
	}
	if client == nil {
		return nil, nil
	}
	archive, err := store.NewSQL(ctx, client)
	if err != nil {
		logging.Warn("Spot store schema failed, spots will not be archived: %v", err)
		client.Close()
		return nil, nil
	}
	logging.Notice("Archiving spots to %s", client.Dialect())
	return client, archive
}

// warmCache preloads the REST cache from the archive so /spots is useful
// right after a restart.
func warmCache(ctx context.Context, svc *services) {
	if svc.archive == nil {
		return
	}
	spots, err := svc.archive.Recent(ctx, svc.cfg.MaxCache)
	if err != nil {
		logging.Warn("Could not preload spot cache: %v", err)
		return
	}
	// Oldest first so eviction order matches arrival order.
	for i := len(spots) - 1; i >= 0; i-- {
		svc.cache.AddSpot(spots[i])
	}
	if len(spots) > 0 {
		logging.Info("Preloaded %d spots from the archive", len(spots))
	}
}

func supervisorOptions(cfg *config.Config) (cluster.Options, error) {
	up := cfg.Upstream
	filter, err := telnet.Charset(up.Charset)
	if err != nil {
		return cluster.Options{}, err
	}
	dialer, err := telnet.NewDialer(up.Transport, up.ConnectTimeout)
	if err != nil {
		return cluster.Options{}, err
	}
	return cluster.Options{
		ConnectTimeout:    up.ConnectTimeout,
		LoginDelay:        up.LoginDelay,
		LoginPrompts:      up.LoginPrompts,
		PostLoginCommands: up.PostLoginCommands,
		NewBackOff:        cluster.NewReconnectBackOff(up.ReconnectDelay, up.ReconnectMaxDelay, up.ReconnectMaxElapsed),
		Dialer:            dialer,
		LineFilter:        filter,
		DedupWindow:       up.DedupWindow,
		DedupCapacity:     up.DedupCapacity,
	}, nil
}

func setupHTTPRouter(cfg *config.Config, cache *frontend.Cache, reg registry.Registry, hub *gateway.Hub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := frontend.NewRouter(cfg.TrustedProxies)

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base != "" {
		// Container health checks probe the root regardless of WEBURL.
		router.GET("/healthz", func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
	}
	group := router.Group("/")
	if base != "" {
		group = router.Group(base)
	}
	frontend.SetupRoutes(group, frontend.Options{
		Cache:          cache,
		Registry:       reg,
		Hub:            hub,
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
	})
	return router
}

// statusReporter logs a status line a minute after startup, then hourly.
func statusReporter(ctx context.Context, svc *services) {
	first := time.NewTimer(statusReportDelay)
	select {
	case <-first.C:
		generateStatusReport(svc)
	case <-ctx.Done():
		first.Stop()
		return
	}

	ticker := time.NewTicker(statusReportEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			generateStatusReport(svc)
		case <-ctx.Done():
			return
		}
	}
}

func generateStatusReport(svc *services) {
	logging.Notice("%s", statusReport(svc))
}

func statusReport(svc *services) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	sessions := svc.hub.Sessions()
	sockets := 0
	for _, s := range sessions {
		sockets += s.Sockets
	}

	parts := []string{
		fmt.Sprintf("%s up %s using %s of memory", version.ProjectName,
			strings.TrimSuffix(humanize.RelTime(svc.started, time.Now(), "", ""), " "), humanize.Bytes(m.Alloc)),
		fmt.Sprintf("sessions=%d upstream=%d cached=%d", len(sessions), sockets, svc.cache.Len()),
	}
	if svc.writer != nil {
		parts = append(parts, fmt.Sprintf("archived=%s dropped=%s failed=%s",
			humanize.Comma(int64(svc.writer.Written())),
			humanize.Comma(int64(svc.writer.Dropped())),
			humanize.Comma(int64(svc.writer.Failed()))))
	}
	return strings.Join(parts, ", ")
}

// gracefulShutdown waits for a signal or ctx, then stops the HTTP server and
// closes every client session along with its upstream socket.
func gracefulShutdown(ctx context.Context, srv *http.Server, hub *gateway.Hub) int {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logging.Notice("Received %s. Shutting down...", sig)
	case <-ctx.Done():
		logging.Notice("Context cancelled. Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	status := 0
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("HTTP server forced to shutdown: %v", err)
		status = 3
	}
	// Hijacked WebSocket connections are not tracked by srv.Shutdown.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logging.Error("Timed out closing client sessions: %v", err)
		status = 3
	}
	logging.Debug("goroutines after shutdown: %d", runtime.NumGoroutine())
	logging.Notice("Server exited gracefully.")
	return status
}

func (svc *services) close() {
	if svc.writer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := svc.writer.Stop(ctx); err != nil {
			logging.Warn("Spot writer did not drain: %v", err)
		}
		cancel()
	}
	if svc.dbc != nil {
		if err := svc.dbc.Close(); err != nil {
			logging.Error("Error closing spot store: %v", err)
		}
	}
	if svc.rdb != nil {
		svc.rdb.Close()
	}
}
