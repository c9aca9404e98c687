// mcstrackd -- multi-camera marker-tracking coordination daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mcstrack/mcstrackd/internal/config"
	"github.com/mcstrack/mcstrackd/internal/controller"
	mctmetrics "github.com/mcstrack/mcstrackd/internal/metrics"
	"github.com/mcstrack/mcstrackd/internal/protocol"
	"github.com/mcstrack/mcstrackd/internal/server"
	"github.com/mcstrack/mcstrackd/internal/transport"
	appversion "github.com/mcstrack/mcstrackd/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(appversion.Full("mcstrackd"))
		return 0
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// Logger is not set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	// Dynamic level so SIGHUP can reload verbosity without a restart.
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("mcstrackd starting",
		slog.String("version", appversion.Version),
		slog.String("api_addr", cfg.API.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("peers", len(cfg.Peers)),
	)

	reg := prometheus.NewRegistry()
	collector := mctmetrics.NewCollector(reg)

	core := newLockedCore(logger, cfg, collector)
	if err := core.addConfiguredPeers(cfg.Peers); err != nil {
		logger.Error("failed to register configured peers",
			slog.String("error", err.Error()),
		)
		return 1
	}

	if err := runServers(cfg, core, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("mcstrackd exited with error",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger.Info("mcstrackd stopped")
	return 0
}

// loadConfig loads the configuration, requiring an explicit path.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, errors.New("missing required -config flag")
	}
	return config.Load(path)
}

// newLoggerWithLevel builds the process logger from the log configuration.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// -------------------------------------------------------------------------
// Locked controller view
// -------------------------------------------------------------------------

// lockedCore serializes every controller access with the tick loop. The
// controller itself is single-threaded by contract; the daemon is the one
// place where HTTP readers and the ticker meet.
type lockedCore struct {
	mu   sync.Mutex
	ctrl *controller.Controller
}

func newLockedCore(logger *slog.Logger, cfg *config.Config, mr controller.MetricsReporter) *lockedCore {
	dialer := transport.NewWebsocketDialer(cfg.Controller.WebsocketMaxFrameBytes)
	return &lockedCore{
		ctrl: controller.New(logger, dialer,
			controller.WithMetrics(mr),
			controller.WithRetryPolicy(
				cfg.Controller.AttemptCountMaximum,
				cfg.Controller.AttemptTimeGap,
			),
		),
	}
}

// addConfiguredPeers registers the declarative fleet and arms the peers
// marked connect_on_start.
func (c *lockedCore) addConfiguredPeers(peers []config.PeerConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pc := range peers {
		if err := c.ctrl.AddPeer(controller.PeerAddress{
			Label: pc.Label,
			Role:  controller.Role(pc.Role),
			Host:  pc.Host,
			Port:  pc.Port,
		}); err != nil {
			return err
		}
		if pc.ConnectOnStart {
			if err := c.ctrl.ConnectPeer(pc.Label); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *lockedCore) tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctrl.Tick(ctx)
}

func (c *lockedCore) SystemStatus() controller.SystemStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.SystemStatus()
}

func (c *lockedCore) ListConnectionReports() []controller.ConnectionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.ListConnectionReports()
}

func (c *lockedCore) ListConnectedDetectors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.ListConnectedDetectors()
}

func (c *lockedCore) ListConnectedPoseSolvers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.ListConnectedPoseSolvers()
}

func (c *lockedCore) LatestDetectorFrame(label string) (controller.DetectorFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.LatestDetectorFrame(label)
}

func (c *lockedCore) LatestPoseSolverFrame(label string) (controller.PoseSolverFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.LatestPoseSolverFrame(label)
}

func (c *lockedCore) DrainStatusMessages() []protocol.StatusMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.DrainStatusMessages()
}

var _ server.Core = (*lockedCore)(nil)

// -------------------------------------------------------------------------
// Servers & tick loop
// -------------------------------------------------------------------------

// runServers runs the tick loop plus the API and metrics HTTP servers under
// an errgroup with a signal-aware context for graceful shutdown.
func runServers(
	cfg *config.Config,
	core *lockedCore,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	apiSrv := &http.Server{Handler: server.New(core, logger)}

	metricsMux := http.NewServeMux()
	metricsMux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Handler: metricsMux}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runTickLoop(gCtx, core, cfg.Controller.TickInterval, logger)
	})

	startHTTPServers(gCtx, g, cfg, apiSrv, metricsSrv, logger)
	startSIGHUPReload(gCtx, g, configPath, logLevel, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		notifyStopping(logger)
		return shutdownServers(logger, apiSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// runTickLoop drives the controller at the configured interval until the
// context is canceled.
func runTickLoop(
	ctx context.Context,
	core *lockedCore,
	interval time.Duration,
	logger *slog.Logger,
) error {
	logger.Info("tick loop running", slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			core.tick(ctx)
		}
	}
}

// startHTTPServers registers the API and metrics HTTP server goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	apiSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("API server listening", slog.String("addr", cfg.API.Addr))
		return listenAndServe(ctx, &lc, apiSrv, cfg.API.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// listenAndServe serves srv on addr, treating a clean close as success.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// shutdownServers drains the HTTP servers within the shutdown timeout.
func shutdownServers(logger *slog.Logger, servers ...*http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", slog.String("error", err.Error()))
		}
	}
	return nil
}

// startSIGHUPReload re-reads the configuration's log level on SIGHUP.
func startSIGHUPReload(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	logger *slog.Logger,
) {
	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigHUP:
				cfg, err := config.Load(configPath)
				if err != nil {
					logger.Error("SIGHUP reload failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
				logger.Info("log level reloaded",
					slog.String("level", cfg.Log.Level),
				)
			}
		}
	})
}

// -------------------------------------------------------------------------
// Systemd Integration — sd_notify
// -------------------------------------------------------------------------

// notifyReady sends READY=1 to systemd, indicating the daemon has completed
// initialization and is ready to serve.
func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

// notifyStopping sends STOPPING=1 to systemd, indicating the daemon is
// beginning graceful shutdown.
func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping",
			slog.String("error", err.Error()),
		)
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}
