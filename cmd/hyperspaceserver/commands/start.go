package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hypertable/hyperspace/internal/logger"
	"github.com/hypertable/hyperspace/internal/metricsserver"
	"github.com/hypertable/hyperspace/internal/telemetry"
	"github.com/hypertable/hyperspace/pkg/config"
	"github.com/hypertable/hyperspace/pkg/hyperspace/event"
	"github.com/hypertable/hyperspace/pkg/hyperspace/namespace"
	"github.com/hypertable/hyperspace/pkg/hyperspace/repo"
	"github.com/hypertable/hyperspace/pkg/hyperspace/server"
	"github.com/hypertable/hyperspace/pkg/hyperspace/session"
	"github.com/hypertable/hyperspace/pkg/metrics"
	badgerstore "github.com/hypertable/hyperspace/pkg/store/badger"

	// Import prometheus metrics to register their init() constructors.
	_ "github.com/hypertable/hyperspace/pkg/metrics/prometheus"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Hyperspace master",
	Long: `Start the Hyperspace master with the specified configuration.

By default, the server runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process supervisor.

Examples:
  # Start in background (default)
  hyperspaceserver start

  # Start in foreground
  hyperspaceserver start --foreground

  # Start with custom config file
  hyperspaceserver start --config /etc/hyperspace/config.yaml`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/hyperspace/hyperspaceserver.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "Path to log file for daemon mode (default: $XDG_STATE_HOME/hyperspace/hyperspaceserver.log)")
}

func runStart(cmd *cobra.Command, args []string) error {
	if !foreground {
		return startDaemon()
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "hyperspace",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("metrics disabled")
	}

	s, err := badgerstore.Open(badgerstore.Options{
		Dir:     cfg.Storage.Dir,
		Metrics: metrics.NewBadgerMetrics(),
	})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("storage close error", "error", err)
		}
	}()

	if err := repo.EnsureRoot(ctx, s); err != nil {
		return fmt.Errorf("failed to initialize namespace root: %w", err)
	}

	mgr := session.NewManager(s, nil, cfg.Lease.Interval, metrics.NewSessionMetrics())
	disp := event.New(s, mgr)
	mgr.SetDispatcher(disp)
	ns := namespace.New(s, disp)
	mgr.SetNamespace(ns)

	var dispatchMetrics *server.Metrics
	if metrics.IsEnabled() {
		dispatchMetrics = server.NewMetrics(metrics.GetRegistry())
	}

	d := server.New(s, mgr, ns, dispatchMetrics, telemetry.Tracer())
	pool := server.NewPool(d, cfg.Worker.Count, cfg.Worker.QueueDepth)
	pool.Start()
	defer pool.Stop()

	kaListener, err := server.ListenKeepAlive(cfg.Server.KeepAliveAddr, d)
	if err != nil {
		return fmt.Errorf("failed to bind keepalive socket: %w", err)
	}
	defer kaListener.Close()

	tcpListener, err := server.ListenTCP(cfg.Server.RequestAddr, pool)
	if err != nil {
		return fmt.Errorf("failed to bind request socket: %w", err)
	}
	defer tcpListener.Close()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsserver.NewRouter(metrics.GetRegistry()),
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	errCh := make(chan error, 2)
	go func() { errCh <- kaListener.Serve(ctx) }()
	go func() { errCh <- tcpListener.Serve(ctx) }()
	go runLeaseTicker(ctx, mgr, dispatchMetrics)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("hyperspace master listening",
		"keepalive_addr", cfg.Server.KeepAliveAddr,
		"request_addr", cfg.Server.RequestAddr)

	select {
	case <-sigCh:
		logger.Info("shutdown signal received, draining")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logger.Error("listener error", "error", err)
		}
	}

	cancel()
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	logger.Info("hyperspace master stopped")
	return nil
}

// runLeaseTicker periodically sweeps expired sessions and republishes the
// live-session gauge, independent of the per-client keepalive cadence.
func runLeaseTicker(ctx context.Context, mgr *session.Manager, m *server.Metrics) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := mgr.Tick(ctx); err != nil {
				logger.Error("lease tick error", "error", err)
			}
			if m != nil {
				m.LiveSessions.Set(float64(mgr.LiveCount()))
			}
		}
	}
}

// startDaemon re-execs the current binary in foreground mode, detached
// into its own session, with stdout/stderr redirected to a log file.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = filepath.Join(stateDir, "hyperspaceserver.pid")
	}

	if data, err := os.ReadFile(pidPath); err == nil {
		var pid int
		if _, err := fmt.Sscanf(string(data), "%d", &pid); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					return fmt.Errorf("hyperspaceserver is already running (PID %d)\nUse 'hyperspaceserver stop' to stop it", pid)
				}
			}
		}
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = filepath.Join(stateDir, "hyperspaceserver.log")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	daemonArgs := []string{"start", "--foreground", "--pid-file", pidPath}
	if GetConfigFile() != "" {
		daemonArgs = append(daemonArgs, "--config", GetConfigFile())
	}

	cmd := exec.Command(executable, daemonArgs...)

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFileHandle.Close()

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("hyperspaceserver started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'hyperspaceserver stop' to stop the server")
	return nil
}
