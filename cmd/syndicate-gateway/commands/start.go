package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syndicate-project/gateway/internal/logger"
	"github.com/syndicate-project/gateway/internal/telemetry"
	"github.com/syndicate-project/gateway/pkg/config"
	"github.com/syndicate-project/gateway/pkg/gateway"
	"github.com/syndicate-project/gateway/pkg/httpapi"
	"github.com/syndicate-project/gateway/pkg/metrics"
)

var (
	foreground bool
	pidFile    string
	logFile    string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the syndicate-gateway process",
	Long: `Start the syndicate-gateway process with the specified configuration.

By default the gateway runs in the background (daemon mode). Use --foreground
to run in the foreground for debugging or when managed by a process
supervisor (systemd, Kubernetes).

Examples:
  # Start in background (default)
  syndicate-gateway start

  # Start in foreground
  syndicate-gateway start --foreground

  # Start with a custom config file
  syndicate-gateway start --config /etc/syndicate-gateway/config.yaml

  # Override a setting via environment variable
  SYNDICATE_LOGGING_LEVEL=DEBUG syndicate-gateway start --foreground`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in foreground (default: background/daemon mode)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "path to PID file (default: $XDG_STATE_HOME/syndicate-gateway/syndicate-gateway.pid)")
	startCmd.Flags().StringVar(&logFile, "log-file", "", "path to log file for daemon mode (default: $XDG_STATE_HOME/syndicate-gateway/syndicate-gateway.log)")
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
		ServiceName:    "syndicate-gateway",
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
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "syndicate-gateway",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("syndicate-gateway starting", "version", Version, "commit", Commit)
	logger.Info("configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled")
	}

	// AG deployments that need a driver/closure transform layer (compression,
	// encryption, an S3- or disk-backed manifest synthesizer) supply their own
	// driver.Driver implementation and build a separate entrypoint wiring it
	// in; this CLI only ever constructs the common UG/RG case.
	gw, err := gateway.New(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to construct gateway: %w", err)
	}

	watcher, err := newConfigWatcher(GetConfigFile(), cfg)
	if err != nil {
		logger.Warn("config hot-reload disabled", logger.Err(err))
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	var httpServer *http.Server
	if cfg.HTTPAPI.Enabled {
		router := httpapi.NewRouter(gw, time.Now(), cfg.Metrics.Enabled)
		httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.HTTPAPI.Port),
			Handler: router,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("operator HTTP API stopped unexpectedly", logger.Err(err))
			}
		}()
		logger.Info("operator HTTP API listening", "port", cfg.HTTPAPI.Port)
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- gw.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("gateway is running; press Ctrl+C to stop")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, stopping")
		cancel()
		// gw.Start tears the gateway down itself once ctx is cancelled and
		// returns ctx.Err(); that is expected here, not a failure.
		<-serveDone
	case err := <-serveDone:
		signal.Stop(sigChan)
		if err != nil && ctx.Err() == nil {
			logger.Error("gateway start failed", logger.Err(err))
			return err
		}
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		_ = httpServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}

	logger.Info("gateway stopped gracefully")
	return nil
}

// startDaemon re-execs the current binary in foreground mode, detached and
// redirected to a log file, after checking no instance is already running.
func startDaemon() error {
	stateDir := GetDefaultStateDir()
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	pidPath := pidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	if _, err := os.Stat(pidPath); err == nil {
		pidData, err := os.ReadFile(pidPath)
		if err == nil {
			var pid int
			if _, err := fmt.Sscanf(string(pidData), "%d", &pid); err == nil {
				if process, err := os.FindProcess(pid); err == nil {
					if err := process.Signal(syscall.Signal(0)); err == nil {
						return fmt.Errorf("syndicate-gateway is already running (PID %d)\nUse 'syndicate-gateway stop' to stop it", pid)
					}
				}
			}
		}
		_ = os.Remove(pidPath)
	}

	logPath := logFile
	if logPath == "" {
		logPath = GetDefaultLogFile()
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

	logFileHandle, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = logFileHandle.Close() }()

	cmd.Stdout = logFileHandle
	cmd.Stderr = logFileHandle
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	fmt.Printf("syndicate-gateway started in background (PID %d)\n", cmd.Process.Pid)
	fmt.Printf("  PID file: %s\n", pidPath)
	fmt.Printf("  Log file: %s\n", logPath)
	fmt.Println("\nUse 'syndicate-gateway stop' to stop it")
	fmt.Println("Use 'syndicate-gateway status' to check its status")

	return nil
}
