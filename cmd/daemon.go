package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grovetools/tabwatt/cli"
	"github.com/grovetools/tabwatt/config"
	"github.com/grovetools/tabwatt/internal/daemon/collaborator"
	"github.com/grovetools/tabwatt/internal/daemon/collector"
	"github.com/grovetools/tabwatt/internal/daemon/engine"
	"github.com/grovetools/tabwatt/internal/daemon/kv"
	"github.com/grovetools/tabwatt/internal/daemon/pidfile"
	"github.com/grovetools/tabwatt/internal/daemon/server"
	"github.com/grovetools/tabwatt/internal/daemon/storage"
	"github.com/grovetools/tabwatt/internal/daemon/store"
	"github.com/grovetools/tabwatt/internal/daemon/tracker"
	"github.com/grovetools/tabwatt/internal/daemon/watcher"
	"github.com/grovetools/tabwatt/logging"
	"github.com/grovetools/tabwatt/pkg/daemon"
	"github.com/grovetools/tabwatt/pkg/paths"
	"github.com/grovetools/tabwatt/pkg/protocol"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewDaemonCmd returns the daemon command with subcommands.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the tabwatt daemon",
		Long:  "The daemon tracks tabs reported by the browser host, estimates their power and keeps the history.",
	}

	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	return cmd
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := cli.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if err := paths.EnsureDirs(); err != nil {
				return fmt.Errorf("failed to create tabwatt directories: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg, cfgPath, logging.NewLogger("tabwattd"))
		},
	}
}

func trackerOptions(cfg *config.Config) tracker.Options {
	return tracker.Options{
		InjectAttempts:       cfg.Daemon.InjectAttempts,
		InjectBackoff:        cfg.Daemon.InjectBackoff.Std(),
		SnapshotMaxAge:       cfg.Daemon.SnapshotMaxAge.Std(),
		NotificationCooldown: cfg.Daemon.NotificationCooldown.Std(),
		MaxBackendEntries:    cfg.History.MaxBackendEntries,
		BackupKeep:           cfg.History.BackupKeep,
	}
}

func storePath(cfg *config.Config) string {
	if cfg.Storage.Path != "" {
		return cfg.Storage.Path
	}
	return paths.StorePath()
}

// runDaemon serves until ctx is cancelled or the socket listener fails.
func runDaemon(ctx context.Context, cfg *config.Config, cfgPath string, logger *logrus.Entry) error {
	pidPath := paths.PidFilePath()
	sockPath := paths.SocketPath()

	// 1. Acquire lock
	if err := pidfile.Acquire(pidPath); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := pidfile.Release(pidPath); err != nil {
			logger.Errorf("Failed to release pidfile: %v", err)
		}
	}()

	// 2. Storage and tracker
	dbPath := storePath(cfg)
	kvStore, err := kv.Open(kv.Options{Driver: cfg.Storage.Driver, Path: dbPath})
	if err != nil {
		return err
	}
	defer kvStore.Close()

	calc, err := cfg.Calculator()
	if err != nil {
		return err
	}

	st := store.New()
	hub := collaborator.NewHub(logger.WithField("component", "collaborator"))
	svc := tracker.New(storage.New(kvStore), calc, hub, st, logger, trackerOptions(cfg))
	if _, err := svc.Rehydrate(); err != nil {
		logger.WithError(err).Warn("Failed to restore tab sessions")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if _, err := svc.MigrateLegacyData(ctx); err != nil {
			logger.WithError(err).Debug("Legacy migration not run")
		}
	}()

	// 3. Engine and collectors
	eng := engine.New(st, logger)
	eng.Register(collector.NewSnapshotCollector(svc, cfg.Daemon.SnapshotInterval.Std(), logger))
	eng.Register(collector.NewRetentionCollector(svc, cfg.Daemon.CleanupInterval.Std(), logger))
	eng.Register(collector.NewHeartbeatCollector(svc.Registry(), cfg.Daemon.HeartbeatInterval.Std()))

	// 4. Server
	srv := server.New(logger)
	srv.SetEngine(eng)
	srv.SetTracker(svc)
	srv.SetCollaborators(hub)
	srv.SetRunningConfig(runningConfig(cfg, cfgPath, dbPath))

	// 5. Config hot reload
	configDir := paths.ConfigDir()
	if cfgPath != "" {
		configDir = filepath.Dir(cfgPath)
	}
	w, err := watcher.New(configDir, cfg.Daemon.ConfigDebounceMs, logger.WithField("component", "watcher"),
		func(file string) { reloadConfig(cfgPath, configDir, svc, st, logger, file) })
	if err != nil {
		logger.WithError(err).Warn("Config hot reload disabled")
	} else {
		go w.Start(ctx)
	}

	go eng.Start(ctx)

	if addr := cfg.Daemon.CollaboratorAddr; addr != "" {
		go func() {
			if err := srv.ListenCollaborators(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Collaborator endpoint stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(sockPath) }()

	logger.WithField("pid", os.Getpid()).Info("Starting daemon")
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Received stop signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
	}
	hub.Close()
	svc.Wait()
	if n, err := svc.SaveSnapshot(); err != nil {
		logger.WithError(err).Warn("Failed to save final snapshot")
	} else {
		logger.WithField("sessions", n).Debug("Saved final snapshot")
	}
	return serveErr
}

func runningConfig(cfg *config.Config, cfgPath, dbPath string) *protocol.RunningConfig {
	return &protocol.RunningConfig{
		StorageDriver:     cfg.Storage.Driver,
		StoragePath:       dbPath,
		SnapshotInterval:  cfg.Daemon.SnapshotInterval.Std(),
		CleanupInterval:   cfg.Daemon.CleanupInterval.Std(),
		HeartbeatInterval: cfg.Daemon.HeartbeatInterval.Std(),
		SnapshotMaxAge:    cfg.Daemon.SnapshotMaxAge.Std(),
		InjectAttempts:    cfg.Daemon.InjectAttempts,
		InjectBackoff:     cfg.Daemon.InjectBackoff.Std(),
		CollaboratorAddr:  cfg.Daemon.CollaboratorAddr,
		ConfigFile:        cfgPath,
		StartedAt:         time.Now(),
	}
}

// reloadConfig swaps in the power settings of a changed config file. Storage
// and listener settings need a restart.
func reloadConfig(cfgPath, configDir string, svc *tracker.Service, st *store.Store, logger *logrus.Entry, file string) {
	var (
		cfg *config.Config
		err error
	)
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
	} else {
		cfg, _, err = config.LoadFromDir(configDir, logger.Logger)
	}
	if err != nil {
		logger.WithError(err).Warn("Ignoring invalid config change")
		return
	}
	calc, err := cfg.Calculator()
	if err != nil {
		logger.WithError(err).Warn("Ignoring invalid power settings")
		return
	}
	svc.SetCalculator(calc)
	st.BroadcastConfigReload(filepath.Base(file))
	logger.WithField("file", file).Info("Config reloaded")
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error checking status: %w", err)
			}
			if !running {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("failed to find process %d: %w", pid, err)
			}
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to send stop signal: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent SIGTERM to process %d\n", pid)
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			running, pid, err := pidfile.IsRunning(paths.PidFilePath())
			if err != nil {
				return fmt.Errorf("error: %w", err)
			}
			if !running {
				fmt.Fprintln(out, "Stopped")
				os.Exit(1)
			}

			client, err := daemon.NewRemoteClient(paths.SocketPath())
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Second)
			defer cancel()
			ping, err := daemon.Call[protocol.PingResult](ctx, client, protocol.Ping{})
			if err != nil {
				fmt.Fprintf(out, "Running (PID: %d) but not answering: %v\n", pid, err)
				return nil
			}
			if cli.GetOptions(cmd).JSONOutput {
				return writeJSON(out, ping)
			}
			fmt.Fprintf(out, "Running (PID: %d)\nSocket: %s\nTracked tabs: %d\nUp since: %s\n",
				pid, paths.SocketPath(), ping.Tracked, ping.StartedAt.Format(time.RFC3339))
			return nil
		},
	}
}
