//go:build linux

// dikt-daemon is the Dikt transcription daemon.
//
// It owns io.dikt.Transcription on the session bus, routes recording
// sessions to IBus engine instances, persists committed transcripts,
// and optionally registers a global hotkey that toggles dictation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rohithmahesh3/Dikt/internal/config"
	"github.com/rohithmahesh3/Dikt/internal/daemon"
	"github.com/rohithmahesh3/Dikt/internal/history"
	"github.com/rohithmahesh3/Dikt/internal/ibus"
	"github.com/rohithmahesh3/Dikt/internal/logging"
	"github.com/rohithmahesh3/Dikt/internal/pidfile"
	"github.com/rohithmahesh3/Dikt/internal/toggle"
)

func main() {
	versionFlag := flag.Bool("version", false, "print version and exit")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if *versionFlag {
		fmt.Println("dikt-daemon", ibus.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "prepare directories: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg, *debugFlag)
	defer logger.Close()

	pf, err := pidfile.Acquire(cfg.Daemon.PidFile)
	if err != nil {
		logger.Error("pid file", "error", err)
		os.Exit(1)
	}
	defer pf.Release()

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.Path)
		if err != nil {
			logger.Error("open history store", "error", err)
			os.Exit(1)
		}
		defer hist.Close()
	}

	state := daemon.NewState(daemon.Options{
		SessionTTL:        time.Duration(cfg.Daemon.SessionTTLSec) * time.Second,
		MaxPendingCommits: cfg.Daemon.MaxPendingCommits,
		History:           hist,
		Logger:            logger.Logger,
	})

	svc := daemon.NewService(state, cfg.Daemon.BusName)
	if err := svc.Start(); err != nil {
		logger.Error("start transcription service", "error", err)
		os.Exit(1)
	}
	defer svc.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Daemon.WatchBusFiles {
		watcher, err := ibus.NewAddressWatcher(nil)
		if err != nil {
			logger.Warn("bus file watcher unavailable", "error", err)
		} else if err := watcher.Start(); err != nil {
			logger.Warn("bus file watcher failed", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	if cfg.Hotkey.Enabled {
		mgr := toggle.NewManager(func(active bool) {
			onToggle(state, cfg, logger, active)
		})
		if err := mgr.Start(ctx, cfg.Hotkey.Modifiers, cfg.Hotkey.Key); err != nil {
			logger.Warn("hotkey registration failed", "error", err)
		} else {
			defer mgr.Stop()
			logger.Info("dictation hotkey registered",
				"modifiers", cfg.Hotkey.Modifiers, "key", cfg.Hotkey.Key)
		}
	}

	if cfg.History.Enabled && cfg.History.RetainDays > 0 {
		go pruneLoop(ctx, hist, cfg.History.RetainDays, logger)
	}

	logger.Info("dikt daemon started", "bus", cfg.Daemon.BusName, "version", ibus.Version)
	<-ctx.Done()
	logger.Info("dikt daemon shutting down")
}

// onToggle starts or stops dictation for the focused engine. Starting
// also switches the global engine to dikt so the session has somewhere
// to commit.
func onToggle(state *daemon.State, cfg *config.Config, logger *logging.Logger, active bool) {
	engineID, _ := state.FocusedEngine()

	if !active {
		sessionID, _, _ := state.ActiveSessionForEngine(engineID)
		if sessionID == 0 {
			return
		}
		if _, err := state.StopSession(sessionID); err != nil {
			logger.Warn("stop session from hotkey failed", "session", sessionID, "error", err)
		}
		return
	}

	timeout := time.Duration(cfg.Daemon.SwitchTimeoutMs) * time.Millisecond
	if name, err := ibus.SwitchToDiktEngine(timeout); err != nil {
		logger.Warn("engine switch failed", "error", err)
	} else {
		logger.Debug("engine switched", "engine", name)
	}

	if engineID == 0 {
		logger.Warn("no focused engine, dictation not started")
		return
	}
	if _, _, err := state.StartSession(engineID); err != nil {
		logger.Warn("start session from hotkey failed", "engine", engineID, "error", err)
	}
}

// pruneLoop removes transcripts past the retention window once an hour.
func pruneLoop(ctx context.Context, hist *history.Store, retainDays int, logger *logging.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().AddDate(0, 0, -retainDays)
		if removed, err := hist.Prune(cutoff); err != nil {
			logger.Warn("history prune failed", "error", err)
		} else if removed > 0 {
			logger.Info("history pruned", "removed", removed)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func setupLogging(cfg *config.Config, debug bool) *logging.Logger {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}
	if debug {
		level = logging.LevelDebug
	}

	logger, err := logging.New(&logging.Config{
		Level:     level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		Component: "dikt-daemon",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed, using stderr: %v\n", err)
		logger, _ = logging.New(nil)
	}
	logging.SetDefault(logger)
	return logger
}
