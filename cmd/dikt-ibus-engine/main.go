//go:build linux

// dikt-ibus-engine is the IBus engine process for Dikt.
//
// It connects to the IBus daemon's private bus, exports the engine
// factory, and bridges engine instances to the Dikt transcription
// daemon: committed transcripts arrive as IBus CommitText, live partial
// results as preedit text, and Escape cancels the active session.
//
// Installation:
//  1. Copy binary to /usr/local/bin/dikt-ibus-engine
//  2. Run dikt-ibus-engine -install
//  3. Restart IBus: ibus restart
//  4. Enable via ibus-setup or GNOME Settings > Keyboard > Input Sources
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/rohithmahesh3/Dikt/internal/config"
	"github.com/rohithmahesh3/Dikt/internal/host"
	"github.com/rohithmahesh3/Dikt/internal/ibus"
	"github.com/rohithmahesh3/Dikt/internal/logging"
)

func main() {
	ibusFlag := flag.Bool("ibus", false, "run as IBus engine (passed by ibus-daemon)")
	installFlag := flag.Bool("install", false, "install the IBus component file")
	uninstallFlag := flag.Bool("uninstall", false, "remove the IBus component file")
	selfRegister := flag.Bool("self-register", false, "register the component directly instead of relying on the component file")
	versionFlag := flag.Bool("version", false, "print version and exit")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if *versionFlag {
		fmt.Println("dikt-ibus-engine", ibus.Version)
		return
	}

	if *installFlag {
		if err := ibus.InstallComponent(); err != nil {
			fmt.Fprintf(os.Stderr, "install failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Installed. Run 'ibus restart' to load the engine.")
		return
	}

	if *uninstallFlag {
		if err := ibus.UninstallComponent(); err != nil {
			fmt.Fprintf(os.Stderr, "uninstall failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Uninstalled.")
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

	logger := setupLogging(cfg, *debugFlag)
	defer logger.Close()

	// ibus-daemon spawns the engine with --ibus; without it assume a
	// manual run and register the component ourselves unless the
	// component file route was asked for.
	mode := ibus.ManagedByIBus
	if *selfRegister || cfg.Engine.SelfRegister || !*ibusFlag {
		mode = ibus.SelfRegistered
	}

	sessionBus, err := dbus.SessionBus()
	if err != nil {
		logger.Error("session bus unavailable", "error", err)
		os.Exit(1)
	}

	hostCtx := host.NewContext(host.NewClient(sessionBus), host.ContextOptions{
		PollInterval:   time.Duration(cfg.Engine.CommitPollMs) * time.Millisecond,
		PreeditEnabled: cfg.Engine.PreeditEnabled,
		Logger:         logger.Logger,
	})
	defer hostCtx.Close()

	ibus.SetLogger(logger.Logger)
	ibus.Install(hostCtx, hostCtx.Callbacks())

	if code := ibus.Init(mode); code != ibus.InitOK {
		logger.Error("IBus initialization failed", "code", code)
		os.Exit(code)
	}
	defer ibus.Cleanup()

	logger.Info("dikt IBus engine started", "version", ibus.Version, "mode", mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ibus.Run(ctx)
	logger.Info("dikt IBus engine shutting down")
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
		Component: "dikt-ibus-engine",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging setup failed, using stderr: %v\n", err)
		logger, _ = logging.New(nil)
	}
	logging.SetDefault(logger)
	return logger
}
