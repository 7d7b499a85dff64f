// diktctl is the control CLI for the Dikt daemon.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/rohithmahesh3/Dikt/internal/config"
	"github.com/rohithmahesh3/Dikt/internal/daemon"
	"github.com/rohithmahesh3/Dikt/internal/history"
	"github.com/rohithmahesh3/Dikt/internal/host"
	"github.com/rohithmahesh3/Dikt/internal/ibus"
	"github.com/rohithmahesh3/Dikt/internal/pidfile"
)

var (
	configPath = flag.String("config", "", "path to config file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)

	switch cmd {
	case "status":
		cmdStatus()
	case "logs":
		cmdLogs()
	case "engine":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: diktctl engine <get|set|switch> [name]")
			os.Exit(1)
		}
		cmdEngine(flag.Arg(1), flag.Args()[2:])
	case "language":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: diktctl language <get|set> [lang]")
			os.Exit(1)
		}
		cmdLanguage(flag.Arg(1), flag.Args()[2:])
	case "record":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: diktctl record <start|stop|cancel> [id]")
			os.Exit(1)
		}
		cmdRecord(flag.Arg(1), flag.Args()[2:])
	case "history":
		limit := 20
		if flag.NArg() >= 2 {
			n, err := strconv.Atoi(flag.Arg(1))
			if err != nil || n <= 0 {
				fmt.Fprintln(os.Stderr, "Usage: diktctl history [limit]")
				os.Exit(1)
			}
			limit = n
		}
		cmdHistory(limit)
	case "version":
		fmt.Println("diktctl", ibus.Version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `diktctl - Control utility for the Dikt daemon

Usage: diktctl [options] <command> [args]

Commands:
  status                 Show daemon status
  logs                   Print recent daemon log lines
  engine get             Show the current global IBus engine
  engine set <name>      Switch the global IBus engine and verify it took
  engine switch          Switch the global IBus engine to dikt
  language get           Show the transcription language
  language set <lang>    Set the transcription language
  record start <engine>  Start a recording session targeting an engine ID
  record stop <id>       Stop a recording session
  record cancel <id>     Cancel a recording session
  history [limit]        Print recent committed transcripts
  version                Print version
  help                   Show this help message

Options:
  -config <path>  Path to config file (default: ~/.config/dikt/config.toml)`)
}

func loadConfig() *config.Config {
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// daemonObject connects to the session bus and returns the daemon's
// transcription object.
func daemonObject(cfg *config.Config) dbus.BusObject {
	conn, err := dbus.SessionBus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to session bus: %v\n", err)
		os.Exit(1)
	}
	return conn.Object(cfg.Daemon.BusName, daemon.ObjectPath)
}

func cmdStatus() {
	cfg := loadConfig()

	fmt.Println("=== dikt Status ===")
	fmt.Println()

	pid, err := pidfile.Read(cfg.Daemon.PidFile)
	if err != nil {
		fmt.Println("Daemon Status: NOT RUNNING")
	} else if processExists(pid) {
		fmt.Printf("Daemon Status: RUNNING (PID %d)\n", pid)
	} else {
		fmt.Printf("Daemon Status: STALE PID FILE (PID %d not found)\n", pid)
	}
	fmt.Println()

	obj := daemonObject(cfg)

	var statusJSON string
	if err := obj.Call(daemon.Interface+".GetStatusJson", 0).Store(&statusJSON); err != nil {
		fmt.Printf("Daemon unreachable on %s: %v\n", cfg.Daemon.BusName, err)
		return
	}

	var status daemon.Status
	if err := json.Unmarshal([]byte(statusJSON), &status); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding status: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Recording:       %v\n", status.Recording)
	fmt.Printf("Language:        %s\n", status.Language)
	fmt.Printf("Sessions:        %d\n", status.SessionCount)
	if status.FocusedEngineID != 0 {
		fmt.Printf("Focused Engine:  %d (for %s)\n",
			status.FocusedEngineID, time.Duration(status.FocusedChangeMs)*time.Millisecond)
	} else {
		fmt.Println("Focused Engine:  (none)")
	}
	fmt.Println()

	fmt.Println("Pending Commits:")
	fmt.Println(indentJSON(status.PendingCommits))
}

func cmdLogs() {
	cfg := loadConfig()
	obj := daemonObject(cfg)

	var lines []string
	if err := obj.Call(daemon.Interface+".GetRecentLogs", 0).Store(&lines); err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching logs: %v\n", err)
		os.Exit(1)
	}

	if len(lines) == 0 {
		fmt.Println("No log lines recorded.")
		return
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

func cmdEngine(sub string, args []string) {
	cfg := loadConfig()
	timeout := time.Duration(cfg.Daemon.SwitchTimeoutMs) * time.Millisecond

	switch sub {
	case "get":
		name, err := ibus.CurrentEngine()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error querying IBus: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(name)
	case "set":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: diktctl engine set <name>")
			os.Exit(1)
		}
		name, err := ibus.SwitchEngineVerified(args[0], timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Switch failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Engine is now: %s\n", name)
	case "switch":
		name, err := ibus.SwitchToDiktEngine(timeout)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Switch failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Engine is now: %s\n", name)
	default:
		fmt.Fprintf(os.Stderr, "Unknown engine subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func cmdLanguage(sub string, args []string) {
	cfg := loadConfig()
	obj := daemonObject(cfg)

	switch sub {
	case "get":
		var lang string
		if err := obj.Call(daemon.Interface+".GetLanguage", 0).Store(&lang); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(lang)
	case "set":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: diktctl language set <lang>")
			os.Exit(1)
		}
		if err := obj.Call(daemon.Interface+".SetLanguage", 0, args[0]).Err; err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Language set to: %s\n", args[0])
	default:
		fmt.Fprintf(os.Stderr, "Unknown language subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func cmdRecord(sub string, args []string) {
	cfg := loadConfig()
	client := host.NewClientFromObject(daemonObject(cfg))

	parseID := func(usage string) uint64 {
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(1)
		}
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid id: %s\n", args[0])
			os.Exit(1)
		}
		return id
	}

	switch sub {
	case "start":
		engineID := parseID("Usage: diktctl record start <engine-id>")
		sessionID, token, err := client.StartSession(engineID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Start failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session:     %d\n", sessionID)
		fmt.Printf("Claim token: %s\n", token)
	case "stop":
		sessionID := parseID("Usage: diktctl record stop <session-id>")
		ok, err := client.StopSession(sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stop failed: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("Session was not recording.")
			os.Exit(1)
		}
		fmt.Println("Session stopped, finalizing.")
	case "cancel":
		sessionID := parseID("Usage: diktctl record cancel <session-id>")
		ok, err := client.CancelSession(sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cancel failed: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("No such session.")
			os.Exit(1)
		}
		fmt.Println("Session cancelled.")
	default:
		fmt.Fprintf(os.Stderr, "Unknown record subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func cmdHistory(limit int) {
	cfg := loadConfig()

	if !cfg.History.Enabled {
		fmt.Fprintln(os.Stderr, "History is disabled in the config.")
		os.Exit(1)
	}
	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		fmt.Println("No transcripts recorded.")
		return
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	transcripts, err := store.Recent(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading history: %v\n", err)
		os.Exit(1)
	}

	if len(transcripts) == 0 {
		fmt.Println("No transcripts recorded.")
		return
	}

	fmt.Println("=== Transcript History ===")
	fmt.Printf("%-20s %-10s %s\n", "Committed", "Session", "Text")
	fmt.Println(strings.Repeat("-", 60))
	for _, tr := range transcripts {
		fmt.Printf("%-20s %-10d %s\n",
			tr.CommittedAt.Local().Format("2006-01-02 15:04:05"),
			tr.SessionID, truncate(tr.Text, 60))
	}
}

// Helper functions

func processExists(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds, we need to send signal 0
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func indentJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "  (none)"
	}
	var buf strings.Builder
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "  " + string(raw)
	}
	data, _ := json.MarshalIndent(v, "  ", "  ")
	buf.WriteString("  ")
	buf.Write(data)
	return buf.String()
}
