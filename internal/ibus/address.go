package ibus

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

const ibusAddressPrefix = "IBUS_ADDRESS="

var bootstrapWarned atomic.Bool

// candidateBusDirs returns the directories where the IBus daemon writes its
// per-display bus files, most specific first.
func candidateBusDirs() []string {
	var dirs []string
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		dirs = append(dirs, filepath.Join(configHome, "ibus", "bus"))
	}
	if home := os.Getenv("HOME"); home != "" {
		fallback := filepath.Join(home, ".config", "ibus", "bus")
		if len(dirs) == 0 || dirs[0] != fallback {
			dirs = append(dirs, fallback)
		}
	}
	return dirs
}

// parseAddressFromContents extracts the IBUS_ADDRESS= line from a bus file.
func parseAddressFromContents(contents string) (string, bool) {
	for _, line := range strings.Split(contents, "\n") {
		value, ok := strings.CutPrefix(line, ibusAddressPrefix)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value != "" {
			return value, true
		}
	}
	return "", false
}

func parseAddressFromFile(path string) (string, bool) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return parseAddressFromContents(string(contents))
}

func machineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// waylandToken returns the "-unix-<display>" fragment IBus embeds in bus
// file names on Wayland sessions.
func waylandToken() string {
	display := strings.TrimSpace(os.Getenv("WAYLAND_DISPLAY"))
	if display == "" {
		return ""
	}
	return "-unix-" + display
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// scoreBusFileName ranks a bus file for the current session: files for this
// machine beat foreign ones, and files for the active Wayland display beat
// stale X11 leftovers.
func scoreBusFileName(name, machineID, waylandToken string) int {
	score := 0
	if machineID != "" && strings.HasPrefix(name, machineID) {
		score += 20
	}
	if waylandToken != "" && strings.Contains(name, waylandToken) {
		score += 50
	}
	return score
}

// DiscoverAddress scans the IBus bus directories for the address of the
// daemon serving the current session. Returns the address and the file it
// was read from.
func DiscoverAddress() (address, source string, ok bool) {
	id := machineID()
	token := waylandToken()

	bestScore := -1
	var bestModTime time.Time

	for _, dir := range candidateBusDirs() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			addr, found := parseAddressFromFile(path)
			if !found {
				continue
			}
			score := scoreBusFileName(entry.Name(), id, token)
			modTime := fileModTime(path)
			if score > bestScore || (score == bestScore && modTime.After(bestModTime)) {
				bestScore = score
				bestModTime = modTime
				address = addr
				source = path
			}
		}
	}

	return address, source, address != ""
}

// ResolveAddress returns the IBus daemon bus address: IBUS_ADDRESS wins,
// otherwise the bus files are scanned.
func ResolveAddress() (string, error) {
	if addr := strings.TrimSpace(os.Getenv("IBUS_ADDRESS")); addr != "" {
		return addr, nil
	}
	if addr, _, ok := DiscoverAddress(); ok {
		return addr, nil
	}
	return "", errors.New("ibus: no IBus bus address found")
}

// ensureDaemonAddress makes IBUS_ADDRESS available to the daemon process,
// which normally runs outside the environment the IBus daemon exports to
// its children. Warns once when nothing can be discovered.
func ensureDaemonAddress() {
	if os.Getenv("IBUS_ADDRESS") != "" {
		return
	}

	addr, source, ok := DiscoverAddress()
	if !ok {
		if !bootstrapWarned.Swap(true) {
			logger.Warn("IBUS_ADDRESS is unset and no readable IBus bus file was found",
				"checked", strings.Join(candidateBusDirs(), ", "))
		}
		return
	}

	os.Setenv("IBUS_ADDRESS", addr)
	bootstrapWarned.Store(false)
	logger.Info("configured IBUS_ADDRESS for daemon", "source", source)
}
