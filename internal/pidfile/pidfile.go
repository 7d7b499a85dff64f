// Package pidfile guards against concurrent daemon instances with an
// flock-held pid file.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// File is an acquired pid file. The flock is held until Release.
type File struct {
	path string
	f    *os.File
}

// Acquire creates the pid file, takes an exclusive non-blocking lock,
// and writes the current pid. Fails if another process holds the lock.
func Acquire(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("pid file %s is locked (daemon already running?): %w", path, err)
	}

	if err := f.Truncate(0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("write pid file: %w", err)
	}

	return &File{path: path, f: f}, nil
}

// Release drops the lock and removes the pid file. Safe to call more
// than once.
func (p *File) Release() error {
	if p.f == nil {
		return nil
	}
	unix.Flock(int(p.f.Fd()), unix.LOCK_UN)
	err := p.f.Close()
	p.f = nil
	os.Remove(p.path)
	return err
}

// Read returns the pid recorded in an existing pid file.
func Read(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(trimNewline(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file %s: %w", path, err)
	}
	return pid, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
