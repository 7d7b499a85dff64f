package ibus

import (
	"sync"

	"github.com/fsnotify/fsnotify"
)

// AddressWatcher invalidates the daemon bus cache when the IBus daemon
// rewrites its bus files, which happens on daemon restart and on display
// changes. Without it the daemon keeps retrying a dead address until the
// first failed call resets the cache.
type AddressWatcher struct {
	fsWatcher *fsnotify.Watcher
	onChange  func()

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewAddressWatcher creates a watcher over the IBus bus directories.
// onChange defaults to ResetDaemonBusCache.
func NewAddressWatcher(onChange func()) (*AddressWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if onChange == nil {
		onChange = ResetDaemonBusCache
	}
	return &AddressWatcher{
		fsWatcher: fsWatcher,
		onChange:  onChange,
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Missing bus directories are skipped; they are
// created by the IBus daemon on first start and picked up on restart.
func (w *AddressWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	watched := 0
	for _, dir := range candidateBusDirs() {
		if err := w.fsWatcher.Add(dir); err == nil {
			watched++
		}
	}
	logger.Debug("watching IBus bus directories", "count", watched)

	w.running = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *AddressWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0 {
				logger.Info("IBus bus file changed, resetting daemon bus cache",
					"path", event.Name)
				w.onChange()
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logger.Warn("bus directory watch error", "error", err)
		}
	}
}

// Stop ends watching and releases the underlying watcher.
func (w *AddressWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		w.fsWatcher.Close()
		return
	}
	w.running = false
	close(w.done)
	w.fsWatcher.Close()
	w.wg.Wait()
}
