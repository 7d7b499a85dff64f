package host

import (
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rohithmahesh3/Dikt/internal/ibus"
)

const defaultPollInterval = 60 * time.Millisecond

// EngineSurface is the slice of an engine instance the host drives.
// *ibus.Engine satisfies it.
type EngineSurface interface {
	ID() uint64
	CommitText(text string) error
	UpdatePreeditText(text string, cursorPos uint32, visible bool) error
	HidePreeditText() error
}

// Context wires engine instances to the transcription daemon. One
// Context serves the whole engine process; per-instance poll loops run
// while an instance is enabled.
type Context struct {
	client       TranscriptionClient
	pollInterval time.Duration
	preedit      bool
	logger       *slog.Logger

	mu    sync.Mutex
	loops map[uint64]chan struct{}
	wg    sync.WaitGroup
}

// ContextOptions configures the engine host.
type ContextOptions struct {
	// PollInterval is the daemon poll cadence while an engine is
	// enabled.
	PollInterval time.Duration

	// PreeditEnabled shows live partial transcripts as preedit text.
	PreeditEnabled bool

	// Logger receives host logs.
	Logger *slog.Logger
}

// NewContext creates an engine host over the given daemon client.
func NewContext(client TranscriptionClient, opts ContextOptions) *Context {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Context{
		client:       client,
		pollInterval: opts.PollInterval,
		preedit:      opts.PreeditEnabled,
		logger:       opts.Logger,
		loops:        make(map[uint64]chan struct{}),
	}
}

// Callbacks returns the engine callback table backed by this context.
func (c *Context) Callbacks() ibus.Callbacks {
	return ibus.Callbacks{
		KeyEvent: func(_ interface{}, engine *ibus.Engine, keyval, keycode, state uint32) bool {
			return c.handleKeyEvent(engine, keyval, keycode, state)
		},
		FocusIn: func(_ interface{}, engine *ibus.Engine) {
			c.handleFocusIn(engine)
		},
		FocusOut: func(_ interface{}, engine *ibus.Engine) {
			c.handleFocusOut(engine)
		},
		Reset: func(_ interface{}, engine *ibus.Engine) {
			c.handleReset(engine)
		},
		Enable: func(_ interface{}, engine *ibus.Engine) {
			c.handleEnable(engine)
		},
		Disable: func(_ interface{}, engine *ibus.Engine) {
			c.handleDisable(engine)
		},
	}
}

// handleKeyEvent consumes Escape while a session is live, cancelling it.
// Everything else passes through to the application.
func (c *Context) handleKeyEvent(engine EngineSurface, keyval, keycode, state uint32) bool {
	if keyval != ibus.KeyEscape {
		return false
	}
	if state&ibus.ReleaseMask != 0 {
		return false
	}

	sessionID, _, _, err := c.client.ActiveSessionForEngine(engine.ID())
	if err != nil || sessionID == 0 {
		return false
	}

	if _, err := c.client.CancelSession(sessionID); err != nil {
		c.logger.Warn("cancel on escape failed", "session", sessionID, "error", err)
		return false
	}
	engine.HidePreeditText()
	c.logger.Info("session cancelled via escape", "session", sessionID, "engine", engine.ID())
	return true
}

func (c *Context) handleFocusIn(engine EngineSurface) {
	if err := c.client.SetFocusedEngine(engine.ID(), true); err != nil {
		c.logger.Debug("focus report failed", "engine", engine.ID(), "error", err)
	}
}

func (c *Context) handleFocusOut(engine EngineSurface) {
	if err := c.client.SetFocusedEngine(engine.ID(), false); err != nil {
		c.logger.Debug("focus report failed", "engine", engine.ID(), "error", err)
	}
}

func (c *Context) handleReset(engine EngineSurface) {
	engine.HidePreeditText()
}

// handleEnable reports focus and starts the poll loop for the instance.
func (c *Context) handleEnable(engine EngineSurface) {
	c.handleFocusIn(engine)
	c.startLoop(engine)
}

// handleDisable stops the poll loop and clears daemon focus.
func (c *Context) handleDisable(engine EngineSurface) {
	c.stopLoop(engine.ID())
	c.handleFocusOut(engine)
	engine.HidePreeditText()
}

func (c *Context) startLoop(engine EngineSurface) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, running := c.loops[engine.ID()]; running {
		return
	}
	done := make(chan struct{})
	c.loops[engine.ID()] = done

	c.wg.Add(1)
	go c.pollLoop(engine, done)
}

func (c *Context) stopLoop(engineID uint64) {
	c.mu.Lock()
	done, ok := c.loops[engineID]
	if ok {
		delete(c.loops, engineID)
	}
	c.mu.Unlock()
	if ok {
		close(done)
	}
}

// Close stops all poll loops and waits for them to finish.
func (c *Context) Close() {
	c.mu.Lock()
	for id, done := range c.loops {
		close(done)
		delete(c.loops, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// pollLoop delivers pending commits and live preedit updates to one
// engine instance until stopped.
func (c *Context) pollLoop(engine EngineSurface, done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastRevision uint64
	var preeditShown bool

	for {
		select {
		case <-done:
			if preeditShown {
				engine.HidePreeditText()
			}
			return
		case <-ticker.C:
		}

		sessionID, claimToken, allowPreedit, err := c.client.ActiveSessionForEngine(engine.ID())
		if err != nil {
			c.logger.Debug("active session poll failed", "engine", engine.ID(), "error", err)
			continue
		}
		if sessionID == 0 {
			if preeditShown {
				engine.HidePreeditText()
				preeditShown = false
			}
			continue
		}

		if taken, text, err := c.client.TakePendingCommit(sessionID, claimToken); err == nil && taken {
			if preeditShown {
				engine.HidePreeditText()
				preeditShown = false
			}
			if text != "" {
				if err := engine.CommitText(text); err != nil {
					c.logger.Warn("commit failed", "session", sessionID, "error", err)
				} else {
					c.logger.Info("transcript committed",
						"session", sessionID, "engine", engine.ID(), "chars", len(text))
				}
			}
			continue
		}

		if !c.preedit || !allowPreedit {
			continue
		}

		revision, visible, text, err := c.client.LivePreedit(sessionID, claimToken)
		if err != nil || revision == 0 || revision == lastRevision {
			continue
		}
		lastRevision = revision

		if visible && text != "" {
			cursor := uint32(utf8.RuneCountInString(text))
			engine.UpdatePreeditText(text, cursor, true)
			preeditShown = true
		} else if preeditShown {
			engine.HidePreeditText()
			preeditShown = false
		}
	}
}
