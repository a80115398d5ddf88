package castmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"
	"go2tv.app/castbutton/castprotocol"
)

// ErrNotSetUp is returned by StartScanning before a successful SetUp.
var ErrNotSetUp = errors.New("castmanager: SetUp has not completed")

// Provider is the casting provider a Coordinator drives.
// *castprotocol.CastContext satisfies it.
type Provider interface {
	SetUpContext(ctx context.Context) error
	CurrentSession() *castprotocol.Session
	RegisterRawListeners(state castprotocol.StateListener, session castprotocol.SessionListener)
	DeregisterRawListeners()
	DispatchVolumeKeyEvent(ev *tcell.EventKey) bool
}

// Coordinator owns the provider listener lifecycle and re-dispatches raw
// provider events to one consumer listener pair per scanning period.
//
// A Coordinator is not safe for concurrent use. All calls, and the
// provider's event delivery, must happen on the same event loop.
type Coordinator struct {
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	provider Provider

	setUpDone bool
	setUpErr  error

	raw             *rawListener
	scanListener    CastScanListener
	sessionListener SessionStateListener
	active          *castprotocol.Session
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogOutput enables logging to w.
func WithLogOutput(w io.Writer) Option {
	return func(c *Coordinator) { c.LogOutput = w }
}

// New returns a Coordinator bound to provider.
func New(provider Provider, opts ...Option) *Coordinator {
	c := &Coordinator{provider: provider}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *Coordinator) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// SetUp initializes the provider. Calls after the first have no effect
// and return the first call's result; a failure is never retried.
func (c *Coordinator) SetUp(ctx context.Context) error {
	if c.setUpDone {
		return c.setUpErr
	}
	c.setUpDone = true

	if err := c.provider.SetUpContext(ctx); err != nil {
		c.setUpErr = fmt.Errorf("castmanager setup: %w", err)
		c.Log().Error().Str("Method", "SetUp").Err(err).Msg("provider unavailable")
	}
	return c.setUpErr
}

// StartScanning begins a scanning period delivering to scan and session.
// A scanning period already in progress is stopped first.
func (c *Coordinator) StartScanning(scan CastScanListener, session SessionStateListener) error {
	if !c.setUpDone || c.setUpErr != nil {
		return ErrNotSetUp
	}

	if c.Scanning() {
		c.StopScanning()
	}

	c.raw = &rawListener{c: c}
	c.scanListener = scan
	c.sessionListener = session
	c.provider.RegisterRawListeners(c.raw, c.raw)

	if c.active == nil {
		c.active = c.provider.CurrentSession()
	}

	c.Log().Debug().Str("Method", "StartScanning").Bool("Adopted", c.active != nil).Msg("scanning")
	return nil
}

// StopScanning ends the scanning period. No consumer callback runs after
// it returns. It is a no-op when not scanning.
func (c *Coordinator) StopScanning() {
	if c.raw == nil {
		return
	}

	c.provider.DeregisterRawListeners()
	c.raw = nil
	c.scanListener = nil
	c.sessionListener = nil

	c.Log().Debug().Str("Method", "StopScanning").Msg("stopped")
}

// Scanning reports whether a scanning period is in progress.
func (c *Coordinator) Scanning() bool {
	return c.raw != nil
}

// ActiveSession returns the session the coordinator is tracking, or nil.
func (c *Coordinator) ActiveSession() *castprotocol.Session {
	return c.active
}

// DispatchKeyEvent offers ev to the provider's volume handling and
// reports whether it was consumed.
func (c *Coordinator) DispatchKeyEvent(ev *tcell.EventKey) bool {
	return c.provider.DispatchVolumeKeyEvent(ev)
}

func (c *Coordinator) handle(from *rawListener, ev castprotocol.Event) {
	if from != c.raw {
		return
	}

	tr, ok := translate(ev)
	if !ok {
		c.Log().Debug().Str("Method", "handle").Str("Event", fmt.Sprint(ev)).Msg("dropped unrecognized event")
		return
	}

	switch tr.track {
	case trackCapture:
		c.active = tr.handle
	case trackRelease:
		if tr.handle == c.active {
			c.active = nil
		} else {
			c.Log().Debug().Str("Method", "handle").Msg("ignoring ended event for a stale session")
		}
	}

	if tr.scan != nil && c.scanListener != nil {
		tr.scan(c.scanListener)
	}
	if tr.session != nil && c.sessionListener != nil {
		tr.session(c.sessionListener)
	}
}

// rawListener is the registration handed to the provider. Events reaching
// a listener that is no longer current are discarded.
type rawListener struct {
	c *Coordinator
}

func (l *rawListener) CastStateChanged(ev castprotocol.StateEvent) {
	l.c.handle(l, ev)
}

func (l *rawListener) SessionChanged(ev castprotocol.SessionEvent) {
	l.c.handle(l, ev)
}
