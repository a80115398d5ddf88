package castprotocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rs/zerolog"
	"go2tv.app/castbutton/devices"
	"golang.org/x/time/rate"
)

const (
	defaultVolumeStep     = 0.05
	defaultVolumeRate     = 8
	defaultHealthInterval = 5 * time.Second
	defaultResumeAttempts = 3
	defaultResumeBackoff  = 2 * time.Second
)

var (
	ErrCastUnavailable = errors.New("cast provider unavailable")
	ErrNotInitialized  = errors.New("cast provider not set up")
	ErrSessionActive   = errors.New("cast session already active")
	ErrNoSession       = errors.New("no active cast session")
)

// Discoverer is the device discovery backend a CastContext aggregates.
type Discoverer interface {
	Start(ctx context.Context) error
	Devices() []devices.Device
	OnChange(fn func())
}

// CastContext is the process-wide casting provider. It owns discovery,
// the single active session and the raw listener registrations, and
// posts every raw event through its Executor.
type CastContext struct {
	Logger      zerolog.Logger
	LogOutput   io.Writer
	initLogOnce sync.Once

	discovery      Discoverer
	exec           Executor
	volumeStep     float32
	volumeLimiter  *rate.Limiter
	healthInterval time.Duration
	resumeAttempts int
	resumeBackoff  time.Duration
	healthCheck    func(hostPort string) bool

	setupOnce sync.Once
	setupErr  error

	wg sync.WaitGroup

	mu              sync.Mutex
	runCtx          context.Context
	state           CastState
	session         *Session
	monitorCancel   context.CancelFunc
	pending         bool
	resuming        bool
	ending          bool
	stateListener   StateListener
	sessionListener SessionListener
}

// Option configures a CastContext.
type Option func(*CastContext)

// WithExecutor sets the event loop raw events are delivered on.
func WithExecutor(e Executor) Option {
	return func(c *CastContext) { c.exec = e }
}

// WithVolumeStep sets the volume change applied per key press.
func WithVolumeStep(step float32) Option {
	return func(c *CastContext) {
		if step > 0 {
			c.volumeStep = step
		}
	}
}

// WithVolumeRate limits how many volume key presses per second reach the receiver.
func WithVolumeRate(perSecond float64) Option {
	return func(c *CastContext) {
		if perSecond > 0 {
			c.volumeLimiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithHealthInterval sets how often an active session's receiver is checked.
func WithHealthInterval(d time.Duration) Option {
	return func(c *CastContext) {
		if d > 0 {
			c.healthInterval = d
		}
	}
}

// WithResume sets how many reconnects are tried after a suspension and
// the base delay between them.
func WithResume(attempts int, backoff time.Duration) Option {
	return func(c *CastContext) {
		if attempts > 0 {
			c.resumeAttempts = attempts
		}
		if backoff >= 0 {
			c.resumeBackoff = backoff
		}
	}
}

// WithLogOutput enables logging to w.
func WithLogOutput(w io.Writer) Option {
	return func(c *CastContext) { c.LogOutput = w }
}

// NewCastContext builds a provider on top of discovery. Without
// WithExecutor, events are delivered inline on the goroutine that
// produced them.
func NewCastContext(discovery Discoverer, opts ...Option) *CastContext {
	c := &CastContext{
		discovery:      discovery,
		exec:           InlineExecutor,
		volumeStep:     defaultVolumeStep,
		volumeLimiter:  rate.NewLimiter(rate.Limit(defaultVolumeRate), 1),
		healthInterval: defaultHealthInterval,
		resumeAttempts: defaultResumeAttempts,
		resumeBackoff:  defaultResumeBackoff,
		healthCheck:    devices.HostPortIsAlive,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Log returns the zerolog logger, initializing it lazily if LogOutput is set.
func (c *CastContext) Log() *zerolog.Logger {
	if c.LogOutput != nil {
		c.initLogOnce.Do(func() {
			c.Logger = zerolog.New(c.LogOutput).With().Timestamp().Logger()
		})
	}
	return &c.Logger
}

// SetUpContext starts discovery. Only the first call does any work; a
// failure is remembered and returned by every later call.
func (c *CastContext) SetUpContext(ctx context.Context) error {
	c.setupOnce.Do(func() {
		c.discovery.OnChange(c.refreshState)
		if err := c.discovery.Start(ctx); err != nil {
			c.setupErr = fmt.Errorf("%w: %w", ErrCastUnavailable, err)
			c.Log().Error().Str("Method", "SetUpContext").Err(err).Msg("discovery failed to start")
			return
		}

		c.mu.Lock()
		c.runCtx = ctx
		c.mu.Unlock()

		c.Log().Debug().Str("Method", "SetUpContext").Msg("discovery started")
		c.refreshState()
	})

	return c.setupErr
}

// CastState returns the last discovery state the provider computed.
// It is zero until the first state has been evaluated.
func (c *CastContext) CastState() CastState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Devices returns the currently known receivers.
func (c *CastContext) Devices() []devices.Device {
	return c.discovery.Devices()
}

// CurrentSession returns the connected or resuming session, or nil.
func (c *CastContext) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// RegisterRawListeners replaces the current registrations.
func (c *CastContext) RegisterRawListeners(state StateListener, session SessionListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListener = state
	c.sessionListener = session
}

// DeregisterRawListeners removes both registrations. It never fails,
// including when nothing is registered.
func (c *CastContext) DeregisterRawListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateListener = nil
	c.sessionListener = nil
}

// DispatchVolumeKeyEvent turns PgUp/PgDn into receiver volume changes
// while a session is connected. It reports whether the key was consumed.
// Presses beyond the configured rate are consumed but dropped.
func (c *CastContext) DispatchVolumeKeyEvent(ev *tcell.EventKey) bool {
	if ev == nil {
		return false
	}

	var delta float32
	switch ev.Key() {
	case tcell.KeyPgUp:
		delta = c.volumeStep
	case tcell.KeyPgDn:
		delta = -c.volumeStep
	default:
		return false
	}

	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil || !sess.IsConnected() {
		return false
	}

	if !c.volumeLimiter.Allow() {
		return true
	}

	c.goTracked(func() {
		if err := sess.AdjustVolume(delta); err != nil {
			c.Log().Error().Str("Method", "DispatchVolumeKeyEvent").Err(err).Msg("volume change failed")
		}
	})
	return true
}

// StartSession connects to dev in the background. Starting is posted
// immediately, followed by Started or StartFailed.
func (c *CastContext) StartSession(dev devices.Device) error {
	c.mu.Lock()
	if c.runCtx == nil {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	if c.session != nil || c.pending {
		c.mu.Unlock()
		return ErrSessionActive
	}

	sess, err := NewSession(dev)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("StartSession: %w", err)
	}
	sess.LogOutput = c.LogOutput
	c.pending = true
	ctx := c.runCtx
	c.mu.Unlock()

	c.Log().Debug().Str("Method", "StartSession").Str("Device", dev.Addr).Str("Session", sess.ID()).Msg("starting")
	c.postSession(SessionEvent{Type: SessionStarting, Session: sess})
	c.refreshState()

	c.goTracked(func() { c.connect(ctx, sess) })
	return nil
}

func (c *CastContext) goTracked(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

// Wait blocks until the background work started by StartSession,
// EndSession and the session monitor has returned. Cancel the context
// given to SetUpContext first, or end the session, or Wait may block
// for as long as the session lives.
func (c *CastContext) Wait() {
	c.wg.Wait()
}

func (c *CastContext) connect(ctx context.Context, sess *Session) {
	err := sess.Connect()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
		_ = sess.Close(false)
	}

	c.mu.Lock()
	c.pending = false
	var monitorCtx context.Context
	if err == nil {
		c.session = sess
		monitorCtx, c.monitorCancel = context.WithCancel(ctx)
	}
	c.mu.Unlock()

	if err != nil {
		c.Log().Error().Str("Method", "StartSession").Str("Session", sess.ID()).Err(err).Msg("start failed")
		c.postSession(SessionEvent{Type: SessionStartFailed, Session: sess, Code: StatusCode(err)})
		c.refreshState()
		return
	}

	c.postSession(SessionEvent{Type: SessionStarted, Session: sess, SessionID: sess.ID()})
	c.refreshState()
	c.goTracked(func() { c.monitor(monitorCtx, sess) })
}

// EndSession closes the active session in the background. Ending is
// posted immediately, followed by Ended.
func (c *CastContext) EndSession(stopMedia bool) error {
	c.mu.Lock()
	sess := c.session
	if sess == nil || c.ending {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.ending = true
	if c.monitorCancel != nil {
		c.monitorCancel()
		c.monitorCancel = nil
	}
	c.mu.Unlock()

	c.postSession(SessionEvent{Type: SessionEnding, Session: sess})

	c.goTracked(func() {
		err := sess.Close(stopMedia)

		c.mu.Lock()
		if c.session == sess {
			c.session = nil
		}
		c.ending = false
		c.mu.Unlock()

		c.postSession(SessionEvent{Type: SessionEnded, Session: sess, Code: StatusCode(err)})
		c.refreshState()
	})
	return nil
}

// monitor checks the receiver and drives suspend/resume when it stops answering.
func (c *CastContext) monitor(ctx context.Context, sess *Session) {
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if c.healthCheck(sess.HostPort()) {
			continue
		}

		if !c.suspendAndResume(ctx, sess) {
			return
		}
	}
}

func (c *CastContext) suspendAndResume(ctx context.Context, sess *Session) bool {
	c.mu.Lock()
	if c.session != sess || c.ending {
		c.mu.Unlock()
		return false
	}
	c.resuming = true
	c.mu.Unlock()

	sess.markDisconnected()
	c.Log().Debug().Str("Method", "monitor").Str("Session", sess.ID()).Msg("receiver unreachable, suspending")
	c.postSession(SessionEvent{Type: SessionSuspended, Session: sess, Code: StatusNetworkError})
	c.postSession(SessionEvent{Type: SessionResuming, Session: sess, SessionID: sess.ID()})
	c.refreshState()

	var err error
	for attempt := range c.resumeAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt) * c.resumeBackoff):
			}
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		if err = sess.Reconnect(ctx); err == nil {
			break
		}
		c.Log().Debug().Str("Method", "monitor").Int("Attempt", attempt+1).Err(err).Msg("resume retry")
	}

	c.mu.Lock()
	c.resuming = false
	if c.ending || c.session != sess {
		// EndSession owns the outcome and reports Ended.
		c.mu.Unlock()
		c.refreshState()
		return false
	}
	if err != nil {
		c.session = nil
		if c.monitorCancel != nil {
			c.monitorCancel()
			c.monitorCancel = nil
		}
	}
	c.mu.Unlock()

	if err != nil {
		_ = sess.Close(false)
		c.Log().Error().Str("Method", "monitor").Str("Session", sess.ID()).Err(err).Msg("resume failed")
		c.postSession(SessionEvent{Type: SessionResumeFailed, Session: sess, Code: StatusCode(err)})
		c.refreshState()
		return false
	}

	c.postSession(SessionEvent{Type: SessionResumed, Session: sess, WasSuspended: true})
	c.refreshState()
	return true
}

func (c *CastContext) computeStateLocked() CastState {
	switch {
	case c.pending || c.resuming:
		return Connecting
	case c.session != nil && c.session.IsConnected():
		return Connected
	case len(c.discovery.Devices()) > 0:
		return NotConnected
	default:
		return NoDevicesAvailable
	}
}

// refreshState posts a state evaluation. The evaluation itself runs on
// the executor so transitions are seen in executor order, and a
// StateEvent is delivered only when the state actually changes.
func (c *CastContext) refreshState() {
	c.exec.Post(func() {
		c.mu.Lock()
		next := c.computeStateLocked()
		changed := next != c.state
		c.state = next
		l := c.stateListener
		c.mu.Unlock()

		if changed && l != nil {
			l.CastStateChanged(StateEvent{State: next})
		}
	})
}

// postSession looks the listener up when the posted function runs, so a
// deregistration made on the executor stops every later delivery.
func (c *CastContext) postSession(ev SessionEvent) {
	c.exec.Post(func() {
		c.mu.Lock()
		l := c.sessionListener
		c.mu.Unlock()

		if l != nil {
			l.SessionChanged(ev)
		}
	})
}
