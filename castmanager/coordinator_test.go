package castmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/require"
	"go2tv.app/castbutton/castprotocol"
	"go2tv.app/castbutton/devices"
)

type fakeProvider struct {
	setUpErr   error
	setUpCalls int
	current    *castprotocol.Session
	consume    bool

	registered   int
	deregistered int
	state        castprotocol.StateListener
	session      castprotocol.SessionListener
	keys         []*tcell.EventKey
}

func (p *fakeProvider) SetUpContext(ctx context.Context) error {
	p.setUpCalls++
	return p.setUpErr
}

func (p *fakeProvider) CurrentSession() *castprotocol.Session { return p.current }

func (p *fakeProvider) RegisterRawListeners(state castprotocol.StateListener, session castprotocol.SessionListener) {
	p.registered++
	p.state = state
	p.session = session
}

func (p *fakeProvider) DeregisterRawListeners() {
	p.deregistered++
	p.state = nil
	p.session = nil
}

func (p *fakeProvider) DispatchVolumeKeyEvent(ev *tcell.EventKey) bool {
	p.keys = append(p.keys, ev)
	return p.consume
}

func (p *fakeProvider) emitState(s castprotocol.CastState) {
	if p.state != nil {
		p.state.CastStateChanged(castprotocol.StateEvent{State: s})
	}
}

func (p *fakeProvider) emitSession(ev castprotocol.SessionEvent) {
	if p.session != nil {
		p.session.SessionChanged(ev)
	}
}

// callRecorder implements both consumer listeners and logs every call.
type callRecorder struct {
	calls []string
}

func (r *callRecorder) add(s string)          { r.calls = append(r.calls, s) }
func (r *callRecorder) OnNoDevicesAvailable() { r.add("NoDevicesAvailable") }
func (r *callRecorder) OnDeviceNotConnected() { r.add("NotConnected") }
func (r *callRecorder) OnDeviceConnecting()   { r.add("Connecting") }
func (r *callRecorder) OnDeviceConnected()    { r.add("Connected") }
func (r *callRecorder) OnSessionStarting()    { r.add("Starting") }
func (r *callRecorder) OnSessionStarted(id string) {
	r.add("Started:" + id)
}
func (r *callRecorder) OnSessionStartFailed(code int) { r.add(fmtCode("StartFailed", code)) }
func (r *callRecorder) OnSessionEnding()              { r.add("Ending") }
func (r *callRecorder) OnSessionEnded(code int)       { r.add(fmtCode("Ended", code)) }
func (r *callRecorder) OnSessionResuming(id string)   { r.add("Resuming:" + id) }
func (r *callRecorder) OnSessionResumed(was bool) {
	if was {
		r.add("Resumed:true")
		return
	}
	r.add("Resumed:false")
}
func (r *callRecorder) OnSessionResumeFailed(code int) { r.add(fmtCode("ResumeFailed", code)) }
func (r *callRecorder) OnSessionSuspended(reason int)  { r.add(fmtCode("Suspended", reason)) }

func newSession(t *testing.T, addr string) *castprotocol.Session {
	t.Helper()
	s, err := castprotocol.NewSession(devices.Device{Name: "TV", Addr: addr})
	require.NoError(t, err)
	return s
}

func newScanning(t *testing.T) (*Coordinator, *fakeProvider, *callRecorder) {
	t.Helper()
	p := &fakeProvider{}
	c := New(p)
	require.NoError(t, c.SetUp(context.Background()))
	rec := &callRecorder{}
	require.NoError(t, c.StartScanning(rec, rec))
	return c, p, rec
}

func TestSetUpIsIdempotent(t *testing.T) {
	p := &fakeProvider{}
	c := New(p)
	require.NoError(t, c.SetUp(context.Background()))
	require.NoError(t, c.SetUp(context.Background()))
	require.Equal(t, 1, p.setUpCalls)
}

func TestSetUpFailureIsFatal(t *testing.T) {
	p := &fakeProvider{setUpErr: castprotocol.ErrCastUnavailable}
	c := New(p)

	err := c.SetUp(context.Background())
	require.ErrorIs(t, err, castprotocol.ErrCastUnavailable)
	require.ErrorIs(t, c.SetUp(context.Background()), castprotocol.ErrCastUnavailable)
	require.Equal(t, 1, p.setUpCalls)

	rec := &callRecorder{}
	require.ErrorIs(t, c.StartScanning(rec, rec), ErrNotSetUp)
	require.Zero(t, p.registered)
}

func TestStartScanningRequiresSetUp(t *testing.T) {
	p := &fakeProvider{}
	c := New(p)
	rec := &callRecorder{}
	require.ErrorIs(t, c.StartScanning(rec, rec), ErrNotSetUp)
	require.False(t, c.Scanning())
}

func TestDiscoveryStatesRelayedOnce(t *testing.T) {
	_, p, rec := newScanning(t)

	p.emitState(castprotocol.NoDevicesAvailable)
	p.emitState(castprotocol.NotConnected)
	p.emitState(castprotocol.CastState(0))
	p.emitState(castprotocol.Connecting)
	p.emitState(castprotocol.CastState(42))
	p.emitState(castprotocol.Connected)

	require.Equal(t, []string{"NoDevicesAvailable", "NotConnected", "Connecting", "Connected"}, rec.calls)
}

func TestNoSyntheticInitialDispatch(t *testing.T) {
	_, _, rec := newScanning(t)
	require.Empty(t, rec.calls)
}

func TestAllSessionEventsRelayed(t *testing.T) {
	c, p, rec := newScanning(t)
	s := newSession(t, "http://10.0.0.2:8009")

	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionStarting, Session: s})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionStartFailed, Session: s, Code: castprotocol.StatusTimeout})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionStarted, Session: s, SessionID: "X"})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionSuspended, Session: s, Code: castprotocol.StatusNetworkError})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionResuming, Session: s, SessionID: "X"})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionResumed, Session: s, WasSuspended: true})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionResumeFailed, Session: s, Code: castprotocol.StatusInternalError})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionEnding, Session: s})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionEnded, Session: s})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionEventType(99), Session: s})

	require.Equal(t, []string{
		"Starting",
		"StartFailed(15)",
		"Started:X",
		"Suspended(7)",
		"Resuming:X",
		"Resumed:true",
		"ResumeFailed(8)",
		"Ending",
		"Ended(0)",
	}, rec.calls)
	require.Nil(t, c.ActiveSession())
}

func TestStartedAndResumedCaptureSession(t *testing.T) {
	c, p, _ := newScanning(t)
	a := newSession(t, "http://10.0.0.2:8009")
	b := newSession(t, "http://10.0.0.3:8009")

	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionStarted, Session: a, SessionID: a.ID()})
	require.Same(t, a, c.ActiveSession())

	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionResumed, Session: b})
	require.Same(t, b, c.ActiveSession())
}

func TestStaleEndedKeepsActiveSession(t *testing.T) {
	c, p, rec := newScanning(t)
	a := newSession(t, "http://10.0.0.2:8009")
	b := newSession(t, "http://10.0.0.3:8009")

	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionStarted, Session: a, SessionID: "A"})
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionEnded, Session: b, Code: castprotocol.StatusSuccess})

	require.Same(t, a, c.ActiveSession())
	require.Equal(t, []string{"Started:A", "Ended(0)"}, rec.calls, "stale ended is still relayed")

	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionEnded, Session: a})
	require.Nil(t, c.ActiveSession())
}

func TestStopScanningStopsDelivery(t *testing.T) {
	c, p, rec := newScanning(t)
	raw := p.state

	c.StopScanning()
	require.False(t, c.Scanning())
	require.Equal(t, 1, p.deregistered)

	// A provider that still holds the old registration must not reach the consumer.
	raw.CastStateChanged(castprotocol.StateEvent{State: castprotocol.Connected})
	p.emitState(castprotocol.Connected)

	require.Empty(t, rec.calls)
}

func TestStopScanningWithoutStartIsNoop(t *testing.T) {
	p := &fakeProvider{}
	c := New(p)
	c.StopScanning()
	require.NoError(t, c.SetUp(context.Background()))
	c.StopScanning()
	c.StopScanning()
	require.Zero(t, p.deregistered)
}

func TestStartScanningTwiceStopsFirst(t *testing.T) {
	c, p, first := newScanning(t)
	oldRaw := p.state

	second := &callRecorder{}
	require.NoError(t, c.StartScanning(second, second))
	require.Equal(t, 2, p.registered)
	require.Equal(t, 1, p.deregistered)

	oldRaw.CastStateChanged(castprotocol.StateEvent{State: castprotocol.NotConnected})
	p.emitState(castprotocol.Connected)

	require.Empty(t, first.calls)
	require.Equal(t, []string{"Connected"}, second.calls)
}

func TestStartScanningAdoptsCurrentSession(t *testing.T) {
	s := newSession(t, "http://10.0.0.2:8009")
	p := &fakeProvider{current: s}
	c := New(p)
	require.NoError(t, c.SetUp(context.Background()))

	rec := &callRecorder{}
	require.NoError(t, c.StartScanning(rec, rec))
	require.Same(t, s, c.ActiveSession())
}

func TestStartScanningKeepsTrackedSession(t *testing.T) {
	c, p, rec := newScanning(t)
	a := newSession(t, "http://10.0.0.2:8009")
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionStarted, Session: a, SessionID: "A"})
	c.StopScanning()

	p.current = newSession(t, "http://10.0.0.3:8009")
	require.NoError(t, c.StartScanning(rec, rec))
	require.Same(t, a, c.ActiveSession())
}

func TestPauseResumeScenario(t *testing.T) {
	c, p, rec := newScanning(t)
	x := newSession(t, "http://10.0.0.2:8009")

	p.emitState(castprotocol.Connected)
	require.Equal(t, []string{"Connected"}, rec.calls)

	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionStarted, Session: x, SessionID: "X"})
	require.Equal(t, []string{"Connected", "Started:X"}, rec.calls)
	require.Same(t, x, c.ActiveSession())

	c.StopScanning()
	p.emitSession(castprotocol.SessionEvent{Type: castprotocol.SessionEnded, Session: x})
	require.Equal(t, []string{"Connected", "Started:X"}, rec.calls)
}

func TestDispatchKeyEventPassesThrough(t *testing.T) {
	p := &fakeProvider{}
	c := New(p)
	ev := tcell.NewEventKey(tcell.KeyPgDn, 0, tcell.ModNone)

	require.False(t, c.DispatchKeyEvent(ev))
	p.consume = true
	require.True(t, c.DispatchKeyEvent(ev))
	require.Len(t, p.keys, 2)
	require.Same(t, ev, p.keys[1])
}

func TestSetUpWrapsProviderError(t *testing.T) {
	cause := errors.New("no multicast")
	p := &fakeProvider{setUpErr: cause}
	err := New(p).SetUp(context.Background())
	require.ErrorIs(t, err, cause)
}
