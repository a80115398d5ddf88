package castmanager

import "go2tv.app/castbutton/castprotocol"

type sessionTrack int

const (
	trackKeep sessionTrack = iota
	trackCapture
	trackRelease
)

// translation is what one raw event turns into: at most one consumer
// call and the bookkeeping to apply to the tracked session.
type translation struct {
	scan    func(CastScanListener)
	session func(SessionStateListener)
	track   sessionTrack
	handle  *castprotocol.Session
}

// translate maps a raw provider event. It reports false for events that
// must be dropped, such as discovery states this version does not know.
func translate(ev castprotocol.Event) (translation, bool) {
	switch ev := ev.(type) {
	case castprotocol.StateEvent:
		return translateState(ev.State)
	case castprotocol.SessionEvent:
		return translateSession(ev)
	}
	return translation{}, false
}

func translateState(state castprotocol.CastState) (translation, bool) {
	var fn func(CastScanListener)
	switch state {
	case castprotocol.NoDevicesAvailable:
		fn = CastScanListener.OnNoDevicesAvailable
	case castprotocol.NotConnected:
		fn = CastScanListener.OnDeviceNotConnected
	case castprotocol.Connecting:
		fn = CastScanListener.OnDeviceConnecting
	case castprotocol.Connected:
		fn = CastScanListener.OnDeviceConnected
	default:
		return translation{}, false
	}
	return translation{scan: fn}, true
}

func translateSession(ev castprotocol.SessionEvent) (translation, bool) {
	tr := translation{handle: ev.Session}

	switch ev.Type {
	case castprotocol.SessionStarting:
		tr.session = SessionStateListener.OnSessionStarting
	case castprotocol.SessionStarted:
		tr.track = trackCapture
		tr.session = func(l SessionStateListener) { l.OnSessionStarted(ev.SessionID) }
	case castprotocol.SessionStartFailed:
		tr.session = func(l SessionStateListener) { l.OnSessionStartFailed(ev.Code) }
	case castprotocol.SessionEnding:
		tr.session = SessionStateListener.OnSessionEnding
	case castprotocol.SessionEnded:
		tr.track = trackRelease
		tr.session = func(l SessionStateListener) { l.OnSessionEnded(ev.Code) }
	case castprotocol.SessionResuming:
		tr.session = func(l SessionStateListener) { l.OnSessionResuming(ev.SessionID) }
	case castprotocol.SessionResumed:
		tr.track = trackCapture
		tr.session = func(l SessionStateListener) { l.OnSessionResumed(ev.WasSuspended) }
	case castprotocol.SessionResumeFailed:
		tr.session = func(l SessionStateListener) { l.OnSessionResumeFailed(ev.Code) }
	case castprotocol.SessionSuspended:
		tr.session = func(l SessionStateListener) { l.OnSessionSuspended(ev.Code) }
	default:
		return translation{}, false
	}
	return tr, true
}
