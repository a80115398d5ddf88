package castprotocol

import "fmt"

// CastState is the aggregate availability of castable devices.
// The numeric values match the codes the provider reports.
type CastState int

const (
	NoDevicesAvailable CastState = iota + 1
	NotConnected
	Connecting
	Connected
)

func (s CastState) String() string {
	switch s {
	case NoDevicesAvailable:
		return "NO_DEVICES_AVAILABLE"
	case NotConnected:
		return "NOT_CONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return fmt.Sprintf("CastState(%d)", int(s))
	}
}

// SessionEventType identifies one of the session lifecycle callbacks.
type SessionEventType int

const (
	SessionStarting SessionEventType = iota + 1
	SessionStarted
	SessionStartFailed
	SessionEnding
	SessionEnded
	SessionResuming
	SessionResumed
	SessionResumeFailed
	SessionSuspended
)

func (t SessionEventType) String() string {
	switch t {
	case SessionStarting:
		return "STARTING"
	case SessionStarted:
		return "STARTED"
	case SessionStartFailed:
		return "START_FAILED"
	case SessionEnding:
		return "ENDING"
	case SessionEnded:
		return "ENDED"
	case SessionResuming:
		return "RESUMING"
	case SessionResumed:
		return "RESUMED"
	case SessionResumeFailed:
		return "RESUME_FAILED"
	case SessionSuspended:
		return "SUSPENDED"
	default:
		return fmt.Sprintf("SessionEventType(%d)", int(t))
	}
}

// Event is a raw provider event: either a StateEvent or a SessionEvent.
type Event interface {
	castEvent()
}

// StateEvent reports a discovery state change.
type StateEvent struct {
	State CastState
}

// SessionEvent reports a session lifecycle change.
//
// SessionID is set on Started and Resuming, Code on StartFailed, Ended,
// ResumeFailed and Suspended, and WasSuspended on Resumed.
type SessionEvent struct {
	Type         SessionEventType
	Session      *Session
	SessionID    string
	Code         int
	WasSuspended bool
}

func (StateEvent) castEvent()   {}
func (SessionEvent) castEvent() {}

// StateListener receives raw discovery state changes.
type StateListener interface {
	CastStateChanged(ev StateEvent)
}

// SessionListener receives raw session lifecycle events.
type SessionListener interface {
	SessionChanged(ev SessionEvent)
}
