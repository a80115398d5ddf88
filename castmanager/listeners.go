package castmanager

// CastScanListener receives the discovery state. Exactly one method is
// called per recognized state change.
type CastScanListener interface {
	OnNoDevicesAvailable()
	OnDeviceNotConnected()
	OnDeviceConnecting()
	OnDeviceConnected()
}

// SessionStateListener receives every session lifecycle event the
// provider reports, in delivery order.
type SessionStateListener interface {
	OnSessionStarting()
	OnSessionStarted(sessionID string)
	OnSessionStartFailed(code int)
	OnSessionEnding()
	OnSessionEnded(code int)
	OnSessionResuming(sessionID string)
	OnSessionResumed(wasSuspended bool)
	OnSessionResumeFailed(code int)
	OnSessionSuspended(reason int)
}
